package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"crashpilot/internal/config"
	"crashpilot/internal/game"
)

var testCfg *config.Config

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}
	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testCfg = &config.Config{
		DBHost:     dbHost,
		DBPort:     dbPort.Port(),
		DBDatabase: dbName,
		DBUsername: dbUser,
		DBPassword: dbPwd,
		DBSchema:   "public",
	}

	db, err := sql.Open("pgx", testCfg.DatabaseURL())
	if err != nil {
		return dbContainer.Terminate, err
	}
	defer db.Close()

	if err := RunMigrations(db, "../../migrations"); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func testRound(roundNumber int64) *game.Round {
	fair := game.GenerateFairRound(roundNumber)
	return &game.Round{
		RoundNumber: roundNumber,
		Seed:        fair.Seed,
		Hash:        fair.Hash,
		CrashPoint:  fair.CrashPoint,
		Status:      game.RoundBetting,
		Bets:        []game.Bet{},
	}
}

func TestRoundLifecyclePersistence(t *testing.T) {
	srv := New(testCfg)
	defer srv.Close()
	ctx := context.Background()

	round := testRound(1)
	if err := srv.CreateRound(ctx, round); err != nil {
		t.Fatalf("create round: %v", err)
	}

	t.Run("duplicate round number conflicts", func(t *testing.T) {
		err := srv.CreateRound(ctx, testRound(1))
		if !errors.Is(err, game.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("update and read back", func(t *testing.T) {
		now := time.Now().UTC()
		round.Status = game.RoundActive
		round.StartTime = &now
		round.Bets = append(round.Bets, game.Bet{
			BetID:          "bet-1",
			SessionID:      "s1",
			PlayerName:     "Player-1",
			USDAmount:      100,
			CryptoAmount:   0.002,
			Cryptocurrency: "BTC",
			BetTime:        now,
		})
		round.TotalStaked = 100
		round.TotalPlayers = 1

		if err := srv.UpdateRound(ctx, round); err != nil {
			t.Fatalf("update round: %v", err)
		}

		got, err := srv.RoundByNumber(ctx, 1)
		if err != nil {
			t.Fatalf("round by number: %v", err)
		}
		if got.Status != game.RoundActive {
			t.Errorf("status = %s, want active", got.Status)
		}
		if got.Seed != round.Seed || got.Hash != round.Hash {
			t.Error("fairness material did not round-trip")
		}
		if len(got.Bets) != 1 || got.Bets[0].SessionID != "s1" {
			t.Errorf("bets did not round-trip: %+v", got.Bets)
		}
		if got.TotalStaked != 100 || got.TotalPlayers != 1 {
			t.Errorf("totals = %v/%d, want 100/1", got.TotalStaked, got.TotalPlayers)
		}
	})

	t.Run("latest round number", func(t *testing.T) {
		if err := srv.CreateRound(ctx, testRound(5)); err != nil {
			t.Fatalf("create round 5: %v", err)
		}
		latest, err := srv.LatestRoundNumber(ctx)
		if err != nil {
			t.Fatalf("latest round number: %v", err)
		}
		if latest != 5 {
			t.Errorf("latest = %d, want 5", latest)
		}
	})

	t.Run("mark stale completed", func(t *testing.T) {
		stale, err := srv.MarkStaleCompleted(ctx)
		if err != nil {
			t.Fatalf("mark stale: %v", err)
		}
		if stale != 2 {
			t.Errorf("stale count = %d, want 2", stale)
		}

		got, err := srv.RoundByNumber(ctx, 1)
		if err != nil {
			t.Fatalf("round by number: %v", err)
		}
		if got.Status != game.RoundCompleted {
			t.Errorf("status = %s, want completed", got.Status)
		}
	})

	t.Run("recent rounds", func(t *testing.T) {
		rounds, err := srv.RecentRounds(ctx, 10)
		if err != nil {
			t.Fatalf("recent rounds: %v", err)
		}
		if len(rounds) != 2 {
			t.Fatalf("recent rounds = %d, want 2", len(rounds))
		}
		if rounds[0].RoundNumber != 5 {
			t.Errorf("newest round = %d, want 5", rounds[0].RoundNumber)
		}
	})

	t.Run("missing round", func(t *testing.T) {
		_, err := srv.RoundByNumber(ctx, 999)
		if !errors.Is(err, game.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestHealth(t *testing.T) {
	srv := New(testCfg)
	defer srv.Close()

	stats := srv.Health()
	if stats["status"] != "up" {
		t.Errorf("health status = %s, want up", stats["status"])
	}
}
