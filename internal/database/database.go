package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crashpilot/internal/config"
	"crashpilot/internal/game"
)

// Service is the durable round store. The persisted record layout mirrors
// the in-memory Round field for field so external fairness tooling can read
// rounds directly.
type Service interface {
	game.RoundStore

	RoundByNumber(ctx context.Context, roundNumber int64) (*game.Round, error)
	RecentRounds(ctx context.Context, limit int) ([]game.Round, error)
	Health() map[string]string
	Close() error
}

type service struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and pings it. Fatal on failure: the engine
// cannot reconcile or persist rounds without the store.
func New(cfg *config.Config) Service {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("[DB] Failed to create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("[DB] Failed to connect: %v", err)
	}

	log.Println("[DB] Postgres connected")
	return &service{pool: pool}
}

const uniqueViolation = "23505"

func (s *service) CreateRound(ctx context.Context, round *game.Round) error {
	bets, err := json.Marshal(round.Bets)
	if err != nil {
		return fmt.Errorf("marshal bets: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO rounds (round_number, seed, hash, crash_point, status,
			start_time, crash_time, bets, total_staked, total_players)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		round.RoundNumber, round.Seed, round.Hash, round.CrashPoint, round.Status,
		round.StartTime, round.CrashTime, bets, round.TotalStaked, round.TotalPlayers,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("round %d: %w", round.RoundNumber, game.ErrConflict)
		}
		return fmt.Errorf("insert round %d: %w", round.RoundNumber, err)
	}
	return nil
}

func (s *service) UpdateRound(ctx context.Context, round *game.Round) error {
	bets, err := json.Marshal(round.Bets)
	if err != nil {
		return fmt.Errorf("marshal bets: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE rounds
		SET status = $2, start_time = $3, crash_time = $4, bets = $5,
			total_staked = $6, total_players = $7, updated_at = now()
		WHERE round_number = $1`,
		round.RoundNumber, round.Status, round.StartTime, round.CrashTime,
		bets, round.TotalStaked, round.TotalPlayers,
	)
	if err != nil {
		return fmt.Errorf("update round %d: %w", round.RoundNumber, err)
	}
	return nil
}

func (s *service) LatestRoundNumber(ctx context.Context) (int64, error) {
	var latest int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(round_number), 0) FROM rounds`).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("latest round number: %w", err)
	}
	return latest, nil
}

// MarkStaleCompleted force-completes rounds left non-terminal by an unclean
// shutdown so exactly zero rounds are live before the engine opens a new one.
func (s *service) MarkStaleCompleted(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds SET status = 'completed', updated_at = now()
		 WHERE status IN ('waiting', 'betting', 'active', 'crashed')`)
	if err != nil {
		return 0, fmt.Errorf("mark stale rounds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *service) RoundByNumber(ctx context.Context, roundNumber int64) (*game.Round, error) {
	round, err := scanRound(s.pool.QueryRow(ctx, `
		SELECT round_number, seed, hash, crash_point, status,
			start_time, crash_time, bets, total_staked, total_players
		FROM rounds WHERE round_number = $1`, roundNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("round %d: %w", roundNumber, game.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query round %d: %w", roundNumber, err)
	}
	return round, nil
}

func (s *service) RecentRounds(ctx context.Context, limit int) ([]game.Round, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round_number, seed, hash, crash_point, status,
			start_time, crash_time, bets, total_staked, total_players
		FROM rounds WHERE status = 'completed'
		ORDER BY round_number DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent rounds: %w", err)
	}
	defer rows.Close()

	var rounds []game.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, *round)
	}
	return rounds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*game.Round, error) {
	var round game.Round
	var bets []byte
	err := row.Scan(&round.RoundNumber, &round.Seed, &round.Hash, &round.CrashPoint,
		&round.Status, &round.StartTime, &round.CrashTime, &bets,
		&round.TotalStaked, &round.TotalPlayers)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bets, &round.Bets); err != nil {
		return nil, fmt.Errorf("unmarshal bets: %w", err)
	}
	return &round, nil
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"

	poolStats := s.pool.Stat()
	stats["total_conns"] = fmt.Sprintf("%d", poolStats.TotalConns())
	stats["idle_conns"] = fmt.Sprintf("%d", poolStats.IdleConns())
	stats["acquired_conns"] = fmt.Sprintf("%d", poolStats.AcquiredConns())

	return stats
}

func (s *service) Close() error {
	log.Println("[DB] Disconnecting from Postgres")
	s.pool.Close()
	return nil
}
