package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"crashpilot/internal/game"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("bad input: %w", game.ErrValidation), fiber.StatusBadRequest},
		{"insufficient funds", game.ErrInsufficientFunds, fiber.StatusBadRequest},
		{"wrong phase", game.ErrState, fiber.StatusConflict},
		{"duplicate bet", game.ErrDuplicateBet, fiber.StatusConflict},
		{"missing bet", game.ErrNotFound, fiber.StatusNotFound},
		{"unknown", fmt.Errorf("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestVerifyFairnessHandler(t *testing.T) {
	s := &FiberServer{App: fiber.New()}
	s.App.Get("/verify", s.verifyFairnessHandler)

	seed := "test_seed"
	wantHash, wantCrash := game.VerifyCrashPoint(seed, 5)

	req := httptest.NewRequest(http.MethodGet, "/verify?seed="+seed+"&roundNumber=5", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		RoundNumber int64   `json:"roundNumber"`
		Hash        string  `json:"hash"`
		CrashPoint  float64 `json:"crashPoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Hash != wantHash {
		t.Errorf("hash = %s, want %s", body.Hash, wantHash)
	}
	if body.CrashPoint != wantCrash {
		t.Errorf("crash point = %v, want %v", body.CrashPoint, wantCrash)
	}

	t.Run("missing params", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/verify", nil)
		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}
