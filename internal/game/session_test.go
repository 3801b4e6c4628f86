package game

import (
	"errors"
	"testing"
	"time"
)

func TestSessionLedger_GetOrCreate(t *testing.T) {
	ledger := NewSessionLedger()

	s := ledger.GetOrCreate("session-abcd", "")
	if s.Balance != InitialBalance {
		t.Errorf("new session balance = %v, want %v", s.Balance, InitialBalance)
	}
	if s.PlayerName != "Player-abcd" {
		t.Errorf("default name = %q, want Player-abcd", s.PlayerName)
	}

	again := ledger.GetOrCreate("session-abcd", "")
	if again.JoinedAt != s.JoinedAt {
		t.Error("GetOrCreate created a second session for the same id")
	}

	renamed := ledger.GetOrCreate("session-abcd", "Ava")
	if renamed.PlayerName != "Ava" {
		t.Errorf("supplied name not applied: %q", renamed.PlayerName)
	}
}

func TestSessionLedger_DebitForBet(t *testing.T) {
	ledger := NewSessionLedger()
	ledger.GetOrCreate("s1", "")

	balance, err := ledger.DebitForBet("s1", 100, 1, "bet-1")
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if balance != 900 {
		t.Errorf("balance after debit = %v, want 900", balance)
	}

	// A debit that would drive the balance negative is rejected and the
	// balance is unchanged.
	balance, err = ledger.DebitForBet("s1", 901, 1, "bet-2")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if balance != 900 {
		t.Errorf("balance changed on rejected debit: %v", balance)
	}

	s := ledger.GetOrCreate("s1", "")
	if s.CurrentBet == nil || !s.CurrentBet.IsActive || s.CurrentBet.BetID != "bet-1" {
		t.Errorf("current bet not recorded: %+v", s.CurrentBet)
	}
	if s.TotalBets != 1 {
		t.Errorf("totalBets = %d, want 1", s.TotalBets)
	}
}

func TestSessionLedger_CreditWin(t *testing.T) {
	ledger := NewSessionLedger()
	ledger.GetOrCreate("s1", "")
	ledger.DebitForBet("s1", 100, 1, "bet-1")

	balance := ledger.CreditWin("s1", 300, 200)
	if balance != 1100 {
		t.Errorf("balance after win = %v, want 1100", balance)
	}

	s := ledger.GetOrCreate("s1", "")
	if s.TotalWins != 1 || s.TotalWinnings != 300 {
		t.Errorf("win counters = %d/%v, want 1/300", s.TotalWins, s.TotalWinnings)
	}
	if s.CurrentBet.IsActive {
		t.Error("current bet still active after win")
	}
}

func TestSessionLedger_EvictIdle(t *testing.T) {
	ledger := NewSessionLedger()
	ledger.GetOrCreate("idle", "")
	ledger.GetOrCreate("betting", "")
	ledger.DebitForBet("betting", 50, 1, "bet-1")
	ledger.GetOrCreate("fresh", "")

	// Age the first two sessions past retention.
	ledger.mu.Lock()
	past := time.Now().Add(-2 * time.Hour)
	ledger.sessions["idle"].LastSeen = past
	ledger.sessions["betting"].LastSeen = past
	ledger.mu.Unlock()

	evicted := ledger.EvictIdle(time.Now(), SessionRetention)
	if evicted != 1 {
		t.Errorf("evicted %d sessions, want 1", evicted)
	}

	ledger.mu.Lock()
	_, idleGone := ledger.sessions["idle"]
	_, bettingKept := ledger.sessions["betting"]
	_, freshKept := ledger.sessions["fresh"]
	ledger.mu.Unlock()

	if idleGone {
		t.Error("idle session not evicted")
	}
	if !bettingKept {
		t.Error("session with an active bet was evicted")
	}
	if !freshKept {
		t.Error("fresh session was evicted")
	}
}
