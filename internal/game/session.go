package game

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	InitialBalance   = 1000.00
	SessionRetention = 1 * time.Hour
)

// SessionLedger owns every ephemeral player session. All balance mutations
// for a single session happen under the ledger mutex, so a debit and the
// funds check that precedes it are atomic.
type SessionLedger struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionLedger() *SessionLedger {
	return &SessionLedger{
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate lazily creates a session on first reference. A supplied name
// overwrites the stored name even for existing sessions. Returns a snapshot
// copy; callers never hold a pointer into the ledger.
func (l *SessionLedger) GetOrCreate(sessionID, playerName string) Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.getOrCreateLocked(sessionID)
	if playerName != "" {
		s.PlayerName = playerName
	}
	s.LastSeen = time.Now()
	return *s
}

func (l *SessionLedger) getOrCreateLocked(sessionID string) *Session {
	if s, ok := l.sessions[sessionID]; ok {
		return s
	}

	now := time.Now()
	s := &Session{
		SessionID:  sessionID,
		PlayerName: defaultPlayerName(sessionID),
		Balance:    InitialBalance,
		JoinedAt:   now,
		LastSeen:   now,
	}
	l.sessions[sessionID] = s
	log.Printf("[SESSION] Created %s (%s)", sessionID, s.PlayerName)
	return s
}

func defaultPlayerName(sessionID string) string {
	suffix := sessionID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "Player-" + suffix
}

// SetName renames a session, creating it if needed.
func (l *SessionLedger) SetName(sessionID, playerName string) Session {
	return l.GetOrCreate(sessionID, playerName)
}

// Balance returns the session's balance, creating the session if needed.
func (l *SessionLedger) Balance(sessionID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getOrCreateLocked(sessionID).Balance
}

// SetBalance overwrites a session balance. Admin/testing use only.
func (l *SessionLedger) SetBalance(sessionID string, balance float64) Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.getOrCreateLocked(sessionID)
	s.Balance = balance
	s.LastSeen = time.Now()
	return *s
}

// DebitForBet atomically checks funds, debits the stake and records the
// session's current bet. Fails with ErrInsufficientFunds leaving the balance
// untouched.
func (l *SessionLedger) DebitForBet(sessionID string, amount float64, roundNumber int64, betID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.getOrCreateLocked(sessionID)
	if s.Balance < amount {
		return s.Balance, fmt.Errorf("%w: balance %.2f, bet %.2f", ErrInsufficientFunds, s.Balance, amount)
	}

	s.Balance -= amount
	s.TotalBets++
	s.CurrentBet = &CurrentBet{RoundNumber: roundNumber, BetID: betID, IsActive: true}
	s.LastSeen = time.Now()
	return s.Balance, nil
}

// CreditWin resolves the current bet as won: the profit is credited and the
// win amount accrues to the session counters. A negative profit (live rate
// fell below the locked rate) credits nothing so the balance stays
// non-negative.
func (l *SessionLedger) CreditWin(sessionID string, winAmount, profit float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.getOrCreateLocked(sessionID)
	if profit > 0 {
		s.Balance += profit
	}
	s.TotalWins++
	s.TotalWinnings += winAmount
	if s.CurrentBet != nil {
		s.CurrentBet.IsActive = false
	}
	s.LastSeen = time.Now()
	return s.Balance
}

// ResolveLoss marks a session's current bet as resolved-losing. The staked
// crypto is forfeited; the balance does not change.
func (l *SessionLedger) ResolveLoss(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sessions[sessionID]; ok && s.CurrentBet != nil {
		s.CurrentBet.IsActive = false
	}
}

// EvictIdle removes sessions idle beyond the retention window. A session
// with an unresolved active bet is never evicted. Returns the eviction count.
func (l *SessionLedger) EvictIdle(now time.Time, retention time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, s := range l.sessions {
		if s.CurrentBet != nil && s.CurrentBet.IsActive {
			continue
		}
		if now.Sub(s.LastSeen) > retention {
			delete(l.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("[SESSION] Evicted %d idle sessions (%d remain)", evicted, len(l.sessions))
	}
	return evicted
}

// Count reports the number of live sessions.
func (l *SessionLedger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
