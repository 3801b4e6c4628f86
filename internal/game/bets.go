package game

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinBetUSD = 1.00
	MaxBetUSD = 10000.00
)

// PlaceBet validates and applies a bet against the current round. The stake
// is converted to crypto at the quote available right now and that amount is
// locked into the bet. Betting is permitted while the round is waiting or
// betting; a bet arriving with no open round lazily creates one.
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (*BetResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if req.USDAmount <= 0 {
		return nil, fmt.Errorf("%w: usdAmount must be positive", ErrValidation)
	}
	if req.USDAmount < MinBetUSD || req.USDAmount > MaxBetUSD {
		return nil, fmt.Errorf("%w: bet must be between %.2f and %.2f", ErrValidation, MinBetUSD, MaxBetUSD)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Cryptocurrency))
	if currency == "" {
		return nil, fmt.Errorf("%w: cryptocurrency is required", ErrValidation)
	}
	if req.AutoCashout != 0 && req.AutoCashout < MinCrashPoint {
		return nil, fmt.Errorf("%w: autoCashout must be at least %.2f", ErrValidation, MinCrashPoint)
	}

	// Quote outside the engine mutex: the converter bounds its own latency
	// and the locked rate does not depend on round state.
	cryptoAmount, rate, err := e.prices.USDToCrypto(ctx, req.USDAmount, currency)
	if err != nil {
		return nil, err
	}

	session := e.ledger.GetOrCreate(req.SessionID, req.PlayerName)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, fmt.Errorf("%w: engine is shutting down", ErrState)
	}
	if e.current == nil {
		if err := e.createRoundLocked(); err != nil {
			return nil, err
		}
	}
	round := e.current
	if round.Status != RoundBetting && round.Status != RoundWaiting {
		return nil, fmt.Errorf("%w: round %d is %s", ErrState, round.RoundNumber, round.Status)
	}

	for i := range round.Bets {
		if round.Bets[i].SessionID == req.SessionID {
			return nil, fmt.Errorf("%w: round %d", ErrDuplicateBet, round.RoundNumber)
		}
	}

	bet := Bet{
		BetID:          uuid.NewString(),
		SessionID:      req.SessionID,
		PlayerName:     session.PlayerName,
		USDAmount:      req.USDAmount,
		CryptoAmount:   cryptoAmount,
		Cryptocurrency: currency,
		AutoCashout:    req.AutoCashout,
		BetTime:        time.Now(),
	}

	newBalance, err := e.ledger.DebitForBet(req.SessionID, req.USDAmount, round.RoundNumber, bet.BetID)
	if err != nil {
		return nil, err
	}

	round.Bets = append(round.Bets, bet)
	round.TotalStaked += req.USDAmount
	round.TotalPlayers = distinctSessions(round.Bets)

	e.persistAsync(round)

	log.Printf("[BET] %s staked %.2f USD (%.8f %s) on round %d",
		bet.PlayerName, bet.USDAmount, bet.CryptoAmount, currency, round.RoundNumber)

	e.publish(WSMessage{Type: "bet_placed", Data: BetPlacedEvent{
		SessionID:  bet.SessionID,
		PlayerName: bet.PlayerName,
		USDAmount:  bet.USDAmount,
		BetID:      bet.BetID,
	}})

	return &BetResult{Bet: bet, Rate: rate, NewBalance: newBalance}, nil
}

// CashOut resolves the session's bet in the active round at the current
// multiplier. The cashedOut flag flips under the engine mutex, so a second
// concurrent cash-out for the same session sees it set and fails; the payout
// is credited exactly once. Payout USD value converts at the live quote, not
// the bet-time rate.
func (e *Engine) CashOut(ctx context.Context, sessionID string) (*CashoutResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.Status != RoundActive {
		phase := RoundWaiting.Phase()
		if e.current != nil {
			phase = e.current.Status.Phase()
		}
		return nil, fmt.Errorf("%w: phase is %s", ErrState, phase)
	}

	return e.cashOutLocked(ctx, sessionID, e.currentMultiplier)
}

// cashOutLocked performs the payout for one session at the given multiplier.
// Callers hold the engine mutex and have verified the round is active.
func (e *Engine) cashOutLocked(ctx context.Context, sessionID string, multiplier float64) (*CashoutResult, error) {
	round := e.current

	var bet *Bet
	for i := range round.Bets {
		if round.Bets[i].SessionID == sessionID {
			bet = &round.Bets[i]
			break
		}
	}
	if bet == nil || bet.CashedOut {
		return nil, fmt.Errorf("%w: session %s, round %d", ErrNotFound, sessionID, round.RoundNumber)
	}

	winCrypto := bet.CryptoAmount * multiplier
	winUSD, _, err := e.prices.CryptoToUSD(ctx, winCrypto, bet.Cryptocurrency)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	bet.CashedOut = true
	bet.CashoutMultiplier = multiplier
	bet.CashoutTime = &now

	profit := winUSD - bet.USDAmount
	newBalance := e.ledger.CreditWin(sessionID, winUSD, profit)

	e.persistAsync(round)

	log.Printf("[CASHOUT] %s cashed out at %.2fx: %.2f USD (profit %.2f)",
		bet.PlayerName, multiplier, winUSD, profit)

	e.publish(WSMessage{Type: "player_cashed_out", Data: CashoutEvent{
		SessionID:  sessionID,
		PlayerName: bet.PlayerName,
		Multiplier: multiplier,
		WinAmount:  winUSD,
	}})

	return &CashoutResult{
		Multiplier: multiplier,
		WinAmount:  winUSD,
		Profit:     profit,
		NewBalance: newBalance,
	}, nil
}

// sweepAutoCashoutsLocked cashes out every bet whose auto-cashout target the
// multiplier has reached. Runs on each tick before the crash check wins.
func (e *Engine) sweepAutoCashoutsLocked(multiplier float64) {
	round := e.current
	for i := range round.Bets {
		b := &round.Bets[i]
		if b.CashedOut || b.AutoCashout <= 0 || multiplier < b.AutoCashout {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), PersistTimeout)
		if _, err := e.cashOutLocked(ctx, b.SessionID, multiplier); err != nil {
			log.Printf("[CASHOUT] Auto cash-out failed for %s: %v", b.SessionID, err)
		}
		cancel()
	}
}

func distinctSessions(bets []Bet) int {
	seen := make(map[string]struct{}, len(bets))
	for i := range bets {
		seen[bets[i].SessionID] = struct{}{}
	}
	return len(seen)
}
