package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

const (
	BettingWindow     = 5 * time.Second
	CrashDisplayDelay = 3 * time.Second
	PersistTimeout    = 2 * time.Second

	janitorInterval = 10 * time.Minute
	historySize     = 20
)

// RoundStore is the persistence boundary. CreateRound must fail with
// ErrConflict (wrapped or bare) on a duplicate round number.
type RoundStore interface {
	CreateRound(ctx context.Context, round *Round) error
	UpdateRound(ctx context.Context, round *Round) error
	LatestRoundNumber(ctx context.Context) (int64, error)
	MarkStaleCompleted(ctx context.Context) (int64, error)
}

// PriceConverter converts between USD and a cryptocurrency at the quote
// available right now. Implementations must bound their latency and fall
// back rather than fail on quote-source outage.
type PriceConverter interface {
	USDToCrypto(ctx context.Context, usd float64, currency string) (amount, rate float64, err error)
	CryptoToUSD(ctx context.Context, amount float64, currency string) (usd, rate float64, err error)
}

// Broadcaster fans events out to subscribers. Publish never blocks and
// delivery is best-effort; the next tick supersedes anything lost.
type Broadcaster interface {
	Publish(event interface{})
}

// Engine owns the single live round and every transition it goes through:
// waiting -> betting -> active -> crashed -> waiting. All transitions are
// driven by engine-owned timers; request handlers only submit bets and
// cash-outs against the current phase. The engine mutex serializes every
// mutation of the round and closes the check-then-act races around
// duplicate bets and double cash-outs.
type Engine struct {
	store  RoundStore
	prices PriceConverter
	hub    Broadcaster
	ledger *SessionLedger
	clock  *MultiplierClock

	mu                sync.Mutex
	current           *Round
	currentMultiplier float64
	roundCounter      int64
	bettingEndsAt     time.Time
	bettingTimer      *time.Timer
	countdownStop     chan struct{}
	resetTimer        *time.Timer
	history           []float64
	stopped           bool

	janitorStop chan struct{}
}

func NewEngine(store RoundStore, prices PriceConverter, hub Broadcaster) *Engine {
	return &Engine{
		store:       store,
		prices:      prices,
		hub:         hub,
		ledger:      NewSessionLedger(),
		clock:       NewMultiplierClock(TickInterval),
		janitorStop: make(chan struct{}),
	}
}

// Ledger exposes the session table to transport handlers.
func (e *Engine) Ledger() *SessionLedger {
	return e.ledger
}

// Start reconciles durable state left by an unclean shutdown, seeds the
// round counter and opens the first betting window.
func (e *Engine) Start(ctx context.Context) error {
	latest, err := e.store.LatestRoundNumber(ctx)
	if err != nil {
		return err
	}

	stale, err := e.store.MarkStaleCompleted(ctx)
	if err != nil {
		return err
	}
	if stale > 0 {
		log.Printf("[GAME] Completed %d stale rounds from previous run", stale)
	}

	e.mu.Lock()
	e.roundCounter = latest
	e.mu.Unlock()

	go e.janitor()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createRoundLocked()
}

// Stop cancels every pending timer and the multiplier clock. Safe to call
// once during shutdown.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	e.cancelTimersLocked()
	e.clock.Stop()
	close(e.janitorStop)
	log.Println("[GAME] Engine stopped")
}

func (e *Engine) cancelTimersLocked() {
	if e.bettingTimer != nil {
		e.bettingTimer.Stop()
		e.bettingTimer = nil
	}
	if e.resetTimer != nil {
		e.resetTimer.Stop()
		e.resetTimer = nil
	}
	if e.countdownStop != nil {
		close(e.countdownStop)
		e.countdownStop = nil
	}
}

// createRoundLocked opens a new round in the betting phase. Exactly one
// round may be in a non-terminal state; callers hold the engine mutex. A
// duplicate round number against the store (racing initialization) is
// retried with a freshly incremented number, never surfaced.
func (e *Engine) createRoundLocked() error {
	if e.stopped {
		return nil
	}
	if e.current != nil && e.current.Status != RoundCompleted {
		return fmt.Errorf("%w: round %d still %s", ErrState, e.current.RoundNumber, e.current.Status)
	}

	for {
		e.roundCounter++
		fair := GenerateFairRound(e.roundCounter)
		round := &Round{
			RoundNumber: e.roundCounter,
			Seed:        fair.Seed,
			Hash:        fair.Hash,
			CrashPoint:  fair.CrashPoint,
			Status:      RoundBetting,
			Bets:        []Bet{},
		}

		ctx, cancel := context.WithTimeout(context.Background(), PersistTimeout)
		err := e.store.CreateRound(ctx, round)
		cancel()
		if errors.Is(err, ErrConflict) {
			log.Printf("[GAME] Round %d already exists, retrying with next number", round.RoundNumber)
			continue
		}
		if err != nil {
			return fmt.Errorf("create round %d: %w", round.RoundNumber, err)
		}

		e.current = round
		e.currentMultiplier = 1.00
		e.bettingEndsAt = time.Now().Add(BettingWindow)

		log.Printf("[GAME] Round %d open for betting (hash %s...)", round.RoundNumber, round.Hash[:16])

		e.publish(WSMessage{Type: "round_created", Data: GameState{
			Phase:        round.Status.Phase(),
			Multiplier:   1.00,
			TimeLeft:     BettingWindow.Seconds(),
			CurrentRound: round.RoundNumber,
			Hash:         round.Hash,
			History:      e.historyLocked(),
		}})

		e.bettingTimer = time.AfterFunc(BettingWindow, e.startRound)
		stop := make(chan struct{})
		e.countdownStop = stop
		go e.bettingCountdown(round.RoundNumber, stop)
		return nil
	}
}

// bettingCountdown broadcasts one game_state_update per second while the
// betting window is open.
func (e *Engine) bettingCountdown(roundNumber int64, stop chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.current == nil || e.current.RoundNumber != roundNumber || e.current.Status != RoundBetting {
				e.mu.Unlock()
				return
			}
			e.publish(WSMessage{Type: "game_state_update", Data: e.gameStateLocked()})
			e.mu.Unlock()
		}
	}
}

// startRound moves the current round from betting to active and starts the
// multiplier clock. Fired by the betting timer; a stale fire after a state
// change is a no-op.
func (e *Engine) startRound() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.current == nil {
		return
	}
	if e.current.Status != RoundBetting && e.current.Status != RoundWaiting {
		return
	}

	now := time.Now()
	e.current.Status = RoundActive
	e.current.StartTime = &now
	e.currentMultiplier = 1.00
	if e.countdownStop != nil {
		close(e.countdownStop)
		e.countdownStop = nil
	}

	e.persistAsync(e.current)

	log.Printf("[GAME] Round %d active: %d bets, %.2f staked",
		e.current.RoundNumber, len(e.current.Bets), e.current.TotalStaked)

	e.publish(WSMessage{Type: "game_state_update", Data: e.gameStateLocked()})

	e.clock.Start(now, e.current.CrashPoint, e.onTick, e.onCrash)
}

// onTick runs every clock interval during the active phase: it publishes
// the fresh multiplier and sweeps auto-cashout targets.
func (e *Engine) onTick(multiplier float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.Status != RoundActive {
		return
	}

	e.currentMultiplier = multiplier
	e.publish(WSMessage{Type: "game_state_update", Data: e.gameStateLocked()})
	e.sweepAutoCashoutsLocked(multiplier)
}

// onCrash ends the round. The clock guarantees exactly one invocation per
// flight; the status check makes a stale invocation harmless anyway.
func (e *Engine) onCrash(crashPoint float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.current == nil || e.current.Status != RoundActive {
		return
	}

	now := time.Now()
	round := e.current
	round.Status = RoundCrashed
	round.CrashTime = &now
	e.currentMultiplier = crashPoint

	losers := 0
	for i := range round.Bets {
		if !round.Bets[i].CashedOut {
			e.ledger.ResolveLoss(round.Bets[i].SessionID)
			losers++
		}
	}

	e.persistAsync(round)

	log.Printf("[GAME] Round %d crashed at %.2fx (%d bets lost)", round.RoundNumber, crashPoint, losers)

	e.history = append(e.history, crashPoint)
	if len(e.history) > historySize {
		e.history = e.history[len(e.history)-historySize:]
	}

	e.publish(WSMessage{Type: "round_crashed", Data: CrashEvent{
		RoundNumber: round.RoundNumber,
		CrashPoint:  crashPoint,
		Seed:        round.Seed,
		Hash:        round.Hash,
	}})
	e.publish(WSMessage{Type: "game_state_update", Data: e.gameStateLocked()})

	e.resetTimer = time.AfterFunc(CrashDisplayDelay, e.reset)
}

// reset discards the crashed round (it stays durable in the store) and
// opens the next betting window.
func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	if e.current != nil {
		if e.current.Status != RoundCrashed {
			return
		}
		e.current.Status = RoundCompleted
		e.persistAsync(e.current)
		e.current = nil
	}
	e.currentMultiplier = 1.00

	if err := e.createRoundLocked(); err != nil {
		// Fail safe: never leave the machine with no timer armed.
		log.Printf("[GAME] Failed to open next round: %v, retrying in %s", err, CrashDisplayDelay)
		e.resetTimer = time.AfterFunc(CrashDisplayDelay, e.reset)
	}
}

// GameState snapshots the current phase for handlers and broadcasts.
func (e *Engine) GameState() GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameStateLocked()
}

func (e *Engine) gameStateLocked() GameState {
	state := GameState{
		Phase:      RoundWaiting.Phase(),
		Multiplier: e.currentMultiplier,
		History:    e.historyLocked(),
	}
	if e.current == nil {
		return state
	}

	state.Phase = e.current.Status.Phase()
	state.CurrentRound = e.current.RoundNumber
	state.Hash = e.current.Hash
	state.TotalStaked = e.current.TotalStaked
	state.TotalPlayers = e.current.TotalPlayers
	if e.current.Status == RoundBetting {
		if left := time.Until(e.bettingEndsAt).Seconds(); left > 0 {
			state.TimeLeft = math.Floor(left*10) / 10
		}
	}
	return state
}

func (e *Engine) historyLocked() []float64 {
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

// publish hands an event to the hub without blocking the engine.
func (e *Engine) publish(event interface{}) {
	if e.hub != nil {
		e.hub.Publish(event)
	}
}

// persistAsync writes a snapshot of the round in the background. In-memory
// state advances optimistically; a lagging durable record is reconciled by
// MarkStaleCompleted on the next startup.
func (e *Engine) persistAsync(round *Round) {
	snapshot := *round
	snapshot.Bets = make([]Bet, len(round.Bets))
	copy(snapshot.Bets, round.Bets)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PersistTimeout)
		defer cancel()
		if err := e.store.UpdateRound(ctx, &snapshot); err != nil {
			log.Printf("[GAME] Failed to persist round %d: %v", snapshot.RoundNumber, err)
		}
	}()
}

// janitor evicts idle sessions on a slow cadence.
func (e *Engine) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.janitorStop:
			return
		case now := <-ticker.C:
			e.ledger.EvictIdle(now, SessionRetention)
		}
	}
}
