package game

import (
	"time"
)

type RoundStatus string

const (
	RoundWaiting   RoundStatus = "waiting"
	RoundBetting   RoundStatus = "betting"
	RoundActive    RoundStatus = "active"
	RoundCrashed   RoundStatus = "crashed"
	RoundCompleted RoundStatus = "completed"
)

// Phase maps an internal round status to the coarse phase broadcast to
// clients: waiting, playing or crashed.
func (s RoundStatus) Phase() string {
	switch s {
	case RoundActive:
		return "playing"
	case RoundCrashed:
		return "crashed"
	default:
		return "waiting"
	}
}

// Round is one play cycle. The seed and crash point stay hidden from clients
// until the crash reveal; the persisted record keeps both so fairness tooling
// can verify rounds after the fact.
type Round struct {
	RoundNumber  int64       `json:"roundNumber"`
	Seed         string      `json:"-"`
	Hash         string      `json:"hash"`
	CrashPoint   float64     `json:"-"`
	Status       RoundStatus `json:"status"`
	StartTime    *time.Time  `json:"startTime,omitempty"`
	CrashTime    *time.Time  `json:"crashTime,omitempty"`
	Bets         []Bet       `json:"bets"`
	TotalStaked  float64     `json:"totalStaked"`
	TotalPlayers int         `json:"totalPlayers"`
}

// Bet is a single stake against a round. CryptoAmount is locked at placement
// using the quote at that instant; CashedOut transitions false to true at
// most once.
type Bet struct {
	BetID             string     `json:"betId"`
	SessionID         string     `json:"sessionId"`
	PlayerName        string     `json:"playerName"`
	USDAmount         float64    `json:"usdAmount"`
	CryptoAmount      float64    `json:"cryptoAmount"`
	Cryptocurrency    string     `json:"cryptocurrency"`
	AutoCashout       float64    `json:"autoCashout,omitempty"`
	CashedOut         bool       `json:"cashedOut"`
	CashoutMultiplier float64    `json:"cashoutMultiplier,omitempty"`
	CashoutTime       *time.Time `json:"cashoutTime,omitempty"`
	BetTime           time.Time  `json:"betTime"`
}

// CurrentBet points a session at its bet in the active or most recent round.
type CurrentBet struct {
	RoundNumber int64  `json:"roundNumber"`
	BetID       string `json:"betId"`
	IsActive    bool   `json:"isActive"`
}

// Session is an ephemeral anonymous player. Balances are in-memory only:
// a restart resets every session to the initial balance.
type Session struct {
	SessionID     string      `json:"sessionId"`
	PlayerName    string      `json:"playerName"`
	Balance       float64     `json:"balance"`
	TotalBets     int         `json:"totalBets"`
	TotalWins     int         `json:"totalWins"`
	TotalWinnings float64     `json:"totalWinnings"`
	CurrentBet    *CurrentBet `json:"currentBet,omitempty"`
	JoinedAt      time.Time   `json:"joinedAt"`
	LastSeen      time.Time   `json:"-"`
}

// WSMessage is the envelope for every event pushed over the hub.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// GameState is the snapshot broadcast on every tick and returned by the
// state endpoint.
type GameState struct {
	Phase        string    `json:"phase"`
	Multiplier   float64   `json:"multiplier"`
	TimeLeft     float64   `json:"timeLeft"`
	CurrentRound int64     `json:"currentRound"`
	Hash         string    `json:"hash,omitempty"`
	TotalStaked  float64   `json:"totalStaked"`
	TotalPlayers int       `json:"totalPlayers"`
	History      []float64 `json:"history"`
}

// BetRequest is a bet placement command from a handler.
type BetRequest struct {
	SessionID      string  `json:"sessionId"`
	PlayerName     string  `json:"playerName,omitempty"`
	USDAmount      float64 `json:"usdAmount"`
	Cryptocurrency string  `json:"cryptocurrency"`
	AutoCashout    float64 `json:"autoCashout,omitempty"`
}

// BetResult is returned to the caller who placed the bet.
type BetResult struct {
	Bet        Bet     `json:"bet"`
	Rate       float64 `json:"rate"`
	NewBalance float64 `json:"newBalance"`
}

// CashoutResult is returned to the caller who cashed out.
type CashoutResult struct {
	Multiplier float64 `json:"multiplier"`
	WinAmount  float64 `json:"winAmount"`
	Profit     float64 `json:"profit"`
	NewBalance float64 `json:"newBalance"`
}

type BetPlacedEvent struct {
	SessionID  string  `json:"sessionId"`
	PlayerName string  `json:"playerName"`
	USDAmount  float64 `json:"usdAmount"`
	BetID      string  `json:"betId"`
}

type CashoutEvent struct {
	SessionID  string  `json:"sessionId"`
	PlayerName string  `json:"playerName"`
	Multiplier float64 `json:"multiplier"`
	WinAmount  float64 `json:"winAmount"`
}

type CrashEvent struct {
	RoundNumber int64   `json:"roundNumber"`
	CrashPoint  float64 `json:"crashPoint"`
	Seed        string  `json:"seed"`
	Hash        string  `json:"hash"`
}
