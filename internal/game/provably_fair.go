package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
)

const (
	MinCrashPoint = 1.01
	MaxCrashPoint = 120.00

	// Euler truncated to 9 significant digits. This exact constant is part of
	// the fairness commitment: generation, third-party verification and the
	// multiplier curve must all agree on it.
	Euler = 2.71828183

	GrowthRate = 0.08
)

// FairRound is the provably fair material for a single round: a secret seed,
// its public commitment and the crash point derived from both.
type FairRound struct {
	Seed       string
	Hash       string
	CrashPoint float64
}

// GenerateFairRound draws a fresh 32-byte seed and derives the round's
// commitment hash and crash point. The crash point is fixed here and never
// recomputed for the life of the round.
func GenerateFairRound(roundNumber int64) FairRound {
	seed := GenerateSeed()
	hash := HashRound(seed, roundNumber)
	return FairRound{
		Seed:       seed,
		Hash:       hash,
		CrashPoint: CrashPointFromHash(hash),
	}
}

// GenerateSeed returns 32 cryptographically secure random bytes, hex encoded.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashRound computes the public commitment: SHA256 of the seed concatenated
// with the decimal round number.
func HashRound(seed string, roundNumber int64) string {
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write([]byte(strconv.FormatInt(roundNumber, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// CrashPointFromHash maps a commitment hash to a crash point in
// [MinCrashPoint, MaxCrashPoint]. The leading 13 hex characters (52 bits) are
// normalized to r in [0,1); the cube-root curve concentrates mass near low
// multipliers with a long tail.
func CrashPointFromHash(hash string) float64 {
	h, err := strconv.ParseUint(hash[:13], 16, 64)
	if err != nil {
		// Only reachable with a non-hex hash, which HashRound never produces.
		return MinCrashPoint
	}

	r := float64(h) / math.Pow(2, 52)
	raw := math.Floor((100*Euler-100)/math.Cbrt(r)) / 100

	if raw < MinCrashPoint {
		return MinCrashPoint
	}
	if raw > MaxCrashPoint {
		return MaxCrashPoint
	}
	return raw
}

// VerifyCrashPoint recomputes a round's hash and crash point from a revealed
// seed. Any third party can call this after the seed reveal to confirm the
// round was not manipulated.
func VerifyCrashPoint(seed string, roundNumber int64) (hash string, crashPoint float64) {
	hash = HashRound(seed, roundNumber)
	return hash, CrashPointFromHash(hash)
}
