package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"crashpilot/internal/game"
)

// statusForError maps the engine's error taxonomy to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrInsufficientFunds):
		return fiber.StatusBadRequest
	case errors.Is(err, game.ErrState):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrDuplicateBet):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	cacheHealth := map[string]string{"status": "disabled"}
	if s.cache != nil {
		cacheHealth = s.cache.Health()
	}

	return c.JSON(fiber.Map{
		"database": s.db.Health(),
		"cache":    cacheHealth,
		"game": fiber.Map{
			"phase":             s.engine.GameState().Phase,
			"connected_clients": s.hub.ClientCount(),
			"sessions":          s.engine.Ledger().Count(),
		},
	})
}

func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.GameState())
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := s.engine.PlaceBet(c.Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(result)
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := s.engine.CashOut(c.Context(), req.SessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(result)
}

func (s *FiberServer) getPricesHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"prices": s.prices.Quotes(c.Context()),
	})
}

func (s *FiberServer) getRecentRoundsHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rounds, err := s.db.RecentRounds(c.Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

// getRoundHandler returns one persisted round. The seed is revealed only for
// completed rounds; anything earlier would leak the crash point.
func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	roundNumber, err := strconv.ParseInt(c.Params("roundNumber"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid round number",
		})
	}

	round, err := s.db.RoundByNumber(c.Context(), roundNumber)
	if err != nil {
		return errorJSON(c, err)
	}

	resp := fiber.Map{"round": round}
	if round.Status == game.RoundCompleted {
		resp["seed"] = round.Seed
		resp["crashPoint"] = round.CrashPoint
	}
	return c.JSON(resp)
}

// verifyFairnessHandler recomputes the hash and crash point from a revealed
// seed so players can check a past round independently.
func (s *FiberServer) verifyFairnessHandler(c *fiber.Ctx) error {
	seed := c.Query("seed")
	roundNumber, err := strconv.ParseInt(c.Query("roundNumber"), 10, 64)
	if seed == "" || err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seed and roundNumber are required",
		})
	}

	hash, crashPoint := game.VerifyCrashPoint(seed, roundNumber)
	return c.JSON(fiber.Map{
		"roundNumber": roundNumber,
		"hash":        hash,
		"crashPoint":  crashPoint,
	})
}

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	return c.JSON(fiber.Map{
		"sessionId": sessionID,
		"balance":   s.engine.Ledger().Balance(sessionID),
	})
}

// setBalanceHandler overwrites a session balance. Testing/admin only; there
// is no real money anywhere in the system.
func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil || body.Balance < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session := s.engine.Ledger().SetBalance(sessionID, body.Balance)
	return c.JSON(fiber.Map{
		"sessionId": session.SessionID,
		"balance":   session.Balance,
	})
}
