package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"crashpilot/internal/cache"
	"crashpilot/internal/config"
	"crashpilot/internal/database"
	"crashpilot/internal/game"
	"crashpilot/internal/prices"
)

type FiberServer struct {
	*fiber.App

	cfg    *config.Config
	db     database.Service
	cache  cache.Service
	prices *prices.Service
	engine *game.Engine
	hub    *game.Hub
}

func New(cfg *config.Config) *FiberServer {
	db := database.New(cfg)

	cacheService := cache.New(cfg)
	var redisClient *redis.Client
	if cacheService != nil {
		redisClient = cacheService.GetClient()
	}

	priceService := prices.New(cfg, redisClient)

	hub := game.NewHub()
	engine := game.NewEngine(db, priceService, hub)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashpilot",
			AppName:       "crashpilot",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		cfg:    cfg,
		db:     db,
		cache:  cacheService,
		prices: priceService,
		engine: engine,
		hub:    hub,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("[SERVER] Failed to start game engine: %v", err)
	}

	log.Println("[SERVER] Game engine started")

	return server
}

// Shutdown stops the engine before closing external connections so no timer
// fires into a torn-down process.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.engine != nil {
		s.engine.Stop()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
