package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"crashpilot/internal/config"
	"crashpilot/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[SERVER] Failed to load config: %v", err)
	}

	srv := server.New(cfg)
	srv.RegisterFiberRoutes()

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Fatalf("[SERVER] Listen failed: %v", err)
		}
	}()

	log.Printf("[SERVER] Listening on :%d", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] Shutdown error: %v", err)
	}
	if err := srv.App.Shutdown(); err != nil {
		log.Printf("[SERVER] HTTP shutdown error: %v", err)
	}

	log.Println("[SERVER] Goodbye")
}
