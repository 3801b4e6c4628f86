package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"crashpilot/internal/config"
)

func redisAvailable(addr string) bool {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	return err == nil
}

func TestNew(t *testing.T) {
	cfg := &config.Config{RedisAddr: "localhost:6379", RedisDB: 15}
	if !redisAvailable(cfg.RedisAddr) {
		t.Skip("redis not available")
	}

	svc := New(cfg)
	if svc == nil {
		t.Fatal("New() returned nil with redis available")
	}
	defer svc.Close()

	if svc.GetClient() == nil {
		t.Error("GetClient() returned nil")
	}

	stats := svc.Health()
	if stats["status"] != "up" {
		t.Errorf("health status = %s, want up", stats["status"])
	}
}

func TestNew_Unreachable(t *testing.T) {
	cfg := &config.Config{RedisAddr: "localhost:1", RedisDB: 15}
	if svc := New(cfg); svc != nil {
		svc.Close()
		t.Error("New() should return nil when redis is unreachable")
	}
}
