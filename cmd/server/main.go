package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mgauthier/tilewire/internal/config"
	"github.com/mgauthier/tilewire/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := []server.Option{
		server.WithHistoryLimit(cfg.HistoryLimit),
		server.WithRateLimit(cfg.BackfillRateLimit, time.Duration(cfg.BackfillRateWindow)),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		opts = append(opts, server.WithRedis(rdb))
	}

	srv := server.New(cfg.ListenAddr, opts...)
	log.Printf("Starting tilewire server on %s", cfg.ListenAddr)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
