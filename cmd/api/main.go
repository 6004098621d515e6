package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/oyinkolade/readstack/internal/api"
	"github.com/oyinkolade/readstack/internal/config"
	"github.com/oyinkolade/readstack/internal/database"
	"github.com/oyinkolade/readstack/internal/repository"
	"github.com/oyinkolade/readstack/internal/signing"
	"github.com/oyinkolade/readstack/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	repo := repository.NewBookRepository(pool)

	store, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	tokens := signing.NewTokenService(cfg.SigningSecret)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	srv := api.New(cfg, repo, store, tokens, queueClient)
	if err := srv.Run(ctx); err != nil {
		log.Printf("api stopped: %v", err)
		os.Exit(1)
	}
}
