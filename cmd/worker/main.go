package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/oyinkolade/readstack/internal/config"
	"github.com/oyinkolade/readstack/internal/database"
	"github.com/oyinkolade/readstack/internal/repository"
	"github.com/oyinkolade/readstack/internal/storage"
	"github.com/oyinkolade/readstack/internal/worker"
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

	pipeline := worker.NewPipeline(repo, store)

	// The poller is the source of truth for picking up work; the asynq
	// server just reacts faster to explicit queue kicks.
	scheduler := worker.NewScheduler(pipeline, cfg.PollInterval)
	go scheduler.Run(ctx)

	// Concurrency stays at 1: one record in flight per worker instance.
	// Horizontal scale comes from running more worker processes; the
	// database claim keeps them from colliding.
	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: 1,
	})
	processor := worker.NewProcessor(pipeline)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Printf("worker polling every %s", cfg.PollInterval)
	if err := server.Run(mux); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
