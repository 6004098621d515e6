// Command readstack is the operations CLI for the processing queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oyinkolade/readstack/internal/config"
	"github.com/oyinkolade/readstack/internal/database"
	"github.com/oyinkolade/readstack/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "readstack: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "readstack",
		Short:        "ReadStack operations CLI",
		Long:         `ReadStack CLI inspects and repairs the book processing queue.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newQueueCmd())
	return cmd
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the processing queue",
	}
	cmd.AddCommand(
		newQueueStatusCmd(),
		newQueueEnqueueCmd(),
		newQueueRetryFailedCmd(),
		newQueueReapCmd(),
	)
	return cmd
}

func withRepository(ctx context.Context, fn func(context.Context, *repository.BookRepository) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, repository.NewBookRepository(pool))
}

func newQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show book counts per processing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *repository.BookRepository) error {
				status, err := repo.GetQueueStatus(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("pending:    %d\n", status.Pending)
				fmt.Printf("processing: %d\n", status.Processing)
				fmt.Printf("completed:  %d\n", status.Completed)
				fmt.Printf("failed:     %d\n", status.Failed)
				return nil
			})
		},
	}
}

func newQueueEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <book-id>",
		Short: "Queue one book for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid book id %q", args[0])
			}
			return withRepository(cmd.Context(), func(ctx context.Context, repo *repository.BookRepository) error {
				queued, err := repo.Enqueue(ctx, id)
				if err != nil {
					return err
				}
				if !queued {
					fmt.Printf("book %d not queued (missing, no stored file, or already processing/completed)\n", id)
					return nil
				}
				fmt.Printf("book %d queued\n", id)
				return nil
			})
		},
	}
}

func newQueueRetryFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Reset all failed books back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *repository.BookRepository) error {
				n, err := repo.RetryFailed(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("requeued %d failed book(s)\n", n)
				return nil
			})
		},
	}
}

func newQueueReapCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Requeue books stuck in processing by a crashed worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(ctx context.Context, repo *repository.BookRepository) error {
				n, err := repo.ResetStale(ctx, olderThan)
				if err != nil {
					return err
				}
				fmt.Printf("requeued %d stale book(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only requeue claims older than this")
	return cmd
}
