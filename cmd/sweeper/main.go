package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

// Runs the expiration sweep on a cron schedule. The queue library leaves
// sweep scheduling to the embedding application; this binary is that
// application for deployments without their own scheduler.
func main() {
	// Parse flags
	prefix := flag.String("prefix", getEnv("LEANMQ_PREFIX", ""), "Key prefix")
	schedule := flag.String("schedule", "@every 1m", "Cron schedule for sweeps (e.g., '@every 30s', '*/5 * * * *')")
	once := flag.Bool("once", false, "Run a single sweep and exit")

	flag.Parse()

	cfg := leanmq.ConfigFromEnv()
	cfg.Prefix = *prefix

	svc, err := leanmq.NewQueueService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx := context.Background()
	if err := svc.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to Redis at %s:%d: %v\n", cfg.Redis.Host, cfg.Redis.Port, err)
		os.Exit(1)
	}

	sweep := func() {
		removed, err := svc.SweepExpired(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] Sweep error: %v\n", time.Now().Format(time.RFC3339), err)
			return
		}
		fmt.Printf("[%s] Swept: %d\n", time.Now().Format(time.RFC3339), removed)
	}

	if *once {
		sweep()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, sweep); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid schedule '%s': %v\n", *schedule, err)
		os.Exit(1)
	}
	c.Start()

	fmt.Printf("[%s] Sweeper running (schedule: %s)\n", time.Now().Format(time.RFC3339), *schedule)

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()

	fmt.Printf("[%s] Shutting down...\n", time.Now().Format(time.RFC3339))
	<-c.Stop().Done()
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
