package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

// A demo webhook service: registers echo handlers for the given paths and
// processes messages until interrupted.
func main() {
	// Parse flags
	prefix := flag.String("prefix", getEnv("LEANMQ_PREFIX", ""), "Key prefix")
	batch := flag.Int64("batch", 10, "Messages claimed per route per iteration")
	block := flag.Duration("block", time.Second, "Blocking claim window (keep small for responsive shutdown)")
	interval := flag.Duration("interval", time.Second, "Delay between idle iterations")
	failRate := flag.Float64("fail-rate", 0.0, "Fraction [0,1] of messages to randomly fail (exercises the DLQ)")
	processTime := flag.Duration("process-time", 0, "Simulated processing time (e.g., 2s)")

	var paths multiString
	flag.Var(&paths, "route", "Webhook path to handle (can be repeated, required)")

	flag.Parse()

	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one --route is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := leanmq.ConfigFromEnv()
	cfg.Prefix = *prefix

	wh, err := leanmq.NewWebhook(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer wh.Close()

	// Test connection
	ctx := context.Background()
	if err := wh.Service().Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to Redis at %s:%d: %v\n", cfg.Redis.Host, cfg.Redis.Port, err)
		os.Exit(1)
	}

	// Register an echo handler per path
	for _, path := range paths {
		path := path
		handler := func(ctx context.Context, msg *leanmq.Message) error {
			timestamp := time.Now().Format(time.RFC3339)
			fmt.Printf("[%s] <- %s | %s | %v\n", timestamp, msg.ID, msg.Path, msg.Body)

			if *processTime > 0 {
				time.Sleep(*processTime)
			}

			if *failRate > 0 && rand.Float64() < *failRate {
				err := fmt.Errorf("simulated error (fail-rate=%.2f)", *failRate)
				fmt.Printf("[%s] FAIL %s: %v\n", timestamp, msg.ID, err)
				return err
			}

			fmt.Printf("[%s] ACK %s\n", timestamp, msg.ID)
			return nil
		}

		if err := wh.Register(ctx, path, handler); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering route %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("[%s] Registered route %s\n", time.Now().Format(time.RFC3339), path)
	}

	// The service installs its own SIGINT/SIGTERM hook; this context is only
	// here so the main goroutine has something to wait on.
	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc := wh.RunService(leanmq.ServiceOptions{
		BatchSize:       *batch,
		Block:           *block,
		ProcessInterval: *interval,
	})

	fmt.Printf("[%s] Webhook service running (%d routes)\n", time.Now().Format(time.RFC3339), len(paths))

	<-sigCtx.Done()

	fmt.Printf("[%s] Shutting down gracefully...\n", time.Now().Format(time.RFC3339))
	svc.Stop()
	fmt.Printf("[%s] Shutdown complete\n", time.Now().Format(time.RFC3339))
}

// multiString allows multiple occurrences of the same flag
type multiString []string

func (m *multiString) String() string {
	return strings.Join(*m, ",")
}

func (m *multiString) Set(value string) error {
	*m = append(*m, value)
	return nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
