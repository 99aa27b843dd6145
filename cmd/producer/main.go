package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

func main() {
	// Parse flags
	prefix := flag.String("prefix", getEnv("LEANMQ_PREFIX", ""), "Key prefix")
	path := flag.String("path", "", "Webhook path to publish to (required)")
	ttl := flag.Duration("ttl", 0, "Message TTL (e.g., 30s); zero means no expiration")

	var autoPayloads multiString
	flag.Var(&autoPayloads, "auto", "Send payloads and exit (can be repeated)")

	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --path is required")
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

	publish := func(payload string) error {
		var body map[string]any
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}

		var id string
		if *ttl > 0 {
			queueName, err := leanmq.PathToQueueName(leanmq.NormalizePath(*path))
			if err != nil {
				return err
			}
			q, _, err := wh.Service().CreateQueuePair(ctx, queueName)
			if err != nil {
				return err
			}
			id, err = q.Publish(ctx, body, *ttl)
			if err != nil {
				return err
			}
		} else {
			var err error
			id, err = wh.Send(ctx, *path, body)
			if err != nil {
				return err
			}
		}

		fmt.Printf("Published: %s\n", id)
		return nil
	}

	// Auto mode: send args and exit
	if len(autoPayloads) > 0 {
		for _, payload := range autoPayloads {
			if err := publish(payload); err != nil {
				fmt.Fprintf(os.Stderr, "Error publishing message: %v\n", err)
				os.Exit(1)
			}
		}
		return
	}

	// Interactive mode: read from stdin
	fmt.Printf("# Producer ready. Enter JSON payloads (one per line). Press Ctrl+C to exit.\n")
	fmt.Printf("# Publishing to: %s (ttl=%v)\n\n", *path, *ttl)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := publish(line); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
		os.Exit(1)
	}
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
