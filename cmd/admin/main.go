package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/augiwan/LeanMQ/pkg/leanmq"
)

func main() {
	// Parse flags
	prefix := flag.String("prefix", getEnv("LEANMQ_PREFIX", ""), "Key prefix")
	queue := flag.String("queue", "", "Queue name (required for queue commands)")
	count := flag.Int64("count", 10, "Entry count for peek/requeue")
	alsoDLQ := flag.Bool("dlq", true, "Also delete the paired DLQ (delete command)")
	jsonOutput := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

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

	needQueue := func() string {
		if *queue == "" {
			fmt.Fprintln(os.Stderr, "Error: --queue is required for this command")
			os.Exit(1)
		}
		return *queue
	}

	switch command {
	case "list":
		infos, err := svc.ListQueues(ctx)
		exitOn(err)
		if *jsonOutput {
			printJSON(infos)
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDLQ\tMESSAGES\tPENDING\tGROUP\tCREATED")
		for _, info := range infos {
			created := ""
			if !info.CreatedAt.IsZero() {
				created = info.CreatedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%v\t%d\t%d\t%s\t%s\n",
				info.Name, info.IsDLQ, info.MessageCount, info.PendingCount, info.ConsumerGroup, created)
		}
		w.Flush()

	case "info":
		q, err := svc.GetQueue(ctx, needQueue())
		exitOn(err)
		info, err := q.Info(ctx)
		exitOn(err)
		if *jsonOutput {
			printJSON(info)
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", info.Name)
		fmt.Fprintf(w, "DLQ:\t%v\n", info.IsDLQ)
		fmt.Fprintf(w, "Messages:\t%d\n", info.MessageCount)
		fmt.Fprintf(w, "Pending:\t%d\n", info.PendingCount)
		fmt.Fprintf(w, "Group:\t%s\n", info.ConsumerGroup)
		fmt.Fprintf(w, "First ID:\t%s\n", info.FirstID)
		fmt.Fprintf(w, "Last ID:\t%s\n", info.LastID)
		if !info.CreatedAt.IsZero() {
			fmt.Fprintf(w, "Created:\t%s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()

	case "peek":
		name := needQueue()
		dlq, err := svc.GetDeadLetterQueue(ctx, strings.TrimSuffix(name, ":dlq"))
		exitOn(err)
		msgs, err := dlq.GetMessages(ctx, *count, 0, "")
		exitOn(err)
		if *jsonOutput {
			printJSON(msgs)
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tERROR\tSOURCE\tMOVED\tBODY")
		for _, msg := range msgs {
			body, _ := json.Marshal(msg.Body)
			moved := ""
			if !msg.MovedAt.IsZero() {
				moved = msg.MovedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", msg.ID, msg.Error, msg.SourceQueue, moved, body)
		}
		w.Flush()

	case "requeue":
		name := needQueue()
		dlq, err := svc.GetDeadLetterQueue(ctx, strings.TrimSuffix(name, ":dlq"))
		exitOn(err)
		msgs, err := dlq.GetMessages(ctx, *count, 0, "")
		exitOn(err)
		ids := make([]string, len(msgs))
		for i, msg := range msgs {
			ids[i] = msg.ID
		}
		moved, err := dlq.Requeue(ctx, ids, nil)
		exitOn(err)
		fmt.Printf("Requeued: %d\n", moved)

	case "purge":
		q, err := svc.GetQueue(ctx, needQueue())
		exitOn(err)
		removed, err := q.Purge(ctx)
		exitOn(err)
		fmt.Printf("Purged: %d\n", removed)

	case "delete":
		exitOn(svc.DeleteQueue(ctx, needQueue(), *alsoDLQ))
		fmt.Println("Deleted")

	case "sweep":
		removed, err := svc.SweepExpired(ctx)
		exitOn(err)
		fmt.Printf("Swept: %d\n", removed)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: admin [flags] <command>

Commands:
  list      List all registered queues
  info      Show one queue (--queue)
  peek      Show DLQ entries for a queue (--queue, --count)
  requeue   Move DLQ entries back to the main queue (--queue, --count)
  purge     Remove all messages from a queue (--queue)
  delete    Delete a queue (--queue, --dlq)
  sweep     Remove expired messages from every queue`)
	flag.PrintDefaults()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
