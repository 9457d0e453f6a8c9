package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/config"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/queue/nats"
)

// ragctl sends one question to the worker pool over NATS and prints the
// JSON answer.
func main() {
	userID := flag.String("user", "", "user id; when set the question runs as a conversational turn")
	timeout := flag.Duration("timeout", 0, "request timeout (default: invocation timeout plus 5s)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ragctl [-user id] [-timeout d] question...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *timeout <= 0 {
		*timeout = time.Duration(cfg.InvocationTimeoutSeconds+5) * time.Second
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{RequestTimeout: *timeout})
	if err != nil {
		log.Fatalf("connect nats: %v", err)
	}
	defer queue.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answer, err := queue.Ask(ctx, nats.QueryRequest{Question: question, UserID: *userID})
	if err != nil {
		log.Fatalf("ask: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(answer); err != nil {
		log.Fatalf("encode answer: %v", err)
	}
}
