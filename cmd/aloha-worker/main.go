// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command aloha-worker runs harness jobs from a Redis queue on
// simulator-backed accelerators and stores their reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/aloha/internal/backend"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg backend.Config
	cfg.RegisterFlags(flag.CommandLine)
	var (
		numWorkers  = flag.Int("workers", 4, "number of worker goroutines")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
		timeout     = flag.Duration("timeout", 5*time.Second, "bound on every blocking accelerator call")
	)
	flag.Parse()

	log.Printf("Aloha worker starting: %d workers, %v", *numWorkers, cfg)
	b, err := backend.Open(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := NewWorkerPool(*numWorkers, b.Queue, b.Storage, *timeout)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	err = backend.Serve(ctx, &http.Server{Addr: *metricsAddr, Handler: pool.Handler()}, 30*time.Second)
	if perr := pool.Stop(); perr != nil {
		log.Printf("Worker pool shutdown error: %v", perr)
	}
	log.Println("Shutdown complete")
	return err
}
