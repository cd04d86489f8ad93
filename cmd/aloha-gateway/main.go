// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command aloha-gateway accepts harness jobs over HTTP, queues them for
// aloha-worker and serves the stored reports.
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
	httpAddr := flag.String("http", ":8080", "HTTP API address")
	flag.Parse()

	log.Printf("Aloha gateway starting: %v", cfg)
	b, err := backend.Open(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         *httpAddr,
		Handler:      NewGateway(b.Queue, b.Storage).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	err = backend.Serve(ctx, srv, 30*time.Second)
	log.Println("Shutdown complete")
	return err
}
