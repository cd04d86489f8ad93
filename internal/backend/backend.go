// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package backend opens the job queue and report storage shared by the
// worker and the gateway, and runs their HTTP endpoints.
package backend

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/luxfi/aloha/internal/queue"
	"github.com/luxfi/aloha/internal/storage"
)

// ReportNamespace is the Redis storage namespace of run reports.
const ReportNamespace = "reports"

// Config locates the queue and the report store.
type Config struct {
	RedisAddr string
	RedisDB   int
	Queue     string
	// StoragePath selects file storage; empty keeps reports in Redis.
	StoragePath string
}

// RegisterFlags binds the configuration to command-line flags.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.RedisAddr, "redis", "localhost:6379", "Redis address")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database number")
	fs.StringVar(&c.Queue, "queue", "default", "queue name")
	fs.StringVar(&c.StoragePath, "storage", "", "report storage path (empty: store reports in Redis)")
}

func (c Config) String() string {
	where := "redis"
	if c.StoragePath != "" {
		where = c.StoragePath
	}
	return fmt.Sprintf("redis=%s db=%d queue=%q reports=%s", c.RedisAddr, c.RedisDB, c.Queue, where)
}

// Backend is an open queue and report store.
type Backend struct {
	Queue   queue.Queue
	Storage storage.Storage
}

// Open connects to the queue and the report store.
func Open(cfg Config) (*Backend, error) {
	q, err := queue.NewRedisQueue(queue.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}

	var store storage.Storage
	if cfg.StoragePath != "" {
		store, err = storage.NewFileStorage(cfg.StoragePath)
	} else {
		store, err = storage.NewRedisStorage(storage.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, ReportNamespace)
	}
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("create storage: %w", err)
	}
	return &Backend{Queue: q, Storage: store}, nil
}

// Close releases both connections.
func (b *Backend) Close() error {
	return errors.Join(b.Storage.Close(), b.Queue.Close())
}

// Serve runs srv until ctx is done and then shuts it down, waiting at most
// grace for open requests. A listener failure is returned immediately.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Printf("HTTP server listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
