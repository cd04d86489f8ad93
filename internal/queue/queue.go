// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package queue provides the job queue consumed by the harness worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors.
var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrJobNotFound = errors.New("job not found")
	ErrClosed      = errors.New("queue closed")
)

// JobStatus represents the state of a job.
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Kind selects the harness routine a job runs.
type Kind string

const (
	KindDemo   Kind = "demo"
	KindTest   Kind = "test"
	KindTiming Kind = "timing"
)

// Valid reports whether k names a known routine.
func (k Kind) Valid() bool {
	switch k {
	case KindDemo, KindTest, KindTiming:
		return true
	}
	return false
}

// Job is one harness run request.
type Job struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	// LogN selects the degree, 13 to 15. Zero uses 13.
	LogN int `json:"log_n,omitempty"`
	// Iterations is the demo length or the timing loop count.
	Iterations int `json:"iterations,omitempty"`
	// Seed and ErrorSeed select the fixture.
	Seed      uint64 `json:"seed,omitempty"`
	ErrorSeed uint64 `json:"error_seed,omitempty"`

	ReportHandle string    `json:"report_handle,omitempty"`
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Queue defines the interface for job queue operations.
type Queue interface {
	// Push adds a job to the queue.
	Push(ctx context.Context, job *Job) error
	// Pop blocks until a job is available and removes it from the queue.
	Pop(ctx context.Context) (*Job, error)
	// Update updates job status.
	Update(ctx context.Context, job *Job) error
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)
	// Close closes the queue connection.
	Close() error
}

const jobTTL = 24 * time.Hour

// RedisQueue implements Queue using Redis.
type RedisQueue struct {
	client    *redis.Client
	queueKey  string
	jobPrefix string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(cfg RedisConfig, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisQueue{
		client:    client,
		queueKey:  "aloha:queue:" + queueName,
		jobPrefix: "aloha:job:",
	}, nil
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	stampPending(job)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.jobPrefix+job.ID, data, jobTTL)
	pipe.LPush(ctx, q.queueKey, job.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	result, err := q.client.BRPop(ctx, 0, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}

	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return q.Get(ctx, result[1])
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.client.Set(ctx, q.jobPrefix+job.ID, data, jobTTL).Err(); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func stampPending(job *Job) {
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending
}

// MemoryQueue implements Queue in process. Jobs are popped in push order.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]Job
	pending chan string
	closed  chan struct{}
	once    sync.Once
}

// NewMemoryQueue returns a queue holding up to capacity pending jobs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		jobs:    make(map[string]Job),
		pending: make(chan string, capacity),
		closed:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, job *Job) error {
	stampPending(job)

	q.mu.Lock()
	q.jobs[job.ID] = *job
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	select {
	case id := <-q.pending:
		return q.Get(ctx, id)
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	q.jobs[job.ID] = *job
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
