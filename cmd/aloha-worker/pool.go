// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fixture"
	"github.com/luxfi/aloha/harness"
	"github.com/luxfi/aloha/internal/queue"
	"github.com/luxfi/aloha/internal/storage"
)

// Report is the stored outcome of one job.
type Report struct {
	JobID    string                  `json:"job_id"`
	Kind     queue.Kind              `json:"kind"`
	Params   aloha.ParametersLiteral `json:"params"`
	Hardware *harness.HardwareResult `json:"hardware,omitempty"`
	Latency  *harness.LatencyStats   `json:"latency,omitempty"`
	Cycles   uint64                  `json:"timing_cycles,omitempty"`
	Output   string                  `json:"output"`
	Finished time.Time               `json:"finished"`
}

// WorkerPool runs harness jobs. Each job gets its own simulator, so jobs
// never share an accelerator.
type WorkerPool struct {
	numWorkers int
	queue      queue.Queue
	storage    storage.Storage
	timeout    time.Duration

	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
	successCount atomic.Int64
	failureCount atomic.Int64
	activeCount  atomic.Int64
}

// NewWorkerPool returns a stopped pool.
func NewWorkerPool(numWorkers int, q queue.Queue, store storage.Storage, timeout time.Duration) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{numWorkers: numWorkers, queue: q, storage: store, timeout: timeout}
}

// Start starts the worker pool.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("pool already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	log.Printf("Starting %d workers", p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop gracefully stops the worker pool.
func (p *WorkerPool) Stop() error {
	if !p.running.Load() {
		return nil
	}

	log.Println("Stopping worker pool...")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool stopped")
	case <-time.After(30 * time.Second):
		return errors.New("shutdown timeout")
	}

	p.running.Store(false)
	return nil
}

// Handler serves /health and the job counters on /metrics.
func (p *WorkerPool) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# HELP aloha_jobs_total Total harness jobs\n")
		fmt.Fprintf(w, "# TYPE aloha_jobs_total counter\n")
		fmt.Fprintf(w, "aloha_jobs_total{status=\"success\"} %d\n", p.successCount.Load())
		fmt.Fprintf(w, "aloha_jobs_total{status=\"failure\"} %d\n", p.failureCount.Load())
		fmt.Fprintf(w, "# HELP aloha_jobs_active Jobs in progress\n")
		fmt.Fprintf(w, "# TYPE aloha_jobs_active gauge\n")
		fmt.Fprintf(w, "aloha_jobs_active %d\n", p.activeCount.Load())
	})
	return mux
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		p.processJob(ctx, id, job)
	}
}

func (p *WorkerPool) fail(ctx context.Context, job *queue.Job, format string, args ...any) {
	job.Status = queue.StatusFailed
	job.Error = fmt.Sprintf(format, args...)
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("job %s: failed to update status: %v", job.ID, err)
	}
	p.failureCount.Add(1)
}

func (p *WorkerPool) processJob(ctx context.Context, workerID int, job *queue.Job) {
	log.Printf("Worker %d: processing job %s (kind=%s)", workerID, job.ID, job.Kind)
	p.activeCount.Add(1)
	defer p.activeCount.Add(-1)

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job status: %v", workerID, err)
	}

	rep, err := p.runJob(ctx, job)
	if err != nil {
		p.fail(ctx, job, "%s: %v", job.Kind, err)
		return
	}

	data, err := json.Marshal(rep)
	if err != nil {
		p.fail(ctx, job, "marshal report: %v", err)
		return
	}
	handle, err := p.storage.Store(ctx, data)
	if err != nil {
		p.fail(ctx, job, "store report: %v", err)
		return
	}

	job.Status = queue.StatusCompleted
	job.ReportHandle = string(handle)
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job result: %v", workerID, err)
	}

	p.successCount.Add(1)
	log.Printf("Worker %d: job %s completed", workerID, job.ID)
}

func (p *WorkerPool) runJob(ctx context.Context, job *queue.Job) (*Report, error) {
	if !job.Kind.Valid() {
		return nil, fmt.Errorf("unsupported job kind %q", job.Kind)
	}
	params, err := harness.Preset(job.LogN, 0)
	if err != nil {
		return nil, err
	}
	f, err := fixture.Generate(params, fixture.Options{Seed: job.Seed, ErrorSeed: job.ErrorSeed})
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	h, _, err := harness.NewSimulated(f, aloha.Config{Timeout: p.timeout}, &out)
	if err != nil {
		return nil, err
	}

	rep := &Report{JobID: job.ID, Kind: job.Kind, Params: params.Literal()}
	switch job.Kind {
	case queue.KindTest:
		res, err := h.TestHardware(ctx)
		if err != nil {
			return nil, err
		}
		rep.Hardware = &res
	case queue.KindDemo:
		ls, err := h.Demo(ctx, job.Iterations)
		if err != nil {
			return nil, err
		}
		rep.Latency = &ls
	case queue.KindTiming:
		rep.Cycles = h.TestTiming(uint32(job.Iterations))
	}
	rep.Output = out.String()
	rep.Finished = time.Now()
	return rep, nil
}
