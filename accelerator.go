// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Config holds accelerator driver configuration.
type Config struct {
	// Timeout bounds every blocking transport call (default: 5s).
	Timeout time.Duration
	// Logger receives stage and pipeline progress (default: discarded).
	Logger *log.Logger
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
		Logger:  log.New(io.Discard, "", 0),
	}
}

// Accelerator is the host-side driver of one accelerator instance.
//
// The fabric has no hazard tracking between stages: a region must be fully
// written before the next stage reads it, and this is enforced purely by
// call order. Encrypt and Decrypt therefore hold the accelerator for their
// whole duration; callers composing stages by hand use Exclusive.
type Accelerator struct {
	params    Parameters
	transport Transport
	timeout   time.Duration
	logger    *log.Logger

	mu sync.Mutex
}

// NewAccelerator creates a driver for params over transport.
func NewAccelerator(params Parameters, transport Transport, cfg Config) (*Accelerator, error) {
	if transport == nil {
		return nil, errors.New("nil transport")
	}
	if params.NumModuli() == 0 {
		return nil, fmt.Errorf("%w: zero-value parameters", ErrInvalidParameters)
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Accelerator{
		params:    params,
		transport: transport,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}, nil
}

// Parameters returns the accelerator's parameters.
func (a *Accelerator) Parameters() Parameters { return a.params }

// Init waits for the DMA engine to come up.
func (a *Accelerator) Init(ctx context.Context) error {
	if err := a.waitIdle(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	a.logger.Printf("accelerator ready: N=%d, %d moduli", a.params.N(), a.params.NumModuli())
	return nil
}

// Exclusive runs fn while holding the accelerator.
func (a *Accelerator) Exclusive(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}

// bounded runs one transport call under the configured deadline.
func (a *Accelerator) bounded(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", what, ErrHardwareTimeout)
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (a *Accelerator) send(ctx context.Context, dst Region, data []uint64, layout Layout) error {
	return a.bounded(ctx, "send "+dst.String(), func(ctx context.Context) error {
		return a.transport.Send(ctx, dst, data, layout)
	})
}

func (a *Accelerator) receive(ctx context.Context, src Region, dst []uint64) error {
	return a.bounded(ctx, "receive "+src.String(), func(ctx context.Context) error {
		return a.transport.Receive(ctx, src, dst)
	})
}

func (a *Accelerator) waitIdle(ctx context.Context) error {
	return a.bounded(ctx, "wait for DMA", a.transport.WaitIdle)
}

// execute sends ins and triggers it.
func (a *Accelerator) execute(ctx context.Context, ins Instruction, seed *uint64) (uint32, error) {
	err := a.bounded(ctx, "send instruction", func(ctx context.Context) error {
		return a.transport.SendInstructions(ctx, NewInstructionBuffer(ins))
	})
	if err != nil {
		return 0, err
	}

	var cycles uint32
	err = a.bounded(ctx, "execute "+ins.Opcode().String(), func(ctx context.Context) error {
		var err error
		cycles, err = a.transport.Execute(ctx, seed)
		return err
	})
	if err != nil {
		return 0, err
	}
	a.logger.Printf("%v: %d cycles", ins, cycles)
	return cycles, nil
}

// Send writes data into dst.
func (a *Accelerator) Send(ctx context.Context, dst Region, data []uint64) error {
	if !dst.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidRegion, dst)
	}
	return a.send(ctx, dst, data, LayoutDirect)
}

// Receive reads len(dst) words from src.
func (a *Accelerator) Receive(ctx context.Context, src Region, dst []uint64) error {
	if !src.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidRegion, src)
	}
	return a.receive(ctx, src, dst)
}

// DMAToRegion copies src from DRAM into dst and waits for the DMA engine.
func (a *Accelerator) DMAToRegion(ctx context.Context, dst Region, src []uint64, layout Layout) error {
	if !dst.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidRegion, dst)
	}
	err := a.bounded(ctx, "DMA to "+dst.String(), func(ctx context.Context) error {
		return a.transport.DMAToRegion(ctx, dst, src, layout)
	})
	if err != nil {
		return err
	}
	return a.waitIdle(ctx)
}

// DMAFromRegion copies len(dst) words from src into DRAM and waits for the
// DMA engine.
func (a *Accelerator) DMAFromRegion(ctx context.Context, dst []uint64, src Region) error {
	if !src.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidRegion, src)
	}
	err := a.bounded(ctx, "DMA from "+src.String(), func(ctx context.Context) error {
		return a.transport.DMAFromRegion(ctx, dst, src)
	})
	if err != nil {
		return err
	}
	return a.waitIdle(ctx)
}

func checkLen(name string, buf []uint64, want int) error {
	if buf != nil && len(buf) != want {
		return fmt.Errorf("%w: %s has %d words, want %d", ErrBufferSize, name, len(buf), want)
	}
	return nil
}
