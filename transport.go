// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import (
	"context"
	"time"
)

// Transport moves 64-bit words between host memory and the fabric.
//
// Implementations must honor context cancellation in every blocking call;
// the accelerator bounds each call with a deadline and reports an expired
// deadline as ErrHardwareTimeout.
type Transport interface {
	// Send writes data into dst using programmed I/O.
	Send(ctx context.Context, dst Region, data []uint64, layout Layout) error
	// SendInstructions writes an instruction buffer to the instruction port.
	SendInstructions(ctx context.Context, buf []uint64) error
	// Receive reads len(dst) words from src using programmed I/O.
	Receive(ctx context.Context, src Region, dst []uint64) error
	// DMAToRegion starts a bulk copy of src from DRAM into dst.
	DMAToRegion(ctx context.Context, dst Region, src []uint64, layout Layout) error
	// DMAFromRegion starts a bulk copy of len(dst) words from src into DRAM.
	DMAFromRegion(ctx context.Context, dst []uint64, src Region) error
	// WaitIdle blocks until the DMA engine is idle.
	WaitIdle(ctx context.Context) error
	// Execute triggers the last instruction sent, optionally passing a
	// seed to the fabric's samplers, and blocks until the stage completes.
	// It returns the number of fabric cycles the stage consumed.
	Execute(ctx context.Context, seed *uint64) (uint32, error)
}

// Clock is a monotonic tick counter. Ticks run at half the CPU clock.
type Clock interface {
	Now() uint64
}

const (
	// CPUFreqMHz is the host CPU clock.
	CPUFreqMHz = 150
	// CoprocFreqMHz is the fabric clock.
	CoprocFreqMHz = 150
	// CyclesPerTick converts Clock ticks to CPU cycles.
	CyclesPerTick = 2
)

// CPUCycles converts a tick interval to CPU cycles.
func CPUCycles(start, end uint64) uint64 {
	return CyclesPerTick * (end - start)
}

// CyclesToDuration converts CPU cycles to wall-clock time.
func CyclesToDuration(cycles uint64) time.Duration {
	return time.Duration(cycles * 1000 / CPUFreqMHz)
}

// Microseconds converts CPU cycles to microseconds.
func Microseconds(cycles uint64) float64 {
	return float64(cycles) / CPUFreqMHz
}

// SystemClock derives ticks from the host's monotonic clock.
type SystemClock struct {
	origin time.Time
}

// NewSystemClock returns a clock whose origin is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

// Now returns the ticks elapsed since the clock was created.
func (c *SystemClock) Now() uint64 {
	ns := uint64(time.Since(c.origin).Nanoseconds())
	return ns * CPUFreqMHz / (1000 * CyclesPerTick)
}
