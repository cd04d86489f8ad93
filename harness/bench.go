// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/aloha"
)

// Timing is the outcome of one FastAloha run. Cycle counts are CPU cycles
// measured on the harness clock.
type Timing struct {
	EncryptCycles uint64 `json:"encrypt_cycles"`
	DecryptCycles uint64 `json:"decrypt_cycles"`
	// Fabric cycles reported by the stages.
	EncryptFabric aloha.Cycles `json:"encrypt_fabric_cycles"`
	DecryptFabric aloha.Cycles `json:"decrypt_fabric_cycles"`
}

// Encrypt returns the encode+encrypt latency.
func (t Timing) Encrypt() time.Duration { return aloha.CyclesToDuration(t.EncryptCycles) }

// Decrypt returns the decrypt+decode latency.
func (t Timing) Decrypt() time.Duration { return aloha.CyclesToDuration(t.DecryptCycles) }

func (h *Harness) encryptArgs() aloha.EncryptArgs {
	f := h.fixture
	p := h.acc.Parameters()
	c0 := make([][]uint64, p.NumModuli())
	c1 := make([][]uint64, p.NumModuli())
	for i := range c0 {
		c0[i] = make([]uint64, p.N())
		c1[i] = make([]uint64, p.N())
	}
	return aloha.EncryptArgs{
		Plaintext: f.Input,
		ErrorSeed: f.ErrorSeed,
		Keys:      f.Keys(),
		Scale:     f.Scale,
		C0:        c0,
		C1:        c1,
	}
}

// FastAloha runs encode+encrypt and decrypt+decode end to end without
// intermediate checks and reports their latency.
func (h *Harness) FastAloha(ctx context.Context) (Timing, error) {
	var t Timing
	f := h.fixture

	if err := h.acc.Init(ctx); err != nil {
		return t, err
	}

	args := h.encryptArgs()
	start := h.clock.Now()
	fabric, err := h.acc.Encrypt(ctx, args)
	if err != nil {
		return t, err
	}
	t.EncryptCycles = aloha.CPUCycles(start, h.clock.Now())
	t.EncryptFabric = fabric
	fmt.Fprintf(h.out, "Encode+encrypt in hardware took %d CPU cc -> %.0f us\n",
		t.EncryptCycles, aloha.Microseconds(t.EncryptCycles))

	plain := make([]uint64, h.acc.Parameters().N())
	start = h.clock.Now()
	fabric, err = h.acc.Decrypt(ctx, aloha.DecryptArgs{
		C0:        f.C0ToDecrypt,
		C1:        f.C1ToDecrypt,
		SK:        f.SK,
		Plaintext: plain,
		Scale:     f.Scale,
	})
	if err != nil {
		return t, err
	}
	t.DecryptCycles = aloha.CPUCycles(start, h.clock.Now())
	t.DecryptFabric = fabric
	fmt.Fprintf(h.out, "Decode+decrypt in hardware took %d CPU cc -> %.0f us\n",
		t.DecryptCycles, aloha.Microseconds(t.DecryptCycles))
	return t, nil
}

// HardwareResult is the outcome of TestHardware.
type HardwareResult struct {
	OK          bool   `json:"ok"`
	TotalCycles uint64 `json:"total_cycles"`
	Timing      Timing `json:"timing"`
	Failures    int    `json:"failures"`
}

// TestHardware runs TestAloha followed by FastAloha and prints the
// overall verdict.
func (h *Harness) TestHardware(ctx context.Context) (HardwareResult, error) {
	var res HardwareResult
	start := h.clock.Now()

	rep, err := h.TestAloha(ctx)
	if err != nil {
		return res, err
	}
	if res.Timing, err = h.FastAloha(ctx); err != nil {
		return res, err
	}

	res.TotalCycles = aloha.CPUCycles(start, h.clock.Now())
	res.Failures = len(rep.Failures())
	res.OK = res.Failures == 0

	fmt.Fprintf(h.out, "Overall test in hardware took %d CPU cc -> %.0f us\n",
		res.TotalCycles, aloha.Microseconds(res.TotalCycles))
	const rule = "#################################"
	if res.OK {
		fmt.Fprintf(h.out, "%s\n#              OK!              #\n%s\n", rule, rule)
	} else {
		fmt.Fprintf(h.out, "%s\n# ERRORS OCCURED DURING TESTING #\n%s\n", rule, rule)
	}
	return res, nil
}

// Demo runs iterations encode+encrypts back to back, printing progress
// every ProgressEvery iterations, and returns the latency statistics.
func (h *Harness) Demo(ctx context.Context, iterations int) (LatencyStats, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if err := h.acc.Init(ctx); err != nil {
		return LatencyStats{}, err
	}

	args := h.encryptArgs()
	samples := make([]float64, 0, iterations)
	start := h.clock.Now()
	for k := 0; k < iterations; k++ {
		if err := ctx.Err(); err != nil {
			return LatencyStats{}, err
		}
		t0 := h.clock.Now()
		if _, err := h.acc.Encrypt(ctx, args); err != nil {
			return LatencyStats{}, fmt.Errorf("demo iteration %d: %w", k, err)
		}
		samples = append(samples, aloha.Microseconds(aloha.CPUCycles(t0, h.clock.Now())))

		if k%ProgressEvery == 0 && k != 0 {
			elapsed := aloha.Microseconds(aloha.CPUCycles(start, h.clock.Now())) / 1e6
			fmt.Fprintf(h.out, "Done %d Encode+Encrypt in %.0f seconds\n", k, elapsed)
		}
	}
	return NewLatencyStats(samples)
}

var timingSink uint32

// TestTiming times a busy loop of the given length on the harness clock,
// as a sanity check of the clock configuration.
func (h *Harness) TestTiming(loops uint32) uint64 {
	if loops == 0 {
		loops = DefaultTimingLoops
	}
	fmt.Fprint(h.out, "\n\nStart timing test\n\n")

	start := h.clock.Now()
	var acc uint32
	for i := uint32(0); i < loops; i++ {
		acc += i
	}
	end := h.clock.Now()
	timingSink = acc

	cycles := aloha.CPUCycles(start, end)
	fmt.Fprintf(h.out, "Time consumed: %d cpu cc, %.0f us\n", cycles, aloha.Microseconds(cycles))
	return cycles
}
