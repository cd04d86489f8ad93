// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package harness validates and benchmarks an accelerator against a
// fixture.
//
// TestAloha walks the full encode, encrypt, decrypt and decode sequence
// stage by stage and checks every intermediate. FastAloha, Demo and
// TestTiming measure latency on the accelerator's clock.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/luxfi/lattice/v7/utils"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fixture"
	"github.com/luxfi/aloha/verify"
)

const (
	// RNSDeltaMax is the rounding slack allowed on the scaled message.
	RNSDeltaMax = 1
	// DefaultIterations is the number of encryptions in a demo run.
	DefaultIterations = 1000
	// ProgressEvery is the demo progress interval.
	ProgressEvery = 25
	// DefaultTimingLoops is the length of the timing busy loop.
	DefaultTimingLoops = 1 << 27
)

// FFTEpsilon is the relative tolerance of floating-domain checks.
var FFTEpsilon = math.Pow(2, -25)

// Harness runs test sequences on one accelerator.
type Harness struct {
	acc     *aloha.Accelerator
	fixture *fixture.Fixture
	clock   aloha.Clock
	out     io.Writer
}

// New returns a harness for acc checked against f. Progress and results
// are printed to out; a nil out discards them.
func New(acc *aloha.Accelerator, f *fixture.Fixture, clock aloha.Clock, out io.Writer) (*Harness, error) {
	if acc == nil || f == nil || clock == nil {
		return nil, errors.New("harness: accelerator, fixture and clock are required")
	}
	p := acc.Parameters()
	if p.N() != f.Params.N() || p.NumModuli() != f.Params.NumModuli() {
		return nil, fmt.Errorf("harness: %w: fixture is for N=%d with %d moduli, accelerator for N=%d with %d",
			aloha.ErrInvalidParameters, f.Params.N(), f.Params.NumModuli(), p.N(), p.NumModuli())
	}
	if out == nil {
		out = io.Discard
	}
	return &Harness{acc: acc, fixture: f, clock: clock, out: out}, nil
}

// TestAloha runs encode, encrypt, decrypt and decode one stage at a time
// and checks every intermediate against the fixture. Mismatches are
// collected in the report; only transport failures and precondition
// violations abort the run.
func (h *Harness) TestAloha(ctx context.Context) (*verify.Report, error) {
	rep := verify.NewReport(h.out)
	err := h.acc.Exclusive(func() error {
		if err := h.testEncrypt(ctx, rep); err != nil {
			return err
		}
		fmt.Fprintln(h.out, "Testing Encryption Done")

		if err := h.testDecrypt(ctx, rep); err != nil {
			return err
		}
		fmt.Fprintln(h.out, "Testing Decryption Done")
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("test aloha: %w", err)
	}
	return rep, nil
}

func (h *Harness) testEncrypt(ctx context.Context, rep *verify.Report) error {
	f := h.fixture
	p := h.acc.Parameters()
	n := p.N()
	result := make([]uint64, n)
	resultFFT := make([]uint64, 2*n)

	err := h.acc.DMAToRegion(ctx, aloha.RegionFFTExpand, f.Input, aloha.LayoutExpand(p.DegreeClass()))
	if err != nil {
		return err
	}
	if err := h.acc.Receive(ctx, aloha.RegionFFT, resultFFT); err != nil {
		return err
	}
	rep.Add(verify.CheckPoly(resultFFT, f.ExpandedInput, "expand result", 0, 0))

	_, err = h.acc.FFT(ctx, aloha.FFTArgs{Result: resultFFT, Forward: true, Seed: utils.Pointy(f.ErrorSeed)})
	if err != nil {
		return err
	}
	rep.Add(verify.CheckPolyFFT(resultFFT, f.FFTExpected, n, true, "fft result", FFTEpsilon, f.Scale))

	v, e0, e1 := make([]uint64, n), make([]uint64, n), make([]uint64, n)
	if err := h.acc.ReceiveErrorPolys(ctx, v, e0, e1); err != nil {
		return err
	}
	rep.Add(verify.CheckPoly(v, f.V, "v result", 0, 0))
	rep.Add(verify.CheckPoly(e0, f.E0, "e0 result", 0, 0))
	rep.Add(verify.CheckPoly(e1, f.E1, "e1 result", 0, 0))

	c0 := make([][]uint64, p.NumModuli())
	c1 := make([][]uint64, p.NumModuli())
	for i, m := range p.Moduli() {
		if err := h.acc.DMAToRegion(ctx, aloha.RegionNTTKey, f.PK0[i], aloha.LayoutDirect); err != nil {
			return err
		}

		if _, err := h.acc.RNS(ctx, aloha.RNSArgs{Message: result, Modulus: m, Scale: f.Scale}); err != nil {
			return err
		}
		rep.Add(verify.CheckPoly(result, f.MessageAfterRNS[i], "encoded_message", i, RNSDeltaMax))

		// The NTT restarts from the reference message so that a rounding
		// difference above does not cascade into every later check.
		_, err := h.acc.NTT(ctx, aloha.NTTArgs{
			Input:     f.MessageAfterRNS[i],
			Modulus:   m,
			Constants: aloha.ForwardNTTConstants(m.NTTConstants),
			Forward:   true,
			Region:    aloha.RegionNTTMessage,
			Seed:      utils.Pointy(f.PK1Seeds[i]),
		})
		if err != nil {
			return err
		}

		if _, err := h.acc.NTT(ctx, aloha.NTTArgs{Result: result, Forward: true, Skip: true, Region: aloha.RegionNTTV}); err != nil {
			return err
		}
		rep.Add(verify.CheckPoly(result, f.VNTT[i], "v_poly_ntt", i, 0))
		if _, err := h.acc.NTT(ctx, aloha.NTTArgs{Result: result, Forward: true, Skip: true, Region: aloha.RegionNTTE1}); err != nil {
			return err
		}
		rep.Add(verify.CheckPoly(result, f.E1NTT[i], "e1_poly_ntt", i, 0))

		if err := h.acc.Receive(ctx, aloha.RegionFFTIntermediate, result); err != nil {
			return err
		}
		rep.Add(verify.CheckPoly(result, f.PK1[i], "sampled pk1", i, 0))

		if _, err := h.acc.PWM(ctx, aloha.PWMArgs{Modulus: m}); err != nil {
			return err
		}

		c0[i], c1[i] = make([]uint64, n), make([]uint64, n)
		if err := h.acc.DMAFromRegion(ctx, c0[i], aloha.RegionNTTMessage); err != nil {
			return err
		}
		if err := h.acc.DMAFromRegion(ctx, c1[i], aloha.RegionNTTKey); err != nil {
			return err
		}
	}

	for i := range c0 {
		rep.Add(verify.CheckPoly(c1[i], f.C1[i], "C1", i, 0))
		rep.Add(verify.CheckPoly(c0[i], f.C0[i], "C0", i, 0))
	}
	return nil
}

func (h *Harness) testDecrypt(ctx context.Context, rep *verify.Report) error {
	f := h.fixture
	p := h.acc.Parameters()
	n := p.N()
	m := p.Modulus(0)
	result := make([]uint64, n)
	resultFFT := make([]uint64, 2*n)

	sent := []struct {
		name   string
		region aloha.Region
		poly   []uint64
	}{
		{"sent c0", aloha.RegionNTTMessage, f.C0ToDecrypt},
		{"sent c1", aloha.RegionNTTKey, f.C1ToDecrypt},
		{"sent sk", aloha.RegionNTTV, f.SK},
	}
	for _, s := range sent {
		if err := h.acc.DMAToRegion(ctx, s.region, s.poly, aloha.LayoutDirect); err != nil {
			return err
		}
	}
	for _, s := range sent {
		if err := h.acc.Receive(ctx, s.region, result); err != nil {
			return err
		}
		rep.Add(verify.CheckPoly(result, s.poly, s.name, 0, 0))
	}

	if _, err := h.acc.PWM(ctx, aloha.PWMArgs{ResultC0M: result, Modulus: m}); err != nil {
		return err
	}
	rep.Add(verify.CheckPoly(result, f.DecryptedMNTT, "decrypted msg", 0, 0))

	_, err := h.acc.NTT(ctx, aloha.NTTArgs{
		Result:    result,
		Modulus:   m,
		Constants: aloha.InverseNTTConstants(m.NTTConstants),
		Region:    aloha.RegionNTTMessage,
	})
	if err != nil {
		return err
	}
	rep.Add(verify.CheckPoly(result, f.INTTReference, "intt result", 0, 0))

	if _, err := h.acc.I2F(ctx, aloha.I2FArgs{Result: resultFFT, Modulus: m, Scale: -f.Scale}); err != nil {
		return err
	}
	rep.Add(verify.CheckPolyFFT(resultFFT, f.IFFTInput, n, false, "ifft input", FFTEpsilon, f.Scale))

	if _, err := h.acc.FFT(ctx, aloha.FFTArgs{Result: resultFFT}); err != nil {
		return err
	}
	rep.Add(verify.CheckPolyFFT(resultFFT, f.IFFTReference, n, false, "ifft output", FFTEpsilon, f.Scale))

	if _, err := h.acc.Project(ctx, aloha.ProjectArgs{Result: result}); err != nil {
		return err
	}
	rep.Add(verify.CheckPolyFFT(result, f.ProjectedReference, n/2, false, "projected output", FFTEpsilon, f.Scale))
	return nil
}
