// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import (
	"context"
	"fmt"
)

// Operands left nil are neither sent nor received. This lets a caller
// reuse data already resident on the fabric from a previous stage.

// FFTArgs configures one FFT stage invocation.
type FFTArgs struct {
	// Input is the N-word plaintext (forward, expanded on the way in) or
	// a 2N-word double-width polynomial (inverse).
	Input []uint64
	// Result receives the 2N-word content of RegionFFT.
	Result []uint64
	// Forward selects the encode transform, which also samples v, e0 and
	// e1 into RegionError from Seed.
	Forward bool
	// Skip stages and drains without triggering.
	Skip bool
	Seed *uint64
}

// RNSArgs configures one RNS scaling stage invocation.
type RNSArgs struct {
	// Input is the 2N-word output of the forward FFT.
	Input []uint64
	// Message, V and E1 receive the N-word residues mod the modulus.
	Message, V, E1 []uint64
	Modulus        Modulus
	Scale          int32
	Skip           bool
}

// NTTArgs configures one NTT stage invocation.
type NTTArgs struct {
	Input, Result []uint64
	Modulus       Modulus
	// Constants is the constant-table selector sent to the fabric as is.
	Constants uint32
	Forward   bool
	Skip      bool
	// Region is where Input is staged and Result is drained from.
	Region Region
	// Seed drives the fabric's sampling of the second public-key
	// component during a forward transform.
	Seed *uint64
}

// I2FArgs configures one integer-to-float stage invocation.
type I2FArgs struct {
	// Input is the N-word residue staged into RegionNTTMessage.
	Input []uint64
	// Result receives the 2N-word double-width polynomial.
	Result  []uint64
	Modulus Modulus
	Scale   int32
}

// PWMArgs configures one point-wise multiplication stage invocation.
// During encryption the fabric computes c0 = pk0*v + m + e0 into
// RegionNTTMessage and c1 = pk1*v + e1 into RegionNTTKey; during
// decryption it computes m = c0 + c1*sk into RegionNTTMessage.
type PWMArgs struct {
	VSK       []uint64 // RegionNTTV
	PK0C1     []uint64 // RegionNTTKey
	PK1       []uint64 // RegionFFTIntermediate
	MsgC0     []uint64 // RegionNTTMessage
	E1        []uint64 // RegionNTTE1
	ResultC0M []uint64
	ResultC1  []uint64
	Modulus   Modulus
}

// ProjectArgs configures one projection stage invocation.
type ProjectArgs struct {
	// Input is a 2N-word double-width polynomial.
	Input []uint64
	// Result receives the upper N words of the projected polynomial.
	Result []uint64
}

// FFT runs the FFT stage and returns the cycles it consumed.
func (a *Accelerator) FFT(ctx context.Context, args FFTArgs) (uint32, error) {
	n := a.params.N()
	dst, layout, inLen := RegionFFT, LayoutDirect, 2*n
	if args.Forward {
		dst, layout, inLen = RegionFFTExpand, LayoutExpand(a.params.DegreeClass()), n
	}
	if err := checkLen("fft input", args.Input, inLen); err != nil {
		return 0, err
	}
	if err := checkLen("fft result", args.Result, 2*n); err != nil {
		return 0, err
	}

	if args.Input != nil {
		if err := a.send(ctx, dst, args.Input, layout); err != nil {
			return 0, err
		}
	}

	var cycles uint32
	if !args.Skip {
		var err error
		cycles, err = a.execute(ctx, NewFFTInstruction(args.Forward, a.params.DegreeClass()), args.Seed)
		if err != nil {
			return 0, err
		}
	}

	if args.Result != nil {
		if err := a.receive(ctx, RegionFFT, args.Result); err != nil {
			return 0, err
		}
	}
	return cycles, nil
}

// RNS runs the RNS scaling stage and returns the cycles it consumed.
func (a *Accelerator) RNS(ctx context.Context, args RNSArgs) (uint32, error) {
	n := a.params.N()
	field, err := EncodeRNSScale(args.Scale, a.params.DegreeClass())
	if err != nil {
		return 0, fmt.Errorf("rns: %w", err)
	}
	if err := checkLen("rns input", args.Input, 2*n); err != nil {
		return 0, err
	}
	for _, out := range []struct {
		name string
		buf  []uint64
	}{{"rns message", args.Message}, {"rns v", args.V}, {"rns e1", args.E1}} {
		if err := checkLen(out.name, out.buf, n); err != nil {
			return 0, err
		}
	}

	if args.Input != nil {
		if err := a.send(ctx, RegionFFT, args.Input, LayoutDirect); err != nil {
			return 0, err
		}
	}

	var cycles uint32
	if !args.Skip {
		m := args.Modulus
		ins := NewRNSInstruction(field, m.K, m.RNSSelect, m.QM, a.params.DegreeClass())
		if cycles, err = a.execute(ctx, ins, nil); err != nil {
			return 0, err
		}
	}

	if err := a.drain(ctx, []drain{
		{RegionNTTMessage, args.Message},
		{RegionNTTV, args.V},
		{RegionNTTE1, args.E1},
	}); err != nil {
		return 0, err
	}
	return cycles, nil
}

// NTT runs the NTT stage on args.Region and returns the cycles it consumed.
func (a *Accelerator) NTT(ctx context.Context, args NTTArgs) (uint32, error) {
	n := a.params.N()
	if !args.Region.Valid() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRegion, args.Region)
	}
	if err := checkLen("ntt input", args.Input, n); err != nil {
		return 0, err
	}
	if err := checkLen("ntt result", args.Result, n); err != nil {
		return 0, err
	}

	if args.Input != nil {
		if err := a.send(ctx, args.Region, args.Input, LayoutDirect); err != nil {
			return 0, err
		}
	}

	var cycles uint32
	if !args.Skip {
		m := args.Modulus
		ins := NewNTTInstruction(!args.Forward, m.K, args.Constants, m.QM, a.params.DegreeClass())
		var err error
		if cycles, err = a.execute(ctx, ins, args.Seed); err != nil {
			return 0, err
		}
	}

	if args.Result != nil {
		if err := a.receive(ctx, args.Region, args.Result); err != nil {
			return 0, err
		}
	}
	return cycles, nil
}

// I2F runs the integer-to-float stage and returns the cycles it consumed.
func (a *Accelerator) I2F(ctx context.Context, args I2FArgs) (uint32, error) {
	n := a.params.N()
	if err := ValidateScale(args.Scale); err != nil {
		return 0, fmt.Errorf("i2f: %w", err)
	}
	if err := checkLen("i2f input", args.Input, n); err != nil {
		return 0, err
	}
	if err := checkLen("i2f result", args.Result, 2*n); err != nil {
		return 0, err
	}

	if args.Input != nil {
		if err := a.send(ctx, RegionNTTMessage, args.Input, LayoutDirect); err != nil {
			return 0, err
		}
	}

	m := args.Modulus
	cycles, err := a.execute(ctx, NewI2FInstruction(args.Scale, m.K, m.QM, a.params.DegreeClass()), nil)
	if err != nil {
		return 0, err
	}

	if args.Result != nil {
		if err := a.receive(ctx, RegionFFT, args.Result); err != nil {
			return 0, err
		}
	}
	return cycles, nil
}

// PWM runs the point-wise multiplication stage and returns the cycles it
// consumed.
func (a *Accelerator) PWM(ctx context.Context, args PWMArgs) (uint32, error) {
	n := a.params.N()
	inputs := []struct {
		name string
		dst  Region
		buf  []uint64
	}{
		{"pwm v/sk", RegionNTTV, args.VSK},
		{"pwm pk0/c1", RegionNTTKey, args.PK0C1},
		{"pwm pk1", RegionFFTIntermediate, args.PK1},
		{"pwm msg/c0", RegionNTTMessage, args.MsgC0},
		{"pwm e1", RegionNTTE1, args.E1},
	}
	for _, in := range inputs {
		if err := checkLen(in.name, in.buf, n); err != nil {
			return 0, err
		}
	}
	if err := checkLen("pwm c0/m result", args.ResultC0M, n); err != nil {
		return 0, err
	}
	if err := checkLen("pwm c1 result", args.ResultC1, n); err != nil {
		return 0, err
	}

	for _, in := range inputs {
		if in.buf == nil {
			continue
		}
		if err := a.send(ctx, in.dst, in.buf, LayoutDirect); err != nil {
			return 0, err
		}
	}

	m := args.Modulus
	cycles, err := a.execute(ctx, NewPWMInstruction(m.K, m.QM, a.params.DegreeClass()), nil)
	if err != nil {
		return 0, err
	}

	if err := a.drain(ctx, []drain{
		{RegionNTTKey, args.ResultC1},
		{RegionNTTMessage, args.ResultC0M},
	}); err != nil {
		return 0, err
	}
	return cycles, nil
}

// Project runs the projection stage and returns the cycles it consumed.
// Only the upper half, words [N, 2N), of the projected polynomial is
// returned in args.Result.
func (a *Accelerator) Project(ctx context.Context, args ProjectArgs) (uint32, error) {
	n := a.params.N()
	if err := checkLen("project input", args.Input, 2*n); err != nil {
		return 0, err
	}
	if err := checkLen("project result", args.Result, n); err != nil {
		return 0, err
	}

	if args.Input != nil {
		if err := a.send(ctx, RegionFFT, args.Input, LayoutDirect); err != nil {
			return 0, err
		}
	}

	cycles, err := a.execute(ctx, NewProjectInstruction(a.params.DegreeClass()), nil)
	if err != nil {
		return 0, err
	}

	if args.Result != nil {
		full := make([]uint64, 2*n)
		if err := a.receive(ctx, RegionFFT, full); err != nil {
			return 0, err
		}
		copy(args.Result, full[n:])
	}
	return cycles, nil
}

// Error region word layout: v in bits 13:12, e0 in 11:6, e1 in 5:0.
const (
	errorVShift  = 12
	errorVMask   = 0x3
	errorE0Shift = 6
	errorEMask   = 0x3f
)

// PackErrorWord packs one coefficient of v, e0 and e1 as the fabric
// stores it in RegionError.
func PackErrorWord(v, e0, e1 uint64) uint64 {
	return (v&errorVMask)<<errorVShift | (e0&errorEMask)<<errorE0Shift | e1&errorEMask
}

// UnpackErrorWord splits one RegionError word into v, e0 and e1.
func UnpackErrorWord(w uint64) (v, e0, e1 uint64) {
	return (w >> errorVShift) & errorVMask, (w >> errorE0Shift) & errorEMask, w & errorEMask
}

// ReceiveErrorPolys reads the error polynomials sampled by the last
// forward FFT. Each output is N words in the fabric's sign-magnitude
// encoding.
func (a *Accelerator) ReceiveErrorPolys(ctx context.Context, v, e0, e1 []uint64) error {
	n := a.params.N()
	for _, out := range []struct {
		name string
		buf  []uint64
	}{{"error v", v}, {"error e0", e0}, {"error e1", e1}} {
		if err := checkLen(out.name, out.buf, n); err != nil {
			return err
		}
	}
	if v == nil && e0 == nil && e1 == nil {
		return nil
	}

	raw := make([]uint64, n)
	if err := a.receive(ctx, RegionError, raw); err != nil {
		return err
	}
	for i, w := range raw {
		vi, e0i, e1i := UnpackErrorWord(w)
		if v != nil {
			v[i] = vi
		}
		if e0 != nil {
			e0[i] = e0i
		}
		if e1 != nil {
			e1[i] = e1i
		}
	}
	return nil
}

type drain struct {
	src Region
	dst []uint64
}

func (a *Accelerator) drain(ctx context.Context, ds []drain) error {
	for _, d := range ds {
		if d.dst == nil {
			continue
		}
		if err := a.receive(ctx, d.src, d.dst); err != nil {
			return err
		}
	}
	return nil
}
