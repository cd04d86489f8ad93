// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fabric

import (
	"context"
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aloha"
)

var q0 = aloha.PN13.Moduli[0].Q()

func randomMessage(t *testing.T, n int, seed uint64) []uint64 {
	s, err := NewSampler(seed)
	require.NoError(t, err)
	slots := make([]complex128, n/2)
	for i := range slots {
		slots[i] = s.Disk()
	}
	msg := make([]uint64, n)
	FromComplex(msg, slots)
	return msg
}

func TestExpandProject(t *testing.T) {
	const n = 1 << 13
	msg := randomMessage(t, n, 1)

	exp := Expand(msg)
	require.Len(t, exp, 2*n)

	w := ToComplex(exp)
	slots := ToComplex(msg)
	for j, z := range slots {
		require.Equal(t, z, w[n/2+j])
		require.Equal(t, cmplx.Conj(z), w[n/2-1-j])
	}

	proj := Project(exp)
	require.Equal(t, msg, proj[n:])
	for _, word := range proj[:n] {
		require.Zero(t, word)
	}
}

func TestTransform(t *testing.T) {
	const n = 1 << 13
	f := NewFFT()
	exp := Expand(randomMessage(t, n, 2))

	fwd, err := f.Transform(exp, true)
	require.NoError(t, err)
	for _, x := range ToComplex(fwd) {
		require.InDelta(t, 0, imag(x), 1e-9*n)
	}

	back, err := f.Transform(fwd, false)
	require.NoError(t, err)
	want := ToComplex(exp)
	for i, x := range ToComplex(back) {
		require.InDelta(t, 0, cmplx.Abs(x/n-want[i]), 1e-9)
	}

	_, err = f.Transform(make([]uint64, 6), true)
	require.Error(t, err)
}

func TestResiduesRoundTrip(t *testing.T) {
	const n, scale = 1 << 13, 40
	f := NewFFT()
	fwd, err := f.Transform(Expand(randomMessage(t, n, 3)), true)
	require.NoError(t, err)

	m := ToResidues(fwd, scale, q0)
	back := ToFloat(m, -scale, q0)
	for k := 0; k < n; k++ {
		re := math.Float64frombits(fwd[2*k]) / n
		require.InDelta(t, re, math.Float64frombits(back[2*k]), math.Pow(2, -scale))
		require.Zero(t, back[2*k+1])
	}
}

func TestSignMagnitude(t *testing.T) {
	for v := int64(-21); v <= 21; v++ {
		w := SignMagnitude(v, EBits)
		require.Less(t, w, uint64(1)<<EBits)
		require.Equal(t, v, Centered(Lift(w, EBits, q0), q0))
	}
	for v := int64(-1); v <= 1; v++ {
		require.Equal(t, v, Centered(Lift(SignMagnitude(v, VBits), VBits, q0), q0))
	}
	// Negative zero lifts to zero.
	require.Zero(t, Lift(1<<(EBits-1), EBits, q0))

	m := []uint64{0, q0 - 1, 5}
	AddSignMagnitude(m, []uint64{SignMagnitude(-1, EBits), SignMagnitude(1, EBits), SignMagnitude(-5, EBits)}, EBits, q0)
	require.Equal(t, []uint64{q0 - 1, 0, 0}, m)
}

func TestSampler(t *testing.T) {
	a, err := SampleErrors(42, 1<<13)
	require.NoError(t, err)
	b, err := SampleErrors(42, 1<<13)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := SampleErrors(43, 1<<13)
	require.NoError(t, err)
	require.NotEqual(t, a.E0, c.E0)

	for i := range a.V {
		require.LessOrEqual(t, a.V[i], uint64(3))
		require.LessOrEqual(t, a.E0[i]&0x1f, uint64(BinomialEta))
		require.LessOrEqual(t, a.E1[i]&0x1f, uint64(BinomialEta))
	}

	pk1, err := SamplePK1(7, 1<<13, q0)
	require.NoError(t, err)
	for _, x := range pk1 {
		require.Less(t, x, q0)
	}
}

func TestNTTEngine(t *testing.T) {
	const n = 64
	e := NewNTTEngine()

	// X^(n-1) * X = -1 in Z_q[X]/(X^n+1).
	a := make([]uint64, n)
	b := make([]uint64, n)
	a[n-1], b[1] = 1, 1
	zero := make([]uint64, n)

	require.NoError(t, e.NTTBatch(q0, a, b))
	prod, err := e.MulAdd(q0, a, b, zero)
	require.NoError(t, err)
	require.NoError(t, e.INTTBatch(q0, prod))

	want := make([]uint64, n)
	want[0] = q0 - 1
	require.Equal(t, want, prod)

	_, err = e.Ring(n, 1<<40)
	require.Error(t, err)
}

func TestSimStall(t *testing.T) {
	s := NewSim()
	s.Stall(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.WaitIdle(ctx), context.DeadlineExceeded)

	s.Stall(false)
	require.NoError(t, s.WaitIdle(context.Background()))
}

func TestSimExecuteWithoutInstruction(t *testing.T) {
	s := NewSim()
	_, err := s.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoInstruction)
}

func TestSimExpandLayout(t *testing.T) {
	ctx := context.Background()
	const n = 1 << 13
	s := NewSim()
	msg := randomMessage(t, n, 4)

	require.NoError(t, s.DMAToRegion(ctx, aloha.RegionFFTExpand, msg, aloha.LayoutExpand(0)))
	got := make([]uint64, 2*n)
	require.NoError(t, s.Receive(ctx, aloha.RegionFFT, got))
	require.Equal(t, Expand(msg), got)

	err := s.Send(ctx, aloha.RegionFFTExpand, msg[:n/2], aloha.LayoutExpand(0))
	require.ErrorIs(t, err, aloha.ErrBufferSize)

	err = s.Send(ctx, aloha.RegionNTTV, make([]uint64, aloha.MaxDegree+1), aloha.LayoutDirect)
	require.ErrorIs(t, err, aloha.ErrBufferSize)
}

func TestSimProject(t *testing.T) {
	ctx := context.Background()
	const n = 1 << 13
	s := NewSim()
	msg := randomMessage(t, n, 5)

	require.NoError(t, s.Send(ctx, aloha.RegionFFT, Expand(msg), aloha.LayoutDirect))
	require.NoError(t, s.SendInstructions(ctx, aloha.NewInstructionBuffer(aloha.NewProjectInstruction(0))))
	cycles, err := s.Execute(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, StageCycles(aloha.NewProjectInstruction(0)), cycles)

	require.Equal(t, msg, s.Peek(aloha.RegionFFT, 2*n)[n:])
	require.Equal(t, []aloha.Instruction{aloha.NewProjectInstruction(0)}, s.Trace())
	require.NotZero(t, s.Now())
}
