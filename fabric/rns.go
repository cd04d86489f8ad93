// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fabric

import (
	"math"
	mathbits "math/bits"
)

// Sign-magnitude widths of the sampled error polynomials.
const (
	VBits = 2
	EBits = 6
)

// ToResidues scales the real part of each coefficient of the forward FFT
// output by 2^scale/N, rounds it to the nearest integer and reduces it mod q.
func ToResidues(fft []uint64, scale int32, q uint64) []uint64 {
	n := len(fft) / 2
	logN := mathbits.Len(uint(n)) - 1
	out := make([]uint64, n)
	for k := range out {
		re := math.Float64frombits(fft[2*k])
		out[k] = reduceSigned(int64(math.Round(math.Ldexp(re, int(scale)-logN))), q)
	}
	return out
}

// AddSignMagnitude adds the sign-magnitude encoded e (bits wide) to m in
// place, mod q.
func AddSignMagnitude(m, e []uint64, bits uint, q uint64) {
	for i := range m {
		m[i] = addMod(m[i], Lift(e[i], bits, q), q)
	}
}

// Lift maps a sign-magnitude value of the given width to Z_q. The sign is
// the most significant bit.
func Lift(x uint64, bits uint, q uint64) uint64 {
	mag := x & (1<<(bits-1) - 1)
	if x>>(bits-1)&1 == 1 && mag != 0 {
		return q - mag
	}
	return mag
}

// LiftPoly applies Lift to every coefficient of x.
func LiftPoly(x []uint64, bits uint, q uint64) []uint64 {
	out := make([]uint64, len(x))
	for i, c := range x {
		out[i] = Lift(c, bits, q)
	}
	return out
}

// SignMagnitude encodes a small signed value in the given width.
func SignMagnitude(v int64, bits uint) uint64 {
	if v < 0 {
		return 1<<(bits-1) | uint64(-v)
	}
	return uint64(v)
}

// Centered returns the representative of x mod q in (-q/2, q/2].
func Centered(x, q uint64) int64 {
	if x > q/2 {
		return -int64(q - x)
	}
	return int64(x)
}

// ToFloat converts N residues to a 2N-word double-width buffer: each
// centered residue times 2^scale as the real part, zero imaginary part.
func ToFloat(x []uint64, scale int32, q uint64) []uint64 {
	out := make([]uint64, 2*len(x))
	for k, c := range x {
		out[2*k] = math.Float64bits(math.Ldexp(float64(Centered(c, q)), int(scale)))
	}
	return out
}

func reduceSigned(v int64, q uint64) uint64 {
	if v < 0 {
		r := uint64(-v) % q
		if r == 0 {
			return 0
		}
		return q - r
	}
	return uint64(v) % q
}

func addMod(a, b, q uint64) uint64 {
	s := a + b
	if s >= q {
		s -= q
	}
	return s
}
