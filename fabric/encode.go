// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package fabric models the arithmetic of the Aloha-HE fabric in software.
//
// The model is the single source of truth for reference vectors: package
// fixture computes expected intermediates with it and Sim executes
// instructions with it, so a correct driver reproduces every reference
// bit for bit.
//
// Floating-domain buffers hold N complex values as 2N words of interleaved
// IEEE-754 bit patterns (real, imaginary). Integer-domain buffers hold N
// residues.
package fabric

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ToComplex decodes a double-width buffer into complex values.
func ToComplex(buf []uint64) []complex128 {
	out := make([]complex128, len(buf)/2)
	for i := range out {
		out[i] = complex(math.Float64frombits(buf[2*i]), math.Float64frombits(buf[2*i+1]))
	}
	return out
}

// FromComplex encodes vals into dst as a double-width buffer.
func FromComplex(dst []uint64, vals []complex128) {
	for i, v := range vals {
		dst[2*i] = math.Float64bits(real(v))
		dst[2*i+1] = math.Float64bits(imag(v))
	}
}

// Expand lays an N-word message (N/2 complex slots) out as the 2N-word
// conjugate-symmetric FFT input: slot j goes to position N/2+j and its
// conjugate to position N/2-1-j.
func Expand(msg []uint64) []uint64 {
	n := len(msg)
	slots := ToComplex(msg)
	half := n / 2

	w := make([]complex128, n)
	for j, z := range slots {
		w[half+j] = z
		w[half-1-j] = cmplx.Conj(z)
	}

	out := make([]uint64, 2*n)
	FromComplex(out, w)
	return out
}

// Project folds a 2N-word decoded polynomial back onto its slots. The
// result keeps (w[N/2+j] + conj(w[N/2-1-j]))/2 at position N/2+j and
// zeroes the lower half, so words [N, 2N) carry the N/2 slots.
func Project(buf []uint64) []uint64 {
	w := ToComplex(buf)
	n := len(w)
	half := n / 2

	p := make([]complex128, n)
	for j := 0; j < half; j++ {
		sum := w[half+j] + cmplx.Conj(w[half-1-j])
		p[half+j] = complex(real(sum)/2, imag(sum)/2)
	}

	out := make([]uint64, 2*n)
	FromComplex(out, p)
	return out
}

// FFT computes the fabric's twisted complex transforms and caches one
// gonum plan per degree.
type FFT struct {
	mu    sync.Mutex
	plans map[int]*fourier.CmplxFFT
}

// NewFFT returns an empty transform cache.
func NewFFT() *FFT {
	return &FFT{plans: make(map[int]*fourier.CmplxFFT)}
}

func (f *FFT) plan(n int) *fourier.CmplxFFT {
	p, ok := f.plans[n]
	if !ok {
		p = fourier.NewCmplxFFT(n)
		f.plans[n] = p
	}
	return p
}

// Transform returns the transform of the 2N-word buffer buf.
//
// Forward computes X_k = e^{-i*pi*k/N} * sum_j w_j e^{-2*pi*i*j*k/N}, which
// is real for conjugate-symmetric input. Inverse computes
// w_j = sum_k x_k e^{i*pi*k/N} e^{2*pi*i*j*k/N}. Neither is normalized.
func (f *FFT) Transform(buf []uint64, forward bool) ([]uint64, error) {
	if len(buf)%2 != 0 || !isPow2(len(buf)/2) {
		return nil, fmt.Errorf("transform: %d words is not a power-of-two double-width buffer", len(buf))
	}
	in := ToComplex(buf)
	n := len(in)

	f.mu.Lock()
	defer f.mu.Unlock()
	plan := f.plan(n)

	out := make([]complex128, n)
	if forward {
		plan.Coefficients(out, in)
		for k := range out {
			out[k] *= twist(k, n, -1)
		}
	} else {
		for k := range in {
			in[k] *= twist(k, n, 1)
		}
		plan.Sequence(out, in)
	}

	res := make([]uint64, 2*n)
	FromComplex(res, out)
	return res, nil
}

func twist(k, n int, sign float64) complex128 {
	s, c := math.Sincos(sign * math.Pi * float64(k) / float64(n))
	return complex(c, s)
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }
