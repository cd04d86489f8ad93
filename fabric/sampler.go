// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fabric

import (
	"encoding/binary"
	"fmt"
	"math"
	mathbits "math/bits"

	"github.com/luxfi/lattice/v7/utils/sampling"
)

// BinomialEta is the parameter of the centered binomial error distribution.
const BinomialEta = 21

// Sampler draws the fabric's pseudorandom polynomials from a 64-bit seed.
// Two samplers with the same seed produce the same stream.
type Sampler struct {
	prng *sampling.KeyedPRNG
	buf  [8]byte
}

// NewSampler returns a sampler keyed by seed.
func NewSampler(seed uint64) (*Sampler, error) {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	prng, err := sampling.NewKeyedPRNG(key[:])
	if err != nil {
		return nil, fmt.Errorf("keyed prng: %w", err)
	}
	return &Sampler{prng: prng}, nil
}

func (s *Sampler) uint64() uint64 {
	if _, err := s.prng.Read(s.buf[:]); err != nil {
		// KeyedPRNG is a keyed hash in XOF mode; reads do not fail.
		panic(err)
	}
	return binary.LittleEndian.Uint64(s.buf[:])
}

// Ternary returns a value uniform in {-1, 0, 1}.
func (s *Sampler) Ternary() int64 {
	for {
		if x := s.uint64() & 0xff; x < 255 {
			return int64(x%3) - 1
		}
	}
}

// Binomial returns a centered binomial sample in [-BinomialEta, BinomialEta].
func (s *Sampler) Binomial() int64 {
	x := s.uint64()
	mask := uint64(1)<<BinomialEta - 1
	return int64(mathbits.OnesCount64(x&mask)) - int64(mathbits.OnesCount64((x>>BinomialEta)&mask))
}

// Uniform returns a value uniform in [0, q).
func (s *Sampler) Uniform(q uint64) uint64 {
	mask := uint64(1)<<mathbits.Len64(q) - 1
	for {
		if x := s.uint64() & mask; x < q {
			return x
		}
	}
}

// Float returns a value uniform in [0, 1).
func (s *Sampler) Float() float64 {
	return float64(s.uint64()>>11) / (1 << 53)
}

// Disk returns a complex value uniform in angle with modulus below 1.
func (s *Sampler) Disk() complex128 {
	r := s.Float()
	sin, cos := math.Sincos(2 * math.Pi * s.Float())
	return complex(r*cos, r*sin)
}

// ErrorPolys holds one draw of the encryption noise in the fabric's
// sign-magnitude encoding.
type ErrorPolys struct {
	V, E0, E1 []uint64
}

// SampleErrors draws v (ternary) and e0, e1 (centered binomial) of degree n.
func SampleErrors(seed uint64, n int) (ErrorPolys, error) {
	s, err := NewSampler(seed)
	if err != nil {
		return ErrorPolys{}, err
	}
	ep := ErrorPolys{
		V:  make([]uint64, n),
		E0: make([]uint64, n),
		E1: make([]uint64, n),
	}
	for i := 0; i < n; i++ {
		ep.V[i] = SignMagnitude(s.Ternary(), VBits)
		ep.E0[i] = SignMagnitude(s.Binomial(), EBits)
		ep.E1[i] = SignMagnitude(s.Binomial(), EBits)
	}
	return ep, nil
}

// SamplePK1 regenerates the second public-key component, uniform mod q in
// NTT form, from its seed.
func SamplePK1(seed uint64, n int, q uint64) ([]uint64, error) {
	s, err := NewSampler(seed)
	if err != nil {
		return nil, err
	}
	a := make([]uint64, n)
	for i := range a {
		a[i] = s.Uniform(q)
	}
	return a, nil
}
