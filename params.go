// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package aloha drives the Aloha-HE CKKS accelerator from the host.
//
// The accelerator is a set of fixed-function stages on an FPGA fabric
// (FFT with concurrent error sampling, RNS scaling, NTT, integer-to-float
// conversion, point-wise multiplication and projection). The host encodes
// one instruction word per stage, stages operand polynomials into named
// block memories, triggers execution and drains the results. Chaining the
// stages per RNS modulus yields encode+encrypt and decrypt+decode.
//
// The bus itself is abstracted behind [Transport]; package fabric provides
// a software model of the accelerator that satisfies it.
package aloha

import (
	"fmt"
)

const (
	// MinLogN is log2 of the smallest supported polynomial degree.
	MinLogN = 13
	// MaxLogN is log2 of the largest supported polynomial degree.
	MaxLogN = 15
	// MaxDegree is the largest supported polynomial degree. Block memories
	// are sized for it.
	MaxDegree = 1 << MaxLogN

	// maxModulusWidth keeps q = 2^(46+K) - QM*2^24 + 1 below 2^61.
	maxModulusWidth = 14
	// maxQM bounds the modulus offset to the 8 bits the fabric uses.
	maxQM = 1 << 8
)

// Modulus describes one prime of the RNS basis as the fabric sees it.
type Modulus struct {
	// RNSSelect selects the modulus in the RNS stage's constant ROM.
	RNSSelect uint32 `json:"rns_select"`
	// NTTConstants selects the twiddle table in the NTT constant ROM.
	NTTConstants uint32 `json:"ntt_constants"`
	// QM is the offset of the prime below 2^(46+K), in units of 2^24.
	QM uint32 `json:"qm"`
	// K is the bit-width parameter (current_k) of the prime.
	K uint32 `json:"k"`
}

// Q returns the prime 2^(46+K) - QM*2^24 + 1.
func (m Modulus) Q() uint64 {
	return uint64(1)<<(46+m.K) - uint64(m.QM)<<24 + 1
}

// Validate checks that the descriptor fits the instruction fields.
func (m Modulus) Validate() error {
	if m.K < 1 || m.K > maxModulusWidth {
		return fmt.Errorf("%w: modulus width K=%d not in [1, %d]", ErrInvalidParameters, m.K, maxModulusWidth)
	}
	if m.QM >= maxQM {
		return fmt.Errorf("%w: modulus offset QM=%d exceeds %d", ErrInvalidParameters, m.QM, maxQM-1)
	}
	if m.NTTConstants >= 1<<constantsBits {
		return fmt.Errorf("%w: NTT constant selector %d exceeds %d bits", ErrInvalidParameters, m.NTTConstants, constantsBits)
	}
	if m.RNSSelect >= 1<<selectBits {
		return fmt.Errorf("%w: RNS selector %d exceeds %d bits", ErrInvalidParameters, m.RNSSelect, selectBits)
	}
	return nil
}

// ModulusKeys holds the public-key material for one modulus: the first
// public-key component in NTT form and the seed from which the fabric
// regenerates the second component.
type ModulusKeys struct {
	PK0     []uint64
	PK1Seed uint64
}

// ParametersLiteral is a user-friendly parameter specification.
type ParametersLiteral struct {
	// LogN is log2 of the polynomial degree, 13 to 15.
	LogN int `json:"log_n"`
	// Moduli is the RNS basis, one descriptor per prime.
	Moduli []Modulus `json:"moduli"`
	// LogScale is the default CKKS scaling exponent.
	LogScale int32 `json:"log_scale"`
}

// Standard parameter sets. The two primes are 2^50 - 28*2^24 + 1 and
// 2^51 - 7*2^24 + 1; the first uses constant table 15, which the encrypt
// path remaps.
var (
	PN13 = ParametersLiteral{
		LogN: 13,
		Moduli: []Modulus{
			{RNSSelect: 0, NTTConstants: 15, QM: 28, K: 4},
			{RNSSelect: 1, NTTConstants: 18, QM: 7, K: 5},
		},
		LogScale: 40,
	}

	PN14 = ParametersLiteral{
		LogN: 14,
		Moduli: []Modulus{
			{RNSSelect: 0, NTTConstants: 15, QM: 28, K: 4},
			{RNSSelect: 1, NTTConstants: 18, QM: 7, K: 5},
		},
		LogScale: 40,
	}

	PN15 = ParametersLiteral{
		LogN: 15,
		Moduli: []Modulus{
			{RNSSelect: 0, NTTConstants: 15, QM: 28, K: 4},
			{RNSSelect: 1, NTTConstants: 18, QM: 7, K: 5},
		},
		LogScale: 40,
	}
)

// Parameters is the validated accelerator configuration.
type Parameters struct {
	n        uint8
	moduli   []Modulus
	logScale int32
}

// NewParametersFromLiteral validates lit and builds Parameters.
func NewParametersFromLiteral(lit ParametersLiteral) (Parameters, error) {
	if lit.LogN < MinLogN || lit.LogN > MaxLogN {
		return Parameters{}, fmt.Errorf("%w: LogN=%d not in [%d, %d]", ErrInvalidParameters, lit.LogN, MinLogN, MaxLogN)
	}
	if len(lit.Moduli) == 0 {
		return Parameters{}, fmt.Errorf("%w: empty RNS basis", ErrInvalidParameters)
	}
	for i, m := range lit.Moduli {
		if err := m.Validate(); err != nil {
			return Parameters{}, fmt.Errorf("modulus %d: %w", i, err)
		}
	}
	if err := ValidateScale(lit.LogScale); err != nil {
		return Parameters{}, err
	}

	return Parameters{
		n:        uint8(lit.LogN - MinLogN),
		moduli:   append([]Modulus(nil), lit.Moduli...),
		logScale: lit.LogScale,
	}, nil
}

// DegreeClass returns n such that N = 2^(13+n).
func (p Parameters) DegreeClass() uint8 { return p.n }

// LogN returns log2 of the polynomial degree.
func (p Parameters) LogN() int { return MinLogN + int(p.n) }

// N returns the polynomial degree.
func (p Parameters) N() int { return 1 << p.LogN() }

// NumModuli returns the size of the RNS basis.
func (p Parameters) NumModuli() int { return len(p.moduli) }

// Modulus returns the i-th modulus descriptor.
func (p Parameters) Modulus(i int) Modulus { return p.moduli[i] }

// Moduli returns a copy of the RNS basis.
func (p Parameters) Moduli() []Modulus { return append([]Modulus(nil), p.moduli...) }

// LogScale returns the default scaling exponent.
func (p Parameters) LogScale() int32 { return p.logScale }

// Literal returns the literal these parameters were built from.
func (p Parameters) Literal() ParametersLiteral {
	return ParametersLiteral{
		LogN:     p.LogN(),
		Moduli:   p.Moduli(),
		LogScale: p.logScale,
	}
}
