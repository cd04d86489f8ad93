// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import "fmt"

// Region identifies a block memory on the fabric.
type Region uint8

const (
	// RegionFFT holds double-width floating-point polynomials.
	RegionFFT Region = iota
	// RegionFFTExpand is the write port that expands a message into the
	// double-width layout of RegionFFT.
	RegionFFTExpand
	// RegionFFTIntermediate holds the sampled second public-key component.
	RegionFFTIntermediate
	// RegionNTTMessage holds the message residue, later c0.
	RegionNTTMessage
	// RegionNTTKey holds the first public-key component, later c1.
	RegionNTTKey
	// RegionNTTV holds the ephemeral ternary polynomial v (or the secret key).
	RegionNTTV
	// RegionNTTE1 holds the error polynomial e1.
	RegionNTTE1
	// RegionError holds the packed v/e0/e1 samples.
	RegionError

	numRegions
)

var regionNames = [...]string{
	RegionFFT:             "FFT",
	RegionFFTExpand:       "FFT-expand",
	RegionFFTIntermediate: "FFT-intermediate",
	RegionNTTMessage:      "NTT-message",
	RegionNTTKey:          "NTT-key",
	RegionNTTV:            "NTT-V",
	RegionNTTE1:           "NTT-E1",
	RegionError:           "Error",
}

// Regions lists every region in enumeration order.
func Regions() []Region {
	r := make([]Region, numRegions)
	for i := range r {
		r[i] = Region(i)
	}
	return r
}

// Valid reports whether r is part of the enumeration.
func (r Region) Valid() bool { return r < numRegions }

func (r Region) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Region(%d)", uint8(r))
	}
	return regionNames[r]
}

// Layout selects how a host buffer is laid out in a region.
type Layout uint8

// LayoutDirect copies words one to one.
const LayoutDirect Layout = 0

// LayoutExpand returns the layout that expands an N-word message for
// degree class n into the 2N-word FFT layout.
func LayoutExpand(n uint8) Layout { return Layout(1 + n) }

// Expanded reports whether l expands, and for which degree class.
func (l Layout) Expanded() (n uint8, ok bool) {
	if l == LayoutDirect {
		return 0, false
	}
	return uint8(l) - 1, true
}

func (l Layout) String() string {
	if n, ok := l.Expanded(); ok {
		return fmt.Sprintf("expand(n=%d)", n)
	}
	return "direct"
}
