// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import "fmt"

const (
	// MinScale is the smallest accepted scale exponent.
	MinScale = -(1 << 8)
	// MaxScale is one past the largest accepted scale exponent.
	MaxScale = 1 << 8

	scaleFieldModulus  = 1 << scaleBits
	doubleMantissaBits = 52
	doubleExponentBias = 1023
)

// ValidateScale checks that scale lies in [MinScale, MaxScale).
func ValidateScale(scale int32) error {
	if scale < MinScale || scale >= MaxScale {
		return fmt.Errorf("%w: %d not in [%d, %d)", ErrScaleOutOfRange, scale, MinScale, MaxScale)
	}
	return nil
}

// EncodeRNSScale converts a scale exponent into the RNS stage's field:
// the fabric adds the field to the raw exponent of each double, so the
// mantissa width, the exponent bias and the 1/N of the unnormalized FFT are
// folded in and the result is wrapped into 12 bits.
func EncodeRNSScale(scale int32, n uint8) (uint32, error) {
	if err := ValidateScale(scale); err != nil {
		return 0, err
	}
	s := scale - doubleMantissaBits - doubleExponentBias - int32(MinLogN+int(n))
	if s < 0 {
		s += scaleFieldModulus
	}
	return uint32(s), nil
}

// DecodeRNSScale inverts EncodeRNSScale for fields it produced.
func DecodeRNSScale(field uint32, n uint8) int32 {
	s := int32(field % scaleFieldModulus)
	if s >= scaleFieldModulus/2 {
		s -= scaleFieldModulus
	}
	return s + doubleMantissaBits + doubleExponentBias + int32(MinLogN+int(n))
}
