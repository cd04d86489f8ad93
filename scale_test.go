// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRNSScaleRoundTrip(t *testing.T) {
	for n := uint8(0); n <= MaxLogN-MinLogN; n++ {
		for scale := int32(MinScale); scale < MaxScale; scale++ {
			field, err := EncodeRNSScale(scale, n)
			require.NoError(t, err)
			require.Less(t, field, uint32(scaleFieldModulus))
			require.Equal(t, scale, DecodeRNSScale(field, n), "scale=%d n=%d", scale, n)

			again, err := EncodeRNSScale(scale, n)
			require.NoError(t, err)
			require.Equal(t, field, again)
		}
	}
}

func TestRNSScaleKnownValue(t *testing.T) {
	// 40 - 52 - 1023 - 13 = -1048, wrapped into 12 bits.
	field, err := EncodeRNSScale(40, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(4096-1048), field)

	field, err = EncodeRNSScale(40, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(4096-1050), field)
}

func TestScaleOutOfRange(t *testing.T) {
	for _, s := range []int32{MinScale - 1, MaxScale, 1 << 20, -(1 << 20)} {
		require.ErrorIs(t, ValidateScale(s), ErrScaleOutOfRange)
		_, err := EncodeRNSScale(s, 0)
		require.ErrorIs(t, err, ErrScaleOutOfRange)
	}
	require.NoError(t, ValidateScale(MinScale))
	require.NoError(t, ValidateScale(MaxScale-1))
}
