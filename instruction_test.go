// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import (
	"fmt"
	"testing"

	"github.com/luxfi/lattice/v7/ring"
	"github.com/stretchr/testify/require"
)

func TestInstructionFields(t *testing.T) {
	for n := uint8(0); n <= MaxLogN-MinLogN; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			fft := NewFFTInstruction(true, n)
			require.Equal(t, OpFFT, fft.Opcode())
			require.Equal(t, n, fft.DegreeClass())
			require.True(t, fft.Direction())
			require.False(t, NewFFTInstruction(false, n).Direction())

			rns := NewRNSInstruction(0xbcd, 5, 0x81, 7, n)
			require.Equal(t, OpRNS, rns.Opcode())
			require.Equal(t, uint32(0xbcd), rns.ScaleField())
			require.Equal(t, uint32(5), rns.Width())
			require.Equal(t, uint32(0x81), rns.ModulusSelect())
			require.Equal(t, uint32(7), rns.QM())
			require.Equal(t, n, rns.DegreeClass())

			ntt := NewNTTInstruction(true, 4, 17, 28, n)
			require.Equal(t, OpNTT, ntt.Opcode())
			require.True(t, ntt.Direction())
			require.Equal(t, uint32(17), ntt.Constants())
			require.Equal(t, uint32(28), ntt.QM())
			require.Equal(t, Modulus{QM: 28, K: 4}.Q(), ntt.Modulus())

			i2f := NewI2FInstruction(-40, 4, 28, n)
			require.Equal(t, OpI2F, i2f.Opcode())
			require.Equal(t, int32(-40), i2f.Scale())

			pwm := NewPWMInstruction(5, 7, n)
			require.Equal(t, OpPWM, pwm.Opcode())
			require.Equal(t, uint32(5), pwm.Width())

			prj := NewProjectInstruction(n)
			require.Equal(t, OpProject, prj.Opcode())
			require.Equal(t, n, prj.DegreeClass())
		})
	}
}

func TestInstructionMasksFields(t *testing.T) {
	// Oversized values must not spill into neighbouring fields.
	ins := NewNTTInstruction(false, 0xff, 0xff, 0x1ffff, 0xff)
	require.Equal(t, OpNTT, ins.Opcode())
	require.Equal(t, uint8(3), ins.DegreeClass())
	require.False(t, ins.Direction())
	require.Equal(t, uint32(0x3f), ins.Width())
	require.Equal(t, uint32(0x1f), ins.Constants())
	require.Equal(t, uint32(0xffff), ins.QM())
	require.Zero(t, ins.ModulusSelect())
	require.Zero(t, ins.ScaleField())
}

func TestInstructionBuffer(t *testing.T) {
	ins := NewPWMInstruction(4, 28, 1)
	buf := NewInstructionBuffer(ins)
	require.Len(t, buf, InstructionBufferSize)
	require.Equal(t, uint64(ins), buf[0])
	for _, w := range buf[1:] {
		require.Zero(t, w)
	}
	require.Contains(t, ins.String(), "PWM(")
	require.Equal(t, "Opcode(9)", Opcode(9).String())
}

func TestPresetModuli(t *testing.T) {
	for _, lit := range []ParametersLiteral{PN13, PN14, PN15} {
		params, err := NewParametersFromLiteral(lit)
		require.NoError(t, err)
		require.Equal(t, 1<<lit.LogN, params.N())
		require.Equal(t, lit, params.Literal())

		for _, m := range params.Moduli() {
			q := m.Q()
			require.True(t, ring.IsPrime(q), "q=%d", q)
			require.Zero(t, (q-1)%uint64(2*MaxDegree), "q=%d", q)
		}
	}
}

func TestParametersValidation(t *testing.T) {
	bad := []ParametersLiteral{
		{LogN: 12, Moduli: PN13.Moduli, LogScale: 40},
		{LogN: 16, Moduli: PN13.Moduli, LogScale: 40},
		{LogN: 13, LogScale: 40},
		{LogN: 13, Moduli: []Modulus{{QM: 256, K: 4}}, LogScale: 40},
		{LogN: 13, Moduli: []Modulus{{QM: 1, K: 0}}, LogScale: 40},
		{LogN: 13, Moduli: []Modulus{{QM: 1, K: 4, NTTConstants: 32}}, LogScale: 40},
	}
	for i, lit := range bad {
		_, err := NewParametersFromLiteral(lit)
		require.ErrorIs(t, err, ErrInvalidParameters, "case %d", i)
	}

	_, err := NewParametersFromLiteral(ParametersLiteral{LogN: 13, Moduli: PN13.Moduli, LogScale: 256})
	require.ErrorIs(t, err, ErrScaleOutOfRange)
}
