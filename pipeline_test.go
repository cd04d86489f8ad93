// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fabric"
	"github.com/luxfi/aloha/fixture"
)

func alloc(k, n int) [][]uint64 {
	out := make([][]uint64, k)
	for i := range out {
		out[i] = make([]uint64, n)
	}
	return out
}

func nttConstants(trace []aloha.Instruction) []uint32 {
	var sel []uint32
	for _, ins := range trace {
		if ins.Opcode() == aloha.OpNTT {
			sel = append(sel, ins.Constants())
		}
	}
	return sel
}

func TestEncryptDecryptOnSim(t *testing.T) {
	ctx := context.Background()
	params, err := aloha.NewParametersFromLiteral(aloha.PN13)
	require.NoError(t, err)
	f, err := fixture.Generate(params, fixture.Options{Seed: 1, ErrorSeed: 2})
	require.NoError(t, err)

	sim := fabric.NewSim()
	acc, err := aloha.NewAccelerator(params, sim, aloha.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, acc.Init(ctx))

	n, k := params.N(), params.NumModuli()
	args := aloha.EncryptArgs{
		Plaintext: f.Input,
		ErrorSeed: f.ErrorSeed,
		Keys:      f.Keys(),
		Scale:     f.Scale,
		C0:        alloc(k, n),
		C1:        alloc(k, n),
		VNTT:      alloc(k, n),
		E1NTT:     alloc(k, n),
	}
	cycles, err := acc.Encrypt(ctx, args)
	require.NoError(t, err)
	require.NotZero(t, cycles)

	for i := 0; i < k; i++ {
		require.Equal(t, f.C0[i], args.C0[i], "c0 modulus %d", i)
		require.Equal(t, f.C1[i], args.C1[i], "c1 modulus %d", i)
		require.Equal(t, f.VNTT[i], args.VNTT[i], "v modulus %d", i)
		require.Equal(t, f.E1NTT[i], args.E1NTT[i], "e1 modulus %d", i)
	}

	plain := make([]uint64, n)
	_, err = acc.Decrypt(ctx, aloha.DecryptArgs{
		C0:        f.C0ToDecrypt,
		C1:        f.C1ToDecrypt,
		SK:        f.SK,
		Plaintext: plain,
		Scale:     f.Scale,
	})
	require.NoError(t, err)
	require.Equal(t, f.ProjectedReference, plain)

	// Encrypt remaps table 15 to 16 and keeps 18; decrypt selects 17.
	require.Equal(t, []uint32{16, 18, 17}, nttConstants(sim.Trace()))
}

func TestEncryptValidatesBeforeBusAccess(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	acc := newTestAccelerator(t, rec, aloha.DefaultConfig())
	n := acc.Parameters().N()

	keys := []aloha.ModulusKeys{{PK0: make([]uint64, n)}, {PK0: make([]uint64, n)}}
	good := aloha.EncryptArgs{
		Plaintext: make([]uint64, n),
		Keys:      keys,
		Scale:     40,
		C0:        alloc(2, n),
		C1:        alloc(2, n),
	}

	bad := good
	bad.Plaintext = make([]uint64, n-1)
	_, err := acc.Encrypt(ctx, bad)
	require.ErrorIs(t, err, aloha.ErrBufferSize)

	bad = good
	bad.C1 = alloc(1, n)
	_, err = acc.Encrypt(ctx, bad)
	require.ErrorIs(t, err, aloha.ErrBufferSize)

	bad = good
	bad.Scale = aloha.MaxScale
	_, err = acc.Encrypt(ctx, bad)
	require.ErrorIs(t, err, aloha.ErrScaleOutOfRange)

	require.Empty(t, rec.Calls())

	_, err = acc.Encrypt(ctx, good)
	require.NoError(t, err)
	require.Contains(t, rec.Calls(), "execute seed=0")
}

func TestStagesComposeUnderExclusive(t *testing.T) {
	ctx := context.Background()
	params, err := aloha.NewParametersFromLiteral(aloha.PN13)
	require.NoError(t, err)
	f, err := fixture.Generate(params, fixture.Options{Seed: 3, ErrorSeed: 4})
	require.NoError(t, err)

	acc, err := aloha.NewAccelerator(params, fabric.NewSim(), aloha.DefaultConfig())
	require.NoError(t, err)
	n := params.N()

	err = acc.Exclusive(func() error {
		result := make([]uint64, 2*n)
		if _, err := acc.FFT(ctx, aloha.FFTArgs{Input: f.IFFTInput, Result: result}); err != nil {
			return err
		}
		require.Equal(t, f.IFFTReference, result)

		plain := make([]uint64, n)
		if _, err := acc.Project(ctx, aloha.ProjectArgs{Input: f.IFFTReference, Result: plain}); err != nil {
			return err
		}
		require.Equal(t, f.ProjectedReference, plain)
		return nil
	})
	require.NoError(t, err)
}
