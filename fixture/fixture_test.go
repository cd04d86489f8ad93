// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fixture

import (
	"context"
	"math/cmplx"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fabric"
	"github.com/luxfi/aloha/internal/storage"
)

func testFixture(t *testing.T) *Fixture {
	t.Helper()
	params, err := aloha.NewParametersFromLiteral(aloha.PN13)
	require.NoError(t, err)
	f, err := Generate(params, Options{Seed: 1, ErrorSeed: 2})
	require.NoError(t, err)
	return f
}

func TestGenerateShapes(t *testing.T) {
	f := testFixture(t)
	n := f.Params.N()

	require.Equal(t, int32(40), f.Scale)
	require.Len(t, f.Input, n)
	require.Len(t, f.ExpandedInput, 2*n)
	require.Len(t, f.FFTExpected, 2*n)
	require.Len(t, f.ProjectedReference, n)
	require.Len(t, f.IFFTInput, 2*n)
	require.Equal(t, []uint64{2, 3}, f.PK1Seeds)

	for _, pm := range [][][]uint64{f.PK0, f.PK1, f.MessageAfterRNS, f.VNTT, f.E1NTT, f.C0, f.C1} {
		require.Len(t, pm, 2)
		for _, p := range pm {
			require.Len(t, p, n)
		}
	}

	keys := f.Keys()
	require.Len(t, keys, 2)
	require.Equal(t, f.PK1Seeds[1], keys[1].PK1Seed)
	require.Equal(t, f.C0[0], f.C0ToDecrypt)
}

func TestGenerateDeterministic(t *testing.T) {
	a := testFixture(t)
	b := testFixture(t)
	require.Empty(t, cmp.Diff(a, b, cmpopts.IgnoreFields(Fixture{}, "Params")))
}

func TestDecodedMatchesPlaintext(t *testing.T) {
	f := testFixture(t)
	want := f.Slots()
	got := fabric.ToComplex(f.ProjectedReference)
	require.Len(t, got, len(want))
	for i := range want {
		require.Less(t, cmplx.Abs(got[i]-want[i]), 1e-6, "slot %d", i)
	}
}

func TestMessageAfterRNSFoldsError(t *testing.T) {
	f := testFixture(t)
	q := f.Params.Modulus(0).Q()

	fwd, err := fabric.NewFFT().Transform(f.ExpandedInput, true)
	require.NoError(t, err)
	plain := fabric.ToResidues(fwd, f.Scale, q)

	for i, m := range f.MessageAfterRNS[0] {
		e0 := fabric.Centered(fabric.Lift(f.E0[i], fabric.EBits, q), q)
		require.Equal(t, e0, fabric.Centered(m, q)-fabric.Centered(plain[i], q), "coefficient %d", i)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	f := testFixture(t)

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	var got Fixture
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, f.Params.Literal(), got.Params.Literal())
	require.Empty(t, cmp.Diff(f, &got, cmpopts.IgnoreFields(Fixture{}, "Params")))

	require.ErrorIs(t, got.UnmarshalBinary(data[:len(data)/2]), ErrFormat)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	f := testFixture(t)
	s := storage.NewMemoryStorage(64)

	h, err := f.Save(ctx, s)
	require.NoError(t, err)

	got, err := Load(ctx, s, h)
	require.NoError(t, err)
	require.Equal(t, f.C1, got.C1)

	_, err = Load(ctx, s, storage.ComputeHandle([]byte("missing")))
	require.ErrorIs(t, err, storage.ErrNotFound)
}
