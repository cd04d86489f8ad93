// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package harness

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fabric"
	"github.com/luxfi/aloha/fixture"
	"github.com/luxfi/aloha/internal/storage"
)

func newTestHarness(t *testing.T, cfg aloha.Config) (*Harness, *fabric.Sim, *bytes.Buffer) {
	t.Helper()
	params, err := aloha.NewParametersFromLiteral(aloha.PN13)
	require.NoError(t, err)
	f, err := fixture.Generate(params, fixture.Options{Seed: 11, ErrorSeed: 12})
	require.NoError(t, err)

	sim := fabric.NewSim()
	acc, err := aloha.NewAccelerator(params, sim, cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	h, err := New(acc, f, sim, &out)
	require.NoError(t, err)
	return h, sim, &out
}

func TestAlohaAllStagesMatch(t *testing.T) {
	h, _, out := newTestHarness(t, aloha.DefaultConfig())

	rep, err := h.TestAloha(context.Background())
	require.NoError(t, err)
	require.True(t, rep.OK(), out.String())

	names := make(map[string]int)
	for _, r := range rep.Results() {
		names[r.Name]++
	}
	require.Equal(t, 2, names["encoded_message"])
	require.Equal(t, 2, names["sampled pk1"])
	require.Equal(t, 2, names["C0"])
	require.Equal(t, 1, names["projected output"])
	require.Contains(t, out.String(), "Testing Encryption Done")
	require.Contains(t, out.String(), "Testing Decryption Done")
}

func TestAlohaReportsMismatchesWithoutAborting(t *testing.T) {
	h, _, out := newTestHarness(t, aloha.DefaultConfig())
	h.fixture.C1[1][3]++
	h.fixture.INTTReference[0] += 5

	rep, err := h.TestAloha(context.Background())
	require.NoError(t, err)
	require.False(t, rep.OK())

	failed := rep.Failures()
	require.Len(t, failed, 2)
	require.Equal(t, "C1", failed[0].Name)
	require.Equal(t, 1, failed[0].Modulus)
	require.Equal(t, 3, failed[0].Mismatches[0].Index)
	require.Equal(t, "intt result", failed[1].Name)

	require.Contains(t, out.String(), "Error: modulus 1: C1[3]")
	require.Contains(t, out.String(), "Testing Decryption Done")
}

func TestHardwareBanner(t *testing.T) {
	h, _, out := newTestHarness(t, aloha.DefaultConfig())

	res, err := h.TestHardware(context.Background())
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotZero(t, res.Timing.EncryptCycles)
	require.NotZero(t, res.Timing.EncryptFabric)
	require.GreaterOrEqual(t, res.TotalCycles, res.Timing.EncryptCycles+res.Timing.DecryptCycles)

	s := out.String()
	require.Contains(t, s, "Encode+encrypt in hardware took")
	require.Contains(t, s, "Decode+decrypt in hardware took")
	require.Contains(t, s, "Overall test in hardware took")
	require.Contains(t, s, "#              OK!              #")

	h.fixture.ProjectedReference[0] ^= 1 << 62
	out.Reset()
	res, err = h.TestHardware(context.Background())
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, 1, res.Failures)
	require.Contains(t, out.String(), "# ERRORS OCCURED DURING TESTING #")
}

func TestHardwareTimeoutAborts(t *testing.T) {
	h, sim, _ := newTestHarness(t, aloha.Config{Timeout: 20 * time.Millisecond})
	sim.Stall(true)

	_, err := h.TestAloha(context.Background())
	require.ErrorIs(t, err, aloha.ErrHardwareTimeout)

	_, err = h.FastAloha(context.Background())
	require.ErrorIs(t, err, aloha.ErrHardwareTimeout)
}

func TestDemo(t *testing.T) {
	h, _, out := newTestHarness(t, aloha.DefaultConfig())

	ls, err := h.Demo(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, ls.Samples, 30)
	require.Greater(t, ls.Mean, 0.0)
	require.LessOrEqual(t, ls.Min, ls.Median)
	require.LessOrEqual(t, ls.Median, ls.Max)
	require.Contains(t, out.String(), "Done 25 Encode+Encrypt in")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Demo(ctx, 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLatencyStats(t *testing.T) {
	ls, err := NewLatencyStats([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, 2.5, ls.Mean)
	require.Equal(t, 2.5, ls.Median)
	require.Equal(t, 1.0, ls.Min)
	require.Equal(t, 4.0, ls.Max)
	require.InDelta(t, 1.118, ls.StdDev, 1e-3)

	_, err = NewLatencyStats(nil)
	require.Error(t, err)
}

func TestWriteLatencyChart(t *testing.T) {
	ls, err := NewLatencyStats([]float64{10, 12, 11})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLatencyChart(&buf, "encrypt latency", ls))
	require.Contains(t, buf.String(), "encrypt latency")
	require.Contains(t, buf.String(), "echarts")
}

func TestTiming(t *testing.T) {
	params, err := aloha.NewParametersFromLiteral(aloha.PN13)
	require.NoError(t, err)
	f, err := fixture.Generate(params, fixture.Options{Seed: 1})
	require.NoError(t, err)
	acc, err := aloha.NewAccelerator(params, fabric.NewSim(), aloha.DefaultConfig())
	require.NoError(t, err)

	var out bytes.Buffer
	h, err := New(acc, f, aloha.NewSystemClock(), &out)
	require.NoError(t, err)

	h.TestTiming(1 << 20)
	require.Contains(t, out.String(), "Start timing test")
	require.Contains(t, out.String(), "Time consumed:")
}

func TestNewRejectsMismatchedFixture(t *testing.T) {
	p13, err := aloha.NewParametersFromLiteral(aloha.PN13)
	require.NoError(t, err)
	p14, err := aloha.NewParametersFromLiteral(aloha.PN14)
	require.NoError(t, err)
	f, err := fixture.Generate(p13, fixture.Options{Seed: 1})
	require.NoError(t, err)

	sim := fabric.NewSim()
	acc, err := aloha.NewAccelerator(p14, sim, aloha.DefaultConfig())
	require.NoError(t, err)

	_, err = New(acc, f, sim, nil)
	require.ErrorIs(t, err, aloha.ErrInvalidParameters)
	_, err = New(nil, f, sim, nil)
	require.Error(t, err)
}

func TestPreset(t *testing.T) {
	p, err := Preset(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1<<13, p.N())
	require.Equal(t, 2, p.NumModuli())

	p, err = Preset(15, 1)
	require.NoError(t, err)
	require.Equal(t, 1<<15, p.N())
	require.Equal(t, 1, p.NumModuli())

	_, err = Preset(12, 0)
	require.ErrorIs(t, err, aloha.ErrInvalidParameters)
	_, err = Preset(13, 3)
	require.ErrorIs(t, err, aloha.ErrInvalidParameters)
}

func TestPrepareFixture(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage(64)
	params, err := Preset(13, 1)
	require.NoError(t, err)

	f, h, err := PrepareFixture(ctx, store, "", params, fixture.Options{Seed: 4})
	require.NoError(t, err)
	require.NoError(t, h.Validate())

	loaded, h2, err := PrepareFixture(ctx, store, h, params, fixture.Options{})
	require.NoError(t, err)
	require.Equal(t, h, h2)
	require.Equal(t, f.C0, loaded.C0)

	other, err := Preset(13, 0)
	require.NoError(t, err)
	_, _, err = PrepareFixture(ctx, store, h, other, fixture.Options{})
	require.ErrorIs(t, err, aloha.ErrInvalidParameters)

	_, _, err = PrepareFixture(ctx, nil, h, params, fixture.Options{})
	require.Error(t, err)

	f, h, err = PrepareFixture(ctx, nil, "", params, fixture.Options{Seed: 4})
	require.NoError(t, err)
	require.Empty(t, h)

	hs, _, err := NewSimulated(f, aloha.DefaultConfig(), nil)
	require.NoError(t, err)
	rep, err := hs.TestAloha(ctx)
	require.NoError(t, err)
	require.True(t, rep.OK())
}
