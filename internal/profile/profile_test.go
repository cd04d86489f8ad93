// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package profile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProfiler(t *testing.T) {
	for _, tc := range []struct {
		mode Mode
		file string
	}{
		{ModeCPU, "cpu.pprof"},
		{ModeMem, "mem.pprof"},
		{ModeMutex, "mutex.pprof"},
	} {
		dir := filepath.Join(t.TempDir(), "prof")
		var out bytes.Buffer
		p, err := Start(Config{Mode: tc.mode, Dir: dir}, &out)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, tc.file), p.Path())
		p.Stop()
		p.Stop()

		info, err := os.Stat(p.Path())
		require.NoError(t, err, tc.mode)
		require.NotZero(t, info.Size(), tc.mode)
		require.Contains(t, out.String(), "Profile written to: "+p.Path())
	}
}

func TestProfilerDisabled(t *testing.T) {
	require.False(t, Config{}.Enabled())
	p, err := Start(Config{}, nil)
	require.NoError(t, err)
	require.Empty(t, p.Path())
	p.Stop()

	var out bytes.Buffer
	WriteMemStats(&out)
	require.Contains(t, out.String(), "NumGC")
}

func TestProfilerUnknownMode(t *testing.T) {
	_, err := Start(Config{Mode: "heap-dump"}, nil)
	require.Error(t, err)
}
