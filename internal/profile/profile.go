// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package profile selects a runtime profile for the command-line tools.
package profile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/profile"
)

// Mode names the profile to collect.
type Mode string

// Supported modes.
const (
	ModeCPU   Mode = "cpu"
	ModeMem   Mode = "mem"
	ModeBlock Mode = "block"
	ModeMutex Mode = "mutex"
	ModeTrace Mode = "trace"
)

// Config selects one profile and the directory it is written to.
type Config struct {
	// Mode is empty when profiling is disabled.
	Mode Mode
	// Dir defaults to the working directory.
	Dir string
}

// Enabled reports whether a profile is requested.
func (c Config) Enabled() bool { return c.Mode != "" }

func (c Config) option() (func(*profile.Profile), string, error) {
	switch c.Mode {
	case ModeCPU:
		return profile.CPUProfile, "cpu.pprof", nil
	case ModeMem:
		return profile.MemProfile, "mem.pprof", nil
	case ModeBlock:
		return profile.BlockProfile, "block.pprof", nil
	case ModeMutex:
		return profile.MutexProfile, "mutex.pprof", nil
	case ModeTrace:
		return profile.TraceProfile, "trace.out", nil
	}
	return nil, "", fmt.Errorf("unknown profile mode %q", c.Mode)
}

// Profiler collects the profile named by its Config.
type Profiler struct {
	stop    interface{ Stop() }
	path    string
	out     io.Writer
	started time.Time
}

// Start begins profiling. A disabled config returns a profiler whose Stop
// does nothing. Only one profiler may run at a time.
func Start(cfg Config, out io.Writer) (*Profiler, error) {
	if out == nil {
		out = io.Discard
	}
	p := &Profiler{out: out, started: time.Now()}
	if !cfg.Enabled() {
		return p, nil
	}

	mode, file, err := cfg.option()
	if err != nil {
		return nil, err
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}

	p.path = filepath.Join(dir, file)
	p.stop = profile.Start(mode, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet)
	return p, nil
}

// Path returns the file the profile is written to, or "" when disabled.
func (p *Profiler) Path() string { return p.path }

// Stop flushes the profile.
func (p *Profiler) Stop() {
	if p.stop == nil {
		return
	}
	p.stop.Stop()
	p.stop = nil
	fmt.Fprintf(p.out, "Profiling duration: %v\n", time.Since(p.started))
	fmt.Fprintf(p.out, "Profile written to: %s\n", p.path)
}

// WriteMemStats prints a summary of the runtime's memory statistics.
func WriteMemStats(w io.Writer) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Fprintf(w, "Memory Statistics:\n")
	fmt.Fprintf(w, "  Alloc:       %d MB\n", m.Alloc/1024/1024)
	fmt.Fprintf(w, "  TotalAlloc:  %d MB\n", m.TotalAlloc/1024/1024)
	fmt.Fprintf(w, "  Sys:         %d MB\n", m.Sys/1024/1024)
	fmt.Fprintf(w, "  NumGC:       %d\n", m.NumGC)
}
