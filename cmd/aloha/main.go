// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command aloha runs the accelerator test menu against the fabric
// simulator.
//
// Usage:
//
//	aloha -logn=13 -iterations=1000 -chart=latency.html
//
// Each menu round reads one selection from stdin: 0 runs the encryption
// demo, 1 the full hardware test, 2 the timer check and 3 exits.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fixture"
	"github.com/luxfi/aloha/harness"
	"github.com/luxfi/aloha/internal/profile"
	"github.com/luxfi/aloha/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	iterations int
	loops      uint
	chart      string
}

func run() error {
	var (
		logN       = flag.Int("logn", 13, "log2 of the polynomial degree (13, 14 or 15)")
		moduli     = flag.Int("moduli", 0, "number of RNS moduli to use (0: all)")
		fixtureDir = flag.String("fixture-dir", "", "directory for stored fixtures")
		fixtureID  = flag.String("fixture", "", "handle of a stored fixture to load from -fixture-dir")
		listOnly   = flag.Bool("list-fixtures", false, "print the fixtures stored in -fixture-dir and exit")
		seed       = flag.Uint64("seed", 1, "fixture seed")
		errorSeed  = flag.Uint64("error-seed", 2, "error polynomial seed")
		iterations = flag.Int("iterations", harness.DefaultIterations, "demo iterations")
		loops      = flag.Uint("loops", harness.DefaultTimingLoops, "timing loop length")
		chart      = flag.String("chart", "", "write the demo latency chart to this HTML file")
		timeout    = flag.Duration("timeout", 5*time.Second, "bound on every blocking accelerator call")
		profMode   = flag.String("profile", "", "collect a profile: cpu, mem, block, mutex or trace")
		profDir    = flag.String("profile-dir", ".", "directory for the profile")
		verbose    = flag.Bool("v", false, "log every stage")
	)
	flag.Parse()

	prof, err := profile.Start(profile.Config{Mode: profile.Mode(*profMode), Dir: *profDir}, os.Stderr)
	if err != nil {
		return err
	}
	defer prof.Stop()

	ctx := context.Background()
	params, err := harness.Preset(*logN, *moduli)
	if err != nil {
		return err
	}

	var store storage.Storage
	if *fixtureDir != "" {
		fs, err := storage.NewFileStorage(*fixtureDir)
		if err != nil {
			return fmt.Errorf("fixture storage: %w", err)
		}
		store = fs
	}
	if *listOnly {
		if store == nil {
			return errors.New("-list-fixtures needs -fixture-dir")
		}
		return listFixtures(ctx, os.Stdout, store)
	}

	fmt.Print("Preparing test vectors... ")
	f, handle, err := harness.PrepareFixture(ctx, store, storage.Handle(*fixtureID), params,
		fixture.Options{Seed: *seed, ErrorSeed: *errorSeed})
	if err != nil {
		return err
	}
	fmt.Println(" Done")
	if handle != "" {
		log.Printf("fixture %s", handle)
	}

	cfg := aloha.Config{Timeout: *timeout}
	if *verbose {
		cfg.Logger = log.New(os.Stderr, "aloha: ", log.Lmicroseconds)
	}
	h, _, err := harness.NewSimulated(f, cfg, os.Stdout)
	if err != nil {
		return err
	}

	menu(ctx, os.Stdin, os.Stdout, h, options{iterations: *iterations, loops: *loops, chart: *chart})
	if *verbose {
		profile.WriteMemStats(os.Stderr)
	}
	return nil
}

func listFixtures(ctx context.Context, out io.Writer, store storage.Storage) error {
	handles, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, h := range handles {
		f, err := fixture.Load(ctx, store, h)
		if err != nil {
			fmt.Fprintf(out, "%s  (unreadable: %v)\n", h, err)
			continue
		}
		fmt.Fprintf(out, "%s  N=%d moduli=%d scale=%d\n", h, f.Params.N(), f.Params.NumModuli(), f.Scale)
	}
	return nil
}

const banner = `

******************************************************************
*                            Aloha-HE                            *
******************************************************************
`

const prompt = "Type of test [0: Run Demo, 1: Test, 2: Time check, 3:End] : "

// menu reads selections from in until 3, an unknown selection or EOF.
// Failures of a single run are reported and the menu continues.
func menu(ctx context.Context, in io.Reader, out io.Writer, h *harness.Harness, opts options) {
	fmt.Fprint(out, banner)
	sc := bufio.NewScanner(in)
	sc.Split(bufio.ScanWords)

	for {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			break
		}
		fmt.Fprintln(out)

		var sel int
		if _, err := fmt.Sscan(sc.Text(), &sel); err != nil || sel < 0 || sel > 2 {
			break
		}

		var err error
		switch sel {
		case 0:
			err = demo(ctx, out, h, opts)
		case 1:
			_, err = h.TestHardware(ctx)
		case 2:
			h.TestTiming(uint32(opts.loops))
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	fmt.Fprintln(out, "Finish")
}

func demo(ctx context.Context, out io.Writer, h *harness.Harness, opts options) error {
	ls, err := h.Demo(ctx, opts.iterations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Encode+encrypt latency: %v\n", ls)
	if opts.chart == "" {
		return nil
	}

	f, err := os.Create(opts.chart)
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	if err := harness.WriteLatencyChart(f, "Aloha-HE encode+encrypt latency", ls); err != nil {
		f.Close()
		return fmt.Errorf("chart: %w", err)
	}
	return f.Close()
}
