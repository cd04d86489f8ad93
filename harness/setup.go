// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package harness

import (
	"context"
	"fmt"
	"io"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fabric"
	"github.com/luxfi/aloha/fixture"
	"github.com/luxfi/aloha/internal/storage"
)

// Preset returns the standard parameter set of degree 2^logN restricted to
// its first moduli primes. Zero values select degree 2^13 and the full
// basis.
func Preset(logN, moduli int) (aloha.Parameters, error) {
	var lit aloha.ParametersLiteral
	switch logN {
	case 0, 13:
		lit = aloha.PN13
	case 14:
		lit = aloha.PN14
	case 15:
		lit = aloha.PN15
	default:
		return aloha.Parameters{}, fmt.Errorf("%w: no preset for LogN=%d", aloha.ErrInvalidParameters, logN)
	}
	if moduli < 0 || moduli > len(lit.Moduli) {
		return aloha.Parameters{}, fmt.Errorf("%w: %d moduli requested, preset has %d",
			aloha.ErrInvalidParameters, moduli, len(lit.Moduli))
	}
	if moduli > 0 {
		lit.Moduli = lit.Moduli[:moduli]
	}
	return aloha.NewParametersFromLiteral(lit)
}

// PrepareFixture loads the fixture stored under handle, or generates one
// when handle is empty. A generated fixture is saved when store is non-nil
// and its handle returned.
func PrepareFixture(ctx context.Context, store storage.Storage, handle storage.Handle, params aloha.Parameters, opts fixture.Options) (*fixture.Fixture, storage.Handle, error) {
	if handle != "" {
		if store == nil {
			return nil, "", fmt.Errorf("fixture %s: no storage configured", handle)
		}
		f, err := fixture.Load(ctx, store, handle)
		if err != nil {
			return nil, "", err
		}
		if f.Params.N() != params.N() || f.Params.NumModuli() != params.NumModuli() {
			return nil, "", fmt.Errorf("fixture %s: %w: stored for N=%d with %d moduli",
				handle, aloha.ErrInvalidParameters, f.Params.N(), f.Params.NumModuli())
		}
		return f, handle, nil
	}

	f, err := fixture.Generate(params, opts)
	if err != nil {
		return nil, "", fmt.Errorf("generate fixture: %w", err)
	}
	if store == nil {
		return f, "", nil
	}
	h, err := f.Save(ctx, store)
	if err != nil {
		return nil, "", err
	}
	return f, h, nil
}

// NewSimulated returns a harness over a fresh simulator, which serves as
// both transport and clock.
func NewSimulated(f *fixture.Fixture, cfg aloha.Config, out io.Writer) (*Harness, *fabric.Sim, error) {
	sim := fabric.NewSim()
	acc, err := aloha.NewAccelerator(f.Params, sim, cfg)
	if err != nil {
		return nil, nil, err
	}
	h, err := New(acc, f, sim, out)
	if err != nil {
		return nil, nil, err
	}
	return h, sim, nil
}
