// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fabric

import (
	"fmt"
	"sync"

	"github.com/luxfi/lattice/v7/ring"
)

type ringKey struct {
	n int
	q uint64
}

// NTTEngine performs negacyclic NTTs and point-wise products mod a single
// prime, with one ring per (degree, modulus) built on first use.
type NTTEngine struct {
	mu    sync.Mutex
	rings map[ringKey]*ring.Ring
}

// NewNTTEngine returns an engine with an empty ring cache.
func NewNTTEngine() *NTTEngine {
	return &NTTEngine{rings: make(map[ringKey]*ring.Ring)}
}

// Ring returns the ring Z_q[X]/(X^n+1).
func (e *NTTEngine) Ring(n int, q uint64) (*ring.Ring, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := ringKey{n, q}
	if r, ok := e.rings[k]; ok {
		return r, nil
	}
	if !ring.IsPrime(q) {
		return nil, fmt.Errorf("modulus %d is not prime", q)
	}
	if (q-1)%uint64(2*n) != 0 {
		return nil, fmt.Errorf("modulus %d is not NTT-friendly for N=%d", q, n)
	}
	r, err := ring.NewRing(n, []uint64{q})
	if err != nil {
		return nil, fmt.Errorf("new ring: %w", err)
	}
	e.rings[k] = r
	return r, nil
}

func load(r *ring.Ring, coeffs []uint64) ring.Poly {
	p := r.NewPoly()
	copy(p.Coeffs[0], coeffs)
	return p
}

// NTTBatch transforms every polynomial in place, in parallel.
func (e *NTTEngine) NTTBatch(q uint64, polys ...[]uint64) error {
	return e.batch(q, polys, false)
}

// INTTBatch inverse-transforms every polynomial in place, in parallel.
func (e *NTTEngine) INTTBatch(q uint64, polys ...[]uint64) error {
	return e.batch(q, polys, true)
}

func (e *NTTEngine) batch(q uint64, polys [][]uint64, inverse bool) error {
	if len(polys) == 0 {
		return nil
	}
	n := len(polys[0])
	for _, p := range polys {
		if len(p) != n {
			return fmt.Errorf("ntt batch: mixed degrees %d and %d", n, len(p))
		}
	}
	r, err := e.Ring(n, q)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, coeffs := range polys {
		wg.Add(1)
		go func(coeffs []uint64) {
			defer wg.Done()
			p := load(r, coeffs)
			if inverse {
				r.INTT(p, p)
			} else {
				r.NTT(p, p)
			}
			copy(coeffs, p.Coeffs[0])
		}(coeffs)
	}
	wg.Wait()
	return nil
}

// MulAdd returns a*b + c mod q, coefficient-wise.
func (e *NTTEngine) MulAdd(q uint64, a, b, c []uint64) ([]uint64, error) {
	n := len(a)
	if len(b) != n || len(c) != n {
		return nil, fmt.Errorf("mul-add: operand lengths %d, %d, %d", n, len(b), len(c))
	}
	r, err := e.Ring(n, q)
	if err != nil {
		return nil, err
	}

	pa, pb, pc := load(r, a), load(r, b), load(r, c)
	prod := r.NewPoly()
	r.MulCoeffsBarrett(pa, pb, prod)
	r.Add(prod, pc, prod)

	out := make([]uint64, n)
	copy(out, prod.Coeffs[0])
	return out, nil
}
