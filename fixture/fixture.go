// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package fixture builds the reference vectors for one accelerator run.
//
// A Fixture is generated once from the parameters and a set of seeds by
// running the fabric model through every stage, then treated as
// read-only. Polynomials indexed by modulus follow the order of the
// parameters' RNS basis.
package fixture

import (
	"fmt"
	"math"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/fabric"
)

// Options selects the randomness of a fixture.
type Options struct {
	// Seed drives the secret key, the public-key error and the plaintext.
	Seed uint64
	// ErrorSeed drives the fabric's sampling of v, e0 and e1.
	ErrorSeed uint64
	// PK1Seeds holds one seed per modulus for the second public-key
	// component. Nil derives them from Seed.
	PK1Seeds []uint64
	// Scale is the encoding scale exponent. Zero uses the parameters'
	// LogScale.
	Scale int32
}

// Fixture holds the inputs and every expected intermediate of one
// encrypt/decrypt run.
type Fixture struct {
	Params    aloha.Parameters
	Scale     int32
	ErrorSeed uint64
	PK1Seeds  []uint64

	// Encode and encrypt.
	Input           []uint64
	ExpandedInput   []uint64
	FFTExpected     []uint64
	V, E0, E1       []uint64
	PK0             [][]uint64
	PK1             [][]uint64
	MessageAfterRNS [][]uint64
	VNTT            [][]uint64
	E1NTT           [][]uint64
	C0, C1          [][]uint64

	// Decrypt and decode.
	C0ToDecrypt        []uint64
	C1ToDecrypt        []uint64
	SK                 []uint64
	DecryptedMNTT      []uint64
	INTTReference      []uint64
	IFFTInput          []uint64
	IFFTReference      []uint64
	ProjectedReference []uint64
}

// Keys returns the per-modulus public-key material for Encrypt.
func (f *Fixture) Keys() []aloha.ModulusKeys {
	keys := make([]aloha.ModulusKeys, len(f.PK0))
	for i := range keys {
		keys[i] = aloha.ModulusKeys{PK0: f.PK0[i], PK1Seed: f.PK1Seeds[i]}
	}
	return keys
}

// Slots decodes the plaintext input into its N/2 complex slots.
func (f *Fixture) Slots() []complex128 {
	return fabric.ToComplex(f.Input)
}

// Generate builds the fixture for params.
func Generate(params aloha.Parameters, opts Options) (*Fixture, error) {
	n := params.N()
	scale := opts.Scale
	if scale == 0 {
		scale = params.LogScale()
	}
	if err := aloha.ValidateScale(scale); err != nil {
		return nil, err
	}

	pk1Seeds := opts.PK1Seeds
	if pk1Seeds == nil {
		pk1Seeds = make([]uint64, params.NumModuli())
		for i := range pk1Seeds {
			pk1Seeds[i] = opts.Seed + uint64(i) + 1
		}
	}
	if len(pk1Seeds) != params.NumModuli() {
		return nil, fmt.Errorf("%w: %d pk1 seeds for %d moduli", aloha.ErrInvalidParameters, len(pk1Seeds), params.NumModuli())
	}

	f := &Fixture{
		Params:    params,
		Scale:     scale,
		ErrorSeed: opts.ErrorSeed,
		PK1Seeds:  append([]uint64(nil), pk1Seeds...),
	}

	s, err := fabric.NewSampler(opts.Seed)
	if err != nil {
		return nil, err
	}

	slots := make([]complex128, n/2)
	for i := range slots {
		slots[i] = s.Disk()
	}
	f.Input = make([]uint64, n)
	fabric.FromComplex(f.Input, slots)

	secret := make([]int64, n)
	for i := range secret {
		secret[i] = s.Ternary()
	}
	pkErr := make([]int64, n)
	for i := range pkErr {
		pkErr[i] = s.Binomial()
	}

	g := &generator{
		fixture: f,
		fft:     fabric.NewFFT(),
		ntt:     fabric.NewNTTEngine(),
	}
	if err := g.encode(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := g.encrypt(secret, pkErr); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	if err := g.decrypt(); err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return f, nil
}

type generator struct {
	fixture *Fixture
	fft     *fabric.FFT
	ntt     *fabric.NTTEngine

	// fftOut is the raw forward FFT output feeding the RNS stage.
	fftOut []uint64
	// sk holds the secret key in NTT form per modulus.
	sk [][]uint64
}

func (g *generator) encode() error {
	f := g.fixture
	n := f.Params.N()

	f.ExpandedInput = fabric.Expand(f.Input)

	out, err := g.fft.Transform(f.ExpandedInput, true)
	if err != nil {
		return err
	}
	g.fftOut = out

	// The forward FFT check normalizes the real part by 2^scale/N.
	norm := math.Pow(2, float64(f.Scale)) / float64(n)
	f.FFTExpected = make([]uint64, 2*n)
	for k := 0; k < n; k++ {
		f.FFTExpected[2*k] = math.Float64bits(math.Float64frombits(out[2*k]) * norm)
		f.FFTExpected[2*k+1] = math.Float64bits(math.Float64frombits(out[2*k+1]) * norm)
	}

	ep, err := fabric.SampleErrors(f.ErrorSeed, n)
	if err != nil {
		return err
	}
	f.V, f.E0, f.E1 = ep.V, ep.E0, ep.E1
	return nil
}

func liftSigned(x []int64, q uint64) []uint64 {
	out := make([]uint64, len(x))
	for i, c := range x {
		if c < 0 {
			out[i] = q - uint64(-c)
		} else {
			out[i] = uint64(c)
		}
	}
	return out
}

func negate(x []uint64, q uint64) []uint64 {
	out := make([]uint64, len(x))
	for i, c := range x {
		if c != 0 {
			out[i] = q - c
		}
	}
	return out
}

func (g *generator) encrypt(secret, pkErr []int64) error {
	f := g.fixture
	params := f.Params
	n, moduli := params.N(), params.NumModuli()

	f.PK0 = make([][]uint64, moduli)
	f.PK1 = make([][]uint64, moduli)
	f.MessageAfterRNS = make([][]uint64, moduli)
	f.VNTT = make([][]uint64, moduli)
	f.E1NTT = make([][]uint64, moduli)
	f.C0 = make([][]uint64, moduli)
	f.C1 = make([][]uint64, moduli)
	g.sk = make([][]uint64, moduli)

	for i := 0; i < moduli; i++ {
		q := params.Modulus(i).Q()

		// pk = (e - a*s, a) in NTT form.
		s, e := liftSigned(secret, q), liftSigned(pkErr, q)
		if err := g.ntt.NTTBatch(q, s, e); err != nil {
			return fmt.Errorf("modulus %d: %w", i, err)
		}
		a, err := fabric.SamplePK1(f.PK1Seeds[i], n, q)
		if err != nil {
			return err
		}
		pk0, err := g.ntt.MulAdd(q, a, negate(s, q), e)
		if err != nil {
			return err
		}
		g.sk[i], f.PK0[i], f.PK1[i] = s, pk0, a

		// The RNS stage folds e0 into the rounded message exactly once.
		m := fabric.ToResidues(g.fftOut, f.Scale, q)
		fabric.AddSignMagnitude(m, f.E0, fabric.EBits, q)
		f.MessageAfterRNS[i] = append([]uint64(nil), m...)

		v := fabric.LiftPoly(f.V, fabric.VBits, q)
		e1 := fabric.LiftPoly(f.E1, fabric.EBits, q)
		if err := g.ntt.NTTBatch(q, m, v, e1); err != nil {
			return fmt.Errorf("modulus %d: %w", i, err)
		}
		f.VNTT[i], f.E1NTT[i] = v, e1

		if f.C0[i], err = g.ntt.MulAdd(q, pk0, v, m); err != nil {
			return err
		}
		if f.C1[i], err = g.ntt.MulAdd(q, a, v, e1); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) decrypt() error {
	f := g.fixture
	q := f.Params.Modulus(0).Q()

	f.C0ToDecrypt = append([]uint64(nil), f.C0[0]...)
	f.C1ToDecrypt = append([]uint64(nil), f.C1[0]...)
	f.SK = append([]uint64(nil), g.sk[0]...)

	m, err := g.ntt.MulAdd(q, f.C1ToDecrypt, f.SK, f.C0ToDecrypt)
	if err != nil {
		return err
	}
	f.DecryptedMNTT = append([]uint64(nil), m...)

	if err := g.ntt.INTTBatch(q, m); err != nil {
		return err
	}
	f.INTTReference = m

	f.IFFTInput = fabric.ToFloat(m, -f.Scale, q)
	if f.IFFTReference, err = g.fft.Transform(f.IFFTInput, false); err != nil {
		return err
	}

	n := f.Params.N()
	f.ProjectedReference = fabric.Project(f.IFFTReference)[n:]
	return nil
}
