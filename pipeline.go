// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import (
	"context"
	"fmt"

	"github.com/luxfi/lattice/v7/utils"
)

// Constant-table selectors with special handling in the pipeline.
const (
	constantsRemapped  = 15
	constantsForward15 = 16
	constantsInverse15 = 17
	constantsInverse   = 15
)

// ForwardNTTConstants returns the table the encrypt path selects for a
// modulus whose descriptor names sel. Table 15 is replaced by 16.
func ForwardNTTConstants(sel uint32) uint32 {
	if sel == constantsRemapped {
		return constantsForward15
	}
	return sel
}

// InverseNTTConstants returns the table the decrypt path selects for a
// modulus whose descriptor names sel: 17 for table 15, otherwise 15.
func InverseNTTConstants(sel uint32) uint32 {
	if sel == constantsRemapped {
		return constantsInverse15
	}
	return constantsInverse
}

// Cycles is the total fabric cycle count of a pipeline run.
type Cycles uint64

func (c *Cycles) add(stage uint32) { *c += Cycles(stage) }

// EncryptArgs holds the operands of one encode+encrypt.
type EncryptArgs struct {
	// Plaintext is N words: N/2 complex slots as interleaved doubles.
	Plaintext []uint64
	// ErrorSeed drives the sampling of v, e0 and e1.
	ErrorSeed uint64
	// Keys holds one entry per modulus.
	Keys  []ModulusKeys
	Scale int32
	// C0 and C1 receive one N-word ciphertext component per modulus.
	C0, C1 [][]uint64
	// VNTT and E1NTT optionally receive v and e1 in NTT form per modulus.
	VNTT, E1NTT [][]uint64
}

// DecryptArgs holds the operands of one decrypt+decode under the first
// modulus.
type DecryptArgs struct {
	C0, C1, SK []uint64
	// Plaintext receives the N decoded words.
	Plaintext []uint64
	Scale     int32
}

func (a *Accelerator) validateEncrypt(args EncryptArgs) error {
	n, k := a.params.N(), a.params.NumModuli()
	if len(args.Plaintext) != n {
		return fmt.Errorf("%w: plaintext has %d words, want %d", ErrBufferSize, len(args.Plaintext), n)
	}
	if err := ValidateScale(args.Scale); err != nil {
		return err
	}
	if len(args.Keys) != k || len(args.C0) != k || len(args.C1) != k {
		return fmt.Errorf("%w: got %d keys, %d c0, %d c1 for %d moduli",
			ErrBufferSize, len(args.Keys), len(args.C0), len(args.C1), k)
	}
	for _, opt := range [][][]uint64{args.VNTT, args.E1NTT} {
		if opt != nil && len(opt) != k {
			return fmt.Errorf("%w: %d optional drains for %d moduli", ErrBufferSize, len(opt), k)
		}
	}
	for i := 0; i < k; i++ {
		if len(args.Keys[i].PK0) != n || len(args.C0[i]) != n || len(args.C1[i]) != n {
			return fmt.Errorf("%w: modulus %d operands must have %d words", ErrBufferSize, i, n)
		}
		if args.VNTT != nil {
			if err := checkLen("v ntt", args.VNTT[i], n); err != nil {
				return err
			}
		}
		if args.E1NTT != nil {
			if err := checkLen("e1 ntt", args.E1NTT[i], n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encrypt encodes and encrypts args.Plaintext under every modulus of the
// parameters. The accelerator is held for the whole call.
//
// The forward FFT runs once; the v, e0 and e1 it samples are shared by
// every modulus iteration.
func (a *Accelerator) Encrypt(ctx context.Context, args EncryptArgs) (Cycles, error) {
	if err := a.validateEncrypt(args); err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var total Cycles
	err := a.DMAToRegion(ctx, RegionFFTExpand, args.Plaintext, LayoutExpand(a.params.DegreeClass()))
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	c, err := a.FFT(ctx, FFTArgs{Forward: true, Seed: utils.Pointy(args.ErrorSeed)})
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}
	total.add(c)

	for i, m := range a.params.moduli {
		c, err := a.encryptModulus(ctx, i, m, args)
		if err != nil {
			return 0, fmt.Errorf("encrypt modulus %d: %w", i, err)
		}
		total += c
	}
	a.logger.Printf("encrypt: %d moduli, %d cycles", a.params.NumModuli(), total)
	return total, nil
}

func (a *Accelerator) encryptModulus(ctx context.Context, i int, m Modulus, args EncryptArgs) (Cycles, error) {
	var total Cycles

	if err := a.DMAToRegion(ctx, RegionNTTKey, args.Keys[i].PK0, LayoutDirect); err != nil {
		return 0, err
	}

	c, err := a.RNS(ctx, RNSArgs{Modulus: m, Scale: args.Scale})
	if err != nil {
		return 0, err
	}
	total.add(c)

	c, err = a.NTT(ctx, NTTArgs{
		Modulus:   m,
		Constants: ForwardNTTConstants(m.NTTConstants),
		Forward:   true,
		Region:    RegionNTTMessage,
		Seed:      utils.Pointy(args.Keys[i].PK1Seed),
	})
	if err != nil {
		return 0, err
	}
	total.add(c)

	if args.VNTT != nil {
		if _, err := a.NTT(ctx, NTTArgs{Result: args.VNTT[i], Modulus: m, Forward: true, Skip: true, Region: RegionNTTV}); err != nil {
			return 0, err
		}
	}
	if args.E1NTT != nil {
		if _, err := a.NTT(ctx, NTTArgs{Result: args.E1NTT[i], Modulus: m, Forward: true, Skip: true, Region: RegionNTTE1}); err != nil {
			return 0, err
		}
	}

	if c, err = a.PWM(ctx, PWMArgs{Modulus: m}); err != nil {
		return 0, err
	}
	total.add(c)

	if err := a.DMAFromRegion(ctx, args.C0[i], RegionNTTMessage); err != nil {
		return 0, err
	}
	if err := a.DMAFromRegion(ctx, args.C1[i], RegionNTTKey); err != nil {
		return 0, err
	}
	return total, nil
}

// Decrypt decrypts (C0, C1) under SK and decodes the result into
// args.Plaintext. The accelerator is held for the whole call.
func (a *Accelerator) Decrypt(ctx context.Context, args DecryptArgs) (Cycles, error) {
	n := a.params.N()
	for _, in := range []struct {
		name string
		buf  []uint64
	}{{"c0", args.C0}, {"c1", args.C1}, {"sk", args.SK}, {"plaintext", args.Plaintext}} {
		if len(in.buf) != n {
			return 0, fmt.Errorf("decrypt: %w: %s has %d words, want %d", ErrBufferSize, in.name, len(in.buf), n)
		}
	}
	if err := ValidateScale(-args.Scale); err != nil {
		return 0, fmt.Errorf("decrypt: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.params.Modulus(0)
	for _, in := range []struct {
		dst Region
		buf []uint64
	}{{RegionNTTMessage, args.C0}, {RegionNTTKey, args.C1}, {RegionNTTV, args.SK}} {
		if err := a.DMAToRegion(ctx, in.dst, in.buf, LayoutDirect); err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
	}

	var total Cycles
	stages := []func() (uint32, error){
		func() (uint32, error) { return a.PWM(ctx, PWMArgs{Modulus: m}) },
		func() (uint32, error) {
			return a.NTT(ctx, NTTArgs{Modulus: m, Constants: InverseNTTConstants(m.NTTConstants), Region: RegionNTTMessage})
		},
		func() (uint32, error) { return a.I2F(ctx, I2FArgs{Modulus: m, Scale: -args.Scale}) },
		func() (uint32, error) { return a.FFT(ctx, FFTArgs{}) },
		func() (uint32, error) { return a.Project(ctx, ProjectArgs{Result: args.Plaintext}) },
	}
	for _, stage := range stages {
		c, err := stage()
		if err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
		total.add(c)
	}
	a.logger.Printf("decrypt: %d cycles", total)
	return total, nil
}
