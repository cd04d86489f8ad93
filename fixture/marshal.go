// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fixture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/aloha"
	"github.com/luxfi/aloha/internal/storage"
)

const formatVersion uint32 = 1

// ErrFormat is returned when a serialized fixture cannot be decoded.
var ErrFormat = errors.New("malformed fixture")

// polys lists every polynomial field in serialization order.
func (f *Fixture) polys() []*[]uint64 {
	return []*[]uint64{
		&f.Input, &f.ExpandedInput, &f.FFTExpected, &f.V, &f.E0, &f.E1,
		&f.C0ToDecrypt, &f.C1ToDecrypt, &f.SK, &f.DecryptedMNTT,
		&f.INTTReference, &f.IFFTInput, &f.IFFTReference, &f.ProjectedReference,
	}
}

func (f *Fixture) perModulus() []*[][]uint64 {
	return []*[][]uint64{
		&f.PK0, &f.PK1, &f.MessageAfterRNS, &f.VNTT, &f.E1NTT, &f.C0, &f.C1,
	}
}

type header struct {
	Version   uint32                  `json:"version"`
	Params    aloha.ParametersLiteral `json:"params"`
	Scale     int32                   `json:"scale"`
	ErrorSeed uint64                  `json:"error_seed"`
	PK1Seeds  []uint64                `json:"pk1_seeds"`
}

// MarshalBinary serializes the fixture: a length-prefixed JSON header
// followed by every polynomial as a length-prefixed run of little-endian
// words.
func (f *Fixture) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	hdr, err := json.Marshal(header{
		Version:   formatVersion,
		Params:    f.Params.Literal(),
		Scale:     f.Scale,
		ErrorSeed: f.ErrorSeed,
		PK1Seeds:  f.PK1Seeds,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(hdr))); err != nil {
		return nil, err
	}
	buf.Write(hdr)

	for _, p := range f.polys() {
		if err := writePoly(&buf, *p); err != nil {
			return nil, err
		}
	}
	for _, pm := range f.perModulus() {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(*pm))); err != nil {
			return nil, err
		}
		for _, p := range *pm {
			if err := writePoly(&buf, p); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a fixture written by MarshalBinary.
func (f *Fixture) UnmarshalBinary(data []byte) error {
	r := bufio.NewReader(bytes.NewReader(data))

	var hdrLen uint32
	if err := binary.Read(r, binary.LittleEndian, &hdrLen); err != nil {
		return fmt.Errorf("%w: header length: %v", ErrFormat, err)
	}
	if int(hdrLen) > len(data) {
		return fmt.Errorf("%w: header length %d", ErrFormat, hdrLen)
	}
	raw := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	var hdr header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if hdr.Version != formatVersion {
		return fmt.Errorf("%w: version %d", ErrFormat, hdr.Version)
	}
	params, err := aloha.NewParametersFromLiteral(hdr.Params)
	if err != nil {
		return err
	}

	f.Params = params
	f.Scale = hdr.Scale
	f.ErrorSeed = hdr.ErrorSeed
	f.PK1Seeds = hdr.PK1Seeds

	limit := len(data) / 8
	for _, p := range f.polys() {
		if *p, err = readPoly(r, limit); err != nil {
			return err
		}
	}
	for _, pm := range f.perModulus() {
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return fmt.Errorf("%w: modulus count: %v", ErrFormat, err)
		}
		if int(count) != params.NumModuli() {
			return fmt.Errorf("%w: %d polynomials for %d moduli", ErrFormat, count, params.NumModuli())
		}
		*pm = make([][]uint64, count)
		for i := range *pm {
			if (*pm)[i], err = readPoly(r, limit); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePoly(w io.Writer, p []uint64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(p))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, p)
}

func readPoly(r io.Reader, limit int) ([]uint64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: polynomial length: %v", ErrFormat, err)
	}
	if int(n) > limit {
		return nil, fmt.Errorf("%w: polynomial of %d words", ErrFormat, n)
	}
	p := make([]uint64, n)
	if err := binary.Read(r, binary.LittleEndian, p); err != nil {
		return nil, fmt.Errorf("%w: polynomial: %v", ErrFormat, err)
	}
	return p, nil
}

// Save stores the serialized fixture and returns its handle.
func (f *Fixture) Save(ctx context.Context, s storage.Storage) (storage.Handle, error) {
	data, err := f.MarshalBinary()
	if err != nil {
		return "", err
	}
	return s.Store(ctx, data)
}

// Load retrieves and decodes a fixture from storage.
func Load(ctx context.Context, s storage.Storage, h storage.Handle) (*Fixture, error) {
	data, err := s.Load(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("load fixture %s: %w", h, err)
	}
	f := new(Fixture)
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return f, nil
}
