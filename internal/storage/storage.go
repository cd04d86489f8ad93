// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package storage provides content-addressed storage for fixtures and run
// reports.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/zeebo/blake3"
)

// Common errors.
var (
	ErrNotFound      = errors.New("blob not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid blob handle")
)

// handleSize is the digest length in bytes.
const handleSize = 32

// Handle uniquely identifies a blob by its content.
type Handle string

// ComputeHandle derives the handle of data: the hex BLAKE3 digest.
func ComputeHandle(data []byte) Handle {
	sum := blake3.Sum256(data)
	return Handle(hex.EncodeToString(sum[:]))
}

// Validate checks that h has the shape of a handle.
func (h Handle) Validate() error {
	if len(h) != 2*handleSize {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, string(h))
	}
	if _, err := hex.DecodeString(string(h)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, string(h))
	}
	return nil
}

// Storage is a content-addressed blob store. Storing the same content
// twice returns the same handle and keeps one copy.
type Storage interface {
	Store(ctx context.Context, data []byte) (Handle, error)
	Load(ctx context.Context, handle Handle) ([]byte, error)
	Delete(ctx context.Context, handle Handle) error
	Exists(ctx context.Context, handle Handle) (bool, error)
	// List returns every stored handle in lexical order.
	List(ctx context.Context) ([]Handle, error)
	Close() error
}

// MemoryStorage keeps blobs in process, up to a byte budget.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[Handle][]byte
	used  int64
	limit int64
}

// NewMemoryStorage returns a store holding at most capacityMB megabytes.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		blobs: make(map[Handle][]byte),
		limit: capacityMB << 20,
	}
}

func (s *MemoryStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	h := ComputeHandle(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[h]; ok {
		return h, nil
	}
	if s.used+int64(len(data)) > s.limit {
		return "", fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, s.used, s.limit)
	}
	s.blobs[h] = slices.Clone(data)
	s.used += int64(len(data))
	return h, nil
}

func (s *MemoryStorage) Load(ctx context.Context, h Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[h]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(blob), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[h]
	if !ok {
		return ErrNotFound
	}
	delete(s.blobs, h)
	s.used -= int64(len(blob))
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, h Handle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[h]
	return ok, nil
}

func (s *MemoryStorage) List(ctx context.Context) ([]Handle, error) {
	s.mu.RLock()
	handles := make([]Handle, 0, len(s.blobs))
	for h := range s.blobs {
		handles = append(handles, h)
	}
	s.mu.RUnlock()
	slices.Sort(handles)
	return handles, nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.blobs)
	s.used = 0
	return nil
}

// FileStorage keeps one file per blob under a root directory, sharded by
// the first digest byte.
type FileStorage struct {
	root string
}

// NewFileStorage returns a store rooted at dir, creating it if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{root: dir}, nil
}

func (s *FileStorage) path(h Handle) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(s.root, string(h[:2]), string(h)), nil
}

func (s *FileStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	h := ComputeHandle(data)
	path, err := s.path(h)
	if err != nil {
		return "", err
	}
	switch ok, err := s.Exists(ctx, h); {
	case err != nil:
		return "", err
	case ok:
		return h, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", werr)
	}
	return h, nil
}

func (s *FileStorage) Load(ctx context.Context, h Handle) ([]byte, error) {
	path, err := s.path(h)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FileStorage) Delete(ctx context.Context, h Handle) error {
	path, err := s.path(h)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, h Handle) (bool, error) {
	path, err := s.path(h)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(path); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob: %w", err)
	}
}

// List walks the shard directories. Temporary files and anything that is
// not a handle are ignored.
func (s *FileStorage) List(ctx context.Context) ([]Handle, error) {
	var handles []Handle
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if h := Handle(d.Name()); h.Validate() == nil {
			handles = append(handles, h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	slices.Sort(handles)
	return handles, nil
}

func (s *FileStorage) Close() error { return nil }
