// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires stored blobs; zero keeps them forever.
	TTL time.Duration
}

// RedisStorage implements Storage on Redis string keys.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects to Redis and stores blobs under
// "aloha:blob:<namespace>:".
func NewRedisStorage(cfg RedisConfig, namespace string) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStorage(client, namespace, cfg.TTL), nil
}

func newRedisStorage(client *redis.Client, namespace string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: "aloha:blob:" + namespace + ":",
		ttl:    ttl,
	}
}

func (s *RedisStorage) key(h Handle) string { return s.prefix + string(h) }

func (s *RedisStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	// SETNX keeps the first write; identical content makes it a no-op.
	if err := s.client.SetNX(ctx, s.key(handle), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return handle, nil
}

func (s *RedisStorage) Load(ctx context.Context, handle Handle) ([]byte, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load blob: %w", err)
	}
	return data, nil
}

func (s *RedisStorage) Delete(ctx context.Context, handle Handle) error {
	n, err := s.client.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("exists blob: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStorage) List(ctx context.Context) ([]Handle, error) {
	var handles []Handle
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		if h := Handle(strings.TrimPrefix(iter.Val(), s.prefix)); h.Validate() == nil {
			handles = append(handles, h)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	slices.Sort(handles)
	return handles, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
