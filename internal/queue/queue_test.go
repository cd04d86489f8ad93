// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	defer q.Close()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, q.Push(ctx, &Job{ID: id, Kind: KindTest, LogN: 13}))
	}

	job, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", job.ID)
	require.Equal(t, StatusPending, job.Status)
	require.False(t, job.CreatedAt.IsZero())

	job.Status = StatusCompleted
	job.ReportHandle = "h"
	require.NoError(t, q.Update(ctx, job))

	got, err := q.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "h", got.ReportHandle)

	job, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", job.ID)

	_, err = q.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, q.Update(ctx, &Job{ID: "missing"}), ErrJobNotFound)
}

func TestMemoryQueuePopBlocks(t *testing.T) {
	q := NewMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	_, err = q.Pop(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindDemo, KindTest, KindTiming} {
		require.True(t, k.Valid())
	}
	require.False(t, Kind("bootstrap").Valid())
	require.Equal(t, "failed", StatusFailed.String())
}

func TestJobJSON(t *testing.T) {
	data, err := json.Marshal(Job{ID: "x", Kind: KindDemo, Iterations: 50})
	require.NoError(t, err)
	require.Contains(t, string(data), `"kind":"demo"`)
	require.Contains(t, string(data), `"iterations":50`)
	require.NotContains(t, string(data), "log_n")
}
