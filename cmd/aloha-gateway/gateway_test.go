// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aloha/internal/queue"
	"github.com/luxfi/aloha/internal/storage"
)

func TestGateway(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(4)
	store := storage.NewMemoryStorage(1)
	srv := httptest.NewServer(NewGateway(q, store).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/jobs", "application/json",
		strings.NewReader(`{"kind":"test","log_n":13,"seed":1,"error_seed":2}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var job queue.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()
	require.Len(t, job.ID, 16)
	require.Equal(t, queue.StatusPending, job.Status)

	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, popped.ID)
	require.Equal(t, uint64(2), popped.ErrorSeed)

	handle, err := store.Store(ctx, []byte(`{"job_id":"x"}`))
	require.NoError(t, err)
	popped.Status = queue.StatusCompleted
	popped.ReportHandle = string(handle)
	require.NoError(t, q.Update(ctx, popped))

	resp, err = http.Get(srv.URL + "/job/" + job.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()
	require.Equal(t, queue.StatusCompleted, job.Status)

	resp, err = http.Get(srv.URL + "/report/" + job.ReportHandle)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"job_id":"x"}`, string(body))

	resp, err = http.Get(srv.URL + "/reports")
	require.NoError(t, err)
	var handles []storage.Handle
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&handles))
	resp.Body.Close()
	require.Equal(t, []storage.Handle{handle}, handles)
}

func TestGatewayRejects(t *testing.T) {
	srv := httptest.NewServer(NewGateway(queue.NewMemoryQueue(1), storage.NewMemoryStorage(1)).Handler())
	defer srv.Close()

	for _, tc := range []struct {
		method, path, body string
		code               int
	}{
		{http.MethodGet, "/jobs", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/jobs", `{"kind":"bootstrap"}`, http.StatusBadRequest},
		{http.MethodPost, "/jobs", `{"kind":"test","extra":1}`, http.StatusBadRequest},
		{http.MethodGet, "/job/", "", http.StatusBadRequest},
		{http.MethodGet, "/job/missing", "", http.StatusNotFound},
		{http.MethodGet, "/report/xyz", "", http.StatusBadRequest},
		{http.MethodGet, "/report/" + string(storage.ComputeHandle([]byte("none"))), "", http.StatusNotFound},
	} {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, tc.code, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}
