// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/luxfi/aloha/internal/queue"
	"github.com/luxfi/aloha/internal/storage"
)

// maxJobBody bounds a submitted job document.
const maxJobBody = 1 << 16

// Gateway accepts harness jobs over HTTP and serves their status and reports.
type Gateway struct {
	queue   queue.Queue
	storage storage.Storage
}

func NewGateway(q queue.Queue, store storage.Storage) *Gateway {
	return &Gateway{queue: q, storage: store}
}

// Handler routes:
//
//	POST /jobs              submit a job, returns it with its ID
//	GET  /job/{id}          job status
//	GET  /report/{handle}   stored report of a completed job
//	GET  /reports           handles of every stored report
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/jobs", g.submit)
	mux.HandleFunc("/job/", g.status)
	mux.HandleFunc("/report/", g.report)
	mux.HandleFunc("/reports", g.reports)
	return mux
}

func (g *Gateway) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var job queue.Job
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJobBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !job.Kind.Valid() {
		http.Error(w, "unsupported job kind "+string(job.Kind), http.StatusBadRequest)
		return
	}
	if job.ID == "" {
		id, err := newJobID()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		job.ID = id
	}
	job.ReportHandle = ""
	job.Error = ""

	if err := g.queue.Push(r.Context(), &job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, &job)
}

func (g *Gateway) status(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/job/")
	if id == "" {
		http.Error(w, "job ID required", http.StatusBadRequest)
		return
	}

	job, err := g.queue.Get(r.Context(), id)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, queue.ErrJobNotFound) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (g *Gateway) report(w http.ResponseWriter, r *http.Request) {
	handle := storage.Handle(strings.TrimPrefix(r.URL.Path, "/report/"))
	if err := handle.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := g.storage.Load(r.Context(), handle)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (g *Gateway) reports(w http.ResponseWriter, r *http.Request) {
	handles, err := g.storage.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if handles == nil {
		handles = []storage.Handle{}
	}
	writeJSON(w, http.StatusOK, handles)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func newJobID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
