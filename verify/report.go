// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package verify

import (
	"fmt"
	"io"
	"sync"
)

// Report accumulates the results of a test run.
type Report struct {
	mu      sync.Mutex
	results []Result
	out     io.Writer
}

// NewReport returns an empty report. If out is non-nil, mismatch lines of
// failed checks are written to it as results arrive.
func NewReport(out io.Writer) *Report {
	return &Report{out: out}
}

// Add records r and returns it.
func (rep *Report) Add(r Result) Result {
	rep.mu.Lock()
	defer rep.mu.Unlock()

	rep.results = append(rep.results, r)
	if rep.out != nil && r.Failed() {
		r.WriteTo(rep.out)
	}
	return r
}

// Results returns every recorded result in order.
func (rep *Report) Results() []Result {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	return append([]Result(nil), rep.results...)
}

// Failures returns the failed results.
func (rep *Report) Failures() []Result {
	rep.mu.Lock()
	defer rep.mu.Unlock()

	var failed []Result
	for _, r := range rep.results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// OK reports whether no check failed.
func (rep *Report) OK() bool { return len(rep.Failures()) == 0 }

// WriteTo prints a summary line per check followed by the mismatches of
// failed checks.
func (rep *Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, r := range rep.Results() {
		status := "ok"
		if r.Failed() {
			status = fmt.Sprintf("%d/%d mismatches", r.Count, r.Compared)
		}
		n, err := fmt.Fprintf(w, "%-20s modulus %d: %s\n", r.Name, r.Modulus, status)
		total += int64(n)
		if err != nil {
			return total, err
		}
		m, err := r.WriteTo(w)
		total += m
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
