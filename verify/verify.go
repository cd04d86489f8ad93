// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package verify compares accelerator outputs against reference vectors.
//
// Integer-domain polynomials are compared with a signed coefficient delta,
// floating-domain polynomials with a relative tolerance. Mismatches are
// counted, never returned as errors: a run keeps going so that one report
// covers every stage.
package verify

import (
	"fmt"
	"io"
	"math"
)

// MaxReported is the number of mismatches kept per check.
const MaxReported = 10

// CompareDouble reports whether b matches a within the relative tolerance
// eps. When a is zero it tests b < eps, otherwise when b is zero it tests
// a < eps; neither zero case takes an absolute value. Otherwise it tests
// |b/a - 1| < eps.
func CompareDouble(a, b, eps float64) bool {
	if a == 0 {
		return b < eps
	}
	if b == 0 {
		return a < eps
	}
	return math.Abs(b/a-1) < eps
}

// Mismatch is one coefficient that failed a check.
type Mismatch struct {
	Index int
	// Got and Want are the raw words.
	Got, Want uint64
	// Part is "re" or "im" for element-wise floating checks.
	Part string
	// Float marks a floating-domain mismatch; GotFloat is the normalized
	// result and WantFloat the reference.
	Float               bool
	GotFloat, WantFloat float64
}

// Result is the outcome of one check.
type Result struct {
	Name    string
	Modulus int
	// Count is the total number of mismatches.
	Count int
	// Compared is the number of coefficients compared.
	Compared   int
	Mismatches []Mismatch
}

// Failed reports whether any coefficient mismatched.
func (r Result) Failed() bool { return r.Count != 0 }

func (r *Result) add(m Mismatch) {
	if r.Count < MaxReported {
		r.Mismatches = append(r.Mismatches, m)
	}
	r.Count++
}

// CheckPoly compares integer-domain polynomials. A coefficient passes if
// the signed difference res[i]-ref[i] lies in [-deltaMax, deltaMax].
func CheckPoly(res, ref []uint64, name string, modulus int, deltaMax int64) Result {
	r := Result{Name: name, Modulus: modulus, Compared: len(ref)}
	for i := range ref {
		delta := int64(res[i] - ref[i])
		if delta > deltaMax || delta < -deltaMax {
			r.add(Mismatch{Index: i, Got: res[i], Want: ref[i]})
		}
	}
	return r
}

// CheckPolyFFT compares floating-domain polynomials of size complex
// values. In forward mode the real part of each result coefficient is
// scaled by 2^scale/size before it is compared with the real part of the
// reference; imaginary parts are ignored. Otherwise all 2*size doubles are
// compared as they are.
func CheckPolyFFT(res, ref []uint64, size int, forward bool, name string, eps float64, scale int32) Result {
	r := Result{Name: name}
	if forward {
		r.Compared = size
		for i := 0; i < size; i++ {
			a := math.Float64frombits(res[2*i])
			a *= math.Pow(2, float64(scale)) / float64(size)
			b := math.Float64frombits(ref[2*i])
			if !CompareDouble(a, b, eps) {
				r.add(Mismatch{Index: i, Got: res[2*i], Want: ref[2*i], Float: true, GotFloat: a, WantFloat: b})
			}
		}
		return r
	}

	r.Compared = 2 * size
	for i := 0; i < 2*size; i++ {
		a := math.Float64frombits(res[i])
		b := math.Float64frombits(ref[i])
		if !CompareDouble(a, b, eps) {
			part := "re"
			if i%2 == 1 {
				part = "im"
			}
			r.add(Mismatch{Index: i / 2, Got: res[i], Want: ref[i], Part: part, Float: true, GotFloat: a, WantFloat: b})
		}
	}
	return r
}

// WriteTo prints one line per kept mismatch.
func (r Result) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, m := range r.Mismatches {
		var n int
		var err error
		switch {
		case !m.Float:
			n, err = fmt.Fprintf(w, "Error: modulus %d: %s[%d]: result: %x, expected: %x\n",
				r.Modulus, r.Name, m.Index, m.Got, m.Want)
		case m.Part != "":
			n, err = fmt.Fprintf(w, "Error FFT: %s[%d] %s : result: %x (%f), expected: %x (%f)\n",
				r.Name, m.Index, m.Part, m.Got, m.GotFloat, m.Want, m.WantFloat)
		default:
			n, err = fmt.Fprintf(w, "Error FFT: %s[%d]: result: %x (%f), expected: %x (%f)\n",
				r.Name, m.Index, m.Got, m.GotFloat, m.Want, m.WantFloat)
		}
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
