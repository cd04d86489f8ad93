// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package aloha

import "errors"

// Common errors.
var (
	// ErrScaleOutOfRange is returned before any bus access when a scale
	// exponent falls outside [-256, 256).
	ErrScaleOutOfRange = errors.New("scale out of bounds")
	// ErrHardwareTimeout is returned when the fabric or the DMA engine does
	// not signal completion within the configured bound.
	ErrHardwareTimeout = errors.New("hardware unresponsive")
	// ErrBufferSize is returned when a present operand has the wrong length.
	ErrBufferSize = errors.New("buffer size mismatch")
	// ErrInvalidParameters is returned for malformed parameter sets.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInvalidRegion is returned for a region outside the enumeration.
	ErrInvalidRegion = errors.New("invalid buffer region")
)
