// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrFeedbackLoop is returned when a draw samples one of its own
	// render-target attachments.
	ErrFeedbackLoop = errors.New("gpu: draw samples its own render target")

	// ErrInvalidDraw is returned for structurally invalid draw commands.
	ErrInvalidDraw = errors.New("gpu: invalid draw command")

	// ErrInvalidDescriptor is returned for invalid resource descriptors.
	ErrInvalidDescriptor = errors.New("gpu: invalid descriptor")

	// ErrForeignResource is returned when a resource created by another
	// device is passed in.
	ErrForeignResource = errors.New("gpu: resource not created by this device")

	// ErrDestroyed is returned when a destroyed resource is used or
	// destroyed again.
	ErrDestroyed = errors.New("gpu: resource already destroyed")

	// ErrNoHAL is returned by NewHALDeviceFromProvider when the provider
	// does not expose HAL objects.
	ErrNoHAL = errors.New("gpu: provider does not expose HAL types")
)

// OpError is a failed GPU operation.
type OpError struct {
	// Op is the device operation, such as "create texture" or "draw".
	Op string
	// Label is the debug label of the resource or command involved.
	Label string
	Err   error
}

func (e *OpError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("gpu: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gpu: %s %q: %v", e.Op, e.Label, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, label string, err error) error {
	return &OpError{Op: op, Label: label, Err: err}
}
