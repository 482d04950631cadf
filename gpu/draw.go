// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import "fmt"

// Validate checks a draw command before it reaches a device. Devices call
// it first so every implementation rejects the same commands.
func (c *DrawCommand) Validate() error {
	switch {
	case c.Program == nil:
		return fmt.Errorf("%w: %q has no program", ErrInvalidDraw, c.Label)
	case c.Target == nil:
		return fmt.Errorf("%w: %q has no target", ErrInvalidDraw, c.Label)
	case c.Indices != nil && c.IndexCount == 0:
		return fmt.Errorf("%w: %q has an index buffer but no indices", ErrInvalidDraw, c.Label)
	case c.Indices == nil && c.VertexCount == 0:
		return fmt.Errorf("%w: %q draws no vertices", ErrInvalidDraw, c.Label)
	}
	for i, in := range c.Inputs {
		if in == nil {
			return fmt.Errorf("%w: %q input %d is nil", ErrInvalidDraw, c.Label, i)
		}
		if c.Target.Has(in) {
			return fmt.Errorf("%w: %q input %d is %q", ErrFeedbackLoop, c.Label, i, in.Label())
		}
	}
	return nil
}

// InstanceCount returns Instances, defaulting to 1.
func (c *DrawCommand) InstanceCount() uint32 {
	if c.Instances == 0 {
		return 1
	}
	return c.Instances
}
