// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package postprocess

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
)

// Chain runs postprocessors in order. The first reads the chain input and
// the last writes the chain output; steps in between exchange RGBA scratch
// images, each returned as soon as the next step has consumed it.
type Chain struct {
	env   *Env
	steps []Postprocessor
}

// NewChain creates a chain. Nil steps are skipped. An empty chain copies.
func NewChain(env *Env, steps ...Postprocessor) *Chain {
	c := &Chain{env: env, steps: make([]Postprocessor, 0, len(steps))}
	for _, s := range steps {
		if s != nil {
			c.steps = append(c.steps, s)
		}
	}
	return c
}

// Len returns the number of steps.
func (c *Chain) Len() int {
	return len(c.steps)
}

func (c *Chain) Evaluate(in, out *gpu.Framebuffer) (err error) {
	if len(c.steps) == 0 {
		return (&Copy{Env: c.env}).Evaluate(in, out)
	}

	var sc cache.Scope
	defer func() { err = errors.Join(err, sc.Close()) }()

	src := in
	var held *cache.Ticket
	for i, step := range c.steps {
		dst := out
		var t *cache.Ticket
		if i < len(c.steps)-1 {
			dst, t, err = borrow(&sc, c.env.Scratch, describe(in))
			if err != nil {
				return fmt.Errorf("postprocess: chain step %d: %w", i, err)
			}
		}
		if err := step.Evaluate(src, dst); err != nil {
			return fmt.Errorf("postprocess: chain step %d: %w", i, err)
		}
		if held != nil {
			if err := sc.Release(held); err != nil {
				return err
			}
		}
		src, held = dst, t
	}
	return nil
}
