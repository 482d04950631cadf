// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package postprocess

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/fbcache"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/shader"
)

// Blur is a separable gaussian blur. Each pass blurs horizontally into a
// scratch image and vertically into the output. Variance blurs work on
// depth moments and borrow their scratch image from Env.Variance.
//
// in and out may be the same image: no draw reads the target it writes.
type Blur struct {
	Env *Env
	// Radius is the kernel half-width in texels.
	Radius int
	// Passes repeats the blur; later passes read the previous output.
	Passes   int
	Variance bool
}

// NewBlur returns a single-pass color blur.
func NewBlur(env *Env, radius int) *Blur {
	return &Blur{Env: env, Radius: radius, Passes: 1}
}

// NewVarianceBlur returns a single-pass blur of depth moments.
func NewVarianceBlur(env *Env, radius int) *Blur {
	return &Blur{Env: env, Radius: radius, Passes: 1, Variance: true}
}

func (b *Blur) scratch() (*fbcache.Cache, string) {
	if b.Variance {
		return b.Env.Variance, shader.VarianceBlurProgram
	}
	return b.Env.Scratch, shader.BlurProgram
}

func (b *Blur) Evaluate(in, out *gpu.Framebuffer) (err error) {
	src, err := firstColor("blur", in)
	if err != nil {
		return err
	}
	scratches, program := b.scratch()
	if b.Radius <= 0 || b.Passes <= 0 {
		if b.Variance {
			return fmt.Errorf("postprocess: variance blur with radius %d and %d passes", b.Radius, b.Passes)
		}
		if out.Color(0) == src {
			return nil
		}
		return (&Copy{Env: b.Env}).Evaluate(in, out)
	}
	if scratches == nil {
		return errors.New("postprocess: blur has no scratch cache")
	}

	tmp, ticket, err := scratches.Borrow(describe(in))
	if err != nil {
		return fmt.Errorf("postprocess: blur scratch: %w", err)
	}
	defer func() { err = errors.Join(err, ticket.Return()) }()

	radius := float32(b.Radius)
	for i := 0; i < b.Passes; i++ {
		if i > 0 {
			src = out.Color(0)
		}
		h := Pass{Direction: [2]float32{1, 0}, Radius: radius}
		if err := b.Env.Draw(shader.Postprocessing, program, tmp, []gpu.Texture{src}, h); err != nil {
			return err
		}
		v := Pass{Direction: [2]float32{0, 1}, Radius: radius}
		if err := b.Env.Draw(shader.Postprocessing, program, out, []gpu.Texture{tmp.Color(0)}, v); err != nil {
			return err
		}
	}
	deferred.Logger().Debug("postprocess: blur", "program", program, "radius", b.Radius, "passes", b.Passes)
	return nil
}

// borrow borrows from c and registers the ticket with s.
func borrow(s *cache.Scope, c *fbcache.Cache, d fbcache.Description) (*gpu.Framebuffer, *cache.Ticket, error) {
	fb, t, err := c.Borrow(d)
	if err != nil {
		return nil, nil, err
	}
	s.Hold(t)
	return fb, t, nil
}
