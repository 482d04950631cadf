// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package postprocess

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/fbcache"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/shader"
)

// DefaultThreshold is the luminance above which pixels glow.
const DefaultThreshold = 0.8

// Emission adds a glow around bright pixels. The bright parts are
// extracted and blurred at half resolution, then added to the input.
type Emission struct {
	Env       *Env
	Intensity float32
	Radius    int
	Threshold float32
}

// NewEmission returns a glow with the default threshold.
func NewEmission(env *Env, intensity float32, radius int) *Emission {
	return &Emission{Env: env, Intensity: intensity, Radius: radius, Threshold: DefaultThreshold}
}

func (e *Emission) Evaluate(in, out *gpu.Framebuffer) (err error) {
	src, err := firstColor("emission", in)
	if err != nil {
		return err
	}
	half := fbcache.Description{Width: max(in.Width()/2, 1), Height: max(in.Height()/2, 1)}

	var sc cache.Scope
	defer func() { err = errors.Join(err, sc.Close()) }()

	bright, _, err := borrow(&sc, e.Env.Scratch, half)
	if err != nil {
		return fmt.Errorf("postprocess: emission: %w", err)
	}
	extract := Pass{Threshold: e.Threshold}
	if err := e.Env.Draw(shader.Postprocessing, shader.EmissionExtract, bright, []gpu.Texture{src}, extract); err != nil {
		return err
	}

	glow, _, err := borrow(&sc, e.Env.Scratch, half)
	if err != nil {
		return fmt.Errorf("postprocess: emission: %w", err)
	}
	if err := NewBlur(e.Env, e.Radius).Evaluate(bright, glow); err != nil {
		return err
	}

	combine := Pass{Intensity: e.Intensity}
	return e.Env.Draw(shader.Postprocessing, shader.EmissionCombine, out, []gpu.Texture{src, glow.Color(0)}, combine)
}
