// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package postprocess implements screen-space passes over rendered images:
// copy, separable blur, emission glow and FXAA, and chains of them.
//
// Every pass reads the first color attachment of its input and draws a
// full-screen quad into its output. Intermediate images are borrowed from
// framebuffer caches and returned before Evaluate returns, on success and
// on failure.
package postprocess

import (
	"fmt"

	"github.com/gogpu/deferred/fbcache"
	"github.com/gogpu/deferred/geometry"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/shader"
)

// Postprocessor transforms an image. in and out must not share
// attachments unless the implementation says otherwise; Blur allows it.
type Postprocessor interface {
	Evaluate(in, out *gpu.Framebuffer) error
}

// Env is what the passes draw with. Scratch provides RGBA intermediates;
// Variance provides them for variance blurs and may be nil when no such
// blur is used.
type Env struct {
	Device   gpu.Device
	Shaders  *shader.Set
	Quad     *geometry.MeshCache[geometry.QuadKey]
	Scratch  *fbcache.Cache
	Variance *fbcache.Cache
}

// Pass is the uniform block of a screen pass.
type Pass struct {
	// Direction is the blur step in texels.
	Direction [2]float32
	Radius    float32
	Intensity float32
	Threshold float32
	// Rect is the clip-space offset and scale of the quad. The zero value
	// covers the whole target.
	Rect [4]float32
	// Area is the pixel origin and size the quad covers.
	Area [4]float32
}

func (p Pass) encode(target *gpu.Framebuffer) []byte {
	rect := p.Rect
	if rect == ([4]float32{}) {
		rect = [4]float32{0, 0, 1, 1}
	}
	area := p.Area
	if area == ([4]float32{}) {
		area = [4]float32{0, 0, float32(target.Width()), float32(target.Height())}
	}
	var u shader.Uniforms
	u.Vec4(float32(target.Width()), float32(target.Height()), p.Direction[0], p.Direction[1]).
		Vec4(p.Radius, p.Intensity, p.Threshold, 0).
		Vec4(rect[0], rect[1], rect[2], rect[3]).
		Vec4(area[0], area[1], area[2], area[3])
	return u.Bytes()
}

// Draw runs program of stage over target as a screen quad.
func (e *Env) Draw(stage shader.Stage, program string, target *gpu.Framebuffer, inputs []gpu.Texture, pass Pass) error {
	return e.DrawUniforms(stage, program, target, inputs, pass.encode(target))
}

// DrawUniforms is Draw with a caller-encoded uniform block.
func (e *Env) DrawUniforms(stage shader.Stage, program string, target *gpu.Framebuffer, inputs []gpu.Texture, uniforms []byte) error {
	p, err := e.Shaders.Get(stage, program)
	if err != nil {
		return err
	}
	quad, err := e.Quad.Get(geometry.QuadKey{})
	if err != nil {
		return err
	}
	cmd := &gpu.DrawCommand{Label: stage.Path(program), Target: target}
	quad.Bind(cmd)
	if err := p.Bind(cmd, inputs, uniforms); err != nil {
		return err
	}
	return e.Device.Draw(cmd)
}

func describe(fb *gpu.Framebuffer) fbcache.Description {
	return fbcache.Description{Width: fb.Width(), Height: fb.Height()}
}

func firstColor(name string, fb *gpu.Framebuffer) (gpu.Texture, error) {
	if fb == nil || fb.Color(0) == nil {
		return nil, fmt.Errorf("postprocess: %s: input has no color attachment", name)
	}
	return fb.Color(0), nil
}

// Copy copies its input unchanged.
type Copy struct {
	Env *Env
}

func (c *Copy) Evaluate(in, out *gpu.Framebuffer) error {
	src, err := firstColor("copy", in)
	if err != nil {
		return err
	}
	return c.Env.Draw(shader.Postprocessing, shader.CopyProgram, out, []gpu.Texture{src}, Pass{})
}

// FXAA smooths high-contrast edges.
type FXAA struct {
	Env *Env
}

func (f *FXAA) Evaluate(in, out *gpu.Framebuffer) error {
	src, err := firstColor("fxaa", in)
	if err != nil {
		return err
	}
	return f.Env.Draw(shader.Postprocessing, shader.FXAAProgram, out, []gpu.Texture{src}, Pass{})
}
