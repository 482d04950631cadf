// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/fbcache"
	"github.com/gogpu/deferred/geometry"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/postprocess"
	"github.com/gogpu/deferred/scene"
	"github.com/gogpu/deferred/shader"
	"github.com/gogpu/deferred/shadowmap"
	"github.com/gogpu/deferred/viewray"
)

// frame is the state of one Render call.
type frame struct {
	r      *Renderer
	scene  *scene.Scene
	cam    scene.Camera
	output *gpu.Framebuffer
	size   fbcache.Description

	scope   cache.Scope
	pass    string
	skipped bool
	stats   FrameStats

	// maps holds the shadow map of every shadow-casting light by ID, in
	// caster order through casters.
	maps    map[uint64]*shadowEntry
	casters []*shadowEntry

	gbuf       *gpu.Framebuffer
	gbufTicket *cache.Ticket
	lit        *gpu.Framebuffer
	litTicket  *cache.Ticket
	rays       *viewray.Table
}

type shadowEntry struct {
	m      *shadowmap.Map
	ticket *cache.Ticket
}

func (f *frame) skip() error {
	f.skipped = true
	return nil
}

// draw binds mesh, program inputs and uniforms and submits one draw.
func (f *frame) draw(p *shader.Program, target *gpu.Framebuffer, mesh *geometry.Mesh, inputs []gpu.Texture, uniforms []byte) error {
	cmd := &gpu.DrawCommand{Label: p.Stage.Path(p.Name), Target: target}
	mesh.Bind(cmd)
	if err := p.Bind(cmd, inputs, uniforms); err != nil {
		return err
	}
	return f.r.dev.Draw(cmd)
}

// ---------------------------------------------------------------------------
// Shadow pass
// ---------------------------------------------------------------------------

func (f *frame) shadowPass() error {
	casters := f.scene.ShadowCasters()
	if len(casters) == 0 {
		return f.skip()
	}
	for _, l := range casters {
		m, t, err := f.r.caches.ShadowMaps.Borrow(l.ShadowKey())
		if err != nil {
			return fmt.Errorf("light %d: %w", l.ID, err)
		}
		f.scope.Hold(t)
		e := &shadowEntry{m: m, ticket: t}
		f.maps[l.ID] = e
		f.casters = append(f.casters, e)
		if err := f.renderShadow(l, m); err != nil {
			return fmt.Errorf("light %d: %w", l.ID, err)
		}
		f.stats.Shadowed++
	}
	return nil
}

func (f *frame) renderShadow(l scene.Light, m *shadowmap.Map) error {
	fb := m.Framebuffer()
	variance := m.Key().Desc.Kind == shadowmap.Variance
	stage, clear := shader.Depth, gpu.ClearValues{Depth: 1, ClearDepth: true}
	if variance {
		stage, clear = shader.DepthVariance, gpu.ClearAll(gputypes.Color{R: 1, G: 1})
	}
	if err := f.r.dev.Clear(fb, clear); err != nil {
		return err
	}
	p, err := f.r.caches.Shaders.Get(stage, shader.ShadowProgram)
	if err != nil {
		return err
	}
	view, proj := l.View(), l.Projection()
	for _, inst := range f.scene.Opaque() {
		if inst.NoShadow {
			continue
		}
		if err := f.draw(p, fb, inst.Mesh, nil, sceneBlock(inst.Transform(), view, proj).Bytes()); err != nil {
			return err
		}
	}
	pp := f.r.cfg.Postprocess
	if !variance || pp.BlurRadius <= 0 || pp.BlurPasses <= 0 {
		return nil
	}
	blur := &postprocess.Blur{Env: f.r.env, Radius: pp.BlurRadius, Passes: pp.BlurPasses, Variance: true}
	return blur.Evaluate(fb, m.Moments())
}

// ---------------------------------------------------------------------------
// Opaque deferred passes
// ---------------------------------------------------------------------------

func (f *frame) geometryPass() error {
	gbuf, t, err := f.r.caches.Geometry.Borrow(f.size)
	if err != nil {
		return err
	}
	f.scope.Hold(t)
	f.gbuf, f.gbufTicket = gbuf, t

	var p *shader.Program
	for _, inst := range f.scene.Opaque() {
		if p == nil || p.Name != inst.Shader {
			if p, err = f.r.caches.Shaders.Get(shader.DeferredGeometry, inst.Shader); err != nil {
				return err
			}
		}
		u := sceneBlock(inst.Transform(), f.cam.View, f.cam.Projection)
		if err := f.draw(p, gbuf, inst.Mesh, nil, u.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (f *frame) lightPass() error {
	lit, t, err := f.r.caches.RGBADepth.Borrow(f.size)
	if err != nil {
		return err
	}
	f.scope.Hold(t)
	f.lit, f.litTicket = lit, t
	// Lights add into an opaque black image.
	target := lit.ColorOnly()
	if err := f.r.dev.Clear(target, gpu.ClearValues{Color: gputypes.Color{A: 1}, ClearColor: true}); err != nil {
		return err
	}

	if f.rays, err = f.r.caches.ViewRays.Get(f.cam.Projection); err != nil {
		return err
	}
	gbuffer := []gpu.Texture{
		f.gbuf.Color(fbcache.GeometryAlbedo),
		f.gbuf.Color(fbcache.GeometryNormal),
		f.gbuf.Depth(),
	}
	for _, l := range f.scene.Lights() {
		fl, mesh, err := f.prepare(l)
		if err != nil {
			return fmt.Errorf("light %d: %w", l.ID, err)
		}
		p, err := f.r.caches.Shaders.Get(shader.DeferredLight, fl.program)
		if err != nil {
			return fmt.Errorf("light %d: %w", l.ID, err)
		}
		inputs := gbuffer
		if e := f.maps[l.ID]; e != nil {
			inputs = append(gbuffer[:len(gbuffer):len(gbuffer)], e.m.Texture())
		}
		var u shader.Uniforms
		lightBlock(&u, fl, f.cam, f.rays)
		if err := f.draw(p, target, mesh, inputs, u.Bytes()); err != nil {
			return fmt.Errorf("light %d: %w", l.ID, err)
		}
		f.stats.Lights++
	}

	// Shadow maps are sampled again only by the debug overlay.
	if !f.r.cfg.Debug.ShowShadowMaps {
		return f.releaseShadows()
	}
	return nil
}

func (f *frame) releaseShadows() error {
	for _, e := range f.casters {
		if err := f.scope.Release(e.ticket); err != nil {
			return err
		}
	}
	f.casters, f.maps = nil, nil
	return nil
}

// prepare selects the program and volume of a light.
func (f *frame) prepare(l scene.Light) (frameLight, *geometry.Mesh, error) {
	fl := frameLight{light: l, program: l.Shader, toLight: mgl32.Ident4()}
	e := f.maps[l.ID]
	if e != nil {
		fl.toLight = correct(l.ViewProjection()).Mul4(f.cam.View.Inv())
	}
	if fl.program == "" {
		switch {
		case e == nil:
			fl.program = shader.LightProgram
		case e.m.Key().Desc.Kind == shadowmap.Variance:
			fl.program = shader.LightVarianceProgram
		default:
			fl.program = shader.LightShadowProgram
		}
	}

	viewProj := correct(f.cam.Projection).Mul4(f.cam.View)
	var (
		mesh *geometry.Mesh
		err  error
	)
	switch l.Kind {
	case scene.LightPoint:
		mesh, err = f.r.caches.Spheres.Get(geometry.Medium)
		s := l.Range * volumeScale
		fl.volume = viewProj.Mul4(mgl32.Translate3D(l.Position.X(), l.Position.Y(), l.Position.Z())).Mul4(mgl32.Scale3D(s, s, s))
	case scene.LightSpot:
		mesh, err = f.r.caches.Frustums.Get(geometry.FrustumKey{Projection: l.Projection()})
		fl.volume = viewProj.Mul4(l.View().Inv())
	default:
		mesh, err = f.r.caches.Quad.Get(geometry.QuadKey{})
		fl.volume = mirrorX
	}
	return fl, mesh, err
}

// ---------------------------------------------------------------------------
// Translucent pass
// ---------------------------------------------------------------------------

func (f *frame) translucentPass() error {
	items := f.scene.Translucent()
	if len(items) == 0 {
		if err := f.releaseGeometry(); err != nil {
			return err
		}
		return f.skip()
	}
	// Translucent instances test against the opaque depth without
	// writing it.
	target, err := gpu.WrapFramebuffer("translucent", []gpu.Texture{f.lit.Color(0)}, f.gbuf.Depth())
	if err != nil {
		return err
	}

	var (
		background gpu.Texture
		bgTicket   *cache.Ticket
	)
	if f.scene.Refractive() {
		bg, t, err := f.r.caches.RGBADepth.Borrow(f.size)
		if err != nil {
			return fmt.Errorf("refraction: %w", err)
		}
		f.scope.Hold(t)
		bgTicket = t
		if err := (&postprocess.Copy{Env: f.r.env}).Evaluate(f.lit, bg.ColorOnly()); err != nil {
			return fmt.Errorf("refraction: %w", err)
		}
		background = bg.Color(0)
	}

	key := f.keyLight()
	for i, inst := range items {
		stage := shader.TranslucentLit
		if inst.Unlit {
			stage = shader.TranslucentUnlit
		}
		p, err := f.r.caches.Shaders.Get(stage, inst.Shader)
		if err != nil {
			return err
		}
		var inputs []gpu.Texture
		if inst.Refractive {
			inputs = []gpu.Texture{background}
		}
		u := sceneBlock(inst.Transform(), f.cam.View, f.cam.Projection)
		lightBlock(u, key, f.cam, f.rays)
		if err := f.draw(p, target, inst.Mesh, inputs, u.Bytes()); err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
	}

	if bgTicket != nil {
		if err := f.scope.Release(bgTicket); err != nil {
			return err
		}
	}
	return f.releaseGeometry()
}

// keyLight is the light translucent instances are shaded with: the first
// light that is not ambient, or a black ambient light.
func (f *frame) keyLight() frameLight {
	for _, l := range f.scene.Lights() {
		if l.Kind != scene.LightAmbient {
			return frameLight{light: l, volume: mgl32.Ident4(), toLight: mgl32.Ident4()}
		}
	}
	return frameLight{light: scene.Light{Kind: scene.LightAmbient}, volume: mgl32.Ident4(), toLight: mgl32.Ident4()}
}

func (f *frame) releaseGeometry() error {
	t := f.gbufTicket
	f.gbuf, f.gbufTicket = nil, nil
	return f.scope.Release(t)
}

// ---------------------------------------------------------------------------
// Post-processing and debug overlay
// ---------------------------------------------------------------------------

func (f *frame) postprocessPass() error {
	pp := f.r.cfg.Postprocess
	var steps []postprocess.Postprocessor
	if pp.Emission {
		steps = append(steps, postprocess.NewEmission(f.r.env, pp.EmissionIntensity, pp.EmissionRadius))
	}
	if pp.FXAA {
		steps = append(steps, &postprocess.FXAA{Env: f.r.env})
	}
	if err := postprocess.NewChain(f.r.env, steps...).Evaluate(f.lit, f.output); err != nil {
		return err
	}
	t := f.litTicket
	f.lit, f.litTicket = nil, nil
	return f.scope.Release(t)
}

// debugPass draws every shadow map as a square thumbnail along the top
// edge of the output.
func (f *frame) debugPass() error {
	if !f.r.cfg.Debug.ShowShadowMaps || len(f.casters) == 0 {
		return f.skip()
	}
	w, h := float32(f.output.Width()), float32(f.output.Height())
	tile := min(w, h) / 4
	for i, e := range f.casters {
		x := float32(i) * tile
		if x+tile > w {
			deferred.Logger().Debug("renderer: shadow maps do not fit the overlay", "shown", i, "total", len(f.casters))
			break
		}
		program := shader.DebugDepthProgram
		if e.m.Key().Desc.Kind == shadowmap.Variance {
			program = shader.DebugMomentsProgram
		}
		pass := postprocess.Pass{
			Rect: [4]float32{-1 + (2*x+tile)/w, 1 - tile/h, tile / w, tile / h},
			Area: [4]float32{x, 0, tile, tile},
		}
		if err := f.r.env.Draw(shader.Debug, program, f.output, []gpu.Texture{e.m.Texture()}, pass); err != nil {
			return err
		}
	}
	return f.releaseShadows()
}
