// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/fbcache"
	"github.com/gogpu/deferred/geometry"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/shader"
	"github.com/gogpu/deferred/shadowmap"
	"github.com/gogpu/deferred/source"
	"github.com/gogpu/deferred/viewray"
)

// Caches is every cache a renderer draws with.
type Caches struct {
	ViewRays      *viewray.Cache
	ShadowMaps    *shadowmap.Cache
	DepthVariance *fbcache.Cache
	RGBA          *fbcache.Cache
	RGBADepth     *fbcache.Cache
	Geometry      *fbcache.Cache
	Frustums      *geometry.MeshCache[geometry.FrustumKey]
	Spheres       *geometry.MeshCache[geometry.Precision]
	Cubes         *geometry.MeshCache[geometry.Precision]
	Quad          *geometry.MeshCache[geometry.QuadKey]
	Shaders       *shader.Set
}

// NewCaches builds the caches described by cfg. Programs and unit meshes
// are read from src first and from the built-in programs second; src may
// be nil.
func NewCaches(dev gpu.Device, src source.Source, cfg deferred.Config) (*Caches, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = shader.Builtin()
	} else {
		src = source.Layers(src, shader.Builtin())
	}

	c := &Caches{
		ViewRays: viewray.NewCache(cache.Items("viewray", cfg.ViewRays.Capacity)),
		Frustums: geometry.NewFrustumCache(dev, cache.Items("geometry/frustum", cfg.FrustumMeshes.Capacity)),
		Spheres:  geometry.NewUnitSphereCache(dev, src, cache.Items("geometry/sphere", cfg.UnitMeshes.Capacity)),
		Cubes:    geometry.NewUnitCubeCache(dev, src, cache.Items("geometry/cube", cfg.UnitMeshes.Capacity)),
		Quad:     geometry.NewUnitQuad(dev),
	}

	var err error
	sm := cfg.ShadowMaps
	smCfg := shadowmap.ConfigFor(sm.Count, sm.Size, sm.DepthBits)
	override(&smCfg.Config, sm.MaximumCapacity)
	if c.ShadowMaps, err = shadowmap.New(dev, smCfg); err != nil {
		return nil, c.abort(err)
	}

	dv := cfg.DepthVariance
	if c.DepthVariance, err = fbcache.NewDepthVariance(dev, fbConfig(fbcache.VarianceConfigFor(dv.Count, dv.Width, dv.Height), dv)); err != nil {
		return nil, c.abort(err)
	}
	rgba := cfg.RGBA
	if c.RGBA, err = fbcache.NewRGBA(dev, fbConfig(fbcache.ConfigFor(rgba.Count, rgba.Width, rgba.Height), rgba)); err != nil {
		return nil, c.abort(err)
	}
	rd := cfg.RGBADepth
	if c.RGBADepth, err = fbcache.NewRGBADepth(dev, fbConfig(fbcache.DepthConfigFor(rd.Count, rd.Width, rd.Height, rd.DepthBits), rd)); err != nil {
		return nil, c.abort(err)
	}
	gb := cfg.GeometryBuf
	if c.Geometry, err = fbcache.NewGeometry(dev, fbConfig(fbcache.GeometryConfigFor(gb.Count, gb.Width, gb.Height, gb.DepthBits), gb)); err != nil {
		return nil, c.abort(err)
	}

	scene, err := gpu.DepthFormat(gb.DepthBits)
	if err != nil {
		return nil, c.abort(err)
	}
	c.Shaders = shader.NewSet(dev, src, shader.Options{
		StageCapacity: cfg.Shaders.StageCapacity,
		Validate:      cfg.Shaders.Validate,
		Debug:         cfg.Shaders.Debug,
		Formats: shader.Formats{
			Color:     fbcache.ColorFormat,
			Variance:  fbcache.VarianceFormat,
			Shadow:    c.ShadowMaps.DepthFormat(),
			Scene:     scene,
			GeoNormal: fbcache.NormalFormat,
		},
	})
	return c, nil
}

func override(c *cache.Config, maximum int64) {
	if maximum > 0 {
		c.MaximumCapacity = maximum
	}
}

func fbConfig(c fbcache.Config, fc deferred.FramebufferCacheConfig) fbcache.Config {
	override(&c.Config, fc.MaximumCapacity)
	return c
}

func (c *Caches) abort(err error) error {
	return errors.Join(fmt.Errorf("renderer: caches: %w", err), c.Close())
}

func (c *Caches) borrowCaches() map[string]*cache.BorrowCache[fbcache.Description, *gpu.Framebuffer] {
	out := make(map[string]*cache.BorrowCache[fbcache.Description, *gpu.Framebuffer], 4)
	for name, fc := range map[string]*fbcache.Cache{
		"depth_variance": c.DepthVariance,
		"rgba":           c.RGBA,
		"rgba_depth":     c.RGBADepth,
		"geometry":       c.Geometry,
	} {
		if fc != nil {
			out[name] = fc.BorrowCache
		}
	}
	return out
}

// Outstanding returns the number of tickets not yet returned across every
// borrow cache. It is zero between frames.
func (c *Caches) Outstanding() int {
	n := 0
	if c.ShadowMaps != nil {
		n += c.ShadowMaps.Outstanding()
	}
	for _, bc := range c.borrowCaches() {
		n += bc.Outstanding()
	}
	return n
}

// Stats returns the statistics of every cache by name. Shader stages are
// named "shader/<stage>".
func (c *Caches) Stats() map[string]cache.Stats {
	out := map[string]cache.Stats{
		"viewray":          c.ViewRays.Stats(),
		"geometry/frustum": c.Frustums.Stats(),
		"geometry/sphere":  c.Spheres.Stats(),
		"geometry/cube":    c.Cubes.Stats(),
		"geometry/quad":    c.Quad.Stats(),
	}
	if c.ShadowMaps != nil {
		out["shadowmap"] = c.ShadowMaps.Stats()
	}
	for name, bc := range c.borrowCaches() {
		out[name] = bc.Stats()
	}
	if c.Shaders != nil {
		for stage, s := range c.Shaders.Stats() {
			out["shader/"+stage.String()] = s
		}
	}
	return out
}

// Close destroys every cached resource. Borrow caches with outstanding
// tickets refuse to close and report it in the joined error.
func (c *Caches) Close() error {
	var errs []error
	if c.ShadowMaps != nil {
		errs = append(errs, c.ShadowMaps.Close())
	}
	for _, bc := range c.borrowCaches() {
		errs = append(errs, bc.Close())
	}
	if c.Shaders != nil {
		c.Shaders.Close()
	}
	c.ViewRays.Close()
	c.Frustums.Close()
	c.Spheres.Close()
	c.Cubes.Close()
	c.Quad.Close()
	return errors.Join(errs...)
}
