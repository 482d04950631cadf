// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shadowmap caches the render targets lights cast shadows into.
//
// A shadow map is keyed by the light it belongs to and by its shape, so a
// light that is shadowed on consecutive frames usually gets its previous
// map back. Maps are lent exclusively: a map stays borrowed from the
// shadow pass until the last pass that samples it has finished.
package shadowmap

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
)

// MomentsFormat is the color format of variance shadow maps.
const MomentsFormat = gputypes.TextureFormatRG32Float

// Kind selects how a shadow map stores occluder depth.
type Kind uint8

const (
	// Basic maps hold a depth attachment only.
	Basic Kind = iota
	// Variance maps hold depth and its square in a color attachment, plus
	// a depth attachment for the depth test.
	Variance
)

func (k Kind) String() string {
	switch k {
	case Basic:
		return "basic"
	case Variance:
		return "variance"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Description is the shape of a square shadow map.
type Description struct {
	Size int
	Kind Kind
}

// Key identifies one light's shadow map.
type Key struct {
	Light uint64
	Desc  Description
}

func (k Key) String() string {
	return fmt.Sprintf("light%d/%s%d", k.Light, k.Desc.Kind, k.Desc.Size)
}

// Map is a shadow map render target.
type Map struct {
	key Key
	fb  *gpu.Framebuffer
}

// Key returns the key the map was created for.
func (m *Map) Key() Key { return m.key }

// Size returns the edge length in texels.
func (m *Map) Size() int { return m.key.Desc.Size }

// Framebuffer returns the render target of the shadow pass.
func (m *Map) Framebuffer() *gpu.Framebuffer { return m.fb }

// Texture returns the texture lighting passes sample: the moments for
// variance maps, the depth attachment otherwise.
func (m *Map) Texture() gpu.Texture {
	if m.key.Desc.Kind == Variance {
		return m.fb.Color(0)
	}
	return m.fb.Depth()
}

// Moments returns the color-only view of a variance map, which blur
// passes write into. It is nil for basic maps.
func (m *Map) Moments() *gpu.Framebuffer {
	if m.key.Desc.Kind != Variance {
		return nil
	}
	return m.fb.ColorOnly()
}

// Config bounds a shadow map cache.
type Config struct {
	cache.Config
	DepthBits int
}

// ConfigFor returns the budget of count basic maps of size×size texels
// with depthBits of depth precision. Only depth bytes are counted: a
// variance map also carries a MomentsFormat attachment, so the budget
// holds fewer of them. VarianceConfigFor budgets variance maps.
func ConfigFor(count, size, depthBits int) Config {
	return configFor(count, size, depthBits, int64(depthBits/8))
}

// VarianceConfigFor returns the budget of count variance maps of
// size×size texels with depthBits of depth precision.
func VarianceConfigFor(count, size, depthBits int) Config {
	return configFor(count, size, depthBits, int64(depthBits/8)+int64(gpu.BytesPerPixel(MomentsFormat)))
}

func configFor(count, size, depthBits int, texel int64) Config {
	return Config{
		Config: cache.Config{
			Name:            "shadowmap",
			MaximumCapacity: int64(count) * int64(size) * int64(size) * texel,
		},
		DepthBits: depthBits,
	}
}

// Cache is a borrow cache of shadow maps.
type Cache struct {
	*cache.BorrowCache[Key, *Map]
	depth gputypes.TextureFormat
}

// New returns an empty shadow map cache.
func New(dev gpu.Device, cfg Config) (*Cache, error) {
	depth, err := gpu.DepthFormat(cfg.DepthBits)
	if err != nil {
		return nil, fmt.Errorf("shadowmap: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "shadowmap"
	}
	l := &loader{dev: dev, depth: depth}
	return &Cache{
		BorrowCache: cache.NewBorrowCache[Key, *Map](l, cfg.Config),
		depth:       depth,
	}, nil
}

// DepthFormat returns the format of every map's depth attachment.
func (c *Cache) DepthFormat() gputypes.TextureFormat {
	return c.depth
}

// BorrowIn borrows the map for k and registers its ticket with s.
func (c *Cache) BorrowIn(s *cache.Scope, k Key) (*Map, error) {
	return cache.BorrowIn(s, c.BorrowCache, k)
}

type loader struct {
	dev   gpu.Device
	depth gputypes.TextureFormat
	seq   atomic.Uint64
}

func (l *loader) descriptor(k Key) gpu.FramebufferDescriptor {
	desc := gpu.FramebufferDescriptor{
		Label:  "shadowmap_" + k.String(),
		Width:  k.Desc.Size,
		Height: k.Desc.Size,
		Depth:  l.depth,
	}
	if k.Desc.Kind == Variance {
		desc.Color[0] = MomentsFormat
	}
	return desc
}

func (l *loader) Load(k Key) (*Map, error) {
	desc := l.descriptor(k)
	desc.Label = fmt.Sprintf("%s#%d", desc.Label, l.seq.Add(1))
	fb, err := gpu.NewFramebuffer(l.dev, desc)
	if err != nil {
		return nil, err
	}
	return &Map{key: k, fb: fb}, nil
}

func (l *loader) Estimate(k Key) int64 {
	return l.descriptor(k).SizeBytes()
}

func (l *loader) SizeOf(_ Key, m *Map) int64 {
	return m.fb.SizeBytes()
}

func (l *loader) Close(_ Key, m *Map) error {
	return m.fb.Destroy(l.dev)
}
