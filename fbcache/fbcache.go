// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fbcache provides borrow caches of framebuffers keyed by size.
//
// Four shapes are cached: RGBA, RGBA with depth, depth variance and the
// deferred geometry buffer. Capacity is declared in bytes, so buffers of
// different sizes share one budget. Every borrow hands out a framebuffer
// cleared to transparent black with depth 1.
package fbcache

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
)

// Formats of the cached attachments.
const (
	ColorFormat    = gputypes.TextureFormatRGBA8Unorm
	VarianceFormat = gputypes.TextureFormatRG32Float
	NormalFormat   = gputypes.TextureFormatRGBA16Float
)

// Geometry buffer attachments.
const (
	GeometryAlbedo = iota
	GeometryNormal
)

// Description is the key of a framebuffer cache.
type Description struct {
	Width  int
	Height int
	// Samples must be 0 or 1: programs are built for single-sampled
	// targets, so Borrow rejects multisampled descriptions.
	Samples int
}

func (d Description) String() string {
	if d.Samples > 1 {
		return fmt.Sprintf("%dx%d@%d", d.Width, d.Height, d.Samples)
	}
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Config bounds a framebuffer cache.
type Config struct {
	cache.Config
	// DepthBits is the depth precision of caches with a depth attachment.
	DepthBits int
}

type kind struct {
	name  string
	color []gputypes.TextureFormat
	depth bool
}

var (
	rgbaKind     = kind{name: "rgba", color: []gputypes.TextureFormat{ColorFormat}}
	rgbaDepth    = kind{name: "rgba_depth", color: []gputypes.TextureFormat{ColorFormat}, depth: true}
	varianceKind = kind{name: "depth_variance", color: []gputypes.TextureFormat{VarianceFormat}}
	geometryKind = kind{name: "geometry", color: []gputypes.TextureFormat{ColorFormat, NormalFormat}, depth: true}
)

// bytesPerPixel sums the attachment sizes of a kind.
func (k kind) bytesPerPixel(depthBits int) int64 {
	var n int
	for _, f := range k.color {
		n += gpu.BytesPerPixel(f)
	}
	if k.depth {
		n += depthBits / 8
	}
	return int64(n)
}

func (k kind) configFor(count, width, height, depthBits int) Config {
	return Config{
		Config: cache.Config{
			Name:            k.name,
			MaximumCapacity: int64(count) * int64(width) * int64(height) * k.bytesPerPixel(depthBits),
		},
		DepthBits: depthBits,
	}
}

// ConfigFor returns the budget of count RGBA8 framebuffers of width×height.
func ConfigFor(count, width, height int) Config {
	return rgbaKind.configFor(count, width, height, 0)
}

// DepthConfigFor returns the budget of count RGBA8 framebuffers with a
// depthBits depth attachment.
func DepthConfigFor(count, width, height, depthBits int) Config {
	return rgbaDepth.configFor(count, width, height, depthBits)
}

// VarianceConfigFor returns the budget of count depth-variance
// framebuffers.
func VarianceConfigFor(count, width, height int) Config {
	return varianceKind.configFor(count, width, height, 0)
}

// GeometryConfigFor returns the budget of count geometry buffers.
func GeometryConfigFor(count, width, height, depthBits int) Config {
	return geometryKind.configFor(count, width, height, depthBits)
}

// Cache is a borrow cache of one framebuffer shape.
type Cache struct {
	*cache.BorrowCache[Description, *gpu.Framebuffer]
	loader *loader
}

// NewRGBA returns a cache of RGBA8 framebuffers.
func NewRGBA(dev gpu.Device, cfg Config) (*Cache, error) {
	return newCache(dev, rgbaKind, cfg)
}

// NewRGBADepth returns a cache of RGBA8 framebuffers with depth.
func NewRGBADepth(dev gpu.Device, cfg Config) (*Cache, error) {
	return newCache(dev, rgbaDepth, cfg)
}

// NewDepthVariance returns a cache of RG32Float framebuffers holding depth
// moments.
func NewDepthVariance(dev gpu.Device, cfg Config) (*Cache, error) {
	return newCache(dev, varianceKind, cfg)
}

// NewGeometry returns a cache of geometry buffers: albedo and view-space
// normal attachments plus depth. Positions are rebuilt from depth.
func NewGeometry(dev gpu.Device, cfg Config) (*Cache, error) {
	return newCache(dev, geometryKind, cfg)
}

func newCache(dev gpu.Device, k kind, cfg Config) (*Cache, error) {
	l := &loader{dev: dev, kind: k}
	if k.depth {
		f, err := gpu.DepthFormat(cfg.DepthBits)
		if err != nil {
			return nil, fmt.Errorf("fbcache: %s: %w", k.name, err)
		}
		l.depth = f
	}
	if cfg.Name == "" {
		cfg.Name = k.name
	}
	return &Cache{
		BorrowCache: cache.NewBorrowCache[Description, *gpu.Framebuffer](l, cfg.Config),
		loader:      l,
	}, nil
}

// Descriptor returns the framebuffer descriptor built for d.
func (c *Cache) Descriptor(d Description) gpu.FramebufferDescriptor {
	return c.loader.descriptor(d)
}

// Borrow lends a cleared framebuffer for d. If the clear fails the ticket
// is returned before the error is reported.
func (c *Cache) Borrow(d Description) (*gpu.Framebuffer, *cache.Ticket, error) {
	if d.Samples > 1 {
		return nil, nil, fmt.Errorf("fbcache: %s: multisampled framebuffers are not supported", d)
	}
	fb, t, err := c.BorrowCache.Borrow(d)
	if err != nil {
		return nil, nil, err
	}
	if err := c.loader.dev.Clear(fb, gpu.ClearAll(gputypes.Color{})); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("fbcache: clear %s: %w", fb.Label(), err), t.Return())
	}
	return fb, t, nil
}

// BorrowIn borrows a framebuffer whose ticket is returned by s.Close.
func (c *Cache) BorrowIn(s *cache.Scope, d Description) (*gpu.Framebuffer, error) {
	fb, t, err := c.Borrow(d)
	if err != nil {
		return nil, err
	}
	s.Hold(t)
	return fb, nil
}

type loader struct {
	dev   gpu.Device
	kind  kind
	depth gputypes.TextureFormat
	seq   atomic.Uint64
}

func (l *loader) descriptor(d Description) gpu.FramebufferDescriptor {
	desc := gpu.FramebufferDescriptor{
		Label:   fmt.Sprintf("%s_%s", l.kind.name, d),
		Width:   d.Width,
		Height:  d.Height,
		Depth:   l.depth,
		Samples: d.Samples,
	}
	copy(desc.Color[:], l.kind.color)
	return desc
}

func (l *loader) Load(d Description) (*gpu.Framebuffer, error) {
	desc := l.descriptor(d)
	desc.Label = fmt.Sprintf("%s#%d", desc.Label, l.seq.Add(1))
	return gpu.NewFramebuffer(l.dev, desc)
}

func (l *loader) Estimate(d Description) int64 {
	return l.descriptor(d).SizeBytes()
}

func (l *loader) SizeOf(_ Description, fb *gpu.Framebuffer) int64 {
	return fb.SizeBytes()
}

func (l *loader) Close(_ Description, fb *gpu.Framebuffer) error {
	return fb.Destroy(l.dev)
}
