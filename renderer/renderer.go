// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package renderer draws scene snapshots with a deferred pipeline.
//
// A frame runs these passes in order:
//
//	shadow       depth or depth moments for every shadow-casting light
//	geometry     albedo, normals and depth of the opaque instances
//	light        one additive light volume per light into the lit image
//	translucent  back-to-front translucent instances, with refraction
//	postprocess  emission glow and FXAA into the output
//	debug        shadow map thumbnails over the output (optional)
//
// Every framebuffer and shadow map a pass needs is borrowed from the
// renderer's caches and held in a frame scope. Resources are returned as
// soon as no later pass samples them, and whatever is still held when a
// pass fails is returned before Render reports the error.
package renderer

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/fbcache"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/postprocess"
	"github.com/gogpu/deferred/scene"
	"github.com/gogpu/deferred/source"
)

var (
	// ErrOutputFormat is returned when the output framebuffer has no RGBA8
	// color attachment.
	ErrOutputFormat = errors.New("renderer: output must have an RGBA8Unorm color attachment")

	// ErrClosed is returned by Render after Close.
	ErrClosed = errors.New("renderer: closed")
)

// Pass names reported in FrameStats.
const (
	PassShadow      = "shadow"
	PassGeometry    = "geometry"
	PassLight       = "light"
	PassTranslucent = "translucent"
	PassPostprocess = "postprocess"
	PassDebug       = "debug"
)

// FrameStats describes the last frame rendered.
type FrameStats struct {
	// Passes lists the passes that completed, in order.
	Passes []string
	// Lights is the number of light volumes drawn.
	Lights int
	// Shadowed is the number of shadow maps rendered.
	Shadowed int
	// Borrows counts framebuffers and shadow maps lent during the frame.
	Borrows int
	// Draws counts successful draw calls.
	Draws int
	// Err is the error Render returned, nil for a complete frame.
	Err error
}

// Renderer is a deferred renderer. It must be used from one goroutine.
type Renderer struct {
	cfg    deferred.Config
	dev    *countingDevice
	caches *Caches
	env    *postprocess.Env

	watcher     *source.Watcher
	ownsCaches  bool
	ownsWatcher bool

	last   FrameStats
	closed bool
}

// countingDevice counts the draws that reach the device.
type countingDevice struct {
	gpu.Device
	draws int
}

func (d *countingDevice) Draw(cmd *gpu.DrawCommand) error {
	if err := d.Device.Draw(cmd); err != nil {
		return err
	}
	d.draws++
	return nil
}

// New creates a renderer drawing on dev. Programs and mesh files are read
// from src, falling back to the built-in programs; src may be nil.
func New(dev gpu.Device, src source.Source, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	r := &Renderer{
		cfg:     o.config,
		dev:     &countingDevice{Device: dev},
		caches:  o.caches,
		watcher: o.watcher,
	}
	if r.caches == nil {
		c, err := NewCaches(dev, src, o.config)
		if err != nil {
			return nil, err
		}
		r.caches, r.ownsCaches = c, true
	}
	if r.watcher == nil && o.config.Shaders.HotReload {
		if dir, ok := src.(*source.FS); ok && dir.Root() != "" {
			w, err := source.NewWatcher(dir.Root())
			if err != nil {
				return nil, errors.Join(err, r.Close())
			}
			r.watcher, r.ownsWatcher = w, true
		} else {
			deferred.Logger().Warn("renderer: hot reload needs a source from source.Dir")
		}
	}
	r.env = &postprocess.Env{
		Device:   r.dev,
		Shaders:  r.caches.Shaders,
		Quad:     r.caches.Quad,
		Scratch:  r.caches.RGBA,
		Variance: r.caches.DepthVariance,
	}
	deferred.Logger().Info("renderer: created",
		"shadow_maps", o.config.ShadowMaps.Count,
		"hot_reload", r.watcher != nil)
	return r, nil
}

// Caches returns the caches the renderer draws with.
func (r *Renderer) Caches() *Caches {
	return r.caches
}

// LastFrame returns the statistics of the most recent Render call.
func (r *Renderer) LastFrame() FrameStats {
	s := r.last
	s.Passes = append([]string(nil), r.last.Passes...)
	return s
}

// Render draws s into output, whose first color attachment must be
// RGBA8Unorm. A failed frame leaves output partially drawn; every
// resource borrowed for the frame has been returned when Render returns.
// An output larger than the configured reference dimensions can exhaust
// the framebuffer caches; see deferred.Config.FitOutput.
func (r *Renderer) Render(s *scene.Scene, output *gpu.Framebuffer) (err error) {
	if r.closed {
		return ErrClosed
	}
	if s == nil {
		return fmt.Errorf("%w: nil scene", scene.ErrInvalidScene)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if output == nil || output.Color(0) == nil || output.Color(0).Format() != gputypes.TextureFormatRGBA8Unorm {
		return ErrOutputFormat
	}
	r.reload()

	f := &frame{
		r:      r,
		scene:  s,
		cam:    s.Camera(),
		output: output,
		size:   fbcache.Description{Width: output.Width(), Height: output.Height()},
		maps:   make(map[uint64]*shadowEntry),
	}
	borrows := r.lent()
	draws := r.dev.draws
	defer func() {
		err = errors.Join(err, f.scope.Close())
		f.stats.Borrows = int(r.lent() - borrows)
		f.stats.Draws = r.dev.draws - draws
		f.stats.Err = err
		r.last = f.stats
		if err != nil {
			deferred.Logger().Warn("renderer: frame aborted", "pass", f.pass, "err", err)
		}
	}()

	passes := []struct {
		name string
		run  func() error
	}{
		{PassShadow, f.shadowPass},
		{PassGeometry, f.geometryPass},
		{PassLight, f.lightPass},
		{PassTranslucent, f.translucentPass},
		{PassPostprocess, f.postprocessPass},
		{PassDebug, f.debugPass},
	}
	for _, p := range passes {
		f.pass = p.name
		ran, err := f.runPass(p.run)
		if err != nil {
			return fmt.Errorf("renderer: %s pass: %w", p.name, err)
		}
		if ran {
			f.stats.Passes = append(f.stats.Passes, p.name)
		}
	}
	return nil
}

func (f *frame) runPass(run func() error) (bool, error) {
	f.skipped = false
	if err := run(); err != nil {
		return false, err
	}
	return !f.skipped, nil
}

// reload recompiles programs whose sources changed since the last frame.
func (r *Renderer) reload() {
	if r.watcher == nil {
		return
	}
	if names := r.watcher.Changed(); len(names) > 0 {
		r.caches.Shaders.Reload(names)
	}
}

// lent returns the number of borrows ever served by the borrow caches.
func (r *Renderer) lent() uint64 {
	var n uint64
	add := func(s cache.Stats) { n += s.Hits + s.Misses - s.Exhausted }
	add(r.caches.ShadowMaps.Stats())
	for _, bc := range r.caches.borrowCaches() {
		add(bc.Stats())
	}
	return n
}

// Close releases the caches and watcher the renderer created. It fails
// while a frame still holds resources, which only happens if Close is
// called from inside a Render.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	var errs []error
	if r.ownsWatcher {
		errs = append(errs, r.watcher.Close())
	}
	if r.ownsCaches {
		errs = append(errs, r.caches.Close())
	}
	r.closed = true
	return errors.Join(errs...)
}
