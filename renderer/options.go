// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/source"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := renderer.New(dev, source.Dir("shaders"),
//	    renderer.WithConfig(cfg),
//	    renderer.WithWatcher(w))
type Option func(*options)

type options struct {
	config  deferred.Config
	caches  *Caches
	watcher *source.Watcher
}

func defaultOptions() options {
	return options{
		config: deferred.DefaultConfig(),
	}
}

// WithConfig replaces the default construction configuration.
func WithConfig(cfg deferred.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithCaches makes the renderer draw with caches built by NewCaches
// instead of creating its own; the source given to New is then unused.
// The renderer does not close them. Several renderers on one device may
// share one bundle as long as they render from the same goroutine.
func WithCaches(c *Caches) Option {
	return func(o *options) {
		o.caches = c
	}
}

// WithWatcher drains w before every frame and recompiles the programs
// whose sources changed. The renderer does not close w.
//
// Without this option, Config.Shaders.HotReload watches the directory of a
// source created with source.Dir.
func WithWatcher(w *source.Watcher) Option {
	return func(o *options) {
		o.watcher = w
	}
}
