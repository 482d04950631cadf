// Package deferred is a deferred-rendering kernel for real-time 3D graphics.
//
// # Overview
//
// The kernel sequences shadow mapping, deferred opaque shading, forward
// translucent shading and post-processing into one per-frame pipeline. The
// GPU resources those passes need (framebuffers, shadow maps, meshes,
// view-ray tables and shader programs) live in bounded caches owned by the
// renderer.
//
// # Quick Start
//
//	cfg := deferred.DefaultConfig()
//	dev := gputest.NewDevice() // or gpu.NewHALDevice(halDevice, halQueue)
//	r, err := renderer.New(dev, source.Dir("shaders"), renderer.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	b := scene.NewBuilder(camera)
//	b.AddOpaqueInstance(scene.Instance{Mesh: mesh, Shader: "standard"})
//	b.AddLight(scene.Light{ID: 1, Kind: scene.LightSpot, CastsShadows: true})
//	if err := r.Render(b.Build(), output); err != nil {
//	    log.Print(err)
//	}
//
// # Architecture
//
// The module is organized into:
//   - cache: the generic LRU and borrow-lend caches with tickets and scopes
//   - gpu: the device abstraction and its wgpu HAL implementation
//   - fbcache, shadowmap: borrow-lend specializations for render targets
//   - geometry, viewray: read-only LRU caches of meshes and tables
//   - shader: per-stage program caches compiled with naga
//   - source: shader and mesh sources (directories, archives, watchers)
//   - scene, postprocess, renderer: the frame input and the pass orchestration
//
// # Threading
//
// A renderer and its caches belong to one rendering goroutine. Nothing in
// the pipeline spawns goroutines; callers serialize access themselves.
//
// # Logging
//
// The kernel logs through [log/slog]. It is silent until [SetLogger] is
// called.
package deferred
