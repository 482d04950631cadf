// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/geometry"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/gpu/gputest"
	"github.com/gogpu/deferred/renderer"
	"github.com/gogpu/deferred/scene"
	"github.com/gogpu/deferred/shader"
	"github.com/gogpu/deferred/shadowmap"
	"github.com/gogpu/deferred/source"
)

const (
	size    = 64
	mapSize = 32
)

func testConfig() deferred.Config {
	cfg := deferred.DefaultConfig()
	cfg.ShadowMaps = deferred.ShadowMapCacheConfig{Count: 8, Size: mapSize, DepthBits: 32}
	cfg.DepthVariance = deferred.FramebufferCacheConfig{Count: 2, Width: mapSize, Height: mapSize}
	cfg.RGBA = deferred.FramebufferCacheConfig{Count: 2, Width: size, Height: size}
	cfg.RGBADepth = deferred.FramebufferCacheConfig{Count: 2, Width: size, Height: size, DepthBits: 24}
	cfg.GeometryBuf = deferred.FramebufferCacheConfig{Count: 1, Width: size, Height: size, DepthBits: 24}
	return cfg
}

type fixture struct {
	dev    *gputest.Device
	r      *renderer.Renderer
	cube   *geometry.Mesh
	output *gpu.Framebuffer
}

func newFixture(t *testing.T, src source.Source, opts ...renderer.Option) *fixture {
	t.Helper()
	dev := gputest.NewDevice()
	r, err := renderer.New(dev, src, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	cube, err := geometry.Upload(dev, "cube", geometry.Cube(geometry.Low))
	if err != nil {
		t.Fatal(err)
	}
	desc := gpu.FramebufferDescriptor{Label: "output", Width: size, Height: size}
	desc.Color[0] = gputypes.TextureFormatRGBA8Unorm
	output, err := gpu.NewFramebuffer(dev, desc)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{dev: dev, r: r, cube: cube, output: output}
}

// testScene has two opaque cubes, one refractive and one unlit translucent
// cube, and one light of every kind. The directional light casts a basic
// shadow and the spot light a variance shadow.
func (f *fixture) testScene() *scene.Scene {
	cam := scene.LookAt(mgl32.Vec3{0, 2, 8}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 1, 0.1, 100)
	return scene.NewBuilder(cam).
		AddOpaqueInstance(scene.Instance{Mesh: f.cube, Shader: shader.GeometryProgram}).
		AddOpaqueInstance(scene.Instance{Mesh: f.cube, Shader: shader.GeometryProgram, Model: mgl32.Translate3D(3, 0, 0)}).
		AddTranslucentInstance(scene.Instance{Mesh: f.cube, Shader: "standard", Unlit: true, Model: mgl32.Translate3D(0, 0, 2)}).
		AddTranslucentInstance(scene.Instance{Mesh: f.cube, Shader: "refract", Refractive: true, Model: mgl32.Translate3D(0, 0, -2)}).
		AddLight(scene.Light{ID: 1, Kind: scene.LightAmbient, Color: mgl32.Vec3{0.1, 0.1, 0.1}}).
		AddLight(scene.Light{ID: 2, Kind: scene.LightDirectional, Direction: mgl32.Vec3{-1, -1, -1},
			CastsShadows: true, ShadowSize: mapSize}).
		AddLight(scene.Light{ID: 3, Kind: scene.LightSpot, Position: mgl32.Vec3{0, 5, 0}, Direction: mgl32.Vec3{0, -1, 0},
			CastsShadows: true, ShadowKind: shadowmap.Variance, ShadowSize: mapSize}).
		AddLight(scene.Light{ID: 4, Kind: scene.LightPoint, Position: mgl32.Vec3{2, 2, 2}, Range: 10}).
		Build()
}

var frameDraws = []string{
	"depth/shadow.wgsl",
	"depth/shadow.wgsl",
	"depth_variance/shadow.wgsl",
	"depth_variance/shadow.wgsl",
	"postprocessing/variance_blur.wgsl",
	"postprocessing/variance_blur.wgsl",
	"deferred_geometry/standard.wgsl",
	"deferred_geometry/standard.wgsl",
	"deferred_light/light.wgsl",
	"deferred_light/light_shadow.wgsl",
	"deferred_light/light_variance.wgsl",
	"deferred_light/light.wgsl",
	"postprocessing/copy.wgsl",
	"translucent_lit/refract.wgsl",
	"translucent_unlit/standard.wgsl",
	"postprocessing/emission_extract.wgsl",
	"postprocessing/blur.wgsl",
	"postprocessing/blur.wgsl",
	"postprocessing/emission_combine.wgsl",
	"postprocessing/fxaa.wgsl",
}

func checkBalanced(t *testing.T, r *renderer.Renderer) {
	t.Helper()
	if n := r.Caches().Outstanding(); n != 0 {
		t.Errorf("%d tickets outstanding after the frame", n)
	}
}

func TestRenderFrame(t *testing.T) {
	f := newFixture(t, nil, renderer.WithConfig(testConfig()))
	if err := f.r.Render(f.testScene(), f.output); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	checkBalanced(t, f.r)

	if got := f.dev.DrawLabels(); !reflect.DeepEqual(got, frameDraws) {
		t.Errorf("draws =\n%q\nwant\n%q", got, frameDraws)
	}
	last := f.dev.Draws[len(f.dev.Draws)-1]
	if last.Target != "output" {
		t.Errorf("last draw target = %q, want output", last.Target)
	}

	stats := f.r.LastFrame()
	wantPasses := []string{renderer.PassShadow, renderer.PassGeometry, renderer.PassLight,
		renderer.PassTranslucent, renderer.PassPostprocess}
	if !reflect.DeepEqual(stats.Passes, wantPasses) {
		t.Errorf("Passes = %v, want %v", stats.Passes, wantPasses)
	}
	if stats.Lights != 4 || stats.Shadowed != 2 || stats.Draws != len(frameDraws) || stats.Err != nil {
		t.Errorf("LastFrame() = %+v", stats)
	}
	// Two shadow maps, one variance scratch, the geometry buffer, the lit
	// image, the refraction background and four post-processing images.
	if stats.Borrows != 10 {
		t.Errorf("Borrows = %d, want 10", stats.Borrows)
	}

	c := f.r.Caches()
	if !c.Spheres.Contains(geometry.Medium) || c.Frustums.Len() != 1 || c.Quad.Len() != 1 {
		t.Errorf("light volumes: spheres %v, frustums %d, quads %d", c.Spheres.Keys(), c.Frustums.Len(), c.Quad.Len())
	}
	if c.ViewRays.Len() != 1 {
		t.Errorf("view-ray tables = %d, want 1", c.ViewRays.Len())
	}
}

func TestRenderReusesResources(t *testing.T) {
	f := newFixture(t, nil, renderer.WithConfig(testConfig()))
	s := f.testScene()
	if err := f.r.Render(s, f.output); err != nil {
		t.Fatal(err)
	}
	before := f.r.Caches().Stats()
	textures, programs := f.dev.LiveTextures(), f.dev.Count(gputest.OpCreateProgram)

	if err := f.r.Render(s, f.output); err != nil {
		t.Fatal(err)
	}
	after := f.r.Caches().Stats()
	for _, name := range []string{"shadowmap", "depth_variance", "rgba", "rgba_depth", "geometry", "viewray"} {
		if after[name].Misses != before[name].Misses {
			t.Errorf("%s: misses %d -> %d on an identical frame", name, before[name].Misses, after[name].Misses)
		}
		if after[name].Hits <= before[name].Hits {
			t.Errorf("%s: no hits on the second frame", name)
		}
	}
	if f.dev.LiveTextures() != textures {
		t.Errorf("live textures %d -> %d", textures, f.dev.LiveTextures())
	}
	if n := f.dev.Count(gputest.OpCreateProgram); n != programs {
		t.Errorf("programs compiled on the second frame: %d", n-programs)
	}
	checkBalanced(t, f.r)
}

func TestRenderCleanupOnDeviceFailure(t *testing.T) {
	boom := errors.New("device lost")
	for _, op := range []gputest.Op{gputest.OpDraw, gputest.OpClear, gputest.OpCreateTexture} {
		t.Run(string(op), func(t *testing.T) {
			// Count the calls of op one complete frame makes.
			f := newFixture(t, nil, renderer.WithConfig(testConfig()))
			before := f.dev.Count(op)
			if err := f.r.Render(f.testScene(), f.output); err != nil {
				t.Fatal(err)
			}
			total := f.dev.Count(op) - before
			if total == 0 {
				t.Fatalf("a frame made no %s calls", op)
			}

			for n := 0; n < total; n++ {
				f := newFixture(t, nil, renderer.WithConfig(testConfig()))
				f.dev.FailAfter(op, n, boom)
				err := f.r.Render(f.testScene(), f.output)
				if !errors.Is(err, boom) {
					t.Fatalf("call %d: Render() error = %v, want %v", n, err, boom)
				}
				checkBalanced(t, f.r)
				stats := f.r.LastFrame()
				if stats.Err == nil {
					t.Errorf("call %d: LastFrame() = %+v", n, stats)
				}
				if op == gputest.OpDraw && stats.Draws != n {
					t.Errorf("call %d: %d draws succeeded", n, stats.Draws)
				}

				// The caches recover once the device does.
				f.dev.Heal(op)
				if err := f.r.Render(f.testScene(), f.output); err != nil {
					t.Fatalf("call %d: Render() after heal error = %v", n, err)
				}
				checkBalanced(t, f.r)
			}
		})
	}
}

func TestRenderOutputLargerThanReference(t *testing.T) {
	desc := gpu.FramebufferDescriptor{Label: "wide", Width: 2 * size, Height: size}
	desc.Color[0] = gputypes.TextureFormatRGBA8Unorm

	f := newFixture(t, nil, renderer.WithConfig(testConfig()))
	wide, err := gpu.NewFramebuffer(f.dev, desc)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.r.Render(f.testScene(), wide); !errors.Is(err, cache.ErrCapacityExhausted) {
		t.Fatalf("Render() error = %v, want ErrCapacityExhausted", err)
	}
	checkBalanced(t, f.r)

	f = newFixture(t, nil, renderer.WithConfig(testConfig().FitOutput(2*size, size)))
	wide, err = gpu.NewFramebuffer(f.dev, desc)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.r.Render(f.testScene(), wide); err != nil {
		t.Fatalf("Render() with a fitted config error = %v", err)
	}
	checkBalanced(t, f.r)
}

func TestRenderShadowMapsExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.ShadowMaps.MaximumCapacity = mapSize * mapSize * 4 // one basic map
	f := newFixture(t, nil, renderer.WithConfig(cfg))
	err := f.r.Render(f.testScene(), f.output)
	if !errors.Is(err, cache.ErrCapacityExhausted) {
		t.Fatalf("Render() error = %v, want ErrCapacityExhausted", err)
	}
	checkBalanced(t, f.r)
	stats := f.r.LastFrame()
	if len(stats.Passes) != 0 || stats.Shadowed != 1 {
		t.Errorf("LastFrame() = %+v", stats)
	}
}

func TestRenderMissingProgram(t *testing.T) {
	f := newFixture(t, nil, renderer.WithConfig(testConfig()))
	cam := scene.LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 1, 0.1, 100)
	s := scene.NewBuilder(cam).
		AddOpaqueInstance(scene.Instance{Mesh: f.cube, Shader: "marble"}).
		Build()
	err := f.r.Render(s, f.output)
	var le *cache.LoadError
	if !errors.As(err, &le) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Render() error = %v, want a LoadError for a missing source", err)
	}
	checkBalanced(t, f.r)
}

func TestRenderRejectsInput(t *testing.T) {
	f := newFixture(t, nil, renderer.WithConfig(testConfig()))

	desc := gpu.FramebufferDescriptor{Label: "hdr", Width: size, Height: size}
	desc.Color[0] = gputypes.TextureFormatRGBA16Float
	hdr, err := gpu.NewFramebuffer(f.dev, desc)
	if err != nil {
		t.Fatal(err)
	}
	broken := scene.NewBuilder(scene.Camera{}).AddOpaqueInstance(scene.Instance{Shader: "standard"}).Build()

	tests := []struct {
		name   string
		scene  *scene.Scene
		output *gpu.Framebuffer
		want   error
	}{
		{"hdr output", f.testScene(), hdr, renderer.ErrOutputFormat},
		{"nil output", f.testScene(), nil, renderer.ErrOutputFormat},
		{"nil scene", nil, f.output, scene.ErrInvalidScene},
		{"instance without mesh", broken, f.output, scene.ErrInvalidScene},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.r.Render(tt.scene, tt.output); !errors.Is(err, tt.want) {
				t.Errorf("Render() error = %v, want %v", err, tt.want)
			}
		})
	}
	if f.dev.Count(gputest.OpDraw) != 0 {
		t.Error("rejected frames drew")
	}
}

func TestRenderDebugOverlay(t *testing.T) {
	cfg := testConfig()
	cfg.Debug.ShowShadowMaps = true
	f := newFixture(t, nil, renderer.WithConfig(cfg))
	if err := f.r.Render(f.testScene(), f.output); err != nil {
		t.Fatal(err)
	}
	checkBalanced(t, f.r)

	draws := f.dev.Draws[len(f.dev.Draws)-2:]
	want := []struct{ program, input string }{
		{"debug/shadow_depth.wgsl", "shadowmap_light2/basic32#1.depth"},
		{"debug/shadow_moments.wgsl", "shadowmap_light3/variance32#2.color0"},
	}
	for i, w := range want {
		d := draws[i]
		if d.Program != w.program || d.Target != "output" || !reflect.DeepEqual(d.Inputs, []string{w.input}) {
			t.Errorf("overlay draw %d = %+v, want %s reading %s", i, d, w.program, w.input)
		}
	}
	if p := f.r.LastFrame().Passes; p[len(p)-1] != renderer.PassDebug {
		t.Errorf("Passes = %v, want debug last", p)
	}
}

func TestRenderEmptyScene(t *testing.T) {
	cfg := testConfig()
	cfg.Postprocess.Emission = false
	cfg.Postprocess.FXAA = false
	f := newFixture(t, nil, renderer.WithConfig(cfg))
	cam := scene.LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 1, 0.1, 100)
	if err := f.r.Render(scene.NewBuilder(cam).Build(), f.output); err != nil {
		t.Fatal(err)
	}
	checkBalanced(t, f.r)
	if got := f.dev.DrawLabels(); !reflect.DeepEqual(got, []string{"postprocessing/copy.wgsl"}) {
		t.Errorf("draws = %q, want a single copy", got)
	}
	want := []string{renderer.PassGeometry, renderer.PassLight, renderer.PassPostprocess}
	if got := f.r.LastFrame().Passes; !reflect.DeepEqual(got, want) {
		t.Errorf("Passes = %v, want %v", got, want)
	}
}

func TestRenderHotReload(t *testing.T) {
	dir := t.TempDir()
	code, err := shader.Builtin().Open("deferred_geometry/standard.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "deferred_geometry", "standard.wgsl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, code, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Shaders.HotReload = true
	w, err := source.NewWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	f := newFixture(t, source.Dir(dir), renderer.WithConfig(cfg), renderer.WithWatcher(w))
	s := f.testScene()
	if err := f.r.Render(s, f.output); err != nil {
		t.Fatal(err)
	}
	compiled := f.dev.Count(gputest.OpCreateProgram)

	if err := os.WriteFile(path, append(code, "\n// edited\n"...), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.Notify():
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	if err := f.r.Render(s, f.output); err != nil {
		t.Fatal(err)
	}
	if n := f.dev.Count(gputest.OpCreateProgram) - compiled; n != 1 {
		t.Errorf("recompiled %d programs, want 1", n)
	}
	if n := f.dev.Count(gputest.OpDestroyProgram); n != 1 {
		t.Errorf("destroyed %d programs, want 1", n)
	}
}

func TestSharedCaches(t *testing.T) {
	dev := gputest.NewDevice()
	caches, err := renderer.NewCaches(dev, nil, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	cube, err := geometry.Upload(dev, "cube", geometry.Cube(geometry.Low))
	if err != nil {
		t.Fatal(err)
	}
	desc := gpu.FramebufferDescriptor{Label: "output", Width: size, Height: size}
	desc.Color[0] = gputypes.TextureFormatRGBA8Unorm
	output, err := gpu.NewFramebuffer(dev, desc)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{dev: dev, cube: cube, output: output}

	for i := 0; i < 2; i++ {
		r, err := renderer.New(dev, nil, renderer.WithConfig(testConfig()), renderer.WithCaches(caches))
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Render(f.testScene(), output); err != nil {
			t.Fatal(err)
		}
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}
		if err := r.Render(f.testScene(), output); !errors.Is(err, renderer.ErrClosed) {
			t.Errorf("Render() after Close error = %v, want ErrClosed", err)
		}
	}
	if s := caches.Stats()["rgba_depth"]; s.Entries != 2 || s.Misses != 2 {
		t.Errorf("rgba_depth stats = %+v, want two entries built once", s)
	}

	if err := caches.Close(); err != nil {
		t.Fatal(err)
	}
	// Only the cube and the output remain.
	if dev.LiveTextures() != 1 || dev.LiveBuffers() != 2 || dev.LivePrograms() != 0 {
		t.Errorf("live after Close: %d textures, %d buffers, %d programs",
			dev.LiveTextures(), dev.LiveBuffers(), dev.LivePrograms())
	}
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RGBADepth.DepthBits = 12
	if _, err := renderer.New(gputest.NewDevice(), nil, renderer.WithConfig(cfg)); !errors.Is(err, deferred.ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}
