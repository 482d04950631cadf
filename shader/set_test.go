// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/gpu/gputest"
	"github.com/gogpu/deferred/source"
)

func TestStagePaths(t *testing.T) {
	for _, s := range Stages() {
		got, ok := ParseStage(s.String())
		if !ok || got != s {
			t.Errorf("ParseStage(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseStage("meshes"); ok {
		t.Error("ParseStage accepted a non-stage directory")
	}
	if got := DeferredLight.Path("light"); got != "deferred_light/light.wgsl" {
		t.Errorf("Path() = %q", got)
	}
	if got := Stage(42).String(); got != "Stage(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestLayoutPostprocessingTarget(t *testing.T) {
	f := DefaultFormats()
	if got := Postprocessing.Layout(f, BlurProgram).ColorTargets[0]; got != f.Color {
		t.Errorf("blur target = %v, want %v", got, f.Color)
	}
	if got := Postprocessing.Layout(f, VarianceBlurProgram).ColorTargets[0]; got != f.Variance {
		t.Errorf("variance blur target = %v, want %v", got, f.Variance)
	}
	if got := DeferredGeometry.Layout(f, GeometryProgram); len(got.ColorTargets) != 2 || !got.DepthWrite {
		t.Errorf("geometry layout = %+v", got)
	}
}

func TestSetCompilesOnce(t *testing.T) {
	dev := gputest.NewDevice()
	set := NewSet(dev, Builtin(), Options{Validate: true})
	defer set.Close()

	p, err := set.Get(Postprocessing, BlurProgram)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.UniformSize != PassUniformSize || len(p.Inputs) != 1 {
		t.Errorf("blur program = %+v", p)
	}
	again, err := set.Postprocessing().Get(BlurProgram)
	if err != nil {
		t.Fatal(err)
	}
	if again != p {
		t.Error("second Get returned a different program")
	}
	if n := dev.Count(gputest.OpCreateProgram); n != 1 {
		t.Errorf("created %d programs, want 1", n)
	}

	light, err := set.DeferredLight().Get(LightShadowProgram)
	if err != nil {
		t.Fatal(err)
	}
	want := []gputypes.TextureSampleType{
		gputypes.TextureSampleTypeUnfilterableFloat,
		gputypes.TextureSampleTypeUnfilterableFloat,
		gputypes.TextureSampleTypeDepth,
		gputypes.TextureSampleTypeDepth,
	}
	if len(light.Inputs) != len(want) {
		t.Fatalf("light inputs = %v, want %v", light.Inputs, want)
	}
	for i := range want {
		if light.Inputs[i] != want[i] {
			t.Errorf("light input %d = %v, want %v", i, light.Inputs[i], want[i])
		}
	}
	if light.UniformSize != LightUniformSize {
		t.Errorf("light UniformSize = %d", light.UniformSize)
	}
}

func TestSetMissingProgram(t *testing.T) {
	dev := gputest.NewDevice()
	set := NewSet(dev, source.Map{}, Options{})
	_, err := set.Get(Depth, "nope")
	var le *cache.LoadError
	if !errors.As(err, &le) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Get() error = %v, want a LoadError wrapping ErrNotExist", err)
	}
	if set.Depth().Len() != 0 || dev.LivePrograms() != 0 {
		t.Error("failed load left a program behind")
	}
}

func TestSetReload(t *testing.T) {
	dev := gputest.NewDevice()
	set := NewSet(dev, Builtin(), Options{})
	for _, name := range []string{CopyProgram, FXAAProgram} {
		if _, err := set.Postprocessing().Get(name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := set.Depth().Get(ShadowProgram); err != nil {
		t.Fatal(err)
	}
	dropped := set.Reload([]string{
		"postprocessing/copy.wgsl",
		"depth/shadow.wgsl",
		"depth/unused.wgsl",
		"meshes/unit_sphere_32.mesh",
		"README",
	})
	if dropped != 2 {
		t.Errorf("Reload() = %d, want 2", dropped)
	}
	if dev.LivePrograms() != 1 {
		t.Errorf("LivePrograms() = %d, want 1", dev.LivePrograms())
	}
	if set.Postprocessing().Contains(CopyProgram) || !set.Postprocessing().Contains(FXAAProgram) {
		t.Error("Reload dropped the wrong programs")
	}
	set.Close()
	if dev.LivePrograms() != 0 {
		t.Errorf("LivePrograms() after Close = %d", dev.LivePrograms())
	}
}

func TestSetStageCapacity(t *testing.T) {
	dev := gputest.NewDevice()
	set := NewSet(dev, Builtin(), Options{StageCapacity: 1})
	for _, name := range []string{CopyProgram, FXAAProgram, BlurProgram} {
		if _, err := set.Postprocessing().Get(name); err != nil {
			t.Fatal(err)
		}
	}
	st := set.Stats()[Postprocessing]
	if st.Entries != 1 || st.Evictions != 2 {
		t.Errorf("stats = %+v, want 1 entry and 2 evictions", st)
	}
	if dev.LivePrograms() != 1 {
		t.Errorf("LivePrograms() = %d, want 1", dev.LivePrograms())
	}
}

func TestBind(t *testing.T) {
	dev := gputest.NewDevice()
	color, _ := dev.CreateTexture(gpu.TextureDescriptor{Label: "c", Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm})
	depth, _ := dev.CreateTexture(gpu.TextureDescriptor{Label: "d", Width: 4, Height: 4, Format: gputypes.TextureFormatDepth32Float})
	p := &Program{
		Name:        "p",
		Handle:      &gputest.Program{},
		Inputs:      []gputypes.TextureSampleType{gputypes.TextureSampleTypeUnfilterableFloat, gputypes.TextureSampleTypeDepth},
		UniformSize: 32,
	}
	tests := []struct {
		name     string
		inputs   []gpu.Texture
		uniforms []byte
		wantErr  bool
		bound    int
	}{
		{"exact", []gpu.Texture{color, depth}, make([]byte, 16), false, 2},
		{"extra input dropped", []gpu.Texture{color, depth, color}, nil, false, 2},
		{"missing input", []gpu.Texture{color}, nil, true, 0},
		{"depth where color", []gpu.Texture{depth, depth}, nil, true, 0},
		{"color where depth", []gpu.Texture{color, color}, nil, true, 0},
		{"oversized uniforms", []gpu.Texture{color, depth}, make([]byte, 48), true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd gpu.DrawCommand
			err := p.Bind(&cmd, tt.inputs, tt.uniforms)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Bind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrBinding) {
					t.Errorf("error %v does not wrap ErrBinding", err)
				}
				return
			}
			if len(cmd.Inputs) != tt.bound {
				t.Errorf("bound %d inputs, want %d", len(cmd.Inputs), tt.bound)
			}
			if len(cmd.Uniforms) != 32 {
				t.Errorf("uniforms padded to %d bytes, want 32", len(cmd.Uniforms))
			}
		})
	}
}

func TestUniforms(t *testing.T) {
	var u Uniforms
	u.Mat4(mgl32.Ident4()).Vec4(1, 2, 3, 4).Raw(make([]byte, 16))
	if u.Len() != 64+16+16 {
		t.Fatalf("Len() = %d", u.Len())
	}
	b := u.Bytes()
	// 1.0f little-endian at the first diagonal element and at the vec4.
	one := []byte{0x00, 0x00, 0x80, 0x3f}
	if string(b[0:4]) != string(one) || string(b[64:68]) != string(one) {
		t.Errorf("encoded block = % x", b[:68])
	}
}
