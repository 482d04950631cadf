// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geometry

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/gpu/gputest"
	"github.com/gogpu/deferred/source"
)

func TestUnitSphereLoadsOncePerPrecision(t *testing.T) {
	dev := gputest.NewDevice()
	spheres := NewUnitSphereCache(dev, nil, cache.Items("spheres", 8))

	first, err := spheres.Get(Medium)
	if err != nil {
		t.Fatalf("Get(Medium) error = %v", err)
	}
	created := dev.Count(gputest.OpCreateBuffer)
	if created != 2 {
		t.Fatalf("first Get created %d buffers, want 2", created)
	}

	again, err := spheres.Get(Medium)
	if err != nil {
		t.Fatalf("second Get(Medium) error = %v", err)
	}
	if again != first {
		t.Error("second Get(Medium) returned a different mesh")
	}
	if dev.Count(gputest.OpCreateBuffer) != created {
		t.Error("second Get(Medium) loaded again")
	}

	low, err := spheres.Get(Low)
	if err != nil {
		t.Fatalf("Get(Low) error = %v", err)
	}
	if low == first {
		t.Error("Get(Low) returned the Medium mesh")
	}
	if dev.Count(gputest.OpCreateBuffer) != created+2 {
		t.Errorf("Get(Low) created %d buffers, want 2", dev.Count(gputest.OpCreateBuffer)-created)
	}
	if s := spheres.Stats(); s.Misses != 2 || s.Hits != 1 {
		t.Errorf("Stats() = %+v, want 2 misses and 1 hit", s)
	}

	spheres.Close()
	if dev.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d after Close, want 0", dev.LiveBuffers())
	}
}

func TestShapeSizes(t *testing.T) {
	tests := []struct {
		name      string
		data      *Data
		vertices  int
		triangles int
	}{
		{"quad", Quad(), 4, 2},
		{"sphere low", Sphere(Low), 17 * 9, 16 * 8 * 2},
		{"sphere high", Sphere(High), 65 * 33, 64 * 32 * 2},
		{"cube low", Cube(Low), 6 * 4, 6 * 2},
		{"cube high", Cube(High), 6 * 25, 6 * 16 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.data.validate(); err != nil {
				t.Fatalf("validate() error = %v", err)
			}
			if len(tt.data.Positions) != tt.vertices {
				t.Errorf("vertices = %d, want %d", len(tt.data.Positions), tt.vertices)
			}
			if len(tt.data.Indices) != tt.triangles*3 {
				t.Errorf("triangles = %d, want %d", len(tt.data.Indices)/3, tt.triangles)
			}
		})
	}
}

func TestSphereIsUnit(t *testing.T) {
	for _, p := range Sphere(Medium).Positions {
		if l := p.Len(); l < 0.999 || l > 1.001 {
			t.Fatalf("vertex %v has length %f", p, l)
		}
	}
}

func TestClosedShapesWindOutward(t *testing.T) {
	frustum, err := Frustum(mgl32.Perspective(mgl32.DegToRad(60), 1.5, 0.5, 20))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data *Data
	}{
		{"sphere", Sphere(Low)},
		{"cube", Cube(Medium)},
		{"frustum", frustum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var center mgl32.Vec3
			for _, p := range tt.data.Positions {
				center = center.Add(p)
			}
			center = center.Mul(1 / float32(len(tt.data.Positions)))
			idx := tt.data.Indices
			for i := 0; i < len(idx); i += 3 {
				a, b, c := tt.data.Positions[idx[i]], tt.data.Positions[idx[i+1]], tt.data.Positions[idx[i+2]]
				n := b.Sub(a).Cross(c.Sub(a))
				if n.Len() < 1e-6 {
					continue // collapsed at a pole
				}
				mid := a.Add(b).Add(c).Mul(1.0 / 3)
				if n.Dot(mid.Sub(center)) <= 0 {
					t.Fatalf("triangle %d (%v %v %v) faces inward", i/3, a, b, c)
				}
			}
		})
	}
}

func TestInvalidPrecision(t *testing.T) {
	dev := gputest.NewDevice()
	cubes := NewUnitCubeCache(dev, nil, cache.Items("cubes", 4))
	if _, err := cubes.Get(Precision(7)); err == nil {
		t.Fatal("Get(7) succeeded")
	}
	if cubes.Len() != 0 {
		t.Errorf("Len() = %d after a failed load", cubes.Len())
	}
}

func TestMeshFileOverride(t *testing.T) {
	raw, err := Encode(Quad())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	dev := gputest.NewDevice()
	src := source.Map{"meshes/unit_cube_16.mesh": raw}
	cubes := NewUnitCubeCache(dev, src, cache.Items("cubes", 4))

	m, err := cubes.Get(Low)
	if err != nil {
		t.Fatalf("Get(Low) error = %v", err)
	}
	if m.VertexCount != 4 || m.IndexCount != 6 {
		t.Errorf("mesh from file has %d vertices and %d indices", m.VertexCount, m.IndexCount)
	}
	// Precisions without a file fall back to the generated cube.
	m, err = cubes.Get(Medium)
	if err != nil {
		t.Fatalf("Get(Medium) error = %v", err)
	}
	if m.VertexCount != 6*9 {
		t.Errorf("generated cube has %d vertices, want %d", m.VertexCount, 6*9)
	}

	src["meshes/unit_sphere_16.mesh"] = []byte("junk")
	if _, err := NewUnitSphereCache(dev, src, cache.Items("spheres", 4)).Get(Low); !errors.Is(err, ErrMeshFormat) {
		t.Errorf("corrupt mesh file error = %v, want ErrMeshFormat", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	good, _ := Encode(Quad())
	badIndex, _ := Encode(Quad())
	badIndex[len(badIndex)-4] = 9

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated", good[:len(good)-1]},
		{"index range", badIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.raw); !errors.Is(err, ErrMeshFormat) {
				t.Errorf("Decode() error = %v, want ErrMeshFormat", err)
			}
		})
	}

	d, err := Decode(good)
	if err != nil {
		t.Fatalf("Decode(good) error = %v", err)
	}
	if d.Positions[2] != (mgl32.Vec3{1, 1, 0}) || d.Normals[0] != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("Decode() = %+v", d)
	}
}

func TestFrustum(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, 1, 10)
	d, err := Frustum(proj)
	if err != nil {
		t.Fatalf("Frustum() error = %v", err)
	}
	// With a 90 degree field of view the near plane spans ±near.
	near, far := d.Positions[2], d.Positions[6]
	if !near.ApproxEqualThreshold(mgl32.Vec3{1, 1, -1}, 1e-4) {
		t.Errorf("near corner = %v, want (1, 1, -1)", near)
	}
	if !far.ApproxEqualThreshold(mgl32.Vec3{10, 10, -10}, 1e-3) {
		t.Errorf("far corner = %v, want (10, 10, -10)", far)
	}
	if _, err := Frustum(mgl32.Mat4{}); err == nil {
		t.Error("Frustum(zero matrix) succeeded")
	}
}

func TestFrustumCacheKeys(t *testing.T) {
	dev := gputest.NewDevice()
	frusta := NewFrustumCache(dev, cache.Items("frusta", 2))
	a, _ := frusta.Get(PerspectiveKey(1, 1, 0.1, 50))
	b, _ := frusta.Get(PerspectiveKey(1, 1, 0.1, 50))
	if a == nil || a != b {
		t.Error("equal frustum keys produced different meshes")
	}
	frusta.Get(PerspectiveKey(1.2, 1, 0.1, 50))
	frusta.Get(PerspectiveKey(1.4, 1, 0.1, 50))
	if frusta.Len() != 2 || frusta.Contains(PerspectiveKey(1, 1, 0.1, 50)) {
		t.Errorf("Len() = %d, oldest frustum still resident", frusta.Len())
	}
	if dev.LiveBuffers() != 4 {
		t.Errorf("LiveBuffers() = %d, want 4", dev.LiveBuffers())
	}
}

func TestUploadCleansUp(t *testing.T) {
	dev := gputest.NewDevice()
	boom := errors.New("no memory")
	dev.FailAfter(gputest.OpCreateBuffer, 1, boom)
	if _, err := Upload(dev, "quad", Quad()); !errors.Is(err, boom) {
		t.Fatalf("Upload() error = %v, want %v", err, boom)
	}
	if dev.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d, want 0", dev.LiveBuffers())
	}
}

func TestUnitQuadBind(t *testing.T) {
	dev := gputest.NewDevice()
	quad := NewUnitQuad(dev)
	m, err := quad.Get(QuadKey{})
	if err != nil {
		t.Fatal(err)
	}
	var cmd gpu.DrawCommand
	m.Bind(&cmd)
	if cmd.IndexCount != 6 || cmd.Vertices == nil || cmd.Indices == nil {
		t.Errorf("Bind() = %+v", cmd)
	}
	if m.SizeBytes() != 4*VertexStride+6*4 {
		t.Errorf("SizeBytes() = %d", m.SizeBytes())
	}
}
