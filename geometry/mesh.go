// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package geometry provides the immutable meshes shared by render passes:
// the unit quad, unit spheres and cubes, and light frustum volumes. Each
// is held in a plain LRU cache; meshes are never borrowed.
package geometry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
)

// VertexStride is the size of one vertex: a float32 position and normal.
const VertexStride = 24

// VertexLayout returns the vertex buffer layout of every mesh: position at
// location 0, normal at location 1.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: VertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		},
	}
}

// Data is mesh geometry in host memory.
type Data struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
}

func (d *Data) validate() error {
	if len(d.Positions) == 0 || len(d.Indices) == 0 {
		return errors.New("geometry: empty mesh")
	}
	if len(d.Normals) != len(d.Positions) {
		return fmt.Errorf("geometry: %d normals for %d positions", len(d.Normals), len(d.Positions))
	}
	if len(d.Indices)%3 != 0 {
		return fmt.Errorf("geometry: %d indices is not a triangle list", len(d.Indices))
	}
	for _, i := range d.Indices {
		if int(i) >= len(d.Positions) {
			return fmt.Errorf("geometry: index %d out of range", i)
		}
	}
	return nil
}

func (d *Data) vertexBytes() []byte {
	out := make([]byte, 0, len(d.Positions)*VertexStride)
	for i, p := range d.Positions {
		for _, v := range [6]float32{p[0], p[1], p[2], d.Normals[i][0], d.Normals[i][1], d.Normals[i][2]} {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out
}

func (d *Data) indexBytes() []byte {
	out := make([]byte, 0, len(d.Indices)*4)
	for _, i := range d.Indices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}

// Mesh is indexed triangle geometry resident on the GPU.
type Mesh struct {
	Label       string
	Vertices    gpu.Buffer
	Indices     gpu.Buffer
	VertexCount uint32
	IndexCount  uint32
}

// Upload copies d into new vertex and index buffers.
func Upload(dev gpu.Device, label string, d *Data) (*Mesh, error) {
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	vb, err := dev.CreateBuffer(gpu.BufferDescriptor{
		Label:    label + ".vertices",
		Usage:    gputypes.BufferUsageVertex,
		Contents: d.vertexBytes(),
	})
	if err != nil {
		return nil, err
	}
	ib, err := dev.CreateBuffer(gpu.BufferDescriptor{
		Label:    label + ".indices",
		Usage:    gputypes.BufferUsageIndex,
		Contents: d.indexBytes(),
	})
	if err != nil {
		return nil, errors.Join(err, dev.DestroyBuffer(vb))
	}
	return &Mesh{
		Label:       label,
		Vertices:    vb,
		Indices:     ib,
		VertexCount: uint32(len(d.Positions)),
		IndexCount:  uint32(len(d.Indices)),
	}, nil
}

// Bind sets the mesh buffers and counts on cmd.
func (m *Mesh) Bind(cmd *gpu.DrawCommand) {
	cmd.Vertices = m.Vertices
	cmd.VertexCount = m.VertexCount
	cmd.Indices = m.Indices
	cmd.IndexFormat = gputypes.IndexFormatUint32
	cmd.IndexCount = m.IndexCount
}

// SizeBytes returns the size of both buffers.
func (m *Mesh) SizeBytes() int64 {
	return int64(m.VertexCount)*VertexStride + int64(m.IndexCount)*4
}

// Destroy releases both buffers.
func (m *Mesh) Destroy(dev gpu.Device) error {
	return errors.Join(dev.DestroyBuffer(m.Vertices), dev.DestroyBuffer(m.Indices))
}

// MeshCache is an LRU of meshes keyed by K.
type MeshCache[K comparable] struct {
	*cache.LRU[K, *Mesh]
}

func newMeshCache[K comparable](dev gpu.Device, cfg cache.Config, build func(K) (*Mesh, error)) *MeshCache[K] {
	return &MeshCache[K]{cache.NewLRU[K, *Mesh](cache.Funcs[K, *Mesh]{
		LoadFunc:  build,
		CloseFunc: func(_ K, m *Mesh) error { return m.Destroy(dev) },
	}, cfg)}
}
