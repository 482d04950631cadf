// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geometry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh files start with this magic, followed by little-endian vertex and
// index counts, interleaved position/normal floats and uint32 indices.
var meshMagic = []byte("DMSH")

// ErrMeshFormat is returned by Decode for malformed mesh files.
var ErrMeshFormat = errors.New("geometry: malformed mesh file")

// Encode serializes d into the mesh file format.
func Encode(d *Data) ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	out := append([]byte(nil), meshMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(d.Positions)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(d.Indices)))
	out = append(out, d.vertexBytes()...)
	out = append(out, d.indexBytes()...)
	return out, nil
}

// Decode parses a mesh file.
func Decode(raw []byte) (*Data, error) {
	const head = 12
	if len(raw) < head || !bytes.Equal(raw[:4], meshMagic) {
		return nil, ErrMeshFormat
	}
	nv := int(binary.LittleEndian.Uint32(raw[4:]))
	ni := int(binary.LittleEndian.Uint32(raw[8:]))
	if want := head + nv*VertexStride + ni*4; nv < 0 || ni < 0 || len(raw) != want {
		return nil, fmt.Errorf("%w: %d bytes for %d vertices and %d indices", ErrMeshFormat, len(raw), nv, ni)
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])) }

	d := &Data{
		Positions: make([]mgl32.Vec3, nv),
		Normals:   make([]mgl32.Vec3, nv),
		Indices:   make([]uint32, ni),
	}
	off := head
	for i := 0; i < nv; i++ {
		d.Positions[i] = mgl32.Vec3{f(off), f(off + 4), f(off + 8)}
		d.Normals[i] = mgl32.Vec3{f(off + 12), f(off + 16), f(off + 20)}
		off += VertexStride
	}
	for i := 0; i < ni; i++ {
		d.Indices[i] = binary.LittleEndian.Uint32(raw[off:])
		off += 4
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeshFormat, err)
	}
	return d, nil
}
