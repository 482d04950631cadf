// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geometry

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Precision selects the tessellation of unit meshes.
type Precision int

const (
	Low    Precision = 16
	Medium Precision = 32
	High   Precision = 64
)

// Valid reports whether p is one of the defined precisions.
func (p Precision) Valid() bool {
	return p == Low || p == Medium || p == High
}

func (p Precision) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// Quad returns a square covering clip space at z = 0, facing +Z.
func Quad() *Data {
	n := mgl32.Vec3{0, 0, 1}
	return &Data{
		Positions: []mgl32.Vec3{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}},
		Normals:   []mgl32.Vec3{n, n, n, n},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}

// Sphere returns a unit UV sphere with p segments around and p/2 rings.
func Sphere(p Precision) *Data {
	segments, rings := int(p), int(p)/2
	d := &Data{}
	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s <= segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			v := mgl32.Vec3{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			d.Positions = append(d.Positions, v)
			d.Normals = append(d.Normals, v)
		}
	}
	row := uint32(segments + 1)
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r)*row + uint32(s)
			b := a + row
			d.Indices = append(d.Indices, a, a+1, b, a+1, b+1, b)
		}
	}
	return d
}

// Cube returns a unit cube from -1 to 1 whose faces are split into
// (p/16)² quads each.
func Cube(p Precision) *Data {
	n := int(p) / int(Low)
	if n < 1 {
		n = 1
	}
	faces := [6]struct{ normal, u, v mgl32.Vec3 }{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	d := &Data{}
	for _, f := range faces {
		base := uint32(len(d.Positions))
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				u := 2*float32(i)/float32(n) - 1
				v := 2*float32(j)/float32(n) - 1
				d.Positions = append(d.Positions, f.normal.Add(f.u.Mul(u)).Add(f.v.Mul(v)))
				d.Normals = append(d.Normals, f.normal)
			}
		}
		row := uint32(n + 1)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				a := base + uint32(j)*row + uint32(i)
				d.Indices = append(d.Indices, a, a+1, a+row+1, a, a+row+1, a+row)
			}
		}
	}
	return d
}

// Frustum returns the closed volume a projection sees: the eight corners
// of the clip-space cube taken back through the inverse projection.
func Frustum(projection mgl32.Mat4) (*Data, error) {
	if projection.Det() == 0 {
		return nil, fmt.Errorf("geometry: singular projection")
	}
	inv := projection.Inv()
	d := &Data{}
	var center mgl32.Vec3
	for _, z := range [2]float32{-1, 1} {
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := inv.Mul4x1(mgl32.Vec4{c[0], c[1], z, 1})
			v := p.Vec3().Mul(1 / p.W())
			d.Positions = append(d.Positions, v)
			center = center.Add(v)
		}
	}
	center = center.Mul(1.0 / 8)
	for _, p := range d.Positions {
		d.Normals = append(d.Normals, p.Sub(center).Normalize())
	}
	// Near 0-3, far 4-7. Faces wind counter-clockwise seen from outside
	// in the space the projection maps from.
	d.Indices = []uint32{
		0, 1, 2, 0, 2, 3, // near
		4, 6, 5, 4, 7, 6, // far
		0, 5, 1, 0, 4, 5, // bottom
		3, 6, 7, 3, 2, 6, // top
		0, 7, 4, 0, 3, 7, // left
		1, 6, 2, 1, 5, 6, // right
	}
	return d, nil
}
