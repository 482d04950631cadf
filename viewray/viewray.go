// Package viewray precomputes the view-space rays through the corners of
// the screen for a camera projection. The deferred light pass interpolates
// them across the screen and scales by linear depth to rebuild view-space
// positions.
package viewray

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/cache"
)

// DefaultCapacity is the number of tables kept.
const DefaultCapacity = 8

var (
	// ErrSingularProjection is returned for projections without an inverse.
	ErrSingularProjection = errors.New("viewray: singular projection")
	// ErrNonFiniteProjection is returned for projections holding a NaN or
	// an infinity. Such a matrix never equals itself as a cache key.
	ErrNonFiniteProjection = errors.New("viewray: non-finite projection")
)

// Corner order of Table.Rays.
const (
	BottomLeft = iota
	BottomRight
	TopRight
	TopLeft
)

// Table holds the far-plane corner rays of a projection, scaled so that
// their z component is -1.
type Table struct {
	Projection mgl32.Mat4
	Rays       [4]mgl32.Vec3
}

// New computes the table of projection.
func New(projection mgl32.Mat4) (*Table, error) {
	for _, f := range projection {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, ErrNonFiniteProjection
		}
	}
	if projection.Det() == 0 {
		return nil, ErrSingularProjection
	}
	inv := projection.Inv()
	t := &Table{Projection: projection}
	for i, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
		p := inv.Mul4x1(mgl32.Vec4{c[0], c[1], 1, 1})
		v := p.Vec3().Mul(1 / p.W())
		if v.Z() == 0 {
			return nil, ErrSingularProjection
		}
		t.Rays[i] = v.Mul(-1 / v.Z())
	}
	return t, nil
}

// At returns the ray through normalized screen position (u, v), with
// (0, 0) the bottom-left corner.
func (t *Table) At(u, v float32) mgl32.Vec3 {
	bottom := t.Rays[BottomLeft].Mul(1 - u).Add(t.Rays[BottomRight].Mul(u))
	top := t.Rays[TopLeft].Mul(1 - u).Add(t.Rays[TopRight].Mul(u))
	return bottom.Mul(1 - v).Add(top.Mul(v))
}

// Position rebuilds the view-space position at (u, v) from a positive
// linear view depth.
func (t *Table) Position(u, v, depth float32) mgl32.Vec3 {
	return t.At(u, v).Mul(depth)
}

// Bytes returns the rays as four vec4<f32>, the uniform layout the light
// programs read.
func (t *Table) Bytes() []byte {
	out := make([]byte, 0, 64)
	for _, r := range t.Rays {
		for _, f := range [4]float32{r[0], r[1], r[2], 0} {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

// Cache keeps the tables of recently used projections.
type Cache struct {
	*cache.LRU[mgl32.Mat4, *Table]
}

// NewCache returns a cache bounded by cfg in tables. A zero capacity
// means DefaultCapacity.
func NewCache(cfg cache.Config) *Cache {
	if cfg.MaximumCapacity == 0 {
		cfg.MaximumCapacity = DefaultCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "viewray"
	}
	return &Cache{cache.NewLRU[mgl32.Mat4, *Table](cache.Funcs[mgl32.Mat4, *Table]{LoadFunc: New}, cfg)}
}
