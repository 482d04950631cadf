package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/shadowmap"
)

// LightKind is the emission model of a light.
type LightKind uint8

const (
	LightAmbient LightKind = iota
	LightDirectional
	LightPoint
	LightSpot
)

func (k LightKind) String() string {
	switch k {
	case LightAmbient:
		return "ambient"
	case LightDirectional:
		return "directional"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return fmt.Sprintf("LightKind(%d)", uint8(k))
}

// Default light parameters applied by Builder.AddLight.
const (
	DefaultShadowSize = 1024
	DefaultConeAngle  = 45
	DefaultRange      = 100
)

// Light is a light source. Positions and directions are in world space.
type Light struct {
	// ID identifies the light across frames; it keys the shadow map cache.
	ID        uint64
	Kind      LightKind
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	// Range bounds point and spot lights and the depth of their shadow
	// projection.
	Range float32
	// ConeAngle is the full spot cone in degrees.
	ConeAngle float32

	CastsShadows bool
	ShadowKind   shadowmap.Kind
	ShadowSize   int

	// Shader names the deferred_light program that evaluates the light.
	// Empty selects the built-in program for the light's shadow kind.
	Shader string
}

// Shadowed reports whether the light gets a shadow map. Ambient and point
// lights never do.
func (l Light) Shadowed() bool {
	return l.CastsShadows && (l.Kind == LightDirectional || l.Kind == LightSpot)
}

// ShadowKey returns the shadow map cache key of the light.
func (l Light) ShadowKey() shadowmap.Key {
	return shadowmap.Key{Light: l.ID, Desc: shadowmap.Description{Size: l.ShadowSize, Kind: l.ShadowKind}}
}

// View returns the light's view transform, looking from Position along
// Direction.
func (l Light) View() mgl32.Mat4 {
	dir := l.Direction.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	return mgl32.LookAtV(l.Position, l.Position.Add(dir), up)
}

// Projection returns the light's shadow projection. Directional lights get
// an orthographic box of half-extent Range around Position; spot lights a
// perspective cone.
func (l Light) Projection() mgl32.Mat4 {
	if l.Kind == LightDirectional {
		return mgl32.Ortho(-l.Range, l.Range, -l.Range, l.Range, -l.Range, l.Range)
	}
	return mgl32.Perspective(mgl32.DegToRad(l.ConeAngle), 1, 0.1, l.Range)
}

// ViewProjection returns the light-space transform used to render and
// sample its shadow map.
func (l Light) ViewProjection() mgl32.Mat4 {
	return l.Projection().Mul4(l.View())
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func (l Light) withDefaults() Light {
	if l.Color == (mgl32.Vec3{}) {
		l.Color = mgl32.Vec3{1, 1, 1}
	}
	if l.Intensity == 0 {
		l.Intensity = 1
	}
	if l.Range == 0 {
		l.Range = DefaultRange
	}
	if l.ConeAngle == 0 {
		l.ConeAngle = DefaultConeAngle
	}
	if l.ShadowSize == 0 {
		l.ShadowSize = DefaultShadowSize
	}
	if l.Direction == (mgl32.Vec3{}) {
		l.Direction = mgl32.Vec3{0, 0, -1}
	}
	return l
}
