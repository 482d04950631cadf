// Package scene describes what one frame draws: a camera, the visible
// opaque and translucent instances, and the lights.
//
// A Scene is built once per frame with a Builder and is immutable
// afterwards, so the renderer can walk it any number of times.
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/geometry"
)

// ErrInvalidScene is returned by Scene.Validate.
var ErrInvalidScene = errors.New("scene: invalid scene")

// Camera holds the view and projection matrices of the viewer.
type Camera struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

// LookAt returns a perspective camera at eye looking at center. The field
// of view is in degrees.
func LookAt(eye, center, up mgl32.Vec3, fovy, aspect, near, far float32) Camera {
	return Camera{
		View:       mgl32.LookAtV(eye, center, up),
		Projection: mgl32.Perspective(mgl32.DegToRad(fovy), aspect, near, far),
	}
}

// Eye returns the camera position in world space.
func (c Camera) Eye() mgl32.Vec3 {
	return c.View.Inv().Col(3).Vec3()
}

// Instance is one mesh drawn with one program.
type Instance struct {
	Mesh *geometry.Mesh
	// Shader names the program in the stage the instance is drawn in.
	Shader string
	// Model is the object-to-world transform. The zero matrix means
	// identity.
	Model mgl32.Mat4
	// Unlit translucent instances ignore the lights.
	Unlit bool
	// Refractive translucent instances sample the opaque image behind
	// them.
	Refractive bool
	// NoShadow excludes an opaque instance from shadow passes.
	NoShadow bool
}

// Transform returns Model, or identity when Model is zero.
func (i Instance) Transform() mgl32.Mat4 {
	if i.Model == (mgl32.Mat4{}) {
		return mgl32.Ident4()
	}
	return i.Model
}

// Scene is an immutable frame snapshot.
type Scene struct {
	camera      Camera
	opaque      []Instance
	translucent []Instance
	lights      []Light
}

// Camera returns the frame camera.
func (s *Scene) Camera() Camera { return s.camera }

// Opaque returns the opaque instances grouped by shader. The slice must
// not be modified.
func (s *Scene) Opaque() []Instance { return s.opaque }

// Translucent returns the translucent instances sorted back to front. The
// slice must not be modified.
func (s *Scene) Translucent() []Instance { return s.translucent }

// Lights returns the lights in insertion order. The slice must not be
// modified.
func (s *Scene) Lights() []Light { return s.lights }

// ShadowCasters returns the lights that need a shadow map this frame.
func (s *Scene) ShadowCasters() []Light {
	var out []Light
	for _, l := range s.lights {
		if l.Shadowed() {
			out = append(out, l)
		}
	}
	return out
}

// Refractive reports whether any translucent instance refracts.
func (s *Scene) Refractive() bool {
	for _, i := range s.translucent {
		if i.Refractive {
			return true
		}
	}
	return false
}

// Validate reports instances without a mesh or shader and lights that
// share an ID.
func (s *Scene) Validate() error {
	check := func(kind string, list []Instance) error {
		for n, i := range list {
			if i.Mesh == nil {
				return fmt.Errorf("%w: %s instance %d has no mesh", ErrInvalidScene, kind, n)
			}
			if i.Shader == "" {
				return fmt.Errorf("%w: %s instance %d has no shader", ErrInvalidScene, kind, n)
			}
		}
		return nil
	}
	if err := check("opaque", s.opaque); err != nil {
		return err
	}
	if err := check("translucent", s.translucent); err != nil {
		return err
	}
	seen := make(map[uint64]bool, len(s.lights))
	for _, l := range s.lights {
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate light id %d", ErrInvalidScene, l.ID)
		}
		seen[l.ID] = true
	}
	return nil
}
