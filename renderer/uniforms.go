// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/scene"
	"github.com/gogpu/deferred/shader"
	"github.com/gogpu/deferred/viewray"
)

// shadowBias offsets depth comparisons against basic shadow maps.
const shadowBias = 0.005

// volumeScale enlarges point light spheres so the tessellated surface
// still encloses the lit range.
const volumeScale = 1.1

// clipDepth maps OpenGL clip depth [-w, w] to the [0, w] range render
// targets store.
var clipDepth = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

func correct(projection mgl32.Mat4) mgl32.Mat4 {
	return clipDepth.Mul4(projection)
}

// mirrorX turns the unit quad to face away from the viewer, so front-face
// culling keeps it.
var mirrorX = mgl32.Scale3D(-1, 1, 1)

func sceneBlock(model, view, projection mgl32.Mat4) *shader.Uniforms {
	var u shader.Uniforms
	u.Mat4(model).Mat4(view).Mat4(correct(projection))
	return &u
}

// frameLight is a light prepared for one frame: its shading parameters in
// camera view space.
type frameLight struct {
	light   scene.Light
	program string
	volume  mgl32.Mat4
	toLight mgl32.Mat4
}

func lightBlock(u *shader.Uniforms, fl frameLight, cam scene.Camera, rays *viewray.Table) {
	l := fl.light
	pos := cam.View.Mul4x1(l.Position.Vec4(1))
	dir := cam.View.Mul4x1(l.Direction.Normalize().Vec4(0))
	halfCone := float64(mgl32.DegToRad(l.ConeAngle)) / 2
	proj := correct(cam.Projection)

	u.Mat4(fl.volume).Mat4(fl.toLight).
		Vec4(pos.X(), pos.Y(), pos.Z(), 1).
		Vec4(dir.X(), dir.Y(), dir.Z(), 0).
		Vec4(l.Color.X()*l.Intensity, l.Color.Y()*l.Intensity, l.Color.Z()*l.Intensity, 1).
		Vec4(l.Range, float32(math.Cos(halfCone)), float32(l.Kind), shadowBias).
		Vec4(proj.At(2, 2), proj.At(2, 3), 0, 0).
		Raw(rays.Bytes())
}
