// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/scene"
	"github.com/gogpu/deferred/shader"
	"github.com/gogpu/deferred/viewray"
)

func TestCorrectDepthRange(t *testing.T) {
	const near, far = 0.5, 50
	p := correct(mgl32.Perspective(mgl32.DegToRad(60), 1.5, near, far))
	tests := []struct {
		z, want float32
	}{
		{-near, 0},
		{-far, 1},
	}
	for _, tt := range tests {
		c := p.Mul4x1(mgl32.Vec4{0, 0, tt.z, 1})
		if got := c.Z() / c.W(); math.Abs(float64(got-tt.want)) > 1e-5 {
			t.Errorf("depth at z=%v = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestMirroredQuadFacesAway(t *testing.T) {
	// The unit quad winds counter-clockwise; mirrored it must wind clockwise.
	a := mirrorX.Mul4x1(mgl32.Vec4{-1, -1, 0, 1})
	b := mirrorX.Mul4x1(mgl32.Vec4{1, -1, 0, 1})
	c := mirrorX.Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	area := (b.X()-a.X())*(c.Y()-a.Y()) - (c.X()-a.X())*(b.Y()-a.Y())
	if area >= 0 {
		t.Errorf("signed area = %v, want clockwise", area)
	}
}

func TestLightBlockSize(t *testing.T) {
	cam := scene.LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 1, 0.1, 100)
	rays, err := viewray.New(cam.Projection)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		fl   frameLight
	}{
		{"ambient", frameLight{light: scene.Light{Kind: scene.LightAmbient}, volume: mirrorX}},
		{"spot", frameLight{light: scene.Light{Kind: scene.LightSpot, ConeAngle: 45, Range: 10}, volume: mgl32.Ident4()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u shader.Uniforms
			lightBlock(&u, tt.fl, cam, rays)
			if u.Len() != shader.LightUniformSize {
				t.Errorf("light block is %d bytes, want %d", u.Len(), shader.LightUniformSize)
			}
		})
	}

	if n := sceneBlock(mgl32.Ident4(), cam.View, cam.Projection).Len(); n != shader.SceneUniformSize {
		t.Errorf("scene block is %d bytes, want %d", n, shader.SceneUniformSize)
	}
}
