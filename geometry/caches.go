// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geometry

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/source"
)

// QuadKey is the single key of the unit quad cache.
type QuadKey struct{}

// NewUnitQuad returns the cache holding the unit quad.
func NewUnitQuad(dev gpu.Device) *MeshCache[QuadKey] {
	return newMeshCache(dev, cache.Items("geometry/quad", 1), func(QuadKey) (*Mesh, error) {
		return Upload(dev, "unit_quad", Quad())
	})
}

// NewUnitSphereCache returns a cache of unit spheres by precision. A mesh
// file "meshes/unit_sphere_<precision>.mesh" in src replaces the generated
// sphere; src may be nil.
func NewUnitSphereCache(dev gpu.Device, src source.Source, cfg cache.Config) *MeshCache[Precision] {
	return newMeshCache(dev, named(cfg, "geometry/sphere"), func(p Precision) (*Mesh, error) {
		return loadUnit(dev, src, "unit_sphere", p, Sphere)
	})
}

// NewUnitCubeCache returns a cache of unit cubes by precision, with the
// same mesh file override as NewUnitSphereCache.
func NewUnitCubeCache(dev gpu.Device, src source.Source, cfg cache.Config) *MeshCache[Precision] {
	return newMeshCache(dev, named(cfg, "geometry/cube"), func(p Precision) (*Mesh, error) {
		return loadUnit(dev, src, "unit_cube", p, Cube)
	})
}

// FrustumKey identifies a frustum volume by the projection that defines it.
type FrustumKey struct {
	Projection mgl32.Mat4
}

// PerspectiveKey returns the key of a perspective frustum.
func PerspectiveKey(fovy, aspect, near, far float32) FrustumKey {
	return FrustumKey{Projection: mgl32.Perspective(fovy, aspect, near, far)}
}

// NewFrustumCache returns a cache of frustum volumes.
func NewFrustumCache(dev gpu.Device, cfg cache.Config) *MeshCache[FrustumKey] {
	return newMeshCache(dev, named(cfg, "geometry/frustum"), func(k FrustumKey) (*Mesh, error) {
		d, err := Frustum(k.Projection)
		if err != nil {
			return nil, err
		}
		return Upload(dev, "frustum", d)
	})
}

func named(cfg cache.Config, name string) cache.Config {
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg
}

func loadUnit(dev gpu.Device, src source.Source, kind string, p Precision, generate func(Precision) *Data) (*Mesh, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("geometry: invalid precision %d", int(p))
	}
	label := fmt.Sprintf("%s_%d", kind, int(p))
	if src != nil {
		raw, err := src.Open("meshes/" + label + ".mesh")
		switch {
		case err == nil:
			d, err := Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("geometry: %s: %w", label, err)
			}
			deferred.Logger().Debug("geometry: loaded mesh file", "mesh", label)
			return Upload(dev, label, d)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	return Upload(dev, label, generate(p))
}
