// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Stage is a shading stage family. Each stage has its own program cache
// and a fixed pipeline layout.
type Stage int

const (
	Debug Stage = iota
	Depth
	DepthVariance
	DeferredGeometry
	DeferredLight
	TranslucentLit
	TranslucentUnlit
	Postprocessing

	stageCount
)

var stageDirs = [stageCount]string{
	Debug:            "debug",
	Depth:            "depth",
	DepthVariance:    "depth_variance",
	DeferredGeometry: "deferred_geometry",
	DeferredLight:    "deferred_light",
	TranslucentLit:   "translucent_lit",
	TranslucentUnlit: "translucent_unlit",
	Postprocessing:   "postprocessing",
}

// Stages returns every stage in declaration order.
func Stages() []Stage {
	s := make([]Stage, stageCount)
	for i := range s {
		s[i] = Stage(i)
	}
	return s
}

// String returns the source directory of the stage.
func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageDirs[s]
}

// ParseStage returns the stage whose source directory is dir.
func ParseStage(dir string) (Stage, bool) {
	for i, d := range stageDirs {
		if d == dir {
			return Stage(i), true
		}
	}
	return 0, false
}

// Path returns the source name of program name in stage s.
func (s Stage) Path(name string) string {
	return s.String() + "/" + name + ".wgsl"
}

// Formats fixes the attachment formats programs are built for.
type Formats struct {
	Color     gputypes.TextureFormat
	Variance  gputypes.TextureFormat
	Shadow    gputypes.TextureFormat
	Scene     gputypes.TextureFormat
	GeoNormal gputypes.TextureFormat
}

// DefaultFormats returns RGBA8 color, RG32Float variance, Depth32Float
// shadows and Depth24Plus scene depth.
func DefaultFormats() Formats {
	return Formats{
		Color:     gputypes.TextureFormatRGBA8Unorm,
		Variance:  gputypes.TextureFormatRG32Float,
		Shadow:    gputypes.TextureFormatDepth32Float,
		Scene:     gputypes.TextureFormatDepth24Plus,
		GeoNormal: gputypes.TextureFormatRGBA16Float,
	}
}

// Layout is the fixed pipeline state of a stage.
type Layout struct {
	ColorTargets []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction
	CullMode     gputypes.CullMode
	Blend        *gputypes.BlendState
	// UniformSize is the uniform buffer size for programs that declare one.
	UniformSize uint64
}

// Uniform block sizes in bytes.
const (
	// Model, view and projection matrices.
	SceneUniformSize = 3 * 64
	// Volume and view-to-light matrices, five parameter vectors and the
	// view rays.
	LightUniformSize = 2*64 + 5*16 + 64
	// Texel size, direction and parameters.
	PassUniformSize = 64
)

var additive = gputypes.BlendState{
	Color: gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorOne,
		Operation: gputypes.BlendOperationAdd,
	},
	Alpha: gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorOne,
		Operation: gputypes.BlendOperationAdd,
	},
}

// VariancePrefix marks postprocessing programs that read and write the
// variance format instead of the color format.
const VariancePrefix = "variance_"

// Layout returns the pipeline state of program name in stage s.
func (s Stage) Layout(f Formats, name string) Layout {
	alpha := gputypes.BlendStateAlpha()
	switch s {
	case Debug:
		return Layout{ColorTargets: []gputypes.TextureFormat{f.Color}, Blend: &alpha, UniformSize: PassUniformSize}
	case Depth:
		return Layout{DepthFormat: f.Shadow, DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess, UniformSize: SceneUniformSize}
	case DepthVariance:
		return Layout{ColorTargets: []gputypes.TextureFormat{f.Variance}, DepthFormat: f.Shadow, DepthWrite: true,
			DepthCompare: gputypes.CompareFunctionLess, UniformSize: SceneUniformSize}
	case DeferredGeometry:
		return Layout{ColorTargets: []gputypes.TextureFormat{f.Color, f.GeoNormal}, DepthFormat: f.Scene,
			DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess, UniformSize: SceneUniformSize}
	case DeferredLight:
		add := additive
		// Light volumes are drawn by their back faces so a camera inside
		// the volume still shades.
		return Layout{ColorTargets: []gputypes.TextureFormat{f.Color}, CullMode: gputypes.CullModeFront,
			Blend: &add, UniformSize: LightUniformSize}
	case TranslucentLit, TranslucentUnlit:
		return Layout{ColorTargets: []gputypes.TextureFormat{f.Color}, DepthFormat: f.Scene,
			DepthCompare: gputypes.CompareFunctionLess, Blend: &alpha, UniformSize: SceneUniformSize + LightUniformSize}
	default:
		target := f.Color
		if strings.HasPrefix(name, VariancePrefix) {
			target = f.Variance
		}
		return Layout{ColorTargets: []gputypes.TextureFormat{target}, UniformSize: PassUniformSize}
	}
}
