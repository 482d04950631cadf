// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"embed"
	"io/fs"

	"github.com/gogpu/deferred/source"
)

//go:embed builtin
var builtinFS embed.FS

// Programs shipped with the module. Sources passed to NewSet may replace
// any of them by providing the same path.
const (
	ShadowProgram        = "shadow"
	GeometryProgram      = "standard"
	LightProgram         = "light"
	LightShadowProgram   = "light_shadow"
	LightVarianceProgram = "light_variance"
	RefractProgram       = "refract"
	CopyProgram          = "copy"
	BlurProgram          = "blur"
	VarianceBlurProgram  = VariancePrefix + "blur"
	FXAAProgram          = "fxaa"
	EmissionExtract      = "emission_extract"
	EmissionCombine      = "emission_combine"
	DebugDepthProgram    = "shadow_depth"
	DebugMomentsProgram  = "shadow_moments"
)

// Builtin returns the built-in program sources laid out by stage
// directory.
func Builtin() source.Source {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	return source.NewFS(sub)
}
