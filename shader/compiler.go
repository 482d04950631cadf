// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Compiler turns WGSL into SPIR-V and reports the textures the module
// samples.
type Compiler struct {
	// Validate runs IR validation before code generation.
	Validate bool
	// Debug keeps debug names in the SPIR-V output.
	Debug bool
}

// Compiled is the output of Compiler.Compile.
type Compiled struct {
	SPIRV []uint32
	// Inputs lists the sample type of every texture in group 0, in binding
	// order starting at binding 1.
	Inputs []gputypes.TextureSampleType
	// Uniforms reports whether the module declares a uniform buffer at
	// group 0, binding 0.
	Uniforms bool
}

// Compile compiles one WGSL module. The label names the module in errors.
func (c Compiler) Compile(label, source string) (*Compiled, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", label, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: lower: %w", label, err)
	}
	if c.Validate {
		verrs, err := naga.Validate(module)
		if err != nil {
			return nil, fmt.Errorf("shader: %s: validate: %w", label, err)
		}
		if len(verrs) > 0 {
			return nil, fmt.Errorf("shader: %s: validate: %w", label, &verrs[0])
		}
	}

	out := &Compiled{}
	if out.Inputs, out.Uniforms, err = reflect(module); err != nil {
		return nil, fmt.Errorf("shader: %s: %w", label, err)
	}

	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3, Debug: c.Debug})
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", label, err)
	}
	out.SPIRV = words(code)
	return out, nil
}

// words converts little-endian SPIR-V bytes to 32-bit words.
func words(code []byte) []uint32 {
	w := make([]uint32, len(code)/4)
	for i := range w {
		w[i] = uint32(code[i*4]) |
			uint32(code[i*4+1])<<8 |
			uint32(code[i*4+2])<<16 |
			uint32(code[i*4+3])<<24
	}
	return w
}

// reflect collects the group 0 resources. Programs bind one uniform
// buffer at 0 and sampled textures from 1 upward without gaps.
func reflect(m *ir.Module) ([]gputypes.TextureSampleType, bool, error) {
	type texture struct {
		binding uint32
		sample  gputypes.TextureSampleType
	}
	var (
		textures []texture
		uniforms bool
	)
	for _, g := range m.GlobalVariables {
		if g.Binding == nil || g.Binding.Group != 0 {
			continue
		}
		switch g.Space {
		case ir.SpaceUniform:
			if g.Binding.Binding != 0 {
				return nil, false, fmt.Errorf("uniform %q at binding %d, want 0", g.Name, g.Binding.Binding)
			}
			uniforms = true
		case ir.SpaceHandle:
			if int(g.Type) >= len(m.Types) {
				continue
			}
			img, ok := m.Types[g.Type].Inner.(ir.ImageType)
			if !ok {
				continue
			}
			st := gputypes.TextureSampleTypeUnfilterableFloat
			if img.Class == ir.ImageClassDepth {
				st = gputypes.TextureSampleTypeDepth
			}
			textures = append(textures, texture{binding: g.Binding.Binding, sample: st})
		}
	}
	sort.Slice(textures, func(i, j int) bool { return textures[i].binding < textures[j].binding })

	inputs := make([]gputypes.TextureSampleType, len(textures))
	for i, t := range textures {
		if t.binding != uint32(i+1) {
			return nil, false, fmt.Errorf("texture at binding %d, want %d", t.binding, i+1)
		}
		inputs[i] = t.sample
	}
	return inputs, uniforms, nil
}
