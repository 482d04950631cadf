// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/gpu"
)

// ErrBinding is returned when a draw does not supply what its program
// declares.
var ErrBinding = errors.New("shader: binding mismatch")

// Uniforms encodes a uniform block in WGSL layout. Every value written is
// 16-byte aligned, so blocks are built from vec4 and mat4x4 members only.
type Uniforms struct {
	buf []byte
}

// Mat4 appends a column-major mat4x4<f32>.
func (u *Uniforms) Mat4(m mgl32.Mat4) *Uniforms {
	for _, f := range m {
		u.f32(f)
	}
	return u
}

// Vec4 appends a vec4<f32>.
func (u *Uniforms) Vec4(x, y, z, w float32) *Uniforms {
	u.f32(x)
	u.f32(y)
	u.f32(z)
	u.f32(w)
	return u
}

// Raw appends pre-encoded bytes such as a view-ray table.
func (u *Uniforms) Raw(b []byte) *Uniforms {
	u.buf = append(u.buf, b...)
	return u
}

// Bytes returns the encoded block.
func (u *Uniforms) Bytes() []byte { return u.buf }

// Len returns the encoded size in bytes.
func (u *Uniforms) Len() int { return len(u.buf) }

func (u *Uniforms) f32(f float32) {
	u.buf = binary.LittleEndian.AppendUint32(u.buf, math.Float32bits(f))
}

// Bind sets the program, inputs and uniforms of cmd. The program may
// declare fewer inputs than offered, in which case the extra trailing
// inputs are left unbound; declaring more is an error, as is a depth input
// where the program samples color or the reverse. Uniforms are padded to
// the program's block size and dropped for programs without one.
func (p *Program) Bind(cmd *gpu.DrawCommand, inputs []gpu.Texture, uniforms []byte) error {
	if len(inputs) < len(p.Inputs) {
		return fmt.Errorf("%w: %s/%s samples %d textures, %d bound",
			ErrBinding, p.Stage, p.Name, len(p.Inputs), len(inputs))
	}
	for i, want := range p.Inputs {
		if inputs[i] == nil {
			return fmt.Errorf("%w: %s/%s input %d is nil", ErrBinding, p.Stage, p.Name, i)
		}
		depth := inputs[i].Format().HasDepth()
		if depth != (want == gputypes.TextureSampleTypeDepth) {
			return fmt.Errorf("%w: %s/%s input %d has format %v",
				ErrBinding, p.Stage, p.Name, i, inputs[i].Format())
		}
	}
	if uint64(len(uniforms)) > p.UniformSize && p.UniformSize > 0 {
		return fmt.Errorf("%w: %s/%s uniform block is %d bytes, %d given",
			ErrBinding, p.Stage, p.Name, p.UniformSize, len(uniforms))
	}

	cmd.Program = p.Handle
	cmd.Inputs = inputs[:len(p.Inputs)]
	cmd.Uniforms = nil
	if p.UniformSize > 0 {
		cmd.Uniforms = make([]byte, p.UniformSize)
		copy(cmd.Uniforms, uniforms)
	}
	return nil
}
