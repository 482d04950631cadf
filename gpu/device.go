// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceHandle provides GPU device access from the host application.
// It is an alias for gpucontext.DeviceProvider; see NewHALDeviceFromProvider.
type DeviceHandle = gpucontext.DeviceProvider

// Device is the GPU capability object passed to every cache and renderer.
//
// Implementations are used from a single rendering goroutine.
type Device interface {
	// CreateTexture allocates a 2D texture.
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// DestroyTexture releases a texture created by this device.
	DestroyTexture(t Texture) error

	// CreateBuffer allocates a buffer initialized with desc.Contents.
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// DestroyBuffer releases a buffer created by this device.
	DestroyBuffer(b Buffer) error

	// CreateProgram builds a render program from SPIR-V.
	CreateProgram(desc ProgramDescriptor) (Program, error)

	// DestroyProgram releases a program created by this device.
	DestroyProgram(p Program) error

	// Clear clears the attachments of fb selected by v.
	Clear(fb *Framebuffer, v ClearValues) error

	// Draw records and submits one draw into cmd.Target.
	Draw(cmd *DrawCommand) error
}

// Texture is a GPU texture. It satisfies gpucontext.Texture.
type Texture interface {
	gpucontext.Texture

	// Format returns the texel format.
	Format() gputypes.TextureFormat

	// Label returns the debug label.
	Label() string
}

// Buffer is a GPU buffer.
type Buffer interface {
	Size() uint64
	Label() string
}

// Program is a compiled render pipeline.
type Program interface {
	Label() string
}

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
	// Usage defaults to sampled render attachment when zero.
	Usage gputypes.TextureUsage
	// SampleCount defaults to 1.
	SampleCount int
}

// BufferDescriptor describes a buffer. Size is len(Contents) when zero.
type BufferDescriptor struct {
	Label    string
	Usage    gputypes.BufferUsage
	Size     uint64
	Contents []byte
}

// ProgramDescriptor describes a render program.
type ProgramDescriptor struct {
	Label string

	// SPIRV is the compiled module holding both entry points.
	SPIRV            []uint32
	VertexEntry      string
	FragmentEntry    string
	VertexBuffers    []gputypes.VertexBufferLayout
	ColorTargets     []gputypes.TextureFormat
	DepthFormat      gputypes.TextureFormat
	DepthWrite       bool
	DepthCompare     gputypes.CompareFunction
	CullMode         gputypes.CullMode
	Blend            *gputypes.BlendState
	UniformSize      uint64
	InputSampleTypes []gputypes.TextureSampleType
}

// ClearValues selects what Clear clears and to which values.
type ClearValues struct {
	Color      gputypes.Color
	ClearColor bool
	Depth      float32
	ClearDepth bool
}

// ClearAll clears color to c and depth to 1.
func ClearAll(c gputypes.Color) ClearValues {
	return ClearValues{Color: c, ClearColor: true, Depth: 1, ClearDepth: true}
}

// DrawCommand is one draw into a framebuffer.
type DrawCommand struct {
	Label   string
	Program Program
	Target  *Framebuffer

	// Inputs are sampled in binding order. None of them may be an
	// attachment of Target.
	Inputs []Texture

	// Uniforms are copied into the program's uniform buffer.
	Uniforms []byte

	Vertices    Buffer
	VertexCount uint32

	// Indices, when set, makes this an indexed draw.
	Indices     Buffer
	IndexFormat gputypes.IndexFormat
	IndexCount  uint32

	// Instances defaults to 1.
	Instances uint32
}
