// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/deferred"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// HALDevice implements Device on a gogpu/wgpu HAL device and queue.
// Every Clear and Draw is encoded into its own command buffer, submitted,
// and waited for before the call returns.
type HALDevice struct {
	device hal.Device
	queue  hal.Queue
	info   gpucontext.AdapterInfo
}

var _ Device = (*HALDevice)(nil)

// NewHALDevice wraps a HAL device and queue. It panics if either is nil.
func NewHALDevice(device hal.Device, queue hal.Queue) *HALDevice {
	if device == nil || queue == nil {
		panic("gpu: NewHALDevice with nil device or queue")
	}
	return &HALDevice{
		device: device,
		queue:  queue,
		info:   gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown},
	}
}

// NewHALDeviceFromProvider extracts the HAL device and queue from a host
// provider. Providers either expose HalDevice/HalQueue accessors or return
// HAL objects directly from Device and Queue.
func NewHALDeviceFromProvider(provider DeviceHandle) (*HALDevice, error) {
	if provider == nil {
		return nil, ErrNoHAL
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	var devAny, queueAny any
	if hp, ok := provider.(halProvider); ok {
		devAny, queueAny = hp.HalDevice(), hp.HalQueue()
	} else {
		devAny, queueAny = provider.Device(), provider.Queue()
	}
	device, ok := devAny.(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrNoHAL, devAny)
	}
	queue, ok := queueAny.(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrNoHAL, queueAny)
	}

	d := NewHALDevice(device, queue)
	d.info = provider.AdapterInfo()
	deferred.Logger().Info("gpu: using adapter",
		"name", d.info.Name, "type", d.info.Type.String(),
		"surface_format", provider.SurfaceFormat().String())
	return d, nil
}

// AdapterInfo returns the adapter the device was obtained from.
func (d *HALDevice) AdapterInfo() gpucontext.AdapterInfo { return d.info }

type halTexture struct {
	desc      TextureDescriptor
	tex       hal.Texture
	view      hal.TextureView
	destroyed bool
}

func (t *halTexture) Width() int                     { return t.desc.Width }
func (t *halTexture) Height() int                    { return t.desc.Height }
func (t *halTexture) Format() gputypes.TextureFormat { return t.desc.Format }
func (t *halTexture) Label() string                  { return t.desc.Label }

type halBuffer struct {
	label     string
	size      uint64
	buf       hal.Buffer
	destroyed bool
}

func (b *halBuffer) Size() uint64  { return b.size }
func (b *halBuffer) Label() string { return b.label }

type halProgram struct {
	label       string
	module      hal.ShaderModule
	bindLayout  hal.BindGroupLayout
	layout      hal.PipelineLayout
	pipeline    hal.RenderPipeline
	uniform     hal.Buffer
	uniformSize uint64
	inputs      int
	destroyed   bool
}

func (p *halProgram) Label() string { return p.label }

// CreateTexture allocates a texture and its default view.
func (d *HALDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, opError("create texture", desc.Label,
			fmt.Errorf("%w: size %dx%d", ErrInvalidDescriptor, desc.Width, desc.Height))
	}
	if desc.Usage == 0 {
		desc.Usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment
	}
	if desc.SampleCount < 1 {
		desc.SampleCount = 1
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   uint32(desc.SampleCount),
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, opError("create texture", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label + ".view",
		Format:          desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, opError("create texture view", desc.Label, err)
	}
	return &halTexture{desc: desc, tex: tex, view: view}, nil
}

// DestroyTexture releases a texture and its view.
func (d *HALDevice) DestroyTexture(t Texture) error {
	ht, ok := t.(*halTexture)
	if !ok {
		return opError("destroy texture", labelOf(t), ErrForeignResource)
	}
	if ht.destroyed {
		return opError("destroy texture", ht.desc.Label, ErrDestroyed)
	}
	ht.destroyed = true
	d.device.DestroyTextureView(ht.view)
	d.device.DestroyTexture(ht.tex)
	return nil
}

// CreateBuffer allocates a buffer and uploads desc.Contents.
func (d *HALDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	size := desc.Size
	if size == 0 {
		size = uint64(len(desc.Contents))
	}
	if size == 0 || uint64(len(desc.Contents)) > size {
		return nil, opError("create buffer", desc.Label,
			fmt.Errorf("%w: size %d with %d bytes of contents", ErrInvalidDescriptor, size, len(desc.Contents)))
	}
	// Buffer sizes must stay 4-byte aligned for queue writes.
	size = (size + 3) &^ 3
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: desc.Usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, opError("create buffer", desc.Label, err)
	}
	if len(desc.Contents) > 0 {
		if err := d.queue.WriteBuffer(buf, 0, padded(desc.Contents)); err != nil {
			d.device.DestroyBuffer(buf)
			return nil, opError("write buffer", desc.Label, err)
		}
	}
	return &halBuffer{label: desc.Label, size: size, buf: buf}, nil
}

// DestroyBuffer releases a buffer.
func (d *HALDevice) DestroyBuffer(b Buffer) error {
	hb, ok := b.(*halBuffer)
	if !ok {
		return opError("destroy buffer", labelOf(b), ErrForeignResource)
	}
	if hb.destroyed {
		return opError("destroy buffer", hb.label, ErrDestroyed)
	}
	hb.destroyed = true
	d.device.DestroyBuffer(hb.buf)
	return nil
}

// CreateProgram builds the shader module, layouts and render pipeline for
// desc. Group 0 holds the uniform buffer at binding 0 followed by one
// sampled texture per input.
func (d *HALDevice) CreateProgram(desc ProgramDescriptor) (Program, error) {
	if len(desc.SPIRV) == 0 {
		return nil, opError("create program", desc.Label, fmt.Errorf("%w: empty SPIR-V", ErrInvalidDescriptor))
	}
	p := &halProgram{label: desc.Label, uniformSize: desc.UniformSize, inputs: len(desc.InputSampleTypes)}
	fail := func(op string, err error) (Program, error) {
		d.releaseProgram(p)
		return nil, opError(op, desc.Label, err)
	}

	var err error
	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.SPIRV},
	})
	if err != nil {
		return fail("create shader module", err)
	}

	var entries []gputypes.BindGroupLayoutEntry
	if desc.UniformSize > 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    0,
			Visibility: gputypes.ShaderStagesVertexFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
		p.uniform, err = d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label + ".uniforms",
			Size:  (desc.UniformSize + 15) &^ 15,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fail("create uniform buffer", err)
		}
	}
	for i, st := range desc.InputSampleTypes {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    st,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}

	var groups []hal.BindGroupLayout
	if len(entries) > 0 {
		p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   desc.Label + ".bindings",
			Entries: entries,
		})
		if err != nil {
			return fail("create bind group layout", err)
		}
		groups = append(groups, p.bindLayout)
	}
	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + ".layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		return fail("create pipeline layout", err)
	}

	targets := make([]gputypes.ColorTargetState, len(desc.ColorTargets))
	for i, f := range desc.ColorTargets {
		targets[i] = gputypes.ColorTargetState{Format: f, Blend: desc.Blend, WriteMask: gputypes.ColorWriteMaskAll}
	}
	var depth *hal.DepthStencilState
	if desc.DepthFormat != gputypes.TextureFormatUndefined {
		cmp := desc.DepthCompare
		if cmp == gputypes.CompareFunctionUndefined {
			cmp = gputypes.CompareFunctionLess
		}
		depth = &hal.DepthStencilState{
			Format:            desc.DepthFormat,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      cmp,
			StencilReadMask:   0xFFFFFFFF,
			StencilWriteMask:  0xFFFFFFFF,
		}
	}
	var fragment *hal.FragmentState
	if desc.FragmentEntry != "" {
		fragment = &hal.FragmentState{Module: p.module, EntryPoint: desc.FragmentEntry, Targets: targets}
	}
	p.pipeline, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.VertexBuffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: desc.CullMode,
		},
		DepthStencil: depth,
		Multisample:  gputypes.DefaultMultisampleState(),
		Fragment:     fragment,
	})
	if err != nil {
		return fail("create render pipeline", err)
	}
	return p, nil
}

// DestroyProgram releases a program and everything CreateProgram built.
func (d *HALDevice) DestroyProgram(p Program) error {
	hp, ok := p.(*halProgram)
	if !ok {
		return opError("destroy program", labelOf(p), ErrForeignResource)
	}
	if hp.destroyed {
		return opError("destroy program", hp.label, ErrDestroyed)
	}
	d.releaseProgram(hp)
	hp.destroyed = true
	return nil
}

func (d *HALDevice) releaseProgram(p *halProgram) {
	if p.pipeline != nil {
		d.device.DestroyRenderPipeline(p.pipeline)
	}
	if p.layout != nil {
		d.device.DestroyPipelineLayout(p.layout)
	}
	if p.bindLayout != nil {
		d.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.uniform != nil {
		d.device.DestroyBuffer(p.uniform)
	}
	if p.module != nil {
		d.device.DestroyShaderModule(p.module)
	}
}

// Clear clears the selected attachments of fb in a render pass of its own.
func (d *HALDevice) Clear(fb *Framebuffer, v ClearValues) error {
	if fb == nil {
		return opError("clear", "", fmt.Errorf("%w: nil framebuffer", ErrInvalidDescriptor))
	}
	rp, err := passDescriptor(fb, &v)
	if err != nil {
		return opError("clear", fb.Label(), err)
	}
	return d.encode("clear", fb.Label(), func(enc hal.CommandEncoder) error {
		enc.BeginRenderPass(rp).End()
		return nil
	})
}

// Draw encodes cmd into a render pass that loads the target's contents.
func (d *HALDevice) Draw(cmd *DrawCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	prog, ok := cmd.Program.(*halProgram)
	if !ok || prog.destroyed {
		return opError("draw", cmd.Label, ErrForeignResource)
	}
	if len(cmd.Inputs) != prog.inputs {
		return opError("draw", cmd.Label,
			fmt.Errorf("%w: %d inputs for a program taking %d", ErrInvalidDraw, len(cmd.Inputs), prog.inputs))
	}
	if uint64(len(cmd.Uniforms)) > prog.uniformSize {
		return opError("draw", cmd.Label,
			fmt.Errorf("%w: %d uniform bytes exceed %d", ErrInvalidDraw, len(cmd.Uniforms), prog.uniformSize))
	}
	rp, err := passDescriptor(cmd.Target, nil)
	if err != nil {
		return opError("draw", cmd.Label, err)
	}
	vb, err := halBufferOf(cmd.Vertices)
	if err != nil {
		return opError("draw", cmd.Label, err)
	}
	ib, err := halBufferOf(cmd.Indices)
	if err != nil {
		return opError("draw", cmd.Label, err)
	}

	if len(cmd.Uniforms) > 0 {
		if err := d.queue.WriteBuffer(prog.uniform, 0, padded(cmd.Uniforms)); err != nil {
			return opError("write uniforms", cmd.Label, err)
		}
	}
	var group hal.BindGroup
	if prog.bindLayout != nil {
		group, err = d.bindGroup(prog, cmd)
		if err != nil {
			return opError("create bind group", cmd.Label, err)
		}
		defer d.device.DestroyBindGroup(group)
	}

	return d.encode("draw", cmd.Label, func(enc hal.CommandEncoder) error {
		pass := enc.BeginRenderPass(rp)
		pass.SetPipeline(prog.pipeline)
		if group != nil {
			pass.SetBindGroup(0, group, nil)
		}
		pass.SetViewport(0, 0, float32(cmd.Target.Width()), float32(cmd.Target.Height()), 0, 1)
		if vb != nil {
			pass.SetVertexBuffer(0, vb, 0)
		}
		if ib != nil {
			pass.SetIndexBuffer(ib, cmd.IndexFormat, 0)
			pass.DrawIndexed(cmd.IndexCount, cmd.InstanceCount(), 0, 0, 0)
		} else {
			pass.Draw(cmd.VertexCount, cmd.InstanceCount(), 0, 0)
		}
		pass.End()
		return nil
	})
}

func (d *HALDevice) bindGroup(p *halProgram, cmd *DrawCommand) (hal.BindGroup, error) {
	var entries []gputypes.BindGroupEntry
	if p.uniform != nil {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: p.uniform.NativeHandle(), Size: p.uniformSize},
		})
	}
	for i, in := range cmd.Inputs {
		ht, ok := in.(*halTexture)
		if !ok || ht.destroyed {
			return nil, fmt.Errorf("input %d: %w", i, ErrForeignResource)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1),
			Resource: gputypes.TextureViewBinding{TextureView: ht.view.NativeHandle()},
		})
	}
	return d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   cmd.Label + ".bindings",
		Layout:  p.bindLayout,
		Entries: entries,
	})
}

// encode records one command buffer with record, submits it and waits for
// the queue to drain.
func (d *HALDevice) encode(op, label string, record func(hal.CommandEncoder) error) error {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return opError(op, label, err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding(label); err != nil {
		return opError(op, label, err)
	}
	if err := record(enc); err != nil {
		enc.DiscardEncoding()
		return opError(op, label, err)
	}
	cb, err := enc.EndEncoding()
	if err != nil {
		return opError(op, label, err)
	}
	defer d.device.FreeCommandBuffer(cb)
	if _, err := d.queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		return opError("submit", label, err)
	}
	if err := d.device.WaitIdle(); err != nil {
		return opError("wait", label, err)
	}
	return nil
}

// passDescriptor builds a render pass over fb. A nil clear loads the
// existing contents of every attachment.
func passDescriptor(fb *Framebuffer, clear *ClearValues) (*hal.RenderPassDescriptor, error) {
	if len(fb.ColorAttachments()) == 0 && fb.Depth() == nil {
		return nil, ErrDestroyed
	}
	rp := &hal.RenderPassDescriptor{Label: fb.Label()}
	for i, t := range fb.ColorAttachments() {
		ht, ok := t.(*halTexture)
		if !ok || ht.destroyed {
			return nil, fmt.Errorf("color attachment %d: %w", i, ErrForeignResource)
		}
		att := hal.RenderPassColorAttachment{View: ht.view, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore}
		if clear != nil && clear.ClearColor {
			att.LoadOp = gputypes.LoadOpClear
			att.ClearValue = clear.Color
		}
		rp.ColorAttachments = append(rp.ColorAttachments, att)
	}
	if t := fb.Depth(); t != nil {
		ht, ok := t.(*halTexture)
		if !ok || ht.destroyed {
			return nil, fmt.Errorf("depth attachment: %w", ErrForeignResource)
		}
		att := &hal.RenderPassDepthStencilAttachment{
			View:         ht.view,
			DepthLoadOp:  gputypes.LoadOpLoad,
			DepthStoreOp: gputypes.StoreOpStore,
		}
		if clear != nil && clear.ClearDepth {
			att.DepthLoadOp = gputypes.LoadOpClear
			att.DepthClearValue = clear.Depth
		}
		if ht.desc.Format.HasStencil() {
			att.StencilLoadOp = gputypes.LoadOpLoad
			att.StencilStoreOp = gputypes.StoreOpStore
		}
		rp.DepthStencilAttachment = att
	}
	return rp, nil
}

func halBufferOf(b Buffer) (hal.Buffer, error) {
	if b == nil {
		return nil, nil
	}
	hb, ok := b.(*halBuffer)
	if !ok {
		return nil, ErrForeignResource
	}
	if hb.destroyed {
		return nil, ErrDestroyed
	}
	return hb.buf, nil
}

func labelOf(v any) string {
	if l, ok := v.(interface{ Label() string }); ok {
		return l.Label()
	}
	return ""
}

// padded returns data extended with zeros to a multiple of four bytes.
func padded(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	out := make([]byte, (len(data)+3)&^3)
	copy(out, data)
	return out
}
