// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gputest provides an in-memory gpu.Device for tests. It records
// every call, tracks live resources and injects failures on demand.
package gputest

import (
	"fmt"

	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/gputypes"
)

// Op names a device operation.
type Op string

// Device operations.
const (
	OpCreateTexture  Op = "create texture"
	OpDestroyTexture Op = "destroy texture"
	OpCreateBuffer   Op = "create buffer"
	OpDestroyBuffer  Op = "destroy buffer"
	OpCreateProgram  Op = "create program"
	OpDestroyProgram Op = "destroy program"
	OpClear          Op = "clear"
	OpDraw           Op = "draw"
)

// Call is one recorded device call.
type Call struct {
	Op    Op
	Label string
}

// Texture is a fake texture.
type Texture struct {
	ID        int
	Desc      gpu.TextureDescriptor
	Destroyed bool
}

func (t *Texture) Width() int                     { return t.Desc.Width }
func (t *Texture) Height() int                    { return t.Desc.Height }
func (t *Texture) Format() gputypes.TextureFormat { return t.Desc.Format }
func (t *Texture) Label() string                  { return t.Desc.Label }

// Buffer is a fake buffer that keeps its contents.
type Buffer struct {
	ID        int
	Desc      gpu.BufferDescriptor
	Contents  []byte
	Destroyed bool
}

func (b *Buffer) Size() uint64  { return uint64(len(b.Contents)) }
func (b *Buffer) Label() string { return b.Desc.Label }

// Program is a fake program.
type Program struct {
	ID        int
	Desc      gpu.ProgramDescriptor
	Destroyed bool
}

func (p *Program) Label() string { return p.Desc.Label }

// Draw is a recorded draw.
type Draw struct {
	Label   string
	Program string
	Target  string
	Inputs  []string
}

// Clear is a recorded clear.
type Clear struct {
	Target string
	Values gpu.ClearValues
}

type failure struct {
	after int
	err   error
}

// Device is an in-memory gpu.Device. It is not safe for concurrent use.
type Device struct {
	// Calls lists every call in order, including failed ones.
	Calls []Call
	// Draws and Clears list the successful draws and clears.
	Draws  []Draw
	Clears []Clear

	nextID   int
	counts   map[Op]int
	failures map[Op]failure
	textures map[*Texture]struct{}
	buffers  map[*Buffer]struct{}
	programs map[*Program]struct{}
}

var _ gpu.Device = (*Device)(nil)

// NewDevice returns an empty device.
func NewDevice() *Device {
	return &Device{
		counts:   make(map[Op]int),
		failures: make(map[Op]failure),
		textures: make(map[*Texture]struct{}),
		buffers:  make(map[*Buffer]struct{}),
		programs: make(map[*Program]struct{}),
	}
}

// FailOn makes every later call of op fail with err.
func (d *Device) FailOn(op Op, err error) {
	d.FailAfter(op, 0, err)
}

// FailAfter lets n more calls of op succeed, then fails the rest with err.
func (d *Device) FailAfter(op Op, n int, err error) {
	d.failures[op] = failure{after: d.counts[op] + n, err: err}
}

// Heal removes an injected failure.
func (d *Device) Heal(op Op) {
	delete(d.failures, op)
}

// Count returns how many times op was called.
func (d *Device) Count(op Op) int {
	return d.counts[op]
}

// LiveTextures returns the number of textures not yet destroyed.
func (d *Device) LiveTextures() int { return len(d.textures) }

// LiveBuffers returns the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int { return len(d.buffers) }

// LivePrograms returns the number of programs not yet destroyed.
func (d *Device) LivePrograms() int { return len(d.programs) }

// Live returns the number of resources not yet destroyed.
func (d *Device) Live() int {
	return len(d.textures) + len(d.buffers) + len(d.programs)
}

// DrawLabels returns the labels of the recorded draws in order.
func (d *Device) DrawLabels() []string {
	out := make([]string, len(d.Draws))
	for i, dr := range d.Draws {
		out[i] = dr.Label
	}
	return out
}

// ResetLog forgets recorded calls, draws and clears. Live resources and
// injected failures are kept.
func (d *Device) ResetLog() {
	d.Calls = nil
	d.Draws = nil
	d.Clears = nil
}

func (d *Device) call(op Op, label string) error {
	d.Calls = append(d.Calls, Call{Op: op, Label: label})
	d.counts[op]++
	if f, ok := d.failures[op]; ok && d.counts[op] > f.after {
		return &gpu.OpError{Op: string(op), Label: label, Err: f.err}
	}
	return nil
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	if err := d.call(OpCreateTexture, desc.Label); err != nil {
		return nil, err
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, &gpu.OpError{Op: string(OpCreateTexture), Label: desc.Label,
			Err: fmt.Errorf("%w: size %dx%d", gpu.ErrInvalidDescriptor, desc.Width, desc.Height)}
	}
	d.nextID++
	t := &Texture{ID: d.nextID, Desc: desc}
	d.textures[t] = struct{}{}
	return t, nil
}

func (d *Device) DestroyTexture(t gpu.Texture) error {
	label := labelOf(t)
	if err := d.call(OpDestroyTexture, label); err != nil {
		return err
	}
	ft, ok := t.(*Texture)
	if !ok {
		return &gpu.OpError{Op: string(OpDestroyTexture), Label: label, Err: gpu.ErrForeignResource}
	}
	if _, live := d.textures[ft]; !live {
		return &gpu.OpError{Op: string(OpDestroyTexture), Label: label, Err: gpu.ErrDestroyed}
	}
	delete(d.textures, ft)
	ft.Destroyed = true
	return nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.call(OpCreateBuffer, desc.Label); err != nil {
		return nil, err
	}
	size := desc.Size
	if size == 0 {
		size = uint64(len(desc.Contents))
	}
	if size == 0 || uint64(len(desc.Contents)) > size {
		return nil, &gpu.OpError{Op: string(OpCreateBuffer), Label: desc.Label, Err: gpu.ErrInvalidDescriptor}
	}
	contents := make([]byte, size)
	copy(contents, desc.Contents)
	d.nextID++
	b := &Buffer{ID: d.nextID, Desc: desc, Contents: contents}
	d.buffers[b] = struct{}{}
	return b, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) error {
	label := labelOf(b)
	if err := d.call(OpDestroyBuffer, label); err != nil {
		return err
	}
	fb, ok := b.(*Buffer)
	if !ok {
		return &gpu.OpError{Op: string(OpDestroyBuffer), Label: label, Err: gpu.ErrForeignResource}
	}
	if _, live := d.buffers[fb]; !live {
		return &gpu.OpError{Op: string(OpDestroyBuffer), Label: label, Err: gpu.ErrDestroyed}
	}
	delete(d.buffers, fb)
	fb.Destroyed = true
	return nil
}

func (d *Device) CreateProgram(desc gpu.ProgramDescriptor) (gpu.Program, error) {
	if err := d.call(OpCreateProgram, desc.Label); err != nil {
		return nil, err
	}
	if len(desc.SPIRV) == 0 {
		return nil, &gpu.OpError{Op: string(OpCreateProgram), Label: desc.Label, Err: gpu.ErrInvalidDescriptor}
	}
	d.nextID++
	p := &Program{ID: d.nextID, Desc: desc}
	d.programs[p] = struct{}{}
	return p, nil
}

func (d *Device) DestroyProgram(p gpu.Program) error {
	label := labelOf(p)
	if err := d.call(OpDestroyProgram, label); err != nil {
		return err
	}
	fp, ok := p.(*Program)
	if !ok {
		return &gpu.OpError{Op: string(OpDestroyProgram), Label: label, Err: gpu.ErrForeignResource}
	}
	if _, live := d.programs[fp]; !live {
		return &gpu.OpError{Op: string(OpDestroyProgram), Label: label, Err: gpu.ErrDestroyed}
	}
	delete(d.programs, fp)
	fp.Destroyed = true
	return nil
}

func (d *Device) Clear(fb *gpu.Framebuffer, v gpu.ClearValues) error {
	if fb == nil {
		return &gpu.OpError{Op: string(OpClear), Err: gpu.ErrInvalidDescriptor}
	}
	if err := d.call(OpClear, fb.Label()); err != nil {
		return err
	}
	if err := d.checkTarget(OpClear, fb); err != nil {
		return err
	}
	d.Clears = append(d.Clears, Clear{Target: fb.Label(), Values: v})
	return nil
}

func (d *Device) Draw(cmd *gpu.DrawCommand) error {
	if err := d.call(OpDraw, cmd.Label); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if p, ok := cmd.Program.(*Program); !ok || p.Destroyed {
		return &gpu.OpError{Op: string(OpDraw), Label: cmd.Label, Err: gpu.ErrDestroyed}
	}
	if err := d.checkTarget(OpDraw, cmd.Target); err != nil {
		return err
	}
	rec := Draw{Label: cmd.Label, Program: cmd.Program.Label(), Target: cmd.Target.Label()}
	for _, in := range cmd.Inputs {
		if t, ok := in.(*Texture); !ok || t.Destroyed {
			return &gpu.OpError{Op: string(OpDraw), Label: cmd.Label, Err: gpu.ErrDestroyed}
		}
		rec.Inputs = append(rec.Inputs, in.Label())
	}
	d.Draws = append(d.Draws, rec)
	return nil
}

func (d *Device) checkTarget(op Op, fb *gpu.Framebuffer) error {
	atts := append([]gpu.Texture(nil), fb.ColorAttachments()...)
	if fb.Depth() != nil {
		atts = append(atts, fb.Depth())
	}
	if len(atts) == 0 {
		return &gpu.OpError{Op: string(op), Label: fb.Label(), Err: gpu.ErrDestroyed}
	}
	for _, t := range atts {
		if ft, ok := t.(*Texture); !ok || ft.Destroyed {
			return &gpu.OpError{Op: string(op), Label: fb.Label(), Err: gpu.ErrDestroyed}
		}
	}
	return nil
}

func labelOf(v any) string {
	if l, ok := v.(interface{ Label() string }); ok {
		return l.Label()
	}
	return ""
}
