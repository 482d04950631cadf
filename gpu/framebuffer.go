// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// MaxColorAttachments is the number of color attachments a framebuffer
// may carry.
const MaxColorAttachments = 4

// FramebufferDescriptor describes a render target. Unused color slots
// hold TextureFormatUndefined; Depth is Undefined for color-only targets.
// The descriptor is comparable.
type FramebufferDescriptor struct {
	Label   string
	Width   int
	Height  int
	Color   [MaxColorAttachments]gputypes.TextureFormat
	Depth   gputypes.TextureFormat
	Samples int
}

// ColorCount returns the number of leading color attachments.
func (d FramebufferDescriptor) ColorCount() int {
	n := 0
	for n < MaxColorAttachments && d.Color[n] != gputypes.TextureFormatUndefined {
		n++
	}
	return n
}

// SizeBytes returns the declared size of all attachments.
func (d FramebufferDescriptor) SizeBytes() int64 {
	var bpp int
	for i := 0; i < d.ColorCount(); i++ {
		bpp += BytesPerPixel(d.Color[i])
	}
	if d.Depth != gputypes.TextureFormatUndefined {
		bpp += BytesPerPixel(d.Depth)
	}
	samples := d.Samples
	if samples < 1 {
		samples = 1
	}
	return int64(d.Width) * int64(d.Height) * int64(bpp) * int64(samples)
}

func (d FramebufferDescriptor) validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: framebuffer %q is %dx%d", ErrInvalidDescriptor, d.Label, d.Width, d.Height)
	}
	if d.ColorCount() == 0 && d.Depth == gputypes.TextureFormatUndefined {
		return fmt.Errorf("%w: framebuffer %q has no attachments", ErrInvalidDescriptor, d.Label)
	}
	for i := d.ColorCount(); i < MaxColorAttachments; i++ {
		if d.Color[i] != gputypes.TextureFormatUndefined {
			return fmt.Errorf("%w: framebuffer %q has a gap in its color attachments", ErrInvalidDescriptor, d.Label)
		}
	}
	if d.Depth != gputypes.TextureFormatUndefined && !d.Depth.HasDepth() {
		return fmt.Errorf("%w: framebuffer %q depth format %v", ErrInvalidDescriptor, d.Label, d.Depth)
	}
	return nil
}

// Framebuffer is a render target: up to MaxColorAttachments color
// textures and an optional depth texture of the same size.
type Framebuffer struct {
	desc  FramebufferDescriptor
	color []Texture
	depth Texture
}

// NewFramebuffer allocates the attachments described by desc. If any
// allocation fails, the attachments created so far are destroyed.
func NewFramebuffer(dev Device, desc FramebufferDescriptor) (*Framebuffer, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	fb := &Framebuffer{desc: desc}
	for i := 0; i < desc.ColorCount(); i++ {
		t, err := dev.CreateTexture(TextureDescriptor{
			Label:       fmt.Sprintf("%s.color%d", desc.Label, i),
			Width:       desc.Width,
			Height:      desc.Height,
			Format:      desc.Color[i],
			SampleCount: desc.Samples,
		})
		if err != nil {
			return nil, errors.Join(err, fb.Destroy(dev))
		}
		fb.color = append(fb.color, t)
	}
	if desc.Depth != gputypes.TextureFormatUndefined {
		t, err := dev.CreateTexture(TextureDescriptor{
			Label:       desc.Label + ".depth",
			Width:       desc.Width,
			Height:      desc.Height,
			Format:      desc.Depth,
			SampleCount: desc.Samples,
		})
		if err != nil {
			return nil, errors.Join(err, fb.Destroy(dev))
		}
		fb.depth = t
	}
	return fb, nil
}

// WrapFramebuffer builds a framebuffer around existing textures, such as
// the host's output target. The framebuffer does not own them; do not
// call Destroy on it.
func WrapFramebuffer(label string, color []Texture, depth Texture) (*Framebuffer, error) {
	if len(color) > MaxColorAttachments {
		return nil, fmt.Errorf("%w: %d color attachments", ErrInvalidDescriptor, len(color))
	}
	desc := FramebufferDescriptor{Label: label, Samples: 1}
	var ref Texture
	for i, t := range color {
		desc.Color[i] = t.Format()
		if ref == nil {
			ref = t
		}
	}
	if depth != nil {
		desc.Depth = depth.Format()
		if ref == nil {
			ref = depth
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: framebuffer %q has no attachments", ErrInvalidDescriptor, label)
	}
	desc.Width, desc.Height = ref.Width(), ref.Height()
	for _, t := range append(append([]Texture(nil), color...), depth) {
		if t != nil && (t.Width() != desc.Width || t.Height() != desc.Height) {
			return nil, fmt.Errorf("%w: framebuffer %q attachments differ in size", ErrInvalidDescriptor, label)
		}
	}
	if err := desc.validate(); err != nil {
		return nil, err
	}
	return &Framebuffer{desc: desc, color: append([]Texture(nil), color...), depth: depth}, nil
}

// Destroy releases every attachment and joins the failures.
func (f *Framebuffer) Destroy(dev Device) error {
	var errs []error
	for _, t := range f.color {
		errs = append(errs, dev.DestroyTexture(t))
	}
	if f.depth != nil {
		errs = append(errs, dev.DestroyTexture(f.depth))
	}
	f.color = nil
	f.depth = nil
	return errors.Join(errs...)
}

// Descriptor returns the description the framebuffer was built from.
func (f *Framebuffer) Descriptor() FramebufferDescriptor { return f.desc }

// Label returns the debug label.
func (f *Framebuffer) Label() string { return f.desc.Label }

// Width returns the width in pixels.
func (f *Framebuffer) Width() int { return f.desc.Width }

// Height returns the height in pixels.
func (f *Framebuffer) Height() int { return f.desc.Height }

// SizeBytes returns the declared size of all attachments.
func (f *Framebuffer) SizeBytes() int64 { return f.desc.SizeBytes() }

// Color returns color attachment i, or nil.
func (f *Framebuffer) Color(i int) Texture {
	if i < 0 || i >= len(f.color) {
		return nil
	}
	return f.color[i]
}

// ColorAttachments returns all color attachments.
func (f *Framebuffer) ColorAttachments() []Texture { return f.color }

// Depth returns the depth attachment, or nil.
func (f *Framebuffer) Depth() Texture { return f.depth }

// Has reports whether t is an attachment of f.
func (f *Framebuffer) Has(t Texture) bool {
	if t == nil {
		return false
	}
	if f.depth == t {
		return true
	}
	for _, c := range f.color {
		if c == t {
			return true
		}
	}
	return false
}

// ColorOnly returns a framebuffer over f's color attachments without its
// depth attachment. It shares f's textures and must not be destroyed.
func (f *Framebuffer) ColorOnly() *Framebuffer {
	desc := f.desc
	desc.Label = f.desc.Label + ".color"
	desc.Depth = gputypes.TextureFormatUndefined
	return &Framebuffer{desc: desc, color: f.color}
}
