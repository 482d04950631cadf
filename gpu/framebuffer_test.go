// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu_test

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/gpu/gputest"
	"github.com/gogpu/gputypes"
)

func colorDepth(label string) gpu.FramebufferDescriptor {
	return gpu.FramebufferDescriptor{
		Label:  label,
		Width:  64,
		Height: 32,
		Color:  [gpu.MaxColorAttachments]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA16Float},
		Depth:  gputypes.TextureFormatDepth24Plus,
	}
}

func TestNewFramebuffer(t *testing.T) {
	dev := gputest.NewDevice()
	fb, err := gpu.NewFramebuffer(dev, colorDepth("gbuffer"))
	if err != nil {
		t.Fatalf("NewFramebuffer() error = %v", err)
	}
	if len(fb.ColorAttachments()) != 2 || fb.Depth() == nil {
		t.Fatalf("attachments = %d color, depth %v", len(fb.ColorAttachments()), fb.Depth())
	}
	if fb.Color(1).Format() != gputypes.TextureFormatRGBA16Float {
		t.Errorf("Color(1).Format() = %v", fb.Color(1).Format())
	}
	if fb.Color(5) != nil {
		t.Error("Color(5) should be nil")
	}
	if fb.Width() != 64 || fb.Height() != 32 {
		t.Errorf("size = %dx%d, want 64x32", fb.Width(), fb.Height())
	}
	if dev.LiveTextures() != 3 {
		t.Errorf("LiveTextures() = %d, want 3", dev.LiveTextures())
	}
	if !fb.Has(fb.Depth()) || fb.Has(nil) {
		t.Error("Has() does not match the attachments")
	}

	if err := fb.Destroy(dev); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if dev.LiveTextures() != 0 {
		t.Errorf("LiveTextures() = %d after Destroy, want 0", dev.LiveTextures())
	}
}

func TestNewFramebufferPartialFailure(t *testing.T) {
	dev := gputest.NewDevice()
	boom := errors.New("out of video memory")
	dev.FailAfter(gputest.OpCreateTexture, 2, boom)

	_, err := gpu.NewFramebuffer(dev, colorDepth("gbuffer"))
	if !errors.Is(err, boom) {
		t.Fatalf("NewFramebuffer() error = %v, want %v", err, boom)
	}
	var opErr *gpu.OpError
	if !errors.As(err, &opErr) || opErr.Op != string(gputest.OpCreateTexture) {
		t.Errorf("error %v is not an OpError from create texture", err)
	}
	if dev.LiveTextures() != 0 {
		t.Errorf("LiveTextures() = %d, want 0 after rollback", dev.LiveTextures())
	}
}

func TestWrapFramebuffer(t *testing.T) {
	dev := gputest.NewDevice()
	color, _ := dev.CreateTexture(gpu.TextureDescriptor{Label: "out", Width: 8, Height: 8, Format: gputypes.TextureFormatBGRA8Unorm})
	small, _ := dev.CreateTexture(gpu.TextureDescriptor{Label: "small", Width: 4, Height: 4, Format: gputypes.TextureFormatDepth32Float})

	fb, err := gpu.WrapFramebuffer("output", []gpu.Texture{color}, nil)
	if err != nil {
		t.Fatalf("WrapFramebuffer() error = %v", err)
	}
	if fb.Descriptor().Color[0] != gputypes.TextureFormatBGRA8Unorm || fb.Width() != 8 {
		t.Errorf("Descriptor() = %+v", fb.Descriptor())
	}
	if _, err := gpu.WrapFramebuffer("bad", []gpu.Texture{color}, small); !errors.Is(err, gpu.ErrInvalidDescriptor) {
		t.Errorf("mismatched sizes error = %v, want ErrInvalidDescriptor", err)
	}
	if _, err := gpu.WrapFramebuffer("empty", nil, nil); !errors.Is(err, gpu.ErrInvalidDescriptor) {
		t.Errorf("no attachments error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestDrawValidate(t *testing.T) {
	dev := gputest.NewDevice()
	fb, _ := gpu.NewFramebuffer(dev, colorDepth("target"))
	other, _ := gpu.NewFramebuffer(dev, colorDepth("other"))
	prog, _ := dev.CreateProgram(gpu.ProgramDescriptor{Label: "p", SPIRV: []uint32{0x07230203}})

	tests := []struct {
		name string
		cmd  gpu.DrawCommand
		want error
	}{
		{"ok", gpu.DrawCommand{Program: prog, Target: fb, VertexCount: 3, Inputs: []gpu.Texture{other.Color(0)}}, nil},
		{"no program", gpu.DrawCommand{Target: fb, VertexCount: 3}, gpu.ErrInvalidDraw},
		{"no target", gpu.DrawCommand{Program: prog, VertexCount: 3}, gpu.ErrInvalidDraw},
		{"no vertices", gpu.DrawCommand{Program: prog, Target: fb}, gpu.ErrInvalidDraw},
		{"samples own color", gpu.DrawCommand{Program: prog, Target: fb, VertexCount: 3, Inputs: []gpu.Texture{fb.Color(0)}}, gpu.ErrFeedbackLoop},
		{"samples own depth", gpu.DrawCommand{Program: prog, Target: fb, VertexCount: 3, Inputs: []gpu.Texture{fb.Depth()}}, gpu.ErrFeedbackLoop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClearAll(t *testing.T) {
	v := gpu.ClearAll(gputypes.Color{A: 1})
	if !v.ClearColor || !v.ClearDepth || v.Depth != 1 || v.Color.A != 1 {
		t.Errorf("ClearAll() = %+v", v)
	}
}
