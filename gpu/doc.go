// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu is the GPU context the rendering kernel draws through.
//
// The kernel never creates a GPU device. The host hands it a [Device]:
// either a [HALDevice] wrapping a gogpu/wgpu HAL device and queue, or any
// other implementation such as the recording device in gpu/gputest.
//
// A Device allocates and destroys textures, buffers and programs, clears
// framebuffers and records draws. Every method is synchronous: when a call
// returns, the GPU work it issued has been submitted and the resources it
// referenced may be reused.
//
// [Framebuffer] groups the color and depth textures of one render target.
// Render-target caches construct framebuffers through [NewFramebuffer] and
// dispose them through [Framebuffer.Destroy].
package gpu
