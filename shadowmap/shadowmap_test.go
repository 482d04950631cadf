// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shadowmap_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/gpu/gputest"
	"github.com/gogpu/deferred/shadowmap"
)

func TestConfigFor(t *testing.T) {
	tests := []struct {
		count, size, bits int
		want              int64
	}{
		{128, 1024, 32, 128 * 1024 * 1024 * 4},
		{4, 512, 16, 4 * 512 * 512 * 2},
		{1, 256, 24, 256 * 256 * 3},
	}
	for _, tt := range tests {
		if got := shadowmap.ConfigFor(tt.count, tt.size, tt.bits).MaximumCapacity; got != tt.want {
			t.Errorf("ConfigFor(%d, %d, %d) = %d, want %d", tt.count, tt.size, tt.bits, got, tt.want)
		}
	}
}

func TestVarianceConfigFor(t *testing.T) {
	if got, want := shadowmap.VarianceConfigFor(2, 512, 32).MaximumCapacity, int64(2*512*512*(4+8)); got != want {
		t.Errorf("VarianceConfigFor(2, 512, 32) = %d, want %d", got, want)
	}

	tests := []struct {
		name string
		cfg  shadowmap.Config
		want int
	}{
		{"variance budget", shadowmap.VarianceConfigFor(4, 64, 32), 4},
		{"depth budget", shadowmap.ConfigFor(4, 64, 32), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := shadowmap.New(gputest.NewDevice(), tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			held := 0
			for light := uint64(1); ; light++ {
				_, tk, err := c.Borrow(shadowmap.Key{Light: light, Desc: shadowmap.Description{Size: 64, Kind: shadowmap.Variance}})
				if errors.Is(err, cache.ErrCapacityExhausted) {
					break
				}
				if err != nil {
					t.Fatal(err)
				}
				defer tk.Return()
				held++
			}
			if held != tt.want {
				t.Errorf("held %d variance maps at once, want %d", held, tt.want)
			}
		})
	}
}

func TestSequentialLightsRecycle(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := shadowmap.New(dev, shadowmap.ConfigFor(128, 1024, 32))
	if err != nil {
		t.Fatal(err)
	}
	desc := shadowmap.Description{Size: 1024}
	for light := uint64(1); light <= 200; light++ {
		m, tk, err := c.Borrow(shadowmap.Key{Light: light, Desc: desc})
		if err != nil {
			t.Fatalf("light %d: Borrow() error = %v", light, err)
		}
		if m.Key().Light != light {
			t.Fatalf("light %d got map for light %d", light, m.Key().Light)
		}
		if err := tk.Return(); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 128 {
		t.Errorf("Len() = %d, want 128 resident maps", c.Len())
	}
	if got := c.Stats().Evictions; got != 72 {
		t.Errorf("Evictions = %d, want 72", got)
	}
	if dev.LiveTextures() != 128 {
		t.Errorf("LiveTextures() = %d, want 128", dev.LiveTextures())
	}
}

func TestConcurrentBorrowsExhaust(t *testing.T) {
	c, err := shadowmap.New(gputest.NewDevice(), shadowmap.ConfigFor(128, 1024, 32))
	if err != nil {
		t.Fatal(err)
	}
	var sc cache.Scope
	desc := shadowmap.Description{Size: 1024}
	for light := uint64(1); light <= 128; light++ {
		if _, err := c.BorrowIn(&sc, shadowmap.Key{Light: light, Desc: desc}); err != nil {
			t.Fatalf("borrow %d: %v", light, err)
		}
	}
	_, err = c.BorrowIn(&sc, shadowmap.Key{Light: 129, Desc: desc})
	if !errors.Is(err, cache.ErrCapacityExhausted) {
		t.Fatalf("borrow 129 error = %v, want ErrCapacityExhausted", err)
	}
	if err := sc.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", c.Outstanding())
	}
}

func TestReuseSameLight(t *testing.T) {
	dev := gputest.NewDevice()
	c, _ := shadowmap.New(dev, shadowmap.ConfigFor(4, 256, 32))
	k := shadowmap.Key{Light: 7, Desc: shadowmap.Description{Size: 256}}
	first, tk, err := c.Borrow(k)
	if err != nil {
		t.Fatal(err)
	}
	tk.Return()
	second, tk, err := c.Borrow(k)
	if err != nil {
		t.Fatal(err)
	}
	defer tk.Return()
	if first != second {
		t.Error("same light did not get its map back")
	}
	if n := dev.Count(gputest.OpCreateTexture); n != 1 {
		t.Errorf("created %d textures, want 1", n)
	}
}

func TestKinds(t *testing.T) {
	c, err := shadowmap.New(gputest.NewDevice(), shadowmap.ConfigFor(8, 128, 16))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		kind    shadowmap.Kind
		sampled gputypes.TextureFormat
		moments bool
	}{
		{shadowmap.Basic, gputypes.TextureFormatDepth16Unorm, false},
		{shadowmap.Variance, shadowmap.MomentsFormat, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			m, tk, err := c.Borrow(shadowmap.Key{Light: 1, Desc: shadowmap.Description{Size: 128, Kind: tt.kind}})
			if err != nil {
				t.Fatal(err)
			}
			defer tk.Return()
			if m.Size() != 128 {
				t.Errorf("Size() = %d", m.Size())
			}
			if got := m.Texture().Format(); got != tt.sampled {
				t.Errorf("Texture().Format() = %v, want %v", got, tt.sampled)
			}
			if (m.Moments() != nil) != tt.moments {
				t.Errorf("Moments() present = %v, want %v", m.Moments() != nil, tt.moments)
			}
			if m.Framebuffer().Depth() == nil {
				t.Error("shadow map has no depth attachment")
			}
		})
	}
}

func TestInvalidDepthBits(t *testing.T) {
	if _, err := shadowmap.New(gputest.NewDevice(), shadowmap.ConfigFor(1, 64, 8)); err == nil {
		t.Error("New with 8 depth bits succeeded")
	}
}
