package deferred

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned by Config.Validate and the loaders.
var ErrInvalidConfig = errors.New("deferred: invalid config")

// Default cache sizing.
const (
	DefaultViewRayCapacity     = 8
	DefaultShadowMapCount      = 128
	DefaultShadowMapSize       = 1024
	DefaultShadowMapDepthBits  = 32
	DefaultVarianceCount       = 2
	DefaultVarianceSize        = 1024
	DefaultFramebufferCount    = 2
	DefaultReferenceWidth      = 1280
	DefaultReferenceHeight     = 1024
	DefaultDepthBits           = 24
	DefaultFrustumMeshCapacity = 128
	DefaultUnitMeshCapacity    = 8
	DefaultShaderStageCapacity = 64
	DefaultBlurRadius          = 4
	DefaultBlurPasses          = 1
	DefaultEmissionIntensity   = 1.0
	DefaultEmissionBlurRadius  = 8
)

// FramebufferCacheConfig sizes a framebuffer borrow cache. Count and the
// reference dimensions only bound the byte capacity; borrowers may request
// any shape that fits. A positive MaximumCapacity overrides the computed
// bound.
//
// A frame holds up to two output-sized buffers of the RGBA and RGBA+Depth
// caches at once, so their reference dimensions must cover the output.
// FitOutput raises them.
type FramebufferCacheConfig struct {
	Count           int   `toml:"count"`
	Width           int   `toml:"width"`
	Height          int   `toml:"height"`
	DepthBits       int   `toml:"depth_bits,omitempty"`
	MaximumCapacity int64 `toml:"maximum_capacity,omitempty"`
}

// ShadowMapCacheConfig sizes the shadow map cache.
type ShadowMapCacheConfig struct {
	Count           int   `toml:"count"`
	Size            int   `toml:"size"`
	DepthBits       int   `toml:"depth_bits"`
	MaximumCapacity int64 `toml:"maximum_capacity,omitempty"`
}

// ItemCacheConfig sizes a cache counted in entries.
type ItemCacheConfig struct {
	Capacity int `toml:"capacity"`
}

// ShaderConfig controls the shader cache set.
type ShaderConfig struct {
	// StageCapacity is the number of programs kept per shading stage.
	StageCapacity int `toml:"stage_capacity"`
	// Validate runs naga IR validation before SPIR-V generation.
	Validate bool `toml:"validate"`
	// Debug emits SPIR-V debug names.
	Debug bool `toml:"debug"`
	// HotReload watches the shader directory for changes.
	HotReload bool `toml:"hot_reload"`
}

// PostprocessConfig toggles the post-processing chain.
type PostprocessConfig struct {
	Emission          bool    `toml:"emission"`
	EmissionIntensity float32 `toml:"emission_intensity"`
	EmissionRadius    int     `toml:"emission_radius"`
	FXAA              bool    `toml:"fxaa"`
	BlurRadius        int     `toml:"blur_radius"`
	BlurPasses        int     `toml:"blur_passes"`
}

// DebugConfig enables diagnostic overlays.
type DebugConfig struct {
	ShowShadowMaps bool `toml:"show_shadow_maps"`
}

// Config is the construction configuration of a renderer and its caches.
type Config struct {
	ViewRays      ItemCacheConfig        `toml:"view_rays"`
	ShadowMaps    ShadowMapCacheConfig   `toml:"shadow_maps"`
	DepthVariance FramebufferCacheConfig `toml:"depth_variance"`
	RGBA          FramebufferCacheConfig `toml:"rgba"`
	RGBADepth     FramebufferCacheConfig `toml:"rgba_depth"`
	GeometryBuf   FramebufferCacheConfig `toml:"geometry_buffer"`
	FrustumMeshes ItemCacheConfig        `toml:"frustum_meshes"`
	UnitMeshes    ItemCacheConfig        `toml:"unit_meshes"`
	Shaders       ShaderConfig           `toml:"shaders"`
	Postprocess   PostprocessConfig      `toml:"postprocess"`
	Debug         DebugConfig            `toml:"debug"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ViewRays: ItemCacheConfig{Capacity: DefaultViewRayCapacity},
		ShadowMaps: ShadowMapCacheConfig{
			Count:     DefaultShadowMapCount,
			Size:      DefaultShadowMapSize,
			DepthBits: DefaultShadowMapDepthBits,
		},
		DepthVariance: FramebufferCacheConfig{
			Count:  DefaultVarianceCount,
			Width:  DefaultVarianceSize,
			Height: DefaultVarianceSize,
		},
		RGBA: FramebufferCacheConfig{
			Count:  DefaultFramebufferCount,
			Width:  DefaultReferenceWidth,
			Height: DefaultReferenceHeight,
		},
		RGBADepth: FramebufferCacheConfig{
			Count:     DefaultFramebufferCount,
			Width:     DefaultReferenceWidth,
			Height:    DefaultReferenceHeight,
			DepthBits: DefaultDepthBits,
		},
		GeometryBuf: FramebufferCacheConfig{
			Count:     DefaultFramebufferCount,
			Width:     DefaultReferenceWidth,
			Height:    DefaultReferenceHeight,
			DepthBits: DefaultDepthBits,
		},
		FrustumMeshes: ItemCacheConfig{Capacity: DefaultFrustumMeshCapacity},
		UnitMeshes:    ItemCacheConfig{Capacity: DefaultUnitMeshCapacity},
		Shaders: ShaderConfig{
			StageCapacity: DefaultShaderStageCapacity,
			Validate:      true,
		},
		Postprocess: PostprocessConfig{
			Emission:          true,
			EmissionIntensity: DefaultEmissionIntensity,
			EmissionRadius:    DefaultEmissionBlurRadius,
			FXAA:              true,
			BlurRadius:        DefaultBlurRadius,
			BlurPasses:        DefaultBlurPasses,
		},
	}
}

// ParseConfig decodes TOML on top of DefaultConfig. Keys that do not map
// to a field are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("deferred: read config: %w", err)
	}
	return ParseConfig(data)
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"view_rays.capacity", c.ViewRays.Capacity > 0},
		{"shadow_maps.count", c.ShadowMaps.Count > 0},
		{"shadow_maps.size", c.ShadowMaps.Size > 0},
		{"shadow_maps.depth_bits", validDepthBits(c.ShadowMaps.DepthBits)},
		{"depth_variance", c.DepthVariance.valid()},
		{"rgba", c.RGBA.valid()},
		{"rgba_depth", c.RGBADepth.valid() && validDepthBits(c.RGBADepth.DepthBits)},
		{"geometry_buffer", c.GeometryBuf.valid() && validDepthBits(c.GeometryBuf.DepthBits)},
		{"frustum_meshes.capacity", c.FrustumMeshes.Capacity > 0},
		{"unit_meshes.capacity", c.UnitMeshes.Capacity > 0},
		{"shaders.stage_capacity", c.Shaders.StageCapacity > 0},
		{"postprocess.blur_radius", c.Postprocess.BlurRadius >= 0},
		{"postprocess.blur_passes", c.Postprocess.BlurPasses >= 0},
		{"postprocess.emission_radius", c.Postprocess.EmissionRadius >= 0},
	}
	for _, ch := range checks {
		if !ch.ok {
			return fmt.Errorf("%w: %s out of range", ErrInvalidConfig, ch.name)
		}
	}
	return nil
}

// FitOutput returns c with the reference dimensions of the RGBA,
// RGBA+Depth and geometry buffer caches raised to at least width×height.
func (c Config) FitOutput(width, height int) Config {
	for _, f := range []*FramebufferCacheConfig{&c.RGBA, &c.RGBADepth, &c.GeometryBuf} {
		f.Width = max(f.Width, width)
		f.Height = max(f.Height, height)
	}
	return c
}

func (f FramebufferCacheConfig) valid() bool {
	if f.MaximumCapacity < 0 {
		return false
	}
	return f.Count > 0 && f.Width > 0 && f.Height > 0
}

func validDepthBits(bits int) bool {
	switch bits {
	case 16, 24, 32:
		return true
	}
	return false
}
