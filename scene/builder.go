package scene

import "sort"

// Builder collects the contents of one frame.
//
// Example:
//
//	s := scene.NewBuilder(camera).
//	    AddOpaqueInstance(scene.Instance{Mesh: floor, Shader: "standard"}).
//	    AddTranslucentInstance(scene.Instance{Mesh: pane, Shader: "glass", Refractive: true}).
//	    AddLight(scene.Light{ID: 1, Kind: scene.LightSpot, CastsShadows: true}).
//	    Build()
type Builder struct {
	camera      Camera
	opaque      []Instance
	translucent []Instance
	lights      []Light
}

// NewBuilder returns an empty builder for a frame seen through camera.
func NewBuilder(camera Camera) *Builder {
	return &Builder{camera: camera}
}

// ---------------------------------------------------------------------------
// Contents
// ---------------------------------------------------------------------------

// AddOpaqueInstance adds an instance drawn by the deferred passes.
func (b *Builder) AddOpaqueInstance(i Instance) *Builder {
	b.opaque = append(b.opaque, i)
	return b
}

// AddTranslucentInstance adds an instance drawn after lighting.
func (b *Builder) AddTranslucentInstance(i Instance) *Builder {
	b.translucent = append(b.translucent, i)
	return b
}

// AddLight adds a light. Zero fields take the package defaults.
func (b *Builder) AddLight(l Light) *Builder {
	b.lights = append(b.lights, l.withDefaults())
	return b
}

// Len returns the number of instances and lights added so far.
func (b *Builder) Len() int {
	return len(b.opaque) + len(b.translucent) + len(b.lights)
}

// Reset empties the builder and sets a new camera, keeping its storage.
func (b *Builder) Reset(camera Camera) {
	b.camera = camera
	b.opaque = b.opaque[:0]
	b.translucent = b.translucent[:0]
	b.lights = b.lights[:0]
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Build returns an immutable snapshot. Opaque instances are grouped by
// shader so program switches are minimal; translucent instances are sorted
// back to front by the view depth of their origin. The builder can be
// reused afterwards.
func (b *Builder) Build() *Scene {
	s := &Scene{
		camera:      b.camera,
		opaque:      append([]Instance(nil), b.opaque...),
		translucent: append([]Instance(nil), b.translucent...),
		lights:      append([]Light(nil), b.lights...),
	}
	sort.SliceStable(s.opaque, func(i, j int) bool {
		return s.opaque[i].Shader < s.opaque[j].Shader
	})

	z := make([]float32, len(s.translucent))
	for i, inst := range s.translucent {
		z[i] = b.camera.View.Mul4(inst.Transform()).Col(3).Z()
	}
	sort.Stable(byDepth{s.translucent, z})
	return s
}

// byDepth sorts instances by ascending view-space z, which puts the
// farthest first for a camera looking down -z.
type byDepth struct {
	items []Instance
	z     []float32
}

func (d byDepth) Len() int           { return len(d.items) }
func (d byDepth) Less(i, j int) bool { return d.z[i] < d.z[j] }
func (d byDepth) Swap(i, j int) {
	d.items[i], d.items[j] = d.items[j], d.items[i]
	d.z[i], d.z[j] = d.z[j], d.z[i]
}
