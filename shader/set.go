// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/cache"
	"github.com/gogpu/deferred/geometry"
	"github.com/gogpu/deferred/gpu"
	"github.com/gogpu/deferred/source"
)

// Entry points every program source must define.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// DefaultStageCapacity is the number of programs kept per stage.
const DefaultStageCapacity = 64

// Program is a compiled program and the bindings it expects.
type Program struct {
	Name   string
	Stage  Stage
	Handle gpu.Program
	// Inputs lists the sample types of the textures the program reads.
	Inputs []gputypes.TextureSampleType
	// UniformSize is zero for programs without uniforms.
	UniformSize uint64
}

// Options configures a Set.
type Options struct {
	// StageCapacity bounds each stage cache. Zero means DefaultStageCapacity.
	StageCapacity int
	Validate      bool
	Debug         bool
	// Formats defaults to DefaultFormats when zero.
	Formats Formats
}

// Set holds one program cache per stage. Programs are compiled from
// "<stage>/<name>.wgsl" on first use.
type Set struct {
	caches [stageCount]*cache.LRU[string, *Program]
}

// NewSet creates the stage caches. Nothing is compiled until requested.
func NewSet(dev gpu.Device, src source.Source, opts Options) *Set {
	if opts.StageCapacity <= 0 {
		opts.StageCapacity = DefaultStageCapacity
	}
	if opts.Formats == (Formats{}) {
		opts.Formats = DefaultFormats()
	}
	s := &Set{}
	for _, stage := range Stages() {
		l := &programLoader{
			dev:      dev,
			src:      src,
			stage:    stage,
			formats:  opts.Formats,
			compiler: Compiler{Validate: opts.Validate, Debug: opts.Debug},
		}
		s.caches[stage] = cache.NewLRU[string, *Program](l, cache.Items("shader/"+stage.String(), opts.StageCapacity))
	}
	return s
}

// Cache returns the program cache of a stage.
func (s *Set) Cache(stage Stage) *cache.LRU[string, *Program] {
	return s.caches[stage]
}

func (s *Set) Debug() *cache.LRU[string, *Program]            { return s.caches[Debug] }
func (s *Set) Depth() *cache.LRU[string, *Program]            { return s.caches[Depth] }
func (s *Set) DepthVariance() *cache.LRU[string, *Program]    { return s.caches[DepthVariance] }
func (s *Set) DeferredGeometry() *cache.LRU[string, *Program] { return s.caches[DeferredGeometry] }
func (s *Set) DeferredLight() *cache.LRU[string, *Program]    { return s.caches[DeferredLight] }
func (s *Set) TranslucentLit() *cache.LRU[string, *Program]   { return s.caches[TranslucentLit] }
func (s *Set) TranslucentUnlit() *cache.LRU[string, *Program] { return s.caches[TranslucentUnlit] }
func (s *Set) Postprocessing() *cache.LRU[string, *Program]   { return s.caches[Postprocessing] }

// Get returns program name of stage, compiling it on first use.
func (s *Set) Get(stage Stage, name string) (*Program, error) {
	return s.caches[stage].Get(name)
}

// Reload drops the cached programs for changed source names such as
// "deferred_light/point.wgsl", so the next Get recompiles them. Names
// outside the stage directories are ignored. It returns the number of
// programs dropped.
func (s *Set) Reload(names []string) int {
	dropped := 0
	for _, n := range names {
		dir, file, ok := strings.Cut(n, "/")
		if !ok || !strings.HasSuffix(file, ".wgsl") {
			continue
		}
		stage, ok := ParseStage(dir)
		if !ok {
			continue
		}
		if s.caches[stage].Remove(strings.TrimSuffix(file, ".wgsl")) {
			dropped++
		}
	}
	if dropped > 0 {
		deferred.Logger().Info("shader: reloaded programs", "count", dropped)
	}
	return dropped
}

// Stats returns the statistics of every stage cache.
func (s *Set) Stats() map[Stage]cache.Stats {
	out := make(map[Stage]cache.Stats, stageCount)
	for i, c := range s.caches {
		out[Stage(i)] = c.Stats()
	}
	return out
}

// Close destroys every cached program.
func (s *Set) Close() {
	for _, c := range s.caches {
		c.Close()
	}
}

type programLoader struct {
	dev      gpu.Device
	src      source.Source
	stage    Stage
	formats  Formats
	compiler Compiler
}

func (l *programLoader) Load(name string) (*Program, error) {
	path := l.stage.Path(name)
	code, err := l.src.Open(path)
	if err != nil {
		return nil, err
	}
	out, err := l.compiler.Compile(path, string(code))
	if err != nil {
		return nil, err
	}

	layout := l.stage.Layout(l.formats, name)
	p := &Program{Name: name, Stage: l.stage, Inputs: out.Inputs}
	if out.Uniforms {
		p.UniformSize = layout.UniformSize
	}
	p.Handle, err = l.dev.CreateProgram(gpu.ProgramDescriptor{
		Label:            path,
		SPIRV:            out.SPIRV,
		VertexEntry:      VertexEntry,
		FragmentEntry:    FragmentEntry,
		VertexBuffers:    []gputypes.VertexBufferLayout{geometry.VertexLayout()},
		ColorTargets:     layout.ColorTargets,
		DepthFormat:      layout.DepthFormat,
		DepthWrite:       layout.DepthWrite,
		DepthCompare:     layout.DepthCompare,
		CullMode:         layout.CullMode,
		Blend:            layout.Blend,
		UniformSize:      p.UniformSize,
		InputSampleTypes: p.Inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", path, err)
	}
	deferred.Logger().Debug("shader: compiled", "program", path, "inputs", len(p.Inputs))
	return p, nil
}

func (l *programLoader) SizeOf(string, *Program) int64 { return 1 }

func (l *programLoader) Close(_ string, p *Program) error {
	return l.dev.DestroyProgram(p.Handle)
}
