//go:build !nogpu

package halgpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ShaderSource is a WGSL shader used by a command graph.
type ShaderSource struct {
	Label string
	WGSL  string
}

// ShaderGraph is a command graph that draws with WGSL shaders.
type ShaderGraph interface {
	frameloop.CommandGraph
	Shaders() []ShaderSource
}

// ShaderCompiler is a frameloop.Compiler that compiles the shaders of every
// ShaderGraph to SPIR-V and creates their modules on the device. Graphs
// without shaders compile to nothing. Modules are cached by label and
// rebuilt when the source changes.
//
// ShaderCompiler is safe for concurrent use, so Viewer.Compile may run it
// on several graphs at once.
type ShaderCompiler struct {
	device *Device

	mu      sync.Mutex
	modules map[string]compiledShader
}

type compiledShader struct {
	source string
	module hal.ShaderModule
}

// NewShaderCompiler creates a compiler for d.
func NewShaderCompiler(d *Device) *ShaderCompiler {
	return &ShaderCompiler{device: d, modules: make(map[string]compiledShader)}
}

// Compile builds the shader modules of graph.
func (c *ShaderCompiler) Compile(ctx context.Context, graph frameloop.CommandGraph, hints frameloop.ResourceHints) error {
	sg, ok := graph.(ShaderGraph)
	if !ok {
		return nil
	}
	for _, src := range sg.Shaders() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.cached(src) {
			continue
		}

		spirv, err := compileWGSL(src.WGSL)
		if err != nil {
			return fmt.Errorf("halgpu: shader %s: %w", src.Label, err)
		}
		module, err := c.device.createShaderModule(src.Label, spirv)
		if err != nil {
			return fmt.Errorf("halgpu: shader %s: %w", src.Label, err)
		}
		c.store(src, module)
		frameloop.Logger().Debug("halgpu: shader compiled",
			"label", src.Label, "words", len(spirv), "staging_hint", hints.StagingBytes)
	}
	return nil
}

func (c *ShaderCompiler) cached(src ShaderSource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.modules[src.Label]
	return ok && s.source == src.WGSL
}

func (c *ShaderCompiler) store(src ShaderSource, module hal.ShaderModule) {
	c.mu.Lock()
	old, replaced := c.modules[src.Label]
	c.modules[src.Label] = compiledShader{source: src.WGSL, module: module}
	c.mu.Unlock()

	if replaced {
		c.device.destroyShaderModule(old.module)
	}
}

// Module returns the module compiled for label.
func (c *ShaderCompiler) Module(label string) (hal.ShaderModule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.modules[label]
	return s.module, ok
}

// Len returns the number of cached modules.
func (c *ShaderCompiler) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// Destroy destroys every cached module.
func (c *ShaderCompiler) Destroy() {
	c.mu.Lock()
	modules := c.modules
	c.modules = make(map[string]compiledShader)
	c.mu.Unlock()

	for _, s := range modules {
		c.device.destroyShaderModule(s.module)
	}
}

// compileWGSL compiles WGSL to little-endian SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile wgsl: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

func (d *Device) createShaderModule(label string, spirv []uint32) (hal.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked(); err != nil {
		return nil, err
	}
	return d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
}

func (d *Device) destroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed && d.destroy != nil {
		// Destroyed together with the device.
		return
	}
	d.device.DestroyShaderModule(m)
}

var _ frameloop.Compiler = (*ShaderCompiler)(nil)
