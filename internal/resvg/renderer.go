package resvg

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Font holds TTF font data to register with the renderer.
type Font struct {
	Data []byte
}

// Renderer rasterizes SVG content, such as the SVG output of rendered widget
// views, to PNG via resvg compiled to WASM.
type Renderer struct {
	runtime wazero.Runtime
	module  api.Module
	exports map[string]api.Function
}

var exportNames = []string{
	"alloc_mem", "dealloc_mem",
	"font_db_init", "font_db_add",
	"render",
	"result_ptr", "result_len",
	"error_ptr", "error_len",
}

// New creates a Renderer, initializes the font database, and loads the given
// fonts.
func New(ctx context.Context, fonts []Font) (*Renderer, error) {
	rt := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("resvg: instantiating WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("resvg: compiling WASM module: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName("resvg").
		WithStartFunctions("_initialize")

	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("resvg: instantiating module: %w", err)
	}

	r := &Renderer{
		runtime: rt,
		module:  mod,
		exports: make(map[string]api.Function, len(exportNames)),
	}
	for _, name := range exportNames {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("resvg: missing WASM export: %s", name)
		}
		r.exports[name] = fn
	}

	if _, err := r.exports["font_db_init"].Call(ctx); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("resvg: font_db_init: %w", err)
	}
	for i, f := range fonts {
		if err := r.addFont(ctx, f.Data); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("resvg: loading font %d: %w", i, err)
		}
	}

	return r, nil
}

// withBuffer copies data into WASM memory, invokes fn with the pointer and
// size, and frees the buffer afterwards.
func (r *Renderer) withBuffer(ctx context.Context, data []byte, fn func(ptr, size uint64) ([]uint64, error)) ([]uint64, error) {
	size := uint64(len(data))

	allocated, err := r.exports["alloc_mem"].Call(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("alloc: %w", err)
	}
	ptr := allocated[0]
	defer r.exports["dealloc_mem"].Call(ctx, ptr, size)

	if !r.module.Memory().Write(uint32(ptr), data) {
		return nil, fmt.Errorf("write buffer: out of bounds")
	}
	return fn(ptr, size)
}

// addFont registers font data with the WASM-side font database.
func (r *Renderer) addFont(ctx context.Context, data []byte) error {
	results, err := r.withBuffer(ctx, data, func(ptr, size uint64) ([]uint64, error) {
		return r.exports["font_db_add"].Call(ctx, ptr, size)
	})
	if err != nil {
		return fmt.Errorf("font_db_add: %w", err)
	}
	if int32(results[0]) < 0 {
		return fmt.Errorf("font_db_add: %s", r.readError(ctx))
	}
	return nil
}

// Render converts SVG bytes to PNG at the given scale factor.
func (r *Renderer) Render(ctx context.Context, svg []byte, scale float64) ([]byte, error) {
	scaleBits := math.Float64bits(scale)
	results, err := r.withBuffer(ctx, svg, func(ptr, size uint64) ([]uint64, error) {
		return r.exports["render"].Call(ctx, ptr, size, scaleBits)
	})
	if err != nil {
		return nil, fmt.Errorf("resvg: render: %w", err)
	}
	if int32(results[0]) < 0 {
		return nil, fmt.Errorf("resvg: %s", r.readError(ctx))
	}
	return r.readResult(ctx)
}

// readResult reads the PNG result buffer from WASM memory.
func (r *Renderer) readResult(ctx context.Context) ([]byte, error) {
	ptr, length, err := r.readRegion(ctx, "result_ptr", "result_len")
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("empty result")
	}

	data, ok := r.module.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("read result: out of bounds")
	}

	// Copy the data since the WASM memory view may be invalidated.
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// readError reads the error message from WASM memory.
func (r *Renderer) readError(ctx context.Context) string {
	ptr, length, err := r.readRegion(ctx, "error_ptr", "error_len")
	if err != nil {
		return "failed to read error region"
	}
	if length == 0 {
		return "unknown error"
	}

	data, ok := r.module.Memory().Read(ptr, length)
	if !ok {
		return "error message out of bounds"
	}
	return string(data)
}

func (r *Renderer) readRegion(ctx context.Context, ptrFn, lenFn string) (uint32, uint32, error) {
	ptrResults, err := r.exports[ptrFn].Call(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", ptrFn, err)
	}
	lenResults, err := r.exports[lenFn].Call(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", lenFn, err)
	}
	return uint32(ptrResults[0]), uint32(lenResults[0]), nil
}

// Close releases all resources held by the Renderer.
func (r *Renderer) Close(ctx context.Context) error {
	if r.runtime != nil {
		return r.runtime.Close(ctx)
	}
	return nil
}
