// Package nbembed renders Jupyter interactive widgets embedded in HTML pages
// without a browser. It runs the widget manager framework inside QuickJS
// (via WASM) for a pure-Go, CGO-free solution: vendored framework modules
// are pre-registered into an explicit module registry, additional packages
// resolve through a local-then-CDN fallback strategy, and widget views are
// materialized from the state blocks the page carries.
//
// Basic usage:
//
//	r, err := nbembed.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	out, err := r.RenderWidgets(ctx, pageHTML)
package nbembed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nbembed/nbembed/internal/resvg"
	"github.com/nbembed/nbembed/internal/runtime"
	"github.com/nbembed/nbembed/internal/state"
	"github.com/nbembed/nbembed/internal/textmeasure"
	"github.com/nbembed/nbembed/internal/textmeasure/fonts/dejavu"
)

// Renderer materializes widget views from embedded page state.
type Renderer struct {
	rt       *runtime.Runtime
	registry *Registry
	measurer *textmeasure.Measurer
	loader   Loader

	pngMu  sync.Mutex
	png    *resvg.Renderer
	pngCtx context.Context
}

// New creates a new Renderer with the given options.
func New(opts ...Option) (*Renderer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	reg := NewRegistry()
	vendored, err := runtime.VendoredModules(cfg.version)
	if err != nil {
		return nil, fmt.Errorf("nbembed: %w", err)
	}
	for _, m := range vendored {
		if err := reg.Register(Module{Name: m.Name, Source: m.Source}); err != nil {
			return nil, err
		}
	}
	for _, m := range cfg.extra {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	resolver := cfg.resolver
	if resolver == nil {
		resolver = NewRegistryResolver(reg)
	}

	fb := &FallbackResolver{
		Resolver: resolver,
		Loader:   cfg.loader,
		BaseURL:  cfg.cdnBaseURL,
		Logger:   cfg.logger,
	}

	var measurer *textmeasure.Measurer
	var tm runtime.TextMeasurer
	if cfg.textMeasure {
		measurer, err = textmeasure.New()
		if err != nil {
			return nil, fmt.Errorf("nbembed: initializing text measurer: %w", err)
		}
		tm = measurer
	}

	extra := make([]runtime.ModuleSource, 0, len(cfg.extra))
	for _, m := range cfg.extra {
		extra = append(extra, runtime.ModuleSource{Name: m.Name, Source: m.Source})
	}

	rtCfg := runtime.Config{
		Resolver:     packageResolverAdapter{fb},
		TextMeasurer: tm,
		MemoryLimit:  int(cfg.memoryLimit),
		Timeout:      cfg.timeout,
		Version:      cfg.version,
		Extra:        extra,
	}

	rt, err := runtime.New(rtCfg)
	if err != nil {
		return nil, fmt.Errorf("nbembed: %w", err)
	}

	return &Renderer{
		rt:       rt,
		registry: reg,
		measurer: measurer,
		loader:   cfg.loader,
	}, nil
}

// packageResolverAdapter bridges the root FallbackResolver to the runtime's
// narrower interface. A swallowed failure surfaces as (nil, nil).
type packageResolverAdapter struct {
	fb *FallbackResolver
}

func (a packageResolverAdapter) ResolvePackage(ctx context.Context, name, version string) ([]byte, error) {
	m, err := a.fb.ResolvePackage(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	return m.Source, nil
}

// Close releases all resources held by the Renderer. If the configured
// loader holds resources (e.g. a FileLoader's directory handle), it is
// closed as well.
func (r *Renderer) Close() error {
	var firstErr error

	r.pngMu.Lock()
	if r.png != nil {
		if err := r.png.Close(r.pngCtx); err != nil {
			firstErr = err
		}
		r.png = nil
	}
	r.pngMu.Unlock()

	if r.rt != nil {
		if err := r.rt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if closer, ok := r.loader.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Registry returns the module registry backing local resolution.
func (r *Renderer) Registry() *Registry {
	return r.registry
}

// RenderWidgets renders every widget view embedded in the page and returns
// the page with the rendered views spliced in after their placeholders.
// Pages without widget state pass through unchanged.
func (r *Renderer) RenderWidgets(ctx context.Context, page []byte) ([]byte, error) {
	return r.render(ctx, page, "")
}

// RenderWidgetsIn behaves like RenderWidgets but only renders the views
// found under the element with the given id.
func (r *Renderer) RenderWidgetsIn(ctx context.Context, page []byte, elementID string) ([]byte, error) {
	if elementID == "" {
		return nil, fmt.Errorf("nbembed: RenderWidgetsIn requires an element id")
	}
	return r.render(ctx, page, elementID)
}

func (r *Renderer) render(ctx context.Context, page []byte, elementID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := state.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("nbembed: %w", err)
	}
	if elementID != "" {
		if err := p.ScopeTo(elementID); err != nil {
			return nil, fmt.Errorf("nbembed: %w", err)
		}
	}

	managerState, err := p.ManagerState()
	if err != nil {
		return nil, fmt.Errorf("nbembed: %w", err)
	}
	views := p.Views()
	if managerState == nil || len(views) == 0 {
		return page, nil
	}

	payloads := make([]json.RawMessage, len(views))
	for i, v := range views {
		payloads[i] = v.Raw
	}
	viewsJSON, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("nbembed: encoding view payloads: %w", err)
	}

	fragments, err := r.rt.RenderWidgets(string(managerState), string(viewsJSON))
	if err != nil {
		return nil, err
	}
	if len(fragments) != len(views) {
		return nil, fmt.Errorf("nbembed: expected %d rendered views, got %d", len(views), len(fragments))
	}

	for i, v := range views {
		if fragments[i] == "" {
			continue
		}
		if err := v.InsertRendered(fragments[i]); err != nil {
			return nil, fmt.Errorf("nbembed: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		return nil, fmt.Errorf("nbembed: %w", err)
	}
	return buf.Bytes(), nil
}

// SVGToPNG rasterizes an SVG fragment, such as the SVG output of a rendered
// widget view, to PNG.
func (r *Renderer) SVGToPNG(svg string) ([]byte, error) {
	r.pngMu.Lock()
	defer r.pngMu.Unlock()

	if r.png == nil {
		ctx := context.Background()
		png, err := resvg.New(ctx, []resvg.Font{
			{Data: dejavu.SansRegular},
			{Data: dejavu.SansBold},
			{Data: dejavu.MonoRegular},
		})
		if err != nil {
			return nil, fmt.Errorf("nbembed: initializing PNG renderer: %w", err)
		}
		r.png = png
		r.pngCtx = ctx
	}

	data, err := r.png.Render(r.pngCtx, []byte(svg), 1.0)
	if err != nil {
		return nil, fmt.Errorf("nbembed: rendering PNG: %w", err)
	}
	return data, nil
}
