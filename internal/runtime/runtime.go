// Package runtime manages the QuickJS engine lifecycle, registers the
// vendored widget framework modules, and bridges Go callbacks into
// JavaScript: package resolution (with CDN fallback) and text measurement.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/fastschema/qjs"

	embedjs "github.com/nbembed/nbembed/internal/js"
)

// PackageResolver resolves a versioned package to its bundle source. A
// (nil, nil) return means the failure was swallowed; the bridge surfaces it
// to the widget manager as an absent optional module.
type PackageResolver interface {
	ResolvePackage(ctx context.Context, name, version string) ([]byte, error)
}

// TextMeasurer measures text width given a string and CSS font descriptor.
type TextMeasurer interface {
	MeasureText(text, cssFont string) float64
}

// ModuleSource is a module to register into the engine before the bridge
// loads, in addition to the embedded framework set.
type ModuleSource struct {
	Name   string
	Source []byte
}

// Config holds runtime configuration.
type Config struct {
	Resolver     PackageResolver
	TextMeasurer TextMeasurer
	MemoryLimit  int
	Timeout      time.Duration
	Version      string // version set key, e.g. "hm1_0" (default)
	Extra        []ModuleSource
}

// Runtime wraps a QuickJS engine with the widget manager framework loaded.
type Runtime struct {
	rt      *qjs.Runtime
	config  Config
	names   []string // registered module names, manifest order
	crashed bool     // set after a WASM panic; further calls return errors
}

// versionIndex matches the top-level versions.json from the vendoring tool.
type versionIndex struct {
	Default  string                     `json:"default"`
	Versions map[string]versionIndexDef `json:"versions"`
}

type versionIndexDef struct {
	HTMLManagerVersion string `json:"htmlManagerVersion"`
	BaseVersion        string `json:"baseVersion"`
	ControlsVersion    string `json:"controlsVersion"`
}

// manifest matches the JSON structure from the vendoring tool.
type manifest struct {
	HTMLManagerVersion string           `json:"htmlManagerVersion"`
	Modules            []manifestModule `json:"modules"`
}

type manifestModule struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	SHA256   string `json:"sha256"`
	Filename string `json:"filename"`
}

// ErrNotVendored is returned by New when the embedded module set has not
// been populated. Run cmd/vendor-widgets to vendor the framework bundles.
var ErrNotVendored = errors.New("nbembed/runtime: vendored widget modules missing (run cmd/vendor-widgets)")

// New creates a new Runtime, registering all vendored framework modules and
// the Go bridge functions.
func New(cfg Config) (*Runtime, error) {
	opts := qjs.Option{}
	if cfg.MemoryLimit > 0 {
		opts.MemoryLimit = cfg.MemoryLimit
	}
	if cfg.Timeout > 0 {
		opts.MaxExecutionTime = int(cfg.Timeout / time.Millisecond)
	}

	rt, err := qjs.New(opts)
	if err != nil {
		return nil, fmt.Errorf("nbembed/runtime: creating QuickJS runtime: %w", err)
	}

	if cfg.Version == "" {
		def, err := readDefaultVersion()
		if err != nil {
			rt.Close()
			return nil, err
		}
		cfg.Version = def
	}

	r := &Runtime{rt: rt, config: cfg}

	if err := r.registerBridgeFunctions(); err != nil {
		rt.Close()
		return nil, err
	}

	if err := r.installPolyfills(); err != nil {
		rt.Close()
		return nil, err
	}

	if err := r.registerModules(); err != nil {
		rt.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the QuickJS runtime.
// If the WASM runtime has crashed, Close silently skips cleanup to avoid
// secondary panics.
func (r *Runtime) Close() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("nbembed/runtime: panic during close: %v", p)
		}
	}()

	if r.rt != nil && !r.crashed {
		r.rt.Close()
		r.rt = nil
	}
	return nil
}

// ModuleNames returns the names of all modules registered into the engine,
// in registration order.
func (r *Runtime) ModuleNames() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// registerBridgeFunctions registers Go callbacks used by bridge.js.
func (r *Runtime) registerBridgeFunctions() error {
	ctx := r.rt.Context()

	// __nbembed_require(name, version) → async, resolves bundle source or
	// undefined when the resolver swallowed the failure.
	if r.config.Resolver != nil {
		ctx.SetAsyncFunc("__nbembed_require", func(this *qjs.This) {
			args := this.Args()
			if len(args) < 2 {
				this.Promise().Reject(this.Context().NewError(errors.New("__nbembed_require: expected name and version arguments")))
				return
			}
			name := args[0].String()
			version := args[1].String()

			// Resolve synchronously — the WASM runtime is not thread-safe,
			// so we cannot call back from a goroutine.
			loadCtx := context.Background()
			if r.config.Timeout > 0 {
				var cancel context.CancelFunc
				loadCtx, cancel = context.WithTimeout(loadCtx, r.config.Timeout)
				defer cancel()
			}
			src, err := r.config.Resolver.ResolvePackage(loadCtx, name, version)
			if err != nil {
				this.Promise().Reject(this.Context().NewError(err))
				return
			}
			if src == nil {
				this.Promise().Resolve(this.Context().NewUndefined())
				return
			}
			this.Promise().Resolve(this.Context().NewString(string(src)))
		})
	}

	// __nbembed_measure_text(text, cssFont) → sync, returns number
	if r.config.TextMeasurer != nil {
		ctx.SetFunc("__nbembed_measure_text", func(this *qjs.This) (*qjs.Value, error) {
			args := this.Args()
			if len(args) < 2 {
				return nil, fmt.Errorf("__nbembed_measure_text: expected 2 arguments")
			}
			text := args[0].String()
			cssFont := args[1].String()

			width := r.config.TextMeasurer.MeasureText(text, cssFont)
			return this.Context().NewFloat64(width), nil
		})
	}

	return nil
}

// installPolyfills adds the global APIs the widget framework expects but
// QuickJS does not provide. The big one is a DOM subset sufficient for the
// manager to build and serialize widget views headlessly.
func (r *Runtime) installPolyfills() error {
	ctx := r.rt.Context()

	val, err := ctx.Eval("__nbembed_polyfills__.js", qjs.Code(polyfillJS))
	if err != nil {
		return fmt.Errorf("nbembed/runtime: installing polyfills: %w", err)
	}
	val.Free()
	return nil
}

// readDefaultVersion reads the default version key from versions.json.
func readDefaultVersion() (string, error) {
	idx, err := readVersionIndex()
	if err != nil {
		return "", err
	}
	return idx.Default, nil
}

// readVersionIndex reads and parses the versions.json index.
func readVersionIndex() (*versionIndex, error) {
	data, err := fs.ReadFile(embedjs.Modules, "modules/versions.json")
	if err != nil {
		return nil, fmt.Errorf("nbembed/runtime: reading versions index: %w", err)
	}
	var idx versionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("nbembed/runtime: parsing versions index: %w", err)
	}
	return &idx, nil
}

// AvailableVersions returns the available version set keys and their
// framework versions.
func AvailableVersions() (map[string]struct{ HTMLManager, Base, Controls string }, error) {
	idx, err := readVersionIndex()
	if err != nil {
		return nil, err
	}
	result := make(map[string]struct{ HTMLManager, Base, Controls string }, len(idx.Versions))
	for k, v := range idx.Versions {
		result[k] = struct{ HTMLManager, Base, Controls string }{v.HTMLManagerVersion, v.BaseVersion, v.ControlsVersion}
	}
	return result, nil
}

// VendoredModules returns the embedded framework modules for a version set,
// in manifest (topological) order. An empty version selects the default set.
func VendoredModules(version string) ([]ModuleSource, error) {
	if version == "" {
		def, err := readDefaultVersion()
		if err != nil {
			return nil, err
		}
		version = def
	}

	manifestData, err := fs.ReadFile(embedjs.Modules, "modules/"+version+"/manifest.json")
	if err != nil {
		return nil, fmt.Errorf("%w: no manifest for version set %q", ErrNotVendored, version)
	}

	var m manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return nil, fmt.Errorf("nbembed/runtime: parsing manifest: %w", err)
	}

	modules := make([]ModuleSource, 0, len(m.Modules))
	for _, mod := range m.Modules {
		src, err := fs.ReadFile(embedjs.Modules, "modules/"+version+"/"+mod.Filename)
		if err != nil {
			return nil, fmt.Errorf("nbembed/runtime: reading module %s: %w", mod.Name, err)
		}
		modules = append(modules, ModuleSource{Name: mod.Name, Source: src})
	}
	return modules, nil
}

// registerModules reads the manifest and registers all vendored framework
// modules in topological order, then any extra modules, then the bridge.
func (r *Runtime) registerModules() error {
	ver := r.config.Version
	manifestPath := "modules/" + ver + "/manifest.json"
	manifestData, err := fs.ReadFile(embedjs.Modules, manifestPath)
	if err != nil {
		return fmt.Errorf("%w: no manifest for version set %q", ErrNotVendored, ver)
	}

	var m manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return fmt.Errorf("nbembed/runtime: parsing manifest: %w", err)
	}

	ctx := r.rt.Context()

	for _, mod := range m.Modules {
		src, err := fs.ReadFile(embedjs.Modules, "modules/"+ver+"/"+mod.Filename)
		if err != nil {
			return fmt.Errorf("nbembed/runtime: reading module %s: %w", mod.Name, err)
		}

		val, err := ctx.Load(mod.Name, qjs.Code(string(src)))
		if err != nil {
			return fmt.Errorf("nbembed/runtime: registering module %s: %w", mod.Name, err)
		}
		val.Free()
		r.names = append(r.names, mod.Name)
	}

	for _, mod := range r.config.Extra {
		val, err := ctx.Load(mod.Name, qjs.Code(string(mod.Source)))
		if err != nil {
			return fmt.Errorf("nbembed/runtime: registering module %s: %w", mod.Name, err)
		}
		val.Free()
		r.names = append(r.names, mod.Name)
	}

	val, err := ctx.Load("bridge", qjs.Code(embedjs.BridgeJS))
	if err != nil {
		return fmt.Errorf("nbembed/runtime: registering bridge module: %w", err)
	}
	val.Free()

	return nil
}

var errRuntimeCrashed = errors.New("nbembed/runtime: WASM runtime has crashed; create a new Renderer")

// RenderWidgets materializes widget views from a manager state block.
// stateJSON is the page's widget state; viewsJSON is a JSON array of view
// payloads. Returns one HTML fragment per view, in order.
func (r *Runtime) RenderWidgets(stateJSON, viewsJSON string) ([]string, error) {
	script := fmt.Sprintf(`
		import { renderWidgets } from 'bridge';
		export default await renderWidgets(%s, %s);
	`, jsTemplateLiteral(stateJSON), jsTemplateLiteral(viewsJSON))

	out, err := r.evalModule(script)
	if err != nil {
		return nil, err
	}

	var fragments []string
	if err := json.Unmarshal([]byte(out), &fragments); err != nil {
		return nil, fmt.Errorf("nbembed/runtime: decoding rendered fragments: %w", err)
	}
	return fragments, nil
}

// evalModule evaluates an inline ES module and returns its default export as
// a string. It recovers from panics in the WASM runtime and converts them to
// errors.
func (r *Runtime) evalModule(script string) (result string, err error) {
	if r.crashed {
		return "", errRuntimeCrashed
	}

	defer func() {
		if p := recover(); p != nil {
			r.crashed = true
			err = fmt.Errorf("nbembed/runtime: WASM panic: %v", p)
		}
	}()

	ctx := r.rt.Context()
	val, err := ctx.Eval("__nbembed_eval__.js", qjs.Code(script), qjs.TypeModule())
	if err != nil {
		return "", fmt.Errorf("nbembed/runtime: eval: %w", err)
	}
	defer val.Free()

	return val.String(), nil
}

// jsTemplateLiteral quotes s as a JS template literal, escaping backticks,
// backslashes and ${ interpolation.
func jsTemplateLiteral(s string) string {
	result := make([]byte, 0, len(s)+2)
	result = append(result, '`')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '`', '\\':
			result = append(result, '\\')
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				result = append(result, '\\')
			}
		}
		result = append(result, s[i])
	}
	return string(append(result, '`'))
}
