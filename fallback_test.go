package nbembed_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nbembed/nbembed"
)

// countingLoader wraps a Loader and counts Load calls.
type countingLoader struct {
	nbembed.Loader
	loads atomic.Int64
}

func (c *countingLoader) Load(ctx context.Context, uri string) ([]byte, error) {
	c.loads.Add(1)
	return c.Loader.Load(ctx, uri)
}

func newTestResolver(modules ...nbembed.Module) nbembed.Resolver {
	reg := nbembed.NewRegistry()
	for _, m := range modules {
		reg.Register(m)
	}
	return nbembed.NewRegistryResolver(reg)
}

// ---------- BundleURL ----------

func TestBundleURLTemplate(t *testing.T) {
	fb := nbembed.NewFallbackResolver(newTestResolver())
	got := fb.BundleURL("foo", "1.0.0")
	if got != "https://unpkg.com/foo@1.0.0/dist/index.js" {
		t.Errorf("unexpected bundle URL: %s", got)
	}
}

func TestBundleURLScopedPackage(t *testing.T) {
	fb := nbembed.NewFallbackResolver(newTestResolver())
	got := fb.BundleURL("@jupyter-widgets/html-manager", "1.0.24")
	if got != "https://unpkg.com/@jupyter-widgets/html-manager@1.0.24/dist/index.js" {
		t.Errorf("unexpected bundle URL: %s", got)
	}
}

// ---------- ResolvePackage ----------

func TestResolvePackageLocalHitSkipsFallback(t *testing.T) {
	var logBuf bytes.Buffer
	cl := &countingLoader{Loader: nbembed.DenyLoader{}}

	fb := &nbembed.FallbackResolver{
		Resolver: newTestResolver(nbembed.Module{
			Name:   "@jupyter-widgets/html-manager.js",
			Source: []byte("export {};"),
		}),
		Loader: cl,
		Logger: zerolog.New(&logBuf),
	}

	m, err := fb.ResolvePackage(context.Background(), "@jupyter-widgets/html-manager", "1.0.24")
	if err != nil {
		t.Fatalf("ResolvePackage: %v", err)
	}
	if m == nil || string(m.Source) != "export {};" {
		t.Fatalf("expected local module, got %+v", m)
	}
	if cl.loads.Load() != 0 {
		t.Errorf("local hit must not touch the network, got %d loads", cl.loads.Load())
	}
	if logBuf.Len() != 0 {
		t.Errorf("local hit must not log, got: %s", logBuf.String())
	}
}

func TestResolvePackageFallsBackToCDN(t *testing.T) {
	var requested atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Store(r.URL.Path)
		fmt.Fprint(w, "define([], function() { return 42; });")
	}))
	defer ts.Close()

	var logBuf bytes.Buffer
	cl := &countingLoader{Loader: nbembed.NewHTTPLoader(ts.Client())}

	fb := &nbembed.FallbackResolver{
		Resolver: newTestResolver(), // empty: local resolution fails with an id
		Loader:   cl,
		BaseURL:  ts.URL,
		Logger:   zerolog.New(&logBuf),
	}

	m, err := fb.ResolvePackage(context.Background(), "foo", "1.0.0")
	if err != nil {
		t.Fatalf("ResolvePackage: %v", err)
	}
	if m == nil {
		t.Fatal("expected module from CDN")
	}
	if !strings.Contains(string(m.Source), "42") {
		t.Errorf("unexpected source: %s", m.Source)
	}
	if m.Name != "foo" || m.Version != "1.0.0" {
		t.Errorf("unexpected module identity: %s@%s", m.Name, m.Version)
	}

	if got := requested.Load(); got != "/foo@1.0.0/dist/index.js" {
		t.Errorf("unexpected CDN path: %v", got)
	}
	if cl.loads.Load() != 1 {
		t.Errorf("expected exactly one fallback attempt, got %d", cl.loads.Load())
	}

	logged := logBuf.String()
	if !strings.Contains(logged, "Falling back to unpkg.com for foo@1.0.0") {
		t.Errorf("expected fallback notice, got: %s", logged)
	}
	if strings.Count(logged, "Falling back") != 1 {
		t.Errorf("expected exactly one fallback notice, got: %s", logged)
	}
}

func TestResolvePackageCDNFailureSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	fb := &nbembed.FallbackResolver{
		Resolver: newTestResolver(),
		Loader:   nbembed.NewHTTPLoader(ts.Client()),
		BaseURL:  ts.URL,
		Logger:   zerolog.Nop(),
	}

	_, err := fb.ResolvePackage(context.Background(), "foo", "1.0.0")
	if err == nil {
		t.Fatal("expected error when the CDN attempt fails")
	}
	if !strings.Contains(err.Error(), "foo@1.0.0") {
		t.Errorf("error should name the package: %v", err)
	}
}

func TestResolvePackageUnidentifiedFailureSwallowed(t *testing.T) {
	var logBuf bytes.Buffer
	cl := &countingLoader{Loader: nbembed.DenyLoader{}}

	fb := &nbembed.FallbackResolver{
		// The resolver fails without naming a module.
		Resolver: nbembed.ResolverFunc(func(ctx context.Context, ids ...string) ([]nbembed.Module, error) {
			return nil, errors.New("something went sideways")
		}),
		Loader: cl,
		Logger: zerolog.New(&logBuf),
	}

	m, err := fb.ResolvePackage(context.Background(), "foo", "1.0.0")
	if err != nil {
		t.Fatalf("unidentified failure must not surface as an error, got: %v", err)
	}
	if m != nil {
		t.Fatalf("unidentified failure must resolve empty, got %+v", m)
	}
	if cl.loads.Load() != 0 {
		t.Errorf("unidentified failure must not attempt the CDN, got %d loads", cl.loads.Load())
	}
	if strings.Contains(logBuf.String(), "Falling back") {
		t.Errorf("unidentified failure must not log a fallback notice: %s", logBuf.String())
	}
}

func TestResolvePackageNoResolver(t *testing.T) {
	cl := &countingLoader{Loader: nbembed.DenyLoader{}}
	fb := &nbembed.FallbackResolver{Loader: cl, Logger: zerolog.Nop()}

	_, err := fb.ResolvePackage(context.Background(), "foo", "1.0.0")
	if !errors.Is(err, nbembed.ErrNoResolver) {
		t.Fatalf("expected ErrNoResolver, got %v", err)
	}
	if cl.loads.Load() != 0 {
		t.Errorf("missing resolver must not attempt the CDN, got %d loads", cl.loads.Load())
	}
}

func TestResolvePackageEmptyName(t *testing.T) {
	fb := nbembed.NewFallbackResolver(newTestResolver())
	_, err := fb.ResolvePackage(context.Background(), "", "1.0.0")
	var loadErr *nbembed.ModuleLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *ModuleLoadError, got %v", err)
	}
}

func TestResolvePackageContextCancellationPropagates(t *testing.T) {
	fb := nbembed.NewFallbackResolver(newTestResolver(nbembed.Module{Name: "foo.js"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fb.ResolvePackage(ctx, "foo", "1.0.0")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
