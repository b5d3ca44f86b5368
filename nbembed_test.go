package nbembed_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/nbembed/nbembed"
)

// newRenderer constructs a Renderer, skipping the test when the vendored
// framework modules have not been populated by cmd/vendor-widgets.
func newRenderer(t *testing.T, opts ...nbembed.Option) *nbembed.Renderer {
	t.Helper()
	r, err := nbembed.New(opts...)
	if errors.Is(err, nbembed.ErrNotVendored) {
		t.Skip("vendored widget modules not present; run cmd/vendor-widgets")
	}
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRenderWidgetsPassThroughWithoutState(t *testing.T) {
	r := newRenderer(t)
	defer r.Close()

	page := []byte(`<html><body><p>no widgets here</p></body></html>`)
	out, err := r.RenderWidgets(context.Background(), page)
	if err != nil {
		t.Fatalf("RenderWidgets: %v", err)
	}
	if !bytes.Equal(out, page) {
		t.Errorf("page without widget state should pass through unchanged:\n%s", out)
	}
}

func TestRenderWidgetsSlider(t *testing.T) {
	page, err := os.ReadFile("testdata/slider.html")
	if err != nil {
		t.Fatalf("reading test page: %v", err)
	}

	r := newRenderer(t)
	defer r.Close()

	out, err := r.RenderWidgets(context.Background(), page)
	if err != nil {
		t.Fatalf("RenderWidgets: %v", err)
	}

	if !strings.Contains(string(out), "widget-subarea") {
		t.Errorf("expected a rendered view in output: %.300s", out)
	}
	// The placeholder script survives next to the rendered view.
	if !strings.Contains(string(out), "widget-view+json") {
		t.Errorf("placeholder script should survive rendering")
	}
}

func TestRenderWidgetsInScopesToElement(t *testing.T) {
	page, err := os.ReadFile("testdata/two-views.html")
	if err != nil {
		t.Fatalf("reading test page: %v", err)
	}

	r := newRenderer(t)
	defer r.Close()

	out, err := r.RenderWidgetsIn(context.Background(), page, "second")
	if err != nil {
		t.Fatalf("RenderWidgetsIn: %v", err)
	}

	// Only the scoped subtree gains a rendered view.
	if got := strings.Count(string(out), "widget-subarea"); got != 1 {
		t.Errorf("expected exactly 1 rendered view, got %d", got)
	}
}

func TestRenderWidgetsInUnknownElement(t *testing.T) {
	r := newRenderer(t)
	defer r.Close()

	page := []byte(`<html><body><div id="here"></div></body></html>`)
	_, err := r.RenderWidgetsIn(context.Background(), page, "missing")
	if err == nil {
		t.Fatal("expected error for unknown element id")
	}
}

func TestRenderWidgetsInRequiresElementID(t *testing.T) {
	r := newRenderer(t)
	defer r.Close()

	_, err := r.RenderWidgetsIn(context.Background(), []byte(`<html></html>`), "")
	if err == nil {
		t.Fatal("expected error for empty element id")
	}
}

func TestRenderWidgetsCancelledContext(t *testing.T) {
	r := newRenderer(t)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RenderWidgets(ctx, []byte(`<html></html>`))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRendererPreRegistersFrameworkModules(t *testing.T) {
	r := newRenderer(t)
	defer r.Close()

	names := r.Registry().Names()
	if len(names) == 0 {
		t.Fatal("expected pre-registered framework modules")
	}

	var hasManager bool
	for _, n := range names {
		if strings.Contains(n, "html-manager") {
			hasManager = true
		}
	}
	if !hasManager {
		t.Errorf("expected html-manager among pre-registered modules: %v", names)
	}
}

func TestWithModulesRegistersExtra(t *testing.T) {
	r := newRenderer(t, nbembed.WithModules(nbembed.Module{
		Name:   "my-widgets.js",
		Source: []byte("export {};"),
	}))
	defer r.Close()

	if _, ok := r.Registry().Lookup("my-widgets.js"); !ok {
		t.Error("expected extra module in registry")
	}
}

func TestWithModulesDuplicateFails(t *testing.T) {
	_, err := nbembed.New(nbembed.WithModules(
		nbembed.Module{Name: "dup.js"},
		nbembed.Module{Name: "dup.js"},
	))
	if errors.Is(err, nbembed.ErrNotVendored) {
		t.Skip("vendored widget modules not present; run cmd/vendor-widgets")
	}
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

// closerTracker is a Loader that tracks whether Close was called.
type closerTracker struct {
	nbembed.DenyLoader
	closed bool
}

func (c *closerTracker) Close() error {
	c.closed = true
	return nil
}

func TestRendererClosesLoader(t *testing.T) {
	tracker := &closerTracker{}
	r := newRenderer(t, nbembed.WithLoader(tracker))
	r.Close()
	if !tracker.closed {
		t.Error("expected loader Close to be called")
	}
}

func TestRendererCloseWithDenyLoader(t *testing.T) {
	// DenyLoader does not implement io.Closer — should not panic.
	r := newRenderer(t)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
