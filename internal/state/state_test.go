package state

import (
	"bytes"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<script type="application/vnd.jupyter.widget-state+json">
{"version_major": 2, "version_minor": 0, "state": {
  "m1": {"model_name": "IntSliderModel", "model_module": "@jupyter-widgets/controls", "model_module_version": "5.0.11", "state": {"value": 7}},
  "m2": {"model_name": "TextModel", "model_module": "@jupyter-widgets/controls", "model_module_version": "5.0.11", "state": {"value": "hi"}}
}}
</script>
</head>
<body>
<div id="first">
<script type="application/vnd.jupyter.widget-view+json">{"version_major": 2, "version_minor": 0, "model_id": "m1"}</script>
</div>
<div id="second">
<script type="application/vnd.jupyter.widget-view+json">{"version_major": 2, "version_minor": 0, "model_id": "m2"}</script>
</div>
</body>
</html>`

func TestParseFindsStateAndViews(t *testing.T) {
	p, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	st, err := p.ManagerState()
	if err != nil {
		t.Fatalf("ManagerState: %v", err)
	}
	if !strings.Contains(string(st), "IntSliderModel") {
		t.Errorf("state block missing model: %s", st)
	}

	views := p.Views()
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].ModelID != "m1" || views[1].ModelID != "m2" {
		t.Errorf("unexpected view order: %q, %q", views[0].ModelID, views[1].ModelID)
	}
}

func TestScopeToRestrictsViews(t *testing.T) {
	p, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := p.ScopeTo("second"); err != nil {
		t.Fatalf("ScopeTo: %v", err)
	}

	views := p.Views()
	if len(views) != 1 {
		t.Fatalf("expected 1 view in scope, got %d", len(views))
	}
	if views[0].ModelID != "m2" {
		t.Errorf("unexpected view: %q", views[0].ModelID)
	}

	// State stays discoverable document-wide.
	st, err := p.ManagerState()
	if err != nil {
		t.Fatalf("ManagerState: %v", err)
	}
	if st == nil {
		t.Error("expected state block in scoped page")
	}
}

func TestScopeToUnknownElement(t *testing.T) {
	p, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := p.ScopeTo("nope"); err == nil {
		t.Fatal("expected error for unknown element id")
	}
}

func TestInsertRenderedSplicesAfterPlaceholder(t *testing.T) {
	p, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	views := p.Views()
	if err := views[0].InsertRendered(`<div class="widget-subarea">slider</div>`); err != nil {
		t.Fatalf("InsertRendered: %v", err)
	}

	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, `<div class="widget-subarea">slider</div>`) {
		t.Errorf("rendered output missing fragment: %s", out)
	}
	// The fragment lands inside the first placeholder's parent div.
	first := out[strings.Index(out, `id="first"`):]
	if !strings.Contains(first[:strings.Index(first, "</div>")+6], "widget-subarea") {
		t.Errorf("fragment not spliced into first div: %s", first)
	}
	// Original placeholder script survives.
	if !strings.Contains(out, `"model_id": "m1"`) {
		t.Errorf("placeholder script removed: %s", out)
	}
}

func TestInsertRenderedOnlyOnce(t *testing.T) {
	p, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	v := p.Views()[0]
	if err := v.InsertRendered(`<div>one</div>`); err != nil {
		t.Fatalf("first InsertRendered: %v", err)
	}
	if err := v.InsertRendered(`<div>two</div>`); err == nil {
		t.Fatal("expected error on second InsertRendered")
	}
}

func TestManagerStateMergesBlocks(t *testing.T) {
	page := `<html><head>
<script type="application/vnd.jupyter.widget-state+json">{"version_major": 2, "version_minor": 0, "state": {"a": {"model_name": "A"}}}</script>
<script type="application/vnd.jupyter.widget-state+json">{"version_major": 2, "version_minor": 0, "state": {"b": {"model_name": "B"}}}</script>
</head><body></body></html>`

	p, err := Parse([]byte(page))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	st, err := p.ManagerState()
	if err != nil {
		t.Fatalf("ManagerState: %v", err)
	}
	for _, want := range []string{`"a"`, `"b"`, `"version_major":2`} {
		if !strings.Contains(string(st), want) {
			t.Errorf("merged state missing %s: %s", want, st)
		}
	}
}

func TestPageWithoutWidgets(t *testing.T) {
	p, err := Parse([]byte(`<html><body><p>plain</p></body></html>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	st, err := p.ManagerState()
	if err != nil {
		t.Fatalf("ManagerState: %v", err)
	}
	if st != nil {
		t.Errorf("expected no state, got %s", st)
	}
	if len(p.Views()) != 0 {
		t.Errorf("expected no views, got %d", len(p.Views()))
	}
}
