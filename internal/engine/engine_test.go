package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/pkg/types"
)

func testConfig() *types.Config {
	return &types.Config{Engine: &types.EngineConfig{TestMode: true}}
}

func newTestEngine(t *testing.T, cfg *types.Config) (*Engine, *event.Bus) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	e, err := New(cfg, WithBus(bus))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e, bus
}

func mustLoad(t *testing.T, e *Engine, markup string) {
	t.Helper()
	if err := e.LoadDocument(markup, ""); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
}

func TestLoadDocumentPublishesInfo(t *testing.T) {
	e, bus := newTestEngine(t, nil)

	loaded := make(chan event.Event, 4)
	t.Cleanup(bus.Subscribe(event.DocumentLoaded, func(ev event.Event) { loaded <- ev }))

	mustLoad(t, e, `<html><head><title>Dash</title></head><body>
		<button id="b" command-on="click" command="--show" commandfor="#panel"></button>
		<div id="panel" hidden></div>
	</body></html>`)

	select {
	case ev := <-loaded:
		data, ok := ev.Data.(event.DocumentLoadedData)
		if !ok {
			t.Fatalf("payload type %T", ev.Data)
		}
		if data.Info.Title != "Dash" {
			t.Errorf("title = %q, want Dash", data.Info.Title)
		}
		if data.Info.Triggers != 1 {
			t.Errorf("triggers = %d, want 1", data.Info.Triggers)
		}
		if data.Info.Elements == 0 {
			t.Error("element count missing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no document.loaded event")
	}
}

func TestDispatchAppliesBuiltins(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustLoad(t, e, `<html><body><p id="t"></p></body></html>`)

	res, err := e.Dispatch(context.Background(), dispatch.Request{Raw: "--echo:hello", TargetSelector: "#t"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if got := e.Document().ByID("t").Text(); got != "hello" {
		t.Errorf("text = %q, want hello", got)
	}
}

func TestDispatchPublishesMutations(t *testing.T) {
	e, bus := newTestEngine(t, nil)

	mutated := make(chan event.Event, 4)
	t.Cleanup(bus.Subscribe(event.DocumentMutated, func(ev event.Event) { mutated <- ev }))

	mustLoad(t, e, `<html><body><p id="t">old</p></body></html>`)
	if _, err := e.Dispatch(context.Background(), dispatch.Request{Raw: "--text:set:new", TargetSelector: "#t"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	select {
	case ev := <-mutated:
		data, ok := ev.Data.(event.DocumentMutatedData)
		if !ok {
			t.Fatalf("payload type %T", ev.Data)
		}
		if len(data.Mutations) == 0 {
			t.Error("mutation list empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no document.mutated event")
	}
}

func TestActivateRunsDeclaredCommand(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustLoad(t, e, `<html><body>
		<button id="b" command="--echo:pressed" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	res, err := e.Activate(context.Background(), "#b")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if res == nil || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if got := e.Document().ByID("out").Text(); got != "pressed" {
		t.Errorf("text = %q, want pressed", got)
	}

	if _, err := e.Activate(context.Background(), "#nope"); err == nil {
		t.Error("activating a missing element should fail")
	}
	if _, err := e.Activate(context.Background(), "#out"); err == nil {
		t.Error("activating an element without a command should fail")
	}
}

func TestActivateMultiCommand(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustLoad(t, e, `<html><body>
		<button id="b" command="--class:add:ready, --text:set:done" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	if _, err := e.Activate(context.Background(), "#b"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	out := e.Document().ByID("out")
	if !out.HasClass("ready") {
		t.Error("first command did not run")
	}
	if got := out.Text(); got != "done" {
		t.Errorf("second command text = %q, want done", got)
	}
}

func TestClickFiresTriggers(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustLoad(t, e, `<html><body>
		<button id="b" command-on="click" command="--toggle" commandfor="#panel"></button>
		<div id="panel" hidden></div>
	</body></html>`)

	n, err := e.Click(context.Background(), "#b")
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	if e.Document().ByID("panel").Hidden() {
		t.Error("click did not reveal the panel")
	}
}

func TestClickActivatesPlainInvoker(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustLoad(t, e, `<html><body>
		<button id="b" command="--echo:pressed" commandfor="#out"></button>
		<p id="out"></p>
		<span id="plain"></span>
	</body></html>`)

	// No click binding exists, so the declared command activates as the
	// default action.
	n, err := e.Click(context.Background(), "#b")
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	if got := e.Document().ByID("out").Text(); got != "pressed" {
		t.Errorf("text = %q, want pressed", got)
	}

	n, err = e.Click(context.Background(), "#plain")
	if err != nil {
		t.Fatalf("Click on commandless element: %v", err)
	}
	if n != 0 {
		t.Errorf("commandless click dispatched %d commands", n)
	}
}

func TestConfigAliases(t *testing.T) {
	cfg := testConfig()
	cfg.Aliases = map[string]types.AliasConfig{
		"--ready": {Commands: "--class:add:ready, --text:set:ok"},
	}
	e, _ := newTestEngine(t, cfg)
	mustLoad(t, e, `<html><body><p id="out"></p></body></html>`)

	if _, err := e.Dispatch(context.Background(), dispatch.Request{Raw: "--ready", TargetSelector: "#out"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	out := e.Document().ByID("out")
	if !out.HasClass("ready") || out.Text() != "ok" {
		t.Errorf("alias effects: class=%q text=%q", out.AttrOr("class", ""), out.Text())
	}
}

func TestConfigBaseContext(t *testing.T) {
	cfg := testConfig()
	cfg.Context = map[string]any{"appName": "conductor"}
	e, _ := newTestEngine(t, cfg)
	mustLoad(t, e, `<html><body><p id="out"></p></body></html>`)

	if _, err := e.Dispatch(context.Background(), dispatch.Request{Raw: "--echo:{{ appName }}", TargetSelector: "#out"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := e.Document().ByID("out").Text(); got != "conductor" {
		t.Errorf("text = %q, want conductor", got)
	}
}

func TestConfigRateLimitKnob(t *testing.T) {
	limit := 2
	cfg := testConfig()
	cfg.Engine.DispatchRateLimit = &limit
	e, _ := newTestEngine(t, cfg)
	mustLoad(t, e, `<html><body><p id="out"></p></body></html>`)

	fired := 0
	for i := 0; i < 5; i++ {
		res, err := e.Dispatch(context.Background(), dispatch.Request{Raw: "--echo:x", TargetSelector: "#out"})
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if res != nil {
			fired++
		}
	}
	if fired != limit {
		t.Errorf("fired %d dispatches, want %d", fired, limit)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	markup := `<html><head><title>from disk</title></head><body><p id="x"></p></body></html>`
	if err := os.WriteFile(path, []byte(markup), 0o644); err != nil {
		t.Fatal(err)
	}

	e, _ := newTestEngine(t, nil)
	if err := e.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := e.Path(); got != path {
		t.Errorf("Path() = %q, want %q", got, path)
	}
	if info := e.Info(); info == nil || info.Title != "from disk" {
		t.Errorf("info = %+v", info)
	}

	if err := e.LoadFile(filepath.Join(t.TempDir(), "missing.html")); err == nil {
		t.Error("loading a missing file should fail")
	}
}

func TestHTMLRendersDocument(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if _, err := e.HTML(); err == nil {
		t.Error("HTML without a document should fail")
	}

	mustLoad(t, e, `<html><body><p id="x">content</p></body></html>`)
	if _, err := e.Dispatch(context.Background(), dispatch.Request{Raw: "--text:set:fresh", TargetSelector: "#x"}); err != nil {
		t.Fatal(err)
	}

	out, err := e.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.Contains(out, "fresh") {
		t.Errorf("rendered html missing dispatch effects: %q", out)
	}
}

func TestDocumentSwapDropsOldBindings(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustLoad(t, e, `<html><body>
		<button id="b" command-on="click" command="--show" commandfor="#p"></button>
		<div id="p" hidden></div>
	</body></html>`)
	if got := e.Triggers().Bindings(); got != 1 {
		t.Fatalf("bindings = %d, want 1", got)
	}

	mustLoad(t, e, `<html><body><p id="plain"></p></body></html>`)
	if got := e.Triggers().Bindings(); got != 0 {
		t.Errorf("bindings after swap = %d, want 0", got)
	}
	if _, err := e.Click(context.Background(), "#b"); err == nil {
		t.Error("clicking an element from the unloaded document should fail")
	}
}
