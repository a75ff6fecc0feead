package trigger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/event"
)

func newTestSetup(t *testing.T, page string) (*Manager, *dispatch.Manager, *dom.Document, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	dm := dispatch.NewManager(dispatch.Config{TestMode: true}, dispatch.WithBus(bus))
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parsing page: %v", err)
	}
	dm.SetDocument(doc)
	tm := NewManager(dm, WithBus(bus))
	tm.SetDocument(doc)
	return tm, dm, doc, bus
}

// markCommand records each dispatch under the given label and stamps
// the first target's text.
func markCommand(mu *sync.Mutex, visited *[]string, label string) dispatch.Callback {
	return func(ctx context.Context, ec *dispatch.ExecContext) error {
		mu.Lock()
		*visited = append(*visited, label)
		mu.Unlock()
		ec.Target.SetText(label)
		return nil
	}
}

func TestBindIdempotent(t *testing.T) {
	tm, _, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--mark" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	if got := tm.Bindings(); got != 1 {
		t.Fatalf("Bindings() = %d, want 1", got)
	}
	tm.Bind(doc.ByID("b"))
	tm.BindAll()
	if got := tm.Bindings(); got != 1 {
		t.Errorf("rebinding an unchanged declaration added bindings: %d", got)
	}
}

func TestFireEventDispatches(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--mark:x" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	if _, err := dm.Register("--mark", markCommand(&mu, &visited, "mark")); err != nil {
		t.Fatal(err)
	}

	n, err := tm.FireEvent(context.Background(), dom.NewEvent("click", doc.ByID("b")))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	if got := doc.ByID("out").Text(); got != "mark" {
		t.Errorf("target text = %q, want %q", got, "mark")
	}
}

func TestFireEventBubbles(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<div id="outer" command-on="click" command="--outer" commandfor="#out">
			<button id="inner" command-on="click" command="--inner" commandfor="#out"></button>
		</div>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--inner", markCommand(&mu, &visited, "inner"))
	dm.Register("--outer", markCommand(&mu, &visited, "outer"))

	n, err := tm.FireEvent(context.Background(), dom.NewEvent("click", doc.ByID("inner")))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 2 {
		t.Fatalf("dispatched %d commands, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(visited) != 2 || visited[0] != "inner" || visited[1] != "outer" {
		t.Errorf("bubbling order = %v, want [inner outer]", visited)
	}
}

func TestStopModifierHaltsBubbling(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<div id="outer" command-on="click" command="--outer" commandfor="#out">
			<button id="inner" command-on="click.stop" command="--inner" commandfor="#out"></button>
		</div>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--inner", markCommand(&mu, &visited, "inner"))
	dm.Register("--outer", markCommand(&mu, &visited, "outer"))

	ev := dom.NewEvent("click", doc.ByID("inner"))
	n, err := tm.FireEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	if !ev.PropagationStopped() {
		t.Error("stop modifier did not halt propagation")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(visited) != 1 || visited[0] != "inner" {
		t.Errorf("visited = %v, want [inner]", visited)
	}
}

func TestPreventModifier(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<a id="lnk" href="/away" command-on="click.prevent" command="--mark" commandfor="#out"></a>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--mark", markCommand(&mu, &visited, "mark"))

	ev := dom.NewEvent("click", doc.ByID("lnk"))
	if _, err := tm.FireEvent(context.Background(), ev); err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if !ev.DefaultPrevented() {
		t.Error("prevent modifier did not mark the event")
	}
}

func TestOnceConsumesDeclaration(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click.once" command="--mark" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--mark", markCommand(&mu, &visited, "mark"))

	btn := doc.ByID("b")
	n, err := tm.FireEvent(context.Background(), dom.NewEvent("click", btn))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 1 {
		t.Fatalf("first fire dispatched %d, want 1", n)
	}
	if btn.HasAttr(AttrCommandOn) {
		t.Error("once trigger left its declaring attribute in place")
	}
	if got := tm.Bindings(); got != 0 {
		t.Errorf("Bindings() after once fire = %d, want 0", got)
	}

	n, _ = tm.FireEvent(context.Background(), dom.NewEvent("click", btn))
	if n != 0 {
		t.Errorf("second fire dispatched %d, want 0", n)
	}
}

func TestKeyFilter(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<input id="in" command-on="keydown.enter" command="--mark" commandfor="#out">
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--mark", markCommand(&mu, &visited, "mark"))

	in := doc.ByID("in")

	ev := dom.NewEvent("keydown", in)
	ev.Key = "Escape"
	if n, _ := tm.FireEvent(context.Background(), ev); n != 0 {
		t.Errorf("non-matching key dispatched %d commands, want 0", n)
	}

	ev = dom.NewEvent("keydown", in)
	ev.Key = "Enter"
	if n, _ := tm.FireEvent(context.Background(), ev); n != 1 {
		t.Errorf("matching key dispatched %d commands, want 1", n)
	}
}

func TestWindowScopedBinding(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<div id="listener" command-on="refresh.window" command="--mark" commandfor="#out"></div>
		<p id="src"></p>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--mark", markCommand(&mu, &visited, "mark"))

	// The event targets an element nowhere near the listener; only the
	// window scope picks it up.
	n, err := tm.FireEvent(context.Background(), dom.NewEvent("refresh", doc.ByID("src")))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 1 {
		t.Fatalf("window binding dispatched %d commands, want 1", n)
	}
	if got := doc.ByID("out").Text(); got != "mark" {
		t.Errorf("target text = %q, want %q", got, "mark")
	}
}

func TestWindowBindingSkippedWhenStopped(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click.stop" command="--inner" commandfor="#out"></button>
		<div id="listener" command-on="click.window" command="--win" commandfor="#out"></div>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--inner", markCommand(&mu, &visited, "inner"))
	dm.Register("--win", markCommand(&mu, &visited, "win"))

	n, err := tm.FireEvent(context.Background(), dom.NewEvent("click", doc.ByID("b")))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(visited) != 1 || visited[0] != "inner" {
		t.Errorf("visited = %v, want [inner]", visited)
	}
}

func TestCustomEventOverrides(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" data-on-event="notify"
			data-on-event-command="--mark:custom"
			data-on-event-commandfor="#alt"
			command="--mark:generic" commandfor="#out"></button>
		<p id="out"></p>
		<p id="alt"></p>
	</body></html>`)

	dm.Register("--mark", func(ctx context.Context, ec *dispatch.ExecContext) error {
		ec.Target.SetText(ec.ParamOr(0, ""))
		return nil
	})

	n, err := tm.FireEvent(context.Background(), dom.NewEvent("notify", doc.ByID("b")))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	if got := doc.ByID("alt").Text(); got != "custom" {
		t.Errorf("override target text = %q, want %q", got, "custom")
	}
	if got := doc.ByID("out").Text(); got != "" {
		t.Errorf("generic target text = %q, want empty", got)
	}
}

func TestCustomEventFallsBackToGenericCommand(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" data-on-event="notify" command="--mark:gen" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	dm.Register("--mark", func(ctx context.Context, ec *dispatch.ExecContext) error {
		ec.Target.SetText(ec.ParamOr(0, ""))
		return nil
	})

	if n, _ := tm.FireEvent(context.Background(), dom.NewEvent("notify", doc.ByID("b"))); n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}
	if got := doc.ByID("out").Text(); got != "gen" {
		t.Errorf("target text = %q, want %q", got, "gen")
	}
}

func TestMultiCommandDeclaration(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--one, --two" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--one", markCommand(&mu, &visited, "one"))
	dm.Register("--two", markCommand(&mu, &visited, "two"))

	n, err := tm.FireEvent(context.Background(), dom.NewEvent("click", doc.ByID("b")))
	if err != nil {
		t.Fatalf("FireEvent: %v", err)
	}
	if n != 2 {
		t.Fatalf("dispatched %d commands, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(visited) != 2 || visited[0] != "one" || visited[1] != "two" {
		t.Errorf("visited = %v, want [one two]", visited)
	}
}

func TestEventDetailInterpolation(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" data-on-event="payload"
			data-on-event-command="--echo:{{ detail.msg }}"
			commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	dm.Register("--echo", func(ctx context.Context, ec *dispatch.ExecContext) error {
		ec.Target.SetText(strings.Join(ec.Params, ":"))
		return nil
	})

	ev := dom.NewEvent("payload", doc.ByID("b")).WithDetail(map[string]any{"msg": "from-detail"})
	if n, err := tm.FireEvent(context.Background(), ev); err != nil || n != 1 {
		t.Fatalf("FireEvent = (%d, %v), want (1, nil)", n, err)
	}
	if got := doc.ByID("out").Text(); got != "from-detail" {
		t.Errorf("target text = %q, want %q", got, "from-detail")
	}
}

func TestMutationRebindsChangedDeclaration(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--mark" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--mark", markCommand(&mu, &visited, "mark"))

	btn := doc.ByID("b")
	btn.SetAttr(AttrCommandOn, "keyup")
	doc.FlushMutations()

	if n, _ := tm.FireEvent(context.Background(), dom.NewEvent("click", btn)); n != 0 {
		t.Errorf("stale click binding dispatched %d commands, want 0", n)
	}
	if n, _ := tm.FireEvent(context.Background(), dom.NewEvent("keyup", btn)); n != 1 {
		t.Errorf("rebound keyup binding dispatched %d commands, want 1", n)
	}
	if got := tm.Bindings(); got != 1 {
		t.Errorf("Bindings() = %d, want 1", got)
	}
}

func TestMutationUnbindsRemovedDeclaration(t *testing.T) {
	tm, _, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--mark" commandfor="#out"></button>
	</body></html>`)

	doc.ByID("b").RemoveAttr(AttrCommandOn)
	doc.FlushMutations()

	if got := tm.Bindings(); got != 0 {
		t.Errorf("Bindings() after attribute removal = %d, want 0", got)
	}
}

func TestMutationBindsInsertedElement(t *testing.T) {
	tm, dm, doc, _ := newTestSetup(t, `<html><body id="root">
		<p id="out"></p>
	</body></html>`)

	var mu sync.Mutex
	var visited []string
	dm.Register("--mark", markCommand(&mu, &visited, "mark"))

	root := doc.ByID("root")
	if err := root.AppendHTML(`<button id="b" command-on="click" command="--mark" commandfor="#out"></button>`); err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	doc.FlushMutations()

	if got := tm.Bindings(); got != 1 {
		t.Fatalf("Bindings() after insert = %d, want 1", got)
	}
	if n, _ := tm.FireEvent(context.Background(), dom.NewEvent("click", doc.ByID("b"))); n != 1 {
		t.Errorf("inserted binding dispatched %d commands, want 1", n)
	}
}

func TestMutationPrunesDetachedElement(t *testing.T) {
	tm, _, doc, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--mark" commandfor="#out"></button>
	</body></html>`)

	doc.ByID("b").Remove()
	doc.FlushMutations()

	if got := tm.Bindings(); got != 0 {
		t.Errorf("Bindings() after element removal = %d, want 0", got)
	}
}

func TestTriggerLifecycleEvents(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	bound := make(chan event.Event, 8)
	fired := make(chan event.Event, 8)
	t.Cleanup(bus.Subscribe(event.TriggerBound, func(e event.Event) { bound <- e }))
	t.Cleanup(bus.Subscribe(event.TriggerFired, func(e event.Event) { fired <- e }))

	dm := dispatch.NewManager(dispatch.Config{TestMode: true}, dispatch.WithBus(bus))
	dm.Register("--mark", func(ctx context.Context, ec *dispatch.ExecContext) error { return nil })

	doc, err := dom.ParseString(`<html><body>
		<button id="b" command-on="keydown.enter" command="--mark" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	dm.SetDocument(doc)
	tm := NewManager(dm, WithBus(bus))
	tm.SetDocument(doc)

	select {
	case e := <-bound:
		data, ok := e.Data.(event.TriggerBoundData)
		if !ok {
			t.Fatalf("bound payload type %T", e.Data)
		}
		if data.Info.ElementID != "b" || data.Info.Event != "keydown" {
			t.Errorf("bound info = %+v", data.Info)
		}
		if len(data.Info.Keys) != 1 || data.Info.Keys[0] != "Enter" {
			t.Errorf("bound keys = %v, want [Enter]", data.Info.Keys)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no trigger.bound event")
	}

	ev := dom.NewEvent("keydown", doc.ByID("b"))
	ev.Key = "Enter"
	if n, _ := tm.FireEvent(context.Background(), ev); n != 1 {
		t.Fatalf("dispatched %d commands, want 1", n)
	}

	select {
	case e := <-fired:
		data, ok := e.Data.(event.TriggerFiredData)
		if !ok {
			t.Fatalf("fired payload type %T", e.Data)
		}
		if data.EventType != "keydown" || data.Key != "Enter" {
			t.Errorf("fired data = %+v", data)
		}
		if data.Info.Commands != "--mark" {
			t.Errorf("fired commands = %q, want %q", data.Info.Commands, "--mark")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no trigger.fired event")
	}
}

func TestSetDocumentReplacesBindings(t *testing.T) {
	tm, dm, _, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="click" command="--mark" commandfor="#out"></button>
	</body></html>`)

	next, err := dom.ParseString(`<html><body>
		<button id="c" command-on="keyup" command="--mark" commandfor="#out"></button>
		<button id="d" command-on="click" command="--mark" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	dm.SetDocument(next)
	tm.SetDocument(next)

	if got := tm.Bindings(); got != 2 {
		t.Errorf("Bindings() after document swap = %d, want 2", got)
	}
}

func TestInfosListsBindingsInOrder(t *testing.T) {
	tm, _, _, _ := newTestSetup(t, `<html><body>
		<button id="b" command-on="keydown.enter.window" command="--mark" commandfor="#out"></button>
		<button id="a" command-on="click" command="--mark:x" commandfor="#out"></button>
		<p id="out"></p>
	</body></html>`)

	infos := tm.Infos()
	if len(infos) != 2 {
		t.Fatalf("Infos() returned %d entries, want 2", len(infos))
	}
	if infos[0].ElementID != "a" || infos[1].ElementID != "b" {
		t.Errorf("order = [%s %s], want [a b]", infos[0].ElementID, infos[1].ElementID)
	}
	if infos[0].Event != "click" || infos[0].Commands != "--mark:x" {
		t.Errorf("first info = %+v", infos[0])
	}
	if !infos[1].Window || len(infos[1].Keys) != 1 || infos[1].Keys[0] != "Enter" {
		t.Errorf("second info = %+v", infos[1])
	}
}
