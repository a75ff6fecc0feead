package builtins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
)

// fastRetry keeps retry pauses out of the test clock.
func fastRetry() FetchOption {
	return WithRetryPolicy(3, time.Millisecond, 5*time.Millisecond)
}

func TestFetchGetSelectsFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="frag">fetched</div><div id="noise">skip</div></body></html>`)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:get:%s/frag" commandfor="#out" data-select="#frag"></button>
		<div id="out"></div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, fastRetry())

	btn := doc.ByID("b")
	dispatchOK(t, m, dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})

	inner, err := doc.ByID("out").InnerHTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(inner, `<div id="frag">fetched</div>`) {
		t.Errorf("swapped content = %q, want the selected fragment", inner)
	}
	if strings.Contains(inner, "noise") {
		t.Errorf("swapped content includes unselected elements: %q", inner)
	}
}

func TestFetchSelectAllWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul><li id="one">1</li><li id="two">2</li></ul></body></html>`)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:get:%s" commandfor="#out"
			data-select="#one" data-select-all="li"></button>
		<ul id="out"></ul>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, fastRetry())

	btn := doc.ByID("b")
	dispatchOK(t, m, dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})

	inner, err := doc.ByID("out").InnerHTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(inner, `id="one"`) || !strings.Contains(inner, `id="two"`) {
		t.Errorf("data-select-all should collect every match, got %q", inner)
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<p id="ok">done</p>`)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:get:%s" commandfor="#out"></button>
		<div id="out"></div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, fastRetry())

	btn := doc.ByID("b")
	dispatchOK(t, m, dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})

	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
	if got := doc.ByID("out").Text(); got != "done" {
		t.Errorf("target text = %q, want %q", got, "done")
	}
}

func TestFetchClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:get:%s" commandfor="#out"></button>
		<div id="out">untouched</div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, fastRetry())

	btn := doc.ByID("b")
	_, err := m.Dispatch(context.Background(), dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected a 404 error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("4xx retried: server saw %d calls, want 1", got)
	}
	if got := doc.ByID("out").Text(); got != "untouched" {
		t.Errorf("failed fetch mutated the target: %q", got)
	}
}

func TestFetchPostSendsBody(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotBody = string(b)
		mu.Unlock()
		fmt.Fprint(w, `<p>stored</p>`)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:post:%s/items" commandfor="#out"
			data-fetch-body='{"name":"widget"}'></button>
		<div id="out"></div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, fastRetry())

	btn := doc.ByID("b")
	dispatchOK(t, m, dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q, want application/json", gotType)
	}
	if gotBody != `{"name":"widget"}` {
		t.Errorf("body = %q", gotBody)
	}
	if got := doc.ByID("out").Text(); got != "stored" {
		t.Errorf("target text = %q, want %q", got, "stored")
	}
}

func TestFetchSwapModes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<li id="new">new</li>`)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="app" command="--fetch:get:%[1]s" commandfor="#list" data-swap="append"></button>
		<button id="pre" command="--fetch:get:%[1]s" commandfor="#list" data-swap="prepend"></button>
		<button id="rep" command="--fetch:get:%[1]s" commandfor="#old" data-swap="outer"></button>
		<ul id="list"><li id="seed">seed</li></ul>
		<div id="host"><p id="old">old</p></div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, fastRetry())

	fire := func(id string) {
		t.Helper()
		btn := doc.ByID(id)
		dispatchOK(t, m, dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})
	}

	fire("app")
	list := doc.ByID("list")
	children := list.Children()
	if len(children) != 2 || children[0].ID() != "seed" {
		t.Fatalf("append produced children %v", childIDs(children))
	}

	fire("pre")
	children = doc.ByID("list").Children()
	if len(children) != 3 || children[0].ID() != "new" {
		t.Fatalf("prepend produced children %v", childIDs(children))
	}

	fire("rep")
	if doc.ByID("old") != nil {
		t.Error("outer swap left the original element attached")
	}
	host, err := doc.ByID("host").InnerHTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(host, `id="new"`) {
		t.Errorf("outer swap content = %q", host)
	}
}

func childIDs(els []*dom.Element) []string {
	ids := make([]string, 0, len(els))
	for _, el := range els {
		ids = append(ids, el.ID())
	}
	return ids
}

func TestFetchTimeoutAttribute(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:get:%s" commandfor="#out" data-fetch-timeout="50"></button>
		<div id="out"></div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, WithRetryPolicy(0, time.Millisecond, time.Millisecond))

	btn := doc.ByID("b")
	start := time.Now()
	_, err := m.Dispatch(context.Background(), dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("fetch timeout took %v, want well under the default", elapsed)
	}
}

func TestFetchHostAllowList(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	page := fmt.Sprintf(`<html><body>
		<button id="b" command="--fetch:get:%s" commandfor="#out"></button>
		<div id="out"></div>
	</body></html>`, srv.URL)
	m, doc := newPack(t, page, WithAllowedHosts([]string{"example.com"}))

	btn := doc.ByID("b")
	_, err := m.Dispatch(context.Background(), dispatch.Request{Raw: btn.AttrOr("command", ""), Invoker: btn})
	if err == nil || !strings.Contains(err.Error(), "allow-list") {
		t.Fatalf("expected an allow-list error, got %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("blocked fetch reached the server %d times", got)
	}
}

func TestFetchRejectsBadInput(t *testing.T) {
	m, _ := newPack(t, `<html><body><div id="out"></div></body></html>`, fastRetry())

	for _, raw := range []string{"--fetch:delete:http\\://x", "--fetch:get", "--fetch:get:ftp\\://files"} {
		if _, err := m.Dispatch(context.Background(), dispatch.Request{Raw: raw, TargetSelector: "#out"}); err == nil {
			t.Errorf("dispatch %q expected an error", raw)
		}
	}
}
