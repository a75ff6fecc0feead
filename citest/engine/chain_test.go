package engine_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/engine"
	"github.com/conductor-html/conductor/internal/event"
)

var ctx = context.Background()

// eventRecorder collects bus events for assertions. The bus invokes
// subscribers on their own goroutines, so access is locked.
type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(t event.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) first(t event.EventType) (event.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == t {
			return e, true
		}
	}
	return event.Event{}, false
}

// newEngine loads markup into a fresh engine wired to a recorder.
func newEngine(markup string) (*engine.Engine, *eventRecorder) {
	rec := &eventRecorder{}
	bus := event.NewBus()
	DeferCleanup(bus.Close)
	bus.SubscribeAll(rec.record)

	eng, err := engine.New(nil, engine.WithBus(bus))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(eng.Close)
	Expect(eng.LoadDocument(markup, "")).To(Succeed())
	return eng, rec
}

var _ = Describe("Declarative chains", func() {
	It("runs follow-up nodes in document order once the command settles", func() {
		eng, _ := newEngine(`<html><body>
			<button id="go" command="--echo:start" commandfor="#log">
				<and-then command="--class:add:first"></and-then>
				<and-then command="--class:add:second"></and-then>
			</button>
			<p id="log"></p>
		</body></html>`)

		res, err := eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res).NotTo(BeNil())
		Expect(res.Success).To(BeTrue())
		Expect(res.Chained).To(Equal(2))

		log := eng.Document().ByID("log")
		Expect(log.Text()).To(Equal("start"))
		Expect(log.HasClass("first")).To(BeTrue())
		Expect(log.HasClass("second")).To(BeTrue())

		for _, node := range eng.Document().Find("and-then") {
			Expect(node.AttrOr("data-state", "")).To(Equal("completed"))
		}
	})

	It("branches on the completed command's outcome", func() {
		eng, _ := newEngine(`<html><body>
			<button id="go" command="--refuse" commandfor="#log">
				<and-then command="--class:add:ok" data-condition="success"></and-then>
				<and-then command="--class:add:failed" data-condition="error"></and-then>
				<and-then command="--class:add:settled" data-condition="always"></and-then>
			</button>
			<p id="log"></p>
		</body></html>`)

		_, err := eng.Commands().Register("--refuse", func(ctx context.Context, ec *dispatch.ExecContext) error {
			return errors.New("refused")
		})
		Expect(err).NotTo(HaveOccurred())

		res, err := eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred(), "execution failures surface in the result, not the error")
		Expect(res.Success).To(BeFalse())
		Expect(res.Chained).To(Equal(2))

		log := eng.Document().ByID("log")
		Expect(log.HasClass("ok")).To(BeFalse())
		Expect(log.HasClass("failed")).To(BeTrue())
		Expect(log.HasClass("settled")).To(BeTrue())

		// The success branch stays pending for a later outcome.
		success := eng.Document().First(`and-then[data-condition="success"]`)
		Expect(success).NotTo(BeNil())
		Expect(success.AttrOr("data-state", "")).To(Equal(""))
	})

	It("waits out a declared delay before the follow-up fires", func() {
		eng, rec := newEngine(`<html><body>
			<button id="go" command="--echo:start" commandfor="#log">
				<and-then command="--class:add:late" data-delay="250"></and-then>
			</button>
			<p id="log"></p>
		</body></html>`)

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			_, err := eng.Activate(ctx, "#go")
			Expect(err).NotTo(HaveOccurred())
		}()

		var scheduled event.ChainScheduledData
		Eventually(func() bool {
			e, ok := rec.first(event.ChainScheduled)
			if ok {
				scheduled = e.Data.(event.ChainScheduledData)
			}
			return ok
		}, "2s", "20ms").Should(BeTrue())
		Expect(scheduled.DelayMS).To(Equal(int64(250)))

		Consistently(func() int {
			return rec.count(event.ChainExecuted)
		}, "100ms", "20ms").Should(BeZero(), "the follow-up must not fire inside the delay window")

		Eventually(func() int {
			return rec.count(event.ChainExecuted)
		}, "3s", "20ms").Should(Equal(1))

		<-done
		Expect(eng.Document().ByID("log").HasClass("late")).To(BeTrue())
	})

	It("removes once-flagged nodes and never re-runs completed ones", func() {
		eng, _ := newEngine(`<html><body>
			<button id="go" command="--echo:ping" commandfor="#log">
				<and-then command="--class:add:ephemeral" data-once></and-then>
				<and-then command="--class:add:kept"></and-then>
			</button>
			<p id="log"></p>
		</body></html>`)

		res, err := eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Chained).To(Equal(2))

		nodes := eng.Document().Find("and-then")
		Expect(nodes).To(HaveLen(1))
		Expect(nodes[0].AttrOr("command", "")).To(Equal("--class:add:kept"))
		Expect(nodes[0].AttrOr("data-state", "")).To(Equal("completed"))

		res, err = eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Chained).To(BeZero())
	})

	It("nests chains against each fresh result", func() {
		eng, _ := newEngine(`<html><body>
			<button id="go" command="--echo:outer" commandfor="#log">
				<and-then command="--echo:inner">
					<and-then command="--class:add:deep"></and-then>
				</and-then>
			</button>
			<p id="log"></p>
		</body></html>`)

		res, err := eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Chained).To(Equal(2))

		log := eng.Document().ByID("log")
		Expect(log.Text()).To(Equal("inner"))
		Expect(log.HasClass("deep")).To(BeTrue())
	})
})

var _ = Describe("Attribute chains", func() {
	It("consumes data-and-then and keeps after-attributes armed", func() {
		eng, _ := newEngine(`<html><body>
			<button id="go" command="--echo:hi" commandfor="#log"
				data-and-then="--class:add:boot"
				data-after-success="--class:add:good"
				data-after-complete="--class:add:final"></button>
			<p id="log"></p>
		</body></html>`)

		res, err := eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Chained).To(Equal(3))

		log := eng.Document().ByID("log")
		Expect(log.HasClass("boot")).To(BeTrue())
		Expect(log.HasClass("good")).To(BeTrue())
		Expect(log.HasClass("final")).To(BeTrue())
		Expect(eng.Document().ByID("go").HasAttr("data-and-then")).To(BeFalse())

		res, err = eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Chained).To(Equal(2), "only the after-attributes fire again")
	})

	It("routes follow-ups through data-then-target", func() {
		eng, _ := newEngine(`<html><body>
			<button id="go" command="--text:set:done" commandfor="#log"
				data-after-success="--class:add:routed" data-then-target="#aux"></button>
			<p id="log"></p>
			<p id="aux"></p>
		</body></html>`)

		res, err := eng.Activate(ctx, "#go")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Chained).To(Equal(1))

		Expect(eng.Document().ByID("log").Text()).To(Equal("done"))
		Expect(eng.Document().ByID("log").HasClass("routed")).To(BeFalse())
		Expect(eng.Document().ByID("aux").HasClass("routed")).To(BeTrue())
	})
})

var _ = Describe("Trigger bindings", func() {
	It("unbinds once-modified bindings after the first fire", func() {
		eng, _ := newEngine(`<html><body>
			<button id="hit" command-on="click.once" command="--class:add:used" commandfor="#log"></button>
			<p id="log"></p>
		</body></html>`)

		hit := eng.Document().ByID("hit")
		Expect(hit).NotTo(BeNil())

		n, err := eng.FireEvent(ctx, dom.NewEvent("click", hit))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(eng.Document().ByID("log").HasClass("used")).To(BeTrue())

		n, err = eng.FireEvent(ctx, dom.NewEvent("click", hit))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("kicks chains off a fired trigger", func() {
		eng, _ := newEngine(`<html><body>
			<form id="sign" command-on="submit" command="--hide" commandfor="#sign"
				data-after-success="--show" data-then-target="#thanks"></form>
			<div id="thanks" hidden>Thanks</div>
		</body></html>`)

		sign := eng.Document().ByID("sign")
		Expect(sign).NotTo(BeNil())

		n, err := eng.FireEvent(ctx, dom.NewEvent("submit", sign))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		Expect(eng.Document().ByID("sign").Hidden()).To(BeTrue())
		Expect(eng.Document().ByID("thanks").Hidden()).To(BeFalse())
	})
})
