package dom

// MutationType classifies a mutation record.
type MutationType string

const (
	// MutationChildList marks child insertion or removal.
	MutationChildList MutationType = "childList"
	// MutationAttributes marks an attribute set or removal.
	MutationAttributes MutationType = "attributes"
)

// MutationRecord describes one tree change.
type MutationRecord struct {
	Type      MutationType
	Target    *Element
	Attribute string
	OldValue  string
}

// Observe registers fn to receive batched mutation records on each
// FlushMutations call. The returned function cancels the observer.
func (d *Document) Observe(fn func([]MutationRecord)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

// record queues a mutation for the next flush.
func (d *Document) record(rec MutationRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.observers) == 0 {
		return
	}
	d.pending = append(d.pending, rec)
}

// FlushMutations delivers queued records to every observer and clears
// the queue. Callers flush after an operation completes so observers
// see a settled tree. Mutations made by observers themselves queue for
// the following flush.
func (d *Document) FlushMutations() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	records := d.pending
	d.pending = nil
	observers := make([]func([]MutationRecord), 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	for _, fn := range observers {
		fn(records)
	}
}

// PendingMutations reports how many records await delivery.
func (d *Document) PendingMutations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
