package dom

// Event is a synthetic document event. Events travel from their
// target up through ancestors unless propagation is stopped.
type Event struct {
	// Type is the event name, for example "click" or "keydown".
	Type string
	// Target is the element the event was fired on.
	Target *Element
	// CurrentTarget is the element whose binding is currently
	// handling the event.
	CurrentTarget *Element
	// Detail carries caller-supplied payload data.
	Detail map[string]any

	// Key fields apply to keyboard events.
	Key   string
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool

	propagationStopped bool
	defaultPrevented   bool
}

// NewEvent creates an event of the given type targeting target.
func NewEvent(typ string, target *Element) *Event {
	return &Event{Type: typ, Target: target, CurrentTarget: target}
}

// StopPropagation halts bubbling after the current element's bindings
// run.
func (e *Event) StopPropagation() { e.propagationStopped = true }

// PropagationStopped reports whether bubbling was halted.
func (e *Event) PropagationStopped() bool { return e.propagationStopped }

// PreventDefault marks the event's default action as suppressed.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// WithDetail returns the event with detail merged in.
func (e *Event) WithDetail(detail map[string]any) *Event {
	if len(detail) == 0 {
		return e
	}
	if e.Detail == nil {
		e.Detail = make(map[string]any, len(detail))
	}
	for k, v := range detail {
		e.Detail[k] = v
	}
	return e
}

// ContextMap renders the event as an interpolation context value.
func (e *Event) ContextMap() map[string]any {
	m := map[string]any{
		"type": e.Type,
		"key":  e.Key,
	}
	if e.Target != nil {
		m["target"] = elementContext(e.Target)
	}
	if e.CurrentTarget != nil {
		m["currentTarget"] = elementContext(e.CurrentTarget)
	}
	if e.Detail != nil {
		m["detail"] = e.Detail
	}
	return m
}

// ContextMap renders the element as an interpolation context value.
func (el *Element) ContextMap() map[string]any {
	return elementContext(el)
}

func elementContext(el *Element) map[string]any {
	return map[string]any{
		"id":    el.ID(),
		"tag":   el.Tag(),
		"value": el.Value(),
		"text":  el.Text(),
	}
}
