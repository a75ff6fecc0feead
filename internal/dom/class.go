package dom

import "strings"

// HasClass reports whether the class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range strings.Fields(e.AttrOr("class", "")) {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends name to the class list if absent.
func (e *Element) AddClass(name string) {
	if name == "" || e.HasClass(name) {
		return
	}
	existing := e.AttrOr("class", "")
	if existing == "" {
		e.SetAttr("class", name)
		return
	}
	e.SetAttr("class", existing+" "+name)
}

// RemoveClass drops name from the class list.
func (e *Element) RemoveClass(name string) {
	fields := strings.Fields(e.AttrOr("class", ""))
	kept := fields[:0]
	for _, c := range fields {
		if c != name {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(fields) {
		return
	}
	if len(kept) == 0 {
		e.RemoveAttr("class")
		return
	}
	e.SetAttr("class", strings.Join(kept, " "))
}

// ToggleClass flips name and reports whether it is now present.
func (e *Element) ToggleClass(name string) bool {
	if e.HasClass(name) {
		e.RemoveClass(name)
		return false
	}
	e.AddClass(name)
	return true
}

// Hidden reports whether the element carries the hidden attribute.
func (e *Element) Hidden() bool { return e.HasAttr("hidden") }

// Show removes the hidden attribute.
func (e *Element) Show() { e.RemoveAttr("hidden") }

// Hide sets the hidden attribute.
func (e *Element) Hide() {
	if !e.HasAttr("hidden") {
		e.SetAttr("hidden", "")
	}
}

// Value reads the form value: the value attribute for inputs, the
// text content for textareas, the selected option for selects.
func (e *Element) Value() string {
	switch e.Tag() {
	case "textarea":
		return e.Text()
	case "select":
		options := e.Find("option")
		for _, opt := range options {
			if opt.HasAttr("selected") {
				return opt.AttrOr("value", opt.Text())
			}
		}
		if len(options) > 0 {
			return options[0].AttrOr("value", options[0].Text())
		}
		return ""
	default:
		return e.AttrOr("value", "")
	}
}

// SetValue writes the form value using the same per-tag rules as
// Value.
func (e *Element) SetValue(v string) {
	switch e.Tag() {
	case "textarea":
		e.SetText(v)
	case "select":
		for _, opt := range e.Find("option") {
			if opt.AttrOr("value", opt.Text()) == v {
				opt.SetAttr("selected", "")
			} else {
				opt.RemoveAttr("selected")
			}
		}
	default:
		e.SetAttr("value", v)
	}
}
