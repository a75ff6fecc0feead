package types

// DocumentInfo summarizes the currently loaded document.
type DocumentInfo struct {
	Path     string       `json:"path,omitempty"`
	Title    string       `json:"title,omitempty"`
	Elements int          `json:"elements"`
	Triggers int          `json:"triggers"`
	Time     DocumentTime `json:"time"`
}

// DocumentTime contains document lifecycle timestamps, in unix
// milliseconds.
type DocumentTime struct {
	Loaded  int64  `json:"loaded"`
	Mutated *int64 `json:"mutated,omitempty"`
}

// MutationInfo is the wire form of one tree change.
type MutationInfo struct {
	Kind      string `json:"kind"`
	TargetID  string `json:"targetID,omitempty"`
	TargetTag string `json:"targetTag"`
	Attribute string `json:"attribute,omitempty"`
}
