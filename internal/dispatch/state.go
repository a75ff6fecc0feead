package dispatch

import (
	"fmt"
	"sync"

	"github.com/conductor-html/conductor/internal/dom"
)

// State is the execution state of a (command, target) pair.
type State string

const (
	// StateActive marks an in-flight execution.
	StateActive State = "active"
	// StateCompleted permanently skips further executions until reset.
	StateCompleted State = "completed"
	// StateDisabled skips executions without consuming them.
	StateDisabled State = "disabled"
	// StateOnce allows exactly one successful execution, then
	// transitions to StateCompleted.
	StateOnce State = "once"
)

// skips reports whether the state blocks execution.
func (s State) skips() bool {
	return s == StateDisabled || s == StateCompleted
}

// stateStore tracks per-(command, target) execution states. Keys use
// the target's id attribute when present so state survives element
// re-resolution, falling back to node identity for anonymous targets.
type stateStore struct {
	mu     sync.Mutex
	states map[string]State
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[string]State)}
}

func stateKey(command string, target *dom.Element) string {
	if target == nil {
		return command + "\x00"
	}
	if id := target.ID(); id != "" {
		return command + "\x00#" + id
	}
	return command + "\x00" + fmt.Sprintf("%p", target.Node())
}

func (s *stateStore) get(command string, target *dom.Element) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[stateKey(command, target)]
}

func (s *stateStore) set(command string, target *dom.Element, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == "" {
		delete(s.states, stateKey(command, target))
		return
	}
	s.states[stateKey(command, target)] = state
}

func (s *stateStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]State)
}

func (s *stateStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
