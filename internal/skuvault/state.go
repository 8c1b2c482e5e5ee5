package skuvault

import (
	"fmt"
	"strings"
)

// SessionState is the lifecycle state of a wave-picking session. Wire
// values the client does not know parse to StateUnknown.
type SessionState string

const (
	StateUnknown     SessionState = ""
	StateActive      SessionState = "active"
	StateInactive    SessionState = "inactive"
	StateNew         SessionState = "new"
	StateReadyToShip SessionState = "readyToShip"
	StateClosed      SessionState = "closed"
)

// knownStates keeps the order the vendor UI lists them in
var knownStates = []struct {
	name  string
	state SessionState
}{
	{"ACTIVE", StateActive},
	{"INACTIVE", StateInactive},
	{"NEW", StateNew},
	{"READY_TO_SHIP", StateReadyToShip},
	{"CLOSED", StateClosed},
}

// ParseState maps a wire value to a state
func ParseState(wire string) SessionState {
	for _, s := range knownStates {
		if string(s.state) == wire {
			return s.state
		}
	}
	return StateUnknown
}

// Known reports whether s is one of the vendor states
func (s SessionState) Known() bool {
	return s != StateUnknown && ParseState(string(s)) == s
}

func (s SessionState) String() string {
	if s == StateUnknown {
		return "unknown"
	}
	return string(s)
}

// AllStates returns every known state as wire values
func AllStates() []string {
	out := make([]string, 0, len(knownStates))
	for _, s := range knownStates {
		out = append(out, string(s.state))
	}
	return out
}

// StatesByNames converts state names (READY_TO_SHIP) or wire values
// (readyToShip), matched case-insensitively, to wire values.
func StatesByNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		state, ok := lookupState(name)
		if !ok {
			return nil, fmt.Errorf("invalid session state: %q", name)
		}
		out = append(out, string(state))
	}
	return out, nil
}

func lookupState(name string) (SessionState, bool) {
	for _, s := range knownStates {
		if strings.EqualFold(s.name, name) {
			return s.state, true
		}
	}
	for _, s := range knownStates {
		if strings.EqualFold(string(s.state), name) {
			return s.state, true
		}
	}
	return StateUnknown, false
}
