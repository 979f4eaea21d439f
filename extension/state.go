package extension

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a registered extension.
type State int32

const (
	StateRegistered State = iota
	StateActive
	StateInactive
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st := StateRegistered; st <= StateUnloaded; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown extension state %q", s)
}

// Operation is a lifecycle request.
type Operation string

const (
	OpActivate   Operation = "activate"
	OpDeactivate Operation = "deactivate"
	OpUnload     Operation = "unload"
	OpTrigger    Operation = "trigger"
)

// allowed lists the states each operation may start from.
var allowed = map[Operation][]State{
	OpActivate:   {StateRegistered, StateInactive},
	OpDeactivate: {StateActive},
	OpUnload:     {StateRegistered, StateInactive},
	OpTrigger:    {StateActive},
}

func permitted(op Operation, from State) bool {
	for _, s := range allowed[op] {
		if s == from {
			return true
		}
	}
	return false
}

var ErrIllegalTransition = errors.New("illegal extension state transition")

// IllegalTransitionError reports an operation requested in a state that
// does not allow it. The extension state is unchanged.
type IllegalTransitionError struct {
	Extension string
	Op        Operation
	From      State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("extension %s: cannot %s while %s", e.Extension, e.Op, e.From)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// ActivationError wraps the failure of an extension's Activate.
type ActivationError struct {
	Extension string
	Err       error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate extension %s: %v", e.Extension, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }
