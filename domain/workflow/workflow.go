// Package workflow provides the per-model state machine: states, directed
// transitions and the pure decision of whether a state change is legal.
package workflow

import (
	"fmt"
	"strings"
	"time"
)

// State is a named node of a workflow.
type State struct {
	ID         string
	WorkflowID string
	Name       string
	IsInitial  bool
	OrderIndex int
}

// Transition is a directed edge between two states of the same workflow.
// A→B does not imply B→A.
type Transition struct {
	FromStateID string
	ToStateID   string
}

// Workflow is an ordered set of states plus the allowed transitions.
type Workflow struct {
	ID          string
	Name        string
	Description string
	States      []State
	Transitions []Transition
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// State returns the state with the given id.
func (w Workflow) State(id string) (State, bool) {
	for _, s := range w.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// StateByName returns the state with the given name.
func (w Workflow) StateByName(name string) (State, bool) {
	for _, s := range w.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// HasState returns true if id names a state of this workflow.
func (w Workflow) HasState(id string) bool {
	_, ok := w.State(id)
	return ok
}

// InitialState returns the state flagged as initial.
func (w Workflow) InitialState() (State, bool) {
	for _, s := range w.States {
		if s.IsInitial {
			return s, true
		}
	}
	return State{}, false
}

// InitialStateID returns the initial state's id or "" when there is none.
func (w Workflow) InitialStateID() string {
	s, _ := w.InitialState()
	return s.ID
}

// CanTransition returns true if a declared edge leads from one state to another.
func (w Workflow) CanTransition(from, to string) bool {
	for _, t := range w.Transitions {
		if t.FromStateID == from && t.ToStateID == to {
			return true
		}
	}
	return false
}

// StateName returns the display name of a state, or the id if unknown.
func (w Workflow) StateName(id string) string {
	if s, ok := w.State(id); ok {
		return s.Name
	}
	return id
}

// CheckResult represents the outcome of a structural check.
type CheckResult struct {
	Valid  bool
	Errors map[string]string
}

// Check validates a workflow definition (pure function).
func Check(w Workflow) CheckResult {
	errors := make(map[string]string)

	if strings.TrimSpace(w.Name) == "" {
		errors["name"] = "Name is required"
	}

	ids := make(map[string]bool, len(w.States))
	names := make(map[string]bool, len(w.States))
	initial := 0
	for _, s := range w.States {
		if strings.TrimSpace(s.Name) == "" {
			errors["states"] = "Every state needs a name"
			continue
		}
		if names[s.Name] {
			errors["states."+s.Name] = "State names must be unique"
		}
		names[s.Name] = true
		ids[s.ID] = true
		if s.IsInitial {
			initial++
		}
	}
	if len(w.States) > 0 && initial != 1 {
		errors["states.isInitial"] = fmt.Sprintf("Exactly one initial state is required, found %d", initial)
	}

	edges := make(map[Transition]bool, len(w.Transitions))
	for _, t := range w.Transitions {
		if !ids[t.FromStateID] || !ids[t.ToStateID] {
			errors["transitions"] = "Transitions must connect states of this workflow"
			continue
		}
		if edges[t] {
			errors["transitions"] = fmt.Sprintf("Duplicate transition %s -> %s", w.StateName(t.FromStateID), w.StateName(t.ToStateID))
		}
		edges[t] = true
	}

	return CheckResult{Valid: len(errors) == 0, Errors: errors}
}

// TransitionError reports a rejected state change using state names.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("cannot move to %q: %s", e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move from %q to %q: %s", e.From, e.To, e.Reason)
}

// Resolve decides the state an object moves to when target is requested.
// w is nil when the object's model has no workflow; current is the
// object's stored state id ("" for none).
func Resolve(w *Workflow, current, target string) (string, error) {
	if w == nil {
		if target == "" {
			return "", nil
		}
		return "", &TransitionError{To: target, Reason: "model has no workflow"}
	}

	if target == "" {
		if current == "" || !w.HasState(current) {
			return "", nil
		}
		return "", &TransitionError{From: w.StateName(current), To: "(none)", Reason: "state cannot be cleared"}
	}

	to, ok := w.State(target)
	if !ok {
		return "", &TransitionError{From: w.StateName(current), To: target, Reason: "state does not belong to the workflow"}
	}

	// Bootstrap: an object without a valid state may enter any state.
	if current == "" || !w.HasState(current) {
		return to.ID, nil
	}

	if current == target {
		return current, nil
	}

	if !w.CanTransition(current, target) {
		return "", &TransitionError{From: w.StateName(current), To: to.Name, Reason: "no transition defined"}
	}
	return to.ID, nil
}

// Recompute returns the state an object must hold after its model's
// workflow changed: the current state when it is still valid, otherwise the
// initial state, otherwise none.
func Recompute(w *Workflow, current string) string {
	if w == nil {
		return ""
	}
	if current != "" && w.HasState(current) {
		return current
	}
	return w.InitialStateID()
}
