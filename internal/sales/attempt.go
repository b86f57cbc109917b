package sales

import "fmt"

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
)

var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateCommitting, StateRejected},
	StateCommitting: {StateCommitted, StateRejected},
}

// Attempt records the life of one sale attempt. Committed and Rejected are
// terminal.
type Attempt struct {
	State   State   `json:"state"`
	History []State `json:"history"`
	Reason  string  `json:"reason,omitempty"`
}

func newAttempt() *Attempt {
	return &Attempt{State: StateIdle, History: []State{StateIdle}}
}

func (a *Attempt) advance(next State) error {
	for _, allowed := range transitions[a.State] {
		if allowed == next {
			a.State = next
			a.History = append(a.History, next)
			return nil
		}
	}
	return fmt.Errorf("sale attempt cannot move from %s to %s", a.State, next)
}

func (a *Attempt) reject(err error) {
	if a.State == StateCommitted || a.State == StateRejected {
		return
	}
	a.State = StateRejected
	a.History = append(a.History, StateRejected)
	if err != nil {
		a.Reason = err.Error()
	}
}

func (a *Attempt) Terminal() bool {
	return a.State == StateCommitted || a.State == StateRejected
}
