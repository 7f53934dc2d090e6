package checkout

import "errors"

var ErrInvalidTransition = errors.New("checkout: invalid state transition")

type Phase string

const (
	PhaseActive       Phase = "active"
	PhaseCheckingOut  Phase = "checking_out"
	PhaseOrderCreated Phase = "order_created"
	PhaseFailed       Phase = "checkout_failed"
)

// State implements the state pattern for one checkout invocation.
type State interface {
	Phase() Phase
	OnBegin() (State, error)
	OnOrderCreated() (State, error)
	OnFailed() (State, error)
}

type activeState struct{}

func (activeState) Phase() Phase                   { return PhaseActive }
func (activeState) OnBegin() (State, error)        { return checkingOutState{}, nil }
func (activeState) OnOrderCreated() (State, error) { return nil, ErrInvalidTransition }
func (activeState) OnFailed() (State, error)       { return nil, ErrInvalidTransition }

type checkingOutState struct{}

func (checkingOutState) Phase() Phase                   { return PhaseCheckingOut }
func (checkingOutState) OnBegin() (State, error)        { return nil, ErrInvalidTransition }
func (checkingOutState) OnOrderCreated() (State, error) { return orderCreatedState{}, nil }
func (checkingOutState) OnFailed() (State, error)       { return failedState{}, nil }

type orderCreatedState struct{}

func (orderCreatedState) Phase() Phase                   { return PhaseOrderCreated }
func (orderCreatedState) OnBegin() (State, error)        { return nil, ErrInvalidTransition }
func (orderCreatedState) OnOrderCreated() (State, error) { return orderCreatedState{}, nil }
func (orderCreatedState) OnFailed() (State, error)       { return nil, ErrInvalidTransition }

// failedState is terminal for the invocation; the cart itself is Active again,
// so a new checkout may begin.
type failedState struct{}

func (failedState) Phase() Phase                   { return PhaseFailed }
func (failedState) OnBegin() (State, error)        { return checkingOutState{}, nil }
func (failedState) OnOrderCreated() (State, error) { return nil, ErrInvalidTransition }
func (failedState) OnFailed() (State, error)       { return failedState{}, nil }

// Tracker records the phase of one checkout.
type Tracker struct {
	state State
}

func NewTracker() *Tracker { return &Tracker{state: activeState{}} }

func (t *Tracker) Phase() Phase { return t.state.Phase() }

func (t *Tracker) Begin() error { return t.apply(t.state.OnBegin) }

func (t *Tracker) OrderCreated() error { return t.apply(t.state.OnOrderCreated) }

func (t *Tracker) Fail() error { return t.apply(t.state.OnFailed) }

func (t *Tracker) apply(transition func() (State, error)) error {
	next, err := transition()
	if err != nil {
		return err
	}
	t.state = next
	return nil
}
