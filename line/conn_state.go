package line

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/labio/labline/logger"
)

// ConnState represents the lifecycle stage of a Connection.
type ConnState uint32

// Connection lifecycle states.
const (
	// ClosedState indicates that no transport resource is held.
	ClosedState ConnState = iota
	// OpeningState indicates that the transport resource is being acquired.
	OpeningState
	// OpenState indicates that the connection is established and the
	// listener is running; commands may be dispatched.
	OpenState
	// ClosingState indicates that the listener is being stopped and the
	// transport released.
	ClosingState
	// FaultedState indicates an unrecoverable transport error. The state is
	// absorbing: the only way out is an explicit Close followed by Open.
	FaultedState
)

// IsClosed returns if the current state is closed.
func (cs ConnState) IsClosed() bool { return cs == ClosedState }

// IsOpen returns if the current state is open.
func (cs ConnState) IsOpen() bool { return cs == OpenState }

// IsFaulted returns if the current state is faulted.
func (cs ConnState) IsFaulted() bool { return cs == FaultedState }

// String returns string representation of the current state.
func (cs ConnState) String() string {
	switch cs {
	case ClosedState:
		return "closed"
	case OpeningState:
		return "opening"
	case OpenState:
		return "open"
	case ClosingState:
		return "closing"
	case FaultedState:
		return "faulted"
	default:
		return "unknown"
	}
}

// ConnStateChangeHandler is a function type that represents a handler for
// connection state changes.
//
// Note: the handler is invoked in a blocking mode while the state lock is
// held. Take care with long-running implementations.
type ConnStateChangeHandler func(prevState ConnState, newState ConnState)

// ConnStateMgr manages the lifecycle state of a Connection.
//
// It provides guarded state transitions and notifies registered handlers of
// state changes. Transitions are safe in concurrent environments.
type ConnStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []ConnStateChangeHandler
}

// NewConnStateMgr creates a new ConnStateMgr initialized to ClosedState.
//
// It accepts optional ConnStateChangeHandler functions invoked when the
// connection state changes.
func NewConnStateMgr(l logger.Logger, handlers ...ConnStateChangeHandler) *ConnStateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &ConnStateMgr{
		logger:   l,
		handlers: make([]ConnStateChangeHandler, 0, len(handlers)),
	}
	mgr.handlers = append(mgr.handlers, handlers...)

	mgr.state.Store(uint32(ClosedState))
	mgr.cond = sync.NewCond(&mgr.mu)

	return mgr
}

// State returns the current connection state.
func (cs *ConnStateMgr) State() ConnState {
	return ConnState(cs.state.Load())
}

// IsOpen returns if the current state is open.
func (cs *ConnStateMgr) IsOpen() bool { return cs.State().IsOpen() }

// AddHandler adds one or more ConnStateChangeHandler functions to be invoked
// on state changes.
func (cs *ConnStateMgr) AddHandler(handlers ...ConnStateChangeHandler) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.handlers = append(cs.handlers, handlers...)
}

// WaitState waits for the connection state to reach the specified state or
// until the context is done. It returns nil if the desired state is reached,
// or the context error otherwise.
func (cs *ConnStateMgr) WaitState(ctx context.Context, state ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		cs.cond.Broadcast()
	})
	defer stopFunc()

	for cs.State() != state {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cs.cond.Wait()
		}
	}

	return nil
}

// ToOpening transitions ClosedState to OpeningState.
//
// Returns ErrInvalidTransition if the connection is not closed: a faulted
// connection must be closed explicitly before it can be reopened.
func (cs *ConnStateMgr) ToOpening() error {
	return cs.transition(OpeningState, ClosedState)
}

// ToOpen transitions OpeningState to OpenState.
func (cs *ConnStateMgr) ToOpen() error {
	return cs.transition(OpenState, OpeningState)
}

// ToClosing transitions OpeningState, OpenState or FaultedState to
// ClosingState.
func (cs *ConnStateMgr) ToClosing() error {
	return cs.transition(ClosingState, OpeningState, OpenState, FaultedState)
}

// ToClosed transitions ClosingState or OpeningState back to ClosedState.
// If the state is already ClosedState, the function is a no-op.
func (cs *ConnStateMgr) ToClosed() error {
	if cs.State().IsClosed() {
		return nil
	}

	return cs.transition(ClosedState, ClosingState, OpeningState)
}

// ToFaulted transitions OpeningState or OpenState to the absorbing
// FaultedState. If the state is already FaultedState, the function is a
// no-op.
func (cs *ConnStateMgr) ToFaulted() error {
	if cs.State().IsFaulted() {
		return nil
	}

	return cs.transition(FaultedState, OpeningState, OpenState)
}

// transition moves to newState if the current state is one of the allowed
// source states, invoking handlers on success.
func (cs *ConnStateMgr) transition(newState ConnState, from ...ConnState) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	curState := cs.State()
	if curState == newState {
		return nil
	}

	allowed := false
	for _, f := range from {
		if curState == f {
			allowed = true

			break
		}
	}

	if !allowed {
		cs.logger.Debug("rejected connection state transition",
			"curState", curState, "newState", newState)

		return ErrInvalidTransition
	}

	cs.setState(newState)
	cs.invokeHandlers(curState, newState)

	return nil
}

// setState atomically sets the current state and broadcasts a signal to any
// waiting goroutines.
func (cs *ConnStateMgr) setState(newState ConnState) {
	cs.state.Store(uint32(newState))
	cs.cond.Broadcast()
}

// invokeHandlers invokes all registered ConnStateChangeHandler functions with
// the previous and new states.
func (cs *ConnStateMgr) invokeHandlers(prevState ConnState, newState ConnState) {
	for _, handler := range cs.handlers {
		if handler != nil {
			handler(prevState, newState)
		}
	}
}
