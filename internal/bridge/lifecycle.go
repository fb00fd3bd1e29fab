package bridge

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of the bridge
type State int

const (
	StateInitializing State = iota
	StateReady
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lifecycle owns the bridge state. It only moves forward, through MarkReady
// and RequestStop.
type Lifecycle struct {
	mu     sync.Mutex
	state  State
	reason string
	done   chan struct{}
}

// NewLifecycle returns a lifecycle in the initializing state
func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// MarkReady moves from initializing to ready
func (l *Lifecycle) MarkReady() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateInitializing {
		return fmt.Errorf("cannot mark ready from state %s", l.state)
	}
	l.state = StateReady
	return nil
}

// RequestStop moves to stopped from any state. The first reason is kept;
// later calls are no-ops and return false.
func (l *Lifecycle) RequestStop(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateStopped {
		return false
	}
	l.state = StateStopped
	l.reason = reason
	close(l.done)
	return true
}

// State returns the current state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Reason returns why a stop was requested
func (l *Lifecycle) Reason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// Done is closed once a stop has been requested
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Stopping reports whether a stop has been requested
func (l *Lifecycle) Stopping() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
