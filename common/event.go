package common

import "sync"

// Signal is a broadcast event that can be waited on with a timeout. Every Broadcast wakes all goroutines that
// obtained a channel from Wait before the call. Unlike sync.Cond it composes with select.
type Signal struct {
	mu sync.Mutex
	c  chan struct{}
}

// Wait returns a channel that is closed on the next Broadcast.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c == nil {
		s.c = make(chan struct{})
	}
	return s.c
}

func (s *Signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		close(s.c)
		s.c = nil
	}
}

func NewSignal() *Signal {
	return &Signal{}
}
