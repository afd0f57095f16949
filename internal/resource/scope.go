// Package resource tracks temporary resources acquired during one pipeline
// run so they can be released together, exactly once, on every exit path.
package resource

import (
	"errors"
	"fmt"
	"sync"
)

// Scope owns a set of release functions. It is safe for concurrent use.
type Scope struct {
	mu       sync.Mutex
	entries  []entry
	closed   bool
	released int
}

type entry struct {
	name    string
	release func() error
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Acquire registers a release function. If the scope is already closed the
// resource is released immediately and an error is returned.
func (s *Scope) Acquire(name string, release func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := release(); err != nil {
			return fmt.Errorf("scope closed, releasing %s: %w", name, err)
		}
		return fmt.Errorf("scope closed, %s released immediately", name)
	}
	s.entries = append(s.entries, entry{name: name, release: release})
	s.mu.Unlock()
	return nil
}

// Len returns the number of resources still held.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Released returns how many resources have been released so far.
func (s *Scope) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Close releases every held resource in reverse acquisition order. All
// release functions run even if some fail; their errors are joined. Calling
// Close again is a no-op.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].release(); err != nil {
			errs = append(errs, fmt.Errorf("releasing %s: %w", entries[i].name, err))
		}
		s.mu.Lock()
		s.released++
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
