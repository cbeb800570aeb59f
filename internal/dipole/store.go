package dipole

import (
	"sync/atomic"
	"time"
)

// versioned pairs a parameter set with the time it became active, so
// consumers can detect changes without comparing every field.
type versioned struct {
	params Params
	setAt  time.Time
}

// Store provides thread-safe access to the active dipole parameters.
type Store struct {
	current atomic.Pointer[versioned]
}

// NewStore creates a Store holding the given initial parameters.
func NewStore(initial Params) *Store {
	s := &Store{}
	s.current.Store(&versioned{params: initial, setAt: time.Now()})
	return s
}

// Get returns the active parameter set.
func (s *Store) Get() Params {
	return s.current.Load().params
}

// Set atomically replaces the active parameter set.
func (s *Store) Set(p Params) {
	s.current.Store(&versioned{params: p, setAt: time.Now()})
}

// SetAt returns the time the active parameter set was installed. Consumers
// use it for change detection.
func (s *Store) SetAt() time.Time {
	return s.current.Load().setAt
}
