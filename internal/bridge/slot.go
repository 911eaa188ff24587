// Package bridge holds the producer's latest raw frame, latest annotated frame
// and latest scan event, and lets consumers wait for newer values.
//
// Each Slot is a single-value mailbox with a sequence number: Store overwrites
// without backpressure, Load returns the newest value, Wait blocks until the
// sequence moves past the one the caller last handled.
package bridge

import (
	"context"
	"sync"
	"time"
)

// Versioned is a slot value with its sequence number and store time.
type Versioned[T any] struct {
	Seq      uint64
	StoredAt time.Time
	Value    T
}

// Slot is a mutex-guarded latest-value cell.
type Slot[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	seq   uint64
	at    time.Time
	value T
	set   bool
}

// NewSlot constructs an empty slot.
func NewSlot[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Store replaces the value and wakes waiters. It returns the new sequence.
func (s *Slot[T]) Store(value T) uint64 {
	s.mu.Lock()
	s.seq++
	s.value = value
	s.at = time.Now()
	s.set = true
	seq := s.seq
	s.cond.Broadcast()
	s.mu.Unlock()
	return seq
}

// Load returns the newest value. ok is false until the first Store.
func (s *Slot[T]) Load() (Versioned[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Versioned[T]{Seq: s.seq, StoredAt: s.at, Value: s.value}, s.set
}

// Seq returns the current sequence without copying the value.
func (s *Slot[T]) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Wait blocks until the slot's sequence exceeds since, then returns the newest
// value. Intermediate values overwritten before the caller wakes are skipped.
func (s *Slot[T]) Wait(ctx context.Context, since uint64) (Versioned[T], error) {
	cancelWait := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.seq <= since {
		if err := ctx.Err(); err != nil {
			return Versioned[T]{Seq: s.seq}, err
		}
		s.cond.Wait()
	}
	return Versioned[T]{Seq: s.seq, StoredAt: s.at, Value: s.value}, nil
}
