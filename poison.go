package sharedcell

import (
	"errors"
	"fmt"
)

// ErrPoisoned matches every *PoisonError with errors.Is.
var ErrPoisoned = errors.New("lock poisoned")

// PoisonError is returned, or panicked with, when a cell is accessed after a
// goroutine panicked while holding its lock.
//
// The stored value is not discarded. Callers that decide to trust it anyway can
// retrieve it with Value.
type PoisonError[T any] struct {
	op      string
	storage *storage[T]
}

var _ error = (*PoisonError[int])(nil)

func (e *PoisonError[T]) Error() string {
	return fmt.Sprintf("sharedcell: %s: %s: a goroutine panicked while holding the mutex", e.op, ErrPoisoned)
}

func (e *PoisonError[T]) Unwrap() error { return ErrPoisoned }

// Op is the operation that observed the poisoning: "read", "write" or "update".
func (e *PoisonError[T]) Op() string { return e.op }

// Value returns a copy of the guarded value, ignoring the poisoned flag.
//
// The value may have been left inconsistent by the goroutine that panicked.
// Value acquires the lock, so it must not be called from inside Update.
func (e *PoisonError[T]) Value() T {
	var out T
	e.storage.mu.Do(func(v *T, _ bool) {
		out = e.storage.copy(*v)
	})
	return out
}
