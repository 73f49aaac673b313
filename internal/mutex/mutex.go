// Package mutex provides a lock paired with the value it protects.
package mutex

import (
	"sync"

	"github.com/alecthomas/atomic"
)

// Mutex protects a value of type T and records whether a critical section
// ever exited abnormally.
//
// Critical sections run as closures so the lock is always released, even when
// the closure panics or calls runtime.Goexit. Either of those marks the Mutex as
// poisoned. Poisoning is sticky: nothing clears it.
//
// Example:
//
//	m := mutex.New([]string{})
//	m.Do(func(v *[]string, poisoned bool) {
//		*v = append(*v, "hello")
//	})
type Mutex[T any] struct {
	m        sync.Mutex
	v        T
	poisoned atomic.Value[bool]
}

func New[T any](v T) *Mutex[T] {
	return &Mutex[T]{v: v}
}

// Do runs fn with the lock held, passing it the protected value and whether
// the Mutex was already poisoned.
//
// If fn does not return normally the Mutex is poisoned before the lock is
// released and the panic continues to unwind.
func (l *Mutex[T]) Do(fn func(v *T, poisoned bool)) {
	l.m.Lock()
	l.run(fn)
}

// TryDo is like Do but returns false without calling fn if the lock is held.
func (l *Mutex[T]) TryDo(fn func(v *T, poisoned bool)) bool {
	if !l.m.TryLock() {
		return false
	}
	l.run(fn)
	return true
}

// Poisoned reports whether a critical section has ever exited abnormally.
func (l *Mutex[T]) Poisoned() bool {
	return l.poisoned.Load()
}

// run must be called with the lock held.
func (l *Mutex[T]) run(fn func(v *T, poisoned bool)) {
	completed := false
	defer func() {
		if !completed {
			l.poisoned.Store(true)
		}
		l.m.Unlock()
	}()
	fn(&l.v, l.poisoned.Load())
	completed = true
}
