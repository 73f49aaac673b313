// Package sharedcell provides Cell, a clonable handle to a single value that
// is shared between goroutines and guarded by a mutex.
//
// Every handle cloned from a Cell observes and mutates the same storage. Reads
// return a detached copy of the stored value and writes replace it wholesale,
// so no caller ever holds a reference into the guarded value outside the lock.
//
//	counter := sharedcell.New(0)
//	worker := counter.Clone()
//	go func() { worker.Write(5) }()
//
// Read and Write panic if the cell is poisoned. TryRead and TryWrite return a
// *PoisonError instead.
package sharedcell

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/block/sharedcell/internal/mutex"
)

// Cell is a handle to shared, mutex-guarded storage holding one value of type T.
//
// The zero Cell is ready to use and holds the zero value of T. It counts as one
// handle for as long as it exists. A Cell must not be copied after first use;
// share it with Clone instead. The storage lives for as long as any handle to
// it is reachable.
type Cell[T any] struct {
	once   sync.Once
	shared *storage[T]
}

type storage[T any] struct {
	mu      *mutex.Mutex[T]
	copy    func(T) T
	handles atomic.Int64
}

// Option configures a Cell at construction time.
type Option[T any] func(*storage[T])

// WithCopy overrides how values are copied into and out of the cell.
//
// The default deep copies, or calls Clone if T implements Cloner.
func WithCopy[T any](fn func(T) T) Option[T] {
	return func(s *storage[T]) { s.copy = fn }
}

// New creates a Cell holding a copy of value.
func New[T any](value T, options ...Option[T]) *Cell[T] {
	s := &storage[T]{copy: copyOf[T]}
	for _, option := range options {
		option(s)
	}
	s.mu = mutex.New(s.copy(value))
	return s.handle()
}

// From creates a Cell holding value. It is equivalent to New.
func From[T any](value T) *Cell[T] {
	return New(value)
}

func (s *storage[T]) handle() *Cell[T] {
	s.handles.Add(1)
	c := &Cell[T]{shared: s}
	runtime.SetFinalizer(c, func(c *Cell[T]) { c.shared.handles.Add(-1) })
	return c
}

// storage allocates the storage of a zero Cell on first use.
func (c *Cell[T]) storage() *storage[T] {
	c.once.Do(func() {
		if c.shared == nil {
			var zero T
			c.shared = &storage[T]{copy: copyOf[T], mu: mutex.New(zero)}
			c.shared.handles.Add(1)
		}
	})
	return c.shared
}

// Clone returns a new handle to the same storage.
func (c *Cell[T]) Clone() *Cell[T] {
	return c.storage().handle()
}

// Handles returns the number of handles to this cell's storage that have not
// yet been garbage collected.
func (c *Cell[T]) Handles() int {
	return int(c.storage().handles.Load())
}

// Read returns a copy of the current value.
//
// It panics with a *PoisonError if the cell is poisoned.
func (c *Cell[T]) Read() T {
	value, err := c.TryRead()
	if err != nil {
		panic(err)
	}
	return value
}

// Write replaces the current value with a copy of value.
//
// It panics with a *PoisonError if the cell is poisoned.
func (c *Cell[T]) Write(value T) {
	if err := c.TryWrite(value); err != nil {
		panic(err)
	}
}

// Update atomically replaces the current value with fn(current).
//
// It panics with a *PoisonError if the cell is poisoned.
func (c *Cell[T]) Update(fn func(T) T) {
	if err := c.TryUpdate(fn); err != nil {
		panic(err)
	}
}

// TryRead returns a copy of the current value, or a *PoisonError if the cell
// is poisoned.
func (c *Cell[T]) TryRead() (T, error) {
	s := c.storage()
	var out T
	var err error
	s.mu.Do(func(v *T, poisoned bool) {
		if poisoned {
			err = c.poisonError("read")
			return
		}
		out = s.copy(*v)
	})
	return out, err
}

// TryWrite replaces the current value with a copy of value, or returns a
// *PoisonError and leaves the stored value untouched if the cell is poisoned.
func (c *Cell[T]) TryWrite(value T) error {
	s := c.storage()
	value = s.copy(value)
	var err error
	s.mu.Do(func(v *T, poisoned bool) {
		if poisoned {
			err = c.poisonError("write")
			return
		}
		*v = value
	})
	return err
}

// TryUpdate atomically replaces the current value with fn(current), or returns
// a *PoisonError if the cell is poisoned.
//
// fn runs with the lock held. It receives the stored value itself rather than
// a copy, so it must not retain it or use this cell. If fn panics the cell is
// poisoned, the stored value is left as fn left it, and the panic propagates.
func (c *Cell[T]) TryUpdate(fn func(T) T) error {
	var err error
	c.storage().mu.Do(func(v *T, poisoned bool) {
		if poisoned {
			err = c.poisonError("update")
			return
		}
		*v = fn(*v)
	})
	return err
}

// IsPoisoned reports whether a goroutine panicked while holding the lock.
//
// It does not acquire the lock.
func (c *Cell[T]) IsPoisoned() bool {
	return c.storage().mu.Poisoned()
}

// String renders the cell without blocking. If the lock is held the value is
// shown as <locked>.
func (c *Cell[T]) String() string {
	var zero T
	name := fmt.Sprintf("Cell[%T]", zero)
	if any(zero) == nil {
		name = "Cell"
	}
	var out string
	if !c.storage().mu.TryDo(func(v *T, poisoned bool) {
		if poisoned {
			out = fmt.Sprintf("%s{%v, poisoned}", name, *v)
		} else {
			out = fmt.Sprintf("%s{%v}", name, *v)
		}
	}) {
		out = name + "{<locked>}"
	}
	return out
}

func (c *Cell[T]) poisonError(op string) *PoisonError[T] {
	return &PoisonError[T]{op: op, storage: c.storage()}
}
