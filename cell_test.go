package sharedcell

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestReadWrite(t *testing.T) {
	t.Parallel()
	c := New(10)
	assert.Equal(t, 10, c.Read())

	c.Write(20)
	assert.Equal(t, 20, c.Read())
}

func TestTryReadWrite(t *testing.T) {
	t.Parallel()
	c := New(1)

	value, err := c.TryRead()
	assert.NoError(t, err)
	assert.Equal(t, 1, value)

	err = c.TryWrite(2)
	assert.NoError(t, err)

	value, err = c.TryRead()
	assert.NoError(t, err)
	assert.Equal(t, 2, value)
}

func TestCloneSharesStorage(t *testing.T) {
	t.Parallel()
	c := New(0)
	clone := c.Clone()

	c.Write(5)
	assert.Equal(t, 5, clone.Read())

	clone.Write(7)
	assert.Equal(t, 7, c.Read())
}

func TestFrom(t *testing.T) {
	t.Parallel()
	c := From("hello")
	assert.Equal(t, "hello", c.Read())
}

func TestRepeatedReadsAreEqual(t *testing.T) {
	t.Parallel()
	c := New(map[string][]int{"a": {1, 2}, "b": {3}})
	assert.Equal(t, c.Read(), c.Read())
}

func TestReadIsDetached(t *testing.T) {
	t.Parallel()
	type config struct {
		Names []string
		Ports map[string]int
		Next  *config
	}
	c := New(config{
		Names: []string{"a"},
		Ports: map[string]int{"http": 80},
		Next:  &config{Names: []string{"b"}},
	})

	got := c.Read()
	got.Names[0] = "mutated"
	got.Ports["http"] = 8080
	got.Next.Names[0] = "mutated"

	again := c.Read()
	assert.Equal(t, "a", again.Names[0])
	assert.Equal(t, 80, again.Ports["http"])
	assert.Equal(t, "b", again.Next.Names[0])
}

func TestWriteIsDetached(t *testing.T) {
	t.Parallel()
	names := []string{"a", "b"}
	c := New([]string{})
	c.Write(names)
	names[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, c.Read())

	initial := []string{"x"}
	c = New(initial)
	initial[0] = "mutated"
	assert.Equal(t, []string{"x"}, c.Read())
}

type clonedValue struct {
	clones *int
	value  int
}

func (c clonedValue) Clone() clonedValue {
	*c.clones++
	return c
}

func TestCloner(t *testing.T) {
	t.Parallel()
	var clones int
	c := New(clonedValue{clones: &clones, value: 1})
	assert.Equal(t, 1, clones)
	assert.Equal(t, 1, c.Read().value)
	assert.Equal(t, 2, clones)
	c.Write(clonedValue{clones: &clones, value: 2})
	assert.Equal(t, 3, clones)
}

func TestWithCopy(t *testing.T) {
	t.Parallel()
	var copies int
	c := New([]int{1}, WithCopy(func(v []int) []int {
		copies++
		return v
	}))
	_ = c.Read()
	c.Write([]int{2})
	assert.Equal(t, 3, copies)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	c := New([]string{"a"})
	c.Update(func(v []string) []string { return append(v, "b") })
	assert.Equal(t, []string{"a", "b"}, c.Read())

	err := c.TryUpdate(func(v []string) []string { return v[:1] })
	assert.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.Read())
}

func TestHandles(t *testing.T) {
	t.Parallel()
	c := New(0)
	assert.Equal(t, 1, c.Handles())
	clone := c.Clone()
	assert.Equal(t, 2, c.Handles())
	assert.Equal(t, 2, clone.Handles())
	other := New(0)
	assert.Equal(t, 1, other.Handles())
	runtime.KeepAlive(c)
	runtime.KeepAlive(clone)
}

func TestHandlesReleasedOnCollection(t *testing.T) {
	c := New(0)
	func() {
		for range 10 {
			_ = c.Clone()
		}
	}()
	deadline := time.Now().Add(5 * time.Second)
	for c.Handles() > 1 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, c.Handles())
}

func TestString(t *testing.T) {
	t.Parallel()
	c := New(5)
	assert.Equal(t, "Cell[int]{5}", c.String())

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Update(func(v int) int {
			close(held)
			<-release
			return v
		})
	}()
	<-held
	assert.Equal(t, "Cell[int]{<locked>}", c.String())
	close(release)
	<-done

	poison(t, c)
	assert.Equal(t, "Cell[int]{5, poisoned}", c.String())
}

// Each worker repeatedly reads, increments and writes. The compound step is
// not atomic so increments can be lost, but every individual read and write is
// serialised.
func TestConcurrentModify(t *testing.T) {
	t.Parallel()
	c := New(0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	iterations := 0
	for range 10 {
		wg.Add(1)
		handle := c.Clone()
		go func() {
			defer wg.Done()
			n := 0
			start := time.Now()
			for time.Since(start) < 200*time.Millisecond {
				handle.Write(handle.Read() + 1)
				n++
			}
			mu.Lock()
			iterations += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	final := c.Read()
	assert.True(t, final > 0, "final value %d", final)
	assert.True(t, final <= iterations, "final value %d exceeds %d iterations", final, iterations)
}

func TestConcurrentUpdateLosesNothing(t *testing.T) {
	t.Parallel()
	c := New(0)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		handle := c.Clone()
		go func() {
			defer wg.Done()
			for range 1000 {
				handle.Update(func(v int) int { return v + 1 })
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10000, c.Read())
}

func TestNotPoisoned(t *testing.T) {
	t.Parallel()
	c := New(0)
	assert.False(t, c.IsPoisoned())
	c.Write(1)
	_ = c.Read()
	assert.False(t, c.IsPoisoned())
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	c := New(0)
	poison(t, c)
	_, err := c.TryRead()
	assert.EqualError(t, err, "sharedcell: read: lock poisoned: a goroutine panicked while holding the mutex")
	assert.True(t, errors.Is(err, ErrPoisoned))
}

func TestZeroCell(t *testing.T) {
	t.Parallel()
	var c Cell[int]
	assert.Equal(t, 0, c.Read())
	assert.False(t, c.IsPoisoned())
	assert.Equal(t, "Cell[int]{0}", c.String())

	c.Write(3)
	clone := c.Clone()
	assert.Equal(t, 3, clone.Read())
	clone.Write(4)
	value, err := c.TryRead()
	assert.NoError(t, err)
	assert.Equal(t, 4, value)
	assert.Equal(t, 2, c.Handles())
	runtime.KeepAlive(clone)
}

func TestZeroCellAsField(t *testing.T) {
	t.Parallel()
	type service struct {
		hits Cell[int]
		tags Cell[[]string]
	}
	svc := &service{}
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.hits.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, svc.hits.Read())
	assert.True(t, svc.tags.Read() == nil)
}
