package btc

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Result is the state of a Future.
type Result int32

const (
	Pending Result = iota
	Success
	Fail
)

func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Fail:
		return "fail"
	}
	return "unknown"
}

// Future is a oneshot completion handle. The worker resolves it once and a
// single caller waits on it from another goroutine.
type Future struct {
	claimed int32
	state   int32
	value   interface{}
	done    chan struct{}
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve completes the future. Resolving twice is a programming error and panics.
func (f *Future) Resolve(r Result, v interface{}) {
	if r != Success && r != Fail {
		panic("btc: future resolved with " + r.String())
	}
	if !atomic.CompareAndSwapInt32(&f.claimed, 0, 1) {
		panic("btc: future resolved twice")
	}
	f.value = v
	atomic.StoreInt32(&f.state, int32(r))
	close(f.done)
}

// Ready resolves without a value.
func (f *Future) Ready(r Result) {
	f.Resolve(r, nil)
}

// Await blocks until the future is resolved. There is no timeout: the
// resolving worker must always complete it, failure included. Never call it
// from the worker that resolves f.
func (f *Future) Await() Result {
	<-f.done
	return Result(atomic.LoadInt32(&f.state))
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// State returns Pending until the future is resolved.
func (f *Future) State() Result {
	return Result(atomic.LoadInt32(&f.state))
}

// Value returns the value passed to Resolve; nil while pending.
func (f *Future) Value() interface{} {
	select {
	case <-f.done:
		return f.value
	default:
		return nil
	}
}

// ErrSlotBusy is returned when a slot still holds an unresolved future.
var ErrSlotBusy = errors.New("future slot busy")

// Slots holds futures at well known indices, one per synchronous operation kind.
type Slots struct {
	mu sync.Mutex
	m  map[int]*Future
}

func NewSlots() *Slots {
	return &Slots{m: map[int]*Future{}}
}

// Install puts a fresh future in slot k.
func (s *Slots) Install(k int) (*Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.m[k]; ok && f.State() == Pending {
		return nil, ErrSlotBusy
	}
	f := NewFuture()
	s.m[k] = f
	return f, nil
}

// Get returns the future in slot k, or nil.
func (s *Slots) Get(k int) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[k]
}

// Release clears slot k after its waiter returned.
func (s *Slots) Release(k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}
