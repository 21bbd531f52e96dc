package btc

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

const defaultTraceLen = 64

// Dispatcher routes envelopes to the worker serving their subsystem.
type Dispatcher struct {
	reg   *Registry
	trace *Trace

	mu     sync.RWMutex
	routes map[Subsystem]*Worker

	attempts uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		reg:    NewRegistry(),
		trace:  NewTrace(defaultTraceLen),
		routes: map[Subsystem]*Worker{},
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// NewWorker creates a worker bound to this dispatcher's registry.
func (d *Dispatcher) NewWorker(name string, queueLen int) (*Worker, error) {
	return NewWorker(name, queueLen, d.reg)
}

// Attach routes the given subsystems to w.
func (d *Dispatcher) Attach(w *Worker, subs ...Subsystem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range subs {
		d.routes[s] = w
	}
}

// Detach removes the routes of the given subsystems.
func (d *Dispatcher) Detach(subs ...Subsystem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range subs {
		delete(d.routes, s)
	}
}

func (d *Dispatcher) Worker(s Subsystem) *Worker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.routes[s]
}

// TransferContext hands m to the worker of m.Subsys. It never blocks; a full
// queue is reported as ErrQueueFull and the envelope is dropped.
func (d *Dispatcher) TransferContext(m Msg) error {
	atomic.AddUint64(&d.attempts, 1)

	w := d.Worker(m.Subsys)
	if w == nil {
		err := errors.Wrapf(ErrNoWorker, "%v", m.Subsys)
		d.trace.add(m, err)
		return err
	}

	err := w.Post(m)
	d.trace.add(m, err)
	return err
}

// Call posts an API call envelope.
func (d *Dispatcher) Call(s Subsystem, act Action, arg interface{}) error {
	return d.TransferContext(Msg{Sig: SigAPICall, Subsys: s, Act: act, Arg: arg})
}

// PostEvent posts an event envelope.
func (d *Dispatcher) PostEvent(s Subsystem, act Action, arg interface{}) error {
	return d.TransferContext(Msg{Sig: SigEvent, Subsys: s, Act: act, Arg: arg})
}

// Activity counts every post attempt, successful or not.
func (d *Dispatcher) Activity() uint64 {
	return atomic.LoadUint64(&d.attempts)
}

// Trace drains the recent post attempts.
func (d *Dispatcher) Trace() []TraceRecord {
	return d.trace.Drain()
}
