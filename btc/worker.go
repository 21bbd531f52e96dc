package btc

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
)

var (
	ErrQueueFull  = errors.New("queue full")
	ErrNotRunning = errors.New("worker not running")
	ErrNoWorker   = errors.New("no worker for subsystem")
)

// Worker owns one bounded FIFO queue and drains it on a single goroutine.
type Worker struct {
	name string
	q    chan Msg
	reg  *Registry
	log  bthost.Logger

	running int32
	exited  chan struct{}
	cmu     sync.Mutex

	posted    uint64
	delivered uint64
	dropped   uint64
}

// NewWorker allocates the queue of a worker. It does not start it.
func NewWorker(name string, queueLen int, reg *Registry) (*Worker, error) {
	if queueLen <= 0 {
		return nil, errors.Wrapf(bthost.ErrNoMem, "worker %s: queue length %d", name, queueLen)
	}
	if reg == nil {
		return nil, errors.Wrapf(bthost.ErrInvalidArg, "worker %s: nil registry", name)
	}

	return &Worker{
		name:   name,
		q:      make(chan Msg, queueLen),
		reg:    reg,
		log:    bthost.Component("btc").ChildLogger(map[string]interface{}{"worker": name}),
		exited: make(chan struct{}),
	}, nil
}

func (w *Worker) Name() string {
	return w.name
}

// Start launches the loop. Starting a running or stopped worker is an error.
func (w *Worker) Start() error {
	w.cmu.Lock()
	defer w.cmu.Unlock()

	select {
	case <-w.exited:
		return errors.Errorf("worker %s already stopped", w.name)
	default:
	}

	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return errors.Errorf("worker %s already running", w.name)
	}
	go w.loop()
	return nil
}

// Post enqueues m without blocking. It is safe from any goroutine, including
// driver callbacks that must not block.
func (w *Worker) Post(m Msg) error {
	if atomic.LoadInt32(&w.running) == 0 {
		return ErrNotRunning
	}

	select {
	case w.q <- m:
		atomic.AddUint64(&w.posted, 1)
		return nil
	default:
		atomic.AddUint64(&w.dropped, 1)
		return ErrQueueFull
	}
}

// Stop clears the run flag, wakes the loop and waits for it to exit.
// Envelopes still queued are discarded. Must not be called from the worker itself.
func (w *Worker) Stop() {
	w.cmu.Lock()
	defer w.cmu.Unlock()

	if !atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		return
	}

	select {
	case w.q <- Msg{Sig: sigWake}:
	case <-w.exited:
	}
	<-w.exited

	w.log.Debugf("stopped, %d posted %d delivered %d dropped", w.Posted(), w.Delivered(), w.Dropped())
}

func (w *Worker) Running() bool {
	return atomic.LoadInt32(&w.running) == 1
}

func (w *Worker) Posted() uint64    { return atomic.LoadUint64(&w.posted) }
func (w *Worker) Delivered() uint64 { return atomic.LoadUint64(&w.delivered) }
func (w *Worker) Dropped() uint64   { return atomic.LoadUint64(&w.dropped) }

func (w *Worker) loop() {
	defer close(w.exited)

	for {
		m := <-w.q
		if atomic.LoadInt32(&w.running) == 0 {
			return
		}
		if m.Sig == sigWake {
			continue
		}
		w.dispatch(&m)
	}
}

func (w *Worker) dispatch(m *Msg) {
	atomic.AddUint64(&w.delivered, 1)

	p, ok := w.reg.Profile(m.Subsys)
	if !ok {
		w.log.Errorf("no profile for %v, dropping %v", m.Subsys, m)
		return
	}

	switch m.Sig {
	case SigAPICall:
		if p.Call != nil {
			p.Call(m)
			return
		}
	case SigEvent:
		if p.Event != nil {
			p.Event(m)
			return
		}
	}
	w.log.Warnf("unhandled %v", m)
}
