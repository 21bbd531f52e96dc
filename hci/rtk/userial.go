// Package rtk is the Realtek vendor library: chip power, the HCI UART and
// the bridge turning UART notifications into h5 worker events.
package rtk

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/smallnest/ringbuffer"
)

// Event is a UART driver notification.
type Event int

const (
	EventRead Event = iota + 1
	EventOverflow
)

func (e Event) String() string {
	switch e {
	case EventRead:
		return "read"
	case EventOverflow:
		return "overflow"
	}
	return "unknown"
}

// EventFunc receives UART notifications on the port reader goroutine. It
// must not block.
type EventFunc func(Event)

// Opener opens a serial port.
type Opener func(serial.OpenOptions) (io.ReadWriteCloser, error)

var ErrClosed = errors.New("userial closed")

// Userial owns the HCI UART. A reader goroutine moves received bytes into a
// ring buffer and reports them; Read drains the ring without blocking.
type Userial struct {
	port  string
	rxCap int
	open  Opener
	log   bthost.Logger

	mu      sync.Mutex
	cfg     Cfg
	rwc     io.ReadWriteCloser
	rx      *ringbuffer.RingBuffer
	onEvent EventFunc
	done    chan struct{}
	exited  chan struct{}

	wmu sync.Mutex

	overflows uint64
}

// NewUserial returns a closed port. rxCap is the ring size in bytes.
func NewUserial(port string, rxCap int) *Userial {
	return &Userial{
		port:  port,
		rxCap: rxCap,
		open:  serial.Open,
		log:   bthost.Component("rtk"),
	}
}

// SetOpener replaces serial.Open.
func (u *Userial) SetOpener(o Opener) {
	u.open = o
}

// Open configures and opens the port. Notifications go to onEvent.
func (u *Userial) Open(cfg Cfg, onEvent EventFunc) error {
	rate, ok := BaudToRate(cfg.Baud)
	if !ok {
		return errors.Errorf("userial open: unsupported baud idx %d", cfg.Baud)
	}

	opts := serial.OpenOptions{
		PortName:          u.port,
		BaudRate:          rate,
		RTSCTSFlowControl: cfg.FlowControl,

		// force these
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}

	switch {
	case cfg.Fmt&DataBits8 != 0:
		opts.DataBits = 8
	case cfg.Fmt&DataBits7 != 0:
		opts.DataBits = 7
	case cfg.Fmt&DataBits6 != 0:
		opts.DataBits = 6
	case cfg.Fmt&DataBits5 != 0:
		opts.DataBits = 5
	default:
		return errors.New("userial open: unsupported data bits")
	}

	switch {
	case cfg.Fmt&ParityNone != 0:
		opts.ParityMode = serial.PARITY_NONE
	case cfg.Fmt&ParityEven != 0:
		opts.ParityMode = serial.PARITY_EVEN
	case cfg.Fmt&ParityOdd != 0:
		opts.ParityMode = serial.PARITY_ODD
	default:
		return errors.New("userial open: unsupported parity bit mode")
	}

	switch {
	case cfg.Fmt&StopBits1 != 0:
		opts.StopBits = 1
	case cfg.Fmt&StopBits2 != 0:
		opts.StopBits = 2
	default:
		return errors.New("userial open: unsupported stop bits")
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.rwc != nil {
		return errors.New("userial already open")
	}

	rwc, err := u.open(opts)
	if err != nil {
		return errors.Wrapf(err, "can't open %s", u.port)
	}
	if err := flush(rwc); err != nil {
		u.log.Warn("flush: ", err)
	}

	u.cfg = cfg
	u.rwc = rwc
	u.rx = ringbuffer.New(u.rxCap)
	u.onEvent = onEvent
	u.done = make(chan struct{})
	u.exited = make(chan struct{})

	go u.readLoop(rwc, u.rx, u.done, u.exited)

	u.log.Debugf("opened %s at %d", u.port, rate)
	return nil
}

// Close closes the port and waits for the reader to exit.
func (u *Userial) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.close()
}

func (u *Userial) close() error {
	if u.rwc == nil {
		return nil
	}

	close(u.done)
	err := u.rwc.Close()
	<-u.exited
	u.rwc = nil

	return errors.Wrap(err, "can't close userial")
}

// SetBaud reopens the port at a new rate.
func (u *Userial) SetBaud(b Baud) error {
	if _, ok := BaudToRate(b); !ok {
		return errors.Errorf("unsupported baud idx %d", b)
	}

	u.mu.Lock()
	cfg, cb, open := u.cfg, u.onEvent, u.rwc != nil
	cfg.Baud = b
	u.cfg = cfg
	if open {
		if err := u.close(); err != nil {
			u.log.Warn(err)
		}
	}
	u.mu.Unlock()

	if !open {
		return nil
	}
	return u.Open(cfg, cb)
}

// SetHWFlowControl is applied on the next open.
func (u *Userial) SetHWFlowControl(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cfg.FlowControl = on
}

// Read drains buffered bytes. It returns ringbuffer.ErrIsEmpty when there
// are none.
func (u *Userial) Read(b []byte) (int, error) {
	u.mu.Lock()
	rx := u.rx
	open := u.rwc != nil
	u.mu.Unlock()

	if !open {
		return 0, ErrClosed
	}
	return rx.TryRead(b)
}

// Write sends b on the port.
func (u *Userial) Write(b []byte) (int, error) {
	u.mu.Lock()
	rwc := u.rwc
	u.mu.Unlock()

	if rwc == nil {
		return 0, ErrClosed
	}

	u.wmu.Lock()
	defer u.wmu.Unlock()
	n, err := rwc.Write(b)
	return n, errors.Wrap(err, "can't write userial")
}

// Overflows counts reads that did not fit the ring.
func (u *Userial) Overflows() uint64 {
	return atomic.LoadUint64(&u.overflows)
}

func (u *Userial) readLoop(rwc io.Reader, rx *ringbuffer.RingBuffer, done, exited chan struct{}) {
	defer close(exited)

	tmp := make([]byte, 512)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := rwc.Read(tmp)
		if n > 0 {
			w, werr := rx.Write(tmp[:n])
			ev := EventRead
			if w < n || werr != nil {
				atomic.AddUint64(&u.overflows, 1)
				u.log.Warnf("rx overflow: dropped %d bytes", n-w)
				ev = EventOverflow
			}
			if u.onEvent != nil {
				u.onEvent(ev)
			}
		}

		if err != nil && err != io.EOF {
			select {
			case <-done:
			default:
				u.log.Error("read: ", err)
			}
			return
		}
	}
}
