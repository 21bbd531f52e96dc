package stack

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/config"
	"github.com/rigado/bthost/hci"
)

// SetConfig replaces the configuration.
func (s *Stack) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// SetTransport sets a ready-made HAL instead of the h5 uart transport.
func (s *Stack) SetTransport(hal interface{}) error {
	h, ok := hal.(hci.HAL)
	if !ok {
		return errors.Wrapf(bthost.ErrInvalidArg, "unknown transport type %T", hal)
	}
	s.hal = h
	return nil
}

// SetTransportH5Uart sets h5 uart path
func (s *Stack) SetTransportH5Uart(path string) error {
	s.cfg.UART.Port = path
	return nil
}

// SetVendor overrides the Realtek vendor library.
func (s *Stack) SetVendor(v interface{}) error {
	vv, ok := v.(Vendor)
	if !ok {
		return errors.Wrapf(bthost.ErrInvalidArg, "unknown vendor type %T", v)
	}
	s.vendor = vv
	return nil
}

// SetQueueLen sets the queue length of the "main", "avrc", "gap" or "h5" worker.
func (s *Stack) SetQueueLen(subsystem string, n int) error {
	if n <= 0 {
		return errors.Wrapf(bthost.ErrInvalidArg, "queue length %d", n)
	}
	switch subsystem {
	case "main":
		s.cfg.Queues.Main = n
	case "avrc":
		s.cfg.Queues.AVRC = n
	case "gap":
		s.cfg.Queues.GAP = n
	case "h5":
		s.cfg.H5.QueueLen = n
	default:
		return errors.Wrapf(bthost.ErrInvalidArg, "unknown subsystem %q", subsystem)
	}
	return nil
}

// SetCommandTimeout sets how long an HCI command waits for its completion
// event. It returns ErrInvalidArg unless d is positive.
func (s *Stack) SetCommandTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.Wrapf(bthost.ErrInvalidArg, "command timeout %v", d)
	}
	s.cmdTimeout = d
	return nil
}

// SetCapture records transport traffic to w.
func (s *Stack) SetCapture(w io.Writer) error {
	s.capture = w
	return nil
}

// SetErrorHandler routes asynchronous HCI errors to handler while the host
// is open. With no handler they are logged.
func (s *Stack) SetErrorHandler(handler func(error)) error {
	s.errorHandler = handler
	return nil
}

// Option sets the options specified.
func (s *Stack) Option(opts ...bthost.Option) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}
	return nil
}
