package bthost

import (
	"io"
	"time"

	"github.com/rigado/bthost/config"
)

// StackOption is an interface which the stack should implement to allow using configuration options
type StackOption interface {
	SetConfig(cfg config.Config) error
	SetTransport(hal interface{}) error
	SetTransportH5Uart(path string) error
	SetVendor(v interface{}) error
	SetQueueLen(subsystem string, n int) error
	SetCommandTimeout(time.Duration) error
	SetCapture(w io.Writer) error
	SetErrorHandler(handler func(error)) error
}

// An Option is a configuration function, which configures the stack.
type Option func(StackOption) error

// OptConfig applies uart, h5 and queue settings.
func OptConfig(cfg config.Config) Option {
	return func(opt StackOption) error {
		return opt.SetConfig(cfg)
	}
}

// OptTransport sets a ready-made HCI HAL backend.
func OptTransport(hal interface{}) Option {
	return func(opt StackOption) error {
		return opt.SetTransport(hal)
	}
}

// OptTransportH5Uart sets h5 uart path
func OptTransportH5Uart(path string) Option {
	return func(opt StackOption) error {
		return opt.SetTransportH5Uart(path)
	}
}

// OptVendor overrides the vendor library driving power and the serial port.
func OptVendor(v interface{}) Option {
	return func(opt StackOption) error {
		return opt.SetVendor(v)
	}
}

// OptQueueLen sets the queue length of a subsystem worker ("main", "avrc", "gap").
func OptQueueLen(subsystem string, n int) Option {
	return func(opt StackOption) error {
		return opt.SetQueueLen(subsystem, n)
	}
}

// OptCommandTimeout sets how long the host waits for a command complete.
func OptCommandTimeout(d time.Duration) Option {
	return func(opt StackOption) error {
		return opt.SetCommandTimeout(d)
	}
}

// OptCapture records every HCI packet crossing the transport to w.
func OptCapture(w io.Writer) Option {
	return func(opt StackOption) error {
		return opt.SetCapture(w)
	}
}

// OptErrorHandler sets error handler
func OptErrorHandler(handler func(error)) Option {
	return func(opt StackOption) error {
		return opt.SetErrorHandler(handler)
	}
}
