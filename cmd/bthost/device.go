package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/gap"
	"github.com/rigado/bthost/stack"
)

type device struct {
	s       *stack.Stack
	gap     *gap.Controller
	capture *os.File
}

// openDevice brings the stack up to Enabled and attaches a GAP controller.
func openDevice() (*device, error) {
	opts := []bthost.Option{bthost.OptConfig(cfg)}

	d := &device{}
	if cfg.Capture.File != "" {
		f, err := os.Create(cfg.Capture.File)
		if err != nil {
			return nil, errors.Wrap(err, "can't create capture file")
		}
		d.capture = f
		opts = append(opts, bthost.OptCapture(f))
	}
	opts = append(opts, bthost.OptErrorHandler(func(err error) {
		bthost.Component("cli").Errorf("transport: %v", err)
	}))

	fmt.Printf("Initializing device on %s ...\n", cfg.UART.Port)
	s, err := stack.New(opts...)
	if err != nil {
		d.close()
		return nil, errors.Wrap(err, "can't new stack")
	}
	d.s = s

	if err := s.Init(); err != nil {
		d.close()
		return nil, errors.Wrap(err, "can't init stack")
	}
	if err := s.Enable(); err != nil {
		d.close()
		return nil, errors.Wrap(err, "can't enable stack")
	}
	fmt.Printf("Controller %s\n", s.Address())

	d.gap, err = gap.NewController(s, cfg.PeerStore)
	if err != nil {
		d.close()
		return nil, errors.Wrap(err, "can't new gap controller")
	}
	return d, nil
}

func (d *device) close() {
	if d.s != nil {
		if err := d.s.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}
	if d.capture != nil {
		d.capture.Close()
	}
}
