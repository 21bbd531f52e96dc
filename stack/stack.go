// Package stack owns the lifecycle of the host: the dispatcher workers, the
// vendor library, the transport and the HCI host.
package stack

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/btc"
	"github.com/rigado/bthost/capture"
	"github.com/rigado/bthost/config"
	"github.com/rigado/bthost/hci"
	"github.com/rigado/bthost/hci/h5"
	"github.com/rigado/bthost/hci/rtk"
)

// Vendor is the chip support library driven by the main worker.
type Vendor interface {
	Init(cb *rtk.Callbacks) error
	PowerCtrl(on bool) error
	// FwCfg configures the controller once the UART is open and reports
	// the outcome through Callbacks.FwCfg.
	FwCfg()
	// ScoCfg returns a negative value when SCO routing is unsupported.
	ScoCfg() int
	UserialOpen(onEvent rtk.EventFunc) error
	UserialClose() error
	Port() io.ReadWriter
	Epilog()
	Cleanup()
}

// Main worker actions. Each has its own future slot.
const (
	actInit btc.Action = iota + 1
	actEnable
	actDisable
	actDeinit
)

var actNames = map[btc.Action]string{
	actInit:    "init",
	actEnable:  "enable",
	actDisable: "disable",
	actDeinit:  "deinit",
}

// vendor command starting h5 link establishment
var h5InitCmd = []byte{0xEE, 0xFC, 0x00}

// fwCfgTimeout bounds the wait for the vendor firmware config callback.
const fwCfgTimeout = 10 * time.Second

// Stack is the lifecycle manager. Transitions are serialized; each one blocks
// on the main worker resolving its future.
type Stack struct {
	cfg          config.Config
	log          bthost.Logger
	cmdTimeout   time.Duration
	capture      io.Writer
	errorHandler func(error)

	d      *btc.Dispatcher
	slots  *btc.Slots
	vendor Vendor
	hal    hci.HAL
	h5     *h5.Transport
	host   *hci.Host
	fwCfg  chan rtk.Result

	mu      sync.Mutex
	state   int32
	workers []*btc.Worker
}

// New builds a stack in the Uninitialized state.
func New(opts ...bthost.Option) (*Stack, error) {
	s := &Stack{
		cfg:   config.Default(),
		log:   bthost.Component("stack"),
		d:     btc.NewDispatcher(),
		slots: btc.NewSlots(),
		fwCfg: make(chan rtk.Result, 1),
	}
	if err := s.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	if s.vendor == nil {
		v, err := rtk.NewVendorFromConfig(s.cfg.UART, nil)
		if err != nil {
			return nil, errors.Wrap(err, "can't create vendor")
		}
		s.vendor = v
	}

	if s.hal == nil {
		s.h5 = h5.New(s.d, s.vendor.Port(), s.cfg.H5)
		if s.capture != nil {
			w, err := capture.NewWriter(s.capture)
			if err != nil {
				return nil, errors.Wrap(err, "can't create capture")
			}
			s.h5.SetTap(w)
		}
		s.hal = s.h5
	}

	s.host = hci.NewHost(s.hal)
	if s.cmdTimeout > 0 {
		s.host.SetCommandTimeout(s.cmdTimeout)
	}
	s.host.SetErrorHandler(s.errorHandler)

	s.d.Registry().SetProfile(btc.SubsysMain, btc.Profile{Call: s.handleMain})
	return s, nil
}

// Init starts the workers and initializes the vendor library.
func (s *Stack) Init() error {
	return s.transition(actInit, bthost.StateUninitialized, bthost.StateInitialized)
}

// Enable powers the controller, brings up the transport and resets the controller.
func (s *Stack) Enable() error {
	return s.transition(actEnable, bthost.StateInitialized, bthost.StateEnabled)
}

// Disable closes the transport and powers the controller off.
func (s *Stack) Disable() error {
	return s.transition(actDisable, bthost.StateEnabled, bthost.StateInitialized)
}

// Deinit releases the vendor library and stops the workers.
func (s *Stack) Deinit() error {
	return s.transition(actDeinit, bthost.StateInitialized, bthost.StateUninitialized)
}

// Shutdown walks the stack back to Uninitialized from any state.
func (s *Stack) Shutdown() error {
	if s.Status() == bthost.StateEnabled {
		if err := s.Disable(); err != nil {
			return err
		}
	}
	if s.Status() == bthost.StateInitialized {
		return s.Deinit()
	}
	return nil
}

// Status returns the lifecycle state.
func (s *Stack) Status() bthost.State {
	return bthost.State(atomic.LoadInt32(&s.state))
}

// CheckEnabled gates profile calls.
func (s *Stack) CheckEnabled() error {
	if st := s.Status(); st != bthost.StateEnabled {
		return errors.Wrapf(bthost.ErrInvalidState, "stack is %v", st)
	}
	return nil
}

// Address returns the controller address, or nil unless enabled.
func (s *Stack) Address() net.HardwareAddr {
	if s.Status() != bthost.StateEnabled {
		return nil
	}
	return s.host.Addr()
}

func (s *Stack) Dispatcher() *btc.Dispatcher {
	return s.d
}

func (s *Stack) Host() *hci.Host {
	return s.host
}

func (s *Stack) Config() config.Config {
	return s.cfg
}

// Trace drains the recent dispatcher activity.
func (s *Stack) Trace() []btc.TraceRecord {
	return s.d.Trace()
}

func (s *Stack) transition(act btc.Action, from, to bthost.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.Status(); st != from {
		return errors.Wrapf(bthost.ErrInvalidState, "%s: stack is %v", actNames[act], st)
	}

	if act == actInit {
		if err := s.startWorkers(); err != nil {
			return err
		}
	}

	err := s.call(act)
	switch {
	case err != nil && act == actInit:
		s.stopWorkers()
		return err
	case err != nil:
		return err
	}

	atomic.StoreInt32(&s.state, int32(to))
	s.log.Infof("%s: %v", actNames[act], to)

	if act == actDeinit {
		s.stopWorkers()
	}
	return nil
}

// call posts act to the main worker and waits for its future.
func (s *Stack) call(act btc.Action) error {
	f, err := s.slots.Install(int(act))
	if err != nil {
		return errors.Wrapf(bthost.ErrNoMem, "%s: %v", actNames[act], err)
	}
	defer s.slots.Release(int(act))

	if err := s.d.Call(btc.SubsysMain, act, nil); err != nil {
		return errors.Wrapf(bthost.ErrFail, "%s: %v", actNames[act], err)
	}

	if f.Await() != btc.Success {
		return errors.Wrapf(bthost.ErrFail, "%s: %v", actNames[act], f.Value())
	}
	return nil
}

func (s *Stack) startWorkers() error {
	type spec struct {
		name string
		qlen int
		subs []btc.Subsystem
	}
	specs := []spec{
		{"main", s.cfg.Queues.Main, []btc.Subsystem{btc.SubsysMain}},
		{"avrc", s.cfg.Queues.AVRC, []btc.Subsystem{btc.SubsysAVRC}},
		{"gap", s.cfg.Queues.GAP, []btc.Subsystem{btc.SubsysGapBLE, btc.SubsysDev}},
	}

	for _, sp := range specs {
		w, err := s.d.NewWorker(sp.name, sp.qlen)
		if err != nil {
			s.stopWorkers()
			return errors.Wrapf(bthost.ErrNoMem, "%s worker: %v", sp.name, err)
		}
		if err := w.Start(); err != nil {
			s.stopWorkers()
			return errors.Wrapf(bthost.ErrFail, "%s worker: %v", sp.name, err)
		}
		s.d.Attach(w, sp.subs...)
		s.workers = append(s.workers, w)
	}
	return nil
}

func (s *Stack) stopWorkers() {
	s.d.Detach(btc.SubsysMain, btc.SubsysAVRC, btc.SubsysGapBLE, btc.SubsysDev)
	for _, w := range s.workers {
		w.Stop()
	}
	s.workers = nil
}

func (s *Stack) handleMain(m *btc.Msg) {
	var err error
	switch m.Act {
	case actInit:
		err = s.vendor.Init(&rtk.Callbacks{
			FwCfg:  s.fwCfgDone,
			Epilog: func(r rtk.Result) { s.log.Debugf("epilog: %v", r) },
		})
	case actEnable:
		err = s.enable()
	case actDisable:
		err = s.disable()
	case actDeinit:
		s.vendor.Cleanup()
	default:
		err = fmt.Errorf("unknown action %d", m.Act)
	}

	f := s.slots.Get(int(m.Act))
	if f == nil {
		s.log.Errorf("%s: no future waiting", actNames[m.Act])
		return
	}
	if err != nil {
		s.log.Errorf("%s failed: %v", actNames[m.Act], err)
		f.Resolve(btc.Fail, err)
		return
	}
	f.Ready(btc.Success)
}

func (s *Stack) enable() error {
	if err := s.vendor.PowerCtrl(true); err != nil {
		return err
	}

	var recv rtk.Receiver = nopReceiver{}
	if r, ok := s.hal.(rtk.Receiver); ok {
		recv = r
	}
	if err := s.vendor.UserialOpen(rtk.Bridge(recv)); err != nil {
		s.powerOff()
		return errors.Wrap(err, "userial open")
	}

	if err := s.configureFirmware(); err != nil {
		s.closeUserial()
		s.powerOff()
		return err
	}

	if err := s.host.Open(); err != nil {
		s.closeUserial()
		s.powerOff()
		return err
	}

	if n := s.hal.TransmitData(hci.DataTypeCommand, h5InitCmd); n != len(h5InitCmd) {
		s.disable()
		return errors.New("h5 link establishment failed")
	}

	if err := s.host.Init(); err != nil {
		s.disable()
		return errors.Wrap(err, "hci init")
	}

	if s.vendor.ScoCfg() < 0 {
		s.log.Debug("sco routing unsupported")
	}
	s.vendor.Epilog()
	return nil
}

// fwCfgDone receives the vendor firmware config result, on whatever
// goroutine the vendor reports it.
func (s *Stack) fwCfgDone(r rtk.Result) {
	select {
	case s.fwCfg <- r:
	default:
		s.log.Warnf("unexpected fw cfg result: %v", r)
	}
}

// configureFirmware runs the vendor firmware config step and waits for its
// callback.
func (s *Stack) configureFirmware() error {
	// drop a result left over from an earlier, timed out enable
	select {
	case <-s.fwCfg:
	default:
	}

	s.vendor.FwCfg()

	t := time.NewTimer(fwCfgTimeout)
	defer t.Stop()
	select {
	case r := <-s.fwCfg:
		if r != rtk.ResultSuccess {
			return errors.Errorf("fw cfg: %v", r)
		}
		return nil
	case <-t.C:
		return errors.Errorf("fw cfg: no result after %v", fwCfgTimeout)
	}
}

func (s *Stack) disable() error {
	if err := s.host.Close(); err != nil {
		s.log.Warn(err)
	}
	s.closeUserial()
	return s.powerOff()
}

func (s *Stack) closeUserial() {
	if err := s.vendor.UserialClose(); err != nil {
		s.log.Warn(err)
	}
}

func (s *Stack) powerOff() error {
	return s.vendor.PowerCtrl(false)
}

type nopReceiver struct{}

func (nopReceiver) RecvAvailable() error { return nil }
