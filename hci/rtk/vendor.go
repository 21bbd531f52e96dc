package rtk

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/config"
)

// Result is reported to vendor callbacks.
type Result int

const (
	ResultSuccess Result = iota
	ResultFail
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFail:
		return "fail"
	}
	return "unknown"
}

// Callbacks are invoked when asynchronous vendor operations finish.
type Callbacks struct {
	FwCfg  func(Result)
	Epilog func(Result)
}

// PowerSwitch drives the controller's power pin.
type PowerSwitch interface {
	SetBluetoothPower(on bool) error
}

type nopPower struct {
	log bthost.Logger
}

func (p nopPower) SetBluetoothPower(on bool) error {
	p.log.Debugf("bluetooth power %v", on)
	return nil
}

// InitCfg is the line configuration the controller boots with.
var InitCfg = Cfg{
	Fmt:         DataBits8 | ParityEven | StopBits1,
	Baud:        Baud115200,
	FlowControl: false,
}

// Vendor is the Realtek vendor library.
type Vendor struct {
	uart  *Userial
	power PowerSwitch
	cfg   Cfg
	log   bthost.Logger
	cbs   *Callbacks

	powerOffDelay time.Duration
	powerOnDelay  time.Duration
}

// NewVendor returns a vendor library driving u. A nil power switch only
// logs power changes.
func NewVendor(u *Userial, power PowerSwitch) *Vendor {
	v := &Vendor{
		uart:          u,
		power:         power,
		cfg:           InitCfg,
		log:           bthost.Component("rtk"),
		powerOffDelay: 300 * time.Millisecond,
		powerOnDelay:  500 * time.Millisecond,
	}
	if v.power == nil {
		v.power = nopPower{log: v.log}
	}
	return v
}

// NewVendorFromConfig opens the UART named by cfg with its line settings.
func NewVendorFromConfig(cfg config.UART, power PowerSwitch) (*Vendor, error) {
	f, err := NewFormat(cfg.DataBits, cfg.Parity, cfg.StopBits)
	if err != nil {
		return nil, err
	}
	b, err := RateToBaud(cfg.Baud)
	if err != nil {
		return nil, err
	}

	v := NewVendor(NewUserial(cfg.Port, cfg.RxBuffer), power)
	v.cfg = Cfg{Fmt: f, Baud: b, FlowControl: cfg.FlowControl}
	return v, nil
}

// SetPowerDelays overrides the settle times after power changes.
func (v *Vendor) SetPowerDelays(off, on time.Duration) {
	v.powerOffDelay, v.powerOnDelay = off, on
}

// Userial returns the UART.
func (v *Vendor) Userial() *Userial {
	return v.uart
}

// Port is the byte stream carried by the UART.
func (v *Vendor) Port() io.ReadWriter {
	return v.uart
}

// Init stores the callbacks. It fails without them.
func (v *Vendor) Init(cb *Callbacks) error {
	v.log.Debug("init")
	if cb == nil {
		return errors.New("init failed with no user callbacks")
	}
	v.cbs = cb
	return nil
}

// PowerCtrl switches the controller and waits for it to settle.
func (v *Vendor) PowerCtrl(on bool) error {
	if err := v.power.SetBluetoothPower(on); err != nil {
		return errors.Wrap(err, "power ctrl")
	}
	if on {
		time.Sleep(v.powerOnDelay)
		v.log.Debugf("set power on and delay %v", v.powerOnDelay)
	} else {
		time.Sleep(v.powerOffDelay)
		v.log.Debugf("set power off and delay %v", v.powerOffDelay)
	}
	return nil
}

// FwCfg brings the line to its operational settings. The controller boots
// from flash, so there is no firmware to download; when hardware flow
// control is configured the port is reopened with it. The outcome is
// reported through Callbacks.FwCfg.
func (v *Vendor) FwCfg() {
	r := ResultSuccess
	if v.cfg.FlowControl {
		v.uart.SetHWFlowControl(true)
		if err := v.uart.SetBaud(v.cfg.Baud); err != nil {
			v.log.Errorf("fw cfg: %v", err)
			r = ResultFail
		}
	}

	if v.cbs != nil && v.cbs.FwCfg != nil {
		v.cbs.FwCfg(r)
	}
}

// ScoCfg is unsupported and always returns -1.
func (v *Vendor) ScoCfg() int {
	return -1
}

// UserialOpen opens the UART with the boot configuration: the configured
// format and rate, flow control off.
func (v *Vendor) UserialOpen(onEvent EventFunc) error {
	boot := v.cfg
	boot.FlowControl = false
	return v.uart.Open(boot, onEvent)
}

func (v *Vendor) UserialClose() error {
	return v.uart.Close()
}

// Epilog reports the end of vendor setup.
func (v *Vendor) Epilog() {
	if v.cbs != nil && v.cbs.Epilog != nil {
		v.cbs.Epilog(ResultSuccess)
	}
}

// Cleanup drops the callbacks.
func (v *Vendor) Cleanup() {
	v.log.Debug("cleanup")
	v.cbs = nil
}
