// Package gap is the BLE GAP API. Calls are validated on the caller's
// goroutine, carried to the GAP worker with owned arguments and executed
// there as HCI commands; completions come back through the registered
// Callback.
package gap

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/btc"
	"github.com/rigado/bthost/hci"
	"github.com/rigado/bthost/hci/evt"
)

// Stack is the part of the lifecycle manager the GAP needs.
type Stack interface {
	CheckEnabled() error
	Dispatcher() *btc.Dispatcher
	Host() *hci.Host
}

type conn struct {
	addr     net.HardwareAddr
	addrType uint8
}

type Controller struct {
	s     Stack
	d     *btc.Dispatcher
	host  *hci.Host
	store *peerStore
	log   bthost.Logger

	mu        sync.Mutex
	name      string
	icon      uint16
	whitelist map[string]struct{}

	// GAP worker only
	conns     map[uint16]conn
	filterDup bool
	scanGen   uint64
	scanTimer *time.Timer
}

// NewController registers the GAP and DEV profiles and the controller event
// handlers. Preferred connection parameters and whitelist entries are kept in
// the JSON file at storePath, or in memory when it is empty.
func NewController(s Stack, storePath string) (*Controller, error) {
	if s == nil {
		return nil, errors.Wrap(bthost.ErrInvalidArg, "gap: stack is required")
	}
	c := &Controller{
		s:         s,
		d:         s.Dispatcher(),
		host:      s.Host(),
		store:     newPeerStore(storePath),
		log:       bthost.Component("gap"),
		whitelist: map[string]struct{}{},
		conns:     map[uint16]conn{},
		filterDup: true,
	}

	reg := c.d.Registry()
	reg.SetProfile(btc.SubsysGapBLE, btc.Profile{Call: c.handleCall, Event: c.handleEvent})
	reg.SetProfile(btc.SubsysDev, btc.Profile{Call: c.handleDevCall})

	c.host.SetSubeventHandler(evt.LEAdvertisingReportSubCode, c.forward(evtAdvReport))
	c.host.SetSubeventHandler(evt.LEConnectionCompleteSubCode, c.forward(evtConnComplete))
	c.host.SetEventHandler(evt.DisconnectionCompleteCode, c.forward(evtDisconnComplete))
	return c, nil
}

// forward moves a controller event from the transport worker to the GAP worker.
func (c *Controller) forward(act btc.Action) hci.Handler {
	return func(b []byte) error {
		return c.d.PostEvent(btc.SubsysGapBLE, act, append([]byte(nil), b...))
	}
}

// RegisterCallback sets the receiver of GAP events. A nil cb clears it.
func (c *Controller) RegisterCallback(cb Callback) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if cb == nil {
		c.d.Registry().SetCallback(btc.SubsysGapBLE, nil)
		return nil
	}
	c.d.Registry().SetCallback(btc.SubsysGapBLE, cb)
	return nil
}

// ConfigAdvData sets the AD structures described by d as advertising data,
// or scan response data when d.SetScanRsp is set. The structures are built on
// the GAP worker with the device name and icon set by earlier calls; if they
// do not fit the completion reports ErrInvalidParameters.
func (c *Controller) ConfigAdvData(d *AdvData) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if d == nil {
		return errors.Wrap(bthost.ErrInvalidArg, "gap: nil adv data")
	}
	if len(d.ServiceUUID)%uuid128Len != 0 {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: service uuid length %d", len(d.ServiceUUID))
	}

	owned := *d
	owned.ManufacturerData = append([]byte(nil), d.ManufacturerData...)
	owned.ServiceData = append([]byte(nil), d.ServiceData...)
	owned.ServiceUUID = append([]byte(nil), d.ServiceUUID...)
	return c.call(actConfigAdvData, dataArg{scanRsp: d.SetScanRsp, ad: &owned})
}

func rawData(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b) > maxRawData {
		return nil, errors.Wrapf(bthost.ErrInvalidArg, "gap: raw data length %d", len(b))
	}
	return append([]byte(nil), b...), nil
}

// ConfigAdvDataRaw sets 1 to 31 bytes of preformatted advertising data.
func (c *Controller) ConfigAdvDataRaw(b []byte) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	owned, err := rawData(b)
	if err != nil {
		return err
	}
	return c.call(actConfigAdvData, dataArg{raw: true, data: owned})
}

// ConfigScanRspDataRaw sets 1 to 31 bytes of preformatted scan response data.
func (c *Controller) ConfigScanRspDataRaw(b []byte) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	owned, err := rawData(b)
	if err != nil {
		return err
	}
	return c.call(actConfigAdvData, dataArg{raw: true, scanRsp: true, data: owned})
}

func (c *Controller) SetScanParams(p *ScanParams) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	return c.call(actSetScanParams, *p)
}

// StartScanning enables scanning. A non-zero duration stops it again
// afterwards and reports ScanStopped.
func (c *Controller) StartScanning(duration time.Duration) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if duration < 0 {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: scan duration %v", duration)
	}
	return c.call(actStartScan, duration)
}

func (c *Controller) StopScanning() error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	return c.call(actStopScan, nil)
}

func (c *Controller) StartAdvertising(p *AdvParams) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	owned := *p
	owned.PeerAddr = append(net.HardwareAddr(nil), p.PeerAddr...)
	return c.call(actStartAdv, owned)
}

func (c *Controller) StopAdvertising() error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	return c.call(actStopAdv, nil)
}

func checkAddr(a net.HardwareAddr) (net.HardwareAddr, error) {
	if len(a) != 6 {
		return nil, errors.Wrapf(bthost.ErrInvalidArg, "gap: device address %v", a)
	}
	return append(net.HardwareAddr(nil), a...), nil
}

// UpdateConnParams asks the controller to change the parameters of the
// connection to p.Addr.
func (c *Controller) UpdateConnParams(p *ConnUpdateParams) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if p == nil || !p.ConnParams.Valid() {
		return errors.Wrap(bthost.ErrInvalidArg, "gap: invalid connection params")
	}
	a, err := checkAddr(p.Addr)
	if err != nil {
		return err
	}
	return c.call(actUpdateConnParams, ConnUpdateParams{Addr: a, ConnParams: p.ConnParams})
}

// SetPktDataLen sets the maximum transmit payload of the connection to addr.
func (c *Controller) SetPktDataLen(addr net.HardwareAddr, txOctets uint16) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	a, err := checkAddr(addr)
	if err != nil {
		return err
	}
	if !inRange(txOctets, txOctetsMin, txOctetsMax) {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: tx octets %d", txOctets)
	}
	return c.call(actSetPktDataLen, pktLenArg{addr: a, txOctets: txOctets})
}

func (c *Controller) SetRandAddr(addr net.HardwareAddr) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	a, err := checkAddr(addr)
	if err != nil {
		return err
	}
	return c.call(actSetRandAddr, a)
}

// ConfigLocalIcon sets the appearance advertised when AdvData has none.
func (c *Controller) ConfigLocalIcon(icon uint16) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if !appearances[icon] {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: appearance 0x%04X", icon)
	}
	return c.call(actConfigLocalIcon, icon)
}

// UpdateWhitelist adds addr to or removes it from the controller whitelist.
func (c *Controller) UpdateWhitelist(add bool, addr net.HardwareAddr) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if addr == nil {
		return errors.Wrap(bthost.ErrInvalidSize, "gap: nil address")
	}
	a, err := checkAddr(addr)
	if err != nil {
		return err
	}
	return c.call(actUpdateWhitelist, whitelistArg{add: add, addr: a})
}

// WhitelistSize returns the number of addresses added through UpdateWhitelist.
func (c *Controller) WhitelistSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.whitelist)
}

// RestoreWhitelist adds every whitelisted peer in the store back to the
// controller, which forgets them on reset.
func (c *Controller) RestoreWhitelist() error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	addrs, err := c.store.Whitelisted()
	if err != nil {
		return errors.Wrapf(bthost.ErrFail, "gap: %v", err)
	}
	for _, s := range addrs {
		a, err := net.ParseMAC(s)
		if err != nil {
			c.log.Warnf("peer store: %v", err)
			continue
		}
		if err := c.call(actUpdateWhitelist, whitelistArg{add: true, addr: a}); err != nil {
			return err
		}
	}
	return nil
}

// SetPreferConnParams remembers the parameters to request whenever addr
// connects. Out of range or inconsistent parameters fail.
func (c *Controller) SetPreferConnParams(addr net.HardwareAddr, p ConnParams) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if !p.Valid() {
		c.log.Errorf("invalid connection params: min_int = %d, max_int = %d, latency = %d, timeout = %d",
			p.IntervalMin, p.IntervalMax, p.Latency, p.Timeout)
		return errors.Wrap(bthost.ErrFail, "gap: invalid connection params")
	}
	a, err := checkAddr(addr)
	if err != nil {
		return err
	}
	return c.call(actSetPreferConnParams, ConnUpdateParams{Addr: a, ConnParams: p})
}

// PreferConnParams returns the stored preferred parameters of addr.
func (c *Controller) PreferConnParams(addr net.HardwareAddr) (ConnParams, bool) {
	p, ok, err := c.store.Load(addr.String())
	if err != nil || !ok || p.ConnParams == nil {
		return ConnParams{}, false
	}
	return *p.ConnParams, true
}

func (c *Controller) ReadRSSI(addr net.HardwareAddr) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	a, err := checkAddr(addr)
	if err != nil {
		return err
	}
	return c.call(actReadRSSI, a)
}

func (c *Controller) Disconnect(addr net.HardwareAddr) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	a, err := checkAddr(addr)
	if err != nil {
		return err
	}
	return c.call(actDisconnect, a)
}

// SetDeviceName writes the local name, at most 32 bytes, through the DEV
// subsystem.
func (c *Controller) SetDeviceName(name string) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if len(name) > maxDeviceName {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: device name %d bytes", len(name))
	}
	if err := c.d.Call(btc.SubsysDev, actSetDeviceName, name); err != nil {
		return errors.Wrapf(bthost.ErrFail, "gap set device name: %v", err)
	}
	return nil
}

// DeviceName returns the last name written to the controller.
func (c *Controller) DeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Controller) call(act btc.Action, arg interface{}) error {
	if err := c.d.Call(btc.SubsysGapBLE, act, arg); err != nil {
		return errors.Wrapf(bthost.ErrFail, "gap %s: %v", actNames[act], err)
	}
	return nil
}
