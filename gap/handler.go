package gap

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost/btc"
	"github.com/rigado/bthost/gap/adv"
	"github.com/rigado/bthost/hci"
	"github.com/rigado/bthost/hci/cmd"
	"github.com/rigado/bthost/hci/evt"
	"github.com/rigado/bthost/sliceops"
)

const (
	actConfigAdvData btc.Action = iota + 1
	actSetScanParams
	actStartScan
	actStopScan
	actStartAdv
	actStopAdv
	actUpdateConnParams
	actSetPktDataLen
	actSetRandAddr
	actConfigLocalIcon
	actUpdateWhitelist
	actSetPreferConnParams
	actReadRSSI
	actDisconnect
	actSetDeviceName

	evtAdvReport
	evtConnComplete
	evtDisconnComplete
	evtScanTimeout
)

var actNames = map[btc.Action]string{
	actConfigAdvData:       "config adv data",
	actSetScanParams:       "set scan params",
	actStartScan:           "start scan",
	actStopScan:            "stop scan",
	actStartAdv:            "start adv",
	actStopAdv:             "stop adv",
	actUpdateConnParams:    "update conn params",
	actSetPktDataLen:       "set pkt data len",
	actSetRandAddr:         "set rand addr",
	actConfigLocalIcon:     "config local icon",
	actUpdateWhitelist:     "update whitelist",
	actSetPreferConnParams: "set prefer conn params",
	actReadRSSI:            "read rssi",
	actDisconnect:          "disconnect",
	actSetDeviceName:       "set device name",
	evtAdvReport:           "adv report",
	evtConnComplete:        "conn complete",
	evtDisconnComplete:     "disconn complete",
	evtScanTimeout:         "scan timeout",
}

// dataArg carries raw data, or ad to build it from.
type dataArg struct {
	raw     bool
	scanRsp bool
	data    []byte
	ad      *AdvData
}

type pktLenArg struct {
	addr     net.HardwareAddr
	txOctets uint16
}

type whitelistArg struct {
	add  bool
	addr net.HardwareAddr
}

// status maps a Send error to the HCI status reported in events.
func status(err error) uint8 {
	if err == nil {
		return 0
	}
	if code, ok := errors.Cause(err).(hci.ErrCommand); ok {
		return uint8(code)
	}
	return uint8(hci.ErrUnspecified)
}

func (c *Controller) emit(e Event) {
	cb, _ := c.d.Registry().Callback(btc.SubsysGapBLE).(Callback)
	if cb == nil {
		return
	}
	cb(e)
}

func (c *Controller) handle(addr net.HardwareAddr) (uint16, bool) {
	for h, cn := range c.conns {
		if cn.addr.String() == addr.String() {
			return h, true
		}
	}
	return 0, false
}

func (c *Controller) handleCall(m *btc.Msg) {
	switch m.Act {
	case actConfigAdvData:
		a := m.Arg.(dataArg)
		err := c.setData(a)
		if err != nil {
			c.log.Errorf("%s: %v", actNames[m.Act], err)
		}
		if a.scanRsp {
			c.emit(ScanRspDataSet{Status: status(err), Raw: a.raw})
		} else {
			c.emit(AdvDataSet{Status: status(err), Raw: a.raw})
		}

	case actSetScanParams:
		p := m.Arg.(ScanParams)
		err := c.host.Send(&cmd.LESetScanParameters{
			LEScanType:           uint8(p.Type),
			LEScanInterval:       p.Interval,
			LEScanWindow:         p.Window,
			OwnAddressType:       p.OwnAddrType,
			ScanningFilterPolicy: p.FilterPolicy,
		}, nil)
		if err == nil {
			c.filterDup = p.FilterDuplicates
		}
		c.emit(ScanParamsSet{Status: status(err)})

	case actStartScan:
		c.startScan(m.Arg.(time.Duration))

	case actStopScan:
		c.stopScan()

	case actStartAdv:
		c.emit(AdvStarted{Status: status(c.startAdv(m.Arg.(AdvParams)))})

	case actStopAdv:
		err := c.host.Send(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0}, nil)
		c.emit(AdvStopped{Status: status(err)})

	case actUpdateConnParams:
		p := m.Arg.(ConnUpdateParams)
		c.emit(ConnParamsUpdated{Status: c.updateConn(p.Addr, p.ConnParams), Addr: p.Addr})

	case actSetPktDataLen:
		a := m.Arg.(pktLenArg)
		c.emit(PktDataLenSet{Status: c.setPktDataLen(a), Addr: a.addr, TxOctets: a.txOctets})

	case actSetRandAddr:
		a := m.Arg.(net.HardwareAddr)
		w, _ := sliceops.WireAddr(a)
		err := c.host.Send(&cmd.LESetRandomAddress{RandomAddress: w}, nil)
		c.emit(RandAddrSet{Status: status(err)})

	case actConfigLocalIcon:
		c.mu.Lock()
		c.icon = m.Arg.(uint16)
		c.mu.Unlock()

	case actUpdateWhitelist:
		a := m.Arg.(whitelistArg)
		c.emit(WhitelistUpdated{Status: c.updateWhitelist(a), Add: a.add, Addr: a.addr})

	case actSetPreferConnParams:
		p := m.Arg.(ConnUpdateParams)
		c.setPreferConnParams(p)

	case actReadRSSI:
		a := m.Arg.(net.HardwareAddr)
		e := RSSIRead{Addr: a, Status: uint8(hci.ErrConnID)}
		if h, ok := c.handle(a); ok {
			rp := cmd.ReadRSSIRP{}
			err := c.host.Send(&cmd.ReadRSSI{Handle: h}, &rp)
			e.Status, e.RSSI = status(err), rp.RSSI
		}
		c.emit(e)

	case actDisconnect:
		a := m.Arg.(net.HardwareAddr)
		h, ok := c.handle(a)
		if !ok {
			c.log.Warnf("disconnect: %v not connected", a)
			return
		}
		err := c.host.Send(&cmd.Disconnect{ConnectionHandle: h, Reason: disconnectReason}, nil)
		if err != nil {
			c.log.Errorf("disconnect %v: %v", a, err)
		}

	default:
		c.log.Errorf("unknown action %d", m.Act)
	}
}

func (c *Controller) handleDevCall(m *btc.Msg) {
	if m.Act != actSetDeviceName {
		c.log.Errorf("unknown dev action %d", m.Act)
		return
	}

	name := m.Arg.(string)
	var cn cmd.WriteLocalName
	copy(cn.LocalName[:], name)
	err := c.host.Send(&cn, nil)
	if err == nil {
		c.mu.Lock()
		c.name = name
		c.mu.Unlock()
	}
	c.emit(DeviceNameSet{Status: status(err)})
}

func (c *Controller) handleEvent(m *btc.Msg) {
	var err error
	switch m.Act {
	case evtAdvReport:
		err = c.handleAdvReport(evt.LEAdvertisingReport(m.Arg.([]byte)))
	case evtConnComplete:
		err = c.handleConnComplete(evt.LEConnectionComplete(m.Arg.([]byte)))
	case evtDisconnComplete:
		c.handleDisconnComplete(evt.DisconnectionComplete(m.Arg.([]byte)))
	case evtScanTimeout:
		if m.Arg.(uint64) == c.scanGen && c.scanTimer != nil {
			c.scanTimer = nil
			c.stopScan()
		}
	default:
		err = fmt.Errorf("unknown event %d", m.Act)
	}
	if err != nil {
		c.log.Warnf("%s: %v", actNames[m.Act], err)
	}
}

func (c *Controller) setData(a dataArg) error {
	if a.ad != nil {
		b, err := c.buildAdvData(a.ad)
		if err != nil {
			c.log.Errorf("adv data: %v", err)
			return hci.ErrInvalidParameters
		}
		a.data = b
	}

	if a.scanRsp {
		sr := cmd.LESetScanResponseData{ScanResponseDataLength: uint8(len(a.data))}
		copy(sr.ScanResponseData[:], a.data)
		return c.host.Send(&sr, nil)
	}
	ad := cmd.LESetAdvertisingData{AdvertisingDataLength: uint8(len(a.data))}
	copy(ad.AdvertisingData[:], a.data)
	return c.host.Send(&ad, nil)
}

func (c *Controller) buildAdvData(d *AdvData) ([]byte, error) {
	var fields []adv.Field
	if d.Flag != 0 {
		fields = append(fields, adv.Flags(d.Flag))
	}
	if d.IncludeName {
		if n := c.DeviceName(); n != "" {
			fields = append(fields, adv.CompleteName(n))
		}
	}
	if d.IncludeTxPower {
		fields = append(fields, adv.TxPower(d.TxPower))
	}
	if d.MinInterval != 0 || d.MaxInterval != 0 {
		fields = append(fields, adv.ConnIntervalRange(d.MinInterval, d.MaxInterval))
	}

	appearance := d.Appearance
	if appearance == 0 {
		c.mu.Lock()
		appearance = c.icon
		c.mu.Unlock()
	}
	if appearance != 0 {
		fields = append(fields, adv.Appearance(appearance))
	}

	if len(d.ManufacturerData) > 0 {
		fields = append(fields, adv.ManufacturerDataRaw(d.ManufacturerData))
	}
	if len(d.ServiceData) > 0 {
		fields = append(fields, adv.ServiceDataRaw(d.ServiceData))
	}
	for i := 0; i < len(d.ServiceUUID); i += uuid128Len {
		fields = append(fields, adv.AllUUID(adv.UUID(d.ServiceUUID[i:i+uuid128Len])))
	}

	p, err := adv.NewPacket(fields...)
	if err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

func (c *Controller) startScan(d time.Duration) {
	c.cancelScanTimer()

	err := c.host.Send(&cmd.LESetScanEnable{LEScanEnable: 1, FilterDuplicates: boolByte(c.filterDup)}, nil)
	c.emit(ScanStarted{Status: status(err)})
	if err != nil || d == 0 {
		return
	}

	gen := c.scanGen
	c.scanTimer = time.AfterFunc(d, func() {
		if err := c.d.PostEvent(btc.SubsysGapBLE, evtScanTimeout, gen); err != nil {
			c.log.Errorf("scan timeout: %v", err)
		}
	})
}

func (c *Controller) stopScan() {
	c.cancelScanTimer()
	err := c.host.Send(&cmd.LESetScanEnable{LEScanEnable: 0}, nil)
	c.emit(ScanStopped{Status: status(err)})
}

// cancelScanTimer makes a pending timeout stale.
func (c *Controller) cancelScanTimer() {
	c.scanGen++
	if c.scanTimer != nil {
		c.scanTimer.Stop()
		c.scanTimer = nil
	}
}

func (c *Controller) startAdv(p AdvParams) error {
	chmap := p.ChannelMap
	if chmap == 0 {
		chmap = allAdvChannels
	}
	ap := cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin:  p.IntervalMin,
		AdvertisingIntervalMax:  p.IntervalMax,
		AdvertisingType:         uint8(p.Type),
		OwnAddressType:          p.OwnAddrType,
		DirectAddressType:       p.PeerAddrType,
		AdvertisingChannelMap:   chmap,
		AdvertisingFilterPolicy: p.FilterPolicy,
	}
	if p.PeerAddr != nil {
		ap.DirectAddress, _ = sliceops.WireAddr(p.PeerAddr)
	}
	if err := c.host.Send(&ap, nil); err != nil {
		return err
	}
	return c.host.Send(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 1}, nil)
}

func (c *Controller) updateConn(addr net.HardwareAddr, p ConnParams) uint8 {
	h, ok := c.handle(addr)
	if !ok {
		return uint8(hci.ErrConnID)
	}
	err := c.host.Send(&cmd.LEConnectionUpdate{
		ConnectionHandle:   h,
		ConnIntervalMin:    p.IntervalMin,
		ConnIntervalMax:    p.IntervalMax,
		ConnLatency:        p.Latency,
		SupervisionTimeout: p.Timeout,
	}, nil)
	return status(err)
}

func (c *Controller) setPktDataLen(a pktLenArg) uint8 {
	h, ok := c.handle(a.addr)
	if !ok {
		return uint8(hci.ErrConnID)
	}
	// 14 octets of overhead at 8us per octet on the 1M PHY
	err := c.host.Send(&cmd.LESetDataLength{
		ConnectionHandle: h,
		TxOctets:         a.txOctets,
		TxTime:           (a.txOctets + 14) * 8,
	}, &cmd.LESetDataLengthRP{})
	return status(err)
}

func (c *Controller) updateWhitelist(a whitelistArg) uint8 {
	w, _ := sliceops.WireAddr(a.addr)

	var err error
	if a.add {
		err = c.host.Send(&cmd.LEAddDeviceToWhiteList{Address: w}, nil)
	} else {
		err = c.host.Send(&cmd.LERemoveDeviceFromWhiteList{Address: w}, nil)
	}
	if err != nil {
		return status(err)
	}

	key := a.addr.String()
	c.mu.Lock()
	if a.add {
		c.whitelist[key] = struct{}{}
	} else {
		delete(c.whitelist, key)
	}
	c.mu.Unlock()

	if err := c.store.Update(key, func(p *Peer) { p.Whitelisted = a.add }); err != nil {
		c.log.Errorf("peer store: %v", err)
	}
	return 0
}

func (c *Controller) setPreferConnParams(p ConnUpdateParams) {
	cp := p.ConnParams
	if err := c.store.Update(p.Addr.String(), func(peer *Peer) { peer.ConnParams = &cp }); err != nil {
		c.log.Errorf("peer store: %v", err)
	}
	if _, ok := c.handle(p.Addr); ok {
		c.emit(ConnParamsUpdated{Status: c.updateConn(p.Addr, cp), Addr: p.Addr})
	}
}

func (c *Controller) handleAdvReport(e evt.LEAdvertisingReport) error {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return err
	}

	for i := 0; i < int(nr); i++ {
		var r ScanResult
		if r.EventType, err = e.EventTypeWErr(i); err != nil {
			return err
		}
		if r.AddrType, err = e.AddressTypeWErr(i); err != nil {
			return err
		}
		a, err := e.AddressWErr(i)
		if err != nil {
			return err
		}
		r.Addr = sliceops.Addr(a)
		if r.RSSI, err = e.RSSIWErr(i); err != nil {
			return err
		}
		data, err := e.DataWErr(i)
		if err != nil {
			return err
		}
		r.Data = append([]byte(nil), data...)
		if p, err := adv.NewRawPacket(r.Data); err == nil {
			r.Adv = p
		} else {
			c.log.Debugf("%v: %v", r.Addr, err)
		}
		c.emit(r)
	}
	return nil
}

func (c *Controller) handleConnComplete(e evt.LEConnectionComplete) error {
	var ev Connected
	var err error
	if ev.Status, err = e.StatusWErr(); err != nil {
		return err
	}
	if ev.Handle, err = e.ConnectionHandleWErr(); err != nil {
		return err
	}
	if ev.Role, err = e.RoleWErr(); err != nil {
		return err
	}
	if ev.AddrType, err = e.PeerAddressTypeWErr(); err != nil {
		return err
	}
	a, err := e.PeerAddressWErr()
	if err != nil {
		return err
	}
	ev.Addr = sliceops.Addr(a)
	if ev.Interval, err = e.ConnIntervalWErr(); err != nil {
		return err
	}

	if ev.Status == 0 {
		c.conns[ev.Handle] = conn{addr: ev.Addr, addrType: ev.AddrType}
	}
	c.emit(ev)
	if ev.Status != 0 {
		return nil
	}

	if p, ok := c.PreferConnParams(ev.Addr); ok {
		c.emit(ConnParamsUpdated{Status: c.updateConn(ev.Addr, p), Addr: ev.Addr})
	}
	return nil
}

func (c *Controller) handleDisconnComplete(e evt.DisconnectionComplete) {
	if e.Status() != 0 {
		c.log.Warnf("disconnection failed: 0x%02X", e.Status())
		return
	}
	h := e.ConnectionHandle()
	cn, ok := c.conns[h]
	if !ok {
		return
	}
	delete(c.conns, h)
	c.emit(Disconnected{Handle: h, Addr: cn.addr, Reason: e.Reason()})
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
