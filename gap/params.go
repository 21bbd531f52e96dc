package gap

import (
	"net"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
)

// Connection parameter limits [Vol 6, Part B, 4.5.1]
const (
	ConnIntervalMin = 0x0006
	ConnIntervalMax = 0x0C80
	SupTimeoutMin   = 0x000A
	SupTimeoutMax   = 0x0C80
	ConnLatencyMax  = 0x01F3
	ConnParamUndef  = 0xFFFF
)

const (
	scanIntervalMin = 0x0004
	scanIntervalMax = 0x4000
	advIntervalMin  = 0x0020
	advIntervalMax  = 0x4000
	txOctetsMin     = 0x001B
	txOctetsMax     = 0x00FB

	maxDeviceName    = 32
	maxRawData       = 31
	disconnectReason = 0x13 // remote user terminated connection
	uuid128Len       = 16
	allAdvChannels   = 0x07
)

// ConnParams are connection parameters in controller units: intervals in
// 1.25ms, timeout in 10ms.
type ConnParams struct {
	IntervalMin uint16 `json:"interval_min"`
	IntervalMax uint16 `json:"interval_max"`
	Latency     uint16 `json:"latency"`
	Timeout     uint16 `json:"timeout"`
}

func inRange(v, min, max uint16) bool {
	return v >= min && v <= max
}

// Valid reports whether the parameters are acceptable as preferred
// parameters. The supervision timeout must outlast the effective interval.
func (p ConnParams) Valid() bool {
	if !inRange(p.IntervalMin, ConnIntervalMin, ConnIntervalMax) ||
		!inRange(p.IntervalMax, ConnIntervalMin, ConnIntervalMax) ||
		!inRange(p.Timeout, SupTimeoutMin, SupTimeoutMax) {
		return false
	}
	if p.Latency > ConnLatencyMax && p.Latency != ConnParamUndef {
		return false
	}
	if int(p.Timeout)*10 < (1+int(p.Latency))*((int(p.IntervalMax)*5)>>1) {
		return false
	}
	return p.IntervalMin <= p.IntervalMax
}

// ConnUpdateParams asks the controller to update the connection to Addr.
type ConnUpdateParams struct {
	Addr net.HardwareAddr
	ConnParams
}

type ScanType uint8

const (
	ScanPassive ScanType = iota
	ScanActive
)

// ScanParams configure LE scanning. Interval and Window are in 0.625ms units.
type ScanParams struct {
	Type             ScanType
	Interval         uint16
	Window           uint16
	OwnAddrType      uint8
	FilterPolicy     uint8
	FilterDuplicates bool
}

func (p *ScanParams) validate() error {
	if p == nil {
		return errors.Wrap(bthost.ErrInvalidArg, "gap: nil scan params")
	}
	if p.Type > ScanActive ||
		!inRange(p.Interval, scanIntervalMin, scanIntervalMax) ||
		!inRange(p.Window, scanIntervalMin, p.Interval) {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: scan params %+v", *p)
	}
	return nil
}

// DefaultScanParams scan actively at a 50% duty cycle.
func DefaultScanParams() ScanParams {
	return ScanParams{Type: ScanActive, Interval: 0x0050, Window: 0x0030, FilterDuplicates: true}
}

type AdvType uint8

const (
	AdvInd AdvType = iota
	AdvDirectIndHigh
	AdvScanInd
	AdvNonconnInd
	AdvDirectIndLow
)

// AdvParams configure advertising. Intervals are in 0.625ms units. A zero
// ChannelMap means all three channels.
type AdvParams struct {
	IntervalMin  uint16
	IntervalMax  uint16
	Type         AdvType
	OwnAddrType  uint8
	PeerAddrType uint8
	PeerAddr     net.HardwareAddr
	ChannelMap   uint8
	FilterPolicy uint8
}

func (p *AdvParams) validate() error {
	if p == nil {
		return errors.Wrap(bthost.ErrInvalidArg, "gap: nil adv params")
	}
	if p.Type > AdvDirectIndLow ||
		!inRange(p.IntervalMin, advIntervalMin, advIntervalMax) ||
		!inRange(p.IntervalMax, p.IntervalMin, advIntervalMax) ||
		p.ChannelMap > allAdvChannels {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: adv params %+v", *p)
	}
	if p.PeerAddr != nil && len(p.PeerAddr) != 6 {
		return errors.Wrapf(bthost.ErrInvalidArg, "gap: peer address %v", p.PeerAddr)
	}
	return nil
}

// AdvData describes an advertising or scan response payload assembled by
// ConfigAdvData.
type AdvData struct {
	SetScanRsp       bool
	IncludeName      bool
	IncludeTxPower   bool
	TxPower          int8
	MinInterval      uint16
	MaxInterval      uint16
	Appearance       uint16
	ManufacturerData []byte
	ServiceData      []byte
	// ServiceUUID holds complete 128-bit service UUIDs back to back.
	ServiceUUID []byte
	Flag        byte
}

// appearances accepted by ConfigLocalIcon
var appearances = map[uint16]bool{
	0x0000: true, // unknown
	0x0040: true, 0x0080: true, 0x00C0: true, 0x00C1: true,
	0x0100: true, 0x0140: true, 0x0180: true, 0x01C0: true,
	0x0200: true, 0x0240: true, 0x0280: true, 0x02C0: true,
	0x0300: true, 0x0301: true,
	0x0340: true, 0x0341: true,
	0x0380: true, 0x0381: true, 0x0382: true,
	0x03C0: true, 0x03C1: true, 0x03C2: true, 0x03C3: true, 0x03C4: true,
	0x03C5: true, 0x03C6: true, 0x03C7: true, 0x03C8: true,
	0x0400: true,
	0x0440: true, 0x0441: true, 0x0442: true, 0x0443: true,
	0x0480: true, 0x0481: true, 0x0482: true, 0x0483: true, 0x0484: true, 0x0485: true,
	0x0540: true, 0x0541: true, 0x0542: true,
	0x0C40: true, 0x0C41: true, 0x0C42: true,
	0x0C80: true,
	0x0D00: true,
	0x0D40: true, 0x0D41: true, 0x0D44: true, 0x0D48: true,
	0x0D80: true,
	0x1440: true, 0x1441: true, 0x1442: true, 0x1443: true, 0x1444: true,
}
