// Package adv crafts and parses the AD structures of advertising and scan
// response payloads. Refer to Supplement to Bluetooth Core Specification |
// CSSv6, Part A.
package adv

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
)

// MaxPacketLength is the payload size of a legacy advertising PDU.
const MaxPacketLength = 31

// Flags bits [CSSv6, Part A, 1.3]
const (
	FlagLimitedDiscoverable byte = 0x01
	FlagGeneralDiscoverable byte = 0x02
	FlagLEOnly              byte = 0x04
)

var (
	ErrNotFit  = errors.New("field doesn't fit in the packet")
	ErrInvalid = errors.New("invalid field")
)

// UUID is a service UUID in the little endian order it has on air.
type UUID []byte

// UUID16 returns the 16-bit form of id.
func UUID16(id uint16) UUID {
	return UUID{byte(id), byte(id >> 8)}
}

func (u UUID) Len() int {
	return len(u)
}

// String returns the UUID in the usual big endian hex form.
func (u UUID) String() string {
	b := make([]byte, len(u))
	for i := range u {
		b[len(u)-1-i] = u[i]
	}
	return hex.EncodeToString(b)
}

// ServiceData is the data advertised for one service.
type ServiceData struct {
	UUID UUID
	Data []byte
}

// Packet is an advertising packet or scan response, either crafted with
// fields or parsed from raw bytes.
type Packet struct {
	b []byte
	m map[string]interface{}
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

// Len returns the length of the packet.
func (p *Packet) Len() int {
	return len(p.b)
}

// NewPacket returns a new advertising Packet.
func NewPacket(fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxPacketLength)}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewRawPacket parses the concatenation of bytes.
func NewRawPacket(bytes ...[]byte) (*Packet, error) {
	b := make([]byte, 0, MaxPacketLength)
	for _, bb := range bytes {
		b = append(b, bb...)
	}

	m, err := decode(b)
	if err != nil {
		return nil, errors.Wrap(err, "pdu decode")
	}
	return &Packet{b: b, m: m}, nil
}

// Field is an advertising field which can be appended to a packet.
type Field func(p *Packet) error

// Append appends a field to the packet. It returns ErrNotFit if the field
// doesn't fit into the packet, and leaves the packet intact.
func (p *Packet) Append(f Field) error {
	return f(p)
}

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > MaxPacketLength {
		return ErrNotFit
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)
	return nil
}

// Raw appends the bytes to the current packet.
func Raw(b []byte) Field {
	return func(p *Packet) error {
		if p.Len()+len(b) > MaxPacketLength {
			return ErrNotFit
		}
		p.b = append(p.b, b...)
		return nil
	}
}

// Flags is a flags.
func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(types.flags, []byte{f})
	}
}

// ShortName is a short local name.
func ShortName(n string) Field {
	return func(p *Packet) error {
		return p.append(types.nameshort, []byte(n))
	}
}

// CompleteName is a complete local name.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		return p.append(types.namecomp, []byte(n))
	}
}

// TxPower is the transmit power level in dBm.
func TxPower(dbm int8) Field {
	return func(p *Packet) error {
		return p.append(types.txpwr, []byte{byte(dbm)})
	}
}

// ConnIntervalRange is the peripheral preferred connection interval range,
// in 1.25ms units.
func ConnIntervalRange(min, max uint16) Field {
	return func(p *Packet) error {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint16(b, min)
		binary.LittleEndian.PutUint16(b[2:], max)
		return p.append(types.connint, b)
	}
}

// Appearance is the GAP appearance value.
func Appearance(a uint16) Field {
	return func(p *Packet) error {
		return p.append(types.appearance, []byte{byte(a), byte(a >> 8)})
	}
}

// ManufacturerData is manufacturer specific data.
func ManufacturerData(id uint16, b []byte) Field {
	return func(p *Packet) error {
		d := append([]byte{uint8(id), uint8(id >> 8)}, b...)
		return p.append(types.mfgdata, d)
	}
}

// ManufacturerDataRaw is manufacturer specific data whose first two bytes
// already hold the company id.
func ManufacturerDataRaw(b []byte) Field {
	return func(p *Packet) error {
		if len(b) < 2 {
			return ErrInvalid
		}
		return p.append(types.mfgdata, b)
	}
}

// AllUUID is one of the complete service UUID list.
func AllUUID(u UUID) Field {
	return func(p *Packet) error {
		switch u.Len() {
		case 2:
			return p.append(types.uuid16comp, u)
		case 4:
			return p.append(types.uuid32comp, u)
		case 16:
			return p.append(types.uuid128comp, u)
		}
		return ErrInvalid
	}
}

// SomeUUID is one of the incomplete service UUID list.
func SomeUUID(u UUID) Field {
	return func(p *Packet) error {
		switch u.Len() {
		case 2:
			return p.append(types.uuid16inc, u)
		case 4:
			return p.append(types.uuid32inc, u)
		case 16:
			return p.append(types.uuid128inc, u)
		}
		return ErrInvalid
	}
}

// ServiceData16 is service data for a 16bit service uuid
func ServiceData16(id uint16, b []byte) Field {
	return func(p *Packet) error {
		return p.append(types.svc16, append(UUID16(id), b...))
	}
}

// ServiceDataRaw is service data whose first bytes already hold a 16bit uuid.
func ServiceDataRaw(b []byte) Field {
	return func(p *Packet) error {
		if len(b) < 2 {
			return ErrInvalid
		}
		return p.append(types.svc16, b)
	}
}

func (p *Packet) getUUIDs(k string, u []UUID) []UUID {
	v, ok := p.m[k].([]interface{})
	if !ok {
		return u
	}

	for _, vv := range v {
		b, ok := vv.([]byte)
		if !ok {
			continue
		}
		u = append(u, b)
	}
	return u
}

// Flags returns the flags of the packet.
func (p *Packet) Flags() (flags byte, present bool) {
	if b, ok := p.m[keys.flags].([]byte); ok {
		return b[0], true
	}
	return 0, false
}

// LocalName returns the ShortName or CompleteName if it presents.
func (p *Packet) LocalName() string {
	if b, ok := p.m[keys.namecomp].([]byte); ok {
		return string(b)
	}
	return ""
}

// TxPower returns the TxPower, if it presents.
func (p *Packet) TxPower() (power int, present bool) {
	if b, ok := p.m[keys.txpwr].([]byte); ok {
		return int(int8(b[0])), true
	}
	return 0, false
}

// Appearance returns the appearance, if it presents.
func (p *Packet) Appearance() (a uint16, present bool) {
	if b, ok := p.m[keys.appearance].([]byte); ok {
		return binary.LittleEndian.Uint16(b), true
	}
	return 0, false
}

// UUIDs returns a list of service UUIDs.
func (p *Packet) UUIDs() []UUID {
	var u []UUID
	u = p.getUUIDs(keys.uuid16comp, u)
	u = p.getUUIDs(keys.uuid32comp, u)
	u = p.getUUIDs(keys.uuid128comp, u)
	return u
}

// ServiceSol returns the solicited service UUIDs.
func (p *Packet) ServiceSol() []UUID {
	var u []UUID
	u = p.getUUIDs(keys.sol16, u)
	u = p.getUUIDs(keys.sol32, u)
	u = p.getUUIDs(keys.sol128, u)
	return u
}

// ServiceData returns the service data fields.
func (p *Packet) ServiceData() []ServiceData {
	var s []ServiceData
	if b, ok := p.m[keys.svc16].([]byte); ok {
		s = serviceDataList(s, b, 2)
	}
	if b, ok := p.m[keys.svc32].([]byte); ok {
		s = serviceDataList(s, b, 4)
	}
	if b, ok := p.m[keys.svc128].([]byte); ok {
		s = serviceDataList(s, b, 16)
	}
	return s
}

// ManufacturerData returns the ManufacturerData field if it presents.
func (p *Packet) ManufacturerData() []byte {
	v, _ := p.m[keys.mfgdata].([]byte)
	return v
}

func serviceDataList(sd []ServiceData, d []byte, w int) []ServiceData {
	serviceData := ServiceData{
		UUID: UUID(d[:w]),
		Data: make([]byte, len(d)-w),
	}
	copy(serviceData.Data, d[w:])
	return append(sd, serviceData)
}
