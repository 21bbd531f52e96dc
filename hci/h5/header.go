package h5

import (
	"fmt"

	"github.com/rigado/bthost/hci"
)

// Packet types carried in the header [Bluetooth Core, Vol 4, Part D].
const (
	pktACK         = 0x00
	pktCommand     = 0x01
	pktACL         = 0x02
	pktSCO         = 0x03
	pktEvent       = 0x04
	pktVendor      = 0x0E
	pktLinkControl = 0x0F
)

const (
	headerLen  = 4
	crcLen     = 2
	maxPayload = 0xFFF
)

func reliableType(t byte) bool {
	switch t {
	case pktCommand, pktACL, pktEvent, pktVendor:
		return true
	}
	return false
}

func toDataType(t byte) (hci.DataType, bool) {
	switch t {
	case pktCommand:
		return hci.DataTypeCommand, true
	case pktACL:
		return hci.DataTypeACL, true
	case pktSCO:
		return hci.DataTypeSCO, true
	case pktEvent:
		return hci.DataTypeEvent, true
	}
	return 0, false
}

func fromDataType(t hci.DataType) byte {
	switch t {
	case hci.DataTypeCommand:
		return pktCommand
	case hci.DataTypeACL:
		return pktACL
	case hci.DataTypeSCO:
		return pktSCO
	default:
		return pktEvent
	}
}

// header is the 4 byte packet header:
//	seq:3 ack:3 crc:1 reliable:1 | type:4 len_lo:4 | len_hi:8 | checksum:8
type header [headerLen]byte

func newHeader(t byte, seq, ack uint8, crc, reliable bool, n int) header {
	var h header
	h[0] = seq&0x07 | (ack&0x07)<<3
	if crc {
		h[0] |= 0x40
	}
	if reliable {
		h[0] |= 0x80
	}
	h[1] = t&0x0F | byte(n&0x0F)<<4
	h[2] = byte(n >> 4)
	h[3] = 0xFF - (h[0] + h[1] + h[2])
	return h
}

func (h header) seq() uint8       { return h[0] & 0x07 }
func (h header) ack() uint8       { return (h[0] >> 3) & 0x07 }
func (h header) crc() bool        { return h[0]&0x40 != 0 }
func (h header) reliable() bool   { return h[0]&0x80 != 0 }
func (h header) pktType() byte    { return h[1] & 0x0F }
func (h header) length() int      { return int(h[1]>>4) | int(h[2])<<4 }
func (h header) checksumOK() bool { return h[0]+h[1]+h[2]+h[3] == 0xFF }

func (h header) String() string {
	return fmt.Sprintf("type %d seq %d ack %d len %d rel %v crc %v", h.pktType(), h.seq(), h.ack(), h.length(), h.reliable(), h.crc())
}

// frame is a decoded packet.
type frame struct {
	hdr     header
	payload []byte
}

// parseFrame validates the header, length and optional CRC of a SLIP body.
func parseFrame(b []byte) (frame, error) {
	var f frame
	if len(b) < headerLen {
		return f, fmt.Errorf("short frame: % X", b)
	}
	copy(f.hdr[:], b[:headerLen])
	if !f.hdr.checksumOK() {
		return f, fmt.Errorf("bad header checksum: % X", b[:headerLen])
	}

	n := f.hdr.length()
	body := b[headerLen:]
	want := n
	if f.hdr.crc() {
		want += crcLen
	}
	if len(body) != want {
		return f, fmt.Errorf("length mismatch: header %d, got %d", n, len(body))
	}

	f.payload = body[:n]
	if f.hdr.crc() {
		got := uint16(body[n])<<8 | uint16(body[n+1])
		if exp := bitrev16(crcCCITT(b[:headerLen+n])); got != exp {
			return f, fmt.Errorf("crc mismatch: 0x%04X != 0x%04X", got, exp)
		}
	}
	return f, nil
}

// buildFrame returns the SLIP encoded packet.
func buildFrame(t byte, seq, ack uint8, crc, reliable bool, payload []byte) []byte {
	h := newHeader(t, seq, ack, crc, reliable, len(payload))
	b := make([]byte, 0, headerLen+len(payload)+crcLen)
	b = append(b, h[:]...)
	b = append(b, payload...)
	if crc {
		c := bitrev16(crcCCITT(b))
		b = append(b, byte(c>>8), byte(c))
	}
	return slipEncode(b)
}
