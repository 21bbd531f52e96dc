// Package cmd holds the HCI commands issued by the host. Each command knows
// its opcode and parameter length and marshals its fixed-size parameters in
// little endian order.
package cmd

import (
	"bytes"
	"encoding/binary"
	"io"
)

type lener interface {
	Len() int
}

func marshal(c lener, b []byte) error {
	buf := bytes.NewBuffer(b)
	buf.Reset()
	if buf.Cap() < c.Len() {
		return io.ErrShortBuffer
	}
	return binary.Write(buf, binary.LittleEndian, c)
}

func unmarshal(rp interface{}, b []byte) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, rp)
}

func opcode(ogf, ocf int) int {
	return ogf<<10 | ocf
}

// Disconnect implements Disconnect (0x01|0x0006) [Vol 2, Part E, 7.1.6]
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) String() string         { return "Disconnect (0x01|0x0006)" }
func (c *Disconnect) OpCode() int            { return opcode(0x01, 0x0006) }
func (c *Disconnect) Len() int               { return 3 }
func (c *Disconnect) Marshal(b []byte) error { return marshal(c, b) }

// SetEventMask implements Set Event Mask (0x03|0x0001) [Vol 2, Part E, 7.3.1]
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) String() string         { return "Set Event Mask (0x03|0x0001)" }
func (c *SetEventMask) OpCode() int            { return opcode(0x03, 0x0001) }
func (c *SetEventMask) Len() int               { return 8 }
func (c *SetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// Reset implements Reset (0x03|0x0003) [Vol 2, Part E, 7.3.2]
type Reset struct{}

func (c *Reset) String() string         { return "Reset (0x03|0x0003)" }
func (c *Reset) OpCode() int            { return opcode(0x03, 0x0003) }
func (c *Reset) Len() int               { return 0 }
func (c *Reset) Marshal(b []byte) error { return nil }

// WriteLocalName implements Write Local Name (0x03|0x0013) [Vol 2, Part E, 7.3.11]
type WriteLocalName struct {
	LocalName [248]byte
}

func (c *WriteLocalName) String() string         { return "Write Local Name (0x03|0x0013)" }
func (c *WriteLocalName) OpCode() int            { return opcode(0x03, 0x0013) }
func (c *WriteLocalName) Len() int               { return 248 }
func (c *WriteLocalName) Marshal(b []byte) error { return marshal(c, b) }

// ReadBDADDR implements Read BD_ADDR (0x04|0x0009) [Vol 2, Part E, 7.4.6]
type ReadBDADDR struct{}

func (c *ReadBDADDR) String() string         { return "Read BD_ADDR (0x04|0x0009)" }
func (c *ReadBDADDR) OpCode() int            { return opcode(0x04, 0x0009) }
func (c *ReadBDADDR) Len() int               { return 0 }
func (c *ReadBDADDR) Marshal(b []byte) error { return nil }

// ReadBDADDRRP returns the return parameter of Read BD_ADDR
type ReadBDADDRRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *ReadBDADDRRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadRSSI implements Read RSSI (0x05|0x0005) [Vol 2, Part E, 7.5.4]
type ReadRSSI struct {
	Handle uint16
}

func (c *ReadRSSI) String() string         { return "Read RSSI (0x05|0x0005)" }
func (c *ReadRSSI) OpCode() int            { return opcode(0x05, 0x0005) }
func (c *ReadRSSI) Len() int               { return 2 }
func (c *ReadRSSI) Marshal(b []byte) error { return marshal(c, b) }

// ReadRSSIRP returns the return parameter of Read RSSI
type ReadRSSIRP struct {
	Status           uint8
	ConnectionHandle uint16
	RSSI             int8
}

func (c *ReadRSSIRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LESetEventMask implements LE Set Event Mask (0x08|0x0001) [Vol 2, Part E, 7.8.1]
type LESetEventMask struct {
	LEEventMask uint64
}

func (c *LESetEventMask) String() string         { return "LE Set Event Mask (0x08|0x0001)" }
func (c *LESetEventMask) OpCode() int            { return opcode(0x08, 0x0001) }
func (c *LESetEventMask) Len() int               { return 8 }
func (c *LESetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// LESetRandomAddress implements LE Set Random Address (0x08|0x0005) [Vol 2, Part E, 7.8.4]
type LESetRandomAddress struct {
	RandomAddress [6]byte
}

func (c *LESetRandomAddress) String() string         { return "LE Set Random Address (0x08|0x0005)" }
func (c *LESetRandomAddress) OpCode() int            { return opcode(0x08, 0x0005) }
func (c *LESetRandomAddress) Len() int               { return 6 }
func (c *LESetRandomAddress) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertisingParameters implements LE Set Advertising Parameters (0x08|0x0006) [Vol 2, Part E, 7.8.5]
type LESetAdvertisingParameters struct {
	AdvertisingIntervalMin  uint16
	AdvertisingIntervalMax  uint16
	AdvertisingType         uint8
	OwnAddressType          uint8
	DirectAddressType       uint8
	DirectAddress           [6]byte
	AdvertisingChannelMap   uint8
	AdvertisingFilterPolicy uint8
}

func (c *LESetAdvertisingParameters) String() string {
	return "LE Set Advertising Parameters (0x08|0x0006)"
}
func (c *LESetAdvertisingParameters) OpCode() int            { return opcode(0x08, 0x0006) }
func (c *LESetAdvertisingParameters) Len() int               { return 15 }
func (c *LESetAdvertisingParameters) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertisingData implements LE Set Advertising Data (0x08|0x0008) [Vol 2, Part E, 7.8.7]
type LESetAdvertisingData struct {
	AdvertisingDataLength uint8
	AdvertisingData       [31]byte
}

func (c *LESetAdvertisingData) String() string         { return "LE Set Advertising Data (0x08|0x0008)" }
func (c *LESetAdvertisingData) OpCode() int            { return opcode(0x08, 0x0008) }
func (c *LESetAdvertisingData) Len() int               { return 32 }
func (c *LESetAdvertisingData) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanResponseData implements LE Set Scan Response Data (0x08|0x0009) [Vol 2, Part E, 7.8.8]
type LESetScanResponseData struct {
	ScanResponseDataLength uint8
	ScanResponseData       [31]byte
}

func (c *LESetScanResponseData) String() string         { return "LE Set Scan Response Data (0x08|0x0009)" }
func (c *LESetScanResponseData) OpCode() int            { return opcode(0x08, 0x0009) }
func (c *LESetScanResponseData) Len() int               { return 32 }
func (c *LESetScanResponseData) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertiseEnable implements LE Set Advertise Enable (0x08|0x000A) [Vol 2, Part E, 7.8.9]
type LESetAdvertiseEnable struct {
	AdvertisingEnable uint8
}

func (c *LESetAdvertiseEnable) String() string         { return "LE Set Advertise Enable (0x08|0x000A)" }
func (c *LESetAdvertiseEnable) OpCode() int            { return opcode(0x08, 0x000A) }
func (c *LESetAdvertiseEnable) Len() int               { return 1 }
func (c *LESetAdvertiseEnable) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanParameters implements LE Set Scan Parameters (0x08|0x000B) [Vol 2, Part E, 7.8.10]
type LESetScanParameters struct {
	LEScanType           uint8
	LEScanInterval       uint16
	LEScanWindow         uint16
	OwnAddressType       uint8
	ScanningFilterPolicy uint8
}

func (c *LESetScanParameters) String() string         { return "LE Set Scan Parameters (0x08|0x000B)" }
func (c *LESetScanParameters) OpCode() int            { return opcode(0x08, 0x000B) }
func (c *LESetScanParameters) Len() int               { return 7 }
func (c *LESetScanParameters) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanEnable implements LE Set Scan Enable (0x08|0x000C) [Vol 2, Part E, 7.8.11]
type LESetScanEnable struct {
	LEScanEnable     uint8
	FilterDuplicates uint8
}

func (c *LESetScanEnable) String() string         { return "LE Set Scan Enable (0x08|0x000C)" }
func (c *LESetScanEnable) OpCode() int            { return opcode(0x08, 0x000C) }
func (c *LESetScanEnable) Len() int               { return 2 }
func (c *LESetScanEnable) Marshal(b []byte) error { return marshal(c, b) }

// LEAddDeviceToWhiteList implements LE Add Device To White List (0x08|0x0011) [Vol 2, Part E, 7.8.16]
type LEAddDeviceToWhiteList struct {
	AddressType uint8
	Address     [6]byte
}

func (c *LEAddDeviceToWhiteList) String() string         { return "LE Add Device To White List (0x08|0x0011)" }
func (c *LEAddDeviceToWhiteList) OpCode() int            { return opcode(0x08, 0x0011) }
func (c *LEAddDeviceToWhiteList) Len() int               { return 7 }
func (c *LEAddDeviceToWhiteList) Marshal(b []byte) error { return marshal(c, b) }

// LERemoveDeviceFromWhiteList implements LE Remove Device From White List (0x08|0x0012) [Vol 2, Part E, 7.8.17]
type LERemoveDeviceFromWhiteList struct {
	AddressType uint8
	Address     [6]byte
}

func (c *LERemoveDeviceFromWhiteList) String() string {
	return "LE Remove Device From White List (0x08|0x0012)"
}
func (c *LERemoveDeviceFromWhiteList) OpCode() int            { return opcode(0x08, 0x0012) }
func (c *LERemoveDeviceFromWhiteList) Len() int               { return 7 }
func (c *LERemoveDeviceFromWhiteList) Marshal(b []byte) error { return marshal(c, b) }

// LEConnectionUpdate implements LE Connection Update (0x08|0x0013) [Vol 2, Part E, 7.8.18]
type LEConnectionUpdate struct {
	ConnectionHandle   uint16
	ConnIntervalMin    uint16
	ConnIntervalMax    uint16
	ConnLatency        uint16
	SupervisionTimeout uint16
	MinimumCELength    uint16
	MaximumCELength    uint16
}

func (c *LEConnectionUpdate) String() string         { return "LE Connection Update (0x08|0x0013)" }
func (c *LEConnectionUpdate) OpCode() int            { return opcode(0x08, 0x0013) }
func (c *LEConnectionUpdate) Len() int               { return 14 }
func (c *LEConnectionUpdate) Marshal(b []byte) error { return marshal(c, b) }

// LESetDataLength implements LE Set Data Length (0x08|0x0022) [Vol 2, Part E, 7.8.33]
type LESetDataLength struct {
	ConnectionHandle uint16
	TxOctets         uint16
	TxTime           uint16
}

func (c *LESetDataLength) String() string         { return "LE Set Data Length (0x08|0x0022)" }
func (c *LESetDataLength) OpCode() int            { return opcode(0x08, 0x0022) }
func (c *LESetDataLength) Len() int               { return 6 }
func (c *LESetDataLength) Marshal(b []byte) error { return marshal(c, b) }

// LESetDataLengthRP returns the return parameter of LE Set Data Length
type LESetDataLengthRP struct {
	Status           uint8
	ConnectionHandle uint16
}

func (c *LESetDataLengthRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
