package hci

import (
	"fmt"
	"time"
)

// DataType classifies an HCI packet on the transport.
type DataType uint8

// HCI Packet types
const (
	DataTypeCommand DataType = 0x01
	DataTypeACL     DataType = 0x02
	DataTypeSCO     DataType = 0x03
	DataTypeEvent   DataType = 0x04
)

func (t DataType) String() string {
	switch t {
	case DataTypeCommand:
		return "cmd"
	case DataTypeACL:
		return "acl"
	case DataTypeSCO:
		return "sco"
	case DataTypeEvent:
		return "evt"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

// OpcodeVSCH5Init is the Realtek vendor command that starts H5 link
// establishment. Transports send it through their synchronous path.
const OpcodeVSCH5Init uint16 = 0xFCEE

const (
	maxHciPayload     = 255
	evtVendor         = 0xFF
	defaultCmdTimeout = 3 * time.Second
)
