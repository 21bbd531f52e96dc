// Package evt decodes the HCI event parameters the host consumes. Every type
// is the raw parameter block of one event, without the event header.
package evt

const (
	DisconnectionCompleteCode    = 0x05
	CommandCompleteCode          = 0x0E
	CommandStatusCode            = 0x0F
	HardwareErrorCode            = 0x10
	NumberOfCompletedPacketsCode = 0x13
	LEMetaCode                   = 0x3E

	LEConnectionCompleteSubCode       = 0x01
	LEAdvertisingReportSubCode        = 0x02
	LEConnectionUpdateCompleteSubCode = 0x03
)

type CommandComplete []byte
type CommandStatus []byte
type DisconnectionComplete []byte
type HardwareError []byte
type LEConnectionComplete []byte
type LEAdvertisingReport []byte

func (e CommandComplete) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandComplete) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandComplete) ReturnParameters() []byte {
	v, _ := e.ReturnParametersWErr()
	return v
}

// Valid reports whether the status block is complete.
func (e CommandStatus) Valid() bool {
	return len(e) >= 4
}

func (e CommandStatus) Status() uint8 {
	v, _ := getByte(e, 0, 0xff)
	return v
}

func (e CommandStatus) NumHCICommandPackets() uint8 {
	v, _ := getByte(e, 1, 0)
	return v
}

func (e CommandStatus) CommandOpcode() uint16 {
	v, _ := getUint16LE(e, 2, 0xffff)
	return v
}

func (e DisconnectionComplete) Status() uint8 {
	v, _ := getByte(e, 0, 0xff)
	return v
}

func (e DisconnectionComplete) ConnectionHandle() uint16 {
	v, _ := getUint16LE(e, 1, 0xffff)
	return v
}

func (e DisconnectionComplete) Reason() uint8 {
	v, _ := getByte(e, 3, 0)
	return v
}

func (e HardwareError) HardwareCode() uint8 {
	v, _ := getByte(e, 0, 0)
	return v
}
