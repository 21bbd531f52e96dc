package avrc

import (
	"fmt"
	"net"
)

// Event is an indication from the AVRCP engine. The concrete type tells
// which one.
type Event interface {
	fmt.Stringer
	avrcEvent()
}

// ConnectionState reports the AVRC link coming up or down.
type ConnectionState struct {
	Connected bool
	Remote    net.HardwareAddr
}

// PassthroughRsp answers SendPassthroughCmd.
type PassthroughRsp struct {
	Label uint8
	Key   KeyCode
	State KeyState
}

// MetadataRsp carries one attribute requested by SendMetadataCmd.
type MetadataRsp struct {
	Attr AttrMask
	Text []byte
}

// PlayStatusRsp answers a play status request.
type PlayStatusRsp struct{}

// ChangeNotify is a registered notification firing.
type ChangeNotify struct {
	Event NotifyEvent
	Param uint32
}

// RemoteFeatures reports the feature mask discovered from the remote SDP record.
type RemoteFeatures struct {
	Features uint32
	Remote   net.HardwareAddr
}

func (ConnectionState) avrcEvent() {}
func (PassthroughRsp) avrcEvent()  {}
func (MetadataRsp) avrcEvent()     {}
func (PlayStatusRsp) avrcEvent()   {}
func (ChangeNotify) avrcEvent()    {}
func (RemoteFeatures) avrcEvent()  {}

func (e ConnectionState) String() string {
	return fmt.Sprintf("connection state: connected %v remote %v", e.Connected, e.Remote)
}

func (e PassthroughRsp) String() string {
	return fmt.Sprintf("passthrough rsp: tl %d key 0x%02X state %d", e.Label, uint8(e.Key), e.State)
}

func (e MetadataRsp) String() string {
	return fmt.Sprintf("metadata rsp: attr 0x%02X %q", uint8(e.Attr), e.Text)
}

func (e PlayStatusRsp) String() string {
	return "play status rsp"
}

func (e ChangeNotify) String() string {
	return fmt.Sprintf("change notify: event %d param %d", e.Event, e.Param)
}

func (e RemoteFeatures) String() string {
	return fmt.Sprintf("remote features: 0x%04X remote %v", e.Features, e.Remote)
}

// Callback receives engine indications on the AVRC worker.
type Callback func(e Event)
