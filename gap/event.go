package gap

import (
	"fmt"
	"net"

	"github.com/rigado/bthost/gap/adv"
)

// Event is a GAP completion or indication. Status fields carry the HCI
// status of the command; 0 is success.
type Event interface {
	gapEvent()
}

type AdvDataSet struct {
	Status uint8
	Raw    bool
}

type ScanRspDataSet struct {
	Status uint8
	Raw    bool
}

type ScanParamsSet struct{ Status uint8 }
type ScanStarted struct{ Status uint8 }

// ScanStopped is reported for StopScanning and when the scan duration ends.
type ScanStopped struct{ Status uint8 }

type AdvStarted struct{ Status uint8 }
type AdvStopped struct{ Status uint8 }
type RandAddrSet struct{ Status uint8 }
type DeviceNameSet struct{ Status uint8 }

type WhitelistUpdated struct {
	Status uint8
	Add    bool
	Addr   net.HardwareAddr
}

type ConnParamsUpdated struct {
	Status uint8
	Addr   net.HardwareAddr
}

type PktDataLenSet struct {
	Status   uint8
	Addr     net.HardwareAddr
	TxOctets uint16
}

type RSSIRead struct {
	Status uint8
	Addr   net.HardwareAddr
	RSSI   int8
}

// ScanResult is one report of an LE Advertising Report event. Adv is nil
// when Data does not parse.
type ScanResult struct {
	EventType uint8
	AddrType  uint8
	Addr      net.HardwareAddr
	RSSI      int8
	Data      []byte
	Adv       *adv.Packet
}

type Connected struct {
	Status   uint8
	Handle   uint16
	Role     uint8
	AddrType uint8
	Addr     net.HardwareAddr
	Interval uint16
}

type Disconnected struct {
	Handle uint16
	Addr   net.HardwareAddr
	Reason uint8
}

func (AdvDataSet) gapEvent()        {}
func (ScanRspDataSet) gapEvent()    {}
func (ScanParamsSet) gapEvent()     {}
func (ScanStarted) gapEvent()       {}
func (ScanStopped) gapEvent()       {}
func (AdvStarted) gapEvent()        {}
func (AdvStopped) gapEvent()        {}
func (RandAddrSet) gapEvent()       {}
func (DeviceNameSet) gapEvent()     {}
func (WhitelistUpdated) gapEvent()  {}
func (ConnParamsUpdated) gapEvent() {}
func (PktDataLenSet) gapEvent()     {}
func (RSSIRead) gapEvent()          {}
func (ScanResult) gapEvent()        {}
func (Connected) gapEvent()         {}
func (Disconnected) gapEvent()      {}

// Connectable reports whether the advertiser accepts connections.
func (r ScanResult) Connectable() bool {
	return r.EventType == 0x00 || r.EventType == 0x01
}

// LocalName returns the advertised name, if any.
func (r ScanResult) LocalName() string {
	if r.Adv == nil {
		return ""
	}
	return r.Adv.LocalName()
}

// Scan result map keys used by ToMap.
var ScanResultKeys = struct {
	MAC         string
	RSSI        string
	Name        string
	MFG         string
	Services    string
	ServiceData string
	Connectable string
	EventType   string
}{
	MAC:         "mac",
	RSSI:        "rssi",
	Name:        "name",
	MFG:         "mfg",
	Services:    "services",
	ServiceData: "serviceData",
	Connectable: "connectable",
	EventType:   "eventType",
}

// ToMap flattens the result for printing.
func (r ScanResult) ToMap() map[string]interface{} {
	k := ScanResultKeys
	m := map[string]interface{}{
		k.MAC:         r.Addr.String(),
		k.RSSI:        r.RSSI,
		k.Connectable: r.Connectable(),
		k.EventType:   r.EventType,
	}
	if r.Adv == nil {
		return m
	}

	if n := r.Adv.LocalName(); n != "" {
		m[k.Name] = n
	}
	if md := r.Adv.ManufacturerData(); md != nil {
		m[k.MFG] = fmt.Sprintf("%x", md)
	}
	if u := r.Adv.UUIDs(); len(u) > 0 {
		s := make([]string, 0, len(u))
		for _, uu := range u {
			s = append(s, uu.String())
		}
		m[k.Services] = s
	}
	if sd := r.Adv.ServiceData(); len(sd) > 0 {
		d := map[string]string{}
		for _, v := range sd {
			d[v.UUID.String()] = fmt.Sprintf("%x", v.Data)
		}
		m[k.ServiceData] = d
	}
	return m
}

// Callback receives GAP events on the GAP worker.
type Callback func(e Event)
