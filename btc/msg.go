// Package btc moves API calls and controller events into the single-threaded
// worker that owns a subsystem.
package btc

import "fmt"

// Signal is the envelope kind.
type Signal uint8

const (
	SigAPICall Signal = iota
	SigEvent

	sigWake
)

func (s Signal) String() string {
	switch s {
	case SigAPICall:
		return "api-call"
	case SigEvent:
		return "event"
	case sigWake:
		return "wake"
	default:
		return fmt.Sprintf("sig(%d)", uint8(s))
	}
}

// Subsystem identifies the profile an envelope is addressed to.
type Subsystem uint8

const (
	SubsysMain Subsystem = iota
	SubsysDev
	SubsysGapBLE
	SubsysAVRC
	SubsysHCIH5
)

var subsysNames = map[Subsystem]string{
	SubsysMain:   "main",
	SubsysDev:    "dev",
	SubsysGapBLE: "gap-ble",
	SubsysAVRC:   "avrc",
	SubsysHCIH5:  "hci-h5",
}

func (s Subsystem) String() string {
	if n, ok := subsysNames[s]; ok {
		return n
	}
	return fmt.Sprintf("subsys(%d)", uint8(s))
}

// Action is a subsystem specific operation code.
type Action uint16

// Msg is the envelope carried by every worker queue. Arg must be a value the
// caller no longer touches: once Post returns nil the worker owns it.
type Msg struct {
	Sig    Signal
	Subsys Subsystem
	Act    Action
	Arg    interface{}
}

func (m Msg) String() string {
	return fmt.Sprintf("%v %v act %d", m.Subsys, m.Sig, m.Act)
}
