package bthost

import "fmt"

// State is the lifecycle state of a stack.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateEnabled:
		return "enabled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
