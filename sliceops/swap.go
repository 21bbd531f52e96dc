// Package sliceops converts between the little endian order of the HCI wire
// and display order.
package sliceops

import (
	"net"

	"github.com/pkg/errors"
)

// SwapBuf returns a reversed copy of in.
func SwapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}

	return a
}

// Addr converts a device address read off the wire.
func Addr(b [6]byte) net.HardwareAddr {
	return net.HardwareAddr(SwapBuf(b[:]))
}

// WireAddr returns a in wire order.
func WireAddr(a net.HardwareAddr) ([6]byte, error) {
	var b [6]byte
	if len(a) != len(b) {
		return b, errors.Errorf("invalid device address %v", a)
	}
	copy(b[:], SwapBuf(a))
	return b, nil
}
