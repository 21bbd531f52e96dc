package rtk

import "github.com/rigado/bthost"

// Receiver is woken when the UART has bytes. RecvAvailable must not block.
type Receiver interface {
	RecvAvailable() error
}

// Bridge returns the UART event handler feeding r. Reads and overflows both
// wake the receiver; the bytes stay in the ring until it drains them.
func Bridge(r Receiver) EventFunc {
	log := bthost.Component("rtk")
	return func(ev Event) {
		switch ev {
		case EventRead, EventOverflow:
			if err := r.RecvAvailable(); err != nil {
				log.Debugf("uart %v: %v", ev, err)
			}
		}
	}
}
