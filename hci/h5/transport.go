// Package h5 is the three-wire UART transport. It implements hci.HAL over a
// byte stream and runs its receive path on a dedicated btc worker.
package h5

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/btc"
	"github.com/rigado/bthost/config"
	"github.com/rigado/bthost/hci"
)

// Actions of the h5 worker.
const (
	// ActRecvAvailable tells the worker the port has bytes to parse.
	ActRecvAvailable btc.Action = iota + 1
	actRetransmit
)

// Tap observes every packet crossing the transport.
type Tap interface {
	Packet(out bool, t hci.DataType, b []byte)
}

// Transport is the H5 HAL.
type Transport struct {
	d    *btc.Dispatcher
	port Port
	cfg  config.H5
	log  bthost.Logger
	tap  Tap

	mu  sync.Mutex
	w   *btc.Worker
	eng *engine
	cb  hci.Callbacks

	// stream interpretation, owned by the worker
	currentDataType         hci.DataType
	hasInterpretation       bool
	corruptionDetected      bool
	corruptionBytesToIgnore uint8
}

// New returns a closed transport reading and writing port.
func New(d *btc.Dispatcher, port Port, cfg config.H5) *Transport {
	return &Transport{
		d:    d,
		port: port,
		cfg:  cfg,
		log:  bthost.Component("h5"),
	}
}

// SetTap installs a packet observer. Call before Open.
func (t *Transport) SetTap(tap Tap) {
	t.tap = tap
}

// Open starts the h5 worker and the protocol engine.
func (t *Transport) Open(cb hci.Callbacks) error {
	if cb == nil {
		return errors.Wrap(bthost.ErrInvalidArg, "nil callbacks")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w != nil {
		return errors.New("h5 already open")
	}

	w, err := t.d.NewWorker(btc.SubsysHCIH5.String(), t.cfg.QueueLen)
	if err != nil {
		return errors.Wrap(err, "can't create h5 worker")
	}

	t.d.Registry().SetProfile(btc.SubsysHCIH5, btc.Profile{Event: t.handle})
	t.d.Attach(w, btc.SubsysHCIH5)
	if err := w.Start(); err != nil {
		t.d.Detach(btc.SubsysHCIH5)
		return errors.Wrap(err, "can't start h5 worker")
	}

	t.cb = cb
	t.hasInterpretation = false
	t.corruptionDetected = false
	t.corruptionBytesToIgnore = 0

	e := newEngine(t.port, t.cfg, t.log)
	e.deliver = t.dataReady
	e.stray = t.streamCorruptedDuringLEScan
	e.frameStart = t.resetCorruption
	e.kick = func() {
		if err := t.d.PostEvent(btc.SubsysHCIH5, actRetransmit, nil); err != nil {
			t.log.Debug("retransmit post: ", err)
		}
	}
	t.eng = e
	t.w = w

	t.log.Debug("opened")
	return nil
}

// Close tears down the engine and stops the h5 worker.
func (t *Transport) Close() {
	t.mu.Lock()
	w, e := t.w, t.eng
	t.w = nil
	t.mu.Unlock()

	if w == nil {
		return
	}

	e.cleanup()
	t.d.Detach(btc.SubsysHCIH5)
	w.Stop()
	t.log.Debug("closed")
}

// RecvAvailable is the bridge entry point. It never blocks.
func (t *Transport) RecvAvailable() error {
	return t.d.PostEvent(btc.SubsysHCIH5, ActRecvAvailable, nil)
}

func (t *Transport) engine() *engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng
}

func (t *Transport) handle(m *btc.Msg) {
	e := t.engine()
	if e == nil {
		return
	}

	switch m.Act {
	case ActRecvAvailable:
		e.recv()
	case actRetransmit:
		e.retransmit()
	default:
		t.log.Warnf("unknown action %d", m.Act)
	}
}

func (t *Transport) dataReady(dt hci.DataType, b []byte) {
	if t.tap != nil {
		t.tap.Packet(false, dt, b)
	}

	t.currentDataType = dt
	t.hasInterpretation = true
	t.cb.PacketReady(hci.Packet{Type: dt, Len: len(b)})
}

// ReadData implements hci.HAL.
func (t *Transport) ReadData(dt hci.DataType, b []byte) int {
	switch {
	case dt < hci.DataTypeACL || dt > hci.DataTypeEvent:
		t.log.Errorf("read_data invalid data type: %d", dt)
		return 0
	case !t.hasInterpretation:
		t.log.Error("read_data with no valid stream interpretation")
		return 0
	case t.currentDataType != dt:
		t.log.Error("read_data with different type than existing interpretation")
		return 0
	}

	if len(b) == 0 {
		return 0
	}

	e := t.engine()
	if e == nil {
		return 0
	}
	n := e.read(b)
	if n == -1 {
		t.log.Error("no data to be read, stack error or fw error")
		return 0
	}
	return n
}

// PacketFinished implements hci.HAL.
func (t *Transport) PacketFinished(dt hci.DataType) {
	if !t.hasInterpretation {
		t.log.Error("packet_finished with no existing stream interpretation")
	} else if t.currentDataType != dt {
		t.log.Error("packet_finished with different type than existing interpretation")
	}

	t.hasInterpretation = false
}

// TransmitData implements hci.HAL. It returns len(b) or 0.
func (t *Transport) TransmitData(dt hci.DataType, b []byte) int {
	if len(b) == 0 {
		t.log.Error("transmit_data with no data")
		return 0
	}
	if dt < hci.DataTypeCommand || dt > hci.DataTypeSCO {
		t.log.Errorf("transmit_data invalid data type: %d", dt)
		return 0
	}

	e := t.engine()
	if e == nil {
		t.log.Error("transmit_data on closed transport")
		return 0
	}

	if dt == hci.DataTypeCommand {
		if len(b) < 2 {
			t.log.Errorf("transmit_data command too short: %d", len(b))
			return 0
		}
		if binary.LittleEndian.Uint16(b) == hci.OpcodeVSCH5Init {
			if err := e.sendSync(); err != nil {
				t.log.Error("h5 init: ", err)
				return 0
			}
			return len(b)
		}
	}

	n, err := e.send(dt, b)
	if err != nil {
		t.log.Errorf("transmit_data %v: %v", dt, err)
		return 0
	}
	if t.tap != nil {
		t.tap.Packet(true, dt, b)
	}
	return n
}
