package h5

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/config"
	"github.com/rigado/bthost/hci"
)

// Link control messages.
var (
	msgSync       = []byte{0x01, 0x7E}
	msgSyncResp   = []byte{0x02, 0x7D}
	msgConfig     = []byte{0x03, 0xFC}
	msgConfigResp = []byte{0x04, 0x7B}
)

const serialBufferSize = 1026

type linkState int

const (
	linkUninitialized linkState = iota
	linkInitialized
	linkActive
)

var (
	ErrLinkNotActive = errors.New("h5 link not active")
	ErrSyncTimeout   = errors.New("h5 link establishment timed out")
)

// Port is the byte stream under the engine. Read must not block: it returns
// what is buffered, possibly nothing.
type Port interface {
	io.Reader
	io.Writer
}

type txPkt struct {
	t       byte
	seq     uint8
	payload []byte
}

// engine implements the three-wire protocol: framing, sequencing,
// acknowledgement, retransmission and link establishment.
type engine struct {
	port Port
	log  bthost.Logger

	window int
	crc    bool
	rto    time.Duration

	syncInterval time.Duration
	syncRetries  int

	// receive side, only touched by the h5 worker
	dec   *slipDecoder
	rdbuf []byte
	rx    []byte
	rxOff int

	// deliver is called for every in-sequence data packet
	deliver func(t hci.DataType, b []byte)
	// stray is offered every byte arriving outside a frame
	stray func(c byte) bool
	// frameStart is called when a delimiter opens a frame
	frameStart func()
	// kick asks the worker to run retransmit
	kick func()

	wmu sync.Mutex

	mu       sync.Mutex
	state    linkState
	txSeq    uint8
	rxAck    uint8
	unacked  []txPkt
	pending  []txPkt
	timer    *time.Timer
	syncResp chan struct{}
	confResp chan struct{}
}

func newEngine(port Port, cfg config.H5, log bthost.Logger) *engine {
	return &engine{
		port:         port,
		log:          log,
		window:       cfg.Window,
		crc:          cfg.CRC,
		rto:          cfg.RetransmitTimeout,
		syncInterval: cfg.SyncInterval,
		syncRetries:  cfg.SyncRetries,
		dec:          newSlipDecoder(2 * (headerLen + maxPayload + crcLen)),
		rdbuf:        make([]byte, serialBufferSize),
		syncResp:     make(chan struct{}, 1),
		confResp:     make(chan struct{}, 1),
	}
}

func (e *engine) active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == linkActive
}

// cleanup stops the retransmit timer and forgets queued packets.
func (e *engine) cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.unacked = nil
	e.pending = nil
	e.state = linkUninitialized
	e.txSeq, e.rxAck = 0, 0
}

// sendSync establishes the link: SYNC until SYNC RESP, then CONFIG until
// CONFIG RESP. It blocks the caller and must not run on the h5 worker.
func (e *engine) sendSync() error {
	e.mu.Lock()
	e.state = linkUninitialized
	e.mu.Unlock()

	drain(e.syncResp)
	drain(e.confResp)

	if err := e.handshake(msgSync, e.syncResp); err != nil {
		return errors.Wrap(err, "sync")
	}
	e.mu.Lock()
	e.state = linkInitialized
	e.mu.Unlock()

	if err := e.handshake(append(msgConfig[:2:2], e.configField()), e.confResp); err != nil {
		return errors.Wrap(err, "config")
	}

	e.mu.Lock()
	e.state = linkActive
	win, crc := e.window, e.crc
	e.mu.Unlock()
	e.log.Infof("h5 link active, window %d crc %v", win, crc)
	return nil
}

func (e *engine) handshake(msg []byte, resp chan struct{}) error {
	t := time.NewTicker(e.syncInterval)
	defer t.Stop()

	for i := 0; i < e.syncRetries; i++ {
		if err := e.writeFrame(pktLinkControl, 0, false, msg); err != nil {
			return err
		}
		select {
		case <-resp:
			return nil
		case <-t.C:
		}
	}
	return ErrSyncTimeout
}

func (e *engine) configField() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := byte(e.window & 0x07)
	if e.crc {
		c |= 0x10
	}
	return c
}

// send queues a packet and returns len(b). Reliable packets are held until
// acknowledged.
func (e *engine) send(t hci.DataType, b []byte) (int, error) {
	if len(b) > maxPayload {
		return 0, errors.Wrapf(bthost.ErrInvalidSize, "%d bytes", len(b))
	}

	pt := fromDataType(t)
	e.mu.Lock()
	if e.state != linkActive {
		e.mu.Unlock()
		return 0, ErrLinkNotActive
	}

	if !reliableType(pt) {
		e.mu.Unlock()
		if err := e.writeFrame(pt, 0, false, b); err != nil {
			return 0, err
		}
		return len(b), nil
	}

	p := txPkt{t: pt, payload: append([]byte(nil), b...)}
	e.pending = append(e.pending, p)
	out := e.promote()
	e.mu.Unlock()

	if err := e.transmit(out); err != nil {
		return 0, err
	}
	return len(b), nil
}

// promote moves pending packets into the window and returns them. Called
// with e.mu held.
func (e *engine) promote() []txPkt {
	var out []txPkt
	for len(e.pending) > 0 && len(e.unacked) < e.window {
		p := e.pending[0]
		e.pending = e.pending[1:]
		p.seq = e.txSeq
		e.txSeq = (e.txSeq + 1) & 0x07
		e.unacked = append(e.unacked, p)
		out = append(out, p)
	}
	if len(out) > 0 {
		e.armTimer()
	}
	return out
}

func (e *engine) armTimer() {
	if e.timer != nil {
		e.timer.Reset(e.rto)
		return
	}
	e.timer = time.AfterFunc(e.rto, func() {
		if e.kick != nil {
			e.kick()
		}
	})
}

func (e *engine) transmit(pp []txPkt) error {
	for _, p := range pp {
		if err := e.writeFrame(p.t, p.seq, true, p.payload); err != nil {
			return err
		}
	}
	return nil
}

// retransmit resends every unacknowledged packet.
func (e *engine) retransmit() {
	e.mu.Lock()
	if len(e.unacked) == 0 || e.state != linkActive {
		e.mu.Unlock()
		return
	}
	pp := append([]txPkt(nil), e.unacked...)
	e.armTimer()
	e.mu.Unlock()

	e.log.Debugf("retransmitting %d packets", len(pp))
	if err := e.transmit(pp); err != nil {
		e.log.Error("retransmit: ", err)
	}
}

func (e *engine) writeFrame(t byte, seq uint8, reliable bool, payload []byte) error {
	e.mu.Lock()
	ack := e.rxAck
	crc := e.crc && t != pktLinkControl
	e.mu.Unlock()

	b := buildFrame(t, seq, ack, crc, reliable, payload)

	e.wmu.Lock()
	defer e.wmu.Unlock()
	n, err := e.port.Write(b)
	if err != nil {
		return errors.Wrap(err, "can't write h5")
	}
	if n != len(b) {
		return errors.Errorf("short write %d/%d", n, len(b))
	}
	return nil
}

func (e *engine) sendAck() {
	if err := e.writeFrame(pktACK, 0, false, nil); err != nil {
		e.log.Error("ack: ", err)
	}
}

// recv drains the port and processes every byte. It runs on the h5 worker.
func (e *engine) recv() {
	for {
		n, err := e.port.Read(e.rdbuf)
		if n > 0 {
			e.feed(e.rdbuf[:n])
		}
		if err != nil || n < len(e.rdbuf) {
			return
		}
	}
}

func (e *engine) feed(b []byte) {
	for _, c := range b {
		opening := e.dec.state == slipOutside && c == slipDelimiter
		body, outside := e.dec.feed(c)
		if opening && e.frameStart != nil {
			e.frameStart()
		}
		if outside {
			if e.stray == nil || !e.stray(c) {
				e.log.Debugf("discarding 0x%02X outside frame", c)
			}
			continue
		}
		if body != nil {
			e.handleFrame(body)
		}
	}
}

func (e *engine) handleFrame(b []byte) {
	f, err := parseFrame(b)
	if err != nil {
		e.log.Warn("dropping frame: ", err)
		return
	}

	e.mu.Lock()
	out := e.handleAck(f.hdr.ack())

	deliver := false
	sendAck := false
	if f.hdr.reliable() {
		sendAck = true
		if f.hdr.seq() == e.rxAck {
			e.rxAck = (e.rxAck + 1) & 0x07
			deliver = true
		} else {
			e.log.Debugf("out of order seq %d, expecting %d", f.hdr.seq(), e.rxAck)
		}
	} else {
		deliver = f.hdr.pktType() != pktACK
	}
	active := e.state == linkActive
	e.mu.Unlock()

	if err := e.transmit(out); err != nil {
		e.log.Error(err)
	}
	if sendAck {
		e.sendAck()
	}
	if !deliver {
		return
	}

	switch t := f.hdr.pktType(); t {
	case pktLinkControl:
		e.handleLinkControl(f.payload)
	case pktVendor:
		e.log.Debugf("vendor packet % X", f.payload)
	default:
		dt, ok := toDataType(t)
		if !ok || !active {
			e.log.Warnf("dropping packet: %v", f.hdr)
			return
		}
		if e.deliver != nil {
			e.rx, e.rxOff = f.payload, 0
			e.deliver(dt, f.payload)
			e.rx, e.rxOff = nil, 0
		}
	}
}

// handleAck releases acknowledged packets and returns newly promoted ones.
// Called with e.mu held.
func (e *engine) handleAck(ack uint8) []txPkt {
	if len(e.unacked) == 0 {
		return nil
	}

	n := int((ack - e.unacked[0].seq) & 0x07)
	if n == 0 || n > len(e.unacked) {
		return nil
	}
	e.unacked = e.unacked[n:]

	if len(e.unacked) == 0 && e.timer != nil {
		e.timer.Stop()
	}
	return e.promote()
}

func (e *engine) handleLinkControl(b []byte) {
	switch {
	case bytes.HasPrefix(b, msgSync):
		e.mu.Lock()
		st := e.state
		e.mu.Unlock()
		if st == linkActive {
			e.log.Warn("peer sync while active, peer reset?")
		}
		if err := e.writeFrame(pktLinkControl, 0, false, msgSyncResp); err != nil {
			e.log.Error(err)
		}
	case bytes.HasPrefix(b, msgSyncResp):
		signal(e.syncResp)
	case bytes.HasPrefix(b, msgConfig):
		if err := e.writeFrame(pktLinkControl, 0, false, append(msgConfigResp[:2:2], e.configField())); err != nil {
			e.log.Error(err)
		}
	case bytes.HasPrefix(b, msgConfigResp):
		if len(b) > 2 {
			e.mu.Lock()
			if w := int(b[2] & 0x07); w > 0 && w < e.window {
				e.window = w
			}
			e.crc = e.crc && b[2]&0x10 != 0
			e.mu.Unlock()
		}
		signal(e.confResp)
	default:
		e.log.Debugf("link control % X", b)
	}
}

// read copies from the packet being delivered. It returns -1 when there is
// none.
func (e *engine) read(b []byte) int {
	if e.rx == nil {
		return -1
	}
	n := copy(b, e.rx[e.rxOff:])
	e.rxOff += n
	return n
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func drain(c chan struct{}) {
	for {
		select {
		case <-c:
		default:
			return
		}
	}
}
