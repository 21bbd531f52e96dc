package hci

import (
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/hci/cmd"
	"github.com/rigado/bthost/hci/evt"
	"github.com/rigado/bthost/sliceops"
)

// Command ...
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP ...
type CommandRP interface {
	Unmarshal(b []byte) error
}

// Handler receives the parameters of one event. It runs on the transport's
// receive worker and must not block or call Send.
type Handler func(b []byte) error

type pkt struct {
	cmd  Command
	done chan []byte
}

// ErrClosed is returned by Send once the host is closed.
var ErrClosed = errors.New("hci closed")

// NewHost returns a host bound to hal. The transport is not opened.
func NewHost(hal HAL) *Host {
	h := &Host{
		hal:     hal,
		log:     bthost.Component("host"),
		timeout: defaultCmdTimeout,
		sent:    make(map[int]*pkt),
		evth:    map[int]Handler{},
		subh:    map[int]Handler{},
		done:    make(chan struct{}),
	}
	close(h.done)

	h.evth[evt.CommandCompleteCode] = h.handleCommandComplete
	h.evth[evt.CommandStatusCode] = h.handleCommandStatus
	h.evth[evt.LEMetaCode] = h.handleLEMeta
	h.evth[evt.HardwareErrorCode] = h.handleHardwareError
	h.evth[evt.NumberOfCompletedPacketsCode] = func(b []byte) error { return nil }

	return h
}

// Host is the upper HCI layer. It issues commands over the HAL, matches
// their completions and routes the remaining events to registered handlers.
type Host struct {
	hal     HAL
	log     bthost.Logger
	timeout time.Duration

	muSent sync.Mutex
	sent   map[int]*pkt

	// evtHub
	muHandlers sync.RWMutex
	evth       map[int]Handler
	subh       map[int]Handler
	aclh       func(b []byte)

	muAddr sync.RWMutex
	addr   net.HardwareAddr

	muClose      sync.Mutex
	done         chan struct{}
	errorHandler func(error)
}

// SetCommandTimeout sets how long Send waits for a completion.
func (h *Host) SetCommandTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// SetErrorHandler sets the handler for errors raised on the receive path.
func (h *Host) SetErrorHandler(f func(error)) {
	h.errorHandler = f
}

// SetEventHandler installs f for event code. A nil f removes it.
func (h *Host) SetEventHandler(code int, f Handler) {
	h.muHandlers.Lock()
	defer h.muHandlers.Unlock()
	switch code {
	case evt.CommandCompleteCode, evt.CommandStatusCode, evt.LEMetaCode:
		h.log.Warnf("event 0x%02X is owned by the host", code)
		return
	}
	if f == nil {
		delete(h.evth, code)
		return
	}
	h.evth[code] = f
}

// SetSubeventHandler installs f for an LE meta subevent. The bytes passed to
// f start with the subevent code.
func (h *Host) SetSubeventHandler(subcode int, f Handler) {
	h.muHandlers.Lock()
	defer h.muHandlers.Unlock()
	if f == nil {
		delete(h.subh, subcode)
		return
	}
	h.subh[subcode] = f
}

// SetACLHandler installs the receiver of ACL data packets.
func (h *Host) SetACLHandler(f func(b []byte)) {
	h.muHandlers.Lock()
	defer h.muHandlers.Unlock()
	h.aclh = f
}

// Open opens the transport with the host as its packet receiver.
func (h *Host) Open() error {
	h.muClose.Lock()
	defer h.muClose.Unlock()

	select {
	case <-h.done:
	default:
		return errors.New("hci already open")
	}
	h.done = make(chan struct{})

	if err := h.hal.Open(h); err != nil {
		close(h.done)
		return errors.Wrap(err, "can't open transport")
	}
	return nil
}

// Init resets the controller, reads its address and sets the event masks.
func (h *Host) Init() error {
	h.log.Info("hci reset")
	if err := h.Send(&cmd.Reset{}, nil); err != nil {
		return errors.Wrap(err, "reset")
	}

	rp := cmd.ReadBDADDRRP{}
	if err := h.Send(&cmd.ReadBDADDR{}, &rp); err != nil {
		return errors.Wrap(err, "read bdaddr")
	}
	h.muAddr.Lock()
	h.addr = sliceops.Addr(rp.BDADDR)
	h.muAddr.Unlock()

	if err := h.Send(&cmd.SetEventMask{EventMask: 0x3dbff807fffbffff}, nil); err != nil {
		return errors.Wrap(err, "set event mask")
	}
	if err := h.Send(&cmd.LESetEventMask{LEEventMask: 0x000000000000001F}, nil); err != nil {
		return errors.Wrap(err, "le set event mask")
	}

	h.log.Infof("controller %v", h.Addr())
	return nil
}

// Close fails pending commands and closes the transport.
func (h *Host) Close() error {
	h.muClose.Lock()
	defer h.muClose.Unlock()

	select {
	case <-h.done:
		//already closed, nothing to do
		return nil
	default:
		close(h.done)
	}

	h.hal.Close()

	// clean out all sent commands
	h.muSent.Lock()
	for k := range h.sent {
		delete(h.sent, k)
	}
	h.muSent.Unlock()

	return nil
}

// Addr returns the controller address read by Init.
func (h *Host) Addr() net.HardwareAddr {
	h.muAddr.RLock()
	defer h.muAddr.RUnlock()
	return h.addr
}

func (h *Host) isOpen() bool {
	select {
	case <-h.closed():
		return false
	default:
		return true
	}
}

func (h *Host) closed() <-chan struct{} {
	h.muClose.Lock()
	defer h.muClose.Unlock()
	return h.done
}

// Send issues c and waits for its completion. A non-zero status in the
// return parameters is reported as ErrCommand, otherwise they are decoded
// into r when r is not nil.
func (h *Host) Send(c Command, r CommandRP) error {
	b, err := h.send(c)
	if err != nil {
		return err
	}
	if len(b) > 0 && b[0] != 0x00 {
		return ErrCommand(b[0])
	}
	if r != nil {
		return r.Unmarshal(b)
	}
	return nil
}

func (h *Host) checkOpCodeFree(opCode int) error {
	h.muSent.Lock()
	defer h.muSent.Unlock()

	_, ok := h.sent[opCode]
	if ok {
		return fmt.Errorf("command with opcode 0x%04X pending", opCode)
	}

	return nil
}

func (h *Host) send(c Command) ([]byte, error) {
	done := h.closed()
	select {
	case <-done:
		return nil, ErrClosed
	default:
	}

	if c.Len() > maxHciPayload {
		return nil, errors.Wrapf(bthost.ErrInvalidSize, "command 0x%04X: %d bytes", c.OpCode(), c.Len())
	}
	if err := h.checkOpCodeFree(c.OpCode()); err != nil {
		return nil, err
	}

	//HCI header, the transport carries the packet type
	b := make([]byte, 3+c.Len())
	b[0] = byte(c.OpCode())
	b[1] = byte(c.OpCode() >> 8)
	b[2] = byte(c.Len())
	if err := c.Marshal(b[3:]); err != nil {
		return nil, errors.Wrap(err, "hci: failed to marshal cmd")
	}

	p := &pkt{c, make(chan []byte, 1)}
	h.muSent.Lock()
	h.sent[c.OpCode()] = p
	h.muSent.Unlock()

	// clear sent table when done, a late completion must not find a stale packet
	defer func() {
		h.muSent.Lock()
		delete(h.sent, c.OpCode())
		h.muSent.Unlock()
	}()

	if n := h.hal.TransmitData(DataTypeCommand, b); n != len(b) {
		return nil, errors.Errorf("hci: failed to send cmd 0x%04X", c.OpCode())
	}

	select {
	case <-time.After(h.timeout):
		err := fmt.Errorf("hci: no response to command 0x%04X", c.OpCode())
		h.log.Errorf("%v, pkt: %s", err, hex.EncodeToString(b))
		h.dispatchError(err)
		return nil, err
	case <-done:
		return nil, ErrClosed
	case ret := <-p.done:
		return ret, nil
	}
}

// PacketReady implements Callbacks. The packet is pulled from the transport
// and finished before it is routed.
func (h *Host) PacketReady(p Packet) {
	b := make([]byte, p.Len)
	n := h.hal.ReadData(p.Type, b)
	h.hal.PacketFinished(p.Type)
	b = b[:n]

	var err error
	switch p.Type {
	case DataTypeEvent:
		err = h.handleEvt(b)
	case DataTypeACL:
		err = h.handleACL(b)
	default:
		err = fmt.Errorf("unsupported %v packet: % X", p.Type, b)
	}

	if err != nil {
		h.log.Warn(err)
	}
}

func (h *Host) handleACL(b []byte) error {
	h.muHandlers.RLock()
	f := h.aclh
	h.muHandlers.RUnlock()

	if f == nil {
		h.log.Debugf("dropping acl packet, %d bytes", len(b))
		return nil
	}
	f(b)
	return nil
}

func (h *Host) handleEvt(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("short event packet: % X", b)
	}
	code, plen := int(b[0]), int(b[1])
	if plen != len(b[2:]) {
		return fmt.Errorf("invalid event packet: % X", b)
	}

	h.muHandlers.RLock()
	f := h.evth[code]
	h.muHandlers.RUnlock()

	if f != nil {
		return f(b[2:])
	}
	if code == evtVendor { // Ignore vendor events
		return nil
	}
	return fmt.Errorf("unsupported event packet: % X", b)
}

func (h *Host) handleLEMeta(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("empty LE event")
	}

	h.muHandlers.RLock()
	f := h.subh[int(b[0])]
	h.muHandlers.RUnlock()

	if f != nil {
		return f(b)
	}
	h.log.Debugf("unhandled LE event: % X", b)
	return nil
}

func (h *Host) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)

	// NOP command, used for flow control purpose [Vol 2, Part E, 4.4]
	if e.CommandOpcode() == 0x0000 {
		return nil
	}

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()
	if !found {
		return fmt.Errorf("can't find the cmd for CommandCompleteEP: % X", b)
	}

	select {
	case p.done <- e.ReturnParameters():
		return nil
	default:
		return fmt.Errorf("duplicate completion for 0x%04X", e.CommandOpcode())
	}
}

func (h *Host) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)
	if !e.Valid() {
		err := fmt.Errorf("invalid command status: % X", b)
		h.dispatchError(err)
		return err
	}

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()
	if !found {
		return fmt.Errorf("can't find the cmd for CommandStatusEP: % X", b)
	}

	select {
	case p.done <- []byte{e.Status()}:
		return nil
	default:
		return fmt.Errorf("duplicate status for 0x%04X", e.CommandOpcode())
	}
}

func (h *Host) handleHardwareError(b []byte) error {
	err := fmt.Errorf("controller hardware error 0x%02X", evt.HardwareError(b).HardwareCode())
	h.dispatchError(err)
	return err
}

func (h *Host) dispatchError(e error) {
	switch {
	case h.errorHandler == nil:
		h.log.Error(e)
	case !h.isOpen():
		//don't dispatch
		h.log.Debug("hci closing: ", e)
	default:
		h.errorHandler(e)
	}
}
