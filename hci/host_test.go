package hci

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHAL struct {
	mu      sync.Mutex
	cb      Callbacks
	cur     []byte
	curType DataType
	sent    [][]byte
	closed  bool

	injMu   sync.Mutex
	respond func(op uint16, b []byte) [][]byte
}

func (f *fakeHAL) Open(cb Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	return nil
}

func (f *fakeHAL) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeHAL) ReadData(t DataType, b []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t != f.curType || f.cur == nil {
		return 0
	}
	return copy(b, f.cur)
}

func (f *fakeHAL) PacketFinished(t DataType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = nil
}

func (f *fakeHAL) TransmitData(t DataType, b []byte) int {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), b...))
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		evs := respond(uint16(b[0])|uint16(b[1])<<8, b)
		go func() {
			for _, e := range evs {
				f.inject(DataTypeEvent, e)
			}
		}()
	}
	return len(b)
}

func (f *fakeHAL) inject(t DataType, b []byte) {
	f.injMu.Lock()
	defer f.injMu.Unlock()

	f.mu.Lock()
	f.cur, f.curType = b, t
	cb := f.cb
	f.mu.Unlock()
	cb.PacketReady(Packet{Type: t, Len: len(b)})
}

func (f *fakeHAL) opcodes() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint16
	for _, b := range f.sent {
		out = append(out, uint16(b[0])|uint16(b[1])<<8)
	}
	return out
}

func cc(op uint16, params ...byte) []byte {
	b := []byte{0x0E, byte(3 + len(params)), 0x01, byte(op), byte(op >> 8)}
	return append(b, params...)
}

func cs(op uint16, status byte) []byte {
	return []byte{0x0F, 0x04, status, 0x01, byte(op), byte(op >> 8)}
}

func openHost(t *testing.T, respond func(op uint16, b []byte) [][]byte) (*Host, *fakeHAL) {
	f := &fakeHAL{respond: respond}
	h := NewHost(f)
	require.NoError(t, h.Open())
	t.Cleanup(func() { h.Close() })
	return h, f
}

func TestHostInit(t *testing.T) {
	h, f := openHost(t, func(op uint16, b []byte) [][]byte {
		if op == 0x1009 {
			return [][]byte{cc(op, 0x00, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11)}
		}
		return [][]byte{cc(op, 0x00)}
	})

	require.NoError(t, h.Init())
	assert.Equal(t, "11:22:33:44:55:66", h.Addr().String())
	assert.Equal(t, []uint16{0x0C03, 0x1009, 0x0C01, 0x2001}, f.opcodes())

	// header carries opcode and length, no packet type
	f.mu.Lock()
	assert.Equal(t, []byte{0x03, 0x0C, 0x00}, f.sent[0])
	assert.Len(t, f.sent[2], 3+8)
	f.mu.Unlock()
}

func TestHostSendStatus(t *testing.T) {
	h, _ := openHost(t, func(op uint16, b []byte) [][]byte {
		switch op {
		case 0x0C03:
			return [][]byte{cc(op, 0x0C)}
		case 0x0406:
			return [][]byte{cs(op, 0x00)}
		default:
			return [][]byte{cs(op, 0x12)}
		}
	})

	err := h.Send(&fakeCmd{op: 0x0C03}, nil)
	assert.Equal(t, ErrCommandDisallowed, err)

	assert.NoError(t, h.Send(&fakeCmd{op: 0x0406, n: 3}, nil))
	assert.Equal(t, ErrInvalidParameters, h.Send(&fakeCmd{op: 0x2013, n: 14}, nil))
}

func TestHostSendTimeout(t *testing.T) {
	h, _ := openHost(t, nil)
	h.SetCommandTimeout(50 * time.Millisecond)

	var got error
	h.SetErrorHandler(func(err error) { got = err })

	err := h.Send(&fakeCmd{op: 0x0C03}, nil)
	require.Error(t, err)
	assert.Error(t, got)

	// the opcode is free again
	assert.NoError(t, h.checkOpCodeFree(0x0C03))
}

func TestHostSendClosed(t *testing.T) {
	h, f := openHost(t, nil)
	require.NoError(t, h.Close())
	assert.True(t, f.closed)

	assert.Equal(t, ErrClosed, h.Send(&fakeCmd{op: 0x0C03}, nil))
	assert.Empty(t, f.opcodes())
}

func TestHostOversizedCommand(t *testing.T) {
	h, f := openHost(t, nil)
	assert.Error(t, h.Send(&fakeCmd{op: 0x0C13, n: 300}, nil))
	assert.Empty(t, f.opcodes())
}

func TestHostEventRouting(t *testing.T) {
	h, f := openHost(t, nil)

	var sub, disc []byte
	h.SetSubeventHandler(0x02, func(b []byte) error { sub = b; return nil })
	h.SetEventHandler(0x05, func(b []byte) error { disc = b; return nil })

	f.inject(DataTypeEvent, []byte{0x3E, 0x03, 0x02, 0x01, 0x02})
	assert.Equal(t, []byte{0x02, 0x01, 0x02}, sub)

	f.inject(DataTypeEvent, []byte{0x05, 0x04, 0x00, 0x40, 0x00, 0x13})
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0x13}, disc)

	// bad parameter length is dropped
	disc = nil
	f.inject(DataTypeEvent, []byte{0x05, 0x09, 0x00})
	assert.Nil(t, disc)

	// the host keeps command complete for itself
	h.SetEventHandler(0x0E, nil)
	h.muHandlers.RLock()
	assert.NotNil(t, h.evth[0x0E])
	h.muHandlers.RUnlock()
}

func TestHostACL(t *testing.T) {
	h, f := openHost(t, nil)

	var got []byte
	h.SetACLHandler(func(b []byte) { got = b })
	f.inject(DataTypeACL, []byte{0x40, 0x20, 0x01, 0x00, 0xAA})
	assert.Equal(t, []byte{0x40, 0x20, 0x01, 0x00, 0xAA}, got)
}

type fakeCmd struct {
	op int
	n  int
}

func (c *fakeCmd) OpCode() int            { return c.op }
func (c *fakeCmd) Len() int               { return c.n }
func (c *fakeCmd) Marshal(b []byte) error { return nil }
