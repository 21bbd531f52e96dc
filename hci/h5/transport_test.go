package h5

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rigado/bthost/btc"
	"github.com/rigado/bthost/config"
	"github.com/rigado/bthost/hci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upper struct {
	t   *Transport
	got chan []byte
}

func (u *upper) PacketReady(p hci.Packet) {
	b := make([]byte, p.Len)
	n := u.t.ReadData(p.Type, b)
	u.t.PacketFinished(p.Type)
	u.got <- b[:n]
}

// fakeController answers the link handshake and completes every command.
type fakeController struct {
	tr *Transport

	mu sync.Mutex
	rx bytes.Buffer

	wmu    sync.Mutex
	dec    *slipDecoder
	frames chan frame

	seq       uint8
	ack       uint8
	dropFirst bool

	smu     sync.Mutex
	cmdSeqs []uint8
	acks    []uint8
}

func newFakeController() *fakeController {
	c := &fakeController{
		dec:    newSlipDecoder(4096),
		frames: make(chan frame, 64),
	}
	return c
}

func (c *fakeController) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx.Read(b)
}

func (c *fakeController) Write(b []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	for _, x := range b {
		body, _ := c.dec.feed(x)
		if body == nil {
			continue
		}
		f, err := parseFrame(body)
		if err != nil {
			continue
		}
		select {
		case c.frames <- f:
		default:
		}
	}
	return len(b), nil
}

func (c *fakeController) push(t byte, reliable bool, payload []byte) {
	seq := uint8(0)
	if reliable {
		seq = c.seq
		c.seq = (c.seq + 1) & 0x07
	}
	b := buildFrame(t, seq, c.ack, false, reliable, payload)

	c.mu.Lock()
	c.rx.Write(b)
	c.mu.Unlock()
	c.tr.RecvAvailable()
}

func (c *fakeController) serve() {
	for f := range c.frames {
		switch f.hdr.pktType() {
		case pktLinkControl:
			switch {
			case bytes.HasPrefix(f.payload, msgSync):
				c.push(pktLinkControl, false, msgSyncResp)
			case bytes.HasPrefix(f.payload, msgConfig):
				c.push(pktLinkControl, false, []byte{0x04, 0x7B, f.payload[2]})
			}
		case pktCommand:
			c.smu.Lock()
			c.cmdSeqs = append(c.cmdSeqs, f.hdr.seq())
			c.smu.Unlock()
			if c.dropFirst {
				c.dropFirst = false
				continue
			}
			if f.hdr.seq() == c.ack {
				c.ack = (c.ack + 1) & 0x07
			}
			p := f.payload
			c.push(pktEvent, true, []byte{0x0E, 0x04, 0x01, p[0], p[1], 0x00})
		case pktACK:
			c.smu.Lock()
			c.acks = append(c.acks, f.hdr.ack())
			c.smu.Unlock()
		}
	}
}

func (c *fakeController) seqs() []uint8 {
	c.smu.Lock()
	defer c.smu.Unlock()
	return append([]uint8(nil), c.cmdSeqs...)
}

func (c *fakeController) lastAck() (uint8, bool) {
	c.smu.Lock()
	defer c.smu.Unlock()
	if len(c.acks) == 0 {
		return 0, false
	}
	return c.acks[len(c.acks)-1], true
}

func testConfig() config.H5 {
	cfg := config.Default().H5
	cfg.SyncInterval = 10 * time.Millisecond
	cfg.RetransmitTimeout = 30 * time.Millisecond
	cfg.SyncRetries = 50
	return cfg
}

func openTransport(t *testing.T, port Port) (*Transport, *upper) {
	tr := New(btc.NewDispatcher(), port, testConfig())
	u := &upper{t: tr, got: make(chan []byte, 16)}
	require.NoError(t, tr.Open(u))
	t.Cleanup(tr.Close)
	return tr, u
}

func TestCorruptionWorkaround(t *testing.T) {
	tr := New(btc.NewDispatcher(), &bytes.Buffer{}, testConfig())

	var handled []bool
	for _, c := range []byte{0x3E, 0x02, 0xAA, 0xBB, 0xCC} {
		handled = append(handled, tr.streamCorruptedDuringLEScan(c))
	}
	assert.Equal(t, []bool{true, true, true, true, false}, handled)
	assert.False(t, tr.corruptionDetected)
	assert.Equal(t, uint8(0), tr.corruptionBytesToIgnore)

	// zero length clears immediately
	assert.True(t, tr.streamCorruptedDuringLEScan(0x3E))
	assert.True(t, tr.streamCorruptedDuringLEScan(0x00))
	assert.False(t, tr.corruptionDetected)
}

func TestCorruptionBeforeFrame(t *testing.T) {
	tr, u := openTransport(t, &bytes.Buffer{})
	tr.eng.state = linkActive

	b := []byte{0x3E, 0x02, 0xAA, 0xBB}
	b = append(b, buildFrame(pktEvent, 0, 0, false, true, []byte{0x0E, 0x01, 0x01})...)
	tr.eng.feed(b)

	select {
	case got := <-u.got:
		assert.Equal(t, []byte{0x0E, 0x01, 0x01}, got)
	default:
		t.Fatal("packet not delivered")
	}
	assert.False(t, tr.hasInterpretation)
}

func TestCorruptionEndsAtFrameStart(t *testing.T) {
	tr, u := openTransport(t, &bytes.Buffer{})
	tr.eng.state = linkActive

	// the skip count runs out long after the frame
	b := []byte{0x3E, 0x05, 0xAA}
	b = append(b, buildFrame(pktEvent, 0, 0, false, true, []byte{0x0E, 0x01, 0x01})...)
	tr.eng.feed(b)

	select {
	case got := <-u.got:
		assert.Equal(t, []byte{0x0E, 0x01, 0x01}, got)
	default:
		t.Fatal("packet not delivered")
	}
	assert.False(t, tr.corruptionDetected)
	assert.Equal(t, uint8(0), tr.corruptionBytesToIgnore)

	// a sentinel after the frame starts a fresh skip
	tr.eng.feed([]byte{0x3E})
	assert.True(t, tr.corruptionDetected)
}

func TestReadDataRejects(t *testing.T) {
	tr, _ := openTransport(t, &bytes.Buffer{})
	b := make([]byte, 16)

	// no interpretation
	assert.Equal(t, 0, tr.ReadData(hci.DataTypeEvent, b))

	tr.eng.rx = []byte{0x01, 0x02}
	tr.currentDataType = hci.DataTypeEvent
	tr.hasInterpretation = true

	assert.Equal(t, 0, tr.ReadData(hci.DataTypeACL, b))
	assert.Equal(t, 0, tr.ReadData(hci.DataTypeCommand, b))
	assert.Equal(t, 0, tr.ReadData(hci.DataTypeEvent, nil))
	assert.Equal(t, 2, tr.ReadData(hci.DataTypeEvent, b))

	tr.PacketFinished(hci.DataTypeACL)
	assert.False(t, tr.hasInterpretation)
	assert.Equal(t, 0, tr.ReadData(hci.DataTypeEvent, b))
}

func TestTransmitDataRejects(t *testing.T) {
	port := &bytes.Buffer{}
	tr, _ := openTransport(t, port)

	assert.Equal(t, 0, tr.TransmitData(hci.DataTypeCommand, nil))
	assert.Equal(t, 0, tr.TransmitData(hci.DataTypeCommand, []byte{0x03}))
	assert.Equal(t, 0, tr.TransmitData(hci.DataTypeEvent, []byte{0x0E, 0x00}))

	// link not established
	assert.Equal(t, 0, tr.TransmitData(hci.DataTypeCommand, []byte{0x03, 0x0C, 0x00}))
	assert.Zero(t, port.Len())
}

func TestTransmitClosed(t *testing.T) {
	tr := New(btc.NewDispatcher(), &bytes.Buffer{}, testConfig())
	assert.Equal(t, 0, tr.TransmitData(hci.DataTypeCommand, []byte{0x03, 0x0C, 0x00}))
	assert.Error(t, tr.Open(nil))
}

func TestLinkAndCommand(t *testing.T) {
	c := newFakeController()
	tr, u := openTransport(t, c)
	c.tr = tr
	go c.serve()

	require.Equal(t, 3, tr.TransmitData(hci.DataTypeCommand, []byte{0xEE, 0xFC, 0x00}))
	require.True(t, tr.eng.active())

	require.Equal(t, 3, tr.TransmitData(hci.DataTypeCommand, []byte{0x03, 0x0C, 0x00}))
	select {
	case got := <-u.got:
		assert.Equal(t, []byte{0x0E, 0x04, 0x01, 0x03, 0x0C, 0x00}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no command complete")
	}

	// the event was acknowledged
	assert.Eventually(t, func() bool {
		a, ok := c.lastAck()
		return ok && a >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint8(0), c.seqs()[0])
}

func TestRetransmit(t *testing.T) {
	c := newFakeController()
	c.dropFirst = true
	tr, u := openTransport(t, c)
	c.tr = tr
	go c.serve()

	require.Equal(t, 3, tr.TransmitData(hci.DataTypeCommand, []byte{0xEE, 0xFC, 0x00}))
	require.Equal(t, 3, tr.TransmitData(hci.DataTypeCommand, []byte{0x03, 0x0C, 0x00}))

	select {
	case <-u.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no command complete")
	}
	seqs := c.seqs()
	require.GreaterOrEqual(t, len(seqs), 2)
	assert.Equal(t, uint8(0), seqs[0])
	assert.Equal(t, uint8(0), seqs[1])
}

func TestCloseStopsWorker(t *testing.T) {
	d := btc.NewDispatcher()
	tr := New(d, &bytes.Buffer{}, testConfig())
	require.NoError(t, tr.Open(&upper{t: tr, got: make(chan []byte, 1)}))
	w := d.Worker(btc.SubsysHCIH5)
	require.NotNil(t, w)
	require.True(t, w.Running())

	tr.Close()
	assert.False(t, w.Running())
	assert.Nil(t, d.Worker(btc.SubsysHCIH5))
	assert.Error(t, tr.RecvAvailable())

	// reopen
	require.NoError(t, tr.Open(&upper{t: tr, got: make(chan []byte, 1)}))
	tr.Close()
}
