package stack

import (
	"bytes"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/btc"
	"github.com/rigado/bthost/hci"
	"github.com/rigado/bthost/hci/rtk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controller is a HAL completing every command it is sent.
type controller struct {
	mu     sync.Mutex
	cb     hci.Callbacks
	cur    []byte
	h5Init int
	opens  int
	failH5 bool
}

func (c *controller) Open(cb hci.Callbacks) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
	c.opens++
	return nil
}

func (c *controller) Close() {}

func (c *controller) ReadData(t hci.DataType, b []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copy(b, c.cur)
}

func (c *controller) PacketFinished(t hci.DataType) {}

func (c *controller) TransmitData(t hci.DataType, b []byte) int {
	op := uint16(b[0]) | uint16(b[1])<<8
	if op == hci.OpcodeVSCH5Init {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.h5Init++
		if c.failH5 {
			return 0
		}
		return len(b)
	}

	ev := []byte{0x0E, 0x04, 0x01, b[0], b[1], 0x00}
	if op == 0x1009 {
		ev = append(ev, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01)
		ev[1] = byte(len(ev) - 2)
	}
	go func() {
		c.mu.Lock()
		c.cur = ev
		cb := c.cb
		c.mu.Unlock()
		cb.PacketReady(hci.Packet{Type: hci.DataTypeEvent, Len: len(ev)})
	}()
	return len(b)
}

type vendor struct {
	mu       sync.Mutex
	calls    []string
	initErr  error
	powerErr error
	fwResult rtk.Result
	cb       *rtk.Callbacks
}

func (v *vendor) record(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, s)
}

func (v *vendor) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

func (v *vendor) Init(cb *rtk.Callbacks) error {
	v.record("init")
	v.mu.Lock()
	v.cb = cb
	v.mu.Unlock()
	return v.initErr
}

// FwCfg reports asynchronously, the way the controller answers on the UART.
func (v *vendor) FwCfg() {
	v.record("fw cfg")
	v.mu.Lock()
	cb, r := v.cb, v.fwResult
	v.mu.Unlock()
	go cb.FwCfg(r)
}

func (v *vendor) ScoCfg() int {
	v.record("sco cfg")
	return -1
}

func (v *vendor) PowerCtrl(on bool) error {
	if on {
		v.record("power on")
		return v.powerErr
	}
	v.record("power off")
	return nil
}

func (v *vendor) UserialOpen(onEvent rtk.EventFunc) error {
	v.record("userial open")
	return nil
}

func (v *vendor) UserialClose() error {
	v.record("userial close")
	return nil
}

func (v *vendor) Port() io.ReadWriter { return &bytes.Buffer{} }
func (v *vendor) Epilog()             { v.record("epilog") }
func (v *vendor) Cleanup()            { v.record("cleanup") }

func newStack(t *testing.T, c *controller, v *vendor) *Stack {
	s, err := New(bthost.OptTransport(c), bthost.OptVendor(v))
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestEnableWhileUninitialized(t *testing.T) {
	s := newStack(t, &controller{}, &vendor{})

	err := s.Enable()
	assert.Equal(t, bthost.ErrInvalidState, errors.Cause(err))
	assert.Equal(t, uint64(0), s.Dispatcher().Activity())
	assert.Equal(t, bthost.StateUninitialized, s.Status())
}

func TestLifecycle(t *testing.T) {
	c := &controller{}
	v := &vendor{}
	s := newStack(t, c, v)

	require.NoError(t, s.Init())
	assert.Equal(t, bthost.StateInitialized, s.Status())
	assert.Equal(t, bthost.ErrInvalidState, errors.Cause(s.Init()))
	assert.Equal(t, bthost.ErrInvalidState, errors.Cause(s.Disable()))
	assert.Error(t, s.CheckEnabled())
	assert.Nil(t, s.Address())

	require.NoError(t, s.Enable())
	assert.Equal(t, bthost.StateEnabled, s.Status())
	assert.NoError(t, s.CheckEnabled())
	assert.Equal(t, "01:02:03:04:05:06", s.Address().String())
	assert.Equal(t, 1, c.h5Init)

	assert.Equal(t, bthost.ErrInvalidState, errors.Cause(s.Deinit()))

	require.NoError(t, s.Disable())
	assert.Equal(t, bthost.StateInitialized, s.Status())
	require.NoError(t, s.Deinit())
	assert.Equal(t, bthost.StateUninitialized, s.Status())

	assert.Equal(t, []string{
		"init",
		"power on", "userial open", "fw cfg", "sco cfg", "epilog",
		"userial close", "power off",
		"cleanup",
	}, v.Calls())

	for _, sub := range []btc.Subsystem{btc.SubsysMain, btc.SubsysAVRC, btc.SubsysGapBLE, btc.SubsysDev} {
		assert.Nil(t, s.Dispatcher().Worker(sub), sub.String())
	}

	// a full cycle again
	require.NoError(t, s.Init())
	require.NoError(t, s.Enable())
	assert.Equal(t, 2, c.opens)
}

func TestInitFailure(t *testing.T) {
	v := &vendor{initErr: errors.New("no callbacks")}
	s := newStack(t, &controller{}, v)

	err := s.Init()
	assert.Equal(t, bthost.ErrFail, errors.Cause(err))
	assert.Equal(t, bthost.StateUninitialized, s.Status())
	assert.Nil(t, s.Dispatcher().Worker(btc.SubsysMain))
}

func TestEnableFailure(t *testing.T) {
	v := &vendor{powerErr: errors.New("gpio")}
	s := newStack(t, &controller{}, v)
	require.NoError(t, s.Init())

	err := s.Enable()
	assert.Equal(t, bthost.ErrFail, errors.Cause(err))
	assert.Equal(t, bthost.StateInitialized, s.Status())
}

func TestEnableLinkFailure(t *testing.T) {
	c := &controller{failH5: true}
	v := &vendor{}
	s := newStack(t, c, v)
	require.NoError(t, s.Init())

	assert.Equal(t, bthost.ErrFail, errors.Cause(s.Enable()))
	assert.Equal(t, bthost.StateInitialized, s.Status())
	assert.Equal(t, []string{"init", "power on", "userial open", "fw cfg", "userial close", "power off"}, v.Calls())
}

func TestEnableFirmwareConfigFailure(t *testing.T) {
	c := &controller{}
	v := &vendor{fwResult: rtk.ResultFail}
	s := newStack(t, c, v)
	require.NoError(t, s.Init())

	assert.Equal(t, bthost.ErrFail, errors.Cause(s.Enable()))
	assert.Equal(t, bthost.StateInitialized, s.Status())
	assert.Equal(t, []string{"init", "power on", "userial open", "fw cfg", "userial close", "power off"}, v.Calls())
	assert.Equal(t, 0, c.h5Init)
	assert.Equal(t, 0, c.opens)

	// a later enable with a healthy controller succeeds
	v.mu.Lock()
	v.fwResult = rtk.ResultSuccess
	v.mu.Unlock()
	require.NoError(t, s.Enable())
	assert.Equal(t, bthost.StateEnabled, s.Status())
}

func TestTransitionsNeverTear(t *testing.T) {
	s := newStack(t, &controller{}, &vendor{})
	ops := []struct {
		name string
		from bthost.State
		to   bthost.State
		fn   func() error
	}{
		{"init", bthost.StateUninitialized, bthost.StateInitialized, s.Init},
		{"enable", bthost.StateInitialized, bthost.StateEnabled, s.Enable},
		{"disable", bthost.StateEnabled, bthost.StateInitialized, s.Disable},
		{"deinit", bthost.StateInitialized, bthost.StateUninitialized, s.Deinit},
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		op := ops[rnd.Intn(len(ops))]
		before := s.Status()
		err := op.fn()
		if before != op.from {
			assert.Equal(t, bthost.ErrInvalidState, errors.Cause(err), op.name)
			assert.Equal(t, before, s.Status(), op.name)
			continue
		}
		require.NoError(t, err, op.name)
		assert.Equal(t, op.to, s.Status(), op.name)
	}
}

func TestOptions(t *testing.T) {
	_, err := New(bthost.OptTransport("uart"))
	assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(err))

	_, err = New(bthost.OptVendor(42))
	assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(err))

	_, err = New(bthost.OptQueueLen("bogus", 4))
	assert.Error(t, err)
	_, err = New(bthost.OptQueueLen("gap", 0))
	assert.Error(t, err)
	_, err = New(bthost.OptCommandTimeout(0))
	assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(err))

	var seen []error
	s, err := New(
		bthost.OptCommandTimeout(250*time.Millisecond),
		bthost.OptErrorHandler(func(err error) { seen = append(seen, err) }),
	)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.cmdTimeout)
	s.errorHandler(io.EOF)
	assert.Equal(t, []error{io.EOF}, seen)

	s, err = New(
		bthost.OptTransportH5Uart("/dev/ttyUSB3"),
		bthost.OptQueueLen("h5", 8),
		bthost.OptCapture(&bytes.Buffer{}),
	)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", s.Config().UART.Port)
	assert.Equal(t, 8, s.Config().H5.QueueLen)
	assert.NotNil(t, s.h5)
}
