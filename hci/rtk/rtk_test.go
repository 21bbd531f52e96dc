package rtk

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/rigado/bthost/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaudToRate(t *testing.T) {
	r, ok := BaudToRate(Baud4M)
	assert.True(t, ok)
	assert.Equal(t, uint(4000000), r)

	r, ok = BaudToRate(Baud600)
	assert.True(t, ok)
	assert.Equal(t, uint(600), r)

	for _, b := range []Baud{Baud300, Baud2400, BaudAuto, Baud(99)} {
		r, ok = BaudToRate(b)
		assert.False(t, ok)
		assert.Equal(t, uint(115200), r)
	}

	b, err := RateToBaud(921600)
	require.NoError(t, err)
	assert.Equal(t, Baud921600, b)
	_, err = RateToBaud(2400)
	assert.Error(t, err)
}

func TestNewFormat(t *testing.T) {
	f, err := NewFormat(8, "even", 1)
	require.NoError(t, err)
	assert.Equal(t, InitCfg.Fmt, f)

	_, err = NewFormat(9, "even", 1)
	assert.Error(t, err)
	_, err = NewFormat(8, "mark", 1)
	assert.Error(t, err)
	_, err = NewFormat(8, "none", 3)
	assert.Error(t, err)
}

type pipeOpener struct {
	mu    sync.Mutex
	opts  []serial.OpenOptions
	peers []net.Conn
}

func (p *pipeOpener) open(o serial.OpenOptions) (io.ReadWriteCloser, error) {
	a, b := net.Pipe()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = append(p.opts, o)
	p.peers = append(p.peers, b)
	return a, nil
}

func (p *pipeOpener) peer() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peers[len(p.peers)-1]
}

type events struct {
	mu  sync.Mutex
	evs []Event
	n   int
}

func (e *events) RecvAvailable() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	return nil
}

func (e *events) record(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
}

func (e *events) all() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.evs...)
}

func TestUserialReadWrite(t *testing.T) {
	po := &pipeOpener{}
	u := NewUserial("/dev/null", 64)
	u.SetOpener(po.open)

	ev := &events{}
	require.NoError(t, u.Open(InitCfg, ev.record))
	defer u.Close()

	o := po.opts[0]
	assert.Equal(t, uint(115200), o.BaudRate)
	assert.Equal(t, uint(8), o.DataBits)
	assert.Equal(t, serial.PARITY_EVEN, o.ParityMode)
	assert.Equal(t, uint(1), o.StopBits)
	assert.False(t, o.RTSCTSFlowControl)

	_, err := po.peer().Write([]byte{0xC0, 0x01, 0x02})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(ev.all()) > 0 }, time.Second, time.Millisecond)

	b := make([]byte, 16)
	n, err := u.Read(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x01, 0x02}, b[:n])

	n, err = u.Read(b)
	assert.Zero(t, n)
	assert.Error(t, err)

	go func() {
		_, _ = u.Write([]byte{0xAA})
	}()
	got := make([]byte, 1)
	_, err = io.ReadFull(po.peer(), got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, got)
}

func TestUserialOverflow(t *testing.T) {
	po := &pipeOpener{}
	u := NewUserial("/dev/null", 4)
	u.SetOpener(po.open)

	ev := &events{}
	require.NoError(t, u.Open(InitCfg, ev.record))
	defer u.Close()

	_, err := po.peer().Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return u.Overflows() > 0 }, time.Second, time.Millisecond)
	assert.Contains(t, ev.all(), EventOverflow)
}

func TestUserialClosed(t *testing.T) {
	u := NewUserial("/dev/null", 4)
	_, err := u.Read(make([]byte, 1))
	assert.Equal(t, ErrClosed, err)
	_, err = u.Write([]byte{1})
	assert.Equal(t, ErrClosed, err)
	assert.NoError(t, u.Close())
}

func TestUserialSetBaud(t *testing.T) {
	po := &pipeOpener{}
	u := NewUserial("/dev/null", 64)
	u.SetOpener(po.open)

	require.NoError(t, u.Open(InitCfg, nil))
	defer u.Close()

	u.SetHWFlowControl(true)
	require.NoError(t, u.SetBaud(Baud921600))
	require.Len(t, po.opts, 2)
	assert.Equal(t, uint(921600), po.opts[1].BaudRate)
	assert.True(t, po.opts[1].RTSCTSFlowControl)

	assert.Error(t, u.SetBaud(BaudAuto))
}

func TestUserialBadConfig(t *testing.T) {
	u := NewUserial("/dev/null", 64)
	u.SetOpener((&pipeOpener{}).open)
	assert.Error(t, u.Open(Cfg{Fmt: DataBits8 | StopBits1, Baud: Baud115200}, nil))
	assert.Error(t, u.Open(Cfg{Fmt: InitCfg.Fmt, Baud: BaudAuto}, nil))
}

type fakePower struct {
	states []bool
}

func (p *fakePower) SetBluetoothPower(on bool) error {
	p.states = append(p.states, on)
	return nil
}

func TestVendorOps(t *testing.T) {
	po := &pipeOpener{}
	u := NewUserial("/dev/null", 64)
	u.SetOpener(po.open)

	p := &fakePower{}
	v := NewVendor(u, p)
	v.SetPowerDelays(0, 0)

	assert.Error(t, v.Init(nil))

	var epilog, fw []Result
	require.NoError(t, v.Init(&Callbacks{
		FwCfg:  func(r Result) { fw = append(fw, r) },
		Epilog: func(r Result) { epilog = append(epilog, r) },
	}))

	require.NoError(t, v.PowerCtrl(true))
	require.NoError(t, v.PowerCtrl(false))
	assert.Equal(t, []bool{true, false}, p.states)

	assert.Equal(t, -1, v.ScoCfg())

	v.FwCfg()
	v.Epilog()
	assert.Equal(t, []Result{ResultSuccess}, fw)
	assert.Equal(t, []Result{ResultSuccess}, epilog)

	ev := &events{}
	require.NoError(t, v.UserialOpen(Bridge(ev)))
	_, err := po.peer().Write([]byte{0x01})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		return ev.n > 0
	}, time.Second, time.Millisecond)
	require.NoError(t, v.UserialClose())

	v.Cleanup()
	v.Epilog()
	assert.Len(t, epilog, 1)
}

func TestVendorFromConfig(t *testing.T) {
	v, err := NewVendorFromConfig(config.Default().UART, nil)
	require.NoError(t, err)
	assert.Equal(t, InitCfg, v.cfg)

	c := config.Default().UART
	c.Baud = 1234
	_, err = NewVendorFromConfig(c, nil)
	assert.Error(t, err)
}

func TestVendorFwCfgFlowControl(t *testing.T) {
	po := &pipeOpener{}
	u := NewUserial("/dev/null", 64)
	u.SetOpener(po.open)

	v := NewVendor(u, nil)
	v.cfg.FlowControl = true

	var fw []Result
	require.NoError(t, v.Init(&Callbacks{FwCfg: func(r Result) { fw = append(fw, r) }}))

	require.NoError(t, v.UserialOpen(nil))
	defer v.UserialClose()
	v.FwCfg()

	assert.Equal(t, []Result{ResultSuccess}, fw)
	require.Len(t, po.opts, 2)
	assert.False(t, po.opts[0].RTSCTSFlowControl)
	assert.True(t, po.opts[1].RTSCTSFlowControl)
	assert.Equal(t, po.opts[0].BaudRate, po.opts[1].BaudRate)
}

func TestVendorFwCfgReopenFails(t *testing.T) {
	po := &pipeOpener{}
	opens := 0
	u := NewUserial("/dev/null", 64)
	u.SetOpener(func(o serial.OpenOptions) (io.ReadWriteCloser, error) {
		opens++
		if opens > 1 {
			return nil, io.ErrClosedPipe
		}
		return po.open(o)
	})

	v := NewVendor(u, nil)
	v.cfg.FlowControl = true

	var fw []Result
	require.NoError(t, v.Init(&Callbacks{FwCfg: func(r Result) { fw = append(fw, r) }}))

	require.NoError(t, v.UserialOpen(nil))
	v.FwCfg()
	assert.Equal(t, []Result{ResultFail}, fw)
	assert.Equal(t, "fail", fw[0].String())
}
