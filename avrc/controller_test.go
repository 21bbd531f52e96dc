package avrc

import (
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/btc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	enabled int32
	d       *btc.Dispatcher
}

func (s *stack) CheckEnabled() error {
	if atomic.LoadInt32(&s.enabled) == 0 {
		return bthost.ErrInvalidState
	}
	return nil
}

func (s *stack) Dispatcher() *btc.Dispatcher { return s.d }

type engine struct {
	calls chan string
	fail  bool
}

func (e *engine) record(format string, args ...interface{}) error {
	e.calls <- fmt.Sprintf(format, args...)
	if e.fail {
		return errors.New("engine failure")
	}
	return nil
}

func (e *engine) Init() error   { return e.record("init") }
func (e *engine) Deinit() error { return e.record("deinit") }

func (e *engine) SetPlayerValue(tl uint8, attr PlayerAttr, value uint8) error {
	return e.record("set player value %d %d %d", tl, attr, value)
}

func (e *engine) RegisterNotification(tl uint8, event NotifyEvent, param uint32) error {
	return e.record("register notification %d %d %d", tl, event, param)
}

func (e *engine) GetElementAttr(tl uint8, mask AttrMask) error {
	return e.record("metadata %d 0x%02X", tl, uint8(mask))
}

func (e *engine) Passthrough(tl uint8, key KeyCode, state KeyState) error {
	return e.record("passthrough %d 0x%02X %d", tl, uint8(key), state)
}

func newController(t *testing.T, enabled bool) (*Controller, *stack, *engine) {
	s := &stack{d: btc.NewDispatcher()}
	if enabled {
		s.enabled = 1
	}
	w, err := s.d.NewWorker("avrc", 8)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	s.d.Attach(w, btc.SubsysAVRC)
	t.Cleanup(w.Stop)

	e := &engine{calls: make(chan string, 16)}
	c, err := NewController(s, e)
	require.NoError(t, err)
	return c, s, e
}

func next(t *testing.T, e *engine) string {
	select {
	case c := <-e.calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("engine not called")
		return ""
	}
}

func TestNewControllerArgs(t *testing.T) {
	_, err := NewController(nil, &engine{})
	assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(err))
	_, err = NewController(&stack{d: btc.NewDispatcher()}, nil)
	assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(err))
}

func TestRequiresEnabled(t *testing.T) {
	c, s, _ := newController(t, false)

	calls := map[string]func() error{
		"callback":     func() error { return c.RegisterCallback(func(Event) {}) },
		"init":         c.Init,
		"deinit":       c.Deinit,
		"player value": func() error { return c.SendSetPlayerValueCmd(0, PlayerRepeatMode, 1) },
		"notification": func() error { return c.SendRegisterNotificationCmd(0, NotifyTrackChange, 0) },
		"metadata":     func() error { return c.SendMetadataCmd(0, AttrTitle) },
		"passthrough":  func() error { return c.SendPassthroughCmd(0, KeyPlay, KeyPressed) },
	}
	for name, fn := range calls {
		assert.Equal(t, bthost.ErrInvalidState, errors.Cause(fn()), name)
	}
	assert.Equal(t, uint64(0), s.d.Activity())
}

func TestInvalidArguments(t *testing.T) {
	c, s, _ := newController(t, true)

	assert.Equal(t, bthost.ErrFail, errors.Cause(c.RegisterCallback(nil)))

	tests := []struct {
		name string
		fn   func() error
	}{
		{"label 16 passthrough", func() error { return c.SendPassthroughCmd(16, KeyPlay, KeyPressed) }},
		{"label 16 metadata", func() error { return c.SendMetadataCmd(16, AttrTitle) }},
		{"label 16 player value", func() error { return c.SendSetPlayerValueCmd(16, PlayerEqualizer, 1) }},
		{"label 16 notification", func() error { return c.SendRegisterNotificationCmd(16, NotifyTrackChange, 0) }},
		{"player attr 5", func() error { return c.SendSetPlayerValueCmd(0, 5, 1) }},
		{"notify event 9", func() error { return c.SendRegisterNotificationCmd(0, 9, 0) }},
		{"key state 2", func() error { return c.SendPassthroughCmd(0, KeyPlay, 2) }},
	}
	for _, tt := range tests {
		assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(tt.fn()), tt.name)
	}
	assert.Equal(t, uint64(0), s.d.Activity())
}

func TestCommandsReachEngine(t *testing.T) {
	c, _, e := newController(t, true)

	require.NoError(t, c.Init())
	require.NoError(t, c.SendSetPlayerValueCmd(15, PlayerScanMode, 2))
	require.NoError(t, c.SendRegisterNotificationCmd(1, NotifyAppSettingChange, 1000))
	require.NoError(t, c.SendMetadataCmd(2, AttrTitle|AttrArtist))
	require.NoError(t, c.SendPassthroughCmd(3, KeyPause, KeyReleased))
	require.NoError(t, c.Deinit())

	assert.Equal(t, "init", next(t, e))
	assert.Equal(t, "set player value 15 4 2", next(t, e))
	assert.Equal(t, "register notification 1 8 1000", next(t, e))
	assert.Equal(t, "metadata 2 0x03", next(t, e))
	assert.Equal(t, "passthrough 3 0x46 1", next(t, e))
	assert.Equal(t, "deinit", next(t, e))
}

func TestEngineFailureIsDropped(t *testing.T) {
	c, _, e := newController(t, true)
	e.fail = true

	assert.NoError(t, c.SendPassthroughCmd(0, KeyStop, KeyPressed))
	assert.Equal(t, "passthrough 0 0x45 0", next(t, e))
}

func TestDispatchFailure(t *testing.T) {
	s := &stack{enabled: 1, d: btc.NewDispatcher()}
	c, err := NewController(s, &engine{calls: make(chan string, 1)})
	require.NoError(t, err)

	assert.Equal(t, bthost.ErrFail, errors.Cause(c.Init()))
	assert.Equal(t, bthost.ErrFail, errors.Cause(c.Deliver(PlayStatusRsp{})))
}

func TestDeliver(t *testing.T) {
	c, _, _ := newController(t, true)

	got := make(chan Event, 4)
	require.NoError(t, c.RegisterCallback(func(e Event) { got <- e }))

	remote := net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	require.NoError(t, c.Deliver(ConnectionState{Connected: true, Remote: remote}))
	require.NoError(t, c.Deliver(ChangeNotify{Event: NotifyPlayPosChanged, Param: 42}))
	assert.Equal(t, bthost.ErrInvalidArg, errors.Cause(c.Deliver(nil)))

	for _, want := range []Event{
		ConnectionState{Connected: true, Remote: remote},
		ChangeNotify{Event: NotifyPlayPosChanged, Param: 42},
	} {
		select {
		case e := <-got:
			assert.Equal(t, want, e)
		case <-time.After(time.Second):
			t.Fatalf("%v not delivered", want)
		}
	}
}

func TestEventStrings(t *testing.T) {
	assert.Equal(t, "passthrough rsp: tl 3 key 0x44 state 1", PassthroughRsp{Label: 3, Key: KeyPlay, State: KeyReleased}.String())
	assert.Equal(t, "remote features: 0x0042 remote ", RemoteFeatures{Features: FeatController | FeatMetadata}.String())
}
