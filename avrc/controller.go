// Package avrc is the AVRCP controller API. Calls are validated on the
// caller's goroutine and run on the AVRC worker against an Engine.
package avrc

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/btc"
)

// Stack is the part of the lifecycle manager the controller needs.
type Stack interface {
	CheckEnabled() error
	Dispatcher() *btc.Dispatcher
}

// Engine is the AVRCP profile engine. It is only called from the AVRC worker.
type Engine interface {
	Init() error
	Deinit() error
	SetPlayerValue(tl uint8, attr PlayerAttr, value uint8) error
	RegisterNotification(tl uint8, event NotifyEvent, param uint32) error
	GetElementAttr(tl uint8, mask AttrMask) error
	Passthrough(tl uint8, key KeyCode, state KeyState) error
}

const (
	actInit btc.Action = iota + 1
	actDeinit
	actSetPlayerValue
	actRegisterNotification
	actMetadata
	actPassthrough

	actIndication
)

var actNames = map[btc.Action]string{
	actInit:                 "init",
	actDeinit:               "deinit",
	actSetPlayerValue:       "set player value",
	actRegisterNotification: "register notification",
	actMetadata:             "metadata",
	actPassthrough:          "passthrough",
	actIndication:           "indication",
}

type playerValueArg struct {
	tl    uint8
	attr  PlayerAttr
	value uint8
}

type notificationArg struct {
	tl    uint8
	event NotifyEvent
	param uint32
}

type metadataArg struct {
	tl   uint8
	mask AttrMask
}

type passthroughArg struct {
	tl    uint8
	key   KeyCode
	state KeyState
}

type Controller struct {
	s   Stack
	d   *btc.Dispatcher
	eng Engine
	log bthost.Logger
}

// NewController registers the AVRC profile with the stack's dispatcher.
func NewController(s Stack, eng Engine) (*Controller, error) {
	if s == nil || eng == nil {
		return nil, errors.Wrap(bthost.ErrInvalidArg, "avrc: stack and engine are required")
	}
	c := &Controller{
		s:   s,
		d:   s.Dispatcher(),
		eng: eng,
		log: bthost.Component("avrc"),
	}
	c.d.Registry().SetProfile(btc.SubsysAVRC, btc.Profile{
		Call:  c.handleCall,
		Event: c.handleEvent,
	})
	return c, nil
}

// RegisterCallback sets the receiver of engine indications.
func (c *Controller) RegisterCallback(cb Callback) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if cb == nil {
		return errors.Wrap(bthost.ErrFail, "avrc: nil callback")
	}
	c.d.Registry().SetCallback(btc.SubsysAVRC, cb)
	return nil
}

func (c *Controller) Init() error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	return c.call(actInit, nil)
}

func (c *Controller) Deinit() error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	return c.call(actDeinit, nil)
}

// SendSetPlayerValueCmd sets a player application setting on the target.
func (c *Controller) SendSetPlayerValueCmd(tl uint8, attr PlayerAttr, value uint8) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if err := checkLabel(tl); err != nil {
		return err
	}
	if attr > maxPlayerAttr {
		return errors.Wrapf(bthost.ErrInvalidArg, "avrc: player attribute %d", attr)
	}
	return c.call(actSetPlayerValue, playerValueArg{tl: tl, attr: attr, value: value})
}

// SendRegisterNotificationCmd asks the target to notify event.
func (c *Controller) SendRegisterNotificationCmd(tl uint8, event NotifyEvent, param uint32) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if err := checkLabel(tl); err != nil {
		return err
	}
	if event > maxNotifyEvent {
		return errors.Wrapf(bthost.ErrInvalidArg, "avrc: notification event %d", event)
	}
	return c.call(actRegisterNotification, notificationArg{tl: tl, event: event, param: param})
}

// SendMetadataCmd requests the attributes of the playing element.
func (c *Controller) SendMetadataCmd(tl uint8, mask AttrMask) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if err := checkLabel(tl); err != nil {
		return err
	}
	return c.call(actMetadata, metadataArg{tl: tl, mask: mask})
}

// SendPassthroughCmd sends a key press or release.
func (c *Controller) SendPassthroughCmd(tl uint8, key KeyCode, state KeyState) error {
	if err := c.s.CheckEnabled(); err != nil {
		return err
	}
	if err := checkLabel(tl); err != nil {
		return err
	}
	if state > KeyReleased {
		return errors.Wrapf(bthost.ErrInvalidArg, "avrc: key state %d", state)
	}
	return c.call(actPassthrough, passthroughArg{tl: tl, key: key, state: state})
}

// Deliver hands an engine indication to the AVRC worker, which passes it to
// the registered callback. It never blocks.
func (c *Controller) Deliver(e Event) error {
	if e == nil {
		return errors.Wrap(bthost.ErrInvalidArg, "avrc: nil event")
	}
	if err := c.d.PostEvent(btc.SubsysAVRC, actIndication, e); err != nil {
		return errors.Wrapf(bthost.ErrFail, "avrc: %v: %v", e, err)
	}
	return nil
}

func checkLabel(tl uint8) error {
	if tl > maxLabel {
		return errors.Wrapf(bthost.ErrInvalidArg, "avrc: transaction label %d", tl)
	}
	return nil
}

func (c *Controller) call(act btc.Action, arg interface{}) error {
	if err := c.d.Call(btc.SubsysAVRC, act, arg); err != nil {
		return errors.Wrapf(bthost.ErrFail, "avrc %s: %v", actNames[act], err)
	}
	return nil
}

func (c *Controller) handleCall(m *btc.Msg) {
	var err error
	switch m.Act {
	case actInit:
		err = c.eng.Init()
	case actDeinit:
		err = c.eng.Deinit()
	case actSetPlayerValue:
		a := m.Arg.(playerValueArg)
		err = c.eng.SetPlayerValue(a.tl, a.attr, a.value)
	case actRegisterNotification:
		a := m.Arg.(notificationArg)
		err = c.eng.RegisterNotification(a.tl, a.event, a.param)
	case actMetadata:
		a := m.Arg.(metadataArg)
		err = c.eng.GetElementAttr(a.tl, a.mask)
	case actPassthrough:
		a := m.Arg.(passthroughArg)
		err = c.eng.Passthrough(a.tl, a.key, a.state)
	default:
		err = fmt.Errorf("unknown action %d", m.Act)
	}
	if err != nil {
		c.log.Errorf("%s: %v", actNames[m.Act], err)
	}
}

func (c *Controller) handleEvent(m *btc.Msg) {
	e, ok := m.Arg.(Event)
	if !ok {
		c.log.Warnf("unexpected indication %T", m.Arg)
		return
	}
	cb, _ := c.d.Registry().Callback(btc.SubsysAVRC).(Callback)
	if cb == nil {
		c.log.Debugf("no callback for %v", e)
		return
	}
	cb(e)
}
