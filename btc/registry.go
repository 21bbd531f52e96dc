package btc

import (
	"github.com/cornelk/hashmap"
)

// Profile is the handler table of one subsystem. Call runs API call
// envelopes, Event runs controller and engine events. Both run on the worker
// serving the subsystem.
type Profile struct {
	Call  func(m *Msg)
	Event func(m *Msg)
}

// Registry holds per subsystem profile handlers and application callbacks.
// Workers read it concurrently with API goroutines updating callbacks.
type Registry struct {
	profiles  *hashmap.Map[uint8, Profile]
	callbacks *hashmap.Map[uint8, interface{}]
}

func NewRegistry() *Registry {
	return &Registry{
		profiles:  hashmap.New[uint8, Profile](),
		callbacks: hashmap.New[uint8, interface{}](),
	}
}

func (r *Registry) SetProfile(s Subsystem, p Profile) {
	r.profiles.Set(uint8(s), p)
}

func (r *Registry) Profile(s Subsystem) (Profile, bool) {
	return r.profiles.Get(uint8(s))
}

// SetCallback stores the application callback of s. A nil cb clears it.
func (r *Registry) SetCallback(s Subsystem, cb interface{}) {
	if cb == nil {
		r.callbacks.Del(uint8(s))
		return
	}
	r.callbacks.Set(uint8(s), cb)
}

func (r *Registry) Callback(s Subsystem) interface{} {
	cb, ok := r.callbacks.Get(uint8(s))
	if !ok {
		return nil
	}
	return cb
}
