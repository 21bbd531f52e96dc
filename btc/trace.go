package btc

import (
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// TraceRecord is one post attempt.
type TraceRecord struct {
	At     time.Time `json:"at"`
	Sig    Signal    `json:"sig"`
	Subsys Subsystem `json:"subsys"`
	Act    Action    `json:"act"`
	Err    string    `json:"err,omitempty"`
}

// Trace keeps the most recent post attempts, oldest overwritten first.
type Trace struct {
	ring mpmc.RichOverlappedRingBuffer[TraceRecord]
}

func NewTrace(size uint32) *Trace {
	return &Trace{ring: mpmc.NewOverlappedRingBuffer[TraceRecord](size)}
}

func (t *Trace) add(m Msg, err error) {
	rec := TraceRecord{At: time.Now(), Sig: m.Sig, Subsys: m.Subsys, Act: m.Act}
	if err != nil {
		rec.Err = err.Error()
	}
	_, _ = t.ring.EnqueueM(rec)
}

// Drain removes and returns the buffered records, oldest first.
func (t *Trace) Drain() []TraceRecord {
	var out []TraceRecord
	for !t.ring.IsEmpty() {
		rec, err := t.ring.Dequeue()
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out
}
