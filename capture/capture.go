// Package capture records HCI packets crossing the transport as a stream of
// CBOR records.
package capture

import (
	"io"
	"sync"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/rigado/bthost/hci"
)

const (
	DirTX = "tx"
	DirRX = "rx"
)

// Record is one captured packet.
type Record struct {
	TS   time.Time    `cbor:"ts" json:"ts"`
	Dir  string       `cbor:"dir" json:"dir"`
	Type hci.DataType `cbor:"type" json:"type"`
	Data []byte       `cbor:"data" json:"data"`
}

// Writer appends records to an io.Writer. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	err error
	n   int
}

func NewWriter(w io.Writer) (*Writer, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return &Writer{enc: em.NewEncoder(w)}, nil
}

// Packet implements the transport tap.
func (w *Writer) Packet(out bool, t hci.DataType, b []byte) {
	dir := DirRX
	if out {
		dir = DirTX
	}
	w.Write(Record{TS: time.Now().UTC(), Dir: dir, Type: t, Data: append([]byte(nil), b...)})
}

// Write encodes r. After the first failure every write is skipped and the
// error is kept for Err.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(r); err != nil {
		w.err = errors.Wrap(err, "capture")
		return w.err
	}
	w.n++
	return nil
}

// Count returns the records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Reader iterates the records of a capture.
type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) (*Reader, error) {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return &Reader{dec: dm.NewDecoder(r)}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	err := r.dec.Decode(&rec)
	return rec, err
}

// ReadAll returns every record until EOF.
func ReadAll(rd io.Reader) ([]Record, error) {
	r, err := NewReader(rd)
	if err != nil {
		return nil, err
	}

	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, errors.Wrap(err, "capture")
		}
		out = append(out, rec)
	}
}
