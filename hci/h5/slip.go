package h5

const (
	slipDelimiter = 0xC0
	slipEsc       = 0xDB
	slipEscDelim  = 0xDC
	slipEscEsc    = 0xDD
)

// slipEncode wraps b in delimiters and escapes the reserved bytes.
func slipEncode(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/8+2)
	out = append(out, slipDelimiter)
	for _, c := range b {
		switch c {
		case slipDelimiter:
			out = append(out, slipEsc, slipEscDelim)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, c)
		}
	}
	return append(out, slipDelimiter)
}

type slipState int

const (
	slipOutside slipState = iota
	slipInside
	slipEscaped
)

// slipDecoder reassembles frames one byte at a time.
type slipDecoder struct {
	state slipState
	buf   []byte
	max   int
}

func newSlipDecoder(max int) *slipDecoder {
	return &slipDecoder{max: max, buf: make([]byte, 0, max)}
}

// feed consumes c. It returns a complete frame when c closes one, and
// outside=true when c arrived between frames.
func (d *slipDecoder) feed(c byte) (frame []byte, outside bool) {
	switch d.state {
	case slipOutside:
		if c == slipDelimiter {
			d.state = slipInside
			d.buf = d.buf[:0]
			return nil, false
		}
		return nil, true

	case slipInside:
		switch c {
		case slipDelimiter:
			if len(d.buf) == 0 {
				// back to back delimiters, keep waiting for the body
				return nil, false
			}
			frame = append([]byte(nil), d.buf...)
			d.reset()
			return frame, false
		case slipEsc:
			d.state = slipEscaped
			return nil, false
		}
		d.push(c)
		return nil, false

	case slipEscaped:
		d.state = slipInside
		switch c {
		case slipEscDelim:
			d.push(slipDelimiter)
		case slipEscEsc:
			d.push(slipEsc)
		default:
			// invalid escape, drop the frame
			d.reset()
		}
		return nil, false
	}
	return nil, true
}

func (d *slipDecoder) push(c byte) {
	if len(d.buf) >= d.max {
		d.reset()
		return
	}
	d.buf = append(d.buf, c)
}

func (d *slipDecoder) reset() {
	d.state = slipOutside
	d.buf = d.buf[:0]
}
