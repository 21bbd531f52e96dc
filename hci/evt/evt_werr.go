package evt

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var errIndex = errors.New("index error")

func (e CommandComplete) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e CommandComplete) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e CommandComplete) ReturnParametersWErr() ([]byte, error) {
	if len(e) == 3 {
		return []byte{}, nil
	}
	return getBytes(e, 3, -1)
}

func (e LEConnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 1, 0xff)
}

func (e LEConnectionComplete) ConnectionHandleWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

func (e LEConnectionComplete) RoleWErr() (uint8, error) {
	return getByte(e, 4, 0xff)
}

func (e LEConnectionComplete) PeerAddressTypeWErr() (uint8, error) {
	return getByte(e, 5, 0xff)
}

func (e LEConnectionComplete) PeerAddressWErr() ([6]byte, error) {
	out := [6]byte{}
	bb, err := getBytes(e, 6, 6)
	if err != nil {
		return out, err
	}
	copy(out[:], bb)
	return out, nil
}

func (e LEConnectionComplete) ConnIntervalWErr() (uint16, error) {
	return getUint16LE(e, 12, 0)
}

// Reports are laid out field by field: all event types, then all address
// types, then all addresses, then all data lengths, data and rssi values.

func (e LEAdvertisingReport) SubeventCodeWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e LEAdvertisingReport) NumReportsWErr() (uint8, error) {
	return getByte(e, 1, 0)
}

func (e LEAdvertisingReport) EventTypeWErr(i int) (uint8, error) {
	return getByte(e, 2+i, 0xff)
}

func (e LEAdvertisingReport) AddressTypeWErr(i int) (uint8, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return 0, err
	}
	return getByte(e, 2+int(nr)+i, 0xff)
}

func (e LEAdvertisingReport) AddressWErr(i int) ([6]byte, error) {
	out := [6]byte{}
	nr, err := e.NumReportsWErr()
	if err != nil {
		return out, err
	}

	bb, err := getBytes(e, 2+int(nr)*2+6*i, 6)
	if err != nil {
		return out, err
	}
	copy(out[:], bb)
	return out, nil
}

func (e LEAdvertisingReport) LengthDataWErr(i int) (uint8, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return 0, err
	}
	return getByte(e, 2+int(nr)*8+i, 0)
}

func (e LEAdvertisingReport) DataWErr(i int) ([]byte, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return nil, err
	}

	off := 0
	for j := 0; j < i; j++ {
		l, err := e.LengthDataWErr(j)
		if err != nil {
			return nil, err
		}
		off += int(l)
	}

	l, err := e.LengthDataWErr(i)
	if err != nil {
		return nil, err
	}
	if l == 0 {
		return []byte{}, nil
	}
	return getBytes(e, 2+int(nr)*9+off, int(l))
}

func (e LEAdvertisingReport) RSSIWErr(i int) (int8, error) {
	nr, err := e.NumReportsWErr()
	if err != nil {
		return 0, err
	}

	total := 0
	for j := 0; j < int(nr); j++ {
		l, err := e.LengthDataWErr(j)
		if err != nil {
			return 0, err
		}
		total += int(l)
	}

	v, err := getByte(e, 2+int(nr)*9+total+i, 0)
	return int8(v), err
}

//get or default
func getByte(b []byte, i int, def byte) (byte, error) {
	bb, err := getBytes(b, i, 1)
	if err != nil {
		return def, err
	}
	return bb[0], nil
}

//get or default
func getUint16LE(b []byte, i int, def uint16) (uint16, error) {
	bb, err := getBytes(b, i, 2)
	if err != nil {
		return def, err
	}
	return binary.LittleEndian.Uint16(bb), nil
}

func getBytes(b []byte, start int, count int) ([]byte, error) {
	if b == nil || start >= len(b) {
		return nil, errIndex
	}
	if count < 0 {
		return b[start:], nil
	}

	end := start + count
	if end > len(b) {
		return nil, errIndex
	}
	return b[start:end], nil
}
