package rtk

import "fmt"

// Baud is a USERIAL baud index.
type Baud uint8

const (
	Baud300 Baud = iota
	Baud600
	Baud1200
	Baud2400
	Baud9600
	Baud19200
	Baud57600
	Baud115200
	Baud230400
	Baud460800
	Baud921600
	Baud1M
	Baud1_5M
	Baud2M
	Baud3M
	Baud4M
	BaudAuto
)

var baudRates = map[Baud]uint{
	Baud600:    600,
	Baud1200:   1200,
	Baud9600:   9600,
	Baud19200:  19200,
	Baud57600:  57600,
	Baud115200: 115200,
	Baud230400: 230400,
	Baud460800: 460800,
	Baud921600: 921600,
	Baud1M:     1000000,
	Baud1_5M:   1500000,
	Baud2M:     2000000,
	Baud3M:     3000000,
	Baud4M:     4000000,
}

// BaudToRate converts an index to bits per second. Unsupported indices
// yield 115200 and false.
func BaudToRate(b Baud) (uint, bool) {
	if r, ok := baudRates[b]; ok {
		return r, true
	}
	return 115200, false
}

// RateToBaud is the inverse of BaudToRate.
func RateToBaud(rate uint) (Baud, error) {
	for b, r := range baudRates {
		if r == rate {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unsupported baud rate %d", rate)
}

// Format is a set of USERIAL line format flags.
type Format uint16

const (
	DataBits5 Format = 1 << iota
	DataBits6
	DataBits7
	DataBits8
	ParityNone
	ParityEven
	ParityOdd
	StopBits1
	StopBits1_5
	StopBits2
)

// NewFormat builds a Format from config style values.
func NewFormat(dataBits uint, parity string, stopBits uint) (Format, error) {
	var f Format
	switch dataBits {
	case 5:
		f |= DataBits5
	case 6:
		f |= DataBits6
	case 7:
		f |= DataBits7
	case 8:
		f |= DataBits8
	default:
		return 0, fmt.Errorf("unsupported data bits %d", dataBits)
	}

	switch parity {
	case "none":
		f |= ParityNone
	case "even":
		f |= ParityEven
	case "odd":
		f |= ParityOdd
	default:
		return 0, fmt.Errorf("unsupported parity %q", parity)
	}

	switch stopBits {
	case 1:
		f |= StopBits1
	case 2:
		f |= StopBits2
	default:
		return 0, fmt.Errorf("unsupported stop bits %d", stopBits)
	}
	return f, nil
}

// Cfg is a serial line configuration.
type Cfg struct {
	Fmt         Format
	Baud        Baud
	FlowControl bool
}
