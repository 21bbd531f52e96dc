package adv

import (
	"github.com/pkg/errors"
)

// https://www.bluetooth.org/en-us/specification/assigned-numbers/generic-access-profile
var types = struct {
	flags       byte
	uuid16inc   byte
	uuid16comp  byte
	uuid32inc   byte
	uuid32comp  byte
	uuid128inc  byte
	uuid128comp byte
	nameshort   byte
	namecomp    byte
	txpwr       byte
	connint     byte
	sol16       byte
	sol128      byte
	svc16       byte
	appearance  byte
	sol32       byte
	svc32       byte
	svc128      byte
	mfgdata     byte
}{
	flags:       0x01,
	uuid16inc:   0x02,
	uuid16comp:  0x03,
	uuid32inc:   0x04,
	uuid32comp:  0x05,
	uuid128inc:  0x06,
	uuid128comp: 0x07,
	nameshort:   0x08,
	namecomp:    0x09,
	txpwr:       0x0a,
	connint:     0x12,
	sol16:       0x14,
	sol128:      0x15,
	svc16:       0x16,
	appearance:  0x19,
	sol32:       0x1f,
	svc32:       0x20,
	svc128:      0x21,
	mfgdata:     0xff,
}

// incomplete and complete lists share a key, as do both name forms
var keys = struct {
	flags       string
	uuid16inc   string
	uuid16comp  string
	uuid32inc   string
	uuid32comp  string
	uuid128inc  string
	uuid128comp string
	nameshort   string
	namecomp    string
	txpwr       string
	connint     string
	sol16       string
	sol128      string
	svc16       string
	appearance  string
	sol32       string
	svc32       string
	svc128      string
	mfgdata     string
}{
	flags:       "flags",
	uuid16inc:   "uuid16",
	uuid16comp:  "uuid16",
	uuid32inc:   "uuid32",
	uuid32comp:  "uuid32",
	uuid128inc:  "uuid128",
	uuid128comp: "uuid128",
	nameshort:   "name",
	namecomp:    "name",
	txpwr:       "txpwr",
	connint:     "connint",
	sol16:       "sol16",
	sol128:      "sol128",
	svc16:       "svc16",
	appearance:  "appearance",
	sol32:       "sol32",
	svc32:       "svc32",
	svc128:      "svc128",
	mfgdata:     "mfg",
}

type pduRecord struct {
	arrayElementSz int
	minSz          int
	key            string
}

var pduDecodeMap = map[byte]pduRecord{
	types.flags:       {0, 1, keys.flags},
	types.uuid16inc:   {2, 2, keys.uuid16inc},
	types.uuid16comp:  {2, 2, keys.uuid16comp},
	types.uuid32inc:   {4, 4, keys.uuid32inc},
	types.uuid32comp:  {4, 4, keys.uuid32comp},
	types.uuid128inc:  {16, 16, keys.uuid128inc},
	types.uuid128comp: {16, 16, keys.uuid128comp},
	types.nameshort:   {0, 1, keys.nameshort},
	types.namecomp:    {0, 1, keys.namecomp},
	types.txpwr:       {0, 1, keys.txpwr},
	types.connint:     {0, 4, keys.connint},
	types.sol16:       {2, 2, keys.sol16},
	types.sol128:      {16, 16, keys.sol128},
	types.svc16:       {0, 2, keys.svc16},
	types.appearance:  {0, 2, keys.appearance},
	types.sol32:       {4, 4, keys.sol32},
	types.svc32:       {0, 4, keys.svc32},
	types.svc128:      {0, 16, keys.svc128},
	types.mfgdata:     {0, 1, keys.mfgdata},
}

func getArray(size int, bytes []byte) ([]interface{}, error) {
	if size <= 0 {
		return nil, errors.New("invalid size")
	}
	if len(bytes) == 0 {
		return nil, errors.New("nil/empty bytes")
	}

	count := len(bytes) / size
	if len(bytes)%size != 0 || count == 0 {
		return nil, errors.New("incorrect size")
	}

	arr := make([]interface{}, 0, count)
	for j := 0; j < len(bytes); j += size {
		arr = append(arr, bytes[j:j+size])
	}
	return arr, nil
}

func decode(pdu []byte) (map[string]interface{}, error) {
	if pdu == nil {
		return nil, errors.New("nil pdu")
	}

	m := make(map[string]interface{})
	for i := 0; (i + 1) < len(pdu); {
		//length @ offset 0
		//type @ offset 1
		//data @ 2 - (length-1)
		length := int(pdu[i])
		typ := pdu[i+1]

		//length should be more than 1 since there is a type byte
		if length < 1 {
			return nil, errors.Errorf("invalid record length %d", length)
		}

		//do we have all the bytes for the payload?
		if (i + length) >= len(pdu) {
			return nil, errors.Errorf("buffer overflow: want %v, have %v", i+length, len(pdu))
		}

		start := i + 2
		end := start + length - 1
		bytes := pdu[start:end]
		i += length + 1

		dec, ok := pduDecodeMap[typ]
		if !ok {
			continue
		}
		if dec.minSz > len(bytes) {
			return nil, errors.Errorf("adv type 0x%02x: min length %v, have %v", typ, dec.minSz, len(bytes))
		}

		if dec.arrayElementSz == 0 {
			m[dec.key] = bytes
			continue
		}

		arr, err := getArray(dec.arrayElementSz, bytes)
		if err != nil {
			return nil, errors.Wrapf(err, "adv type 0x%02x", typ)
		}
		//incomplete and complete lists accumulate
		if prev, ok := m[dec.key].([]interface{}); ok {
			arr = append(prev, arr...)
		}
		m[dec.key] = arr
	}

	return m, nil
}
