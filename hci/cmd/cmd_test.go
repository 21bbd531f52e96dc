package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodes(t *testing.T) {
	assert.Equal(t, 0x0C03, (&Reset{}).OpCode())
	assert.Equal(t, 0x1009, (&ReadBDADDR{}).OpCode())
	assert.Equal(t, 0x0406, (&Disconnect{}).OpCode())
	assert.Equal(t, 0x200C, (&LESetScanEnable{}).OpCode())
	assert.Equal(t, 0x2022, (&LESetDataLength{}).OpCode())
	assert.Equal(t, 0x1405, (&ReadRSSI{}).OpCode())
}

func TestMarshalScanParameters(t *testing.T) {
	c := &LESetScanParameters{
		LEScanType:     1,
		LEScanInterval: 0x0010,
		LEScanWindow:   0x0008,
		OwnAddressType: 1,
	}
	b := make([]byte, c.Len())
	require.NoError(t, c.Marshal(b))
	assert.Equal(t, []byte{0x01, 0x10, 0x00, 0x08, 0x00, 0x01, 0x00}, b)
}

func TestMarshalAdvertisingParameters(t *testing.T) {
	c := &LESetAdvertisingParameters{
		AdvertisingIntervalMin: 0x0020,
		AdvertisingIntervalMax: 0x0040,
		AdvertisingChannelMap:  0x07,
	}
	b := make([]byte, c.Len())
	require.NoError(t, c.Marshal(b))
	assert.Equal(t, []byte{0x20, 0x00, 0x40, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x07, 0}, b)
}

func TestMarshalShortBuffer(t *testing.T) {
	c := &LESetDataLength{}
	assert.Error(t, c.Marshal(make([]byte, 2)))
}

func TestUnmarshalRP(t *testing.T) {
	rp := ReadBDADDRRP{}
	require.NoError(t, rp.Unmarshal([]byte{0x00, 1, 2, 3, 4, 5, 6}))
	assert.Equal(t, [6]byte{1, 2, 3, 4, 5, 6}, rp.BDADDR)

	rssi := ReadRSSIRP{}
	require.NoError(t, rssi.Unmarshal([]byte{0x00, 0x40, 0x00, 0xC4}))
	assert.Equal(t, uint16(0x0040), rssi.ConnectionHandle)
	assert.Equal(t, int8(-60), rssi.RSSI)
}
