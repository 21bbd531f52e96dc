package capture

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rigado/bthost/hci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	cmd := []byte{0x03, 0x0C, 0x00}
	w.Packet(true, hci.DataTypeCommand, cmd)
	cmd[0] = 0xFF
	w.Packet(false, hci.DataTypeEvent, []byte{0x0E, 0x04, 0x01, 0x03, 0x0C, 0x00})
	require.NoError(t, w.Err())
	assert.Equal(t, 2, w.Count())

	recs, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, DirTX, recs[0].Dir)
	assert.Equal(t, hci.DataTypeCommand, recs[0].Type)
	assert.Equal(t, []byte{0x03, 0x0C, 0x00}, recs[0].Data)
	assert.False(t, recs[0].TS.IsZero())

	assert.Equal(t, DirRX, recs[1].Dir)
	assert.Equal(t, hci.DataTypeEvent, recs[1].Type)
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestCaptureWriteError(t *testing.T) {
	w, err := NewWriter(failWriter{})
	require.NoError(t, err)

	w.Packet(true, hci.DataTypeCommand, []byte{0x01})
	assert.Error(t, w.Err())
	assert.Error(t, w.Write(Record{}))
	assert.Zero(t, w.Count())
}

func TestCaptureTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.Packet(true, hci.DataTypeACL, []byte{0x01, 0x02, 0x03})

	b := buf.Bytes()[:buf.Len()-2]
	_, err := ReadAll(bytes.NewReader(b))
	assert.Error(t, err)
}
