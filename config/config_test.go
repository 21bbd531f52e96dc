package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, uint(115200), c.UART.Baud)
	assert.Equal(t, uint(8), c.UART.DataBits)
	assert.Equal(t, "even", c.UART.Parity)
	assert.Equal(t, uint(1), c.UART.StopBits)
	assert.False(t, c.UART.FlowControl)
	assert.Equal(t, 250*time.Millisecond, c.H5.RetransmitTimeout)
	assert.Equal(t, 4, c.H5.Window)
	require.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bthost.yaml")
	body := []byte(`
log:
  level: debug
uart:
  port: /dev/ttyUSB3
  baud: 921600
h5:
  window: 7
  retransmit_timeout: 1s
queues:
  gap: 64
`)
	require.NoError(t, os.WriteFile(p, body, 0644))

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "/dev/ttyUSB3", c.UART.Port)
	assert.Equal(t, uint(921600), c.UART.Baud)
	assert.Equal(t, 7, c.H5.Window)
	assert.Equal(t, time.Second, c.H5.RetransmitTimeout)
	assert.Equal(t, 64, c.Queues.GAP)
	assert.Equal(t, 16, c.Queues.Main)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BTHOST_UART_PORT", "/dev/ttyACM0")
	t.Setenv("BTHOST_H5_CRC", "true")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", c.UART.Port)
	assert.True(t, c.H5.CRC)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.UART.Baud = 12345
	assert.Error(t, c.Validate())

	c = Default()
	c.H5.Window = 8
	assert.Error(t, c.Validate())

	c = Default()
	c.Queues.AVRC = 0
	assert.Error(t, c.Validate())

	c = Default()
	c.UART.Parity = "mark"
	assert.Error(t, c.Validate())
}
