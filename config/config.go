// Package config loads bthost settings from YAML files and BTHOST_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Log     Log     `mapstructure:"log"`
	UART    UART    `mapstructure:"uart"`
	H5      H5      `mapstructure:"h5"`
	Queues  Queues  `mapstructure:"queues"`
	Capture Capture `mapstructure:"capture"`
	// PeerStore is the JSON file holding preferred connection params and whitelist entries.
	PeerStore string `mapstructure:"peer_store"`
}

// Log defines logger settings.
type Log struct {
	Level      string `mapstructure:"level" default:"info"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" default:"10"`
	MaxBackups int    `mapstructure:"max_backups" default:"3"`
	MaxAgeDays int    `mapstructure:"max_age_days" default:"28"`
	Timestamps bool   `mapstructure:"timestamps" default:"false"`
}

// UART describes the serial line to the controller.
type UART struct {
	Port        string `mapstructure:"port" default:"/dev/ttyS1"`
	Baud        uint   `mapstructure:"baud" default:"115200"`
	DataBits    uint   `mapstructure:"data_bits" default:"8"`
	Parity      string `mapstructure:"parity" default:"even"`
	StopBits    uint   `mapstructure:"stop_bits" default:"1"`
	FlowControl bool   `mapstructure:"flow_control" default:"false"`
	// RxBuffer is the size of the receive ring between the port reader and the h5 worker.
	RxBuffer int `mapstructure:"rx_buffer" default:"10240"`
}

// H5 tunes the three-wire engine.
type H5 struct {
	QueueLen          int           `mapstructure:"queue_len" default:"32"`
	Window            int           `mapstructure:"window" default:"4"`
	RetransmitTimeout time.Duration `mapstructure:"retransmit_timeout" default:"250ms"`
	SyncInterval      time.Duration `mapstructure:"sync_interval" default:"100ms"`
	SyncRetries       int           `mapstructure:"sync_retries" default:"30"`
	CRC               bool          `mapstructure:"crc" default:"false"`
}

// Queues sets the capacity of each dispatcher worker queue.
type Queues struct {
	Main int `mapstructure:"main" default:"16"`
	AVRC int `mapstructure:"avrc" default:"16"`
	GAP  int `mapstructure:"gap" default:"32"`
}

// Capture enables the HCI packet capture file.
type Capture struct {
	File string `mapstructure:"file"`
}

var supportedBauds = map[uint]bool{
	600: true, 1200: true, 9600: true, 19200: true, 57600: true, 115200: true,
	230400: true, 460800: true, 921600: true, 1000000: true, 1500000: true,
	2000000: true, 3000000: true, 4000000: true,
}

// Default returns a Config populated from the default tags.
func Default() Config {
	var c Config
	defaults.SetDefaults(&c)
	return c
}

// Load reads configuration from path (if non-empty), then applies environment
// overrides. Environment variables use the prefix BTHOST and `.` is replaced
// with `_`, e.g. BTHOST_UART_PORT=/dev/ttyUSB0.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BTHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.timestamps", cfg.Log.Timestamps)
	v.SetDefault("uart.port", cfg.UART.Port)
	v.SetDefault("uart.baud", cfg.UART.Baud)
	v.SetDefault("uart.data_bits", cfg.UART.DataBits)
	v.SetDefault("uart.parity", cfg.UART.Parity)
	v.SetDefault("uart.stop_bits", cfg.UART.StopBits)
	v.SetDefault("uart.flow_control", cfg.UART.FlowControl)
	v.SetDefault("uart.rx_buffer", cfg.UART.RxBuffer)
	v.SetDefault("h5.queue_len", cfg.H5.QueueLen)
	v.SetDefault("h5.window", cfg.H5.Window)
	v.SetDefault("h5.retransmit_timeout", cfg.H5.RetransmitTimeout)
	v.SetDefault("h5.sync_interval", cfg.H5.SyncInterval)
	v.SetDefault("h5.sync_retries", cfg.H5.SyncRetries)
	v.SetDefault("h5.crc", cfg.H5.CRC)
	v.SetDefault("queues.main", cfg.Queues.Main)
	v.SetDefault("queues.avrc", cfg.Queues.AVRC)
	v.SetDefault("queues.gap", cfg.Queues.GAP)
	v.SetDefault("capture.file", cfg.Capture.File)
	v.SetDefault("peer_store", cfg.PeerStore)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, errors.Wrap(err, "read config")
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges the stack depends on.
func (c *Config) Validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "trace", "debug", "info", "warn", "warning", "error":
		c.Log.Level = lvl
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if !supportedBauds[c.UART.Baud] {
		return fmt.Errorf("unsupported uart.baud: %d", c.UART.Baud)
	}
	if c.UART.DataBits < 5 || c.UART.DataBits > 8 {
		return fmt.Errorf("invalid uart.data_bits: %d", c.UART.DataBits)
	}
	switch strings.ToLower(c.UART.Parity) {
	case "none", "even", "odd":
		c.UART.Parity = strings.ToLower(c.UART.Parity)
	default:
		return fmt.Errorf("invalid uart.parity: %q", c.UART.Parity)
	}
	if c.UART.StopBits != 1 && c.UART.StopBits != 2 {
		return fmt.Errorf("invalid uart.stop_bits: %d", c.UART.StopBits)
	}
	if c.UART.RxBuffer <= 0 {
		return fmt.Errorf("invalid uart.rx_buffer: %d", c.UART.RxBuffer)
	}

	if c.H5.QueueLen <= 0 {
		return fmt.Errorf("invalid h5.queue_len: %d", c.H5.QueueLen)
	}
	if c.H5.Window < 1 || c.H5.Window > 7 {
		return fmt.Errorf("invalid h5.window: %d", c.H5.Window)
	}
	if c.H5.SyncRetries <= 0 {
		return fmt.Errorf("invalid h5.sync_retries: %d", c.H5.SyncRetries)
	}

	if c.Queues.Main <= 0 || c.Queues.AVRC <= 0 || c.Queues.GAP <= 0 {
		return fmt.Errorf("invalid queue lengths: %+v", c.Queues)
	}
	return nil
}
