// Command bthost drives a Realtek controller over an h5 uart: scanning,
// advertising and decoding HCI capture files.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/bthost"
	"github.com/rigado/bthost/config"
	"github.com/urfave/cli"
)

var cfg config.Config

func main() {
	app := cli.NewApp()

	app.Name = "bthost"
	app.Usage = "A CLI tool for the bthost stack"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "yaml configuration file"},
		cli.StringFlag{Name: "port, p", Usage: "uart device, overrides uart.port"},
		cli.BoolFlag{Name: "debug", Usage: "log at debug level"},
	}

	app.Commands = []cli.Command{
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "Scan for advertisers",
			Action:  scan,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Value: 5 * time.Second, Usage: "duration, 0 for indefinitely"},
				cli.BoolFlag{Name: "passive", Usage: "passive scanning"},
				cli.BoolFlag{Name: "dup", Usage: "allow duplicate reports"},
				cli.BoolFlag{Name: "json", Usage: "print results as json"},
			},
		},
		{
			Name:    "advertise",
			Aliases: []string{"a"},
			Usage:   "Advertise a name",
			Action:  advertise,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Value: 10 * time.Second, Usage: "duration"},
				cli.StringFlag{Name: "name, n", Value: "bthost", Usage: "device name"},
				cli.IntFlag{Name: "icon", Usage: "appearance value"},
			},
		},
		{
			Name:      "capdump",
			Usage:     "Print the records of a capture file",
			ArgsUsage: "FILE",
			Action:    capdump,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "json", Usage: "one json object per record"},
			},
		},
		{
			Name:   "config",
			Usage:  "Print the effective configuration",
			Action: showConfig,
		},
	}

	app.Before = setup
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	var err error
	cfg, err = config.Load(c.GlobalString("config"))
	if err != nil {
		return errors.Wrap(err, "can't load config")
	}
	if p := c.GlobalString("port"); p != "" {
		cfg.UART.Port = p
	}
	if c.GlobalBool("debug") {
		cfg.Log.Level = "debug"
	}

	return bthost.ConfigureLogger(bthost.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Timestamps: cfg.Log.Timestamps,
	})
}

func showConfig(c *cli.Context) error {
	b, err := jsoniter.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// wait returns after d, or on SIGINT/SIGTERM. A zero d waits for a signal
// only. done ends the wait early when it is closed.
func wait(d time.Duration, done <-chan struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var tmo <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		tmo = t.C
	}

	select {
	case <-sig:
		fmt.Printf("\n(Canceled)\n")
	case <-tmo:
	case <-done:
	}
}
