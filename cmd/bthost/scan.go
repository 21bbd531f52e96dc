package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/bthost/gap"
	"github.com/urfave/cli"
)

var (
	addrColor = color.New(color.FgCyan)
	connColor = color.New(color.FgGreen)
	nameColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

func printResult(r gap.ScanResult) {
	addrColor.Printf("[%s]", r.Addr)
	if r.Connectable() {
		connColor.Printf(" C")
	} else {
		fmt.Printf(" N")
	}
	fmt.Printf(" %3d:", r.RSSI)

	comma := ""
	if n := r.LocalName(); n != "" {
		fmt.Printf(" Name: ")
		nameColor.Printf("%s", n)
		comma = ","
	}
	if r.Adv != nil {
		if u := r.Adv.UUIDs(); len(u) > 0 {
			fmt.Printf("%s Svcs: %v", comma, u)
			comma = ","
		}
		if md := r.Adv.ManufacturerData(); len(md) > 0 {
			fmt.Printf("%s MD: %X", comma, md)
		}
	}
	fmt.Printf("\n")
}

func scan(c *cli.Context) error {
	d, err := openDevice()
	if err != nil {
		return err
	}
	defer d.close()

	asJSON := c.Bool("json")
	stopped := make(chan struct{})
	var once sync.Once
	err = d.gap.RegisterCallback(func(e gap.Event) {
		switch e := e.(type) {
		case gap.ScanResult:
			if !asJSON {
				printResult(e)
				return
			}
			b, err := jsoniter.Marshal(e.ToMap())
			if err == nil {
				fmt.Println(string(b))
			}
		case gap.ScanStarted:
			if e.Status != 0 {
				errColor.Printf("scan start failed: 0x%02X\n", e.Status)
				once.Do(func() { close(stopped) })
			}
		case gap.ScanStopped:
			once.Do(func() { close(stopped) })
		}
	})
	if err != nil {
		return err
	}

	p := gap.DefaultScanParams()
	if c.Bool("passive") {
		p.Type = gap.ScanPassive
	}
	p.FilterDuplicates = !c.Bool("dup")
	if err := d.gap.SetScanParams(&p); err != nil {
		return errors.Wrap(err, "can't set scan params")
	}

	fmt.Printf("Scanning for %s...\n", c.Duration("duration"))
	if err := d.gap.StartScanning(c.Duration("duration")); err != nil {
		return errors.Wrap(err, "can't start scanning")
	}
	wait(0, stopped)

	select {
	case <-stopped:
		return nil
	default:
		return d.gap.StopScanning()
	}
}
