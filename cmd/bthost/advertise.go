package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rigado/bthost/gap"
	"github.com/urfave/cli"
)

func advertise(c *cli.Context) error {
	d, err := openDevice()
	if err != nil {
		return err
	}
	defer d.close()

	err = d.gap.RegisterCallback(func(e gap.Event) {
		switch e := e.(type) {
		case gap.AdvDataSet, gap.AdvStarted, gap.DeviceNameSet:
			fmt.Printf("%T %+v\n", e, e)
		case gap.Connected:
			if e.Status == 0 {
				connColor.Printf("connected %s, handle 0x%04X\n", e.Addr, e.Handle)
			}
		case gap.Disconnected:
			errColor.Printf("disconnected %s, reason 0x%02X\n", e.Addr, e.Reason)
		}
	})
	if err != nil {
		return err
	}

	if err := d.gap.SetDeviceName(c.String("name")); err != nil {
		return errors.Wrap(err, "can't set device name")
	}
	if icon := c.Int("icon"); icon != 0 {
		if err := d.gap.ConfigLocalIcon(uint16(icon)); err != nil {
			return errors.Wrap(err, "can't set icon")
		}
	}
	// general discoverable, BR/EDR not supported
	if err := d.gap.ConfigAdvData(&gap.AdvData{IncludeName: true, Flag: 0x06}); err != nil {
		return errors.Wrap(err, "can't set adv data")
	}
	if err := d.gap.StartAdvertising(&gap.AdvParams{IntervalMin: 0x00A0, IntervalMax: 0x00F0}); err != nil {
		return errors.Wrap(err, "can't start advertising")
	}

	fmt.Printf("Advertising %q for %s...\n", c.String("name"), c.Duration("duration"))
	wait(c.Duration("duration"), nil)
	return d.gap.StopAdvertising()
}
