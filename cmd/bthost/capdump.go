package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/bthost/capture"
	"github.com/urfave/cli"
)

var (
	txColor = color.New(color.FgBlue)
	rxColor = color.New(color.FgMagenta)
)

func capdump(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("capdump: expected one capture file")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}

	for n := 0; ; n++ {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "record %d", n)
		}

		if c.Bool("json") {
			b, err := jsoniter.Marshal(rec)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			continue
		}

		dir := rxColor
		if rec.Dir == capture.DirTX {
			dir = txColor
		}
		fmt.Printf("%s ", rec.TS.Format("15:04:05.000000"))
		dir.Printf("%s %-5v", rec.Dir, rec.Type)
		fmt.Printf(" % X\n", rec.Data)
	}
}
