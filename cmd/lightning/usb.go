package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightning/adapter"
	"github.com/mklimuk/lightning/cmd/lightning/console"
	"github.com/mklimuk/lightning/snsctx"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "inspect USB HID devices",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list all HID devices",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")
		for _, dev := range hid.Enumerate(0, 0) {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		return w.Flush()
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list attached MCP2221 bridges with their index",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "INDEX\tSERIAL\tPATH\n")
		for i, dev := range hid.Enumerate(adapter.VendorID, adapter.ProductID) {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i, dev.Serial, dev.Path)
		}
		return w.Flush()
	},
}

var adapterCmd = cli.Command{
	Name:  "adapter",
	Usage: "MCP2221 bridge maintenance",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Usage: "bridge index as listed by usb detect"},
	},
	Subcommands: cli.Commands{
		&adapterStatusCmd,
		&adapterReleaseCmd,
		&adapterGPIOCmd,
	},
}

var adapterStatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the I2C engine status",
	Action: func(c *cli.Context) error {
		bridge, ctx := openBridge(c)
		status, err := bridge.Status(ctx)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encode(status)
	},
}

var adapterReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a hanging I2C transfer",
	Action: func(c *cli.Context) error {
		bridge, ctx := openBridge(c)
		status, err := bridge.ReleaseBus(ctx)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encode(status)
	},
}

var adapterGPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print the GP lines",
	Action: func(c *cli.Context) error {
		bridge, ctx := openBridge(c)
		values, err := bridge.ReadGPIO(ctx)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encode(values)
	},
}

func openBridge(c *cli.Context) (*adapter.MCP2221, context.Context) {
	ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
	return adapter.NewMCP2221(adapter.HIDOpener(c.Int("index"))), ctx
}
