package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/nspcc-dev/wsbitcoin-go/cli/server"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "wsbitcoin\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates a wsbitcoin instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "wsbitcoin"
	ctl.Version = config.Version
	ctl.Usage = "Websocket relay for bitcoind wallet notifications"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, server.NewCommands()...)
	ctl.Commands = append(ctl.Commands, cli.Command{
		Name:   "version",
		Usage:  "print relay version",
		Action: func(c *cli.Context) error { versionPrinter(c); return nil },
	})
	return ctl
}
