package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to a TOML config file",
	EnvVars: []string{"FXFER_CONFIG"},
}

func main() {
	app := &cli.App{
		Name:  "fxfer",
		Usage: "copy files between shares or push them to FTP servers, with checksum verification",
		Flags: []cli.Flag{
			configFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			runCmd,
			uploadCmd,
			probeCmd,
			logsCmd,
			clearLogsCmd,
			batchCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("ERROR: %s", err))
		os.Exit(1)
	}
}
