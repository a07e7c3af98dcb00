package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/franksops/filexfer/ftp"
	"github.com/franksops/filexfer/store"
	"github.com/franksops/filexfer/translog"
)

var probeCmd = &cli.Command{
	Name:  "probe",
	Usage: "Check that an FTP server accepts a login",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "FTP server", Required: true},
		&cli.IntFlag{Name: "port", Usage: "FTP port", Value: 21},
	},
	Action: func(cctx *cli.Context) error {
		d, err := newBase(cctx, false)
		if err != nil {
			return err
		}
		defer d.Close()

		host, port := cctx.String("host"), cctx.Int("port")
		err = d.uploader.CheckConnectivity(cctx.Context, host, port)
		switch {
		case err == nil:
			fmt.Fprintln(cctx.App.Writer, color.GreenString("%s:%d accepts logins", host, port))
			return nil
		case ftp.IsNetworkError(err):
			return cli.Exit(color.RedString("network failure: %s", err), 3)
		default:
			return cli.Exit(color.RedString("ftp failure: %s", err), 4)
		}
	},
}

var logsCmd = &cli.Command{
	Name:  "logs",
	Usage: "Print the transfer log channels",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "channel",
			Usage: "one of " + channelNames() + "; empty prints all",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		logs := translog.New(cfg.LogsDir)

		channels := translog.Channels
		if name := cctx.String("channel"); name != "" {
			channels = []translog.Channel{translog.Channel(name)}
		}

		for _, ch := range channels {
			lines, err := logs.ReadAll(ch)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(cctx.App.Writer, line)
			}
		}
		return nil
	},
}

var clearLogsCmd = &cli.Command{
	Name:  "clear-logs",
	Usage: "Empty every transfer log channel",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := translog.New(cfg.LogsDir).ClearAll(); err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, color.GreenString("logs cleared"))
		return nil
	},
}

var batchCmd = &cli.Command{
	Name:      "batch",
	Usage:     "Show the audit record of a batch",
	ArgsUsage: "<batch-id>",
	Flags: []cli.Flag{
		jsonFlag,
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return cli.ShowSubcommandHelp(cctx)
		}

		d, err := newBase(cctx, false)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.openStore(); err != nil {
			return err
		}

		batch, jobs, err := d.tracker.Lookup(cctx.Args().First())
		if errors.Is(err, store.ErrBatchNotFound) {
			return cli.Exit(color.YellowString("batch %s not found", cctx.Args().First()), 1)
		}
		if err != nil {
			return err
		}

		if cctx.Bool(jsonFlag.Name) {
			return printJSON(cctx.App.Writer, map[string]any{"batch": batch, "files": jobs})
		}

		w := cctx.App.Writer
		fmt.Fprintf(w, "batch %s (%s) started %s\n", batch.ID, batch.Mode, batch.StartedAt.Format(translog.TimestampLayout))
		fmt.Fprintf(w, "  %s/%s -> %s/%s\n", batch.SourceLocation, batch.SourcePath, batch.DestinationLocation, batch.DestinationPath)
		if batch.FinishedAt.IsZero() {
			fmt.Fprintln(w, color.YellowString("  not finished"))
		} else {
			fmt.Fprintf(w, "  %d files: %d succeeded, %d failed, %d checksum mismatches\n",
				batch.Total, batch.Succeeded, batch.Failed, batch.ChecksumMismatches)
		}
		for _, j := range jobs {
			state := string(j.State)
			switch j.State {
			case store.StateCompleted:
				state = color.GreenString(state)
			case store.StateFailed:
				state = color.RedString(state)
			}
			fmt.Fprintf(w, "%4d %-12s %-40s %s\n", j.Index, state, j.FileName, j.Error)
		}
		return nil
	},
}

func channelNames() string {
	names := make([]string, len(translog.Channels))
	for i, ch := range translog.Channels {
		names[i] = string(ch)
	}
	return strings.Join(names, ", ")
}
