package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/franksops/filexfer/engine"
	"github.com/franksops/filexfer/ui"
)

var (
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "files transferred at once, overrides the configured count",
	}
	tuiFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "show a live progress screen",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "print the batch result as JSON",
	}
	ftpHostFlag = &cli.StringFlag{
		Name:  "ftp-host",
		Usage: "destination FTP server",
	}
	ftpPortFlag = &cli.IntFlag{
		Name:  "ftp-port",
		Usage: "destination FTP port",
		Value: 21,
	}
)

var runCmd = &cli.Command{
	Name:      "run",
	Usage:     "Transfer every file of a source directory",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "source-server", Usage: "source share location", Required: true},
		&cli.StringFlag{Name: "source-path", Usage: "directory on the source share", Required: true},
		&cli.StringFlag{Name: "dest-server", Usage: "destination share location", Required: true},
		&cli.StringFlag{Name: "dest-path", Usage: "directory on the destination share", Required: true},
		&cli.StringFlag{Name: "source-ftp-host", Usage: "source FTP server, recorded only"},
		&cli.IntFlag{Name: "source-ftp-port", Usage: "source FTP port, recorded only"},
		ftpHostFlag,
		ftpPortFlag,
		workersFlag,
		tuiFlag,
		jsonFlag,
	},
	Action: func(cctx *cli.Context) error {
		req := engine.TransferRequest{
			SourceLocation:      cctx.String("source-server"),
			SourcePath:          cctx.String("source-path"),
			DestinationLocation: cctx.String("dest-server"),
			DestinationPath:     cctx.String("dest-path"),
			SourceFtpHost:       cctx.String("source-ftp-host"),
			SourceFtpPort:       cctx.Int("source-ftp-port"),
		}
		if host := cctx.String(ftpHostFlag.Name); host != "" {
			req.DestinationFtpHost = host
			req.DestinationFtpPort = cctx.Int(ftpPortFlag.Name)
		}

		return runBatch(cctx, func(ctx context.Context, orch *engine.Orchestrator) (*engine.BatchResult, error) {
			return orch.Run(ctx, req)
		})
	},
}

var uploadCmd = &cli.Command{
	Name:      "upload",
	Usage:     "Upload local files to an FTP server",
	ArgsUsage: "<file>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "source-server", Usage: "source location, recorded only", Value: "local"},
		&cli.StringFlag{Name: "dest-server", Usage: "destination location, recorded only", Value: "ftp"},
		&cli.StringFlag{Name: "dest-path", Usage: "destination path, recorded only", Value: "/"},
		&cli.StringFlag{Name: "ftp-host", Usage: "destination FTP server", Required: true},
		ftpPortFlag,
		workersFlag,
		tuiFlag,
		jsonFlag,
	},
	Action: func(cctx *cli.Context) error {
		paths := cctx.Args().Slice()
		payloads, err := localPayloads(paths)
		if err != nil {
			return err
		}

		req := engine.TransferRequest{
			SourceLocation:      cctx.String("source-server"),
			SourcePath:          sourceDir(paths),
			DestinationLocation: cctx.String("dest-server"),
			DestinationPath:     cctx.String("dest-path"),
			DestinationFtpHost:  cctx.String(ftpHostFlag.Name),
			DestinationFtpPort:  cctx.Int(ftpPortFlag.Name),
		}

		return runBatch(cctx, func(ctx context.Context, orch *engine.Orchestrator) (*engine.BatchResult, error) {
			return orch.Upload(ctx, req, payloads)
		})
	},
}

// localPayloads describes local files as upload payloads. Files are opened
// only when their turn comes.
func localPayloads(paths []string) ([]engine.Payload, error) {
	payloads := make([]engine.Payload, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}

		path := p
		payloads = append(payloads, engine.Payload{
			Name: filepath.Base(path),
			Size: info.Size(),
			Open: func(context.Context) (io.ReadCloser, error) {
				return os.Open(path)
			},
		})
	}
	return payloads, nil
}

// sourceDir is the directory recorded as the source of an upload: the
// common directory of the files, or "." when they differ.
func sourceDir(paths []string) string {
	if len(paths) == 0 {
		return "."
	}
	dir := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		if filepath.Dir(p) != dir {
			return "."
		}
	}
	return dir
}

type batchFunc func(ctx context.Context, orch *engine.Orchestrator) (*engine.BatchResult, error)

// runBatch wires the engine, runs one batch and reports it. Interrupting
// the command cancels the batch; files not yet started are reported as
// not attempted.
func runBatch(cctx *cli.Context, fn batchFunc) error {
	d, err := newDeps(cctx, false)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *engine.BatchResult
	if cctx.Bool(tuiFlag.Name) {
		res, err = runWithTUI(ctx, d.orch, fn)
	} else {
		res, err = fn(ctx, d.orch)
	}
	if err != nil {
		return err
	}

	if cctx.Bool(jsonFlag.Name) {
		if err := printJSON(cctx.App.Writer, res); err != nil {
			return err
		}
	} else {
		printResult(cctx.App.Writer, res)
	}

	if res.Summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", res.Summary.Failed, res.Summary.Total), 2)
	}
	return nil
}

// runWithTUI runs the batch behind the progress screen. Quitting the screen
// cancels the batch.
func runWithTUI(ctx context.Context, orch *engine.Orchestrator, fn batchFunc) (*engine.BatchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewTUIModel(), tea.WithAltScreen(), tea.WithContext(ctx))
	orch.AddObserver(ui.NewReporter(p))

	var (
		res    *engine.BatchResult
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = fn(ctx, orch)
		if runErr != nil {
			p.Quit()
		}
	}()

	_, tuiErr := p.Run()
	cancel()
	<-done

	if runErr != nil {
		return nil, runErr
	}
	if res == nil && tuiErr != nil {
		return nil, fmt.Errorf("progress screen: %w", tuiErr)
	}
	return res, nil
}
