package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/franksops/filexfer/config"
	"github.com/franksops/filexfer/engine"
	"github.com/franksops/filexfer/ftp"
	"github.com/franksops/filexfer/logger"
	"github.com/franksops/filexfer/metrics"
	"github.com/franksops/filexfer/provider"
	"github.com/franksops/filexfer/store"
	"github.com/franksops/filexfer/translog"
)

// storeOpenTimeout bounds the wait for the audit database lock, which a
// running service holds.
const storeOpenTimeout = 3 * time.Second

// deps is the wired object graph shared by the commands.
type deps struct {
	cfg      *config.Config
	log      *slog.Logger
	logs     *translog.Logger
	tracker  *engine.JobTracker
	resolver *provider.Resolver
	uploader *ftp.Uploader
	orch     *engine.Orchestrator
	metrics  *metrics.Transfers

	closers []io.Closer
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	return config.Load(cctx.String(configFlag.Name))
}

// newBase loads the configuration and opens the service log. The FTP
// client and the transfer log channels need nothing else.
func newBase(cctx *cli.Context, console bool) (*deps, error) {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return nil, err
	}

	log, closer := logger.New(logger.Options{
		File:    cfg.ServiceLog,
		Level:   cfg.LogLevel,
		Console: console,
	})

	return &deps{
		cfg:      cfg,
		log:      log,
		logs:     translog.New(cfg.LogsDir),
		uploader: ftp.NewUploader(cfg.FTPConfig(), log),
		closers:  []io.Closer{closer},
	}, nil
}

// newDeps wires everything a batch needs, the audit store included.
func newDeps(cctx *cli.Context, console bool) (*deps, error) {
	d, err := newBase(cctx, console)
	if err != nil {
		return nil, err
	}

	if err := d.openStore(); err != nil {
		d.Close()
		return nil, err
	}

	if cctx.IsSet(workersFlag.Name) {
		d.cfg.Workers = cctx.Int(workersFlag.Name)
	}

	d.resolver = provider.NewResolver(d.cfg.ShareRoot, d.cfg.PreserveMetadata)
	d.metrics = metrics.New()
	d.orch = engine.NewOrchestrator(d.resolver, d.uploader, d.logs, d.tracker, d.log, d.cfg.EngineOptions())
	d.orch.AddObserver(d.metrics)

	return d, nil
}

func (d *deps) openStore() error {
	if err := os.MkdirAll(d.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	st, err := store.NewBoltStore(d.cfg.StorePath(), storeOpenTimeout)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, st)
	d.tracker = engine.NewJobTracker(st, engine.DefaultCheckpointConfig)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() error {
	var result *multierror.Error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
