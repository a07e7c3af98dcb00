package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/franksops/filexfer/api"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Run the HTTP transfer service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address, overrides the configured one",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "run gin in debug mode",
		},
	},
	Action: func(cctx *cli.Context) error {
		d, err := newDeps(cctx, true)
		if err != nil {
			return err
		}
		defer d.Close()

		addr := d.cfg.Addr
		if cctx.IsSet("addr") {
			addr = cctx.String("addr")
		}
		if !cctx.Bool("debug") {
			gin.SetMode(gin.ReleaseMode)
		}

		h := api.NewHandler(api.Deps{
			Transfers: d.orch,
			Prober:    d.uploader,
			Logs:      d.logs,
			Resolver:  d.resolver,
			Tracker:   d.tracker,
			Probes:    d.metrics,
			Log:       d.log,
		})
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewRouter(h, d.metrics.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			d.log.Info("service listening", "addr", addr, "logs_dir", d.cfg.LogsDir, "workers", d.cfg.Workers)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("listen on %s: %w", addr, err)
		case <-ctx.Done():
		}

		d.log.Info("shutting down", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}
