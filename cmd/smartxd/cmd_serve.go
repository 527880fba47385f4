package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartx-rfid/smartx/pkg/api"
	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/maintenance"
	"github.com/smartx-rfid/smartx/pkg/pipeline"
	"github.com/smartx-rfid/smartx/pkg/registry"
	"github.com/smartx-rfid/smartx/pkg/util"
	"github.com/smartx-rfid/smartx/pkg/version"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the middleware",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config.json)")
	return cmd
}

func runServe() error {
	settings, err := config.LoadSettings(filepath.Join(configDir, "config.json"))
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if settings.LogPath != "" {
		f, err := os.OpenFile(settings.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			util.Warnf("log file unavailable: %v", err)
		} else {
			defer f.Close()
			util.SetLogOutput(io.MultiWriter(os.Stderr, f))
		}
	}
	actions, err := config.LoadActions(filepath.Join(configDir, "actions.json"))
	if err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}

	util.Infof("smartxd %s starting", version.Info())

	pipe := pipeline.New()
	reg := registry.New(filepath.Join(configDir, "devices"), pipe)
	srv := api.NewServer(configDir, reg, pipe)
	srv.ApplyActions(actions)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := reg.Start(ctx); err != nil {
		return err
	}

	janitor := &maintenance.Janitor{
		Store: func() maintenance.Pruner {
			if st := srv.Store(); st != nil {
				return st
			}
			return nil
		},
		Days: func() int { return srv.Actions().StorageDays },
		TTL: func() time.Duration {
			return time.Duration(srv.Actions().ClearOldTagsInterval) * time.Second
		},
		Cache: pipe.Cache(),
	}
	go janitor.RunPrune(ctx)
	go janitor.RunEviction(ctx)

	listenPort := settings.Port
	if port != 0 {
		listenPort = port
	}
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", listenPort),
		Handler: srv.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	util.Infof("control surface listening on :%d", listenPort)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	reg.Shutdown()
	pipe.Close()
	srv.Close()
	util.Info("shutdown complete")
	return nil
}
