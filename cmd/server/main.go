// Command server runs an appcommon service: authenticated HTTP endpoints,
// the dynamic configuration admin API and the UI response filters.
//
// Configuration is read from a YAML file (--config, APP_CONFIG,
// ./config.yaml or /etc/appcommon/config.yaml) and APP_ environment
// variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/appcommon/pkg/config"
	"github.com/rhuss/appcommon/pkg/debug"
	transporthttp "github.com/rhuss/appcommon/pkg/transport/http"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Run the appcommon server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	return cmd
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	if cats := debug.Categories(); len(cats) > 0 {
		slog.Info("debug categories enabled", "categories", cats)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := transporthttp.NewServer(a.handler,
		transporthttp.WithAddr(listenAddr(cfg)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if a.refresher != nil {
		g.Go(func() error {
			return a.refresher.Run(gctx)
		})
	}
	return g.Wait()
}
