package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/handcap/collector"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var dataDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			addr := cfg.Collector.Bind
			if strings.TrimSpace(bind) != "" {
				addr = bind
			}
			dir := cfg.Collector.DataDir
			if strings.TrimSpace(dataDir) != "" {
				if dir, err = expandFlagPath(dataDir); err != nil {
					return err
				}
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv, err := collector.New(signalCtx, collector.Options{
				DataDir:  dir,
				MaxBytes: cfg.MaxUploadBytes(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			httpServer := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errs := make(chan error, 1)
			go func() {
				errs <- httpServer.Serve(ln)
			}()
			logger.Info("collector listening", "addr", ln.Addr().String(), "data_dir", dir)
			fmt.Fprintf(cmd.OutOrStdout(), "Collector listening on http://%s\n", ln.Addr())

			select {
			case err := <-errs:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			case <-signalCtx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown collector: %w", err)
			}
			logger.Info("collector stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides collector.bind)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides collector.data_dir)")
	return cmd
}
