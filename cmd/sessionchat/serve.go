package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"SessionChat/internal/config"
	"SessionChat/internal/history"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local conversation history over HTTP",
		Long: `Serve the local conversation history over HTTP so that clients started
with --mode remote --server <url> can share it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Mode != config.ModeLocal {
				return fmt.Errorf("serve needs %s mode", config.ModeLocal)
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = addr
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           history.NewHandler(a.client, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("history server listening", "addr", cfg.ListenAddr)
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.ListenAddr)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			a.logger.Info("history server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "Listen address (default from config, :8080)")
	return cmd
}
