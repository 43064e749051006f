package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"naimeta/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var order string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the metadata extraction HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if strings.TrimSpace(bind) != "" {
				cfg.Server.Bind = strings.TrimSpace(bind)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			// Uploads have no stable path, so the path-keyed cache is not used.
			ex, err := ctx.newExtractor(order, nil)
			if err != nil {
				return err
			}
			srv, err := server.New(cfg, ex, logger)
			if err != nil {
				return err
			}
			if err := srv.Start(signalCtx); err != nil {
				return err
			}
			defer srv.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())
			<-signalCtx.Done()
			logger.Info("api server shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&order, "order", "", "Alpha bit order: row or column (default from config)")
	return cmd
}
