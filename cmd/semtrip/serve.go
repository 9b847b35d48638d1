package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/c360studio/semtrip/api"
)

func serveCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			app, err := NewApp(cfg, root.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if root.logLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := api.NewServer(app.Pipeline(),
				api.WithLogger(root.logger),
				api.WithRequestTimeout(cfg.Server.RequestTimeout),
				api.WithMaxConcurrent(cfg.Server.MaxConcurrent),
				api.WithGatherer(app.Gatherer()),
				api.WithStore(app.Store()),
			)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
