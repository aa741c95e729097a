package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/smallnest/agent101/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				settings.ServerHost = host
			}
			if port > 0 {
				settings.ServerPort = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, closeDeps, err := server.NewDeps(ctx, settings)
			if err != nil {
				return err
			}
			defer closeDeps()

			return server.New(deps).ListenAndServe(ctx, settings.Addr())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from SERVER_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from SERVER_PORT)")
	return cmd
}
