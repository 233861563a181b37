// Package main provides the noshop CLI entrypoint.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdmorin/the-no-shop/internal/config"
	"github.com/bdmorin/the-no-shop/internal/core"
	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/hub"
	"github.com/bdmorin/the-no-shop/internal/logging"
	"github.com/bdmorin/the-no-shop/internal/server"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "noshop",
		Short: "Local coordination server between an agent process and its dashboard",
		Long: `noshop bridges a CLI agent process and a browser dashboard on one host:
it tracks live sessions, captures agent responses, queues human annotations
for fire-once injection, watches repository status, and streams everything
to observers over SSE.

Run 'noshop serve' to start the server, 'noshop sessions' to inspect a
running one.`,
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(pingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}

			log := logging.New("main")

			var registry *core.Registry
			h := hub.New(func() *domain.Snapshot { return registry.Snapshot() })
			registry = core.New(h, core.Options{
				ProjectsDir:       cfg.ProjectsDir,
				StatsTTL:          cfg.StatsTTL,
				PollInterval:      cfg.PollInterval,
				HeartbeatInterval: cfg.HeartbeatInterval,
				ExecTimeout:       cfg.ExecTimeout,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go registry.RunHeartbeat(ctx)

			srv := server.New(registry, h, cfg.Addr)
			log.Info("starting", map[string]interface{}{
				"addr":         cfg.Addr,
				"projects_dir": cfg.ProjectsDir,
				"version":      version,
			})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides NOSHOP_ADDR)")
	return cmd
}
