package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/banner"
	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/wiring"
)

func newServeCmd() *cobra.Command {
	var (
		port     int
		disabled bool
		noBanner bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the autopilot daemon and gateway",
		Long:  `Start the scheduling dispatcher, health monitor, optional rollback policy and the HTTP/WebSocket gateway. Stops on SIGINT or SIGTERM after queued requests drain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Gateway.Port = port
			}
			if disabled {
				cfg.Autopilot.Enabled = false
			}

			if err := initLogging(cfg, false); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer func() { _ = logging.Close() }()

			rt, err := wiring.Build(cfg, wiring.WithVersion(version))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if !noBanner {
				rollback := ""
				if cfg.Autopilot.Rollback.Enabled {
					rollback = cfg.Autopilot.Rollback.Schedule
				}
				banner.StartupBanner(cmd.OutOrStdout(), banner.Startup{
					Version:      version,
					Gateway:      "http://" + cfg.Gateway.Addr(),
					Backlog:      describeBacklog(cfg.Backlog.Driver, cfg.Backlog.Path),
					Enabled:      rt.Flags.IsAutonomyContinueEnabled(),
					MaxDepth:     rt.Gate.Limits().MaxDepth,
					MaxAutoTasks: rt.Gate.Limits().MaxAutoTasks,
					Rollback:     rollback,
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return rt.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Gateway port (overrides config)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Start with autonomous continuation switched off")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "Skip the startup banner")

	return cmd
}

func describeBacklog(driver, path string) string {
	if path == "" {
		return driver
	}
	return fmt.Sprintf("%s (%s)", driver, path)
}
