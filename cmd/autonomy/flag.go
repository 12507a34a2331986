package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/gateway"
)

func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Read or flip the autonomous-continuation switch",
		Long:  `The switch is checked before every scheduling decision. Disabling it stops new auto-tasks immediately; tasks already queued in the backlog are untouched.`,
	}

	cmd.AddCommand(
		newFlagStatusCmd(),
		newFlagSetCmd("enable", "Enable autonomous continuation", true),
		newFlagSetCmd("disable", "Disable autonomous continuation", false),
	)

	return cmd
}

func newFlagStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether autonomous continuation is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flagClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			state, err := client.Autonomy(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeSwitch(state.Enabled))
			return nil
		},
	}
}

func newFlagSetCmd(use, short string, enabled bool) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flagClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			state, err := client.SetAutonomy(ctx, enabled, reason)
			if err != nil {
				return err
			}
			msg := describeSwitch(state.Enabled)
			if !state.Changed {
				msg += " (unchanged)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "cli", "Reason recorded with the change")
	return cmd
}

func flagClient() (*gateway.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg, true); err != nil {
		return nil, err
	}
	return newClient(cfg), nil
}

func describeSwitch(enabled bool) string {
	if enabled {
		return "✓ Autonomous continuation enabled"
	}
	return "○ Autonomous continuation disabled"
}
