package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/config"
	"github.com/alekspetrov/autonomy/internal/gateway"
	"github.com/alekspetrov/autonomy/internal/health"
	"github.com/alekspetrov/autonomy/internal/wiring"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and environment before serving",
		Long: `Run preflight checks on the config file, backlog store, gateway address,
auth and rollback schedule.

Examples:
  autonomy doctor           # Run all checks
  autonomy doctor --verbose # Show fix suggestions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				cfg = config.DefaultConfig()
			}
			if err := initLogging(cfg, true); err != nil {
				return err
			}

			checker := &health.Checker{
				OpenStore: openProbe,
				Probe: func(ctx context.Context, addr string) error {
					_, err := gateway.NewClient("http://"+addr, "").Health(ctx)
					return err
				},
			}
			report := checker.RunChecks(cmd.Context(), cfg)

			w := cmd.OutOrStdout()
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Autonomy Preflight")
			fmt.Fprintln(w, "==================")
			fmt.Fprintln(w)

			fmt.Fprintln(w, "Configuration:")
			for _, c := range report.Config {
				fmt.Fprintf(w, "  %s %-16s %s\n", c.Status.ColorSymbol(), c.Name, c.Message)
				if verbose && c.Fix != "" && c.Status != health.StatusOK {
					fmt.Fprintf(w, "                     → %s\n", c.Fix)
				}
			}
			fmt.Fprintln(w)

			fmt.Fprintln(w, "Features:")
			for _, f := range report.Features {
				note := ""
				if f.Note != "" {
					note = " (" + f.Note + ")"
				}
				fmt.Fprintf(w, "  %s %s%s\n", f.Status.ColorSymbol(), f.Name, note)
			}
			fmt.Fprintln(w)

			errs, warnings := report.Summary()
			switch {
			case !report.ReadyToStart():
				fmt.Fprintf(w, "❌ Not ready - %d error(s)\n", errs)
				return fmt.Errorf("preflight failed with %d error(s)", errs)
			case warnings > 0:
				fmt.Fprintf(w, "✅ Ready to serve (%d warning(s))\n", warnings)
			default:
				fmt.Fprintln(w, "✅ All systems operational!")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show fix suggestions")
	return cmd
}

// openProbe opens the backlog store and probes it with a session listing.
func openProbe(cfg *config.BacklogConfig) (func(context.Context) error, func() error, error) {
	store, closeFn, err := wiring.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	probe := func(ctx context.Context) error {
		_, err := store.ListSessions(ctx)
		return err
	}
	return probe, closeFn, nil
}
