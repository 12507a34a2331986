package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/autopilot"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7eb8da")) // steel blue

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7ec699")) // sage green

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4a054")) // amber

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d48a8a")) // dusty rose

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8b949e"))
)

func newHealthCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show autopilot health from the running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogging(cfg, true); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			snap, err := newClient(cfg).Health(ctx)
			if err != nil {
				return fmt.Errorf("gateway unreachable: %w", err)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal health: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			printHealth(cmd.OutOrStdout(), snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printHealth(w io.Writer, snap *autopilot.HealthSnapshot) {
	status := okStyle
	switch snap.HealthStatus {
	case autopilot.StatusDegraded:
		status = warnStyle
	case autopilot.StatusUnhealthy:
		status = badStyle
	}
	enabled := badStyle.Render("disabled")
	if snap.Enabled {
		enabled = okStyle.Render("enabled")
	}

	fmt.Fprintln(w, headerStyle.Render("📊 Autopilot Health"))
	fmt.Fprintln(w, "───────────────────────────────────────")
	fmt.Fprintf(w, "Status:     %s\n", status.Render(string(snap.HealthStatus)))
	fmt.Fprintf(w, "Autonomy:   %s\n", enabled)
	fmt.Fprintf(w, "Decisions:  %s (%d scheduled, %d blocked, %d errors)\n",
		humanize.Comma(int64(snap.TotalDecisions)), snap.Allowed, snap.Blocked, snap.Errors)
	fmt.Fprintf(w, "Error rate: %s\n", status.Render(fmt.Sprintf("%.1f%%", snap.ErrorRate*100)))
	fmt.Fprintf(w, "Success:    %.1f%%\n", snap.SuccessRate*100)

	if len(snap.Events) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Events"))
		names := make([]string, 0, len(snap.Events))
		for name := range snap.Events {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-40s %s\n", name, humanize.Comma(snap.Events[name]))
		}
	}

	if !snap.SnapshotAt.IsZero() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render("as of "+snap.SnapshotAt.Local().Format(time.RFC3339)))
	}
}
