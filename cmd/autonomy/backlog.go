package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/wiring"
)

func newBacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Inspect and manage session backlogs",
	}

	cmd.AddCommand(
		newBacklogListCmd(),
		newBacklogSessionsCmd(),
		newBacklogClearCmd(),
	)

	return cmd
}

func newBacklogListCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "list <session>",
		Short: "List a session's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogging(cfg, true); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var tasks []backlog.Task
			if local {
				store, closeStore, err := wiring.OpenStore(cfg.Backlog)
				if err != nil {
					return err
				}
				defer func() { _ = closeStore() }()
				if tasks, err = store.Get(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to read backlog: %w", err)
				}
			} else {
				resp, err := newClient(cfg).Backlog(ctx, args[0])
				if err != nil {
					return err
				}
				tasks = resp.Tasks
			}

			printTasks(cmd.OutOrStdout(), args[0], tasks, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Read the configured store directly instead of the gateway")
	return cmd
}

func printTasks(w io.Writer, sessionID string, tasks []backlog.Task, now time.Time) {
	fmt.Fprintf(w, "📋 Backlog %s (%d tasks, %d auto)\n", sessionID, len(tasks), autopilot.CountAutoTasks(tasks))
	fmt.Fprintln(w, "───────────────────────────────────────")
	if len(tasks) == 0 {
		fmt.Fprintln(w, "   (empty)")
		return
	}
	for _, t := range tasks {
		marker := " "
		if autopilot.IsAutoTaskID(t.ID) {
			marker = "⚡"
		}
		age := ""
		if !t.CreatedAt.IsZero() {
			age = "  " + humanize.RelTime(t.CreatedAt, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s %-20s %-11s %-6s %s%s\n", marker, t.ID, t.Status, t.Priority, t.Content, age)
	}
}

func newBacklogSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogging(cfg, true); err != nil {
				return err
			}
			store, closeStore, err := wiring.OpenStore(cfg.Backlog)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			sessions, err := store.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			for _, s := range sessions {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newBacklogClearCmd() *cobra.Command {
	var autoOnly bool

	cmd := &cobra.Command{
		Use:   "clear <session>",
		Short: "Remove tasks from a session's backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogging(cfg, true); err != nil {
				return err
			}
			store, closeStore, err := wiring.OpenStore(cfg.Backlog)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			removed, err := clearBacklog(cmd.Context(), store, args[0], autoOnly)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d tasks from %s\n", removed, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoOnly, "auto-only", false, "Only remove auto-generated tasks")
	return cmd
}

func clearBacklog(ctx context.Context, store backlog.Store, sessionID string, autoOnly bool) (int, error) {
	tasks, err := store.Get(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to read backlog: %w", err)
	}

	kept := []backlog.Task{}
	if autoOnly {
		for _, t := range tasks {
			if !autopilot.IsAutoTaskID(t.ID) {
				kept = append(kept, t)
			}
		}
	}

	if err := store.Update(ctx, sessionID, kept); err != nil {
		return 0, fmt.Errorf("failed to update backlog: %w", err)
	}
	return len(tasks) - len(kept), nil
}
