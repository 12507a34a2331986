package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/config"
	"github.com/alekspetrov/autonomy/internal/flags"
	"github.com/alekspetrov/autonomy/internal/followup"
	"github.com/alekspetrov/autonomy/internal/gateway"
	"github.com/alekspetrov/autonomy/internal/telemetry"
	"github.com/alekspetrov/autonomy/internal/wiring"
)

type scheduleOptions struct {
	run        autopilot.RunContext
	content    string
	tool       string
	resultFile string
	local      bool
}

func newScheduleCmd() *cobra.Command {
	var opts scheduleOptions

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Ask the autopilot to queue the next task for a session",
		Long: `Submit a scheduling request to the running gateway. With --local the
request runs in-process against the configured backlog and the assigned task
id is printed.`,
		Example: `  autonomy schedule --session s1 --task t1
  autonomy schedule --session s1 --content "Add tests for the parser"
  autonomy schedule --session s1 --tool code_search --result result.json
  autonomy schedule --session s1 --local`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initLogging(cfg, true); err != nil {
				return err
			}

			content, err := resolveContent(opts, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if opts.local {
				return scheduleLocal(ctx, cmd.OutOrStdout(), cfg, opts.run, content)
			}

			resp, err := newClient(cfg).Schedule(ctx, gateway.ScheduleRequest{RunContext: opts.run, Content: content})
			if errors.Is(err, gateway.ErrQueueFull) {
				return fmt.Errorf("gateway is busy, retry later: %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Request accepted")
			if resp.Content != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "   Content: %s\n", resp.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.run.SessionID, "session", "", "Session ID")
	cmd.Flags().StringVar(&opts.run.CurrentTaskID, "task", "", "ID of the task that just finished")
	cmd.Flags().IntVar(&opts.run.AutoTaskDepth, "depth", 0, "Current auto-continuation depth")
	cmd.Flags().BoolVar(&opts.run.RequireApproval, "require-approval", false, "Session requires human approval")
	cmd.Flags().StringVar(&opts.content, "content", "", "Task content (default: generated)")
	cmd.Flags().StringVar(&opts.tool, "tool", "", "Generate content from this tool's result ("+toolList()+")")
	cmd.Flags().StringVar(&opts.resultFile, "result", "", "Tool result JSON file, - for stdin")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Schedule in-process instead of through the gateway")

	return cmd
}

// resolveContent picks explicit content over a generated follow-up.
func resolveContent(opts scheduleOptions, stdin io.Reader) (string, error) {
	if opts.content != "" || opts.tool == "" {
		return opts.content, nil
	}
	raw, err := readResult(opts.resultFile, stdin)
	if err != nil {
		return "", err
	}
	return followup.DefaultRegistry().Generate(opts.tool, raw)
}

func readResult(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "", "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tool result: %w", err)
	}
	return data, nil
}

// scheduleLocal runs the gate and scheduler in-process against the
// configured backlog.
func scheduleLocal(ctx context.Context, out io.Writer, cfg *config.Config, rc autopilot.RunContext, content string) error {
	store, closeStore, err := wiring.OpenStore(cfg.Backlog)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	var decision telemetry.Event
	events := telemetry.Multi(
		telemetry.NewLogRecorder(nil),
		telemetry.RecorderFunc(func(e telemetry.Event) { decision = e }),
	)

	gate := autopilot.NewGate(flags.New(cfg.Autopilot.Enabled), store, events, autopilot.WithLimits(cfg.Autopilot.Limits()))
	id, ok := autopilot.NewScheduler(gate).ScheduleNextTask(ctx, rc, content)
	if !ok {
		if decision.Event == "" {
			return fmt.Errorf("not scheduled: autonomous continuation is disabled")
		}
		detail := decision.Error
		if detail == "" {
			detail = decision.Event
		}
		return fmt.Errorf("not scheduled: %s", detail)
	}

	fmt.Fprintf(out, "✓ Scheduled %s\n", id)
	return nil
}
