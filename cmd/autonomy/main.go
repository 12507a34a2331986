package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alekspetrov/autonomy/internal/config"
	"github.com/alekspetrov/autonomy/internal/gateway"
	"github.com/alekspetrov/autonomy/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile    string
	gatewayURL string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "autonomy",
		Short:         "Autonomous task continuation for agent sessions",
		Long:          `Autonomy decides when an agent session may queue its own next task, appends it to the session backlog, and watches the health of those decisions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.autonomy/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "Gateway URL (default from config)")

	rootCmd.AddCommand(
		newServeCmd(),
		newScheduleCmd(),
		newFollowUpCmd(),
		newBacklogCmd(),
		newHealthCmd(),
		newFlagCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show Autonomy version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Autonomy v%s\n", version)
		},
	}
}

// loadConfig loads the config named by --config, falling back to the default path.
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// initLogging applies the config's logging section. CLI commands other than
// serve stay quiet unless the config asks for debug output.
func initLogging(cfg *config.Config, quiet bool) error {
	if cfg.Logging == nil {
		if quiet {
			logging.Suppress()
		}
		return nil
	}
	if quiet && cfg.Logging.Level != "debug" {
		logging.Suppress()
		return nil
	}
	return logging.Init(cfg.Logging)
}

// newClient returns a gateway client for --gateway or the configured address.
func newClient(cfg *config.Config) *gateway.Client {
	url := gatewayURL
	if url == "" && cfg.Gateway != nil {
		url = "http://" + cfg.Gateway.Addr()
	}

	token := ""
	if cfg.Auth != nil && cfg.Auth.Type == gateway.AuthTypeAPIToken {
		token = cfg.Auth.Token
	}
	return gateway.NewClient(url, token)
}
