package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/octoctl/internal/config"
)

var (
	cfgPath   string
	logLevel  string
	serverURL string
)

// NewCommand builds the octoctl command tree.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "octoctl",
		Short:         "octoctl controls Octo BLE adjustable beds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&cfgPath, "config", "c", config.DefaultConfigPath(), "path to the config file")
	globalFlags.StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error); overrides the config")
	globalFlags.StringVar(&serverURL, "server", "http://127.0.0.1:8733", "daemon base URL for client commands")

	cmd.AddCommand(
		NewServeCommand(),
		NewScanCommand(),
		NewVerifyCommand(),
		NewStatusCommand(),
		NewMoveCommand(),
		NewStopCommand(),
		NewLightCommand(),
		NewCalibrateCommand(),
		NewConfigCommand(),
	)

	return cmd
}

func setupLogger() {
	level := logLevel
	if level == "" {
		if cfg, err := config.Load(cfgPath); err == nil {
			level = cfg.LogLevel
		} else {
			level = "info"
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(level),
	})))
}

// NewConfigCommand writes a starter config file.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				cmd.Println("config already exists at", config.DefaultConfigPath())
				return nil
			}
			cmd.Println("wrote", path)
			return nil
		},
	}
}
