package cmd

import (
	"fmt"
	"os"

	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Lumen learning management backend",
	Long: `Lumen serves the learning management API: accounts and roles,
course content, assignments, progress and dashboards.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRuntime reads the environment and builds the process logger.
func loadRuntime() (config.Config, *logger.Logger, error) {
	cfg := config.LoadConfig()
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}
