// Package main is the chefassist command: it serves the assistant API, runs the
// channel policy audit and mints caller tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chefassist/internal/config"
	"chefassist/internal/logger"
)

var (
	configPath string
	logMode    string
)

var rootCmd = &cobra.Command{
	Use:   "chefassist",
	Short: "Channel-aware assistant for chef businesses",
	Long: `chefassist runs the chef assistant behind the dashboard and the chat bridges.

Every request carries the channel it came from. The channel decides which tools
the assistant may call and how much client data may leave the dashboard.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Override log mode (dev, prod, test)")

	rootCmd.AddCommand(serveCmd, auditCmd, tokenCmd, outboxCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the persistent flags on top of the file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.NewWithOptions(logger.Options{Mode: cfg.Log.Mode, HashSalt: cfg.Log.HashSalt})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}
