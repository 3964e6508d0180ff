package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chronodrachma/elastic/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "elasticd",
	Short: "elastic - rebasing token ledger node",
	Long: `elasticd runs a single authoritative ledger for an elastic-supply token.

Balances are stored as shares of a fixed gon space; a rebase rescales the
circulating supply toward a target price without moving anyone's share.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "elastic.yaml", "path to the YAML config file")
	rootCmd.AddCommand(runCmd, keygenCmd, signCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.With(zap.String("network", cfg.Network)), nil
}
