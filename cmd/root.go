package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"recruit-pipeline/infrastructure"
)

const app = "pipeline"

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "pipeline runs the candidate pipeline and placement ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is pipeline.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(serveCmd, migrateCmd, relayCmd, versionCmd)
}

// setup loads the config and builds the logger shared by every command.
func setup() (*infrastructure.Config, *zap.Logger, error) {
	cfg, err := infrastructure.LoadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, err
	}

	logger, err := infrastructure.NewLogger(cfg.Log, version)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
