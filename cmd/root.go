package main

import (
	"github.com/spf13/cobra"

	"ragkit/internal/config"
	"ragkit/pkg/logger"
)

var (
	configPath string
	envPath    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragkit",
		Short:         "Embed, index and query documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file, e.g. --config ragkit.yaml")
	root.PersistentFlags().StringVarP(&envPath, "env", "e", "", "Environment file, e.g. --env .env")

	root.AddCommand(
		newEmbedCmd(),
		newIngestCmd(),
		newQueryCmd(),
		newServeCmd(),
		newConfigCmd(),
	)
	return root
}

// loadConfig reads the configuration and re-initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: configPath, EnvFile: envPath})
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Format: cfg.Log.Format,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
