package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/yakoovad/scrumboard/internal/config"
)

var (
	flagEnvFile string
	flagAddr    string
	flagStorage string
)

var rootCmd = &cobra.Command{
	Use:          "scrumboard",
	Short:        "Project board backend with iterations and task placement",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return nil, err
	}

	if flagAddr != "" {
		cfg.HTTPAddr = flagAddr
	}
	if flagStorage != "" {
		cfg.StorageDriver = flagStorage
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Path of the env file to load")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "HTTP listen address, overrides HTTP_ADDR")
	rootCmd.PersistentFlags().StringVar(&flagStorage, "storage", "", "Storage driver (postgres or memory), overrides STORAGE_DRIVER")

	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newMigrateCmd())
}
