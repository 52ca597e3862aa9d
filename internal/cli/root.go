// Package cli implements the routeflow command tree.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"routeflow/internal/config"
	"routeflow/internal/logging"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "routeflow",
	Short: "Field service route optimization",
	Long:  "routeflow plans daily technician routes under time windows and capacity limits.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(cfg.Logging.Level)
	return cfg, nil
}
