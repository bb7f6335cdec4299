package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wheelmate",
	Short: "Wheelchair accessibility search",
	Long:  "Finds wheelchair-accessible places near a location by combining OpenStreetMap, Wheelmap and Google Places, with a local cache and demo data as fallbacks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", formatTable, "output format (table, json, yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
