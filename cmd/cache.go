package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the local place cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		if format != formatTable {
			return encode(cmd.OutOrStdout(), format, stats)
		}
		formatStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending cache schema migrations",
	Long:  "Creates the cache schema or upgrades an existing one. A legacy unversioned places table is copied into the current layout and kept as places_legacy.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "migrate: read schema version")
		}
		cmd.Printf("Cache schema is at version %d (%d places).\n", stats.SchemaVersion, stats.Places)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(migrateCmd)
}
