package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mobahiro/epetcare-syncd/internal/dbcheck"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the local database integrity",
	Long: `Run an integrity check against the local SQLite database.

Exits 0 when the database passes PRAGMA integrity_check, 1 when the
file is missing or corrupted. Missing application tables are reported
but do not fail the check.

Example:
  syncd check
  syncd check -c /path/to/config.json`,
	Run: func(cmd *cobra.Command, args []string) {
		store := openConfig()
		cfg := store.Config()

		report := dbcheck.Check(cfg.DBPath)
		if !report.Valid {
			fmt.Printf("Database check failed: %s\n", report.Message)
			os.Exit(1)
		}

		fmt.Printf("Database OK: %s\n", cfg.DBPath)
		fmt.Printf("Tables: %d\n", len(report.Tables))
		if len(report.MissingTables) > 0 {
			fmt.Printf("Missing tables: %s\n", strings.Join(report.MissingTables, ", "))
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			snap := dbcheck.Snapshot(cfg.DBPath)
			fmt.Printf("Size: %.2f MB\n", snap.SizeMB)
			fmt.Printf("Last modified: %s\n", snap.LastModified)
			for _, table := range dbcheck.ExtendedTables {
				fmt.Printf("  %-28s %s\n", table, snap.Records[table])
			}
		}
	},
}

func init() {
	checkCmd.Flags().BoolP("verbose", "v", false, "Show per-table record counts")

	rootCmd.AddCommand(checkCmd)
}
