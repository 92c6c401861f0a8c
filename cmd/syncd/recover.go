package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mobahiro/epetcare-syncd/internal/logging"
	"github.com/Mobahiro/epetcare-syncd/internal/recovery"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover the local database from corruption",
	Long: `Rebuild the local database by copying every readable table into a
fresh file, then swap it into place. The original file is kept as a
.bak copy before anything is touched. A missing database is recreated
with the base schema.

Example:
  syncd recover
  syncd recover -c /path/to/config.json`,
	Run: func(cmd *cobra.Command, args []string) {
		store := openConfig()
		cfg := store.Config()
		logger := logging.New("recovery", logging.DefaultLogFile)

		fmt.Printf("Recovering database: %s\n", cfg.DBPath)
		res, err := recovery.Recover(cfg.DBPath, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: recovery failed: %v\n", err)
			os.Exit(1)
		}

		if res.Bootstrap {
			fmt.Println("Database was missing; created a fresh one with the base schema")
			return
		}

		fmt.Printf("Recovered tables: %d\n", len(res.Recovered))
		if res.SkippedRows > 0 {
			fmt.Printf("Skipped rows: %d\n", res.SkippedRows)
		}
		if len(res.Failed) > 0 {
			fmt.Printf("Failed tables: %s\n", strings.Join(res.Failed, ", "))
		}
		if !res.Success() {
			fmt.Println("Database recovery incomplete")
			os.Exit(1)
		}
		fmt.Println("Database recovery successful")
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
