// Command syncd monitors and repairs the synchronization between the
// local clinic database and the remote web deployment.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mobahiro/epetcare-syncd/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncd",
	Short: "ePetCare database sync monitor",
	Long: `syncd keeps the local clinic database synchronized with the remote
web deployment. It verifies and repairs the local SQLite file, discovers
which API layout the remote actually exposes, uploads the database on an
interval, and serves a live status dashboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join("vet_desktop_app", "config.json"), "Path to the application config file")
}

// openConfig loads the shared configuration document or exits.
func openConfig() *config.Store {
	store, err := config.Open(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return store
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
