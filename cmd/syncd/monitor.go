package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mobahiro/epetcare-syncd/internal/config"
	"github.com/Mobahiro/epetcare-syncd/internal/logging"
	"github.com/Mobahiro/epetcare-syncd/internal/monitor"
	"github.com/Mobahiro/epetcare-syncd/internal/status"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run a sync check, or keep syncing in the background",
	Long: `Run one synchronization attempt and exit, or with --background keep
attempting on an interval until interrupted.

With --fix, a failed attempt triggers one remediation pass (connectivity
check, config normalization, restore from backup) followed by exactly one
retry.

The check interval comes from remote_database.sync_interval in the config
file; --interval overrides it.

Exit codes: 0 on a successful sync (or clean background shutdown),
1 on a failed sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetInt("interval")
		fix, _ := cmd.Flags().GetBool("fix")
		background, _ := cmd.Flags().GetBool("background")

		store := openConfig()
		logger := logging.New("monitor", logging.DefaultLogFile)
		tracker := status.NewTracker()
		engine := monitor.NewEngine(store, tracker, monitor.EngineConfig{
			AutoFix: fix,
			Logger:  logger,
		})

		if background {
			runBackground(engine, resolveInterval(interval, store))
			return
		}

		fmt.Println("Running single sync check...")
		res := engine.SyncOnce(context.Background())
		if res.Success {
			fmt.Println("Database sync successful")
			return
		}
		for _, msg := range res.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
		if fix {
			fmt.Println("Database sync still failing after fixes")
		} else {
			fmt.Println("Database sync failed")
		}
		os.Exit(1)
	},
}

// resolveInterval prefers the explicit flag over the configured
// sync_interval (which itself defaults to 60 seconds).
func resolveInterval(flagSeconds int, store *config.Store) time.Duration {
	if flagSeconds > 0 {
		return time.Duration(flagSeconds) * time.Second
	}
	return store.Config().SyncInterval
}

func runBackground(engine *monitor.Engine, interval time.Duration) {
	super := monitor.NewSupervisor(engine, interval)
	if err := super.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start monitor: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Monitor running (interval: %v). Press Ctrl+C to stop...\n", interval)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	fmt.Println("\nStopping monitor...")
	super.Stop()
	fmt.Println("Monitor stopped")
}

func init() {
	monitorCmd.Flags().IntP("interval", "i", 0, "Sync check interval in seconds (default: config sync_interval, else 60)")
	monitorCmd.Flags().Bool("fix", false, "Automatically fix sync issues when detected")
	monitorCmd.Flags().Bool("background", false, "Keep monitoring on an interval until interrupted")

	rootCmd.AddCommand(monitorCmd)
}
