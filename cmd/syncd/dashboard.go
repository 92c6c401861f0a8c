package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mobahiro/epetcare-syncd/internal/dashboard"
	"github.com/Mobahiro/epetcare-syncd/internal/logging"
	"github.com/Mobahiro/epetcare-syncd/internal/monitor"
	"github.com/Mobahiro/epetcare-syncd/internal/status"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the sync status dashboard with a background monitor",
	Long: `Serve the web dashboard and run the background sync monitor.

The dashboard shows the live sync status and the local/remote health
panels, and exposes manual triggers:

  GET /                the dashboard
  GET /status          current status as JSON
  GET /check           refresh the local/remote snapshots now
  GET /sync            trigger one sync attempt
  GET /fix             trigger one remediation pass
  GET /restart-monitor stop the monitor loop and start a fresh one
  GET /ws              WebSocket status push

Example:
  syncd dashboard                # http://localhost:8000
  syncd dashboard --port 9000 --fix`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		interval, _ := cmd.Flags().GetInt("interval")
		fix, _ := cmd.Flags().GetBool("fix")

		store := openConfig()
		logger := logging.New("dashboard", logging.DefaultLogFile)
		tracker := status.NewTracker()
		engine := monitor.NewEngine(store, tracker, monitor.EngineConfig{
			AutoFix: fix,
			Logger:  logging.New("monitor", logging.DefaultLogFile),
		})

		super := monitor.NewSupervisor(engine, resolveInterval(interval, store))
		if err := super.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start monitor: %v\n", err)
			os.Exit(1)
		}

		server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger}, engine, super)
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			super.Stop()
			os.Exit(1)
		}

		fmt.Printf("Dashboard running on http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		super.Stop()
		fmt.Println("Stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8000, "Port to serve the dashboard on")
	dashboardCmd.Flags().IntP("interval", "i", 0, "Sync check interval in seconds (default: config sync_interval, else 60)")
	dashboardCmd.Flags().Bool("fix", false, "Automatically fix sync issues when detected")

	rootCmd.AddCommand(dashboardCmd)
}
