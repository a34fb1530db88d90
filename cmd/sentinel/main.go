// Package main is the CLI entry point for the queue sentinel.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/GriffinCanCode/queue-sentinel/internal/config"
)

// Version is set via ldflags.
var Version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Watches a game window and beeps when the queue indicator disappears",
	Long: `sentinel finds the target window by title, lets you pick the square that
frames the queue indicator, and then re-captures the window every second.
While watching is on, an alert tone plays whenever the indicator is missing.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sentinel with its HTTP, WebSocket and gRPC health surfaces",
	RunE:  runRun,
}

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List the windows that can be captured",
	RunE:  runWindows,
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Detect candidate regions in the target window and write their previews",
	RunE:  runRegions,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running sentinel",
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the reference (on a running sentinel, or on disk when none is running)",
	RunE:  runReset,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query the gRPC health service; exits non-zero unless the sentinel is armed",
	RunE:  runHealth,
}

var (
	outDir      string
	serverAddr  string
	grpcAddr    string
	jsonOutput  bool
	watchHealth bool
)

func init() {
	regionsCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write region previews to")
	statusCmd.Flags().StringVar(&serverAddr, "addr", "", "Address of the running sentinel (default HTTP_ADDR)")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw status JSON")
	resetCmd.Flags().StringVar(&serverAddr, "addr", "", "Address of the running sentinel (default HTTP_ADDR)")
	healthCmd.Flags().StringVar(&grpcAddr, "addr", "", "gRPC address of the running sentinel (default GRPC_ADDR)")
	healthCmd.Flags().BoolVarP(&watchHealth, "watch", "w", false, "Stream readiness changes until interrupted")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(regionsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(healthCmd)
}

// setupLogging installs the default slog logger, teeing into a rotating file
// when LOG_FILE is set. The returned func closes the file.
func setupLogging(cfg *config.Config) func() error {
	var out io.Writer = os.Stderr
	closer := func() error { return nil }
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,   // Megabytes
			MaxBackups: 5,    // Files
			MaxAge:     30,   // Days
			Compress:   true, // gzip
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closer = rotator.Close
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return closer
}
