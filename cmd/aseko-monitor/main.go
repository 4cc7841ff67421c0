// Aseko-monitor is a live terminal dashboard for an aseko-server bridge.
//
// It connects to the bridge's WebSocket stream and shows one row per pool
// unit, updated as frames arrive. The bridge is found over mDNS unless an
// address is given.
//
// Usage:
//
//	aseko-monitor [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/discovery"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/monitor"
	"github.com/muurk/aseko-local/internal/ui"
	"github.com/muurk/aseko-local/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command flags
var (
	streamURL   string
	scanTimeout time.Duration
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "aseko-monitor",
	Short: "Live dashboard for Aseko pool units",
	Long: `A terminal dashboard for the aseko-server WebSocket stream.

The bridge must run with the stream enabled. With discovery enabled on the
bridge it is found automatically; otherwise pass its stream URL.`,
	Example: `  # Find the bridge over mDNS
  aseko-monitor

  # Connect to a known bridge
  aseko-monitor --url ws://raspberrypi.local:8080/ws`,
	Version:       version.Version,
	SilenceErrors: true,
	RunE:          runMonitor,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&streamURL, "url", "", "Stream URL, e.g. ws://host:8080/ws (skips discovery)")
	rootCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "mDNS discovery timeout")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file with device nicknames (default is the user config directory)")

	rootCmd.AddCommand(versionCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	p := ui.NewPrinter(cmd.OutOrStdout())

	// Log output would corrupt the full-screen view.
	logging.SetLogger(zap.NewNop())

	url := streamURL
	if url == "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = scanTimeout
		p.Printf("Looking for an Aseko bridge (timeout: %s)...\n", scanTimeout)

		b, err := scanner.WaitForBridge(context.Background())
		if err != nil {
			p.PrintResult(ui.NewFailureResult("No bridge found", err,
				"Start the bridge with the stream and discovery enabled",
				"Check that this machine is on the same network",
				"Or pass the address with --url ws://host:8080/ws",
			))
			return err
		}
		url = b.StreamURL()
	}

	return monitor.Run(url, loadNicknames())
}

// loadNicknames reads device nicknames from the bridge config, if any.
func loadNicknames() map[uint32]string {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil
	}
	return cfg.Nicknames()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "aseko-monitor %s\n", version.Full())
	},
}
