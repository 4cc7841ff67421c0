package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/discovery"
	"github.com/muurk/aseko-local/internal/monitor"
	"github.com/muurk/aseko-local/internal/stream"
	"github.com/muurk/aseko-local/internal/ui"
)

// Devices command flags
var (
	devicesURL     string
	devicesTimeout time.Duration
	devicesJSON    bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the units known to a running bridge",
	Long: `Query the REST snapshot of a running bridge and print one line per unit.

Without --url the bridge is found over mDNS, which requires stream and
discovery to be enabled on it.`,
	Example: `  # Find the bridge on the local network
  aseko-server devices

  # Query a known bridge
  aseko-server devices --url http://raspberrypi.local:8080

  # JSON output for scripting
  aseko-server devices --json`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesURL, "url", "", "Bridge HTTP base URL (skips discovery)")
	devicesCmd.Flags().DurationVar(&devicesTimeout, "timeout", discovery.DefaultScanTimeout, "Discovery and request timeout")
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Print the raw snapshot as JSON")
}

func runDevices(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	p := ui.NewPrinter(cmd.OutOrStdout())

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*devicesTimeout)
	defer cancel()

	baseURL := devicesURL
	if baseURL == "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = devicesTimeout
		b, err := scanner.WaitForBridge(ctx)
		if err != nil {
			p.PrintResult(ui.NewFailureResult("No bridge found", err,
				"Enable stream and discovery in the bridge config",
				"Or pass the address with --url http://host:8080",
			))
			return err
		}
		baseURL = b.BaseURL()
	}

	list, err := stream.FetchDevices(ctx, baseURL)
	if err != nil {
		p.PrintResult(ui.NewFailureResult("Could not query the bridge", err,
			"Check that aseko-server is running with the stream enabled",
		))
		return err
	}

	if devicesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		p.Println("No units have connected yet.")
		return nil
	}

	// Nicknames are local; a missing config file is not an error here.
	names := map[uint32]string{}
	if cfg, _, err := loadConfig(); err == nil {
		names = cfg.Nicknames()
	}
	p.PrintTable(deviceHeaders(), deviceRows(list, names, time.Now()))
	p.Printf("%d unit(s) at %s\n", len(list), baseURL)
	return nil
}

func deviceHeaders() []string {
	headers := make([]string, len(monitor.Columns))
	for i, c := range monitor.Columns {
		headers[i] = c.Title
	}
	return headers
}

func deviceRows(list []devices.Device, names map[uint32]string, now time.Time) [][]string {
	rows := make([][]string, 0, len(list))
	for _, d := range list {
		if d.State == nil {
			continue
		}
		rows = append(rows, monitor.Row(d, names[d.Serial], now))
	}
	return rows
}

// displayName is the nickname of serial, or its number.
func displayName(cfg *config.Config, serial uint32) string {
	if cfg == nil {
		return fmt.Sprintf("%d", serial)
	}
	return cfg.DisplayName(serial)
}
