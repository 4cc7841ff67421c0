// Aseko-server is a local telemetry bridge for Aseko pool controllers.
//
// ASIN AQUA units push a binary status frame over TCP every few seconds.
// The bridge accepts those connections in place of the Aseko cloud, decodes
// the frames and makes the data available locally: a WebSocket stream and
// REST snapshot, MQTT with Home Assistant discovery, SQLite history and raw
// capture logs. Frames can be mirrored to the cloud so the official app
// keeps working.
//
// Usage:
//
//	aseko-server serve [flags]
//
// See 'aseko-server --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "aseko-server",
	Short: "Aseko pool controller bridge",
	Long: `A local bridge for Aseko (ASIN AQUA) pool controllers.

Point the unit's server address, or a DNS override for the Aseko cloud host,
at this machine and run 'aseko-server serve'. Decoded data is available over
WebSocket, REST, MQTT and SQLite depending on the configuration.

Note: For a live dashboard, use the separate 'aseko-monitor' utility.
For analysing captured frames, use the separate 'aseko-hex' utility.`,
	Version:       version.Version,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath returns --config or the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// loadConfig loads the config file, or defaults when it does not exist.
func loadConfig() (*config.Config, string, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "aseko-server %s\n", version.Full())
	},
}
