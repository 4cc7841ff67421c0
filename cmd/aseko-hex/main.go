// Aseko-hex is a diagnostic tool for captured Aseko frames.
//
// It takes the hex dump of one 120-byte frame, as written by the capture
// logs of aseko-server, and prints an annotated byte table, single byte
// values, Go fixture code or the decoded device state.
//
// Usage:
//
//	aseko-hex [command] <hex> [flags]
//
// See 'aseko-hex --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/aseko-local/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aseko-hex",
	Short: "Aseko frame diagnostic tool",
	Long: `A diagnostic tool for raw Aseko telemetry frames.

Every command takes the hex dump of exactly one 120-byte frame. Spaces and
colons between bytes are ignored, so lines copied from frames_hex.log or
from a packet capture can be pasted as they are.`,
	Version:       version.Version,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(tableWriteCmd)
	rootCmd.AddCommand(byteInfoCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "aseko-hex %s\n", version.Full())
	},
}
