package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/aseko-local/internal/hexdump"
	"github.com/muurk/aseko-local/internal/protocol"
	"github.com/muurk/aseko-local/internal/ui"
)

// Command flags
var (
	markdownOut string
	funcName    string
	jsonOutput  bool
	plainOutput bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable styled output")

	tableWriteCmd.Flags().StringVarP(&markdownOut, "out", "o", "hex_table.md", "Markdown file to write")
	generateCmd.Flags().StringVar(&funcName, "func", hexdump.DefaultFuncName, "Name of the generated function")
	decodeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the decoded state as JSON")
}

// parseArgs joins args so an unquoted, space separated dump still parses.
func parseArgs(args []string) ([]byte, error) {
	return hexdump.Parse(strings.Join(args, ""))
}

func styled() bool {
	return !plainOutput && ui.IsTerminal()
}

var tableCmd = &cobra.Command{
	Use:   "table <hex>",
	Short: "Print an annotated byte table",
	Long: `Print every byte of the frame with its index, hex and decimal value, the
big-endian word starting at that byte and the fields mapped onto it.`,
	Example: `  aseko-hex table 069187240901ffffffffffff000402da...
  aseko-hex table --plain "06 91 87 24 09 01 ff ..." | less`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTable,
}

func runTable(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	data, err := parseArgs(args)
	if err != nil {
		return err
	}

	if !styled() {
		return hexdump.WriteTable(cmd.OutOrStdout(), data)
	}
	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintTable(hexdump.Headers, hexdump.Cells(data))
	return nil
}

var tableWriteCmd = &cobra.Command{
	Use:     "tablewrite <hex>",
	Short:   "Write the byte table as Markdown",
	Example: `  aseko-hex tablewrite 069187240901ffff... --out notes/net_clf.md`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runTableWrite,
}

func runTableWrite(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	data, err := parseArgs(args)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(markdownOut); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(markdownOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", markdownOut, err)
	}
	if err := hexdump.WriteMarkdown(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", markdownOut, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if styled() {
		p.PrintResult(ui.NewSuccessResult("Hex table written", ui.Param{Key: "File", Value: markdownOut}))
	} else {
		p.Printf("Hex table written to %s\n", markdownOut)
	}
	return nil
}

var byteInfoCmd = &cobra.Command{
	Use:     "byteinfo <hex> <index>",
	Short:   "Show the byte and word at an index",
	Example: `  aseko-hex byteinfo 069187240901ffff... 14`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runByteInfo,
}

func runByteInfo(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	index, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		return fmt.Errorf("invalid byte index %q", args[len(args)-1])
	}
	data, err := parseArgs(args[:len(args)-1])
	if err != nil {
		return err
	}
	info, err := hexdump.Info(data, index)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), info.String())
	return nil
}

var generateCmd = &cobra.Command{
	Use:   "generate <hex>",
	Short: "Generate Go code that rebuilds the frame",
	Long: `Print a Go function that fills a 0xff buffer with the frame's values,
one annotated statement per known field. Paste the output into a test file
to turn a capture into a fixture.`,
	Example: `  aseko-hex generate 069187240901ffff... --func netCLFFrame`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	data, err := parseArgs(args)
	if err != nil {
		return err
	}
	return hexdump.Generate(cmd.OutOrStdout(), data, funcName)
}

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode the frame like the server does",
	Long: `Realign the frame, apply the plausibility check and print the decoded
device state. A rejected frame is reported with the reason.`,
	Example: `  aseko-hex decode 069187240901ffff...
  aseko-hex decode 069187240901ffff... --json | jq .ph`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	data, err := parseArgs(args)
	if err != nil {
		return err
	}

	decoded, err := hexdump.Decode(nil, data)
	p := ui.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		if styled() {
			p.PrintResult(ui.NewFailureResult("Frame rejected", err, rejectTips(err)...))
		}
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(decoded)
	}

	if styled() {
		p.PrintResult(stateResult(decoded))
		return nil
	}
	p.Printf("rotation: %d\n%s\n", decoded.Rotation, decoded.State)
	return nil
}

func stateResult(d *hexdump.Decoded) *ui.Result {
	s := d.State
	r := ui.NewSuccessResult(fmt.Sprintf("%s %d", s.Type.Model(), s.SerialNumber))
	r.AddDetail("Probes", s.Configuration.String())
	r.AddDetail("Timestamp", s.Timestamp.Format("2006-01-02 15:04:05"))
	if s.TimestampSubstituted {
		r.AddDetail("Clock", "not set, wall clock substituted")
	}
	if d.Rotation != 0 {
		r.AddDetail("Rotation", strconv.Itoa(d.Rotation))
	}
	r.AddDetail("pH", protocol.FormatFloat(s.PH, 2))
	r.AddDetail("Redox", protocol.FormatInt(s.Redox))
	r.AddDetail("Free chlorine", protocol.FormatFloat(s.ClFree, 2))
	r.AddDetail("Salinity", protocol.FormatFloat(s.Salinity, 1))
	r.AddDetail("Water temperature", protocol.FormatFloat(s.WaterTemperature, 1))
	r.AddDetail("Water flow", strconv.FormatBool(s.WaterFlowToProbes))
	r.AddDetail("Pump running", strconv.FormatBool(s.PumpRunning))
	r.AddDetail("Required pH", protocol.FormatFloat(s.RequiredPH, 1))
	r.AddDetail("Pool volume", protocol.FormatInt(s.PoolVolume))
	return r
}

func rejectTips(err error) []string {
	kind, ok := protocol.KindOf(err)
	if !ok {
		return nil
	}
	switch kind {
	case protocol.ErrKindResyncExhausted:
		return []string{
			"No rotation puts the block markers (0x01, 0x03, 0x02) at bytes 5, 45 and 85",
			"Check that the dump is one complete frame from a single connection",
		}
	case protocol.ErrKindImplausible:
		return []string{
			"pH or required pH is out of range, the data is probably corrupted",
			"Inspect bytes 14-15 and 52 with: aseko-hex byteinfo <hex> 14",
		}
	case protocol.ErrKindUnknownDeviceType:
		return []string{"Byte 4 does not match a known unit type"}
	}
	return nil
}
