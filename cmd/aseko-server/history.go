package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/protocol"
	"github.com/muurk/aseko-local/internal/store"
	"github.com/muurk/aseko-local/internal/ui"
)

// History command flags
var (
	historyDB    string
	historySince time.Duration
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [serial]",
	Short: "Show stored readings",
	Long: `Read the SQLite history written by 'aseko-server serve' when history is
enabled. Without a serial number the latest reading of every unit is shown.`,
	Example: `  # Latest reading per unit
  aseko-server history

  # Last day of readings for one unit
  aseko-server history 110200612 --since 24h

  # Export as JSON
  aseko-server history 110200612 --since 168h --limit 0 --json > week.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database (default from config)")
	historyCmd.Flags().DurationVar(&historySince, "since", 24*time.Hour, "How far back to read")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of readings, 0 for all")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print readings as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	p := ui.NewPrinter(cmd.OutOrStdout())

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	path := historyDB
	if path == "" {
		path = cfg.History.Path
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		p.PrintResult(ui.NewFailureResult("No history database", err,
			"Enable history in the config and run aseko-server serve",
			"Or point at a database with --db",
		))
		return err
	}

	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	var readings []store.Reading
	if len(args) == 1 {
		serial, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid serial number %q", args[0])
		}
		readings, err = s.History(ctx, uint32(serial), time.Now().Add(-historySince), historyLimit)
		if err != nil {
			return err
		}
	} else {
		serials, err := s.Serials(ctx)
		if err != nil {
			return err
		}
		for _, serial := range serials {
			r, err := s.Latest(ctx, serial)
			if err != nil {
				return err
			}
			readings = append(readings, r)
		}
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(readings)
	}
	if len(readings) == 0 {
		p.Println("No readings stored for that period.")
		return nil
	}
	p.PrintTable(historyHeaders, historyRows(cfg, readings))
	return nil
}

var historyHeaders = []string{"Recorded", "Serial", "Name", "pH", "Redox", "Cl free", "Water", "Pump"}

func historyRows(cfg *config.Config, readings []store.Reading) [][]string {
	rows := make([][]string, 0, len(readings))
	for _, r := range readings {
		s := r.State
		pump := "off"
		if s.PumpRunning {
			pump = "on"
		}
		rows = append(rows, []string{
			r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.FormatUint(uint64(r.Serial), 10),
			displayName(cfg, r.Serial),
			protocol.FormatFloat(s.PH, 2),
			protocol.FormatInt(s.Redox),
			protocol.FormatFloat(s.ClFree, 2),
			protocol.FormatFloat(s.WaterTemperature, 1),
			pump,
		})
	}
	return rows
}
