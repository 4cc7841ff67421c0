package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/aseko-local/internal/bridge"
	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/server"
	"github.com/muurk/aseko-local/internal/ui"
)

const shutdownTimeout = 10 * time.Second

// Serve command flags
var (
	serveHost       string
	servePort       int
	serveLogLevel   string
	serveCaptureDir string
	serveMirror     bool
	serveStream     string
	serveNoRecord   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept connections from Aseko units",
	Long: `Start the bridge. Aseko units connect to the device port and push a
120-byte status frame every few seconds. Every enabled consumer (capture,
mirror, stream, MQTT, history) receives each accepted frame.

Flags override the matching config file settings for this run only.
Newly seen units are added to the config file so they can be given a
nickname; use --no-record to leave the file untouched.`,
	Example: `  # Start with the config file settings
  aseko-server serve

  # Listen on another port with debug logging
  aseko-server serve --port 47525 --log-level debug

  # Keep the Aseko cloud app working and log raw frames for analysis
  aseko-server serve --mirror --capture-dir ./captures

  # Serve the WebSocket stream for aseko-monitor
  aseko-server serve --stream :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Device listener address (default from config, 0.0.0.0)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Device listener port (default from config, 47524)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveCaptureDir, "capture-dir", "", "Write raw frame logs to this directory")
	serveCmd.Flags().BoolVar(&serveMirror, "mirror", false, "Forward frames to the configured mirror host")
	serveCmd.Flags().StringVar(&serveStream, "stream", "", "Serve the WebSocket stream on this address")
	serveCmd.Flags().BoolVar(&serveNoRecord, "no-record", false, "Do not add newly seen units to the config file")
}

// applyServeFlags copies explicitly set flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = serveLogLevel
	}
	if flags.Changed("capture-dir") {
		cfg.Capture.Enabled = serveCaptureDir != ""
		cfg.Capture.Dir = serveCaptureDir
	}
	if flags.Changed("mirror") {
		cfg.Mirror.Enabled = serveMirror
	}
	if flags.Changed("stream") {
		cfg.Stream.Enabled = serveStream != ""
		cfg.Stream.Listen = serveStream
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	p := ui.NewPrinter(cmd.OutOrStdout())

	cfg, path, err := loadConfig()
	if err != nil {
		p.PrintResult(ui.NewFailureResult("Could not load configuration", err,
			"Check the file with: aseko-server config show",
			"Recreate it with: aseko-server config init --force",
		))
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		p.PrintResult(ui.NewFailureResult("Invalid settings", err))
		return err
	}

	if err := logging.InitializeWithFormat(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	if ui.IsTerminal() {
		p.PrintHeader(serveHeader(cfg, path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []bridge.Option
	if !serveNoRecord {
		opts = append(opts, bridge.WithConfigPath(path))
	}
	b := bridge.New(cfg, opts...)
	if err := b.Start(ctx); err != nil {
		p.PrintResult(ui.NewFailureResult("Bridge failed to start", err, startTips(err, cfg)...))
		return err
	}

	if ui.IsTerminal() {
		r := ui.NewSuccessResult("Bridge running", ui.Param{Key: "Devices", Value: b.DeviceAddr().String()})
		if addr := b.StreamAddr(); addr != nil {
			r.AddDetail("Stream", "ws://"+addr.String()+"/ws")
		}
		p.PrintResult(r)
		p.Println(ui.StatusBarStyle.Render("Press Ctrl+C to stop"))
	}

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received")
	case runErr = <-b.Errors():
		logging.Error("Bridge component failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		logging.Error("Shutdown incomplete", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func serveHeader(cfg *config.Config, path string) *ui.Header {
	h := ui.NewHeader("Aseko Bridge", "aseko-server serve",
		ui.Param{Key: "Devices", Value: cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)},
	)
	h.Add("Mirror", enabledOr(cfg.Mirror.Enabled, cfg.Mirror.Host+":"+strconv.Itoa(cfg.Mirror.Port)))
	h.Add("Capture", enabledOr(cfg.Capture.Enabled, cfg.Capture.Dir))
	h.Add("Stream", enabledOr(cfg.Stream.Enabled, cfg.Stream.Listen))
	h.Add("MQTT", enabledOr(cfg.MQTT.Enabled, cfg.MQTT.Broker))
	h.Add("History", enabledOr(cfg.History.Enabled, cfg.History.Path))
	h.Add("Config", path)
	return h
}

func enabledOr(enabled bool, value string) string {
	if !enabled {
		return "disabled"
	}
	return value
}

func startTips(err error, cfg *config.Config) []string {
	var bindErr *server.BindError
	if errors.As(err, &bindErr) {
		return []string{
			"Another process may be using " + bindErr.Addr,
			"Ports below 1024 need elevated privileges",
			"Pick another port with --port, and point the unit at it",
		}
	}
	if cfg.Stream.Enabled {
		return []string{"Check that stream.listen (" + cfg.Stream.Listen + ") is free"}
	}
	return nil
}
