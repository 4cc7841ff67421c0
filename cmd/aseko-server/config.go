package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/ui"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default settings",
	Example: `  aseko-server config init
  aseko-server config init --config ./aseko.yaml --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	p := ui.NewPrinter(cmd.OutOrStdout())

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if exists && !configForce {
		if !ui.IsTerminal() {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), path+" already exists. Overwrite?") {
			p.Println("Aborted.")
			return nil
		}
	}

	if err := config.Default().Save(path); err != nil {
		p.PrintResult(ui.NewFailureResult("Could not write configuration", err))
		return err
	}

	p.PrintResult(ui.NewSuccessResult("Configuration written",
		ui.Param{Key: "File", Value: path},
		ui.Param{Key: "Next", Value: "edit the file, then run aseko-server serve"},
	))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "********"
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", path)
	_, err = out.Write(data)
	return err
}
