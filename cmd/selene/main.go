// Package main is the entry point for the selene mod host.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sinz/selene/internal/config"
	"github.com/sinz/selene/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "selene",
		Short:         "Mod host with Lua and JavaScript mod support",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			color.NoColor = noColor || !term.IsTerminal(int(os.Stdout.Fd()))
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a YAML configuration file")
	flags.Bool("no-color", false, "Disable colored output")
	config.BindFlags(flags)

	root.AddCommand(newRunCommand(), newListCommand(), newVersionCommand())
	return root
}

// loadConfig merges defaults, the --config file and flags.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmd.Flags(), path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger := logging.Configure(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, logger, nil
}

// scriptBaseDir resolves the folder holding runtimes/<rid>/native.
func scriptBaseDir(cfg config.Config) string {
	if cfg.Script.BaseDir != "" {
		return cfg.Script.BaseDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Selene %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
