package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sinz/selene/internal/bridge"
	"github.com/sinz/selene/internal/config"
	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/script"
)

func newRunCommand() *cobra.Command {
	var (
		ticks    int
		commands []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load every mod and run the entry pass",
		Long: `Load every mod in the mods folder, including scripted mods, then run
their Entry methods and raise GameLaunched.

Scripted mods are content packs for SinZ.SeleneSupport with a modentry.lua
or modentry.js in their folder.`,
		Example: `  # Load the mods in ./Mods
  selene run

  # Load, tick the game loop twice, then run a console command
  selene run --mods ./Mods --ticks 2 --command "selene_mods"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMods(ctx, cmd.OutOrStdout(), cfg, logger, ticks, commands)
		},
	}

	cmd.Flags().IntVar(&ticks, "ticks", 0, "Number of game loop ticks to raise after loading")
	cmd.Flags().StringArrayVar(&commands, "command", nil, "Console command to run after loading (repeatable)")
	return cmd
}

func newCore(cfg config.Config, logger zerolog.Logger) (*host.Core, error) {
	opts := []host.Option{
		host.WithLogger(logger),
		host.WithContentPath(cfg.Content),
		host.WithDataPath(cfg.Data),
		host.WithLocale(cfg.Locale),
		host.WithContentWatch(cfg.Watch),
	}
	if !cfg.Tracing.Enabled {
		opts = append(opts, host.WithTracer(noop.NewTracerProvider().Tracer("selene")))
	}
	return host.New(cfg.Mods, opts...)
}

func newBridge(cfg config.Config, logger zerolog.Logger) (*bridge.State, error) {
	rt := bridge.NewRuntime(
		script.WithBaseDir(scriptBaseDir(cfg)),
		script.WithIsolation(script.Isolation(cfg.Script.Isolation)),
		script.WithRequireNative(cfg.Script.RequireNative),
		script.WithLogger(logger.With().Str("component", "script").Logger()),
	)
	state := bridge.Default()
	if err := state.Configure(bridge.WithRuntime(rt), bridge.WithLogger(logger)); err != nil {
		return nil, err
	}
	return state, nil
}

func runMods(ctx context.Context, out io.Writer, cfg config.Config, logger zerolog.Logger, ticks int, commands []string) error {
	core, err := newCore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	defer core.Close()

	state, err := newBridge(cfg, logger)
	if err != nil {
		return err
	}
	defer state.Close()

	if err := state.Install(bridge.NewHostBridge(core)); err != nil {
		logger.Warn().Err(err).Msg("Scripted mod support is not available")
	}

	if err := core.LoadMods(ctx); err != nil {
		return fmt.Errorf("failed to load mods: %w", err)
	}

	for i := 0; i < ticks && ctx.Err() == nil; i++ {
		core.Tick()
	}
	for _, line := range commands {
		handled, err := core.RunCommand(line)
		if err != nil {
			logger.Error().Err(err).Str("command", line).Msg("Command failed")
		} else if !handled {
			logger.Warn().Str("command", line).Msg("Unknown command")
		}
	}

	printSummary(out, core, state)
	return nil
}

func printSummary(out io.Writer, core *host.Core, state *bridge.State) {
	scripted := map[string]string{}
	for _, mod := range state.ScriptMods() {
		scripted[mod.ModManifest.UniqueID] = mod.Handle().Engine()
	}

	loaded := core.LoadedMods()
	fmt.Fprintln(out, color.New(color.Bold).Sprint("Summary:"))
	fmt.Fprintln(out, color.GreenString("  ✓ Loaded: %d", len(loaded)))
	for _, meta := range loaded {
		kind := "code"
		switch {
		case scripted[meta.ID()] != "":
			kind = scripted[meta.ID()]
		case meta.IsContentPack():
			kind = "content pack"
		}
		fmt.Fprintf(out, "    %s %s (%s)\n", meta.DisplayName(), meta.Manifest().Version, kind)
	}

	failed := core.FailedMods()
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].DisplayName() < failed[j].DisplayName() })
	if len(failed) > 0 {
		fmt.Fprintln(out, color.RedString("  ✗ Failed: %d", len(failed)))
		for _, meta := range failed {
			fmt.Fprintf(out, "    %s [%s] %s\n", meta.DisplayName(), meta.FailReason(), meta.Error())
		}
	}

	if disabled, reason := state.Disabled(); disabled {
		fmt.Fprintln(out, color.YellowString("  ⚠ Scripted mods disabled: %v", reason))
	}
}
