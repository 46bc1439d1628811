package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sinz/selene/internal/bridge"
	"github.com/sinz/selene/internal/host"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List the mods found in the mods folder",
		Example: `  selene list --mods ./Mods`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			mods, err := host.DiscoverMods(cfg.Mods)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", cfg.Mods, err)
			}
			return printModTable(cmd.OutOrStdout(), host.OrderByDependencies(mods))
		},
	}
}

func modKind(meta *host.ModMetadata) string {
	switch {
	case meta.Manifest() == nil:
		return "-"
	case bridge.IsScriptedPack(meta):
		return bridge.ScriptEngine(meta.Manifest())
	case meta.IsContentPack():
		return "content pack for " + meta.Manifest().ContentPackFor.UniqueID
	default:
		return "code"
	}
}

func printModTable(out io.Writer, mods []*host.ModMetadata) error {
	if len(mods) == 0 {
		_, err := fmt.Fprintln(out, color.YellowString("No mods found"))
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tKIND\tSTATUS")
	for _, meta := range mods {
		id, ver := meta.ID(), "-"
		if m := meta.Manifest(); m != nil {
			ver = m.Version
		}
		status := color.GreenString("ok")
		if meta.Status() == host.StatusFailed {
			status = color.RedString("%s: %s", meta.FailReason(), meta.Error())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, meta.DisplayName(), ver, modKind(meta), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "Found %d mod(s)\n", len(mods))
	return err
}
