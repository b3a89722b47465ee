package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"companion/internal/logging"
	"companion/internal/registry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEnvsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "envs",
		Aliases: []string{"env"},
		Short:   "List environment profiles usable with :new <profile>",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			profiles, err := registry.LoadProfiles(cfg.EnvsDir(), logging.Nop())
			if err != nil {
				return err
			}
			printProfiles(cmd.OutOrStdout(), cfg.EnvsDir(), profiles)
			return nil
		},
	}
}

// printProfiles lists variable names only; values may hold credentials.
func printProfiles(w io.Writer, dir string, profiles []registry.Profile) {
	fmt.Fprintf(w, "%s %s\n\n", bold("Environment profiles in"), dir)
	if len(profiles) == 0 {
		fmt.Fprintln(w, gray("  None. Add <name>.json files with {\"description\": ..., \"vars\": {...}}."))
		return
	}
	for _, p := range profiles {
		line := "  " + green(p.Name)
		if p.Description != "" {
			line += " - " + p.Description
		}
		fmt.Fprintln(w, line)

		keys := make([]string, 0, len(p.Vars))
		for k := range p.Vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			fmt.Fprintf(w, "    %s\n", gray(strings.Join(keys, ", ")))
		}
	}
}
