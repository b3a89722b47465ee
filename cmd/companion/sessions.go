package main

import (
	"fmt"
	"io"
	"strings"

	"companion/internal/session"
	"companion/internal/session/filestore"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSessionsCommand(v *viper.Viper) *cobra.Command {
	var showArchived bool
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List saved sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			store, err := filestore.New(cfg.SessionsDir())
			if err != nil {
				return err
			}
			saved, err := store.LoadAll()
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), store.Dir(), saved, showArchived)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showArchived, "all", "a", false, "Include archived sessions")
	return cmd
}

func printSessions(w io.Writer, dir string, saved []session.Persisted, showArchived bool) {
	fmt.Fprintf(w, "%s %s\n\n", bold("Saved sessions in"), dir)
	shown := 0
	for _, p := range saved {
		if p.Archived && !showArchived {
			continue
		}
		shown++
		var tags []string
		if p.Pinned {
			tags = append(tags, cyan("[pinned]"))
		}
		if p.Archived {
			tags = append(tags, gray("[archived]"))
		}
		title := fmt.Sprintf("%3d. %s", shown, green(p.Name))
		if len(tags) > 0 {
			title += " " + strings.Join(tags, " ")
		}
		fmt.Fprintln(w, title)

		details := []string{"id " + shortID(p.ID), "cwd " + p.CWD}
		if p.Model != "" {
			details = append(details, "model "+p.Model)
		}
		details = append(details,
			fmt.Sprintf("turns %d", p.NumTurns),
			fmt.Sprintf("$%.4f", p.TotalCostUSD),
		)
		if p.ConversationID != "" {
			details = append(details, "resumable")
		}
		fmt.Fprintf(w, "     %s\n", gray(strings.Join(details, "  ")))
	}
	if shown == 0 {
		fmt.Fprintln(w, gray("  No sessions yet. Run companion to start one."))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
