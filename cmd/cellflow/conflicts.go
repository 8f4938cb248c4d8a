package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersmith/cellflow/internal/model"
)

func conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Show conflicts for a mapping session",
		RunE:  runConflicts,
	}

	cmd.Flags().String("session", "", "Session id (required)")
	cmd.Flags().Bool("all", false, "Include resolved conflicts")
	_ = cmd.MarkFlagRequired("session")

	_ = viper.BindPFlag("conflicts.session", cmd.Flags().Lookup("session"))
	_ = viper.BindPFlag("conflicts.all", cmd.Flags().Lookup("all"))

	return cmd
}

func runConflicts(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	session, err := store.GetSession(ctx, viper.GetString("conflicts.session"))
	if err != nil {
		return err
	}

	conflicts := session.Conflicts
	if !viper.GetBool("conflicts.all") {
		conflicts = session.OpenConflicts()
	}

	fmt.Fprintln(out, titleStyle.Render("Conflicts"))
	fmt.Fprintf(out, "%s %s (%s)\n\n", labelStyle.Render("Session:"), session.ID, statusLabel(session.Status))

	if len(conflicts) == 0 {
		fmt.Fprintln(out, readyStyle.Render("Nothing to resolve."))
		return nil
	}

	for _, c := range conflicts {
		printConflict(cmd, session, c)
	}
	return nil
}

func printConflict(cmd *cobra.Command, session *model.MappingSession, c model.Conflict) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s  %s  %s  cell %s\n",
		severityLabel(c.Severity), c.ID, c.Type, c.CellAddress)

	if len(c.AssignmentIDs) > 0 {
		for _, id := range c.AssignmentIDs {
			if asn := findAssignment(session, id); asn != nil {
				state := ""
				if asn.Discarded {
					state = " (discarded)"
				}
				fmt.Fprintf(out, "    %s  %.2f  from %s%s\n",
					asn.LineItemID, asn.Value, asn.SourceID, state)
			}
		}
	}
	if len(c.Suggestions) > 0 {
		fmt.Fprintf(out, "    %s %s\n", labelStyle.Render("suggested:"), strings.Join(c.Suggestions, ", "))
	}
	if c.State == model.ConflictResolved {
		fmt.Fprintf(out, "    %s %s\n", labelStyle.Render("resolved:"), c.Resolution)
	}
	fmt.Fprintln(out)
}

func findAssignment(session *model.MappingSession, id string) *model.Assignment {
	for i := range session.Assignments {
		if session.Assignments[i].ID == id {
			return &session.Assignments[i]
		}
	}
	return nil
}
