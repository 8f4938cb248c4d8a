package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersmith/cellflow/internal/common"
	"github.com/ledgersmith/cellflow/internal/model"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a ready session's cell assignments as JSON",
		Long: `Write the active assignments of a ready session to a JSON file (or
stdout). Sessions with open conflicts cannot be exported; resolve them
first with 'cellflow resolve'.`,
		RunE: runExport,
	}

	cmd.Flags().String("session", "", "Session id (required)")
	cmd.Flags().String("output", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("session")

	_ = viper.BindPFlag("export.session", cmd.Flags().Lookup("session"))
	_ = viper.BindPFlag("export.output", cmd.Flags().Lookup("output"))

	return cmd
}

type exportedCell struct {
	CellAddress string  `json:"cell_address"`
	Value       float64 `json:"value"`
	LineItemID  string  `json:"line_item_id,omitempty"`
	SourceID    string  `json:"source_id"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	session, err := store.GetSession(ctx, viper.GetString("export.session"))
	if err != nil {
		return err
	}

	if session.Status != model.StatusReady {
		open := len(session.OpenConflicts())
		return common.NewUserError(
			fmt.Sprintf("session %s is not ready: %d open conflicts", session.ID, open),
			fmt.Errorf("session %s status %s", session.ID, session.Status))
	}

	assignments := session.ExportableAssignments()
	cells := make([]exportedCell, 0, len(assignments))
	for _, asn := range assignments {
		cells = append(cells, exportedCell{
			CellAddress: asn.CellAddress,
			Value:       asn.Value,
			LineItemID:  asn.LineItemID,
			SourceID:    asn.SourceID,
		})
	}

	data, err := json.MarshalIndent(cells, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	data = append(data, '\n')

	output := viper.GetString("export.output")
	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d cells to %s\n", len(cells), output)
	return nil
}
