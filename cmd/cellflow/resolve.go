package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersmith/cellflow/internal/mapping"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a conflict in a mapping session",
		Long: `Apply one resolution action to a stored session.

Actions:
  choose     pick the winning line item for a duplicate-target conflict
             (requires --item)
  set-value  enter the cell value directly (requires --value)
  skip       acknowledge a non-critical conflict without remediation

The template and items files from the original map run are required so
re-detection can validate the cell after the remediation.

Examples:
  cellflow resolve --session abc --conflict c1 --action choose --item li-003 \
    --template balance.yaml --items items.json
  cellflow resolve --session abc --conflict c2 --action skip \
    --template balance.yaml --items items.json`,
		RunE: runResolve,
	}

	cmd.Flags().String("session", "", "Session id (required)")
	cmd.Flags().String("conflict", "", "Conflict id (required)")
	cmd.Flags().String("action", "", "Resolution action: choose, set-value or skip (required)")
	cmd.Flags().String("item", "", "Winning line item id for choose actions")
	cmd.Flags().Float64("value", 0, "Manual cell value for set-value actions")
	cmd.Flags().String("template", "", "YAML template used for the original map run (required)")
	cmd.Flags().String("items", "", "JSON line items used for the original map run (required)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("items")

	_ = viper.BindPFlag("resolve.session", cmd.Flags().Lookup("session"))
	_ = viper.BindPFlag("resolve.conflict", cmd.Flags().Lookup("conflict"))
	_ = viper.BindPFlag("resolve.action", cmd.Flags().Lookup("action"))
	_ = viper.BindPFlag("resolve.item", cmd.Flags().Lookup("item"))
	_ = viper.BindPFlag("resolve.value", cmd.Flags().Lookup("value"))
	_ = viper.BindPFlag("resolve.template", cmd.Flags().Lookup("template"))
	_ = viper.BindPFlag("resolve.items", cmd.Flags().Lookup("items"))

	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	kind, err := parseResolutionKind(viper.GetString("resolve.action"))
	if err != nil {
		return err
	}

	tmpl, err := mapping.LoadTemplateFile(viper.GetString("resolve.template"))
	if err != nil {
		return err
	}
	items, err := mapping.LoadLineItemsFile(viper.GetString("resolve.items"))
	if err != nil {
		return err
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	session, err := store.GetSession(ctx, viper.GetString("resolve.session"))
	if err != nil {
		return err
	}

	mapper := mapping.NewEngine(logger)
	detector := mapping.NewDetector(logger,
		mapping.WithReviewThreshold(viperFloat("conflicts.review_threshold", mapping.DefaultReviewThreshold)))
	resolver := mapping.NewResolver(mapper, detector, logger)

	req := mapping.Request{
		ConflictID: viper.GetString("resolve.conflict"),
		Kind:       kind,
		LineItemID: viper.GetString("resolve.item"),
		Value:      viper.GetFloat64("resolve.value"),
	}
	if err := resolver.Apply(session, tmpl, items, req); err != nil {
		return err
	}

	if err := store.SaveSession(ctx, session); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Resolved conflict %s (%s)\n", req.ConflictID, kind)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Session status:"), statusLabel(session.Status))
	if open := session.OpenConflicts(); len(open) > 0 {
		fmt.Fprintf(out, "%d conflicts remain open.\n", len(open))
	}
	return nil
}

func parseResolutionKind(action string) (mapping.ResolutionKind, error) {
	switch action {
	case "choose":
		return mapping.ResolutionChoose, nil
	case "set-value", "set_value":
		return mapping.ResolutionSetValue, nil
	case "skip":
		return mapping.ResolutionSkip, nil
	default:
		return "", fmt.Errorf("unknown action %q (want choose, set-value or skip)", action)
	}
}
