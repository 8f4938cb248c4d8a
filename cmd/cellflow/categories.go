package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersmith/cellflow/internal/model"
	"github.com/ledgersmith/cellflow/internal/ontology"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Validate and list a category ontology",
		RunE:  runCategories,
	}

	cmd.Flags().String("ontology", "", "YAML category ontology (required)")
	cmd.Flags().String("section", "", "Only list categories in this statement section")
	_ = cmd.MarkFlagRequired("ontology")

	_ = viper.BindPFlag("categories.ontology", cmd.Flags().Lookup("ontology"))
	_ = viper.BindPFlag("categories.section", cmd.Flags().Lookup("section"))

	return cmd
}

func runCategories(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	ont, err := ontology.LoadFile(viper.GetString("categories.ontology"))
	if err != nil {
		return err
	}

	section := model.StatementSection(viper.GetString("categories.section"))
	if section != "" && !model.ValidSection(section) {
		return fmt.Errorf("unknown statement section %q", section)
	}

	categories := ont.Categories()
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Section != categories[j].Section {
			return categories[i].Section < categories[j].Section
		}
		return categories[i].ID < categories[j].ID
	})

	fmt.Fprintln(out, titleStyle.Render("Ontology"))
	fmt.Fprintf(out, "%s %s (%d categories)\n\n", labelStyle.Render("Version:"), ont.Version(), ont.Len())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tSECTION\tPARENT\tKEYWORDS")
	for _, cat := range categories {
		if section != "" && cat.Section != section {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			cat.ID, cat.DisplayName, cat.Section, cat.ParentID, len(cat.Keywords))
	}
	return w.Flush()
}
