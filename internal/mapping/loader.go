package mapping

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ledgersmith/cellflow/internal/model"
)

// templateFile is the YAML layout of a template cell schema.
type templateFile struct {
	Name  string `yaml:"name"`
	Cells []struct {
		Address       string `yaml:"address"`
		Category      string `yaml:"category"`
		Required      bool   `yaml:"required"`
		Aggregation   string `yaml:"aggregation"`
		AllowMultiple bool   `yaml:"allow_multiple"`
	} `yaml:"cells"`
	Checks []struct {
		Name      string   `yaml:"name"`
		Target    string   `yaml:"target"`
		SumOf     []string `yaml:"sum_of"`
		Tolerance float64  `yaml:"tolerance"`
	} `yaml:"checks"`
}

// LoadTemplateFile reads and validates a template cell schema from YAML.
func LoadTemplateFile(path string) (*model.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return LoadTemplate(data)
}

// LoadTemplate parses and validates a template cell schema from YAML bytes.
func LoadTemplate(data []byte) (*model.Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	tmpl := &model.Template{Name: file.Name}
	for _, c := range file.Cells {
		agg := model.Aggregation(c.Aggregation)
		if c.Aggregation == "" {
			agg = model.AggregationSum
		}
		tmpl.Cells = append(tmpl.Cells, model.TemplateCellSpec{
			CellAddress:        c.Address,
			ExpectedCategoryID: c.Category,
			Required:           c.Required,
			Aggregation:        agg,
			AllowMultiple:      c.AllowMultiple,
		})
	}
	for _, c := range file.Checks {
		tmpl.Checks = append(tmpl.Checks, model.CrossCheck{
			Name:       c.Name,
			TargetCell: c.Target,
			SumOf:      c.SumOf,
			Tolerance:  c.Tolerance,
		})
	}

	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return tmpl, nil
}

// lineItemRecord is the JSON layout of one extracted line item, as handed
// over by the upstream extraction collaborator.
type lineItemRecord struct {
	SourceID    string  `json:"source_id"`
	Label       string  `json:"label"`
	Value       float64 `json:"value"`
	SectionHint string  `json:"section_hint"`
	Page        int     `json:"page"`
	Row         int     `json:"row"`
}

// LoadLineItemsFile reads an ordered list of line items from JSON.
func LoadLineItemsFile(path string) ([]model.LineItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read line items file: %w", err)
	}
	return LoadLineItems(data)
}

// LoadLineItems parses an ordered list of line items from JSON bytes.
func LoadLineItems(data []byte) ([]model.LineItem, error) {
	var records []lineItemRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse line items: %w", err)
	}

	items := make([]model.LineItem, len(records))
	for i, rec := range records {
		sourceID := rec.SourceID
		if sourceID == "" {
			return nil, fmt.Errorf("line item at index %d has no source_id", i)
		}
		items[i] = model.LineItem{
			SourceID:    sourceID,
			Label:       rec.Label,
			RawValue:    rec.Value,
			SectionHint: rec.SectionHint,
			Coordinates: model.Coordinates{Page: rec.Page, Row: rec.Row},
		}
	}
	return items, nil
}
