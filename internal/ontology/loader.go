package ontology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ledgersmith/cellflow/internal/model"
)

// catalogueFile is the YAML layout of an ontology catalogue.
type catalogueFile struct {
	Version    string          `yaml:"version"`
	Categories []categoryEntry `yaml:"categories"`
}

type categoryEntry struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	ParentID    string   `yaml:"parent_id"`
	Section     string   `yaml:"section"`
	Keywords    []string `yaml:"keywords"`
	Exemplars   []string `yaml:"exemplars"`
}

// LoadFile reads and validates an ontology catalogue from a YAML file.
func LoadFile(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ontology file: %w", err)
	}
	return Load(data)
}

// Load parses and validates an ontology catalogue from YAML bytes.
func Load(data []byte) (*Ontology, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse ontology: %w", err)
	}

	categories := make([]model.Category, len(file.Categories))
	for i, entry := range file.Categories {
		categories[i] = model.Category{
			ID:          entry.ID,
			DisplayName: entry.DisplayName,
			ParentID:    entry.ParentID,
			Section:     model.StatementSection(entry.Section),
			Keywords:    entry.Keywords,
			Exemplars:   entry.Exemplars,
		}
	}

	ont, err := New(file.Version, categories)
	if err != nil {
		return nil, fmt.Errorf("invalid ontology: %w", err)
	}
	return ont, nil
}
