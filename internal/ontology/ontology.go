// Package ontology loads and indexes the versioned catalogue of standardized
// accounting categories. The catalogue is loaded once per process and is
// immutable at runtime, so concurrent classification workers may share one
// instance without synchronization.
package ontology

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/ledgersmith/cellflow/internal/model"
)

// Ontology is an immutable snapshot of the category catalogue.
type Ontology struct {
	version    string
	categories []model.Category
	byID       map[string]*model.Category
	// keywordDF counts how many categories carry each normalized keyword,
	// used by the rule matcher for specificity weighting.
	keywordDF map[string]int
}

// Version returns the catalogue version identifier. It is recorded on every
// classification result so stored results can be invalidated when the
// catalogue changes.
func (o *Ontology) Version() string {
	return o.version
}

// Categories returns the catalogue in declaration order. The returned slice
// is a copy; the ontology itself is never mutated.
func (o *Ontology) Categories() []model.Category {
	out := make([]model.Category, len(o.categories))
	copy(out, o.categories)
	return out
}

// Category returns the category with the given id, or nil if unknown.
func (o *Ontology) Category(id string) *model.Category {
	return o.byID[id]
}

// Len returns the number of categories in the catalogue.
func (o *Ontology) Len() int {
	return len(o.categories)
}

// KeywordFrequency returns how many categories carry the given normalized
// keyword. Unknown keywords return zero.
func (o *Ontology) KeywordFrequency(keyword string) int {
	return o.keywordDF[keyword]
}

// New builds an ontology from a validated category list. When version is
// empty, a content hash of the canonicalized catalogue is used so identical
// catalogues always share a version.
func New(version string, categories []model.Category) (*Ontology, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("ontology has no categories")
	}

	byID := make(map[string]*model.Category, len(categories))
	for i := range categories {
		cat := &categories[i]
		if cat.ID == "" {
			return nil, fmt.Errorf("category at index %d has no id", i)
		}
		if cat.DisplayName == "" {
			return nil, fmt.Errorf("category %s has no display name", cat.ID)
		}
		if !model.ValidSection(cat.Section) {
			return nil, fmt.Errorf("category %s has unknown section %q", cat.ID, cat.Section)
		}
		if _, dup := byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %s", cat.ID)
		}
		byID[cat.ID] = cat
	}

	// Parent references must resolve within the catalogue.
	for i := range categories {
		cat := &categories[i]
		if cat.ParentID == "" {
			continue
		}
		if cat.ParentID == cat.ID {
			return nil, fmt.Errorf("category %s is its own parent", cat.ID)
		}
		if _, ok := byID[cat.ParentID]; !ok {
			return nil, fmt.Errorf("category %s references unknown parent %s", cat.ID, cat.ParentID)
		}
	}

	// Leaf categories need matching hints: at least one keyword or exemplar.
	hasChild := make(map[string]bool)
	for i := range categories {
		if categories[i].ParentID != "" {
			hasChild[categories[i].ParentID] = true
		}
	}
	for i := range categories {
		cat := &categories[i]
		if !hasChild[cat.ID] && len(cat.Keywords) == 0 && len(cat.Exemplars) == 0 {
			return nil, fmt.Errorf("leaf category %s has no keywords or exemplars", cat.ID)
		}
	}

	keywordDF := make(map[string]int)
	for i := range categories {
		seen := make(map[string]bool)
		for _, kw := range categories[i].Keywords {
			norm := strings.ToLower(strings.TrimSpace(kw))
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			keywordDF[norm]++
		}
	}

	if version == "" {
		version = contentHash(categories)
	}

	return &Ontology{
		version:    version,
		categories: categories,
		byID:       byID,
		keywordDF:  keywordDF,
	}, nil
}

// contentHash derives a stable version identifier from the catalogue content.
func contentHash(categories []model.Category) string {
	lines := make([]string, 0, len(categories))
	for _, cat := range categories {
		kws := append([]string(nil), cat.Keywords...)
		sort.Strings(kws)
		exs := append([]string(nil), cat.Exemplars...)
		sort.Strings(exs)
		lines = append(lines, fmt.Sprintf("%s|%s|%s|%s|%s|%s",
			cat.ID, cat.DisplayName, cat.ParentID, cat.Section,
			strings.Join(kws, ","), strings.Join(exs, ",")))
	}
	sort.Strings(lines)

	hash := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return fmt.Sprintf("%x", hash[:8])
}
