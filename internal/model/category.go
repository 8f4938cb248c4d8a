// Package model defines the core domain models used throughout the application.
package model

// StatementSection identifies which part of a financial statement a category
// belongs to.
type StatementSection string

// Statement section constants.
const (
	SectionRevenue   StatementSection = "revenue"
	SectionExpense   StatementSection = "expense"
	SectionAsset     StatementSection = "asset"
	SectionLiability StatementSection = "liability"
	SectionEquity    StatementSection = "equity"
	SectionOther     StatementSection = "other"
)

// ValidSection reports whether s is a known statement section.
func ValidSection(s StatementSection) bool {
	switch s {
	case SectionRevenue, SectionExpense, SectionAsset, SectionLiability, SectionEquity, SectionOther:
		return true
	}
	return false
}

// Category represents one standardized chart-of-accounts category.
// Categories are immutable once loaded; identity is ID.
type Category struct {
	ID          string
	DisplayName string
	ParentID    string // empty for root categories
	Section     StatementSection
	Keywords    []string
	Exemplars   []string // representative phrases embedded at ontology load
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == ""
}
