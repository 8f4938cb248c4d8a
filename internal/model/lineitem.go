package model

// Coordinates locate a line item in its source document. They are opaque to
// this subsystem and passed through unmodified for audit lineage.
type Coordinates struct {
	Page int
	Row  int
}

// LineItem is one extracted label/value pair from a source financial
// statement. Created by the upstream extraction collaborator; read-only here.
type LineItem struct {
	SourceID    string
	Label       string
	RawValue    float64
	SectionHint string // surrounding statement section text, may be empty
	Coordinates Coordinates
}
