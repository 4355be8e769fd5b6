// Package detect defines findings, the detector capability, and the
// built-in structured and rule detectors.
//
// A Finding locates one suspected identifier. Span findings carry both
// Start and End as character (rune) offsets into the named text field;
// whole-field findings carry neither. Finding.Text holds the raw matched
// value and is never serialized.
package detect

import "fmt"

// EntityType classifies a finding.
type EntityType string

const (
	EntityName     EntityType = "NAME"
	EntityPhone    EntityType = "PHONE"
	EntityEmail    EntityType = "EMAIL"
	EntityAddress  EntityType = "ADDRESS"
	EntityDOB      EntityType = "DOB"
	EntityLocation EntityType = "LOCATION"
	EntityOrg      EntityType = "ORG"
	EntityUnknown  EntityType = "UNKNOWN"
)

// EntityTypes lists every entity type in a stable order.
var EntityTypes = []EntityType{
	EntityName, EntityPhone, EntityEmail, EntityAddress,
	EntityDOB, EntityLocation, EntityOrg, EntityUnknown,
}

// Source records which detector produced a finding. It is provenance
// only and carries no trust weighting.
type Source string

const (
	SourceHuggingFace Source = "huggingface"
	SourceRule        Source = "rule"
	SourceStructured  Source = "structured"
)

// Finding is a detector's claim that a location holds PHI.
type Finding struct {
	FieldPath  string     `json:"field_path"`
	EntityType EntityType `json:"entity_type"`
	Confidence float64    `json:"confidence"`
	Source     Source     `json:"source"`
	Start      *int       `json:"start,omitempty"`
	End        *int       `json:"end,omitempty"`
	Text       string     `json:"-"`
}

// HasSpan reports whether both offsets are present.
func (f Finding) HasSpan() bool {
	return f.Start != nil && f.End != nil
}

// Validate checks the finding's structural invariants.
func (f Finding) Validate() error {
	if f.FieldPath == "" {
		return fmt.Errorf("finding: field_path is required")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("finding %s: confidence %v outside [0,1]", f.FieldPath, f.Confidence)
	}
	if (f.Start == nil) != (f.End == nil) {
		return fmt.Errorf("finding %s: start and end must be set together", f.FieldPath)
	}
	if f.HasSpan() && (*f.Start < 0 || *f.End < *f.Start) {
		return fmt.Errorf("finding %s: invalid span [%d,%d)", f.FieldPath, *f.Start, *f.End)
	}
	return nil
}

// Span builds a span finding over [start, end).
func Span(field string, entity EntityType, source Source, confidence float64, start, end int, text string) Finding {
	return Finding{
		FieldPath:  field,
		EntityType: entity,
		Confidence: confidence,
		Source:     source,
		Start:      &start,
		End:        &end,
		Text:       text,
	}
}
