package detect

import (
	"context"

	"github.com/fyrsmithlabs/phisan/internal/record"
)

// Structured flags every populated structured patient field as a
// whole-field finding with full confidence.
type Structured struct{}

// NewStructured returns a structured-field detector.
func NewStructured() *Structured {
	return &Structured{}
}

type structuredField struct {
	path   string
	entity EntityType
	value  string
}

// Detect emits one finding per non-empty patient field.
func (s *Structured) Detect(_ context.Context, rec record.CanonicalRecord) ([]Finding, error) {
	p := rec.Patient
	fields := []structuredField{
		{record.FieldFirstName, EntityName, p.FirstName},
		{record.FieldLastName, EntityName, p.LastName},
		{record.FieldDOB, EntityDOB, p.DOB},
		{record.FieldPhone, EntityPhone, p.Phone},
		{record.FieldAddress, EntityAddress, p.Address},
	}
	if p.HasEmail() {
		fields = append(fields, structuredField{record.FieldEmail, EntityEmail, *p.Email})
	}

	findings := make([]Finding, 0, len(fields))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		findings = append(findings, Finding{
			FieldPath:  f.path,
			EntityType: f.entity,
			Confidence: 1.0,
			Source:     SourceStructured,
		})
	}
	return findings, nil
}

var _ Detector = (*Structured)(nil)
