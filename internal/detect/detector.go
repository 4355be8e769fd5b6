package detect

import (
	"context"

	"github.com/fyrsmithlabs/phisan/internal/record"
)

// Detector finds suspected PHI in a single record.
//
// Implementations must not mutate the record. An error means the detector
// could not run; callers treat it as fatal for that record rather than
// proceeding with partial findings.
type Detector interface {
	Detect(ctx context.Context, rec record.CanonicalRecord) ([]Finding, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, rec record.CanonicalRecord) ([]Finding, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, rec record.CanonicalRecord) ([]Finding, error) {
	return f(ctx, rec)
}

// Nop returns no findings.
type Nop struct{}

// Detect returns no findings.
func (Nop) Detect(context.Context, record.CanonicalRecord) ([]Finding, error) {
	return nil, nil
}

var (
	_ Detector = DetectorFunc(nil)
	_ Detector = Nop{}
)
