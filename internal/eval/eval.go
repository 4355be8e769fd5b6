// Package eval measures leakage: synthetic records get known identifiers
// injected into their notes, and after sanitization any identifier still
// present verbatim counts as a false negative.
package eval

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"github.com/fyrsmithlabs/phisan/internal/synth"
	"github.com/fyrsmithlabs/phisan/internal/verify"
)

// ErrRecordCountMismatch is returned when labeled and sanitized inputs differ in length.
var ErrRecordCountMismatch = errors.New("record count mismatch")

// Difficulty selects the injection strategy.
type Difficulty string

const (
	// Easy appends one "CONTACT: name | phone | email." snippet.
	Easy Difficulty = "easy"
	// Hard injects mid-text and trailing blocks with a formatted phone and
	// repeated identifiers.
	Hard Difficulty = "hard"
)

// ParseDifficulty validates a difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(s)); d {
	case Easy, Hard:
		return d, nil
	default:
		return "", fmt.Errorf("difficulty must be %q or %q, got %q", Easy, Hard, s)
	}
}

// LabelType is the ground-truth category of an injected value.
type LabelType string

const (
	LabelName  LabelType = "NAME"
	LabelPhone LabelType = "PHONE"
	LabelEmail LabelType = "EMAIL"
)

// Label is one injected identifier.
type Label struct {
	Type      LabelType `json:"label_type"`
	Value     string    `json:"value"`
	FieldPath string    `json:"field_path"`
}

// LabeledRecord pairs a record with the identifiers injected into it.
type LabeledRecord struct {
	Record record.CanonicalRecord
	Labels []Label
}

// Generate builds count labeled records. Base records are seeded with
// seed and injected values with seed+1, so the two streams differ.
func Generate(count int, seed int64, difficulty Difficulty, opts ...synth.Option) ([]LabeledRecord, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", count)
	}
	inject := injectEasy
	switch difficulty {
	case Easy:
	case Hard:
		inject = injectHard
	default:
		return nil, fmt.Errorf("unknown difficulty %q", difficulty)
	}

	base := synth.Records(count, seed, opts...)
	f := synth.New(seed + 1).Faker()

	out := make([]LabeledRecord, len(base))
	for i, rec := range base {
		notes, labels := inject(f, rec.EncounterNotes)
		rec.EncounterNotes = notes
		out[i] = LabeledRecord{Record: rec, Labels: labels}
	}
	return out, nil
}

// Records returns the bare records of labeled.
func Records(labeled []LabeledRecord) []record.CanonicalRecord {
	out := make([]record.CanonicalRecord, len(labeled))
	for i, lr := range labeled {
		out[i] = lr.Record
	}
	return out
}

func label(t LabelType, v string) Label {
	return Label{Type: t, Value: v, FieldPath: record.FieldEncounterNotes}
}

func injectEasy(f *gofakeit.Faker, notes string) (string, []Label) {
	name := f.FirstName() + " " + f.LastName()
	phone := f.PhoneFormatted()
	email := f.Email()

	notes += fmt.Sprintf(" CONTACT: %s | %s | %s.", name, phone, email)
	return notes, []Label{
		label(LabelName, name),
		label(LabelPhone, phone),
		label(LabelEmail, email),
	}
}

func injectHard(f *gofakeit.Faker, notes string) (string, []Label) {
	name := f.FirstName() + " " + f.LastName()
	raw := f.Numerify("##########")
	phone := fmt.Sprintf("(%s) %s-%s", raw[:3], raw[3:6], raw[6:])
	email := f.Email()

	runes := []rune(notes)
	mid := len(runes) / 2
	block1 := fmt.Sprintf(" Refer to Dr. %s for follow-up. Tel: %s or %s. ", name, phone, email)
	block2 := fmt.Sprintf(" CONTACT: %s | %s | %s.", name, phone, email)

	out := string(runes[:mid]) + block1 + string(runes[mid:]) + block2
	return out, []Label{
		label(LabelName, name),
		label(LabelName, name),
		label(LabelPhone, phone),
		label(LabelPhone, raw),
		label(LabelEmail, email),
		label(LabelEmail, email),
	}
}

// Result summarizes leakage across a dataset.
type Result struct {
	TotalLabels        int               `json:"total_labels"`
	FalseNegatives     int               `json:"false_negatives"`
	FalseNegativeRate  float64           `json:"false_negative_rate"`
	ByTypeTotal        map[LabelType]int `json:"by_type_total"`
	ByTypeFN           map[LabelType]int `json:"by_type_fn"`
	ResidualEmailCount int               `json:"residual_email_count"`
	ResidualPhoneCount int               `json:"residual_phone_count"`
}

// TypeRate returns the false-negative rate for t, or 0 when t has no labels.
func (r Result) TypeRate(t LabelType) float64 {
	total := r.ByTypeTotal[t]
	if total == 0 {
		return 0
	}
	return float64(r.ByTypeFN[t]) / float64(total)
}

// Types returns the label types seen, sorted.
func (r Result) Types() []LabelType {
	types := make([]LabelType, 0, len(r.ByTypeTotal))
	for t := range r.ByTypeTotal {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Evaluate compares ground truth with sanitized output positionally. A
// label is a false negative when its value still appears verbatim in the
// sanitized field. Residual counts are records whose notes still match the
// verifier's email or phone pattern.
func Evaluate(labeled []LabeledRecord, sanitized []record.CanonicalRecord) (Result, error) {
	if len(labeled) != len(sanitized) {
		return Result{}, fmt.Errorf("%w: %d labeled, %d sanitized", ErrRecordCountMismatch, len(labeled), len(sanitized))
	}

	res := Result{
		ByTypeTotal: make(map[LabelType]int),
		ByTypeFN:    make(map[LabelType]int),
	}
	for i, lr := range labeled {
		out := sanitized[i]
		for _, l := range lr.Labels {
			res.TotalLabels++
			res.ByTypeTotal[l.Type]++
			if leaked(l, out) {
				res.FalseNegatives++
				res.ByTypeFN[l.Type]++
			}
		}
		if verify.Count(out.EncounterNotes, verify.FamilyEmail) > 0 {
			res.ResidualEmailCount++
		}
		if verify.Count(out.EncounterNotes, verify.FamilyPhone) > 0 {
			res.ResidualPhoneCount++
		}
	}
	if res.TotalLabels > 0 {
		res.FalseNegativeRate = float64(res.FalseNegatives) / float64(res.TotalLabels)
	}
	return res, nil
}

func leaked(l Label, out record.CanonicalRecord) bool {
	if l.FieldPath != record.FieldEncounterNotes {
		return false
	}
	return strings.Contains(out.EncounterNotes, l.Value)
}
