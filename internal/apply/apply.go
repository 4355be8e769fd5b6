// Package apply executes a transformation plan against a record.
//
// Two independent policies run on every call:
//   - the text track applies REDACT_TEXT_SPAN actions to encounter notes in
//     plan order, replacing [start,end) rune ranges with RedactionToken;
//   - the structured track replaces every field in StructuredFields with a
//     synthetic value regardless of findings. DOB passes through unchanged.
package apply

import (
	"github.com/fyrsmithlabs/phisan/internal/plan"
	"github.com/fyrsmithlabs/phisan/internal/pseudonym"
	"github.com/fyrsmithlabs/phisan/internal/record"
)

// RedactionToken replaces each redacted span.
const RedactionToken = "[REDACTED]"

// StructuredField binds a patient field to its synthetic value kind.
type StructuredField struct {
	Path string
	Kind pseudonym.Kind

	get func(*record.Patient) *string
}

// StructuredFields is the always-transform policy for structured data.
// Email is replaced only when the source record carries one.
var StructuredFields = []StructuredField{
	{record.FieldFirstName, pseudonym.KindFirstName, func(p *record.Patient) *string { return &p.FirstName }},
	{record.FieldLastName, pseudonym.KindLastName, func(p *record.Patient) *string { return &p.LastName }},
	{record.FieldPhone, pseudonym.KindPhone, func(p *record.Patient) *string { return &p.Phone }},
	{record.FieldAddress, pseudonym.KindAddress, func(p *record.Patient) *string { return &p.Address }},
	{record.FieldEmail, pseudonym.KindEmail, func(p *record.Patient) *string { return p.Email }},
}

// Options selects the pseudonymization mode.
type Options struct {
	// FakerSeed seeds the unkeyed generator.
	FakerSeed int64

	// Keyed, when non-nil, switches structured replacement to keyed mode.
	Keyed *pseudonym.Keyed
}

// Applier applies plans.
type Applier struct {
	opts Options
}

// NewApplier returns an Applier.
func NewApplier(opts Options) *Applier {
	return &Applier{opts: opts}
}

// Apply returns a new record with the plan applied and the number of
// text actions applied. The input record is not modified.
func (a *Applier) Apply(rec record.CanonicalRecord, p plan.Plan) (record.CanonicalRecord, int) {
	out := rec.Clone()

	notes, applied := RedactText(rec.EncounterNotes, textActions(p))
	out.EncounterNotes = notes

	a.replaceStructured(&out.Patient, rec.Patient)
	return out, applied
}

// textActions filters the plan down to actions targeting encounter notes.
func textActions(p plan.Plan) []plan.Action {
	actions := make([]plan.Action, 0, len(p.Actions))
	for _, act := range p.Actions {
		if act.FieldPath == record.FieldEncounterNotes {
			actions = append(actions, act)
		}
	}
	return actions
}

// RedactText applies span actions in the order given. Each action is
// applied to the result of the previous one. Actions without both offsets,
// or with end before start, are inert but still counted. Offsets beyond
// the current text are clamped.
func RedactText(text string, actions []plan.Action) (string, int) {
	runes := []rune(text)
	token := []rune(RedactionToken)
	applied := 0

	for _, act := range actions {
		applied++
		if act.Type != plan.ActionRedactTextSpan || !act.HasSpan() {
			continue
		}
		start := clamp(*act.Start, 0, len(runes))
		end := clamp(*act.End, 0, len(runes))
		if end < start {
			continue
		}

		next := make([]rune, 0, len(runes)-(end-start)+len(token))
		next = append(next, runes[:start]...)
		next = append(next, token...)
		next = append(next, runes[end:]...)
		runes = next
	}
	return string(runes), applied
}

func (a *Applier) replaceStructured(dst *record.Patient, src record.Patient) {
	var gen *pseudonym.Generator
	if a.opts.Keyed == nil {
		gen = pseudonym.NewGenerator(a.opts.FakerSeed)
	}

	for _, f := range StructuredFields {
		orig := f.get(&src)
		if f.Kind == pseudonym.KindEmail && (orig == nil || *orig == "") {
			dst.Email = nil
			continue
		}

		var value string
		if a.opts.Keyed != nil {
			value = a.opts.Keyed.Pseudonym(f.Kind, f.Path, *orig)
		} else {
			value = gen.Value(f.Kind)
		}

		if f.Kind == pseudonym.KindEmail {
			dst.Email = record.StringPtr(value)
			continue
		}
		*f.get(dst) = value
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
