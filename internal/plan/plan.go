// Package plan turns findings into an ordered transformation plan.
//
// The conservative policy redacts only free-text spans in encounter notes.
// Structured-field findings and span-less text findings produce no action;
// structured fields are handled by the applier's own policy.
package plan

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/record"
)

// ActionType identifies a plan action kind.
type ActionType string

const (
	ActionRedactTextSpan ActionType = "REDACT_TEXT_SPAN"
	ActionReplaceField   ActionType = "REPLACE_FIELD"
)

// Action is a single transformation step.
type Action struct {
	Type      ActionType `json:"type"`
	FieldPath string     `json:"field_path"`
	Reason    string     `json:"reason"`
	Start     *int       `json:"start,omitempty"`
	End       *int       `json:"end,omitempty"`

	// Replacement is reserved for REPLACE_FIELD and never set by Build.
	Replacement *string `json:"-"`
}

// HasSpan reports whether both offsets are present.
func (a Action) HasSpan() bool {
	return a.Start != nil && a.End != nil
}

// Plan is the ordered set of actions for one record. Span actions on a
// field appear in descending start order.
type Plan struct {
	RecordID string   `json:"record_id"`
	Actions  []Action `json:"actions"`
}

// CountByType tallies actions by type.
func (p Plan) CountByType() map[ActionType]int {
	counts := make(map[ActionType]int)
	for _, a := range p.Actions {
		counts[a.Type]++
	}
	return counts
}

// Options tunes plan construction.
type Options struct {
	// MergeOverlaps collapses strictly overlapping spans, including exact
	// duplicates, into one covering action. Adjacent spans stay separate.
	MergeOverlaps bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{MergeOverlaps: true}
}

// Builder builds conservative plans.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Build returns the conservative plan for findings.
func (b *Builder) Build(recordID string, findings []detect.Finding) Plan {
	actions := make([]Action, 0, len(findings))
	for _, f := range findings {
		if f.FieldPath != record.FieldEncounterNotes || !f.HasSpan() {
			continue
		}
		start, end := *f.Start, *f.End
		actions = append(actions, Action{
			Type:      ActionRedactTextSpan,
			FieldPath: f.FieldPath,
			Reason:    reason(f),
			Start:     &start,
			End:       &end,
		})
	}

	if b.opts.MergeOverlaps && len(actions) > 1 {
		actions = mergeOverlaps(actions)
	}

	sortDescending(actions)
	return Plan{RecordID: recordID, Actions: actions}
}

// BuildConservative builds a plan with default options.
func BuildConservative(recordID string, findings []detect.Finding) Plan {
	return NewBuilder(DefaultOptions()).Build(recordID, findings)
}

func reason(f detect.Finding) string {
	return fmt.Sprintf("redact detected entity_type=%s source=%s", f.EntityType, f.Source)
}

// sortDescending orders actions by start descending, keeping input order
// for equal starts.
func sortDescending(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return *actions[i].Start > *actions[j].Start
	})
}

// mergeOverlaps merges spans that share at least one character. Spans
// where one ends exactly where the next starts are left separate, so
// sequential application still matches independent replacement.
func mergeOverlaps(actions []Action) []Action {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if *sorted[i].Start != *sorted[j].Start {
			return *sorted[i].Start < *sorted[j].Start
		}
		return *sorted[i].End > *sorted[j].End
	})

	merged := []Action{cloneAction(sorted[0])}
	reasons := [][]string{{sorted[0].Reason}}

	for _, curr := range sorted[1:] {
		last := &merged[len(merged)-1]
		if overlaps(*last, curr) {
			if *curr.End > *last.End {
				end := *curr.End
				last.End = &end
			}
			rs := &reasons[len(reasons)-1]
			if !slices.Contains(*rs, curr.Reason) {
				*rs = append(*rs, curr.Reason)
			}
			continue
		}
		merged = append(merged, cloneAction(curr))
		reasons = append(reasons, []string{curr.Reason})
	}

	for i := range merged {
		merged[i].Reason = strings.Join(reasons[i], "; ")
	}
	return merged
}

// overlaps reports whether b shares a character with a, given a.Start <= b.Start.
// Identical empty spans count as duplicates.
func overlaps(a, b Action) bool {
	if *a.Start == *b.Start && *a.End == *b.End {
		return true
	}
	return *b.Start < *a.End
}

func cloneAction(a Action) Action {
	start, end := *a.Start, *a.End
	a.Start, a.End = &start, &end
	return a
}
