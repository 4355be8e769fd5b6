// Package audit builds privacy-safe audit events and delivers them to sinks.
//
// An Event holds only counts, provenance and the record ID. It is built
// without ever reading Finding.Text or Action.Replacement, so no raw or
// synthetic identifier can reach an audit artifact.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/plan"
)

// Event summarizes what happened to one record.
type Event struct {
	RecordID        string         `json:"record_id"`
	DetectorSources []string       `json:"detector_sources"`
	FindingCounts   map[string]int `json:"finding_counts"`
	ActionCounts    map[string]int `json:"action_counts"`
	Notes           string         `json:"notes"`
}

// Build assembles the audit event for a sanitized record.
func Build(recordID string, findings []detect.Finding, p plan.Plan, redactionCount int) Event {
	sources := make(map[string]struct{})
	findingCounts := make(map[string]int)
	for _, f := range findings {
		sources[string(f.Source)] = struct{}{}
		findingCounts[string(f.EntityType)]++
	}

	sorted := make([]string, 0, len(sources))
	for s := range sources {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	actionCounts := make(map[string]int)
	for _, a := range p.Actions {
		actionCounts[string(a.Type)]++
	}

	return Event{
		RecordID:        recordID,
		DetectorSources: sorted,
		FindingCounts:   findingCounts,
		ActionCounts:    actionCounts,
		Notes: fmt.Sprintf(
			"Applied %d free-text redactions; structured fields replaced with synthetic values.",
			redactionCount,
		),
	}
}

// JSON returns the event as compact JSON.
func (e Event) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// TotalFindings sums the per-entity counts.
func (e Event) TotalFindings() int {
	total := 0
	for _, n := range e.FindingCounts {
		total += n
	}
	return total
}
