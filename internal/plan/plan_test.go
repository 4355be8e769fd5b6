package plan

import (
	"testing"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notes(entity detect.EntityType, source detect.Source, start, end int) detect.Finding {
	return detect.Span(record.FieldEncounterNotes, entity, source, 0.9, start, end, "")
}

func starts(p Plan) []int {
	out := make([]int, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, *a.Start)
	}
	return out
}

func TestBuildConservative_FiltersAndOrders(t *testing.T) {
	findings := []detect.Finding{
		notes(detect.EntityName, detect.SourceHuggingFace, 8, 12),
		{FieldPath: record.FieldFirstName, EntityType: detect.EntityName, Confidence: 1, Source: detect.SourceStructured},
		notes(detect.EntityPhone, detect.SourceRule, 40, 52),
		{FieldPath: record.FieldEncounterNotes, EntityType: detect.EntityName, Confidence: 0.5, Source: detect.SourceHuggingFace},
		notes(detect.EntityEmail, detect.SourceRule, 20, 35),
	}

	p := BuildConservative("rec_1", findings)

	assert.Equal(t, "rec_1", p.RecordID)
	assert.Equal(t, []int{40, 20, 8}, starts(p))
	for _, a := range p.Actions {
		assert.Equal(t, ActionRedactTextSpan, a.Type)
		assert.Equal(t, record.FieldEncounterNotes, a.FieldPath)
		assert.Nil(t, a.Replacement)
	}
	assert.Equal(t, "redact detected entity_type=PHONE source=rule", p.Actions[0].Reason)
	assert.Equal(t, map[ActionType]int{ActionRedactTextSpan: 3}, p.CountByType())
}

func TestBuildConservative_Empty(t *testing.T) {
	p := BuildConservative("r", nil)
	assert.Empty(t, p.Actions)

	p = BuildConservative("r", []detect.Finding{
		{FieldPath: record.FieldPhone, EntityType: detect.EntityPhone, Confidence: 1, Source: detect.SourceStructured},
	})
	assert.Empty(t, p.Actions)
}

func TestBuild_StableForEqualStarts(t *testing.T) {
	findings := []detect.Finding{
		notes(detect.EntityName, detect.SourceHuggingFace, 5, 9),
		notes(detect.EntityName, detect.SourceRule, 5, 7),
	}
	p := NewBuilder(Options{MergeOverlaps: false}).Build("r", findings)
	require.Len(t, p.Actions, 2)
	assert.Equal(t, 9, *p.Actions[0].End)
	assert.Equal(t, 7, *p.Actions[1].End)
}

func TestBuild_DoesNotAliasFindingOffsets(t *testing.T) {
	f := notes(detect.EntityName, detect.SourceRule, 1, 3)
	p := BuildConservative("r", []detect.Finding{f})
	*f.Start = 100
	assert.Equal(t, 1, *p.Actions[0].Start)
}

func TestBuild_MergeOverlaps(t *testing.T) {
	tests := []struct {
		name      string
		findings  []detect.Finding
		wantSpans [][2]int
		wantFirst string
	}{
		{
			name: "overlapping spans merge",
			findings: []detect.Finding{
				notes(detect.EntityName, detect.SourceHuggingFace, 0, 10),
				notes(detect.EntityEmail, detect.SourceRule, 5, 20),
			},
			wantSpans: [][2]int{{0, 20}},
			wantFirst: "redact detected entity_type=NAME source=huggingface; redact detected entity_type=EMAIL source=rule",
		},
		{
			name: "identical spans collapse with one reason",
			findings: []detect.Finding{
				notes(detect.EntityEmail, detect.SourceRule, 3, 8),
				notes(detect.EntityEmail, detect.SourceRule, 3, 8),
			},
			wantSpans: [][2]int{{3, 8}},
			wantFirst: "redact detected entity_type=EMAIL source=rule",
		},
		{
			name: "contained span absorbed",
			findings: []detect.Finding{
				notes(detect.EntityLocation, detect.SourceHuggingFace, 2, 4),
				notes(detect.EntityAddress, detect.SourceRule, 0, 30),
			},
			wantSpans: [][2]int{{0, 30}},
		},
		{
			name: "adjacent spans stay separate",
			findings: []detect.Finding{
				notes(detect.EntityName, detect.SourceHuggingFace, 0, 5),
				notes(detect.EntityName, detect.SourceHuggingFace, 5, 9),
			},
			wantSpans: [][2]int{{5, 9}, {0, 5}},
		},
		{
			name: "chain merges transitively",
			findings: []detect.Finding{
				notes(detect.EntityName, detect.SourceHuggingFace, 0, 4),
				notes(detect.EntityName, detect.SourceRule, 3, 8),
				notes(detect.EntityName, detect.SourceRule, 7, 12),
				notes(detect.EntityPhone, detect.SourceRule, 20, 30),
			},
			wantSpans: [][2]int{{20, 30}, {0, 12}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildConservative("r", tt.findings)
			got := make([][2]int, 0, len(p.Actions))
			for _, a := range p.Actions {
				got = append(got, [2]int{*a.Start, *a.End})
			}
			assert.Equal(t, tt.wantSpans, got)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, p.Actions[0].Reason)
			}
		})
	}
}

func TestBuild_NoMergeKeepsAll(t *testing.T) {
	findings := []detect.Finding{
		notes(detect.EntityName, detect.SourceHuggingFace, 0, 10),
		notes(detect.EntityEmail, detect.SourceRule, 5, 20),
	}
	p := NewBuilder(Options{}).Build("r", findings)
	assert.Equal(t, []int{5, 0}, starts(p))
}
