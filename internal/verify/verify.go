// Package verify scans sanitized output for residual identifier patterns.
//
// Verification is a backstop signal, not proof of de-identification. Only
// encounter notes are scanned, and only for email- and phone-shaped text.
package verify

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/record"
)

// Family names a residual pattern class.
type Family string

const (
	FamilyEmail Family = "email"
	FamilyPhone Family = "phone"
)

type residualPattern struct {
	family Family
	re     *regexp.Regexp
}

var patterns = []residualPattern{
	{FamilyEmail, regexp.MustCompile(detect.EmailPattern)},
	{FamilyPhone, regexp.MustCompile(detect.PhonePattern)},
}

// Issue describes one residual match. It never carries the matched text.
type Issue struct {
	Family    Family `json:"family"`
	FieldPath string `json:"field_path"`
	Offset    int    `json:"offset"`
}

// String renders the issue for reports and logs.
func (i Issue) String() string {
	return fmt.Sprintf("%s still contains a %s-like pattern at offset %d", i.FieldPath, i.Family, i.Offset)
}

// Result is the verifier's verdict.
type Result struct {
	OK     bool
	Issues []Issue
}

// Messages returns the issues as strings.
func (r Result) Messages() []string {
	msgs := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		msgs[i] = issue.String()
	}
	return msgs
}

// Verify scans the record's encounter notes. It never fails.
func Verify(rec record.CanonicalRecord) Result {
	issues := ScanText(rec.EncounterNotes)
	return Result{OK: len(issues) == 0, Issues: issues}
}

// ScanText reports every email- and phone-like match in text, one issue
// per match, with rune offsets.
func ScanText(text string) []Issue {
	var issues []Issue
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringIndex(text, -1) {
			issues = append(issues, Issue{
				Family:    p.family,
				FieldPath: record.FieldEncounterNotes,
				Offset:    utf8.RuneCountInString(text[:m[0]]),
			})
		}
	}
	return issues
}

// Count reports how many matches of family occur in text.
func Count(text string, family Family) int {
	for _, p := range patterns {
		if p.family == family {
			return len(p.re.FindAllStringIndex(text, -1))
		}
	}
	return 0
}
