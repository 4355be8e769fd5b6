// Package synth generates fake patient records for smoke tests and
// evaluation. Output is deterministic for a given seed and clock.
package synth

import (
	"fmt"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fyrsmithlabs/phisan/internal/pseudonym"
	"github.com/fyrsmithlabs/phisan/internal/record"
)

// Source is the metadata source stamped on generated records.
const Source = "synthetic"

// DefaultSeed matches the CLI default for generate.
const DefaultSeed = 1337

var complaints = []string{
	"headache for 3 days",
	"trouble sleeping",
	"feeling anxious",
	"nausea and dizziness",
	"back pain after lifting",
}

// Generator produces synthetic records. It is not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
	next  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock fixes the created_at timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a generator seeded with seed.
func New(seed int64, opts ...Option) *Generator {
	g := &Generator{
		faker: pseudonym.NewFaker(uint64(seed)),
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Faker exposes the underlying source so callers can draw further values
// from the same deterministic stream.
func (g *Generator) Faker() *gofakeit.Faker {
	return g.faker
}

// Next returns the next record. IDs run rec_000000, rec_000001, ...
func (g *Generator) Next() record.CanonicalRecord {
	id := fmt.Sprintf("rec_%06d", g.next)
	g.next++

	f := g.faker
	first := f.FirstName()
	last := f.LastName()
	phone := f.PhoneFormatted()
	address := pseudonym.Generate(f, pseudonym.KindAddress)
	email := f.Email()

	now := g.now()
	dob := f.DateRange(now.AddDate(-90, 0, 0), now.AddDate(-18, 0, 0)).Format(time.DateOnly)
	complaint := f.RandomString(complaints)

	return record.CanonicalRecord{
		RecordID: id,
		Patient: record.Patient{
			FirstName: first,
			LastName:  last,
			DOB:       dob,
			Phone:     phone,
			Address:   address,
			Email:     &email,
		},
		EncounterNotes: fmt.Sprintf("Patient %s %s reports %s. Call %s. Address on file: %s.",
			first, last, complaint, phone, address),
		Metadata: record.Metadata{
			Source:        Source,
			CreatedAt:     now.Format(time.RFC3339),
			SchemaVersion: record.DefaultSchemaVersion,
		},
	}
}

// Records returns count records from a fresh generator.
func Records(count int, seed int64, opts ...Option) []record.CanonicalRecord {
	g := New(seed, opts...)
	out := make([]record.CanonicalRecord, count)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// WriteJSONL generates count records and writes them to w as JSONL.
func WriteJSONL(w io.Writer, count int, seed int64, opts ...Option) error {
	if count < 0 {
		return fmt.Errorf("count must not be negative, got %d", count)
	}
	return record.WriteJSONL(w, Records(count, seed, opts...))
}
