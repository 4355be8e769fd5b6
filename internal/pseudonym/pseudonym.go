// Package pseudonym produces synthetic replacement values for structured
// patient fields.
//
// Two modes exist. Unkeyed generation draws from a request-scoped generator
// seeded from configuration and makes no stability promise. Keyed
// generation derives a seed from SHA-256(salt ":" field_path ":" value), so
// the same input maps to the same pseudonym across records and runs while
// the salt is unchanged, and rotating the salt re-maps everything.
//
// The salt is not an encryption key and keyed output is not encryption.
// Anyone holding the salt and a candidate value can recompute its
// pseudonym; keep the salt secret and rotate it per release boundary.
package pseudonym

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"
)

// Kind is the category of synthetic value to produce.
type Kind string

const (
	KindFirstName Kind = "first_name"
	KindLastName  Kind = "last_name"
	KindPhone     Kind = "phone"
	KindAddress   Kind = "address"
	KindEmail     Kind = "email"
)

// seedModulus is 2^31-1. Keyed seeds fall in [0, seedModulus).
const seedModulus = 1<<31 - 1

// Seed derives the keyed generator seed for a field value.
func Seed(salt, fieldPath, value string) uint64 {
	sum := sha256.Sum256([]byte(salt + ":" + fieldPath + ":" + value))
	prefix := hex.EncodeToString(sum[:])[:16]
	n, _ := strconv.ParseUint(prefix, 16, 64)
	return n % seedModulus
}

// Keyed produces deterministic pseudonyms under a salt.
type Keyed struct {
	salt string
}

// NewKeyed returns a keyed pseudonymizer. An empty salt is rejected since
// it would make every mapping public.
func NewKeyed(salt string) (*Keyed, error) {
	if salt == "" {
		return nil, fmt.Errorf("pseudonym: salt is required for keyed mode")
	}
	return &Keyed{salt: salt}, nil
}

// Pseudonym returns the synthetic value of kind for (fieldPath, value).
func (k *Keyed) Pseudonym(kind Kind, fieldPath, value string) string {
	return Generate(NewFaker(Seed(k.salt, fieldPath, value)), kind)
}

// Generator is an unkeyed, request-scoped source of synthetic values. It
// is not safe for concurrent use; create one per sanitize call.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: NewFaker(uint64(seed))}
}

// Value returns the next synthetic value of kind.
func (g *Generator) Value(kind Kind) string {
	return Generate(g.faker, kind)
}

// Generate draws one value of kind from f.
func Generate(f *gofakeit.Faker, kind Kind) string {
	switch kind {
	case KindFirstName:
		return f.FirstName()
	case KindLastName:
		return f.LastName()
	case KindPhone:
		return f.PhoneFormatted()
	case KindAddress:
		return fmt.Sprintf("%s, %s, %s %s", f.Street(), f.City(), f.StateAbr(), f.Zip())
	case KindEmail:
		return f.Email()
	default:
		return f.Word()
	}
}

// NewFaker builds a deterministic faker. gofakeit treats seed 0 as a
// request for a random seed, so 0 is remapped to seedModulus, a value
// Seed never returns.
func NewFaker(seed uint64) *gofakeit.Faker {
	if seed == 0 {
		seed = seedModulus
	}
	return gofakeit.New(seed)
}
