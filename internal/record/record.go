// Package record defines the canonical patient record exchanged by phisan
// and its JSON / JSONL interchange.
package record

// Field paths addressed by findings and plan actions.
const (
	FieldFirstName      = "patient.first_name"
	FieldLastName       = "patient.last_name"
	FieldDOB            = "patient.dob"
	FieldPhone          = "patient.phone"
	FieldAddress        = "patient.address"
	FieldEmail          = "patient.email"
	FieldEncounterNotes = "encounter_notes"
)

// DefaultSchemaVersion is stamped on records that carry no schema version.
const DefaultSchemaVersion = "1.0"

// Patient holds the structured identifying fields of a record.
type Patient struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	DOB       string  `json:"dob"`
	Phone     string  `json:"phone"`
	Address   string  `json:"address"`
	Email     *string `json:"email,omitempty"`
}

// HasEmail reports whether the patient carries a non-empty email.
func (p Patient) HasEmail() bool {
	return p.Email != nil && *p.Email != ""
}

// Metadata describes provenance of a record. It is never transformed.
// CreatedAt is kept as the producer wrote it; it is not parsed.
type Metadata struct {
	Source        string `json:"source"`
	CreatedAt     string `json:"created_at,omitempty"`
	SchemaVersion string `json:"schema_version"`
}

// CanonicalRecord is the unit of sanitization. It is handled as a value:
// sanitizing produces a new record and never mutates the input.
type CanonicalRecord struct {
	RecordID       string   `json:"record_id"`
	Patient        Patient  `json:"patient"`
	EncounterNotes string   `json:"encounter_notes"`
	Metadata       Metadata `json:"metadata"`
}

// Clone returns a deep copy of the record.
func (r CanonicalRecord) Clone() CanonicalRecord {
	out := r
	if r.Patient.Email != nil {
		email := *r.Patient.Email
		out.Patient.Email = &email
	}
	return out
}

// StringPtr is a convenience for building optional fields.
func StringPtr(s string) *string {
	return &s
}
