package record

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id string) CanonicalRecord {
	return CanonicalRecord{
		RecordID: id,
		Patient: Patient{
			FirstName: "Ada",
			LastName:  "Lovelace",
			DOB:       "1815-12-10",
			Phone:     "555-010-1234",
			Address:   "12 St James's Square, London",
			Email:     StringPtr("ada@example.com"),
		},
		EncounterNotes: "Patient Ada reports headache.",
		Metadata: Metadata{
			Source:        "synthetic",
			CreatedAt:     "2024-01-02T03:04:05Z",
			SchemaVersion: "1.0",
		},
	}
}

func TestClone(t *testing.T) {
	orig := sample("rec_000001")
	cp := orig.Clone()

	*cp.Patient.Email = "other@example.com"
	cp.Patient.FirstName = "Grace"

	assert.Equal(t, "ada@example.com", *orig.Patient.Email)
	assert.Equal(t, "Ada", orig.Patient.FirstName)
}

func TestHasEmail(t *testing.T) {
	tests := []struct {
		name  string
		email *string
		want  bool
	}{
		{"nil", nil, false},
		{"empty", StringPtr(""), false},
		{"set", StringPtr("a@b.co"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Patient{Email: tt.email}.HasEmail())
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("jsonl round trip", func(t *testing.T) {
		var buf bytes.Buffer
		in := []CanonicalRecord{sample("rec_000001"), sample("rec_000002")}
		require.NoError(t, WriteJSONL(&buf, in))
		assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

		out, err := Decode(&buf)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "rec_000002", out[1].RecordID)
		assert.Equal(t, "ada@example.com", *out[0].Patient.Email)
	})

	t.Run("single object", func(t *testing.T) {
		out, err := Decode(strings.NewReader(`{"record_id":"r1","patient":{"first_name":"A"},"encounter_notes":"x"}`))
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, DefaultSchemaVersion, out[0].Metadata.SchemaVersion)
		assert.Nil(t, out[0].Patient.Email)
	})

	t.Run("array", func(t *testing.T) {
		out, err := Decode(strings.NewReader(`  [{"record_id":"a"},{"record_id":"b","patient":{"email":""}}]`))
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Nil(t, out[1].Patient.Email, "empty email normalizes to absent")
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Decode(strings.NewReader("\n  \n"))
		assert.ErrorIs(t, err, ErrNoRecords)
	})

	t.Run("malformed line", func(t *testing.T) {
		_, err := Decode(strings.NewReader("{\"record_id\":\"a\"}\n{nope\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record 2")
	})
}

func TestDecode_MetadataPassthrough(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
	}{
		{"zone-less timestamp", `{"source":"emr","created_at":"2024-01-01T10:00:00","schema_version":"1.0"}`},
		{"date only", `{"source":"emr","created_at":"2024-01-01","schema_version":"1.0"}`},
		{"numeric utc offset", `{"source":"emr","created_at":"2024-01-01T00:00:00+00:00","schema_version":"1.0"}`},
		{"fractional seconds", `{"source":"emr","created_at":"2024-01-01T10:00:00.123456","schema_version":"1.0"}`},
		{"absent", `{"source":"emr","schema_version":"1.0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := `{"record_id":"r1","patient":{"first_name":"A","last_name":"B","dob":"","phone":"","address":""},"encounter_notes":"x","metadata":` + tt.metadata + "}\n"

			recs, err := Decode(strings.NewReader(in))
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, WriteJSONL(&buf, recs))
			assert.Equal(t, in, buf.String())
		})
	}
}
