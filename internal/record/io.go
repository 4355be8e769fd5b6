package record

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoRecords is returned when an input stream holds no records.
var ErrNoRecords = errors.New("no records in input")

// Decode reads records from r. It accepts a single JSON object, a JSON
// array of objects, or newline-delimited objects (JSONL).
func Decode(r io.Reader) ([]CanonicalRecord, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	var records []CanonicalRecord
	dec := json.NewDecoder(br)

	if first == '[' {
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decoding record array: %w", err)
		}
	} else {
		for {
			var rec CanonicalRecord
			err := dec.Decode(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("decoding record %d: %w", len(records)+1, err)
			}
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	for i := range records {
		records[i].Normalize()
	}
	return records, nil
}

// Encoder writes values as JSONL.
type Encoder struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing one JSON document per line to w.
func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Encoder{w: bw, enc: enc}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("encoding line: %w", err)
	}
	return nil
}

// Flush flushes buffered output.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// WriteJSONL writes records to w, one per line.
func WriteJSONL(w io.Writer, records []CanonicalRecord) error {
	enc := NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// Normalize fills the default schema version and treats an empty email
// as absent.
func (r *CanonicalRecord) Normalize() {
	if r.Metadata.SchemaVersion == "" {
		r.Metadata.SchemaVersion = DefaultSchemaVersion
	}
	if r.Patient.Email != nil && *r.Patient.Email == "" {
		r.Patient.Email = nil
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
