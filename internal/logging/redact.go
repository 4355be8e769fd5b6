package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/phisan/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Secret creates a field for config.Secret showing only its length.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a field with the value replaced by its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// correlationKeys are never pattern-scanned; their values are IDs.
var correlationKeys = map[string]bool{
	KeyTraceID: true, KeySpanID: true, KeyRunID: true, KeyRecordID: true, KeyRequestID: true,
	"record_id": true,
}

const (
	redactedKey     = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
)

// RedactingEncoder masks PHI before it reaches the wrapped encoder. A
// field whose name is listed is replaced whole; a string value matching a
// pattern is replaced unless its key is a correlation ID.
type RedactingEncoder struct {
	zapcore.Encoder
	phiKeys  map[string]bool
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base. A disabled config passes everything through.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	enc := &RedactingEncoder{Encoder: base}
	if !cfg.Enabled {
		return enc, nil
	}

	enc.phiKeys = make(map[string]bool, len(cfg.Fields))
	for _, name := range cfg.Fields {
		enc.phiKeys[strings.ToLower(name)] = true
	}
	for _, expr := range cfg.Patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", expr, err)
		}
		enc.patterns = append(enc.patterns, re)
	}
	return enc, nil
}

// maskKey writes the placeholder for a listed key and reports whether it did.
func (e *RedactingEncoder) maskKey(key string) bool {
	if !e.phiKeys[strings.ToLower(key)] {
		return false
	}
	e.Encoder.AddString(key, redactedKey)
	return true
}

func (e *RedactingEncoder) matchesPattern(key, val string) bool {
	if correlationKeys[key] {
		return false
	}
	for _, re := range e.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.maskKey(key):
	case e.matchesPattern(key, val):
		e.Encoder.AddString(key, redactedPattern)
	default:
		e.Encoder.AddString(key, val)
	}
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	switch {
	case e.maskKey(key):
	case e.matchesPattern(key, string(val)):
		e.Encoder.AddString(key, redactedPattern)
	default:
		e.Encoder.AddByteString(key, val)
	}
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.maskKey(key) {
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.maskKey(key) {
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.maskKey(key) {
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone shares the immutable rule sets with the copy.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		phiKeys:  e.phiKeys,
		patterns: e.patterns,
	}
}

// EncodeEntry redacts fields passed at the call site. zapcore.Encoder
// implementations encode per-entry fields through themselves, so those
// must be routed through this wrapper.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clone := e.Clone().(*RedactingEncoder)
	for _, f := range fields {
		f.AddTo(clone)
	}
	return clone.Encoder.EncodeEntry(ent, nil)
}
