// Package logging provides structured logging for phisan.
//
// # Overview
//
// Logging wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic context fields (trace_id, run.id, record.id, request.id)
//   - Encoder-level redaction of PHI and secret field names
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRecordID(ctx, rec.RecordID)
//	logger.Info(ctx, "record sanitized", zap.Int("redactions", n))
//
// # PHI Redaction
//
// Sanitization logs counts, never values. As a second line of defense the
// stdout encoder replaces any field named like a patient attribute
// (first_name, phone, encounter_notes, ...) or a secret (pseudonym_salt,
// token, ...) with "[REDACTED]", and values matching email or phone
// patterns with "[REDACTED:pattern]".
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "record sanitized", zap.Int("redactions", 2))
//	tl.AssertLogged(t, zapcore.InfoLevel, "record sanitized")
//	tl.AssertNoPHI(t)
package logging
