package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger wraps Logger with test observation capabilities.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger for testing with full observation.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries matching message substring.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged verifies a log at level containing message was logged.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged verifies no log at level containing message was logged.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}

// AssertField verifies a field with key and value exists on a message.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		v, ok := entry.ContextMap()[key]
		if ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

var phiValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`),
}

// AssertNoPHI fails if any entry carries a patient-attribute field with a
// readable value, or any message or string value looks like an email or
// phone number. The observer core sits before the redacting encoder, so
// this checks what call sites hand to the logger.
func (t *TestLogger) AssertNoPHI(tb testing.TB, knownValues ...string) {
	tb.Helper()
	sensitive := make(map[string]bool, len(PHIFields))
	for _, f := range PHIFields {
		sensitive[f] = true
	}

	check := func(where, s string) {
		for _, re := range phiValuePatterns {
			if re.MatchString(s) {
				tb.Errorf("PHI-like pattern in %s: %q", where, s)
			}
		}
		for _, v := range knownValues {
			if v != "" && strings.Contains(s, v) {
				tb.Errorf("known PHI value in %s", where)
			}
		}
	}

	for _, entry := range t.observed.All() {
		check("message", entry.Message)
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			if sensitive[strings.ToLower(field.Key)] && !strings.HasPrefix(field.String, "[REDACTED") {
				tb.Errorf("PHI field %q logged unredacted", field.Key)
				continue
			}
			if correlationKeys[field.Key] {
				continue
			}
			check("field "+field.Key, field.String)
		}
	}
}

// AssertTraceCorrelation verifies trace_id present in message.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		if _, ok := entry.ContextMap()[KeyTraceID]; ok {
			return
		}
	}
	tb.Errorf("message %q missing trace_id", msg)
}
