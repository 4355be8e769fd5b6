package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Sink receives audit events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// NopSink discards events.
type NopSink struct{}

// Write discards e.
func (NopSink) Write(context.Context, Event) error { return nil }

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs e.
func (s *LogSink) Write(_ context.Context, e Event) error {
	s.logger.Info("audit event",
		zap.String("record_id", e.RecordID),
		zap.Strings("detector_sources", e.DetectorSources),
		zap.Any("finding_counts", e.FindingCounts),
		zap.Any("action_counts", e.ActionCounts),
		zap.String("notes", e.Notes),
	)
	return nil
}

// FileSink appends events to a JSONL file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileSink opens path for appending, creating it with 0600 permissions.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &FileSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends e as one line.
func (s *FileSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// DefaultSubjectPrefix is used when no NATS subject prefix is configured.
const DefaultSubjectPrefix = "phisan.audit"

var subjectToken = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// NATSSink publishes events to NATS at <prefix>.<record_id>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink returns a sink publishing on nc.
func NewNATSSink(nc *nats.Conn, prefix string) (*NATSSink, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event for recordID is published on.
// Characters outside [A-Za-z0-9_-] are replaced so record IDs cannot
// introduce extra subject tokens or wildcards.
func (s *NATSSink) Subject(recordID string) string {
	token := subjectToken.ReplaceAllString(recordID, "_")
	if token == "" {
		token = "_"
	}
	return s.prefix + "." + token
}

// Write publishes e.
func (s *NATSSink) Write(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := s.nc.Publish(s.Subject(e.RecordID), data); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// MultiSink fans events out to every sink, joining errors.
type MultiSink []Sink

// Write delivers e to each sink.
func (m MultiSink) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = NopSink{}
	_ Sink = (*LogSink)(nil)
	_ Sink = (*FileSink)(nil)
	_ Sink = (*NATSSink)(nil)
	_ Sink = MultiSink(nil)
)
