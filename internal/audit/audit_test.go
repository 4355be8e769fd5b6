package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/plan"
	"github.com/fyrsmithlabs/phisan/internal/record"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleFindings() []detect.Finding {
	return []detect.Finding{
		{FieldPath: record.FieldFirstName, EntityType: detect.EntityName, Confidence: 1, Source: detect.SourceStructured},
		{FieldPath: record.FieldPhone, EntityType: detect.EntityPhone, Confidence: 1, Source: detect.SourceStructured},
		detect.Span(record.FieldEncounterNotes, detect.EntityPhone, detect.SourceRule, 0.99, 10, 22, "555-123-4567"),
		detect.Span(record.FieldEncounterNotes, detect.EntityName, detect.SourceHuggingFace, 0.9, 0, 4, "Jane"),
	}
}

func TestBuild(t *testing.T) {
	findings := sampleFindings()
	p := plan.BuildConservative("rec_000001", findings)
	e := Build("rec_000001", findings, p, 2)

	assert.Equal(t, "rec_000001", e.RecordID)
	assert.Equal(t, []string{"huggingface", "rule", "structured"}, e.DetectorSources)
	assert.Equal(t, map[string]int{"NAME": 2, "PHONE": 2}, e.FindingCounts)
	assert.Equal(t, map[string]int{"REDACT_TEXT_SPAN": 2}, e.ActionCounts)
	assert.Equal(t, "Applied 2 free-text redactions; structured fields replaced with synthetic values.", e.Notes)
	assert.Equal(t, 4, e.TotalFindings())
}

func TestBuildEmpty(t *testing.T) {
	e := Build("r", nil, plan.Plan{}, 0)
	assert.Empty(t, e.DetectorSources)
	assert.Empty(t, e.FindingCounts)
	assert.Empty(t, e.ActionCounts)
	assert.Contains(t, e.Notes, "Applied 0 free-text")
	assert.JSONEq(t,
		`{"record_id":"r","detector_sources":[],"finding_counts":{},"action_counts":{},"notes":"Applied 0 free-text redactions; structured fields replaced with synthetic values."}`,
		e.JSON())
}

func TestEventNeverCarriesText(t *testing.T) {
	findings := sampleFindings()
	replacement := "Alice"
	p := plan.BuildConservative("rec_000001", findings)
	p.Actions = append(p.Actions, plan.Action{Type: plan.ActionReplaceField, FieldPath: record.FieldFirstName, Replacement: &replacement})

	out := Build("rec_000001", findings, p, 2).JSON()
	for _, f := range findings {
		if f.Text != "" {
			assert.NotContains(t, out, f.Text)
		}
	}
	assert.NotContains(t, out, replacement)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Write(context.Background(), Build("rec_000007", sampleFindings(), plan.Plan{}, 0)))
	entries := logs.FilterMessage("audit event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rec_000007", entries[0].ContextMap()["record_id"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, Build("a", nil, plan.Plan{}, 0)))
	require.NoError(t, sink.Write(ctx, Build("b", nil, plan.Plan{}, 1)))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		ids = append(ids, e.RecordID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSSink(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = NewNATSSink(nil, "")
	require.Error(t, err)

	sink, err := NewNATSSink(nc, "")
	require.NoError(t, err)
	assert.Equal(t, "phisan.audit.rec_000001", sink.Subject("rec_000001"))
	assert.Equal(t, "phisan.audit.a_b__", sink.Subject("a.b*>"))

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("phisan.audit.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, sink.Write(context.Background(), Build("rec_000001", sampleFindings(), plan.Plan{}, 0)))
	require.NoError(t, nc.Flush())

	select {
	case msg := <-ch:
		assert.Equal(t, "phisan.audit.rec_000001", msg.Subject)
		var e Event
		require.NoError(t, json.Unmarshal(msg.Data, &e))
		assert.Equal(t, "rec_000001", e.RecordID)
		assert.False(t, strings.Contains(string(msg.Data), "555-123-4567"))
	case <-time.After(2 * time.Second):
		t.Fatal("audit event not received")
	}
}

type failingSink struct{}

func (failingSink) Write(context.Context, Event) error { return errors.New("boom") }

func TestMultiSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := MultiSink{NopSink{}, failingSink{}, NewLogSink(zap.New(core))}

	err := m.Write(context.Background(), Build("r", nil, plan.Plan{}, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, logs.Len(), "later sinks still receive the event")
}
