// Package pipeline runs the sanitization workflow for one record or a batch:
// detect, plan, apply, verify, audit.
//
// A detector failure fails the record. Audit sink failures are logged and
// counted but never fail sanitization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/fyrsmithlabs/phisan/internal/apply"
	"github.com/fyrsmithlabs/phisan/internal/audit"
	"github.com/fyrsmithlabs/phisan/internal/config"
	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/logging"
	"github.com/fyrsmithlabs/phisan/internal/plan"
	"github.com/fyrsmithlabs/phisan/internal/pseudonym"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"github.com/fyrsmithlabs/phisan/internal/verify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/phisan/internal/pipeline"

	// DefaultDetectorTimeout bounds each detector call when none is configured.
	DefaultDetectorTimeout = 30 * time.Second
)

// Result is the outcome of sanitizing one record.
type Result struct {
	Record             record.CanonicalRecord `json:"record"`
	VerificationOK     bool                   `json:"verification_ok"`
	VerificationIssues []string               `json:"verification_issues"`
	AuditEvent         audit.Event            `json:"audit_event"`
}

// Options configures a Pipeline.
type Options struct {
	Registry *Registry
	Plan     plan.Options
	Apply    apply.Options

	// DetectorTimeout bounds each detector call. Zero uses the default.
	DetectorTimeout time.Duration

	// Workers bounds SanitizeBatch parallelism. Zero uses runtime.NumCPU().
	Workers int

	Sink    audit.Sink
	Logger  *logging.Logger
	Tracer  trace.Tracer
	Metrics *Metrics
}

// Pipeline sanitizes records. It holds no per-record state and is safe
// for concurrent use.
type Pipeline struct {
	registry *Registry
	planner  *plan.Builder
	applier  *apply.Applier
	timeout  time.Duration
	workers  int
	sink     audit.Sink
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
}

// New returns a Pipeline. Nil optional fields get no-op or default values.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, errors.New("pipeline: detector registry is required")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("pipeline: workers must not be negative, got %d", opts.Workers)
	}

	p := &Pipeline{
		registry: opts.Registry,
		planner:  plan.NewBuilder(opts.Plan),
		applier:  apply.NewApplier(opts.Apply),
		timeout:  opts.DetectorTimeout,
		workers:  opts.Workers,
		sink:     opts.Sink,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		metrics:  opts.Metrics,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultDetectorTimeout
	}
	if p.workers == 0 {
		p.workers = runtime.NumCPU()
	}
	if p.sink == nil {
		p.sink = audit.NopSink{}
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(instrumentationName)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics()
	}
	return p, nil
}

// FromConfig builds a Pipeline from loaded configuration.
func FromConfig(cfg *config.Config, sink audit.Sink, logger *logging.Logger, tracer trace.Tracer) (*Pipeline, error) {
	reg, err := RegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	applyOpts := apply.Options{FakerSeed: cfg.FakerSeed}
	if cfg.Keyed() {
		keyed, err := pseudonym.NewKeyed(cfg.PseudonymSalt.Value())
		if err != nil {
			return nil, fmt.Errorf("configuring keyed pseudonyms: %w", err)
		}
		applyOpts.Keyed = keyed
	}

	return New(Options{
		Registry:        reg,
		Plan:            plan.Options{MergeOverlaps: cfg.Plan.MergeOverlaps},
		Apply:           applyOpts,
		DetectorTimeout: cfg.Detectors.Timeout.Duration(),
		Workers:         cfg.Pipeline.Workers,
		Sink:            sink,
		Logger:          logger,
		Tracer:          tracer,
	})
}

// Detectors returns the names of the enabled detectors.
func (p *Pipeline) Detectors() []string {
	return p.registry.Names()
}

// Sanitize runs every enabled detector, builds and applies the plan,
// verifies the result and emits the audit event. The input is not modified.
func (p *Pipeline) Sanitize(ctx context.Context, rec record.CanonicalRecord) (*Result, error) {
	start := time.Now()
	ctx = logging.WithRecordID(ctx, rec.RecordID)
	ctx, span := p.tracer.Start(ctx, "pipeline.sanitize")
	defer span.End()

	findings, err := p.detect(ctx, rec)
	if err != nil {
		p.metrics.RecordsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection failed")
		p.logger.Error(ctx, "sanitize failed", zap.Error(err))
		return nil, err
	}

	pl := p.planner.Build(rec.RecordID, findings)
	sanitized, redactions := p.applier.Apply(rec, pl)
	vr := verify.Verify(sanitized)
	event := audit.Build(rec.RecordID, findings, pl, redactions)

	if err := p.sink.Write(ctx, event); err != nil {
		p.metrics.AuditSinkErrors.Inc()
		p.logger.Warn(ctx, "audit sink write failed", zap.Error(err))
	}

	p.metrics.RecordsTotal.WithLabelValues("ok").Inc()
	p.metrics.RedactionsTotal.Add(float64(redactions))
	if !vr.OK {
		p.metrics.VerificationFailed.Inc()
	}
	p.metrics.SanitizeDuration.Observe(time.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("phisan.findings", len(findings)),
		attribute.Int("phisan.actions", len(pl.Actions)),
		attribute.Int("phisan.redactions", redactions),
		attribute.Bool("phisan.verification_ok", vr.OK),
	)

	fields := []zap.Field{
		zap.Int("findings", len(findings)),
		zap.Int("actions", len(pl.Actions)),
		zap.Int("redactions", redactions),
		zap.Bool("verification_ok", vr.OK),
	}
	if vr.OK {
		p.logger.Debug(ctx, "record sanitized", fields...)
	} else {
		p.logger.Warn(ctx, "record sanitized with residual patterns", append(fields, zap.Int("issues", len(vr.Issues)))...)
	}

	return &Result{
		Record:             sanitized,
		VerificationOK:     vr.OK,
		VerificationIssues: vr.Messages(),
		AuditEvent:         event,
	}, nil
}

// detect concatenates findings from every enabled detector in registry
// order. Each call gets its own timeout derived from ctx.
func (p *Pipeline) detect(ctx context.Context, rec record.CanonicalRecord) ([]detect.Finding, error) {
	var all []detect.Finding
	for _, e := range p.registry.Enabled() {
		found, err := p.runDetector(ctx, e, rec)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", e.Name, err)
		}
		all = append(all, found...)
	}
	return all, nil
}

func (p *Pipeline) runDetector(ctx context.Context, e Entry, rec record.CanonicalRecord) ([]detect.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "detect."+e.Name)
	defer span.End()

	start := time.Now()
	found, err := e.Detector.Detect(ctx, rec)
	p.metrics.DetectorDuration.WithLabelValues(e.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.DetectorErrors.WithLabelValues(e.Name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "detector failed")
		return nil, err
	}

	for _, f := range found {
		p.metrics.FindingsTotal.WithLabelValues(string(f.Source), string(f.EntityType)).Inc()
	}
	span.SetAttributes(attribute.Int("phisan.findings", len(found)))
	p.logger.Trace(ctx, "detector finished", zap.String("detector", e.Name), zap.Int("findings", len(found)))
	return found, nil
}

// SanitizeBatch sanitizes recs with bounded parallelism. Results are
// positional. The first failure cancels the remaining work and is returned
// with the failing record's index.
func (p *Pipeline) SanitizeBatch(ctx context.Context, recs []record.CanonicalRecord) ([]*Result, error) {
	results := make([]*Result, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range recs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.Sanitize(gctx, recs[i])
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
