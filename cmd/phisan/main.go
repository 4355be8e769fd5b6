// Phisan sanitizes patient records: it detects PHI, redacts free text,
// replaces structured identifiers with synthetic values, verifies the output
// and emits privacy-safe audit events.
//
// Usage:
//
//	# Sanitize a JSONL file
//	phisan sanitize records.jsonl > clean.jsonl
//
//	# Run the HTTP API
//	phisan serve --config phisan.yaml
//
//	# Measure leakage on generated data
//	phisan eval --difficulty hard
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/phisan/internal/audit"
	"github.com/fyrsmithlabs/phisan/internal/config"
	"github.com/fyrsmithlabs/phisan/internal/logging"
	"github.com/fyrsmithlabs/phisan/internal/pipeline"
	"github.com/fyrsmithlabs/phisan/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is the optional YAML config file
	configPath string
	// envFile is loaded into the environment before config
	envFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "phisan",
	Short: "PHI redaction and pseudonymization engine",
	Long: `phisan detects protected health information in patient records, redacts
free-text notes, replaces structured identifiers with synthetic values and
verifies the result.

Configuration comes from an optional YAML file (--config) overridden by
PHISAN_* environment variables. A .env file is loaded first when present.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "phisan by Fyrsmith Labs\n")
		fmt.Fprintf(w, "Version:    %s\n", version)
		fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(w, "Build Date: %s\n", buildDate)
	},
}

// app holds everything a command needs to sanitize records.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	pipeline  *pipeline.Pipeline
	natsConn  *nats.Conn
	closers   []func() error
}

// loadConfig reads .env and the config file.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and wires logging, telemetry, audit sinks and
// the pipeline. The returned context carries the logger and a fresh run ID.
func setup(ctx context.Context) (context.Context, *app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, nil, err
	}
	a := &app{cfg: cfg}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return ctx, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a.telemetry = tel

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		_ = a.Close(ctx)
		return ctx, nil, err
	}
	logCfg.Output.Writer = zapcore.Lock(os.Stderr)
	logCfg.Output.OTEL = tel.IsEnabled()
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = a.Close(ctx)
		return ctx, nil, fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = logger

	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithRunID(ctx, uuid.NewString())

	for _, reason := range tel.Health().Reasons {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	sink, err := a.buildSink(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return ctx, nil, err
	}

	p, err := pipeline.FromConfig(cfg, sink, logger, tel.Tracer("phisan"))
	if err != nil {
		_ = a.Close(ctx)
		return ctx, nil, fmt.Errorf("building pipeline: %w", err)
	}
	a.pipeline = p

	logger.Debug(ctx, "pipeline ready",
		zap.Strings("detectors", p.Detectors()),
		zap.Bool("keyed", cfg.Keyed()))
	return ctx, a, nil
}

// buildSink assembles the configured audit sinks.
func (a *app) buildSink(ctx context.Context) (audit.Sink, error) {
	ac := a.cfg.Audit
	var sinks audit.MultiSink

	if ac.Log {
		sinks = append(sinks, audit.NewLogSink(a.logger.Underlying()))
	}

	if ac.File != "" {
		fs, err := audit.NewFileSink(ac.File)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fs.Close)
		sinks = append(sinks, fs)
	}

	if ac.NATS.URL != "" {
		nc, err := nats.Connect(ac.NATS.URL,
			nats.Name("phisan"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		a.natsConn = nc
		ns, err := audit.NewNATSSink(nc, ac.NATS.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ns)
		a.logger.Info(ctx, "audit events published to NATS", zap.String("subject_prefix", ac.NATS.SubjectPrefix))
	}

	switch len(sinks) {
	case 0:
		return audit.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// Close flushes and releases everything setup acquired.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("draining NATS: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logger != nil {
		if err := a.logger.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp wraps a command body with setup and teardown.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		runErr := fn(ctx, cmd, a, args)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, err)
		}
		return runErr
	}
}
