// Package config provides configuration loading for phisan.
//
// Configuration is read from an optional YAML file, then overridden by
// PHISAN_* environment variables. Keys absent from both keep the values
// from Default.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete phisan configuration.
type Config struct {
	Detectors DetectorsConfig `koanf:"detectors"`

	// FakerSeed seeds the unkeyed synthetic value generator.
	FakerSeed int64 `koanf:"faker_seed"`

	// PseudonymSalt switches structured replacement to keyed mode when
	// non-empty. An empty string, including an explicit pseudonym_salt: "",
	// selects unkeyed mode.
	PseudonymSalt Secret `koanf:"pseudonym_salt"`

	Plan      PlanConfig      `koanf:"plan"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Audit     AuditConfig     `koanf:"audit"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// DetectorsConfig enables and tunes the detector ensemble.
type DetectorsConfig struct {
	HF         HFConfig         `koanf:"hf"`
	Rule       RuleConfig       `koanf:"rule"`
	Structured StructuredConfig `koanf:"structured"`

	// Timeout bounds each detector call.
	Timeout Duration `koanf:"timeout"`
}

// HFConfig configures the NER sidecar detector.
type HFConfig struct {
	Enabled       bool    `koanf:"enabled"`
	MinConfidence float64 `koanf:"min_confidence"`
	BaseURL       string  `koanf:"base_url"`
	RateLimit     float64 `koanf:"rate_limit"`
	Burst         int     `koanf:"burst"`
}

// RuleConfig configures the regex rule detector.
type RuleConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Confidence    float64 `koanf:"confidence"`
	AllowlistFile string  `koanf:"allowlist_file"`
}

// StructuredConfig configures the structured-field detector.
type StructuredConfig struct {
	Enabled bool `koanf:"enabled"`
}

// PlanConfig configures plan construction.
type PlanConfig struct {
	MergeOverlaps bool `koanf:"merge_overlaps"`
}

// PipelineConfig configures batch execution.
type PipelineConfig struct {
	// Workers bounds batch parallelism; 0 means runtime.NumCPU().
	Workers int `koanf:"workers"`
}

// AuditConfig selects audit sinks.
type AuditConfig struct {
	Log  bool       `koanf:"log"`
	File string     `koanf:"file"`
	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures the NATS audit sink. An empty URL disables it.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxBatch        int      `koanf:"max_batch"`
}

// LoggingConfig holds the log settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds the OpenTelemetry settings exposed to users.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used for keys that are not set.
func Default() *Config {
	return &Config{
		Detectors: DetectorsConfig{
			HF: HFConfig{
				Enabled:       false,
				MinConfidence: 0.40,
				BaseURL:       "http://localhost:8001",
				RateLimit:     20,
				Burst:         5,
			},
			Rule: RuleConfig{
				Enabled:    true,
				Confidence: 0.99,
			},
			Structured: StructuredConfig{Enabled: true},
			Timeout:    Duration(30 * time.Second),
		},
		FakerSeed: 99,
		Plan:      PlanConfig{MergeOverlaps: true},
		Audit: AuditConfig{
			Log:  true,
			NATS: NATSConfig{SubjectPrefix: "phisan.audit"},
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
			MaxBatch:        1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "phisan",
			SampleRate:  1.0,
		},
	}
}

// Keyed reports whether keyed pseudonymization is configured.
func (c *Config) Keyed() bool {
	return c.PseudonymSalt.IsSet()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	hf := c.Detectors.HF
	if hf.MinConfidence < 0 || hf.MinConfidence > 1 {
		return fmt.Errorf("detectors.hf.min_confidence must be within [0,1], got %v", hf.MinConfidence)
	}
	if hf.Enabled && hf.BaseURL == "" {
		return errors.New("detectors.hf.base_url is required when the hf detector is enabled")
	}
	if hf.RateLimit < 0 || hf.Burst < 0 {
		return errors.New("detectors.hf rate_limit and burst must not be negative")
	}

	if c.Detectors.Rule.Confidence < 0 || c.Detectors.Rule.Confidence > 1 {
		return fmt.Errorf("detectors.rule.confidence must be within [0,1], got %v", c.Detectors.Rule.Confidence)
	}
	if c.Detectors.Timeout.Duration() <= 0 {
		return errors.New("detectors.timeout must be positive")
	}

	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative, got %d", c.Pipeline.Workers)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxBatch < 1 {
		return fmt.Errorf("server.max_batch must be positive, got %d", c.Server.MaxBatch)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1], got %v", c.Telemetry.SampleRate)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
	}

	return nil
}
