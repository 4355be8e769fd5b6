package pipeline

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/phisan/internal/config"
	"github.com/fyrsmithlabs/phisan/internal/detect"
	"github.com/fyrsmithlabs/phisan/internal/detect/ner"
)

// Detector names used in config, span names and metric labels.
const (
	DetectorStructured = "structured"
	DetectorRule       = "rule"
	DetectorHF         = "hf"
)

// Entry binds a detector to its name and enabled flag.
type Entry struct {
	Name     string
	Enabled  bool
	Detector detect.Detector
}

// Registry is an ordered set of named detectors. Only enabled entries
// are invoked; a name that is not registered is never called.
type Registry struct {
	entries []Entry
}

// NewRegistry returns a registry holding entries in the given order.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{}
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends e. Names must be unique and enabled entries need a detector.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("detector name is required")
	}
	for _, existing := range r.entries {
		if existing.Name == e.Name {
			return fmt.Errorf("detector %q already registered", e.Name)
		}
	}
	if e.Enabled && e.Detector == nil {
		return fmt.Errorf("detector %q is enabled but has no implementation", e.Name)
	}
	r.entries = append(r.entries, e)
	return nil
}

// Enabled returns the enabled entries in registration order.
func (r *Registry) Enabled() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the names of enabled detectors.
func (r *Registry) Names() []string {
	enabled := r.Enabled()
	names := make([]string, len(enabled))
	for i, e := range enabled {
		names[i] = e.Name
	}
	return names
}

// RegistryFromConfig builds the structured, rule and hf detectors. Disabled
// detectors are registered without being constructed.
func RegistryFromConfig(cfg *config.Config) (*Registry, error) {
	d := cfg.Detectors
	r := &Registry{}

	var structured detect.Detector
	if d.Structured.Enabled {
		structured = detect.NewStructured()
	}
	if err := r.Register(Entry{Name: DetectorStructured, Enabled: d.Structured.Enabled, Detector: structured}); err != nil {
		return nil, err
	}

	var rule detect.Detector
	if d.Rule.Enabled {
		ruleCfg := detect.DefaultRuleConfig()
		ruleCfg.Confidence = d.Rule.Confidence
		if d.Rule.AllowlistFile != "" {
			allow, err := detect.LoadAllowList(d.Rule.AllowlistFile)
			if err != nil {
				return nil, fmt.Errorf("loading rule allowlist: %w", err)
			}
			ruleCfg.AllowList = allow
		}
		rd, err := detect.NewRuleDetector(ruleCfg)
		if err != nil {
			return nil, fmt.Errorf("building rule detector: %w", err)
		}
		rule = rd
	}
	if err := r.Register(Entry{Name: DetectorRule, Enabled: d.Rule.Enabled, Detector: rule}); err != nil {
		return nil, err
	}

	var hf detect.Detector
	if d.HF.Enabled {
		minConfidence := d.HF.MinConfidence
		nd, err := ner.New(ner.Config{
			BaseURL:       d.HF.BaseURL,
			MinConfidence: &minConfidence,
			RateLimit:     d.HF.RateLimit,
			Burst:         d.HF.Burst,
			Timeout:       minDuration(d.Timeout.Duration(), 10*time.Second),
		})
		if err != nil {
			return nil, fmt.Errorf("building hf detector: %w", err)
		}
		hf = nd
	}
	if err := r.Register(Entry{Name: DetectorHF, Enabled: d.HF.Enabled, Detector: hf}); err != nil {
		return nil, err
	}

	return r, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a > 0 && a < b {
		return a
	}
	return b
}
