package detect

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/fyrsmithlabs/phisan/internal/record"
)

// RuleConfig configures the rule detector.
type RuleConfig struct {
	// Rules defines the detection rules
	Rules []Rule `koanf:"rules"`

	// Confidence is assigned to every match (default: 0.99)
	Confidence float64 `koanf:"confidence"`

	// AllowList contains patterns whose matches are not reported
	AllowList []string `koanf:"allow_list"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule maps a regex pattern to an entity type.
type Rule struct {
	// ID is the unique identifier for this rule
	ID string `koanf:"id"`

	// Description explains what this rule detects
	Description string `koanf:"description"`

	// EntityType is reported on each match
	EntityType EntityType `koanf:"entity_type"`

	// Pattern is the regex pattern
	Pattern string `koanf:"pattern"`
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// DefaultRuleConfig returns the built-in rules with default confidence.
func DefaultRuleConfig() *RuleConfig {
	return &RuleConfig{
		Rules:      DefaultRules(),
		Confidence: DefaultRuleConfidence,
		AllowList:  []string{},
	}
}

// Validate validates and compiles the configuration.
func (c *RuleConfig) Validate() error {
	if c.Confidence == 0 {
		c.Confidence = DefaultRuleConfidence
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %v", c.Confidence)
	}

	seen := make(map[string]bool, len(c.Rules))
	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if seen[rule.ID] {
			return fmt.Errorf("rule %s: duplicate ID", rule.ID)
		}
		seen[rule.ID] = true
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		if rule.EntityType == "" {
			rule.EntityType = EntityUnknown
		}

		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		c.compiledRules = append(c.compiledRules, &compiledRule{Rule: rule, pattern: pattern})
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}

	return nil
}

// RuleDetector finds span-level PHI in encounter notes with regex rules.
type RuleDetector struct {
	config *RuleConfig
}

// NewRuleDetector creates a rule detector. If cfg is nil,
// DefaultRuleConfig is used.
func NewRuleDetector(cfg *RuleConfig) (*RuleDetector, error) {
	if cfg == nil {
		cfg = DefaultRuleConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RuleDetector{config: cfg}, nil
}

// Detect scans encounter notes. Findings are returned in descending start
// order with rune offsets.
func (d *RuleDetector) Detect(_ context.Context, rec record.CanonicalRecord) ([]Finding, error) {
	text := rec.EncounterNotes
	if text == "" {
		return nil, nil
	}

	var findings []Finding
	for _, rule := range d.config.compiledRules {
		for _, m := range rule.pattern.FindAllStringIndex(text, -1) {
			match := text[m[0]:m[1]]
			if d.isAllowed(match) {
				continue
			}
			start := utf8.RuneCountInString(text[:m[0]])
			end := start + utf8.RuneCountInString(match)
			findings = append(findings, Span(
				record.FieldEncounterNotes, rule.EntityType, SourceRule,
				d.config.Confidence, start, end, match,
			))
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return *findings[i].Start > *findings[j].Start
	})
	return findings, nil
}

func (d *RuleDetector) isAllowed(match string) bool {
	for _, pattern := range d.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

var _ Detector = (*RuleDetector)(nil)
