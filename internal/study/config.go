// Package study holds the progression configuration: the global batch order,
// the passcode table, and the per-phase pipeline variants. The defaults are
// compiled in; an operator can override them with a YAML file.
package study

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"plstudy/internal/models"
)

// Config is the single source of truth for scheduling order and gating.
type Config struct {
	// BatchOrder is the fixed total order of full_type tokens.
	BatchOrder []string `yaml:"batch_order"`
	// Passcodes maps full_type to its unlock code; nil means no code. The
	// first entry of BatchOrder must have no code.
	Passcodes map[string]*string `yaml:"passcodes"`
	// Variants maps phase name to pipeline variant.
	Variants map[string]models.PipelineVariant `yaml:"variants"`

	MinAnswerChars int `yaml:"min_answer_chars"`
	MinUserTurns   int `yaml:"min_user_turns"`

	// ComparisonScales lists the required rating scales per phase.
	ComparisonScales map[string][]string `yaml:"comparison_scales"`
}

// Default returns the built-in study configuration.
func Default() *Config {
	code := func(s string) *string { return &s }
	return &Config{
		BatchOrder: []string{
			"static_1", "static_2",
			"interactive_3", "interactive_4",
			"finetuned_5", "finetuned_6",
		},
		Passcodes: map[string]*string{
			"static_1":      nil,
			"static_2":      code("CAT118"),
			"interactive_3": code("DOG721"),
			"interactive_4": code("OWL492"),
			"finetuned_5":   code("FOX305"),
			"finetuned_6":   code("ELK667"),
		},
		Variants: map[string]models.PipelineVariant{
			models.PhaseStatic:      models.VariantVocabulary,
			models.PhaseInteractive: models.VariantConversational,
			models.PhaseFinetuned:   models.VariantVocabulary,
		},
		MinAnswerChars: 75,
		MinUserTurns:   3,
		ComparisonScales: map[string][]string{
			models.PhaseStatic:    {"simplicity", "coherence", "informativeness", "background", "faithfulness"},
			models.PhaseFinetuned: {"simplicity", "coherence", "informativeness", "background", "faithfulness"},
			models.PhaseInteractive: {
				"simplicity", "coherence", "informativeness", "background", "faithfulness",
				"chatbot_usefulness", "chatbot_answer_quality",
			},
		},
	}
}

// Load reads a YAML override file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse study config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	if len(c.BatchOrder) == 0 {
		return fmt.Errorf("study config: batch_order is empty")
	}
	for _, ft := range c.BatchOrder {
		phase, _, err := models.SplitFullType(ft)
		if err != nil {
			return fmt.Errorf("study config: %w", err)
		}
		if _, ok := c.Variants[phase]; !ok {
			return fmt.Errorf("study config: phase %q has no pipeline variant", phase)
		}
	}
	// The first batch in the global order is open by construction.
	if code := c.Passcodes[c.BatchOrder[0]]; code != nil {
		return fmt.Errorf("study config: first batch %q must not have a passcode", c.BatchOrder[0])
	}
	if c.MinAnswerChars <= 0 {
		return fmt.Errorf("study config: min_answer_chars must be positive")
	}
	if c.MinUserTurns <= 0 {
		return fmt.Errorf("study config: min_user_turns must be positive")
	}
	return nil
}

// IndexOf returns the position of a full_type in the global order, -1 when
// it is not scheduled.
func (c *Config) IndexOf(fullType string) int {
	for i, ft := range c.BatchOrder {
		if ft == fullType {
			return i
		}
	}
	return -1
}

// PasscodeFor returns the configured passcode for a full_type, nil when no
// code is required.
func (c *Config) PasscodeFor(fullType string) *string {
	return c.Passcodes[fullType]
}

// VariantFor returns the pipeline variant for a phase.
func (c *Config) VariantFor(phase string) (models.PipelineVariant, error) {
	v, ok := c.Variants[phase]
	if !ok {
		return "", fmt.Errorf("phase %q has no pipeline variant", phase)
	}
	return v, nil
}

// ScalesFor returns the required comparison scales for a phase.
func (c *Config) ScalesFor(phase string) []string {
	return c.ComparisonScales[phase]
}
