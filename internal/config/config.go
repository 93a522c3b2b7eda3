package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"steward/internal/phase"
)

// Config models steward.yml.
type Config struct {
	Governance struct {
		KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	} `yaml:"governance" json:"governance"`
	Phases struct {
		Weights map[string]int `yaml:"weights" json:"weights"`
	} `yaml:"phases" json:"phases"`
	Handoffs struct {
		MinFieldLength   int `yaml:"min_field_length" json:"min_field_length"`
		MinSummaryLength int `yaml:"min_summary_length" json:"min_summary_length"`
		PassThreshold    int `yaml:"pass_threshold" json:"pass_threshold"`
	} `yaml:"handoffs" json:"handoffs"`
	Escalation struct {
		TimeoutHours int    `yaml:"timeout_hours" json:"timeout_hours"`
		Strategy     string `yaml:"strategy" json:"strategy"`
	} `yaml:"escalation" json:"escalation"`
	Queue struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
	} `yaml:"queue" json:"queue"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Validate ensures the config meets required structure. Phase weights are
// configuration, not constants of the algorithm, but they must cover every
// working phase and sum to exactly 100.
func (c *Config) Validate() error {
	if c.Governance.KeyPrefix == "" {
		return fmt.Errorf("config.governance.key_prefix is required")
	}
	if len(c.Phases.Weights) == 0 {
		return fmt.Errorf("config.phases.weights is required")
	}
	sum := 0
	for _, p := range phase.Working() {
		w, ok := c.Phases.Weights[p]
		if !ok {
			return fmt.Errorf("config.phases.weights missing phase %s", p)
		}
		if w < 0 {
			return fmt.Errorf("config.phases.weights[%s] must be >= 0", p)
		}
		sum += w
	}
	for p := range c.Phases.Weights {
		if !phase.Valid(p) || phase.Terminal(p) {
			return fmt.Errorf("config.phases.weights has unknown phase %s", p)
		}
	}
	if sum != 100 {
		return fmt.Errorf("config.phases.weights must sum to 100, got %d", sum)
	}
	if c.Handoffs.MinFieldLength <= 0 {
		return fmt.Errorf("config.handoffs.min_field_length must be > 0")
	}
	if c.Handoffs.MinSummaryLength < c.Handoffs.MinFieldLength {
		return fmt.Errorf("config.handoffs.min_summary_length must be >= min_field_length")
	}
	if c.Handoffs.PassThreshold <= 0 || c.Handoffs.PassThreshold > 100 {
		return fmt.Errorf("config.handoffs.pass_threshold must be in (0,100]")
	}
	if c.Escalation.TimeoutHours <= 0 {
		return fmt.Errorf("config.escalation.timeout_hours must be > 0")
	}
	if c.Queue.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config.queue.poll_interval_seconds must be > 0")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Weight returns the configured progress weight for a working phase.
func (c *Config) Weight(p string) int {
	return c.Phases.Weights[p]
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "steward.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the workspace config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `governance:
  key_prefix: SD

phases:
  weights:
    LEAD_APPROVAL: 20
    PLAN_DESIGN: 20
    EXEC_IMPLEMENTATION: 30
    PLAN_VERIFICATION: 20
    LEAD_FINAL_APPROVAL: 10

handoffs:
  min_field_length: 50
  min_summary_length: 100
  pass_threshold: 70

escalation:
  timeout_hours: 24
  strategy: notify-chairman

queue:
  poll_interval_seconds: 2
`
