package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"caseline/internal/domain"
)

const fileName = "caseline.yml"

// Config models caseline.yml.
type Config struct {
	Workflow struct {
		ExplanationDueDays int `yaml:"explanation_due_days"`
	} `yaml:"workflow"`
	Numbering struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"numbering"`
	Categories []CategorySeed `yaml:"categories"`
	Webhooks   []WebhookConfig `yaml:"webhooks"`
	Broker     BrokerConfig    `yaml:"broker"`
	Cache      CacheConfig     `yaml:"cache"`
}

// CategorySeed is a catalog entry inserted when the registry is empty.
type CategorySeed struct {
	Name             string          `yaml:"name"`
	Description      string          `yaml:"description"`
	Severity         domain.Severity `yaml:"severity"`
	SuggestedActions []string        `yaml:"suggested_actions"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// BrokerConfig enables the AMQP relay sink when URL is set.
type BrokerConfig struct {
	URL      string   `yaml:"url"`
	Exchange string   `yaml:"exchange"`
	Events   []string `yaml:"events"`
}

// CacheConfig enables the Redis status cache when Addr is set.
type CacheConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	Prefix     string `yaml:"prefix"`
}

func (c *Config) ExplanationWindow() time.Duration {
	return time.Duration(c.Workflow.ExplanationDueDays) * 24 * time.Hour
}

// IsEnabled treats an unset flag as enabled.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if c.Workflow.ExplanationDueDays == 0 {
		c.Workflow.ExplanationDueDays = 7
	}
	if c.Numbering.MaxAttempts == 0 {
		c.Numbering.MaxAttempts = 3
	}
	if c.Broker.URL != "" && c.Broker.Exchange == "" {
		c.Broker.Exchange = "caseline.events"
	}
	if c.Cache.Addr != "" {
		if c.Cache.TTLSeconds == 0 {
			c.Cache.TTLSeconds = 300
		}
		if c.Cache.Prefix == "" {
			c.Cache.Prefix = "caseline:status:"
		}
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workflow.ExplanationDueDays < 0 {
		return fmt.Errorf("config.workflow.explanation_due_days must be positive")
	}
	if c.Numbering.MaxAttempts < 1 {
		return fmt.Errorf("config.numbering.max_attempts must be at least 1")
	}
	seen := map[string]struct{}{}
	for i, cat := range c.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return fmt.Errorf("config.categories[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("config.categories has duplicate name %s", name)
		}
		seen[name] = struct{}{}
		if !cat.Severity.Valid() {
			return fmt.Errorf("category %s has invalid severity %q", name, cat.Severity)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config.cache.ttl_seconds must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load reads config from the workspace and falls back to Default when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
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
	cfg.applyDefaults()
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

const defaultTemplate = `workflow:
  explanation_due_days: 7

numbering:
  max_attempts: 3

categories:
  - name: Tardiness
    description: "Repeated late arrival or early departure"
    severity: low
    suggested_actions: [verbal_warning, written_warning]
  - name: Absenteeism
    description: "Unauthorized absence from work"
    severity: medium
    suggested_actions: [written_warning, salary_deduction]
  - name: Insubordination
    description: "Refusal to follow a reasonable instruction"
    severity: high
    suggested_actions: [written_warning, final_warning, suspension]
  - name: Misconduct
    description: "Behaviour that breaches the code of conduct"
    severity: high
    suggested_actions: [final_warning, suspension]
  - name: Harassment
    description: "Harassment or discrimination of colleagues"
    severity: critical
    suggested_actions: [suspension, termination]
  - name: Fraud
    description: "Theft, fraud or falsification of records"
    severity: critical
    suggested_actions: [termination]
`
