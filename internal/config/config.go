package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models sprintboard.yml.
type Config struct {
	Server struct {
		Addr        string `yaml:"addr"`
		BasePath    string `yaml:"base_path"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Reorder struct {
		// Audit is "all" to check every referenced issue's organization, "first" to check only the first.
		Audit           string `yaml:"audit"`
		ValidateBuckets *bool  `yaml:"validate_buckets"`
	} `yaml:"reorder"`
	Sprints struct {
		SingleActive bool `yaml:"single_active"`
	} `yaml:"sprints"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

const (
	AuditAll   = "all"
	AuditFirst = "first"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config.database.dsn is required for postgres")
	}
	switch c.Reorder.Audit {
	case AuditAll, AuditFirst:
	default:
		return fmt.Errorf("config.reorder.audit must be 'all' or 'first'")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a known level", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// ValidateReorderBuckets reports whether reorder payloads are checked for dense buckets.
func (c *Config) ValidateReorderBuckets() bool {
	if c == nil || c.Reorder.ValidateBuckets == nil {
		return true
	}
	return *c.Reorder.ValidateBuckets
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sprintboard.yml")
}

// Load reads and validates config from workspace, falling back to defaults when absent.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// LoadOptional returns nil,nil if the config file does not exist.
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

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
// Keys missing from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, fmt.Errorf("invalid default yaml: %w", err)
	}
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

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Encode renders cfg as YAML.
func (c *Config) Encode() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  metrics_addr: ""

auth:
  jwt_secret: ""
  allow_legacy_actor_header: false

log:
  level: info
  format: console
  output: stderr

database:
  driver: sqlite
  dsn: ""

reorder:
  audit: all
  validate_buckets: true

sprints:
  single_active: false
`
