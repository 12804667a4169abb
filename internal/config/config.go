package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval = 60 * time.Second

	// DefaultStatsPath is where flow collectors keep today's per-exporter
	// device stats.
	DefaultStatsPath = "/lancope/var/sw/today/data/exporter_device_stats.txt"

	DefaultTransitionLog = "transitions.csv"

	// DefaultMetric and DefaultLabel locate per-exporter rates in a
	// Prometheus exposition for sources of type "metrics".
	DefaultMetric = "netflow_exporter_bps"
	DefaultLabel  = "exporter"

	DefaultAPIKeyHeader = "X-API-Key"
)

// Config is the top-level fleetwatch configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Poll   PollConfig   `yaml:"poll"`
	HTTP   HTTPConfig   `yaml:"http"`
	Notify NotifyConfig `yaml:"notify"`
}

// PollConfig holds the cycle settings and the set of collectors to poll.
type PollConfig struct {
	// Interval is how long the scheduler sleeps between cycles.
	Interval time.Duration `yaml:"interval"`

	// StatsPath is the remote device-stats file read over SFTP.
	// Individual sources may override it.
	StatsPath string `yaml:"stats_path"`

	// TransitionLog is the local append-only CSV the persister writes to.
	TransitionLog string `yaml:"transition_log"`

	// Sources is the list of flow collectors polled each cycle.
	Sources []Source `yaml:"sources"`
}

// Source describes one flow collector to poll.
type Source struct {
	// ID is a unique, human-readable identifier for this collector.
	ID string `yaml:"id"`

	// Type is the transport: ssh | metrics.
	Type string `yaml:"type"`

	// SSH fields — used when Type == "ssh".
	// Address is host or host:port (port 22 assumed when absent).
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the SSH password.
	PasswordEnv string `yaml:"password_env"`
	// KeyFile is a path to a private key; used instead of a password when set.
	KeyFile string `yaml:"key_file"`
	// KnownHostsFile enables host-key verification against the given file.
	// When empty the host key is not verified.
	KnownHostsFile string `yaml:"known_hosts_file"`
	// StatsPath overrides the fleet-wide stats file path for this collector.
	StatsPath string `yaml:"stats_path"`

	// Metrics fields — used when Type == "metrics".
	// Endpoint is the full URL of the collector's Prometheus exposition.
	Endpoint string `yaml:"endpoint"`
	// Metric is the family holding per-exporter rates; Label is the label
	// carrying the exporter address.
	Metric string     `yaml:"metric"`
	Label  string     `yaml:"label"`
	Auth   AuthConfig `yaml:"auth"`
	TLS    TLSConfig  `yaml:"tls"`
}

// Password returns the SSH password resolved from the environment.
func (s Source) Password() string {
	if s.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(s.PasswordEnv)
}

// AuthConfig specifies how a metrics source is authenticated to.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields — used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields — used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// HTTPConfig configures the optional status API and transition stream.
// A zero Port disables the HTTP server entirely.
type HTTPConfig struct {
	Port int           `yaml:"port"`
	Auth APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig configures REST/WebSocket authentication.
type APIAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key; defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv names the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
func (a APIAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name or the default.
func (a APIAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// NotifyConfig holds webhook delivery targets for transition events.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults; a config that
// fails validation is not usable and the process should exit.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applySourceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Poll: PollConfig{
			Interval:      DefaultPollInterval,
			StatsPath:     DefaultStatsPath,
			TransitionLog: DefaultTransitionLog,
		},
	}
}

// applySourceDefaults fills per-source fields that inherit fleet-wide values.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Poll.Sources {
		src := &cfg.Poll.Sources[i]
		if src.StatsPath == "" {
			src.StatsPath = cfg.Poll.StatsPath
		}
		if src.Metric == "" {
			src.Metric = DefaultMetric
		}
		if src.Label == "" {
			src.Label = DefaultLabel
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if cfg.Poll.TransitionLog == "" {
		return fmt.Errorf("poll.transition_log is required")
	}
	if len(cfg.Poll.Sources) == 0 {
		return fmt.Errorf("poll.sources must list at least one collector")
	}

	seen := make(map[string]bool, len(cfg.Poll.Sources))
	for i, src := range cfg.Poll.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Type {
		case "ssh":
			if src.Address == "" {
				return fmt.Errorf("sources[%d] %q: address is required", i, src.ID)
			}
			if src.Username == "" {
				return fmt.Errorf("sources[%d] %q: username is required", i, src.ID)
			}
			if src.PasswordEnv == "" && src.KeyFile == "" {
				return fmt.Errorf("sources[%d] %q: one of password_env or key_file is required", i, src.ID)
			}
		case "metrics":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
			switch src.Auth.Mode {
			case "apikey", "bearer", "basic", "none", "":
			default:
				return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
	}

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", cfg.HTTP.Port)
	}
	switch cfg.HTTP.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("http.auth: unknown mode %q", cfg.HTTP.Auth.Mode)
	}

	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
