package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kbdash/internal/logger"
)

// EnvAPIURL overrides the backend base URL from the environment.
const EnvAPIURL = "KB_API_URL"

const (
	defaultBaseURL   = "http://localhost:8000"
	defaultMaxUpload = 500 * 1024 * 1024
)

// Config represents configuration data for the dashboard.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	DataDirectory string        `yaml:"data_directory"`
	Backend       Backend       `yaml:"backend"`
	Connectivity  Connectivity  `yaml:"connectivity"`
	Retry         Retry         `yaml:"retry"`
	Requests      Requests      `yaml:"requests"`
	Upload        Upload        `yaml:"upload"`
	Query         Query         `yaml:"query"`
	Log           logger.Config `yaml:"log"`
}

// Backend locates the knowledge base API.
type Backend struct {
	BaseURL    string `yaml:"base_url"`
	HealthPath string `yaml:"health_path"`
}

// Connectivity tunes liveness probing.
type Connectivity struct {
	ProbeTimeoutSeconds    int  `yaml:"probe_timeout_seconds"`
	ReprobeIntervalSeconds int  `yaml:"reprobe_interval_seconds"`
	EscalateAfter          int  `yaml:"escalate_after"`
	HistorySize            int  `yaml:"history_size"`
	PersistHistory         bool `yaml:"persist_history"`
}

// Retry is the policy applied to idempotent data fetches.
type Retry struct {
	MaxAttempts           int `yaml:"max_attempts"`
	AttemptTimeoutSeconds int `yaml:"attempt_timeout_seconds"`
	DelaySeconds          int `yaml:"delay_seconds"`
}

// Requests holds single-attempt timeouts for non-idempotent calls.
type Requests struct {
	MutationTimeoutSeconds int `yaml:"mutation_timeout_seconds"`
	QueryTimeoutSeconds    int `yaml:"query_timeout_seconds"`
	UploadTimeoutSeconds   int `yaml:"upload_timeout_seconds"`
}

// Upload limits what may be sent to /upload.
type Upload struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Query defaults for the question panel.
type Query struct {
	TopK  int    `yaml:"top_k"`
	Voice string `yaml:"voice"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "127.0.0.1:3000",
		DataDirectory: filepath.Join(".dist", "data"),
		Backend: Backend{
			BaseURL:    defaultBaseURL,
			HealthPath: "/health",
		},
		Connectivity: Connectivity{
			ProbeTimeoutSeconds:    3,
			ReprobeIntervalSeconds: 30,
			EscalateAfter:          3,
			HistorySize:            2048,
			PersistHistory:         true,
		},
		Retry: Retry{
			MaxAttempts:           4,
			AttemptTimeoutSeconds: 5,
			DelaySeconds:          2,
		},
		Requests: Requests{
			MutationTimeoutSeconds: 30,
			QueryTimeoutSeconds:    120,
			UploadTimeoutSeconds:   600,
		},
		Upload: Upload{
			MaxBytes:          defaultMaxUpload,
			AllowedExtensions: []string{".txt", ".md", ".pdf", ".docx"},
		},
		Query: Query{TopK: 5},
		Log: logger.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
// The backend URL is resolved afterwards, see ResolveBaseURL.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.Backend.BaseURL = ResolveBaseURL(os.Getenv(EnvAPIURL), cfg.Backend.BaseURL)
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveBaseURL picks the environment value, then the configured one,
// then the local development default. Trailing slashes are trimmed.
func ResolveBaseURL(env, configured string) string {
	for _, candidate := range []string{env, configured} {
		candidate = strings.TrimRight(strings.TrimSpace(candidate), "/")
		if candidate != "" {
			return candidate
		}
	}
	return defaultBaseURL
}

// WithBaseURL returns a copy of c pointed at raw, validated like a loaded
// config. An empty raw keeps the current URL.
func (c Config) WithBaseURL(raw string) (Config, error) {
	c.Backend.BaseURL = ResolveBaseURL(raw, c.Backend.BaseURL)
	if err := validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func normalize(cfg *Config) {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = def.DataDirectory
	}
	if cfg.Backend.HealthPath == "" {
		cfg.Backend.HealthPath = def.Backend.HealthPath
	}
	if !strings.HasPrefix(cfg.Backend.HealthPath, "/") {
		cfg.Backend.HealthPath = "/" + cfg.Backend.HealthPath
	}
	if cfg.Connectivity.ProbeTimeoutSeconds <= 0 {
		cfg.Connectivity.ProbeTimeoutSeconds = def.Connectivity.ProbeTimeoutSeconds
	}
	if cfg.Connectivity.ReprobeIntervalSeconds <= 0 {
		cfg.Connectivity.ReprobeIntervalSeconds = def.Connectivity.ReprobeIntervalSeconds
	}
	if cfg.Connectivity.EscalateAfter <= 0 {
		cfg.Connectivity.EscalateAfter = def.Connectivity.EscalateAfter
	}
	if cfg.Connectivity.HistorySize <= 0 {
		cfg.Connectivity.HistorySize = def.Connectivity.HistorySize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.AttemptTimeoutSeconds <= 0 {
		cfg.Retry.AttemptTimeoutSeconds = def.Retry.AttemptTimeoutSeconds
	}
	if cfg.Retry.DelaySeconds < 0 {
		cfg.Retry.DelaySeconds = def.Retry.DelaySeconds
	}
	if cfg.Requests.MutationTimeoutSeconds <= 0 {
		cfg.Requests.MutationTimeoutSeconds = def.Requests.MutationTimeoutSeconds
	}
	if cfg.Requests.QueryTimeoutSeconds <= 0 {
		cfg.Requests.QueryTimeoutSeconds = def.Requests.QueryTimeoutSeconds
	}
	if cfg.Requests.UploadTimeoutSeconds <= 0 {
		cfg.Requests.UploadTimeoutSeconds = def.Requests.UploadTimeoutSeconds
	}
	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = def.Upload.MaxBytes
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = def.Upload.AllowedExtensions
	}
	for i, ext := range cfg.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Upload.AllowedExtensions[i] = ext
	}
	if cfg.Query.TopK <= 0 {
		cfg.Query.TopK = def.Query.TopK
	}
}

func validate(cfg Config) error {
	if !strings.HasPrefix(cfg.Backend.BaseURL, "http://") && !strings.HasPrefix(cfg.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend base_url %q must start with http:// or https://", cfg.Backend.BaseURL)
	}
	if cfg.Retry.MaxAttempts > 10 {
		return errors.New("retry max_attempts must not exceed 10")
	}
	return nil
}

// ProbeTimeout is the deadline of a single liveness probe.
func (c Connectivity) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// ReprobeInterval is the period of re-probing while disconnected.
func (c Connectivity) ReprobeInterval() time.Duration {
	return time.Duration(c.ReprobeIntervalSeconds) * time.Second
}

func (r Retry) AttemptTimeout() time.Duration {
	return time.Duration(r.AttemptTimeoutSeconds) * time.Second
}

func (r Retry) Delay() time.Duration {
	return time.Duration(r.DelaySeconds) * time.Second
}

func (r Requests) MutationTimeout() time.Duration {
	return time.Duration(r.MutationTimeoutSeconds) * time.Second
}

func (r Requests) QueryTimeout() time.Duration {
	return time.Duration(r.QueryTimeoutSeconds) * time.Second
}

func (r Requests) UploadTimeout() time.Duration {
	return time.Duration(r.UploadTimeoutSeconds) * time.Second
}

// SessionPath is where the bearer token and user info are persisted.
func (c Config) SessionPath() string {
	return filepath.Join(c.DataDirectory, "session.json")
}

// HistoryPath is where probe history is persisted.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDirectory, "connectivity_history.json")
}
