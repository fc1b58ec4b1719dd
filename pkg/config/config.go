// Package config loads process configuration for programs serving a router:
// a YAML file layered over defaults, then SCALY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "SCALY_"

// ErrNotFound is wrapped when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MaxBodySize     int64         `yaml:"max_body_size"`
	} `yaml:"server"`
	Security struct {
		CORS struct {
			AllowedOrigins   []string      `yaml:"allowed_origins"`
			AllowedMethods   []string      `yaml:"allowed_methods"`
			AllowedHeaders   []string      `yaml:"allowed_headers"`
			AllowCredentials bool          `yaml:"allow_credentials"`
			MaxAge           time.Duration `yaml:"max_age"`
		} `yaml:"cors"`
		RateLimit struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"rate_limit"`
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"security"`
	Logging struct {
		Level   string `yaml:"level"`
		TraceID bool   `yaml:"trace_id"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
		Path      string `yaml:"path"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Server.MaxBodySize = 1 << 20
	cfg.Security.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.Security.CORS.AllowedHeaders = []string{"Content-Type", "Authorization"}
	cfg.Security.RateLimit.Window = time.Minute
	cfg.Logging.Level = "info"
	cfg.Logging.TraceID = true
	cfg.Metrics.Namespace = "scaly"
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// ZapLevel parses the configured log level.
func (c *Config) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.Logging.Level)
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEffective loads path when it exists, applies the environment through
// lookup and validates the result. A missing file falls back to Default.
func LoadEffective(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNotFound) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SCALY_* variables. Pass os.LookupEnv in programs.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("ADDR"); ok {
		h, p, err := net.SplitHostPort(v)
		if err != nil {
			return envError("ADDR", err)
		}
		port, err := strconv.Atoi(p)
		if err != nil {
			return envError("ADDR", err)
		}
		c.Server.Address, c.Server.Port = h, port
	}
	if v, ok := get("READ_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("READ_TIMEOUT", err)
		}
		c.Server.ReadTimeout = d
	}
	if v, ok := get("WRITE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("WRITE_TIMEOUT", err)
		}
		c.Server.WriteTimeout = d
	}
	if v, ok := get("MAX_BODY_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError("MAX_BODY_SIZE", err)
		}
		c.Server.MaxBodySize = n
	}
	if v, ok := get("CORS_ORIGINS"); ok {
		c.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v, ok := get("RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("RATE_LIMIT", err)
		}
		c.Security.RateLimit.Limit = n
	}
	if v, ok := get("RATE_WINDOW"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("RATE_WINDOW", err)
		}
		c.Security.RateLimit.Window = d
	}
	if v, ok := get("TRUST_PROXY"); ok {
		c.Security.TrustProxy = parseBool(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = parseBool(v)
	}
	if v, ok := get("METRICS_NAMESPACE"); ok {
		c.Metrics.Namespace = v
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.New("config: server timeouts must not be negative")
	}
	if c.Server.MaxBodySize < 0 {
		return fmt.Errorf("config: server.max_body_size %d must not be negative", c.Server.MaxBodySize)
	}
	if c.Security.RateLimit.Limit < 0 {
		return fmt.Errorf("config: security.rate_limit.limit %d must not be negative", c.Security.RateLimit.Limit)
	}
	if c.Security.RateLimit.Limit > 0 && c.Security.RateLimit.Window <= 0 {
		return errors.New("config: security.rate_limit.window must be positive when a limit is set")
	}
	if _, err := c.ZapLevel(); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path %q must begin with '/'", c.Metrics.Path)
	}
	return nil
}

func envError(name string, err error) error {
	return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
}

func parseList(v string) []string {
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
