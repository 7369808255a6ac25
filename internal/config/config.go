// Package config loads the optional YAML configuration shared by the
// inliner command and daemon.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"inliner/inline"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalid        = errors.New("invalid config")
)

// MaxInputSize limits the config file size.
const MaxInputSize = 1 << 20

const (
	DefaultTimeout  = "30s"
	DefaultMaxBytes = 64 << 20
	MaxRetries      = 10
	MaxWorkers      = 64
)

// Config holds everything a run can be tuned with. Command-line flags
// override the values loaded from file.
type Config struct {
	UserAgent string                `yaml:"userAgent"`
	Timeout   string                `yaml:"timeout"`  // Go duration, e.g. "30s"
	Retries   int                   `yaml:"retries"`  // extra attempts for transient HTTP errors
	Workers   int                   `yaml:"workers"`  // 0 = derived from GOMAXPROCS
	Policy    string                `yaml:"policy"`   // "abort" or "degrade"
	CacheDir  string                `yaml:"cacheDir"` // empty = no disk cache
	MaxBytes  int64                 `yaml:"maxBytes"` // per-resource size cap
	Pretty    bool                  `yaml:"pretty"`
	Hosts     map[string]HostConfig `yaml:"hosts"`

	headersOnce sync.Once
	headers     *HeaderStore
}

// HostConfig holds settings applied to requests for one host suffix.
type HostConfig struct {
	Headers map[string]string `yaml:"headers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Timeout:  DefaultTimeout,
		Policy:   inline.PolicyAbort.String(),
		MaxBytes: DefaultMaxBytes,
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	if len(data) > MaxInputSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigParse, len(data), MaxInputSize)
	}
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the policy name.
func (c *Config) Validate() error {
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := inline.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Retries < 0 || c.Retries > MaxRetries {
		return fmt.Errorf("%w: retries must be between 0 and %d, got %d", ErrInvalid, MaxRetries, c.Retries)
	}
	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers must be between 0 and %d, got %d", ErrInvalid, MaxWorkers, c.Workers)
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("%w: maxBytes must not be negative", ErrInvalid)
	}
	for host := range c.Hosts {
		if strings.TrimSpace(host) == "" || strings.ContainsAny(host, "/:") {
			return fmt.Errorf("%w: host key %q must be a bare domain", ErrInvalid, host)
		}
	}
	return nil
}

// TimeoutDuration parses Timeout; empty selects the default.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	s := strings.TrimSpace(c.Timeout)
	if s == "" {
		s = DefaultTimeout
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: timeout %q is not a positive duration", ErrInvalid, c.Timeout)
	}
	return d, nil
}

// PolicyValue returns the parsed failure policy.
func (c *Config) PolicyValue() inline.Policy {
	p, _ := inline.ParsePolicy(c.Policy)
	return p
}

// ResolveWorkers returns the prefetch worker count: the configured value,
// or twice GOMAXPROCS clamped to [1, 16].
func (c *Config) ResolveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.GOMAXPROCS(0) * 2
	return min(max(n, 1), 16)
}

// HeadersFor returns the extra request headers configured for host.
func (c *Config) HeadersFor(host string) http.Header {
	c.headersOnce.Do(func() { c.headers = NewHeaderStore(c.Hosts) })
	return c.headers.Find(host)
}
