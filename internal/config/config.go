// Package config loads the restwalk configuration from YAML with environment
// variable expansion, optional .env files and command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level restwalk configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Redis      RedisConfig      `yaml:"redis"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Listing    *ListingConfig   `yaml:"listing,omitempty"`
	Operation  *OperationConfig `yaml:"operation,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type HTTPConfig struct {
	BaseURL      string            `yaml:"base_url"`
	UserAgent    string            `yaml:"user_agent"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxBodyBytes int64             `yaml:"max_body_bytes"`
	Headers      map[string]string `yaml:"headers"`
	// Cache enables Redis revalidation of GET responses.
	Cache    bool          `yaml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RedisConfig is only needed when caching or checkpointing is enabled.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CheckpointConfig struct {
	Enabled bool          `yaml:"enabled"`
	Name    string        `yaml:"name"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `yaml:"addr"`
}

// Strategy names accepted in ListingConfig.Strategy.
const (
	StrategyNextLink      = "next_link"
	StrategyHeaderToken   = "header_token"
	StrategyQueryToken    = "query_token"
	StrategyHeaderToQuery = "header_to_query"
	StrategyBodyToken     = "body_token"
	StrategyPageCount     = "page_count"
	StrategySingle        = "single"
)

// ListingConfig describes one paged listing.
type ListingConfig struct {
	Method    string `yaml:"method"`
	URL       string `yaml:"url"`
	Body      string `yaml:"body"`
	ItemsPath string `yaml:"items_path"`
	Strategy  string `yaml:"strategy"`

	// NextPath is the body field holding the next link or token.
	NextPath string `yaml:"next_path"`
	// Header is the response header carrying the token or page count.
	Header string `yaml:"header"`
	// RequestHeader is where HeaderToken echoes the token. Defaults to Header.
	RequestHeader string `yaml:"request_header"`
	// Param is the query parameter carrying the token or page number.
	Param string `yaml:"param"`
	// RequestPath is where BodyToken writes the token into the request body.
	RequestPath string `yaml:"request_path"`
	// PreserveQuery lists parameters copied from the initial request onto
	// next links, e.g. api-version.
	PreserveQuery []string `yaml:"preserve_query"`

	// MaxItems stops the walk early. Zero means no limit.
	MaxItems int `yaml:"max_items"`
}

// OperationConfig describes one long-running operation.
type OperationConfig struct {
	Method string `yaml:"method"`
	URL    string `yaml:"url"`
	Body   string `yaml:"body"`

	Frequency      time.Duration `yaml:"frequency"`
	MaxInterval    time.Duration `yaml:"max_interval"`
	Backoff        bool          `yaml:"backoff"`
	MonitorHeaders []string      `yaml:"monitor_headers"`
	StatusPaths    []string      `yaml:"status_paths"`
	ResultPath     string        `yaml:"result_path"`

	// PreserveQuery lists parameters of the initiating request carried onto
	// every status check, e.g. api-version.
	PreserveQuery []string `yaml:"preserve_query"`
	// RequestHeaders lists headers of the initiating request carried onto
	// every status check.
	RequestHeaders []string `yaml:"request_headers"`
}

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the string representation of the validation error.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a configuration.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads, expands, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads and expands a configuration file without applying defaults, so
// that command-line overrides can be applied before Finalize.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Decode(data)
}

// Decode parses YAML configuration. ${VAR} references are expanded from the
// environment before parsing. Unknown fields are rejected.
func Decode(data []byte) (*Config, error) {
	data = []byte(os.Expand(string(data), os.Getenv))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// Parse decodes, defaults and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults and validates.
func (c *Config) Finalize() error {
	c.SetDefaults()
	if errs := c.Validate(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "restwalk/1.0"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 32 << 20
	}
	if c.HTTP.CacheTTL == 0 {
		c.HTTP.CacheTTL = 10 * time.Minute
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Checkpoint.Prefix == "" {
		c.Checkpoint.Prefix = "clientrt:checkpoint"
	}

	if l := c.Listing; l != nil {
		if l.Method == "" {
			l.Method = "GET"
		}
		if l.ItemsPath == "" {
			l.ItemsPath = "value"
		}
		if l.Strategy == "" {
			l.Strategy = StrategyNextLink
		}
		if l.NextPath == "" {
			switch l.Strategy {
			case StrategyNextLink:
				l.NextPath = "nextLink"
			case StrategyQueryToken, StrategyBodyToken:
				l.NextPath = "continuationToken"
			}
		}
		if l.RequestHeader == "" {
			l.RequestHeader = l.Header
		}
	}

	if o := c.Operation; o != nil {
		if o.Method == "" {
			o.Method = "PUT"
		}
		if o.Frequency == 0 {
			o.Frequency = 30 * time.Second
		}
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}

	if c.HTTP.Timeout < 0 {
		add("http.timeout", "must not be negative")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		add("http.max_body_bytes", "must not be negative")
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Name == "" {
		add("checkpoint.name", "is required when checkpointing is enabled")
	}
	if c.Checkpoint.TTL < 0 {
		add("checkpoint.ttl", "must not be negative")
	}

	if c.Listing != nil && c.Operation != nil {
		add("listing", "cannot be combined with operation")
	}

	if l := c.Listing; l != nil {
		if l.URL == "" {
			add("listing.url", "is required")
		}
		switch l.Strategy {
		case StrategyNextLink, StrategySingle:
		case StrategyHeaderToken:
			if l.Header == "" {
				add("listing.header", "is required for header_token")
			}
		case StrategyQueryToken:
			if l.Param == "" {
				add("listing.param", "is required for query_token")
			}
		case StrategyHeaderToQuery:
			if l.Header == "" {
				add("listing.header", "is required for header_to_query")
			}
			if l.Param == "" {
				add("listing.param", "is required for header_to_query")
			}
		case StrategyBodyToken:
			if l.RequestPath == "" {
				add("listing.request_path", "is required for body_token")
			}
		case StrategyPageCount:
			if l.Header == "" {
				add("listing.header", "is required for page_count")
			}
			if l.Param == "" {
				add("listing.param", "is required for page_count")
			}
		default:
			add("listing.strategy", fmt.Sprintf("unknown strategy %q", l.Strategy))
		}
		if l.MaxItems < 0 {
			add("listing.max_items", "must not be negative")
		}
	}

	if o := c.Operation; o != nil {
		if o.URL == "" {
			add("operation.url", "is required")
		}
		if o.Frequency < 0 {
			add("operation.frequency", "must not be negative")
		}
		if o.MaxInterval != 0 && o.MaxInterval < o.Frequency {
			add("operation.max_interval", "must be >= frequency")
		}
	}

	return errs
}
