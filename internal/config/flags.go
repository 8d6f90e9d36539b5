package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Overrides holds command-line values that take precedence over the file.
// Only flags the user actually set are applied.
type Overrides struct {
	LogLevel       string
	LogPretty      bool
	BaseURL        string
	UserAgent      string
	RedisAddr      string
	Cache          bool
	Checkpoint     string
	MetricsAddr    string
	ListURL        string
	ItemsPath      string
	Strategy       string
	NextPath       string
	TokenHeader    string
	TokenParam     string
	MaxItems       int
	OperationURL   string
	Frequency      time.Duration
	OperationBody  string
	OperationVerb  string
	ResultPath     string
	CheckpointTTL  time.Duration
	RequestTimeout time.Duration
}

// AddFlags registers the override flags on f.
func (o *Overrides) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.LogLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	f.BoolVar(&o.LogPretty, "log-pretty", false, "Human-readable console logs")
	f.StringVar(&o.BaseURL, "base-url", "", "Base URL for relative request URLs")
	f.StringVar(&o.UserAgent, "user-agent", "", "User-Agent header")
	f.DurationVar(&o.RequestTimeout, "timeout", 30*time.Second, "Per-request timeout")
	f.StringVar(&o.RedisAddr, "redis-addr", "localhost:6379", "Redis address for caching and checkpoints")
	f.BoolVar(&o.Cache, "cache", false, "Revalidate GET responses through the Redis cache")
	f.StringVar(&o.Checkpoint, "checkpoint", "", "Checkpoint name; enables resuming from Redis")
	f.DurationVar(&o.CheckpointTTL, "checkpoint-ttl", 0, "Expire checkpoints that are not updated")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	f.StringVar(&o.ListURL, "list", "", "URL of a paged listing to walk")
	f.StringVar(&o.ItemsPath, "items-path", "value", "Dotted JSON path of the items array")
	f.StringVar(&o.Strategy, "strategy", StrategyNextLink, "Paging strategy")
	f.StringVar(&o.NextPath, "next-path", "", "Dotted JSON path of the next link or token")
	f.StringVar(&o.TokenHeader, "token-header", "", "Header carrying the continuation token or page count")
	f.StringVar(&o.TokenParam, "token-param", "", "Query parameter carrying the continuation token or page number")
	f.IntVar(&o.MaxItems, "max-items", 0, "Stop at the end of the page that reaches this many items")

	f.StringVar(&o.OperationURL, "operation", "", "URL that starts a long-running operation")
	f.StringVar(&o.OperationVerb, "method", "PUT", "HTTP method that starts the operation")
	f.StringVar(&o.OperationBody, "body", "", "Request body that starts the operation")
	f.DurationVar(&o.Frequency, "frequency", 30*time.Second, "Minimum interval between status checks")
	f.StringVar(&o.ResultPath, "result-path", "", "Dotted JSON path of the operation result")
}

// Apply copies every flag set on f into cfg. Call it before Finalize.
func (o *Overrides) Apply(f *pflag.FlagSet, cfg *Config) {
	set := func(name string) bool { return f.Changed(name) }

	if set("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if set("log-pretty") {
		cfg.Log.Pretty = o.LogPretty
	}
	if set("base-url") {
		cfg.HTTP.BaseURL = o.BaseURL
	}
	if set("user-agent") {
		cfg.HTTP.UserAgent = o.UserAgent
	}
	if set("timeout") {
		cfg.HTTP.Timeout = o.RequestTimeout
	}
	if set("redis-addr") {
		cfg.Redis.Addr = o.RedisAddr
	}
	if set("cache") {
		cfg.HTTP.Cache = o.Cache
	}
	if set("checkpoint") {
		cfg.Checkpoint.Enabled = o.Checkpoint != ""
		cfg.Checkpoint.Name = o.Checkpoint
	}
	if set("checkpoint-ttl") {
		cfg.Checkpoint.TTL = o.CheckpointTTL
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = o.MetricsAddr
	}

	if set("list") || set("items-path") || set("strategy") || set("max-items") ||
		set("next-path") || set("token-header") || set("token-param") {
		if cfg.Listing == nil {
			cfg.Listing = &ListingConfig{}
		}
		if set("list") {
			cfg.Listing.URL = o.ListURL
		}
		if set("items-path") {
			cfg.Listing.ItemsPath = o.ItemsPath
		}
		if set("strategy") {
			cfg.Listing.Strategy = o.Strategy
		}
		if set("max-items") {
			cfg.Listing.MaxItems = o.MaxItems
		}
		if set("next-path") {
			cfg.Listing.NextPath = o.NextPath
		}
		if set("token-header") {
			cfg.Listing.Header = o.TokenHeader
		}
		if set("token-param") {
			cfg.Listing.Param = o.TokenParam
		}
	}

	if set("operation") || set("method") || set("body") || set("frequency") || set("result-path") {
		if cfg.Operation == nil {
			cfg.Operation = &OperationConfig{}
		}
		if set("operation") {
			cfg.Operation.URL = o.OperationURL
		}
		if set("method") {
			cfg.Operation.Method = o.OperationVerb
		}
		if set("body") {
			cfg.Operation.Body = o.OperationBody
		}
		if set("frequency") {
			cfg.Operation.Frequency = o.Frequency
		}
		if set("result-path") {
			cfg.Operation.ResultPath = o.ResultPath
		}
	}
}
