package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Storage     StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Google      GoogleConfig   `yaml:"google" mapstructure:"google"`
	Ledger      LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Browser     BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Pipeline    PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	RegionsFile string         `yaml:"regions_file" mapstructure:"regions_file"`
	Server      ServerConfig   `yaml:"server" mapstructure:"server"`
	Log         LogConfig      `yaml:"log" mapstructure:"log"`
}

// StorageConfig locates job checkpoint directories.
type StorageConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	// PageDelayMS is the pause between result pages of one search.
	PageDelayMS int `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// LedgerConfig holds the remote job ledger endpoint. An empty URL runs jobs
// purely locally.
type LedgerConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// Timeout returns the request timeout.
func (c LedgerConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// CacheTTL returns how long a fetched remote job list stays valid.
func (c LedgerConfig) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSecs) * time.Second }

// BrowserConfig selects and tunes the page loader.
type BrowserConfig struct {
	Engine          string `yaml:"engine" mapstructure:"engine"`
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	NoSandbox       bool   `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	WaitMS          int    `yaml:"wait_ms" mapstructure:"wait_ms"`
}

// Browser engines.
const (
	EngineChrome = "chrome"
	EngineHTTP   = "http"
)

// PipelineConfig tunes stage pacing and failure handling.
type PipelineConfig struct {
	FailureThreshold int         `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ThrottleWaitSecs int         `yaml:"throttle_wait_secs" mapstructure:"throttle_wait_secs"`
	Scan             StageConfig `yaml:"scan" mapstructure:"scan"`
	Scrape           StageConfig `yaml:"scrape" mapstructure:"scrape"`
	Emails           StageConfig `yaml:"emails" mapstructure:"emails"`
}

// StageConfig paces one stage. Each item is followed by a random delay in
// [DelayMinMS, DelayMaxMS]; every PauseEvery items a longer pause follows.
// Progress is pushed to the ledger every PushEvery items.
type StageConfig struct {
	DelayMinMS   int `yaml:"delay_min_ms" mapstructure:"delay_min_ms"`
	DelayMaxMS   int `yaml:"delay_max_ms" mapstructure:"delay_max_ms"`
	PauseEvery   int `yaml:"pause_every" mapstructure:"pause_every"`
	PauseMinSecs int `yaml:"pause_min_secs" mapstructure:"pause_min_secs"`
	PauseMaxSecs int `yaml:"pause_max_secs" mapstructure:"pause_max_secs"`
	PushEvery    int `yaml:"push_every" mapstructure:"push_every"`
}

// ServerConfig configures the job-control HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional), LEADSCRAPER_* env
// vars and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("storage.root", "data")
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("google.page_delay_ms", 500)
	v.SetDefault("ledger.url", "")
	v.SetDefault("ledger.timeout_secs", 15)
	v.SetDefault("ledger.cache_ttl_secs", 5)
	v.SetDefault("browser.engine", EngineChrome)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.page_timeout_secs", 30)
	v.SetDefault("browser.wait_ms", 3000)
	v.SetDefault("pipeline.failure_threshold", 10)
	v.SetDefault("pipeline.throttle_wait_secs", 30)
	v.SetDefault("pipeline.scan.delay_min_ms", 200)
	v.SetDefault("pipeline.scan.delay_max_ms", 200)
	v.SetDefault("pipeline.scan.push_every", 5)
	v.SetDefault("pipeline.scrape.delay_min_ms", 2000)
	v.SetDefault("pipeline.scrape.delay_max_ms", 4000)
	v.SetDefault("pipeline.scrape.pause_every", 25)
	v.SetDefault("pipeline.scrape.pause_min_secs", 15)
	v.SetDefault("pipeline.scrape.pause_max_secs", 30)
	v.SetDefault("pipeline.scrape.push_every", 10)
	v.SetDefault("pipeline.emails.delay_min_ms", 1000)
	v.SetDefault("pipeline.emails.delay_max_ms", 3000)
	v.SetDefault("pipeline.emails.pause_every", 20)
	v.SetDefault("pipeline.emails.pause_min_secs", 10)
	v.SetDefault("pipeline.emails.pause_max_secs", 20)
	v.SetDefault("pipeline.emails.push_every", 10)
	v.SetDefault("regions_file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode: "run" and
// "resume" execute jobs, "serve" also listens for HTTP, "jobs" only reads
// local and remote state.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "resume", "serve":
		if c.Google.Key == "" {
			errs = append(errs, "google.key is required")
		}
		if c.Browser.Engine != EngineChrome && c.Browser.Engine != EngineHTTP {
			errs = append(errs, fmt.Sprintf("browser.engine must be %q or %q", EngineChrome, EngineHTTP))
		}
		errs = append(errs, c.Pipeline.validate()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "jobs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Storage.Root == "" {
		errs = append(errs, "storage.root is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (p PipelineConfig) validate() []string {
	var errs []string
	if p.FailureThreshold < 1 {
		errs = append(errs, "pipeline.failure_threshold must be >= 1")
	}
	if p.ThrottleWaitSecs < 0 {
		errs = append(errs, "pipeline.throttle_wait_secs must be >= 0")
	}
	for name, s := range map[string]StageConfig{"scan": p.Scan, "scrape": p.Scrape, "emails": p.Emails} {
		if s.DelayMinMS < 0 || s.DelayMaxMS < s.DelayMinMS {
			errs = append(errs, fmt.Sprintf("pipeline.%s delay range is invalid", name))
		}
		if s.PauseEvery < 0 || s.PauseMinSecs < 0 || s.PauseMaxSecs < s.PauseMinSecs {
			errs = append(errs, fmt.Sprintf("pipeline.%s pause settings are invalid", name))
		}
		if s.PushEvery < 1 {
			errs = append(errs, fmt.Sprintf("pipeline.%s.push_every must be >= 1", name))
		}
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
