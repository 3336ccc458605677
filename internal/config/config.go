// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Location   LocationConfig   `mapstructure:"location"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Export     ExportConfig     `mapstructure:"export"`
	DB         DBConfig         `mapstructure:"db"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs fetching and discovery.
type CrawlerConfig struct {
	BaseURL          string   `mapstructure:"base_url"`
	UserAgent        string   `mapstructure:"user_agent"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxInFlight      int      `mapstructure:"max_in_flight"`
	DetailURLPattern string   `mapstructure:"detail_url_pattern"`
	Categories       []string `mapstructure:"categories"`
	PerCategoryMax   int      `mapstructure:"per_category_max"`
	PageCeiling      int      `mapstructure:"page_ceiling"`
	PageDelayMs      int      `mapstructure:"page_delay_ms"`
}

// ExtractConfig controls the retry-on-incomplete policy.
type ExtractConfig struct {
	RetryBudget    int `mapstructure:"retry_budget"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// LocationConfig points at the geocoding and session-binding endpoints.
type LocationConfig struct {
	GeocodeURL string  `mapstructure:"geocode_url"`
	BindURL    string  `mapstructure:"bind_url"`
	DefaultLat float64 `mapstructure:"default_lat"`
	DefaultLon float64 `mapstructure:"default_lon"`
}

// ClassifierConfig carries the category segments and keyword lists.
type ClassifierConfig struct {
	CategorySegments []string `mapstructure:"category_segments"`
	AllowKeywords    []string `mapstructure:"allow_keywords"`
	DenyKeywords     []string `mapstructure:"deny_keywords"`
}

// PipelineConfig controls batching and the run cutoff.
type PipelineConfig struct {
	TargetCount        int    `mapstructure:"target_count"`
	BatchSize          int    `mapstructure:"batch_size"`
	ExtractConcurrency int    `mapstructure:"extract_concurrency"`
	BatchPauseMs       int    `mapstructure:"batch_pause_ms"`
	Address            string `mapstructure:"address"`
}

// ExportConfig sets output file paths. Empty paths disable that sink.
type ExportConfig struct {
	CSVPath   string `mapstructure:"csv_path"`
	JSONLPath string `mapstructure:"jsonl_path"`
}

// DBConfig controls the optional Postgres sink. Empty DSN disables it.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// QueueConfig sizes the in-memory task queue.
type QueueConfig struct {
	Depth int `mapstructure:"depth"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.base_url", "https://www.gastronom-dostavka.ru")
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.max_in_flight", 8)
	v.SetDefault("crawler.detail_url_pattern", `^/goods/.+\.html$`)
	v.SetDefault("crawler.categories", []string{"/catalog/gotovaya-eda", "/catalog/kulinariya"})
	v.SetDefault("crawler.per_category_max", 200)
	v.SetDefault("crawler.page_ceiling", 60)
	v.SetDefault("crawler.page_delay_ms", 150)
	v.SetDefault("extract.retry_budget", 2)
	v.SetDefault("extract.retry_backoff_ms", 300)
	v.SetDefault("location.geocode_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("location.bind_url", "")
	v.SetDefault("location.default_lat", 55.7558)
	v.SetDefault("location.default_lon", 37.6173)
	v.SetDefault("classifier.category_segments", []string{"gotovaya-eda", "kulinariya"})
	v.SetDefault("classifier.allow_keywords", []string{
		"салат", "суп", "котлет", "запеканк", "плов", "блин", "пирог", "каша", "рагу", "гарнир",
	})
	v.SetDefault("classifier.deny_keywords", []string{
		"заморож", "polufabrikat", "полуфабрикат", "корм", "сухой", "консерв",
	})
	v.SetDefault("pipeline.target_count", 100)
	v.SetDefault("pipeline.batch_size", 12)
	v.SetDefault("pipeline.extract_concurrency", 6)
	v.SetDefault("pipeline.batch_pause_ms", 500)
	v.SetDefault("pipeline.address", "")
	v.SetDefault("export.csv_path", "data/products.csv")
	v.SetDefault("export.jsonl_path", "data/products.jsonl")
	v.SetDefault("db.table", "products")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url must be set")
	}
	if len(c.Crawler.Categories) == 0 {
		return fmt.Errorf("crawler.categories must include at least one category path")
	}
	if c.Crawler.MaxInFlight <= 0 {
		return fmt.Errorf("crawler.max_in_flight must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.PageCeiling <= 0 {
		return fmt.Errorf("crawler.page_ceiling must be > 0")
	}
	if _, err := regexp.Compile(c.Crawler.DetailURLPattern); err != nil {
		return fmt.Errorf("crawler.detail_url_pattern is not a valid regexp: %w", err)
	}
	if c.Pipeline.ExtractConcurrency <= 0 {
		return fmt.Errorf("pipeline.extract_concurrency must be > 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Extract.RetryBudget < 0 {
		return fmt.Errorf("extract.retry_budget must be >= 0")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	return nil
}

// CrawlTargets expands the category list into crawl targets with the
// shared per-category cap.
func (c Config) CrawlTargets() []catalog.CrawlTarget {
	targets := make([]catalog.CrawlTarget, 0, len(c.Crawler.Categories))
	for _, path := range c.Crawler.Categories {
		targets = append(targets, catalog.CrawlTarget{
			CategoryPath: path,
			MaxProducts:  c.Crawler.PerCategoryMax,
		})
	}
	return targets
}

// RequestTimeout converts the configured seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// PageDelay converts the configured milliseconds into a duration.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Crawler.PageDelayMs) * time.Millisecond
}

// RetryBackoff converts the configured milliseconds into a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Extract.RetryBackoffMs) * time.Millisecond
}

// BatchPause converts the configured milliseconds into a duration.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Pipeline.BatchPauseMs) * time.Millisecond
}
