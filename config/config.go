package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds ranker configuration. Constructors take it by value and never
// modify it after Validate.
type Config struct {
	SearchURL string `yaml:"search_url"`
	Dest      string `yaml:"dest"`
	PageSize  int    `yaml:"page_size"`
	MaxPages  int    `yaml:"max_pages"`

	ConcurrencyLimit int           `yaml:"concurrency_limit"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	BackoffFactor    float64       `yaml:"backoff_factor"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	DelayMin         time.Duration `yaml:"delay_min"`
	DelayMax         time.Duration `yaml:"delay_max"`
	RatePerSecond    float64       `yaml:"rate_per_second"`
	RateBurst        int           `yaml:"rate_burst"`
	PageCacheSize    int           `yaml:"page_cache_size"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`

	MaxKeywords      int           `yaml:"max_keywords"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	DeadlineGrace    time.Duration `yaml:"deadline_grace"`
	RelevanceFilter  bool          `yaml:"relevance_filter"`
	MinTokenLength   int           `yaml:"min_token_length"`

	OutputFile   string `yaml:"output_file"`
	OutputFormat string `yaml:"output_format"` // csv, json, or dual
	DBPath       string `yaml:"db_path"`
	MetricsAddr  string `yaml:"metrics_addr"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"` // text or json; empty picks by terminal
	Verbose      bool   `yaml:"verbose"`
}

// DefaultConfig returns the production defaults for the Wildberries search API.
func DefaultConfig() *Config {
	return &Config{
		SearchURL:        "https://search.wb.ru/exactmatch/ru/common/v5/search",
		Dest:             "-1257786",
		PageSize:         100,
		MaxPages:         5,
		ConcurrencyLimit: 5,
		RequestTimeout:   15 * time.Second,
		RetryAttempts:    3,
		BackoffFactor:    2.0,
		RetryBackoff:     time.Second,
		RetryBackoffMax:  60 * time.Second,
		DelayMin:         50 * time.Millisecond,
		DelayMax:         200 * time.Millisecond,
		RatePerSecond:    0,
		RateBurst:        1,
		PageCacheSize:    256,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		MaxKeywords:      1000,
		MaxExecutionTime: 30 * time.Minute,
		DeadlineGrace:    0,
		RelevanceFilter:  true,
		MinTokenLength:   3,
		OutputFile:       "output/ranking.csv",
		OutputFormat:     "csv",
		LogLevel:         "info",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SearchURL)
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency limit must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	if c.BackoffFactor <= 1 {
		return fmt.Errorf("backoff factor must be greater than 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("request delay min (%s) cannot exceed max (%s)", c.DelayMin, c.DelayMax)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("rate per second cannot be negative")
	}
	if c.RatePerSecond > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting is enabled")
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.MaxKeywords <= 0 {
		return fmt.Errorf("max keywords must be positive")
	}
	if c.MaxExecutionTime <= 0 {
		return fmt.Errorf("max execution time must be positive")
	}
	if c.DeadlineGrace < 0 {
		return fmt.Errorf("deadline grace cannot be negative")
	}
	if c.MinTokenLength <= 0 {
		return fmt.Errorf("min token length must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

// LoadFile overlays values from a YAML file onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
