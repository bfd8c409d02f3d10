package ingest

import (
	"embed"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/crawler.yaml
var crawlerYAML embed.FS

// Config is the top-level crawler configuration.
type Config struct {
	Crawler CrawlerConfig `yaml:"crawler"`
	Fetch   FetchConfig   `yaml:"fetch"`
	AI      AIConfig      `yaml:"ai"`
}

// CrawlerConfig controls pagination discovery and politeness delays.
type CrawlerConfig struct {
	BaseURL        string `yaml:"base_url"`
	StartURL       string `yaml:"start_url"`
	MaxPages       int    `yaml:"max_pages"`
	ListingDelayMS int    `yaml:"listing_delay_ms"`
	DetailDelayMS  int    `yaml:"detail_delay_ms"`
}

// FetchConfig defines HTTP fetching configuration.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
	ProxyURL       string  `yaml:"proxy_url,omitempty"`
	AcceptLanguage string  `yaml:"accept_language,omitempty"`
}

// AIConfig points at the local model used for eligible-field classification.
type AIConfig struct {
	Host          string `yaml:"host,omitempty"`
	Model         string `yaml:"model,omitempty"`
	MinTextLength int    `yaml:"min_text_length,omitempty"`
}

func (c CrawlerConfig) ListingDelay() time.Duration {
	if c.ListingDelayMS <= 0 {
		return time.Second
	}
	return time.Duration(c.ListingDelayMS) * time.Millisecond
}

func (c CrawlerConfig) DetailDelay() time.Duration {
	if c.DetailDelayMS <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.DetailDelayMS) * time.Millisecond
}

// LoadConfig reads the embedded crawler.yaml, falling back to the filesystem
// path for local development overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := crawlerYAML.ReadFile("config/crawler.yaml")
	if path != "" {
		if fileData, fileErr := os.ReadFile(path); fileErr == nil {
			data, err = fileData, nil
		}
	}
	if err != nil {
		return nil, err
	}

	// Expand environment variables within the YAML content (e.g. ${OLLAMA_HOST})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Crawler.BaseURL == "" {
		cfg.Crawler.BaseURL = DefaultBaseURL
	}
	if cfg.Crawler.StartURL == "" {
		cfg.Crawler.StartURL = cfg.Crawler.BaseURL + "/scholarship"
	}
	if cfg.Crawler.MaxPages <= 0 {
		cfg.Crawler.MaxPages = 50
	}

	return &cfg, nil
}
