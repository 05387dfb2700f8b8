package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultPath = "config/config.yaml"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Limits      LimitsConfig      `yaml:"limits"`
	Logger      LoggerConfig      `yaml:"logger"`
	Cache       CacheConfig       `yaml:"cache"`
	PDF         PDFConfig         `yaml:"pdf"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Prefork bool   `yaml:"prefork"`
}

type LimitsConfig struct {
	MaxBodyBytes int `yaml:"max_body_bytes"`
	MaxHTMLBytes int `yaml:"max_html_bytes"`
	MaxPDFBytes  int `yaml:"max_pdf_bytes"`
	MaxStickers  int `yaml:"max_stickers"`
}

type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CacheConfig struct {
	RedisHost       string        `yaml:"redis_host"`
	RateLimitDB     int           `yaml:"redis_rate_db"`
	StoreDB         int           `yaml:"redis_store_db"`
	PDFCacheDB      int           `yaml:"redis_pdf_db"`
	PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
	PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
	StateTTL        time.Duration `yaml:"state_ttl"`
}

// PaperSize is measured in inches, the unit Chrome's print API expects.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type PDFConfig struct {
	DefaultPaper    string               `yaml:"default_paper"`
	PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
	Margin          float64              `yaml:"margin"`
	Filename        string               `yaml:"filename"`
	TimeoutSecs     int                  `yaml:"timeout_secs"`
	ChromePath      string               `yaml:"chrome_path"`
	ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
	ChromePoolSize  int                  `yaml:"chrome_pool_size"`
	UserDataDir     string               `yaml:"user_data_dir"`
}

// PricingConfig carries the material table and roll layout. Unit prices are
// per square meter.
type PricingConfig struct {
	Materials          map[string]float64 `yaml:"materials"`
	RollWidthMM        float64            `yaml:"roll_width_mm"`
	BleedMM            float64            `yaml:"bleed_mm"`
	MinPricePerSticker float64            `yaml:"min_price_per_sticker"`
	DefaultVATRate     float64            `yaml:"default_vat_rate"`
	MinOrderAmount     float64            `yaml:"min_order_amount"`
	CurrencySymbol     string             `yaml:"currency_symbol"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Postgres       PostgresConfig `yaml:"postgres"`
	ReloadInterval time.Duration  `yaml:"reload_interval"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
}

type RateLimiterConfig struct {
	Interval               time.Duration `yaml:"interval"`
	EnableUserLimiter      bool          `yaml:"enable_user_limiter"`
	UserLimit              int           `yaml:"user_limit"`
	EnableTokenRateLimiter bool          `yaml:"enable_token_rate_limiter"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultMaterials is the price list the shop launched with.
func DefaultMaterials() map[string]float64 {
	return map[string]float64{
		"unspecified":   0,
		"print_only":    460,
		"cut_contour":   560,
		"uv_lamination": 800,
		"chromadeck":    2300,
		"poster":        400,
		"iron_on":       970,
	}
}

// Default returns a configuration that runs locally without Redis or Postgres.
func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":8080"
	cfg.Limits.MaxBodyBytes = 1024 * 1024
	cfg.Limits.MaxHTMLBytes = 512 * 1024
	cfg.Limits.MaxPDFBytes = 10 * 1024 * 1024
	cfg.Limits.MaxStickers = 50
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7
	cfg.Cache.PDFCacheTTL = time.Minute
	cfg.Cache.StateTTL = 30 * 24 * time.Hour
	cfg.PDF.DefaultPaper = "A4"
	cfg.PDF.Margin = 0.4
	cfg.PDF.Filename = "StickerKing-Quote.pdf"
	cfg.PDF.TimeoutSecs = 15
	cfg.Pricing.RollWidthMM = 650
	cfg.Pricing.BleedMM = 1
	cfg.Pricing.MinPricePerSticker = 0.20
	cfg.Pricing.DefaultVATRate = 15
	cfg.Pricing.MinOrderAmount = 100
	cfg.Pricing.CurrencySymbol = "R"
	cfg.Auth.ReloadInterval = time.Minute
	cfg.Auth.ConnectTimeout = 30 * time.Second
	cfg.RateLimiter.Interval = time.Minute
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// Load reads the file named by CONFIG_PATH, or config/config.yaml.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the config at path. It panics when the file
// cannot be read or holds invalid values; there is nothing sensible to run.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}
	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %s: %v", path, err))
	}
	return cfg
}

func (c *Config) applyFallbacks() {
	if len(c.Pricing.Materials) == 0 {
		c.Pricing.Materials = DefaultMaterials()
	}
	if len(c.PDF.PaperSizes) == 0 {
		c.PDF.PaperSizes = map[string]PaperSize{
			"A4":     {Width: 8.27, Height: 11.69},
			"LETTER": {Width: 8.5, Height: 11},
		}
	}
	upper := make(map[string]PaperSize, len(c.PDF.PaperSizes))
	for k, v := range c.PDF.PaperSizes {
		upper[strings.ToUpper(k)] = v
	}
	c.PDF.PaperSizes = upper
	c.PDF.DefaultPaper = strings.ToUpper(c.PDF.DefaultPaper)
	if c.PDF.ChromePath == "" {
		c.PDF.ChromePath = os.Getenv("CHROME_BIN")
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the values that would otherwise fail deep inside a request.
func (c Config) Validate() error {
	p := c.Pricing
	if p.RollWidthMM <= 0 {
		return fmt.Errorf("pricing.roll_width_mm must be positive")
	}
	if p.BleedMM < 0 {
		return fmt.Errorf("pricing.bleed_mm must not be negative")
	}
	if p.MinPricePerSticker < 0 {
		return fmt.Errorf("pricing.min_price_per_sticker must not be negative")
	}
	if p.DefaultVATRate < 0 {
		return fmt.Errorf("pricing.default_vat_rate must not be negative")
	}
	if p.MinOrderAmount < 0 {
		return fmt.Errorf("pricing.min_order_amount must not be negative")
	}
	for key, price := range p.Materials {
		if key == "" {
			return fmt.Errorf("pricing.materials has an empty key")
		}
		if price < 0 {
			return fmt.Errorf("pricing.materials.%s must not be negative", key)
		}
	}
	if c.Limits.MaxStickers <= 0 {
		return fmt.Errorf("limits.max_stickers must be positive")
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return fmt.Errorf("limits.max_body_bytes must be positive")
	}
	if c.PDF.TimeoutSecs <= 0 {
		return fmt.Errorf("pdf.timeout_secs must be positive")
	}
	if c.PDF.ChromePoolSize < 0 {
		return fmt.Errorf("pdf.chrome_pool_size must not be negative")
	}
	if c.PDF.Margin < 0 || c.PDF.Margin > 2 {
		return fmt.Errorf("pdf.margin must be between 0 and 2 inches")
	}
	if c.Cache.StateTTL < 0 {
		return fmt.Errorf("cache.state_ttl must not be negative")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if (c.RateLimiter.EnableUserLimiter || c.RateLimiter.EnableTokenRateLimiter) && c.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive when a limiter is enabled")
	}
	if c.Auth.Enabled {
		if c.Auth.Postgres.Host == "" {
			return fmt.Errorf("auth.postgres.host is required when auth is enabled")
		}
		if c.Auth.ReloadInterval <= 0 {
			return fmt.Errorf("auth.reload_interval must be positive")
		}
	}
	return nil
}
