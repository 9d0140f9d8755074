// Package config loads and validates the pipeline configuration from YAML,
// with credentials resolved from the environment rather than the file.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/ListingScout/internal/domain"
	"github.com/valpere/ListingScout/internal/utils"
)

// Config is the root configuration document.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Search   SearchConfig   `yaml:"search"`
	Scraping ScrapingConfig `yaml:"scraping"`
	Identity IdentityConfig `yaml:"identity"`
	Login    LoginConfig    `yaml:"login"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig identifies the target marketplace.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SearchConfig defines filters and pagination behavior. Durations are
// strings in time.ParseDuration syntax ("2s", "1500ms"), parsed during
// validation.
type SearchConfig struct {
	CategoryID        string  `yaml:"category_id"`
	Condition         string  `yaml:"condition"`    // "new" or "used"
	ListingType       string  `yaml:"listing_type"` // "auction", "fixed" or "best_offer"
	MinPrice          float64 `yaml:"min_price"`
	MaxPrice          float64 `yaml:"max_price"`
	ItemsPerPage      int     `yaml:"items_per_page"`
	MaxPages          int     `yaml:"max_pages"`
	RequestDelay      string  `yaml:"request_delay"`
	RequestJitter     string  `yaml:"request_jitter"`
	NavigationTimeout string  `yaml:"navigation_timeout"`

	requestDelay      time.Duration
	requestJitter     time.Duration
	navigationTimeout time.Duration
}

// RequestDelayDuration returns the parsed inter-page delay.
func (s *SearchConfig) RequestDelayDuration() time.Duration { return s.requestDelay }

// RequestJitterDuration returns the parsed delay jitter bound.
func (s *SearchConfig) RequestJitterDuration() time.Duration { return s.requestJitter }

// NavigationTimeoutDuration returns the parsed per-navigation timeout.
func (s *SearchConfig) NavigationTimeoutDuration() time.Duration { return s.navigationTimeout }

// ScrapingConfig controls the browser session.
type ScrapingConfig struct {
	Headless           bool    `yaml:"headless"`
	ProxyURL           string  `yaml:"proxy_url"`
	EvasionProbability float64 `yaml:"evasion_probability"`
	DebugScreenshots   bool    `yaml:"debug_screenshots"`
	ScreenshotDir      string  `yaml:"screenshot_dir"`
}

// IdentityConfig controls request-identity rotation.
type IdentityConfig struct {
	DefaultUserAgent string `yaml:"default_user_agent"`
	// DefaultProbability is the chance the pinned default identity is used
	// instead of a weighted random draw.
	DefaultProbability float64 `yaml:"default_probability"`
}

// LoginConfig names the environment variables carrying credentials. The
// values themselves never live in the config file.
type LoginConfig struct {
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

// StorageConfig locates the database file.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads, parses, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewError(utils.ErrCodeInvalidConfig, "failed to read config file").WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, utils.NewError(utils.ErrCodeInvalidConfig, "failed to parse config file").WithCause(err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Search.ItemsPerPage == 0 {
		c.Search.ItemsPerPage = 60
	}
	if c.Search.MaxPages == 0 {
		c.Search.MaxPages = 5
	}
	if c.Search.RequestDelay == "" {
		c.Search.RequestDelay = "2s"
	}
	if c.Search.RequestJitter == "" {
		c.Search.RequestJitter = "1500ms"
	}
	if c.Search.NavigationTimeout == "" {
		c.Search.NavigationTimeout = "30s"
	}
	if c.Scraping.EvasionProbability == 0 {
		c.Scraping.EvasionProbability = 0.7
	}
	if c.Scraping.ScreenshotDir == "" {
		c.Scraping.ScreenshotDir = "logs/screenshots"
	}
	if c.Identity.DefaultProbability == 0 {
		c.Identity.DefaultProbability = 0.3
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "listingscout.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations that cannot produce a working pipeline and
// parses the duration fields.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return utils.NewError(utils.ErrCodeInvalidConfig, "site.base_url is required")
	}

	var err error
	if c.Search.requestDelay, err = time.ParseDuration(c.Search.RequestDelay); err != nil {
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.request_delay is not a valid duration").WithCause(err)
	}
	if c.Search.requestJitter, err = time.ParseDuration(c.Search.RequestJitter); err != nil {
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.request_jitter is not a valid duration").WithCause(err)
	}
	if c.Search.navigationTimeout, err = time.ParseDuration(c.Search.NavigationTimeout); err != nil {
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.navigation_timeout is not a valid duration").WithCause(err)
	}
	if c.Search.navigationTimeout <= 0 {
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.navigation_timeout must be positive")
	}
	if c.Search.MaxPages < 1 {
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.max_pages must be at least 1")
	}
	if c.Search.MinPrice < 0 || c.Search.MaxPrice < 0 {
		return utils.NewError(utils.ErrCodeInvalidConfig, "price bounds must not be negative")
	}
	if c.Search.MaxPrice > 0 && c.Search.MinPrice > c.Search.MaxPrice {
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.min_price exceeds search.max_price")
	}
	switch c.Search.Condition {
	case "", "new", "used":
	default:
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.condition must be \"new\" or \"used\"")
	}
	switch strings.ToLower(c.Search.ListingType) {
	case "", "auction", "fixed", "buy_it_now", "bin", "best_offer":
	default:
		return utils.NewError(utils.ErrCodeInvalidConfig, "search.listing_type must be \"auction\", \"fixed\" or \"best_offer\"")
	}
	if c.Scraping.EvasionProbability < 0 || c.Scraping.EvasionProbability > 1 {
		return utils.NewError(utils.ErrCodeInvalidConfig, "scraping.evasion_probability must be in [0, 1]")
	}
	if c.Identity.DefaultProbability < 0 || c.Identity.DefaultProbability > 1 {
		return utils.NewError(utils.ErrCodeInvalidConfig, "identity.default_probability must be in [0, 1]")
	}
	return nil
}

// Credentials resolves the login username and password from the configured
// environment variables. Empty results mean the run stays unauthenticated.
func (c *Config) Credentials() (username, password string) {
	if c.Login.UsernameEnv != "" {
		username = os.Getenv(c.Login.UsernameEnv)
	}
	if c.Login.PasswordEnv != "" {
		password = os.Getenv(c.Login.PasswordEnv)
	}
	return username, password
}

// Filters maps the search section onto the domain filter set.
func (c *Config) Filters() domain.SearchFilters {
	return domain.SearchFilters{
		CategoryID:  c.Search.CategoryID,
		Condition:   c.Search.Condition,
		ListingType: c.Search.ListingType,
		MinPrice:    c.Search.MinPrice,
		MaxPrice:    c.Search.MaxPrice,
	}
}
