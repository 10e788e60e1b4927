package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// StoreConfig describes a single monitored storefront.
type StoreConfig struct {
	// Name is the internal store identifier (e.g. "figurepresso").
	Name string `mapstructure:"name" yaml:"name"`

	// DisplayName is the label shown in alert messages.
	DisplayName string `mapstructure:"display_name" yaml:"display_name"`

	// BaseURL is the storefront root URL.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Categories maps a category label to its listing path.
	Categories map[string]string `mapstructure:"categories" yaml:"categories"`

	// Enabled controls whether this store is scraped.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ScrapeConfig holds scrape-cycle pacing settings.
type ScrapeConfig struct {
	IntervalMin    int `mapstructure:"interval_min" yaml:"interval_min"`
	RequestDelayMs int `mapstructure:"request_delay_ms" yaml:"request_delay_ms"`
	MaxPages       int `mapstructure:"max_pages" yaml:"max_pages"`
}

// DispatchConfig holds alert-dispatcher tuning.
type DispatchConfig struct {
	// PollIntervalSec is how often the outbox is drained.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// StaleAfterHours is the backlog age past which the dispatcher
	// stops per-row delivery and sends one summary per subscriber.
	StaleAfterHours int `mapstructure:"stale_after_hours" yaml:"stale_after_hours"`

	// SummaryThreshold is the batch size at which a batch-summary
	// header message precedes the individual alerts.
	SummaryThreshold int `mapstructure:"summary_threshold" yaml:"summary_threshold"`

	// RetentionDays is how long sent outbox rows are kept.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// MaxPeerPrices bounds the cross-reference price block.
	MaxPeerPrices int `mapstructure:"max_peer_prices" yaml:"max_peer_prices"`

	// DashboardURL, when set, is linked from alert messages.
	DashboardURL string `mapstructure:"dashboard_url" yaml:"dashboard_url"`
}

// ExtractionConfig holds attribute-extraction settings.
type ExtractionConfig struct {
	// ConfidenceThreshold is the rules confidence below which the
	// external fallback extractor would be consulted.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

// MatchConfig holds identity-resolver settings.
type MatchConfig struct {
	// IntervalMin is how often match groups are rebuilt.
	IntervalMin int `mapstructure:"interval_min" yaml:"interval_min"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	DBPath     string           `mapstructure:"db_path" yaml:"db_path"`
	Stores     []StoreConfig    `mapstructure:"stores" yaml:"stores"`
	Scrape     ScrapeConfig     `mapstructure:"scrape" yaml:"scrape"`
	Match      MatchConfig      `mapstructure:"match" yaml:"match"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch" yaml:"dispatch"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/figtracker/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "figtracker", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DBPath: "figures.db",
		Scrape: ScrapeConfig{
			IntervalMin:    15,
			RequestDelayMs: 1500,
			MaxPages:       3,
		},
		Match: MatchConfig{
			IntervalMin: 60,
		},
		Dispatch: DispatchConfig{
			PollIntervalSec:  30,
			StaleAfterHours:  6,
			SummaryThreshold: 10,
			RetentionDays:    7,
			MaxPeerPrices:    4,
		},
		Extraction: ExtractionConfig{
			ConfidenceThreshold: 0.7,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. A missing file yields the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("db_path", "figures.db")
	v.SetDefault("scrape.interval_min", 15)
	v.SetDefault("scrape.request_delay_ms", 1500)
	v.SetDefault("scrape.max_pages", 3)
	v.SetDefault("match.interval_min", 60)
	v.SetDefault("dispatch.poll_interval_sec", 30)
	v.SetDefault("dispatch.stale_after_hours", 6)
	v.SetDefault("dispatch.summary_threshold", 10)
	v.SetDefault("dispatch.retention_days", 7)
	v.SetDefault("dispatch.max_peer_prices", 4)
	v.SetDefault("extraction.confidence_threshold", 0.7)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Viper unmarshals missing bools as false; treat unset as true.
	for i := range cfg.Stores {
		key := fmt.Sprintf("stores.%d.enabled", i)
		if !cfg.Stores[i].Enabled && !v.IsSet(key) {
			cfg.Stores[i].Enabled = true
		}
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file at path, creating
// parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("db_path", cfg.DBPath)
	v.Set("stores", cfg.Stores)
	v.Set("scrape", cfg.Scrape)
	v.Set("match", cfg.Match)
	v.Set("dispatch", cfg.Dispatch)
	v.Set("extraction", cfg.Extraction)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
