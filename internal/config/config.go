package config

// #region imports
import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"recordcheck/internal/diffdetect"
	"recordcheck/internal/fetch"
	"recordcheck/internal/orchestrator"
	"recordcheck/internal/sampling"
)

// #endregion

// #region config
// Config is the full runtime configuration: batch knobs, sampling tiers,
// diff thresholds, cache and fetch parameters, and per-validator enable
// flags (enable_<name> keys in the YAML file).
type Config struct {
	DBPath   string `yaml:"db_path"`
	CacheDir string `yaml:"cache_dir"`

	SampleRate            float64 `yaml:"sample_rate"`
	EnsureTierCoverage    bool    `yaml:"ensure_tier_coverage"`
	NetworkTimeoutSeconds int     `yaml:"network_timeout_seconds"`
	CacheTTLDays          int     `yaml:"cache_ttl_days"`
	MaxCachedContentChars int     `yaml:"max_cached_content_chars"`
	ErrorFlagThreshold    int     `yaml:"error_flag_threshold"`
	WarningFlagThreshold  int     `yaml:"warning_flag_threshold"`

	MaxFetchAttempts      int      `yaml:"max_fetch_attempts"`
	RetryBaseDelaySeconds int      `yaml:"retry_base_delay_seconds"`
	TrustedDomains        []string `yaml:"trusted_domains"`
	CostPerFetchUSD       float64  `yaml:"cost_per_fetch_usd"`
	DeterministicWorkers  int      `yaml:"deterministic_workers"`

	TierField string                `yaml:"tier_field"`
	Buckets   []sampling.TierBucket `yaml:"tier_buckets"`

	Diff diffdetect.Config `yaml:"diff"`

	// Enabled holds per-validator enable flags parsed from enable_<name>
	// YAML keys. Absent names default to enabled.
	Enabled map[string]bool `yaml:"-"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		DBPath:                "recordcheck.db",
		CacheDir:              "url_cache",
		SampleRate:            0.1,
		EnsureTierCoverage:    true,
		NetworkTimeoutSeconds: 20,
		CacheTTLDays:          30,
		MaxCachedContentChars: 20000,
		ErrorFlagThreshold:    1,
		WarningFlagThreshold:  3,
		MaxFetchAttempts:      3,
		RetryBaseDelaySeconds: 5,
		CostPerFetchUSD:       0.002,
		DeterministicWorkers:  4,
		TierField:             "score",
		Buckets: []sampling.TierBucket{
			{Name: "low", Min: 0, Max: 40},
			{Name: "mid", Min: 40, Max: 70},
			{Name: "high", Min: 70, Max: 101},
		},
		Diff:    diffdetect.DefaultConfig(),
		Enabled: map[string]bool{},
	}
}

// #endregion config

// #region load
// Load builds the configuration: defaults, then the YAML file when path
// is non-empty, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := parseEnableFlags(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// parseEnableFlags extracts enable_<name> boolean keys from the raw
// YAML document, since validator names are not known statically.
func parseEnableFlags(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config keys: %w", err)
	}
	for k, v := range raw {
		name, ok := strings.CutPrefix(k, "enable_")
		if !ok {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("config key %s: expected bool", k)
		}
		cfg.Enabled[name] = b
	}
	return nil
}

// applyEnv overlays RECORDCHECK_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RECORDCHECK_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RECORDCHECK_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("RECORDCHECK_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRate = f
		}
	}
	if v := os.Getenv("RECORDCHECK_CACHE_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLDays = n
		}
	}
	if v := os.Getenv("RECORDCHECK_NETWORK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NetworkTimeoutSeconds = n
		}
	}
}

// #endregion load

// #region derived
// SamplingConfig projects the sampling engine's view of the config.
func (c Config) SamplingConfig() sampling.Config {
	return sampling.Config{
		SampleRate:         c.SampleRate,
		TierField:          c.TierField,
		Buckets:            c.Buckets,
		EnsureTierCoverage: c.EnsureTierCoverage,
	}
}

// FetchConfig projects the fetch wrapper's view of the config.
func (c Config) FetchConfig() fetch.Config {
	return fetch.Config{
		Timeout:         time.Duration(c.NetworkTimeoutSeconds) * time.Second,
		MaxContentChars: c.MaxCachedContentChars,
		TrustedDomains:  c.TrustedDomains,
		MaxAttempts:     c.MaxFetchAttempts,
		BaseDelay:       time.Duration(c.RetryBaseDelaySeconds) * time.Second,
	}
}

// OrchestratorConfig projects the orchestrator's view of the config.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ErrorFlagThreshold:   c.ErrorFlagThreshold,
		WarningFlagThreshold: c.WarningFlagThreshold,
		DeterministicWorkers: c.DeterministicWorkers,
	}
}

// #endregion derived
