package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// setDefaults configures every scalar default, overlaid by file then
// environment values in Load, grounded on teacher's two-stage
// setDefaults/loadFromSource split.
func setDefaults(v *viper.Viper) {
	v.SetDefault("address", "0.0.0.0:53")
	v.SetDefault("verbosity", "info")
	v.SetDefault("ratelimit.qps", 1000.0)
	v.SetDefault("ratelimit.burst", 1000)
	v.SetDefault("cache_size", 4096)
}

// Load builds a Config from path. Scalar fields (address, verbosity,
// ratelimit, cache_size) are resolved through viper's defaults-then-file-
// then-environment precedence; upstreams and the rule table are decoded
// straight off the file's bytes with yaml.v3, since mapstructure's generic
// decoding doesn't reconstruct MatchConfig's recursive all/any nesting
// reliably the way a direct yaml.Unmarshal does (the adblocker config
// manager's own Load uses this same direct-unmarshal style for its rule
// documents).
//
// An empty path loads defaults only, with no upstreams or rules — callers
// needing a complete built-in configuration should use Default instead.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		Address:   v.GetString("address"),
		Verbosity: v.GetString("verbosity"),
		RateLimit: RateLimitConfig{
			QPS:   v.GetFloat64("ratelimit.qps"),
			Burst: v.GetInt("ratelimit.burst"),
		},
		CacheSize: v.GetInt("cache_size"),
	}

	if path != "" {
		doc, err := loadDocument(path)
		if err != nil {
			return nil, err
		}
		cfg.Upstreams = doc.Upstreams
		cfg.Table = doc.Table
	}

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// document holds the structural (non-scalar) part of the config file,
// decoded independently of viper.
type document struct {
	Upstreams []UpstreamConfig `yaml:"upstreams"`
	Table     []RuleConfig     `yaml:"table"`
}

func loadDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &doc, nil
}

// normalize applies the bounds spec.md's schema describes: address must be
// present, ratelimit values non-negative, cache_size non-negative.
func normalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Address) == "" {
		return errors.New("config: address must not be empty")
	}
	if cfg.RateLimit.QPS < 0 || cfg.RateLimit.Burst < 0 {
		return errors.New("config: ratelimit.qps and ratelimit.burst must be non-negative")
	}
	if cfg.CacheSize < 0 {
		return errors.New("config: cache_size must be non-negative")
	}
	return nil
}

// Default returns the compiled-in configuration served when no config file
// is given and ./config.yaml does not exist (spec §6): one UDP leaf
// upstream forwarding to a public resolver, and a single default rule
// routing every query to it.
func Default() *Config {
	return &Config{
		Address:   "0.0.0.0:53",
		Verbosity: "info",
		RateLimit: RateLimitConfig{QPS: 1000, Burst: 1000},
		CacheSize: 4096,
		Upstreams: []UpstreamConfig{
			{
				Label:     "default",
				Kind:      "leaf",
				Transport: "udp",
				Address:   "8.8.8.8:53",
				PoolSize:  8,
				Timeout:   "2s",
			},
		},
		Table: []RuleConfig{
			{Name: "default", Label: "default"},
		},
	}
}

// Resolve implements the CLI's -c/--config path resolution order (spec
// §6): an explicit path is used as-is (its own read errors are fatal); an
// absent path tries ./config.yaml next (an existing-but-unreadable
// ./config.yaml is also fatal); if neither exists, Resolve reports no path
// so the caller falls back to Default.
func Resolve(explicitPath string) (path string, useDefault bool, err error) {
	if strings.TrimSpace(explicitPath) != "" {
		return explicitPath, false, nil
	}
	const implicitPath = "config.yaml"
	if _, statErr := os.Stat(implicitPath); statErr == nil {
		return implicitPath, false, nil
	} else if !os.IsNotExist(statErr) {
		return "", false, fmt.Errorf("config: stat %s: %w", implicitPath, statErr)
	}
	return "", true, nil
}
