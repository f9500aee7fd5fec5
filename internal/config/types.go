// Package config loads and validates the server's configuration (spec §6):
// address, verbosity, the global rate limit, the default cache size, the
// upstream registry definition, and the rule table.
package config

// Config is the root configuration document.
type Config struct {
	Address   string           `yaml:"address"    mapstructure:"address"`
	Verbosity string           `yaml:"verbosity"   mapstructure:"verbosity"`
	RateLimit RateLimitConfig  `yaml:"ratelimit"   mapstructure:"ratelimit"`
	CacheSize int              `yaml:"cache_size"  mapstructure:"cache_size"`
	Upstreams []UpstreamConfig `yaml:"upstreams"   mapstructure:"upstreams"`
	Table     []RuleConfig     `yaml:"table"       mapstructure:"table"`
}

// RateLimitConfig configures the single global token-bucket limiter.
type RateLimitConfig struct {
	QPS   float64 `yaml:"qps"   mapstructure:"qps"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// UpstreamConfig defines one entry of the upstream registry, either a leaf
// (Kind == "leaf", with a client-pool transport) or a hybrid (Kind ==
// "hybrid", with Members naming other upstreams' labels).
type UpstreamConfig struct {
	Label   string `yaml:"label" mapstructure:"label"`
	Kind    string `yaml:"kind"  mapstructure:"kind"` // "leaf" | "hybrid"

	// Leaf fields.
	Transport  string `yaml:"transport"   mapstructure:"transport"` // "udp" | "dot" | "doh"
	Address    string `yaml:"address"     mapstructure:"address"`
	ServerName string `yaml:"server_name" mapstructure:"server_name"` // DoT SNI/verification name
	PoolSize   int    `yaml:"pool_size"   mapstructure:"pool_size"`
	Timeout    string `yaml:"timeout"     mapstructure:"timeout"` // e.g. "2s"

	// Hybrid fields.
	Members []string `yaml:"members" mapstructure:"members"`
}

// RuleConfig is the declarative form of a router.Rule: Match, actions, and
// Label are data here and compiled into router.Predicate/router.Action
// closures by Build.
type RuleConfig struct {
	Name            string         `yaml:"name"             mapstructure:"name"`
	Match           *MatchConfig   `yaml:"match"             mapstructure:"match"`
	RequestActions  []ActionConfig `yaml:"request_actions"   mapstructure:"request_actions"`
	Label           string         `yaml:"label"             mapstructure:"label"`
	ResponseActions []ActionConfig `yaml:"response_actions"  mapstructure:"response_actions"`
}

// MatchConfig is a predicate tree. Type selects which router.Match* function
// it compiles to; All/Any hold sub-predicates for "and"/"or" nodes. A nil
// MatchConfig (RuleConfig.Match == nil) compiles to the always-match default
// rule.
type MatchConfig struct {
	Type     string        `yaml:"type"     mapstructure:"type"`
	Value    string        `yaml:"value"    mapstructure:"value"`    // exact, suffix, regex
	QTypes   []string      `yaml:"qtypes"   mapstructure:"qtypes"`   // qtype
	Prefixes []string      `yaml:"prefixes" mapstructure:"prefixes"` // client_prefix
	All      []MatchConfig `yaml:"all"      mapstructure:"all"`      // and
	Any      []MatchConfig `yaml:"any"      mapstructure:"any"`      // or
}

// ActionConfig is the declarative form of a router.Action.
type ActionConfig struct {
	Type  string `yaml:"type"  mapstructure:"type"` // "block" | "rewrite_label"
	Label string `yaml:"label" mapstructure:"label"` // rewrite_label's target
}
