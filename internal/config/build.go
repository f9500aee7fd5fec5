package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/proksi-dns/droute/internal/cache"
	"github.com/proksi-dns/droute/internal/clientpool"
	"github.com/proksi-dns/droute/internal/dnsmsg"
	"github.com/proksi-dns/droute/internal/ratelimit"
	"github.com/proksi-dns/droute/internal/router"
	"github.com/proksi-dns/droute/internal/upstream"
)

const (
	defaultTimeout      = 2 * time.Second
	defaultReapInterval = 30 * time.Second
	defaultMaxIdle      = 2 * time.Minute
)

// Build compiles a validated Config into a ready-to-serve router.Router, the
// upstream.Registry backing it (returned so the caller can log cache stats
// and close pooled clients at shutdown), and the rate limiter gating the
// server's accept loop. It is the single construction path used by both the
// server binary and -v/--validate mode (spec §6).
//
// validateOnly suppresses the per-client idle-reaper background goroutines
// (internal/clientpool's UDPClient/DoTClient): -v/--validate never sends a
// query, so there is nothing for a reaper to sweep, and the caller discards
// the registry immediately after checking the error rather than holding it
// open for a server lifetime.
func Build(cfg *Config, validateOnly bool) (*router.Router, *upstream.Registry, *ratelimit.Limiter, error) {
	registry, err := buildRegistry(cfg.Upstreams, cfg.CacheSize, validateOnly)
	if err != nil {
		return nil, nil, nil, err
	}

	table, err := buildTable(cfg.Table)
	if err != nil {
		return nil, nil, nil, err
	}

	rt, err := router.New(table, registry)
	if err != nil {
		return nil, nil, nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit.QPS, cfg.RateLimit.Burst)
	return rt, registry, limiter, nil
}

func buildRegistry(upstreams []UpstreamConfig, cacheSize int, validateOnly bool) (*upstream.Registry, error) {
	entries := make([]upstream.Entry, 0, len(upstreams))
	for _, u := range upstreams {
		entry, err := buildEntry(u, cacheSize, validateOnly)
		if err != nil {
			return nil, fmt.Errorf("config: upstream %q: %w", u.Label, err)
		}
		entries = append(entries, entry)
	}
	return upstream.NewRegistry(entries)
}

func buildEntry(u UpstreamConfig, cacheSize int, validateOnly bool) (upstream.Entry, error) {
	switch strings.ToLower(u.Kind) {
	case "hybrid":
		return upstream.Entry{Label: u.Label, Upstream: &upstream.Hybrid{Label: u.Label, Members: u.Members}}, nil
	case "leaf", "":
		client, err := buildClient(u, validateOnly)
		if err != nil {
			return upstream.Entry{}, err
		}
		timeout, err := parseDuration(u.Timeout, defaultTimeout)
		if err != nil {
			return upstream.Entry{}, err
		}
		leaf := upstream.NewLeaf(u.Label, client, cacheSize, cache.DefaultPolicy(), timeout)
		return upstream.Entry{Label: u.Label, Upstream: leaf}, nil
	default:
		return upstream.Entry{}, fmt.Errorf("unknown upstream kind %q", u.Kind)
	}
}

func buildClient(u UpstreamConfig, validateOnly bool) (upstream.Client, error) {
	poolSize := u.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	reapInterval := defaultReapInterval
	if validateOnly {
		reapInterval = 0
	}

	switch strings.ToLower(u.Transport) {
	case "udp", "":
		return clientpool.NewUDPClient(u.Address, poolSize, reapInterval, defaultMaxIdle)
	case "dot":
		serverName := u.ServerName
		if serverName == "" {
			serverName = hostOf(u.Address)
		}
		return clientpool.NewDoTClient(u.Address, serverName, poolSize, reapInterval, defaultMaxIdle)
	case "doh":
		return clientpool.NewDoHClient(u.Address, poolSize, defaultMaxIdle)
	default:
		return nil, fmt.Errorf("unknown transport %q", u.Transport)
	}
}

func hostOf(addr string) string {
	host, _, ok := strings.Cut(addr, ":")
	if !ok {
		return addr
	}
	return host
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func buildTable(rules []RuleConfig) ([]router.Rule, error) {
	table := make([]router.Rule, 0, len(rules))
	for i, rc := range rules {
		rule, err := buildRule(rc)
		if err != nil {
			return nil, fmt.Errorf("config: rule %d (%q): %w", i, rc.Name, err)
		}
		table = append(table, rule)
	}
	return table, nil
}

func buildRule(rc RuleConfig) (router.Rule, error) {
	var match router.Predicate
	if rc.Match != nil {
		m, err := buildMatch(*rc.Match)
		if err != nil {
			return router.Rule{}, err
		}
		match = m
	}

	reqActions, err := buildActions(rc.RequestActions)
	if err != nil {
		return router.Rule{}, err
	}
	respActions, err := buildActions(rc.ResponseActions)
	if err != nil {
		return router.Rule{}, err
	}

	return router.Rule{
		Name:            rc.Name,
		Match:           match,
		RequestActions:  reqActions,
		Label:           rc.Label,
		ResponseActions: respActions,
	}, nil
}

func buildMatch(mc MatchConfig) (router.Predicate, error) {
	switch strings.ToLower(mc.Type) {
	case "exact":
		return router.MatchExact(mc.Value), nil
	case "suffix":
		return router.MatchSuffix(mc.Value), nil
	case "regex":
		return router.MatchRegex(mc.Value)
	case "qtype":
		types, err := parseQTypes(mc.QTypes)
		if err != nil {
			return nil, err
		}
		return router.MatchQType(types...), nil
	case "client_prefix":
		prefixes, err := parsePrefixes(mc.Prefixes)
		if err != nil {
			return nil, err
		}
		return router.MatchClientPrefix(prefixes...), nil
	case "and":
		preds, err := buildMatches(mc.All)
		if err != nil {
			return nil, err
		}
		return router.And(preds...), nil
	case "or":
		preds, err := buildMatches(mc.Any)
		if err != nil {
			return nil, err
		}
		return router.Or(preds...), nil
	default:
		return nil, fmt.Errorf("unknown match type %q", mc.Type)
	}
}

func buildMatches(configs []MatchConfig) ([]router.Predicate, error) {
	preds := make([]router.Predicate, 0, len(configs))
	for _, c := range configs {
		p, err := buildMatch(c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func buildActions(configs []ActionConfig) ([]router.Action, error) {
	actions := make([]router.Action, 0, len(configs))
	for _, c := range configs {
		a, err := buildAction(c)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func buildAction(ac ActionConfig) (router.Action, error) {
	switch strings.ToLower(ac.Type) {
	case "block":
		return router.Block(), nil
	case "rewrite_label":
		if ac.Label == "" {
			return nil, fmt.Errorf("rewrite_label action requires a label")
		}
		return router.RewriteLabel(ac.Label), nil
	default:
		return nil, fmt.Errorf("unknown action type %q", ac.Type)
	}
}

var qtypeByName = map[string]dnsmsg.RecordType{
	"A":     dnsmsg.TypeA,
	"AAAA":  dnsmsg.TypeAAAA,
	"CNAME": dnsmsg.TypeCNAME,
	"MX":    dnsmsg.TypeMX,
	"NS":    dnsmsg.TypeNS,
	"PTR":   dnsmsg.TypePTR,
	"SOA":   dnsmsg.TypeSOA,
	"TXT":   dnsmsg.TypeTXT,
}

func parseQTypes(names []string) ([]dnsmsg.RecordType, error) {
	types := make([]dnsmsg.RecordType, 0, len(names))
	for _, name := range names {
		t, ok := qtypeByName[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("unknown record type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid client prefix %q: %w", s, err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}
