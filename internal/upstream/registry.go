package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/proksi-dns/droute/internal/dnsmsg"
)

// Upstream is implemented by *Leaf and *Hybrid. It carries no methods
// beyond the marker: dispatch is by type switch in Registry.Resolve, since
// a Leaf's resolution and a Hybrid's need genuinely different signatures
// internally (a Leaf owns a client and cache; a Hybrid only holds labels).
type Upstream interface {
	isUpstream()
}

// Entry pairs a label with its upstream definition, mirroring the
// (label, definition) list NewRegistry is built from — a plain map would
// lose the ability to detect a duplicate label, since map construction
// silently overwrites.
type Entry struct {
	Label    string
	Upstream Upstream
}

// Registry is a validated mapping of label to upstream, built once at
// startup and read-only thereafter (spec §4.1/§5).
type Registry struct {
	upstreams map[string]Upstream
}

// NewRegistry validates and builds a registry from entries. It fails with
// MultipleDefinitionError if two entries share a label, MissingTagError if
// a hybrid references an unknown label, EmptyHybridError if a hybrid has
// no members, and HybridRecursionError if the hybrid-edge graph has a
// cycle.
func NewRegistry(entries []Entry) (*Registry, error) {
	m := make(map[string]Upstream, len(entries))
	for _, e := range entries {
		if _, dup := m[e.Label]; dup {
			return nil, &MultipleDefinitionError{Label: e.Label}
		}
		m[e.Label] = e.Upstream
	}

	r := &Registry{upstreams: m}
	if err := r.Check(); err != nil {
		return nil, err
	}
	return r, nil
}

// Check validates the hybrid-edge graph from every label as a root,
// performing a depth-first traversal with a per-root visited set:
// revisiting an already-visited label on the same root signals recursion.
// Leaf upstreams terminate traversal.
func (r *Registry) Check() error {
	for label := range r.upstreams {
		if err := r.traverse(make(map[string]struct{}), label); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) traverse(visited map[string]struct{}, label string) error {
	if _, seen := visited[label]; seen {
		return &HybridRecursionError{Label: label}
	}
	visited[label] = struct{}{}

	u, ok := r.upstreams[label]
	if !ok {
		return &MissingTagError{Label: label}
	}

	h, ok := u.(*Hybrid)
	if !ok {
		return nil
	}
	if len(h.Members) == 0 {
		return &EmptyHybridError{Label: label}
	}
	for _, member := range h.Members {
		if err := r.traverse(visited, member); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether label is defined in the registry.
func (r *Registry) Exists(label string) bool {
	_, ok := r.upstreams[label]
	return ok
}

// LogCacheStats emits one info line per leaf's cache hit/miss/negative-hit
// counters. Intended for the shutdown path, to surface cache effectiveness
// without standing up a metrics endpoint (spec.md names no observability
// surface beyond logging).
func (r *Registry) LogCacheStats(logger *slog.Logger) {
	for label, u := range r.upstreams {
		leaf, ok := u.(*Leaf)
		if !ok {
			continue
		}
		hits, misses, negativeHits := leaf.Cache.Stats()
		logger.Info("cache stats", "label", label, "hits", hits, "misses", misses, "negative_hits", negativeHits)
	}
}

// Close releases every leaf's pooled client (stopping its idle reaper and
// closing its pooled connections), joining any errors encountered. Hybrids
// own no client and are skipped.
func (r *Registry) Close() error {
	var errs []error
	for _, u := range r.upstreams {
		leaf, ok := u.(*Leaf)
		if !ok {
			continue
		}
		closer, ok := leaf.Client.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resolve dispatches to the named upstream (spec §4.1's resolve contract).
// It is reentrant and safe to call concurrently for different or
// identical labels.
func (r *Registry) Resolve(ctx context.Context, label string, req dnsmsg.Packet, reqBytes []byte) ([]byte, error) {
	u, ok := r.upstreams[label]
	if !ok {
		return nil, &MissingTagError{Label: label}
	}

	switch t := u.(type) {
	case *Leaf:
		return t.Resolve(ctx, req, reqBytes)
	case *Hybrid:
		return r.resolveHybrid(ctx, t, req, reqBytes)
	default:
		return nil, &MissingTagError{Label: label}
	}
}

// resolveHybrid races resolve(mᵢ, msg) for every member concurrently and
// returns the first success, regardless of member order; if every member
// fails, it returns the last member's error in declared member order (not
// completion order), per spec §4.1's tie-break rule.
func (r *Registry) resolveHybrid(ctx context.Context, h *Hybrid, req dnsmsg.Packet, reqBytes []byte) ([]byte, error) {
	n := len(h.Members)

	type result struct {
		idx  int
		resp []byte
		err  error
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan result, n)
	for i, member := range h.Members {
		go func(i int, label string) {
			resp, err := r.Resolve(raceCtx, label, req, reqBytes)
			ch <- result{idx: i, resp: resp, err: err}
		}(i, member)
	}

	errs := make([]error, n)
	for received := 0; received < n; received++ {
		res := <-ch
		if res.err == nil {
			return res.resp, nil
		}
		errs[res.idx] = res.err
	}
	return nil, errs[n-1]
}
