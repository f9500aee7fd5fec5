// Package router implements the rule table: an ordered list of
// (predicate, actions, terminal-upstream-or-fallthrough) entries evaluated
// first-match-wins against each query, delegating the actual resolution to
// an upstream registry (spec §4.4).
package router

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/proksi-dns/droute/internal/dnsmsg"
	"github.com/proksi-dns/droute/internal/upstream"
)

// ErrMissingTag is returned when a rule's terminal action names a label the
// registry does not define.
var ErrMissingTag = errors.New("router: rule references a label not present in the registry")

// ErrNoDefaultRule is returned when a table has no unconditional terminal
// rule; every table needs one so evaluation always terminates.
var ErrNoDefaultRule = errors.New("router: rule table has no default terminal rule")

// RouterError wraps a predicate or action failure encountered while
// evaluating a specific rule; these are fatal for the query (spec §4.4).
type RouterError struct {
	RuleIndex int
	Err       error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router: rule %d: %v", e.RuleIndex, e.Err)
}
func (e *RouterError) Unwrap() error { return e.Err }

// QueryState is the mutable scratch record predicates read and actions
// mutate while a query is evaluated against the table, grounded on the
// teacher resolver chain's Result/Packet passing but expanded into a
// single carrier so actions can rewrite the query in place between rules.
type QueryState struct {
	Request     dnsmsg.Packet
	RequestRaw  []byte
	ClientAddr  netip.Addr
	Label       string // terminal upstream label once a rule matches
	ResponseRaw []byte // populated after registry.Resolve
}

// Predicate reports whether a rule matches the current state.
type Predicate func(*QueryState) (bool, error)

// Action mutates state as a side effect of a matching rule. Actions run
// before resolution (request-side) or after (response-side), distinguished
// by which list a Rule places them in.
type Action func(*QueryState) error

// Rule is one entry of the table: if Match is nil it always matches
// (used for the default rule). A non-empty Label terminates evaluation;
// an empty Label falls through to the next rule after running Actions.
type Rule struct {
	Name            string
	Match           Predicate
	RequestActions  []Action
	Label           string
	ResponseActions []Action
}

// Router pairs a validated rule table with the upstream registry it
// dispatches to.
type Router struct {
	table    []Rule
	registry *upstream.Registry
}

// New validates table against registry (every referenced label must
// exist, and a default unconditional terminal rule must be present) and
// constructs a Router.
func New(table []Rule, registry *upstream.Registry) (*Router, error) {
	if len(table) == 0 {
		return nil, ErrNoDefaultRule
	}
	hasDefault := false
	for _, r := range table {
		if r.Label == "" {
			continue
		}
		if !registry.Exists(r.Label) {
			return nil, fmt.Errorf("%w: %q (rule %q)", ErrMissingTag, r.Label, r.Name)
		}
		if r.Match == nil {
			hasDefault = true
		}
	}
	if !hasDefault {
		return nil, ErrNoDefaultRule
	}
	return &Router{table: table, registry: registry}, nil
}

// Route evaluates the table against req in order, runs the matched rule's
// request actions, resolves via the registry, runs the matched rule's
// response actions, and returns the final wire-format response.
func (r *Router) Route(ctx context.Context, req dnsmsg.Packet, reqBytes []byte, clientAddr netip.Addr) ([]byte, error) {
	state := &QueryState{Request: req, RequestRaw: reqBytes, ClientAddr: clientAddr}

	for i, rule := range r.table {
		matched, err := evalMatch(rule, state)
		if err != nil {
			return nil, &RouterError{RuleIndex: i, Err: err}
		}
		if !matched {
			continue
		}

		state.Label = rule.Label
		for _, action := range rule.RequestActions {
			if err := action(state); err != nil {
				return nil, &RouterError{RuleIndex: i, Err: err}
			}
		}

		if state.ResponseRaw != nil {
			// A request action (e.g. a synthesized block response) already
			// produced the final answer; no upstream call is needed.
			return state.ResponseRaw, nil
		}

		if state.Label == "" {
			continue // fall through to the next rule
		}

		resp, err := r.registry.Resolve(ctx, state.Label, state.Request, state.RequestRaw)
		if err != nil {
			return nil, err
		}
		state.ResponseRaw = resp

		for _, action := range rule.ResponseActions {
			if err := action(state); err != nil {
				return nil, &RouterError{RuleIndex: i, Err: err}
			}
		}
		return state.ResponseRaw, nil
	}

	return nil, ErrNoDefaultRule
}

func evalMatch(rule Rule, state *QueryState) (bool, error) {
	if rule.Match == nil {
		return true, nil
	}
	return rule.Match(state)
}
