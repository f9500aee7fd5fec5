// Package upstream implements the upstream registry: a validated mapping
// of string labels to upstream definitions, where an upstream is either a
// leaf (client-pool-backed resolver with a cache in front) or a hybrid (an
// ordered set of other labels, raced with first-success semantics).
package upstream

import (
	"errors"
	"fmt"
)

// Configuration errors, surfaced at registry construction and fatal to
// startup.
var (
	ErrMultipleDefinition = errors.New("label defined more than once")
	ErrMissingTag         = errors.New("label does not exist in the registry")
	ErrEmptyHybrid        = errors.New("hybrid upstream has no members")
	ErrHybridRecursion    = errors.New("hybrid upstream graph contains a cycle")
)

// Upstream errors, surfaced to the router on a per-query basis.
var (
	ErrClientError       = errors.New("upstream client error")
	ErrTimeout           = errors.New("upstream timed out")
	ErrMalformedResponse = errors.New("upstream returned a malformed response")
)

// MultipleDefinitionError reports that label was supplied more than once
// when constructing a registry.
type MultipleDefinitionError struct{ Label string }

func (e *MultipleDefinitionError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMultipleDefinition, e.Label)
}
func (e *MultipleDefinitionError) Unwrap() error { return ErrMultipleDefinition }

// MissingTagError reports that label is referenced but not defined.
type MissingTagError struct{ Label string }

func (e *MissingTagError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingTag, e.Label)
}
func (e *MissingTagError) Unwrap() error { return ErrMissingTag }

// EmptyHybridError reports that the hybrid upstream label has no members.
type EmptyHybridError struct{ Label string }

func (e *EmptyHybridError) Error() string {
	return fmt.Sprintf("%s: %q", ErrEmptyHybrid, e.Label)
}
func (e *EmptyHybridError) Unwrap() error { return ErrEmptyHybrid }

// HybridRecursionError reports that label's hybrid graph contains a cycle;
// label is the root from which the cycle was detected.
type HybridRecursionError struct{ Label string }

func (e *HybridRecursionError) Error() string {
	return fmt.Sprintf("%s: %q", ErrHybridRecursion, e.Label)
}
func (e *HybridRecursionError) Unwrap() error { return ErrHybridRecursion }

// ClientError wraps a transport-level send failure with the failing label.
type ClientError struct {
	Label  string
	Detail error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrClientError, e.Label, e.Detail)
}
func (e *ClientError) Unwrap() error { return ErrClientError }
