// Package dnsmsg provides DNS wire-format parsing, encoding, and message
// manipulation.
//
// Standards compliance:
//
//   - RFC 1035: Domain Names - Implementation and Specification
//   - RFC 1034: Domain Names - Concepts and Facilities
//   - RFC 2308: Negative Caching of DNS Queries (NXDOMAIN, NODATA)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records)
//
// Records are represented by a single concrete Record struct with a
// type-tagged Data field rather than one Go type per RR type; this keeps
// the codec small while still being precise about the handful of record
// types the router needs to inspect (A/AAAA for payloads, SOA for negative
// caching, CNAME/NS/PTR/MX/TXT for pass-through forwarding).
//
// All errors are wrapped with context using fmt.Errorf("...: %w", err),
// preserving the error chain while adding operational detail.
package dnsmsg

import "errors"

// ErrDNSError is the sentinel wrapped by every wire-format violation.
// Callers can test for it with errors.Is(err, dnsmsg.ErrDNSError).
var ErrDNSError = errors.New("dns wire error")
