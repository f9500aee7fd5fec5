package router

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/proksi-dns/droute/internal/dnsmsg"
)

// MatchExact matches a question name exactly, case-insensitively
// (the RuleTypeExact case of feng2208-adblocker's Rule taxonomy).
func MatchExact(name string) Predicate {
	want := dnsmsg.NormalizeName(name)
	return func(s *QueryState) (bool, error) {
		q, ok := s.Request.Question()
		if !ok {
			return false, nil
		}
		return dnsmsg.NormalizeName(q.Name) == want, nil
	}
}

// MatchSuffix matches a question name equal to suffix or any subdomain of
// it (the RuleTypeDistinguish case: "||example.com^" style matching).
func MatchSuffix(suffix string) Predicate {
	want := dnsmsg.NormalizeName(suffix)
	return func(s *QueryState) (bool, error) {
		q, ok := s.Request.Question()
		if !ok {
			return false, nil
		}
		name := dnsmsg.NormalizeName(q.Name)
		return name == want || strings.HasSuffix(name, "."+want), nil
	}
}

// MatchRegex compiles pattern once and matches it against the question
// name (the RuleTypeRegex case).
func MatchRegex(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(s *QueryState) (bool, error) {
		q, ok := s.Request.Question()
		if !ok {
			return false, nil
		}
		return re.MatchString(q.Name), nil
	}, nil
}

// MatchQType matches the question's record type against any of types.
func MatchQType(types ...dnsmsg.RecordType) Predicate {
	set := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		set[uint16(t)] = struct{}{}
	}
	return func(s *QueryState) (bool, error) {
		q, ok := s.Request.Question()
		if !ok {
			return false, nil
		}
		_, match := set[q.Type]
		return match, nil
	}
}

// MatchClientPrefix matches the source address against a set of prefixes
// (the $client='...' modifier of feng2208-adblocker's Modifiers).
func MatchClientPrefix(prefixes ...netip.Prefix) Predicate {
	return func(s *QueryState) (bool, error) {
		if !s.ClientAddr.IsValid() {
			return false, nil
		}
		for _, p := range prefixes {
			if p.Contains(s.ClientAddr) {
				return true, nil
			}
		}
		return false, nil
	}
}

// And matches only if every predicate matches.
func And(predicates ...Predicate) Predicate {
	return func(s *QueryState) (bool, error) {
		for _, p := range predicates {
			ok, err := p(s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Or matches if any predicate matches.
func Or(predicates ...Predicate) Predicate {
	return func(s *QueryState) (bool, error) {
		for _, p := range predicates {
			ok, err := p(s)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}
