package router

import "github.com/proksi-dns/droute/internal/dnsmsg"

// Block synthesizes an NXDOMAIN response for the current question without
// ever reaching an upstream, grounded on feng2208-adblocker's filter-match
// behavior (a matched blocklist rule answers locally rather than
// forwarding). Used as a request action on a rule with no Label.
func Block() Action {
	return func(s *QueryState) error {
		q, ok := s.Request.Question()
		if !ok {
			return nil
		}
		resp := dnsmsg.Packet{
			Header: dnsmsg.Header{
				ID:    s.Request.Header.ID,
				Flags: 0x8183, // QR|RD|RA, RCODE=NXDOMAIN
			},
			Questions: []dnsmsg.Question{q},
		}
		raw, err := resp.Marshal()
		if err != nil {
			return err
		}
		s.ResponseRaw = raw
		return nil
	}
}

// RewriteLabel overrides the terminal label a rule would otherwise use,
// letting a request action pick an upstream dynamically (e.g. from a
// lookup table keyed by client prefix) instead of a rule's static Label.
func RewriteLabel(label string) Action {
	return func(s *QueryState) error {
		s.Label = label
		return nil
	}
}
