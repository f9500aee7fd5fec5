package dnsmsg

import "fmt"

// Packet is a complete DNS message (RFC 1035 Section 4): a header plus the
// question, answer, authority, and additional sections.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet to wire format (big-endian).
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
		ANCount: uint16(len(p.Answers)),
		NSCount: uint16(len(p.Authorities)),
		ARCount: uint16(len(p.Additionals)),
	}

	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	estimatedSize := HeaderSize + len(p.Questions)*50 + (len(p.Answers)+len(p.Authorities)+len(p.Additionals))*100
	out := make([]byte, 0, estimatedSize)
	out = append(out, hb...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, rr := range p.Answers {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, rr := range p.Authorities {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, rr := range p.Additionals {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// ParsePacket decodes msg into a Packet. Section counts from the header are
// capped at the bounded-parse limits for the purpose of slice preallocation
// only; callers that need hostile-input protection should use
// ParseRequestBounded instead.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	limitCount := func(count uint16, limit int) int {
		if int(count) > limit {
			return limit
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}
	p.Answers = make([]Record, 0, limitCount(h.ANCount, MaxRRPerSection))
	for range h.ANCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Answers = append(p.Answers, rr)
	}
	p.Authorities = make([]Record, 0, limitCount(h.NSCount, MaxRRPerSection))
	for range h.NSCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Authorities = append(p.Authorities, rr)
	}
	p.Additionals = make([]Record, 0, limitCount(h.ARCount, MaxRRPerSection))
	for range h.ARCount {
		rr, err := ParseRecord(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Additionals = append(p.Additionals, rr)
	}
	return p, nil
}

// Fingerprint is the (lowercased name, type, class) tuple identifying the
// packet's question for cache lookups. QuestionFingerprint normalizes the
// name, so packets built in code (not via ParseQuestion) fingerprint the same.
type Fingerprint struct {
	Name  string
	Type  uint16
	Class uint16
}

// Question returns the packet's sole question and whether one is present.
// Multi-question packets are rejected earlier by ParseRequestBounded, so
// callers downstream of it can treat this as authoritative.
func (p Packet) Question() (Question, bool) {
	if len(p.Questions) == 0 {
		return Question{}, false
	}
	return p.Questions[0], true
}

// QuestionFingerprint returns the cache fingerprint for the packet's
// question, or the zero value and false if it has none.
func (p Packet) QuestionFingerprint() (Fingerprint, bool) {
	q, ok := p.Question()
	if !ok {
		return Fingerprint{}, false
	}
	return Fingerprint{Name: NormalizeName(q.Name), Type: q.Type, Class: q.Class}, true
}

// MinAnswerTTL returns the smallest TTL across the answer section, and
// false if the answer section is empty. Authority/additional TTLs are not
// considered: RFC 2308 negative caching (no answers) has its own path via
// SOAMinimum on the authority section's SOA record.
func (p Packet) MinAnswerTTL() (uint32, bool) {
	if len(p.Answers) == 0 {
		return 0, false
	}
	min := p.Answers[0].TTL
	for _, rr := range p.Answers[1:] {
		if rr.TTL < min {
			min = rr.TTL
		}
	}
	return min, true
}

// SOAMinimum searches the authority section for an SOA record and returns
// its MINIMUM field, used as the RFC 2308 negative-caching TTL ceiling.
func (p Packet) SOAMinimum() (uint32, bool) {
	for _, rr := range p.Authorities {
		if min, ok := rr.SOAMinimum(); ok {
			return min, true
		}
	}
	return 0, false
}

// WithTransactionID returns a copy of p with the header ID replaced.
func (p Packet) WithTransactionID(id uint16) Packet {
	p.Header.ID = id
	return p
}

// WithQuestions returns a copy of p with its question section replaced,
// used to restore the client's original question onto a cached response
// template (the cached wire bytes carry whichever question matched the
// fingerprint, which is already byte-identical up to casing).
func (p Packet) WithQuestions(qs []Question) Packet {
	p.Questions = qs
	return p
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s/%d/%d", f.Name, f.Type, f.Class)
}
