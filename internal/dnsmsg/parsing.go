package dnsmsg

import (
	"errors"
	"fmt"

	"github.com/proksi-dns/droute/internal/helpers"
)

// Limits on incoming messages, to bound resource use against hostile input.
const (
	MaxIncomingDNSMessageSize = 4096
	MaxQuestions              = 4
	MaxRRPerSection           = 100
	MaxTotalRR                = 200
)

// ParseRequestBounded parses an inbound query with bounds and sanity
// checking beyond what ParsePacket does on its own: it rejects oversized
// messages, response packets (QR set), unsupported opcodes, and section
// counts outside the limits above.
func ParseRequestBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, errors.New("dns message too large")
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}

	if isResponse(p.Header.Flags) {
		return Packet{}, errors.New("invalid packet: QR flag set (response packet received)")
	}

	if opcode := extractOpcode(p.Header.Flags); opcode != 0 {
		return Packet{}, fmt.Errorf("unsupported OpCode: %d", opcode)
	}

	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}

	return p, nil
}

func isResponse(flags uint16) bool {
	return (flags & QRFlag) != 0
}

func extractOpcode(flags uint16) uint16 {
	return (flags & OpcodeMask) >> 11
}

func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd > MaxQuestions {
		return errors.New("too many questions")
	}
	if qd != 1 {
		return errors.New("unsupported question count")
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return errors.New("too many resource records")
	}
	if (an + ns + ar) > MaxTotalRR {
		return errors.New("too many total resource records")
	}
	return nil
}

// BuildErrorResponse constructs an error response for req: it preserves the
// transaction id, RD flag, and question section, sets QR, and carries the
// given rcode with empty answer/authority/additional sections.
func BuildErrorResponse(req Packet, rcode uint16) Packet {
	flags := buildResponseFlags(req.Header.Flags, rcode)

	h := Header{
		ID:      req.Header.ID,
		Flags:   flags,
		QDCount: helpers.ClampIntToUint16(len(req.Questions)),
	}
	return Packet{Header: h, Questions: req.Questions}
}

func buildResponseFlags(reqFlags uint16, rcode uint16) uint16 {
	flags := QRFlag
	flags |= reqFlags & RDFlag
	rcode &= RCodeMask
	flags = (flags &^ RCodeMask) | rcode
	return flags
}
