package server

import (
	"encoding/binary"

	"github.com/proksi-dns/droute/internal/dnsmsg"
)

// truncateUDPResponse truncates resp to fit within maxSize: it sets the TC
// flag and keeps only the header and question section, dropping all answer,
// authority, and additional records so the client retries over TCP.
func truncateUDPResponse(resp []byte, maxSize int) []byte {
	if maxSize <= 0 {
		maxSize = dnsmsg.DefaultUDPPayloadSize
	}
	if len(resp) <= maxSize {
		return resp
	}
	if len(resp) < dnsmsg.HeaderSize {
		return resp
	}

	qdcount := binary.BigEndian.Uint16(resp[4:6])
	header := truncatedHeader(resp, qdcount)

	if qdcount == 0 {
		return header
	}

	questionEnd := questionSectionEnd(resp, int(qdcount))
	if questionEnd <= dnsmsg.HeaderSize || questionEnd > maxSize {
		return header
	}

	out := make([]byte, 0, questionEnd)
	out = append(out, header...)
	out = append(out, resp[dnsmsg.HeaderSize:questionEnd]...)
	return out
}

// truncatedHeader rebuilds the 12-byte header with TC set and the answer,
// authority, and additional counts zeroed.
func truncatedHeader(resp []byte, qdcount uint16) []byte {
	flags := binary.BigEndian.Uint16(resp[2:4]) | dnsmsg.TCFlag

	h := make([]byte, dnsmsg.HeaderSize)
	copy(h[0:2], resp[0:2])
	binary.BigEndian.PutUint16(h[2:4], flags)
	binary.BigEndian.PutUint16(h[4:6], qdcount)
	binary.BigEndian.PutUint16(h[6:8], 0)
	binary.BigEndian.PutUint16(h[8:10], 0)
	binary.BigEndian.PutUint16(h[10:12], 0)
	return h
}

// questionSectionEnd returns the byte offset where the question section
// ends, parsing qdcount QNAMEs (regular labels or a compression pointer).
func questionSectionEnd(msg []byte, qdcount int) int {
	pos := dnsmsg.HeaderSize
	for range qdcount {
		pos = skipName(msg, pos)
		if pos+4 > len(msg) {
			return len(msg)
		}
		pos += 4 // TYPE + CLASS
	}
	return pos
}

func skipName(msg []byte, pos int) int {
	for pos < len(msg) {
		labelLen := msg[pos]
		if labelLen == 0 {
			return pos + 1
		}
		if labelLen >= 0xC0 {
			if pos+2 > len(msg) {
				return len(msg)
			}
			return pos + 2
		}
		pos++
		if pos+int(labelLen) > len(msg) {
			return len(msg)
		}
		pos += int(labelLen)
	}
	return pos
}
