package dnsmsg

import "encoding/binary"

// PatchTransactionID replaces the transaction id (the first two bytes of
// any wire-format DNS message) without a full parse/marshal round trip.
// A leaf uses it to stamp the requesting client's id onto an upstream
// response forwarded on a cache miss; cache hits re-stamp the parsed
// template (stored with id 0) via Packet.WithTransactionID instead.
func PatchTransactionID(msg []byte, txid uint16) []byte {
	if len(msg) < 2 {
		return msg
	}
	if msg[0] == byte(txid>>8) && msg[1] == byte(txid) {
		return msg
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	out[0] = byte(txid >> 8)
	out[1] = byte(txid)
	return out
}

// IsTruncated reports whether the TC flag is set on a wire-format message.
func IsTruncated(msg []byte) bool {
	if len(msg) < 4 {
		return false
	}
	flags := binary.BigEndian.Uint16(msg[2:4])
	return flags&TCFlag != 0
}
