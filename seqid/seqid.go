// Package seqid implements the 16-bit wraparound sequence IDs used by the
// reliable and notify send modes, along with the signed-gap arithmetic
// needed to compare two IDs across a wraparound boundary.
package seqid

// ID is a sequence number that wraps modulo 2^16.
type ID uint16

// Next returns the sequence ID following id, wrapping from 65535 back to 0.
func (id ID) Next() ID {
	return id + 1
}

// SignedGap returns the signed distance from b to a (i.e. a - b) modulo
// 2^16, interpreted as a value in [-2^15, 2^15). This lets comparisons
// like "is a newer than b" work correctly across a sequence-ID wraparound:
// for any a, b with an actual gap smaller than 2^15 in magnitude,
// SignedGap(a, b) == -SignedGap(b, a).
func SignedGap(a, b ID) int {
	diff := int(int16(a - b))
	return diff
}

// After reports whether a is strictly newer than b, i.e. b was sent before
// a in sequence order (accounting for wraparound).
func After(a, b ID) bool {
	return SignedGap(a, b) > 0
}
