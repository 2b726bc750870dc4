package srt

import "fmt"

//go:generate stringer -type=ErrorKind,PacketType,ControlType,HandshakeType -linecomment -output stringers.go .

const (
	// seqBits is the width of the circular sequence number space (31 bits, top bit reserved).
	seqBits = 31
	seqMod  = 1 << seqBits
	seqMask = seqMod - 1

	// msgBits is the width of the circular message number space (26 bits).
	msgBits = 26
	msgMod  = 1 << msgBits
	msgMask = msgMod - 1
)

// SeqNr is a 31-bit circular sequence number identifying a data packet.
// Values are always held modulo 2^31; arithmetic wraps without overflowing
// into the reserved top bit. Comparisons follow RFC 1982-style serial number
// arithmetic.
type SeqNr uint32

// MsgNr is a 26-bit circular message number grouping data packets belonging
// to the same application message.
type MsgNr uint32

// TimeStamp is a connection-local microsecond clock value. It wraps naturally
// every ~71.5 minutes; all arithmetic on it must be done modulo 2^32.
type TimeStamp uint32

// Add returns s+delta wrapped into the sequence space.
func (s SeqNr) Add(delta int32) SeqNr {
	return SeqNr((uint32(s) + uint32(delta)) & seqMask)
}

// Sub returns the signed circular distance s-other, in [-2^30, 2^30).
func (s SeqNr) Sub(other SeqNr) int32 {
	diff := (int32(s) - int32(other)) << (32 - seqBits) >> (32 - seqBits)
	return diff
}

// LessThan reports whether s precedes other in the circular sequence space.
func (s SeqNr) LessThan(other SeqNr) bool { return s.Sub(other) < 0 }

// Before is an alias of LessThan kept for readability at call sites that read
// as "s happened before other".
func (s SeqNr) Before(other SeqNr) bool { return s.LessThan(other) }

// InRange reports whether s lies in the circular range [lo, hi).
func (s SeqNr) InRange(lo, hi SeqNr) bool {
	return s.Sub(lo) >= 0 && s.Sub(hi) < 0
}

func (s SeqNr) String() string { return fmt.Sprintf("%d", uint32(s)) }

// Add returns m+delta wrapped into the 26-bit message number space.
func (m MsgNr) Add(delta int32) MsgNr {
	return MsgNr((uint32(m) + uint32(delta)) & msgMask)
}

// Sub returns the signed circular distance m-other within the 26-bit space.
func (m MsgNr) Sub(other MsgNr) int32 {
	diff := (int32(m) - int32(other)) << (32 - msgBits) >> (32 - msgBits)
	return diff
}

// Sub returns the unsigned microsecond delta t-other, matching the wrapping
// behavior of a free-running uint32 clock.
func (t TimeStamp) Sub(other TimeStamp) uint32 { return uint32(t) - uint32(other) }

// Add returns t+delta microseconds, wrapped.
func (t TimeStamp) Add(delta uint32) TimeStamp { return TimeStamp(uint32(t) + delta) }
