package srt

// NAK loss-list codec. A lost sequence number is reported either as a single
// 32-bit word with its high bit clear, or — for a contiguous run — as two
// 32-bit words where the first carries the high bit set (marking it as a
// range start) and the second is the plain range end. This mirrors the
// original's CPacket::packData loss-list compression (a lone bit-31 flag
// distinguishing a range pair from a singleton) rather than the fixed
// begin/end pair this package used before.
const nakRangeBit uint32 = 1 << 31

// appendNAKRange appends one loss-list entry for the inclusive range
// [begin,end] to dst, using the single-word form when begin==end.
func appendNAKRange(dst []byte, begin, end SeqNr) []byte {
	if begin == end {
		var w [4]byte
		putSeq(w[:], begin) // SeqNr is always <=31 bits, so the high bit is clear
		return append(dst, w[:]...)
	}
	var b, e [4]byte
	putSeq(b[:], begin)
	b[0] |= 0x80
	putSeq(e[:], end)
	dst = append(dst, b[:]...)
	return append(dst, e[:]...)
}

// decodeNAKRanges parses a NAK CIF into its loss-list entries, expanding each
// singleton to a one-element [begin,end] range for uniform handling by the
// caller.
func decodeNAKRanges(cif []byte) ([][2]SeqNr, error) {
	var out [][2]SeqNr
	i := 0
	for i+4 <= len(cif) {
		word := uint32(getSeq(cif[i:]))
		i += 4
		begin := SeqNr(word &^ nakRangeBit)
		if word&nakRangeBit == 0 {
			out = append(out, [2]SeqNr{begin, begin})
			continue
		}
		if i+4 > len(cif) {
			return nil, newErr(ErrKindPacketFormat, "NAK range missing end word")
		}
		end := getSeq(cif[i:])
		i += 4
		out = append(out, [2]SeqNr{begin, end})
	}
	return out, nil
}
