package srt

import "encoding/binary"

// HandshakeType is the req_type field of a handshake CIF. Values reproduce
// the wire constants exactly (urq_wave_a_hand/induction/conclusion/agreement/
// done), including the high values used for the back half of the handshake.
type HandshakeType uint32

const (
	HandshakeWaveAHand  HandshakeType = 0x00000000
	HandshakeInduction  HandshakeType = 0x00000001
	HandshakeAgreement  HandshakeType = 0xFFFFFFFE
	HandshakeConclusion HandshakeType = 0xFFFFFFFF
	HandshakeDone       HandshakeType = 0xFFFFFFFD
)

// IsHandshakeType reports whether v is one of the known request types or a
// negative rejection code (any value not matching one of the five known
// constants and without the top bit set is a packet-format error).
func IsHandshakeType(v uint32) bool {
	switch HandshakeType(v) {
	case HandshakeWaveAHand, HandshakeInduction, HandshakeAgreement,
		HandshakeConclusion, HandshakeDone:
		return true
	}
	// Any other value with the top bit set is a rejection code
	// (RDR_* family); anything else is malformed.
	return v>>31 != 0
}

const handshakeCIFSize = 48

// SRT version advertised by this engine. 0x010500 style encoding: major,
// minor, patch packed one byte each, matching the original's version scheme.
const srtVersion = 0x010500

// ExtMagic is the extension_field value a listener sends back on its
// induction response, signalling SRT (as opposed to legacy UDT) handshakes.
const ExtMagic = 0x4A17

// HandshakeContext is the decoded 48-byte handshake CIF plus its trailing
// extension TLVs.
type HandshakeContext struct {
	Version       uint32
	Encryption    uint16
	ExtensionField uint16
	InitialSeq    SeqNr
	MaxMSS        uint32
	WindowSize    uint32
	ReqType       HandshakeType
	SocketID      uint32
	Cookie        uint32
	PeerAddr      [16]byte // IPv4 in the first four bytes, zero-filled tail for v4

	HSReq     *HSExtension
	HSRsp     *HSExtension
	StreamID  string
	HasKMREQ  bool // presence alone is a reject condition
}

// HSExtension is the decoded value of an HSREQ or HSRSP extension block.
type HSExtension struct {
	Version          uint32
	Flags            uint32
	ReceiverTSBPDDelayMs uint16
	SenderTSBPDDelayMs   uint16
}

// negotiateTSBPDDelay resolves the two sides' advertised TSBPD delays into
// the single value the receiver will apply, following the conclusion
// handshake's rule that the larger of the two wins, expressed in
// microseconds for direct use against the engine's TimeStamp clock.
func negotiateTSBPDDelay(localMs, remoteMs uint16) uint32 {
	delay := localMs
	if remoteMs > delay {
		delay = remoteMs
	}
	return uint32(delay) * 1000
}

// HSREQ/HSRSP flag bits.
const (
	HSFlagTSBPDSND     uint32 = 1 << 0
	HSFlagTSBPDRCV     uint32 = 1 << 1
	HSFlagCrypt        uint32 = 1 << 2
	HSFlagTLPktDrop    uint32 = 1 << 3
	HSFlagPeriodicNAK  uint32 = 1 << 4
	HSFlagRexmitFlag   uint32 = 1 << 5
	HSFlagStream       uint32 = 1 << 6
	HSFlagPacketFilter uint32 = 1 << 7
)

// Extension TLV type codes.
type extType uint16

const (
	extHSREQ      extType = 1
	extHSRSP      extType = 2
	extKMREQ      extType = 3
	extKMRSP      extType = 4
	extSID        extType = 5
	extCongestion extType = 6
	extFilter     extType = 7
	extGroup      extType = 8
)

// DecodeHandshake parses the 48-byte fixed CIF and walks any trailing
// extension TLVs. Unknown TLV types are skipped per spec; a KMREQ/KMRSP TLV
// sets HasKMREQ so the caller can reject the handshake.
func DecodeHandshake(buf []byte) (*HandshakeContext, error) {
	if len(buf) < handshakeCIFSize {
		return nil, newErr(ErrKindPacketFormat, "handshake CIF")
	}
	h := &HandshakeContext{
		Version:        binary.BigEndian.Uint32(buf[0:4]),
		Encryption:     binary.BigEndian.Uint16(buf[4:6]),
		ExtensionField: binary.BigEndian.Uint16(buf[6:8]),
		InitialSeq:     SeqNr(binary.BigEndian.Uint32(buf[8:12]) & seqMask),
		MaxMSS:         binary.BigEndian.Uint32(buf[12:16]),
		WindowSize:     binary.BigEndian.Uint32(buf[16:20]),
		ReqType:        HandshakeType(binary.BigEndian.Uint32(buf[20:24])),
		SocketID:       binary.BigEndian.Uint32(buf[24:28]),
		Cookie:         binary.BigEndian.Uint32(buf[28:32]),
	}
	if !IsHandshakeType(uint32(h.ReqType)) {
		return nil, newErr(ErrKindPacketFormat, "unexpected handshake request type")
	}
	copy(h.PeerAddr[:], buf[32:48])

	err := forEachExtension(buf[handshakeCIFSize:], func(t extType, v []byte) error {
		switch t {
		case extHSREQ, extHSRSP:
			if len(v) < 12 {
				return newErr(ErrKindPacketFormat, "HSREQ/HSRSP too short")
			}
			ext := &HSExtension{
				Version:              binary.BigEndian.Uint32(v[0:4]),
				Flags:                binary.BigEndian.Uint32(v[4:8]),
				ReceiverTSBPDDelayMs: binary.BigEndian.Uint16(v[8:10]),
				SenderTSBPDDelayMs:   binary.BigEndian.Uint16(v[10:12]),
			}
			if t == extHSREQ {
				h.HSReq = ext
			} else {
				h.HSRsp = ext
			}
		case extKMREQ, extKMRSP:
			h.HasKMREQ = true
		case extSID:
			sid, err := decodeStreamIDWords(v)
			if err != nil {
				return err
			}
			h.StreamID = sid
		default:
			// CONGESTION, FILTER, GROUP and anything unrecognized: ignored.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// EncodeHandshake appends the wire encoding of h, including any populated
// extensions, to dst.
func EncodeHandshake(dst []byte, h *HandshakeContext) []byte {
	var fixed [handshakeCIFSize]byte
	binary.BigEndian.PutUint32(fixed[0:4], h.Version)
	binary.BigEndian.PutUint16(fixed[4:6], h.Encryption)
	binary.BigEndian.PutUint16(fixed[6:8], h.ExtensionField)
	binary.BigEndian.PutUint32(fixed[8:12], uint32(h.InitialSeq))
	binary.BigEndian.PutUint32(fixed[12:16], h.MaxMSS)
	binary.BigEndian.PutUint32(fixed[16:20], h.WindowSize)
	binary.BigEndian.PutUint32(fixed[20:24], uint32(h.ReqType))
	binary.BigEndian.PutUint32(fixed[24:28], h.SocketID)
	binary.BigEndian.PutUint32(fixed[28:32], h.Cookie)
	copy(fixed[32:48], h.PeerAddr[:])
	dst = append(dst, fixed[:]...)

	if h.HSReq != nil {
		dst = appendHSExt(dst, extHSREQ, h.HSReq)
	}
	if h.HSRsp != nil {
		dst = appendHSExt(dst, extHSRSP, h.HSRsp)
	}
	if h.StreamID != "" {
		dst = appendSIDExt(dst, h.StreamID)
	}
	return dst
}

func appendHSExt(dst []byte, t extType, ext *HSExtension) []byte {
	var tlv [4 + 12]byte
	binary.BigEndian.PutUint16(tlv[0:2], uint16(t))
	binary.BigEndian.PutUint16(tlv[2:4], 12/4)
	binary.BigEndian.PutUint32(tlv[4:8], ext.Version)
	binary.BigEndian.PutUint32(tlv[8:12], ext.Flags)
	binary.BigEndian.PutUint16(tlv[12:14], ext.ReceiverTSBPDDelayMs)
	binary.BigEndian.PutUint16(tlv[14:16], ext.SenderTSBPDDelayMs)
	return append(dst, tlv[:]...)
}

// forEachExtension walks a sequence of (type:u16, length-in-4-byte-words:u16,
// value) TLVs, skipping any type it doesn't recognize. Mirrors the teacher's
// ForEachOption closure-iteration pattern for TCP options.
func forEachExtension(buf []byte, fn func(extType, []byte) error) error {
	off := 0
	for off+4 <= len(buf) {
		t := extType(binary.BigEndian.Uint16(buf[off : off+2]))
		words := int(binary.BigEndian.Uint16(buf[off+2 : off+4]))
		off += 4
		size := words * 4
		if size < 0 || off+size > len(buf) {
			return newErr(ErrKindPacketFormat, "TLV length exceeds buffer")
		}
		err := fn(t, buf[off:off+size])
		if err != nil {
			return err
		}
		off += size
	}
	return nil
}
