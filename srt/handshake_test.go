package srt

import "testing"

func TestHandshake_RoundTrip(t *testing.T) {
	h := &HandshakeContext{
		Version:        5,
		Encryption:     0,
		ExtensionField: ExtMagic,
		InitialSeq:     12345,
		MaxMSS:         1500,
		WindowSize:     8192,
		ReqType:        HandshakeConclusion,
		SocketID:       0xAABBCCDD,
		Cookie:         0x11223344,
		HSReq: &HSExtension{
			Version:              srtVersion,
			Flags:                HSFlagTSBPDSND | HSFlagTSBPDRCV,
			ReceiverTSBPDDelayMs: 120,
			SenderTSBPDDelayMs:   80,
		},
		StreamID: "#!::h=live/demo,m=publish",
	}
	copy(h.PeerAddr[:4], []byte{192, 168, 1, 1})

	buf := EncodeHandshake(nil, h)
	got, err := DecodeHandshake(buf)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}

	if got.Version != h.Version || got.ExtensionField != h.ExtensionField ||
		got.InitialSeq != h.InitialSeq || got.MaxMSS != h.MaxMSS ||
		got.WindowSize != h.WindowSize || got.ReqType != h.ReqType ||
		got.SocketID != h.SocketID || got.Cookie != h.Cookie {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, h)
	}
	if got.PeerAddr != h.PeerAddr {
		t.Errorf("PeerAddr mismatch: got %v, want %v", got.PeerAddr, h.PeerAddr)
	}
	if got.HSReq == nil || got.HSReq.Flags != h.HSReq.Flags || got.HSReq.ReceiverTSBPDDelayMs != 120 {
		t.Errorf("HSReq round-trip mismatch: got %+v", got.HSReq)
	}
	if got.StreamID != h.StreamID {
		t.Errorf("StreamID = %q, want %q", got.StreamID, h.StreamID)
	}
}

func TestHandshake_RoundTripIPv6(t *testing.T) {
	h := &HandshakeContext{
		Version:    5,
		InitialSeq: 1,
		MaxMSS:     1500,
		WindowSize: 8192,
		ReqType:    HandshakeInduction,
		SocketID:   1,
	}
	v6 := [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	h.PeerAddr = v6

	buf := EncodeHandshake(nil, h)
	got, err := DecodeHandshake(buf)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if got.PeerAddr != v6 {
		t.Errorf("IPv6 PeerAddr round-trip mismatch: got %v, want %v", got.PeerAddr, v6)
	}
}

func TestHandshake_KMREQSetsHasKMREQ(t *testing.T) {
	h := &HandshakeContext{Version: 5, ReqType: HandshakeConclusion, SocketID: 1}
	buf := EncodeHandshake(nil, h)
	buf = append(buf, kmreqTLV()...)

	got, err := DecodeHandshake(buf)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if !got.HasKMREQ {
		t.Error("expected HasKMREQ=true after appending a KMREQ extension TLV")
	}
}

func kmreqTLV() []byte {
	var tlv [8]byte
	tlv[0], tlv[1] = 0, byte(extKMREQ)
	tlv[2], tlv[3] = 0, 1 // 1 word = 4 bytes
	return tlv[:]
}

func TestHandshake_RejectsUnknownReqType(t *testing.T) {
	var buf [handshakeCIFSize]byte
	buf[20], buf[21], buf[22], buf[23] = 0, 0, 0, 5 // ReqType=5, not a known constant and top bit unset
	_, err := DecodeHandshake(buf[:])
	if err == nil || err.(*Error).Kind != ErrKindPacketFormat {
		t.Fatalf("DecodeHandshake with bad req type = %v, want ErrKindPacketFormat", err)
	}
}

func TestHandshake_ShortBufferRejected(t *testing.T) {
	_, err := DecodeHandshake(make([]byte, handshakeCIFSize-1))
	if err == nil || err.(*Error).Kind != ErrKindPacketFormat {
		t.Fatalf("DecodeHandshake with short buffer = %v, want ErrKindPacketFormat", err)
	}
}
