// Code below follows the project's usual stringer output shape
// (`//go:generate stringer`) but is hand-written since the enums gained
// members after the last generation pass; keep it in sync by hand.

package srt

func (k ErrorKind) String() string {
	switch k {
	case ErrKindPacketFormat:
		return "malformed packet, handshake, or extension"
	case ErrKindUnsupportedEncryption:
		return "peer requested unsupported encryption"
	case ErrKindHandshakeRejected:
		return "peer's handshake failed validation"
	case ErrKindStreamIDTooLong:
		return "encoded stream-id exceeds wire limit"
	case ErrKindConnectTimeout:
		return "handshake did not complete within connect_timeout_ms"
	case ErrKindReceiveTimeout:
		return "connection exceeded its liveness timeout"
	case ErrKindPeerShutdown:
		return "peer closed the connection"
	case ErrKindPeerError:
		return "peer reported a fatal error"
	case ErrKindSocketIO:
		return "datagram transmission failed"
	case ErrKindLocalShutdown:
		return "local side closed the connection"
	case ErrKindDuplicatePacket:
		return "sequence number already delivered/acked"
	case ErrKindWindowFull:
		return "receive admission window exhausted"
	case ErrKindOutOfOrder:
		return "sequence number outside admissible range"
	case ErrKindInvalidState:
		return "operation invalid for current connection state"
	case ErrKindConfig:
		return "invalid configuration value"
	default:
		return "unset"
	}
}

func (p PacketType) String() string {
	if p == PacketData {
		return "data"
	}
	return "control"
}

func (c ControlType) String() string {
	switch c {
	case ControlHandshake:
		return "handshake"
	case ControlKeepalive:
		return "keepalive"
	case ControlACK:
		return "ack"
	case ControlNAK:
		return "nak"
	case ControlCongestionWarn:
		return "congestion-warning"
	case ControlShutdown:
		return "shutdown"
	case ControlACKACK:
		return "ackack"
	case ControlDropReq:
		return "dropreq"
	case ControlPeerError:
		return "peererror"
	case ControlUser:
		return "user-defined"
	default:
		return "unknown"
	}
}

func (h HandshakeType) String() string {
	switch h {
	case HandshakeWaveAHand:
		return "wave-a-hand"
	case HandshakeInduction:
		return "induction"
	case HandshakeConclusion:
		return "conclusion"
	case HandshakeAgreement:
		return "agreement"
	case HandshakeDone:
		return "done"
	default:
		return "rejection"
	}
}
