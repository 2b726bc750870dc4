package srt

import "errors"

// ErrorKind is a closed enumeration of the error conditions the engine can
// raise. The first block reproduces the ten-member closed taxonomy: every
// Error passed to ErrorSink.OnError carries one of these, so callers can
// switch on a stable numeric code instead of parsing strings. The second
// block are internal-only control-flow signals (a duplicate packet, a full
// admission window, a bad config value, ...) that package-internal calls
// still need a *Error return value for, but which never reach OnError.
type ErrorKind uint8

const (
	_ ErrorKind = iota // unset

	ErrKindPacketFormat         // malformed packet, handshake CIF, extension TLV, or stream-id
	ErrKindUnsupportedEncryption // peer's handshake carried a KMREQ/KMRSP extension
	ErrKindHandshakeRejected     // peer's handshake failed cookie or parameter validation
	ErrKindStreamIDTooLong       // encoded stream-id exceeds the 728-byte wire limit
	ErrKindConnectTimeout        // handshake did not complete within connect_timeout_ms
	ErrKindReceiveTimeout        // no inbound packet within max_receive_time_out_ms
	ErrKindPeerShutdown          // peer sent a graceful SHUTDOWN control packet
	ErrKindPeerError             // peer reported a fatal error
	ErrKindSocketIO              // the Sender collaborator failed to transmit a datagram
	ErrKindLocalShutdown         // the local side called Close

	// Internal-only: returned from package-internal calls for control flow,
	// never passed to ErrorSink.OnError.
	ErrKindDuplicatePacket // sequence number already delivered/acked
	ErrKindWindowFull      // receive admission window exhausted
	ErrKindOutOfOrder      // sequence number outside admissible range
	ErrKindInvalidState    // operation invalid for current connection state
	ErrKindConfig          // invalid configuration value
)

// Error is the single exported error type the engine produces. Kind is a
// stable numeric code suitable for metrics and branching; Message is a
// human-readable detail string.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

func newErr(kind ErrorKind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// sentinel errors mirroring the teacher's small package-level error vars for
// control flow that isn't surfaced to the collaborator as an *Error. Neither
// is returned or checked anywhere in the package.
var (
	errDropSilently = errors.New("srt: drop packet silently")
	errNotReady     = errors.New("srt: not ready")
)
