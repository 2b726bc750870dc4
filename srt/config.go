package srt

import "log/slog"

// Config covers every external configuration key this engine exposes,
// following the teacher's struct-of-options idiom (ConnConfig/ListenerConfig
// in tcp/conn.go and tcp/listener.go) rather than functional options.
type Config struct {
	// MaxPayload bounds the SRT payload size per data packet (MSS minus
	// headers). Must be <=1500.
	MaxPayload uint16
	// MaxWindowSize is the number of packets admissible in the receive
	// window before WindowFull triggers.
	MaxWindowSize uint32
	// DropTooLatePacket enables TLPKTDROP: packets older than
	// TimeBasedDeliverMs are dropped rather than retransmitted forever.
	DropTooLatePacket bool
	// TimeBasedDeliverMs is the TSBPD delivery delay advertised to the peer.
	TimeBasedDeliverMs uint16
	// ReportNAK enables periodic NAK generation for gaps in the receive
	// window.
	ReportNAK bool
	// StreamID is the optional application-level stream identifier sent in
	// the SID handshake extension. Must serialize to <=728 bytes.
	StreamID string
	// ConnectTimeoutMs bounds how long the caller retries induction/
	// conclusion handshakes before giving up.
	ConnectTimeoutMs uint32
	// MaxReceiveTimeoutMs bounds how long the connection tolerates total
	// silence from the peer before declaring it dead.
	MaxReceiveTimeoutMs uint32

	// Logger receives debug/trace/error output. A nil Logger disables
	// logging except under the debugheaplog build tag, following the
	// teacher's logenabled gate.
	Logger *slog.Logger
}

// DefaultConfig returns the documented defaults for every key.
func DefaultConfig() Config {
	return Config{
		MaxPayload:          1500,
		MaxWindowSize:       8192,
		DropTooLatePacket:   true,
		TimeBasedDeliverMs:  120,
		ReportNAK:           true,
		ConnectTimeoutMs:    3000,
		MaxReceiveTimeoutMs: 10000,
	}
}

// Validate checks the configuration against the constraints spec.md
// documents for each key, returning a *Error on failure: Kind
// ErrKindStreamIDTooLong for an over-long StreamID, ErrKindConfig otherwise.
func (c *Config) Validate() error {
	if c.MaxPayload == 0 || c.MaxPayload > 1500 {
		return newErr(ErrKindConfig, "max_payload must be in (0, 1500]")
	}
	if c.MaxWindowSize == 0 {
		return newErr(ErrKindConfig, "max_window_size must be nonzero")
	}
	if len(c.StreamID) > maxStreamIDLen {
		return newErr(ErrKindStreamIDTooLong, "stream_id exceeds 728 bytes serialized")
	}
	return nil
}
