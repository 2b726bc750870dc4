package srt

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/go-srt/srt/internal"
)

// pendingSession is a half-open listener-side handshake: a cookie has been
// issued to a caller but its conclusion has not yet been validated, so no
// per-connection Engine has been allocated yet. Mirrors the teacher's
// Listener.incoming slice, keyed instead by cookie since SRT's cookie
// validation (unlike TCP's ISN-bound SYN cookie) happens before any Engine
// exists at all.
type pendingSession struct {
	peerAddr   []byte
	peerPort   uint16
	cookie     uint32
	clientISN  SeqNr
	clientMSS  uint32
	clientWnd  uint32
	streamID   string
	issuedAt   time.Time
}

// Listener accepts inbound SRT handshakes over a socket-id address space it
// owns, validating the caller's cookie before allocating a full Engine. This
// mirrors the dual incoming/accepted bookkeeping in the teacher's
// tcp.Listener, adapted to SRT's cookie-first handshake instead of TCP's
// SYN/SYN-ACK exchange. The pending map is not populated: HandleInduction
// keeps no per-caller state, and HandleConclusion validates the cookie alone.
type Listener struct {
	mu sync.Mutex

	cookies      CookieJar
	pending      map[uint32]*pendingSession // keyed by cookie
	established  map[uint32]*Engine         // keyed by local socket id
	nextSocketID uint32

	config Config
	log    *slog.Logger
}

// NewListener constructs a Listener with freshly seeded cookie secret
// material and the given configuration applied to every accepted Engine.
func NewListener(config Config) (*Listener, error) {
	l := &Listener{
		pending:      make(map[uint32]*pendingSession),
		established: make(map[uint32]*Engine),
		nextSocketID: uint32(time.Now().UnixNano()) | 1,
		config:       config,
		log:          config.Logger,
	}
	err := l.cookies.Reset(rand.Reader, 2)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Tick advances the cookie expiry counter; call this periodically (e.g.
// every few seconds) so stale pending sessions' cookies eventually reject.
func (l *Listener) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cookies.IncrementCounter()
}

// debugPeer logs msg at debug level with the peer address/port attached,
// using a packed-uint64 attr for IPv4 peers to avoid allocating a string on
// the hot induction/conclusion path (mirrors the teacher's SlogAddr4 use for
// address logging).
func (l *Listener) debugPeer(msg string, peerAddr []byte, peerPort uint16) {
	if l.log == nil || !l.log.Handler().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{slog.Uint64("port", uint64(peerPort))}
	if len(peerAddr) == 4 {
		var a [4]byte
		copy(a[:], peerAddr)
		attrs = append(attrs, internal.SlogAddr4("addr", &a))
	}
	l.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// HandleInduction processes a URQ_INDUCTION request from a new caller,
// returning the induction response CIF to send back. No Engine or
// pendingSession state is created yet — the cookie alone carries everything
// needed to validate the matching conclusion.
func (l *Listener) HandleInduction(peerAddr []byte, peerPort uint16, req *HandshakeContext) *HandshakeContext {
	l.debugPeer("listener:induction", peerAddr, peerPort)
	l.mu.Lock()
	defer l.mu.Unlock()
	cookie := l.cookies.Make(peerAddr, peerPort)
	socketID := l.nextSocketID
	l.nextSocketID++

	resp := &HandshakeContext{
		Version:        5,
		ExtensionField: ExtMagic,
		InitialSeq:     req.InitialSeq,
		MaxMSS:         uint32(l.config.MaxPayload),
		WindowSize:     l.config.MaxWindowSize,
		ReqType:        HandshakeInduction,
		SocketID:       socketID,
		Cookie:         cookie,
	}
	return resp
}

// HandleConclusion validates the caller's cookie on a URQ_CONCLUSION
// request and, if valid, allocates a new Engine in the established state.
// An invalid cookie yields a rejection handshake (req type URQ_DONE) and no
// Engine.
func (l *Listener) HandleConclusion(peerAddr []byte, peerPort uint16, req *HandshakeContext, now time.Time) (*Engine, *HandshakeContext, error) {
	l.debugPeer("listener:conclusion", peerAddr, peerPort)
	l.mu.Lock()
	defer l.mu.Unlock()
	if req.HasKMREQ {
		return nil, rejectionHandshake(), newErr(ErrKindUnsupportedEncryption, "KMREQ present")
	}
	if !l.cookies.Validate(peerAddr, peerPort, req.Cookie) {
		return nil, rejectionHandshake(), newErr(ErrKindHandshakeRejected, "cookie mismatch")
	}

	cfg := l.config
	eng := NewEngine(cfg)
	eng.socketID = req.SocketID
	eng.peerSocketID = req.SocketID
	eng.state = stateConnected
	eng.adoptNegotiatedParams(req.HSReq)
	eng.initRecvFrom(req.InitialSeq, now)
	eng.initSendAt(randomISN(), now)

	hsrsp := &HandshakeContext{
		Version:        5,
		InitialSeq:     eng.sendState.iss,
		MaxMSS:         uint32(cfg.MaxPayload),
		WindowSize:     cfg.MaxWindowSize,
		ReqType:        HandshakeConclusion,
		SocketID:       eng.socketID,
		Cookie:         req.Cookie,
		HSRsp: &HSExtension{
			Version:              srtVersion,
			Flags:                hsreqFlags(cfg),
			ReceiverTSBPDDelayMs: cfg.TimeBasedDeliverMs,
			SenderTSBPDDelayMs:   cfg.TimeBasedDeliverMs,
		},
	}
	l.established[eng.socketID] = eng
	return eng, hsrsp, nil
}

// Lookup returns the established Engine for a local socket id, if any.
func (l *Listener) Lookup(socketID uint32) (*Engine, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.established[socketID]
	return e, ok
}

// Remove forgets an established Engine, e.g. after it reaches a closed
// state.
func (l *Listener) Remove(socketID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.established, socketID)
}

// randomISN draws an initial sequence number from the 31-bit sequence space
// using crypto/rand, matching the teacher's preference for crypto/rand over
// math/rand wherever the value crosses a trust boundary (here: the wire).
func randomISN() SeqNr {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return SeqNr(0)
	}
	return SeqNr(binary.BigEndian.Uint32(b[:]) & seqMask)
}

func rejectionHandshake() *HandshakeContext {
	return &HandshakeContext{ReqType: HandshakeDone}
}

// hsreqFlags builds the HSREQ/HSRSP flag word. REXMITFLG and PACKET_FILTER
// are always set, whatever cfg says; TLPKTDROP and PERIODICNAK follow cfg.
func hsreqFlags(cfg Config) uint32 {
	flags := HSFlagTSBPDSND | HSFlagTSBPDRCV | HSFlagRexmitFlag | HSFlagPacketFilter
	if cfg.DropTooLatePacket {
		flags |= HSFlagTLPktDrop
	}
	if cfg.ReportNAK {
		flags |= HSFlagPeriodicNAK
	}
	return flags
}
