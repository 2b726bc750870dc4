package srt

import (
	"math/rand"
	"time"
)

// handshakeRetryInterval is how often an unanswered induction or conclusion
// request is resent while ConnectTimeoutMs hasn't yet elapsed, mirroring the
// teacher's connect-retry cadence in tcp/conn.go.
const handshakeRetryInterval = 250 * time.Millisecond

// Dial begins the caller side of the four-way handshake: an induction
// request is sent immediately and a retry timer armed. The Engine must
// already have collaborators wired via SetCollaborators.
func (e *Engine) Dial(peerAddr []byte, peerPort uint16, now time.Time) error {
	if e.state != stateClosed {
		return newErr(ErrKindInvalidState, "Dial requires a fresh Engine")
	}
	e.ensureEpoch(now)
	e.socketID = uint32(rand.Int31()) | 1
	e.streamID = e.config.StreamID
	e.sendState.iss = SeqNr(rand.Int31())
	e.state = stateCallerInduction
	e.handshakeAttempts = 0
	err := e.sendInduction(now)
	if err != nil {
		return err
	}
	e.armHandshakeRetry(now)
	return nil
}

func (e *Engine) armHandshakeRetry(now time.Time) {
	if e.timers == nil {
		return
	}
	if e.handshakeTimer != 0 {
		e.timers.Cancel(e.handshakeTimer)
	}
	e.handshakeTimer = e.timers.ScheduleAt(TimerHandshakeRetry, now.Add(handshakeRetryInterval))
}

func (e *Engine) sendInduction(now time.Time) error {
	ts := e.nowStamp(now)
	req := &HandshakeContext{
		Version:        4,
		InitialSeq:     e.sendState.iss,
		MaxMSS:         uint32(e.config.MaxPayload),
		WindowSize:     e.config.MaxWindowSize,
		ReqType:        HandshakeInduction,
		SocketID:       e.socketID,
	}
	return e.sendHandshake(req, ts)
}

func (e *Engine) sendConclusion(now time.Time) error {
	ts := e.nowStamp(now)
	req := &HandshakeContext{
		Version:        5,
		ExtensionField: ExtMagic,
		InitialSeq:     e.sendState.iss,
		MaxMSS:         uint32(e.config.MaxPayload),
		WindowSize:     e.config.MaxWindowSize,
		ReqType:        HandshakeConclusion,
		SocketID:       e.socketID,
		Cookie:         e.inductionCookie,
		HSReq: &HSExtension{
			Version: srtVersion,
			Flags:   hsreqFlags(e.config),
			ReceiverTSBPDDelayMs: e.config.TimeBasedDeliverMs,
			SenderTSBPDDelayMs:   e.config.TimeBasedDeliverMs,
		},
		StreamID: e.streamID,
	}
	return e.sendHandshake(req, ts)
}

func (e *Engine) sendHandshake(h *HandshakeContext, ts TimeStamp) error {
	cif := EncodeHandshake(nil, h)
	c := &ControlPacket{
		Type:         ControlHandshake,
		Timestamp:    ts,
		DestSocketID: h.SocketID,
		CIF:          cif,
	}
	buf := AppendControlPacket(nil, c)
	return e.sender.SendDatagram(buf)
}

// handleHandshakeControl dispatches an inbound handshake control packet
// arriving during the caller's induction/conclusion wait, or an unsolicited
// shutdown/retransmitted request on an already-connected Engine (which is
// simply ignored, as the original does for out-of-order handshake repeats).
func (e *Engine) handleHandshakeControl(c *ControlPacket, now time.Time) error {
	hs, err := DecodeHandshake(c.CIF)
	if err != nil {
		return err
	}
	switch e.state {
	case stateCallerInduction:
		return e.onInductionResponse(hs, now)
	case stateCallerConclusion:
		return e.onConclusionResponse(hs, now)
	default:
		return nil // already connected; duplicate/stray handshake packet
	}
}

// onInductionResponse validates the listener's induction reply before
// advancing to the conclusion step: version must be 5, the extension field
// must carry ExtMagic, encryption must be absent, and MaxMSS must fit
// within the 1500-byte ceiling. Any failure is a handshake_rejected error
// rather than a silent ignore. On success the server's sequence, MSS and
// window replace this engine's own guesses.
func (e *Engine) onInductionResponse(hs *HandshakeContext, now time.Time) error {
	if hs.ReqType != HandshakeInduction {
		return nil
	}
	if hs.Version != 5 || hs.ExtensionField != ExtMagic || hs.Encryption != 0 ||
		hs.MaxMSS == 0 || hs.MaxMSS > 1500 || hs.WindowSize == 0 {
		e.state = stateClosed
		e.reportError(ErrKindHandshakeRejected, "induction response failed validation")
		return nil
	}
	e.peerSocketID = hs.SocketID
	e.inductionCookie = hs.Cookie
	e.sendState.iss = hs.InitialSeq
	e.config.MaxPayload = uint16(hs.MaxMSS)
	e.config.MaxWindowSize = hs.WindowSize
	e.state = stateCallerConclusion
	err := e.sendConclusion(now)
	if err != nil {
		return err
	}
	e.armHandshakeRetry(now)
	return nil
}

// onConclusionResponse reacts to the listener's conclusion reply: a KMREQ/
// KMRSP extension or an outright rejection (req type HandshakeDone) both
// close the connection with a distinct error kind, while a genuine
// conclusion adopts the negotiated TSBPD delay, drop policy and NAK policy
// from the listener's HSRSP extension before the connection is marked
// connected.
func (e *Engine) onConclusionResponse(hs *HandshakeContext, now time.Time) error {
	if hs.HasKMREQ {
		e.state = stateClosed
		e.reportError(ErrKindUnsupportedEncryption, "conclusion response carried a KMREQ/KMRSP extension")
		return nil
	}
	if hs.ReqType == HandshakeDone {
		e.state = stateClosed
		e.reportError(ErrKindHandshakeRejected, "listener rejected conclusion")
		return nil
	}
	if hs.ReqType != HandshakeConclusion {
		return nil
	}
	if e.timers != nil && e.handshakeTimer != 0 {
		e.timers.Cancel(e.handshakeTimer)
		e.handshakeTimer = 0
	}
	e.peerSocketID = hs.SocketID
	e.adoptNegotiatedParams(hs.HSRsp)
	e.state = stateConnected
	e.initRecvFrom(hs.InitialSeq, now)
	e.initSendAt(e.sendState.iss, now)
	return nil
}

// retryHandshake resends the current handshake step if ConnectTimeoutMs has
// not yet elapsed, otherwise gives up and reports a timeout.
func (e *Engine) retryHandshake(now time.Time) error {
	e.handshakeAttempts++
	elapsed := uint32(e.handshakeAttempts) * uint32(handshakeRetryInterval/time.Millisecond)
	if elapsed >= e.config.ConnectTimeoutMs {
		e.state = stateClosed
		e.reportError(ErrKindConnectTimeout, "handshake did not complete within connect_timeout_ms")
		return nil
	}
	var err error
	switch e.state {
	case stateCallerInduction:
		err = e.sendInduction(now)
	case stateCallerConclusion:
		err = e.sendConclusion(now)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	e.armHandshakeRetry(now)
	return nil
}
