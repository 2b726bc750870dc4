package srt

import (
	"log/slog"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSender struct{ sent [][]byte }

func (s *fakeSender) SendDatagram(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *fakeSender) popLast() []byte {
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

type fakeReceiver struct {
	received [][]byte
	dropped  [][2]SeqNr
}

func (r *fakeReceiver) OnReceive(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	r.received = append(r.received, cp)
}

func (r *fakeReceiver) OnDrop(begin, end SeqNr) {
	r.dropped = append(r.dropped, [2]SeqNr{begin, end})
}

type fakeErrorSink struct{ errs []*Error }

func (e *fakeErrorSink) OnError(err *Error) { e.errs = append(e.errs, err) }

type fakeTimers struct {
	next uint64
	due  map[TimerHandle]struct {
		kind TimerKind
		at   time.Time
	}
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{due: make(map[TimerHandle]struct {
		kind TimerKind
		at   time.Time
	})}
}

func (f *fakeTimers) ScheduleAt(kind TimerKind, at time.Time) TimerHandle {
	f.next++
	h := TimerHandle(f.next)
	f.due[h] = struct {
		kind TimerKind
		at   time.Time
	}{kind, at}
	return h
}

func (f *fakeTimers) Cancel(h TimerHandle) { delete(f.due, h) }

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(nopWriter{}, nil))
	return cfg
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// decodeControlHandshake pulls the HandshakeContext out of the last datagram
// a fakeSender captured, failing the test if it isn't a handshake control
// packet.
func decodeControlHandshake(t *testing.T, buf []byte) *HandshakeContext {
	t.Helper()
	data, ctrl, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if data != nil || ctrl.Type != ControlHandshake {
		t.Fatalf("expected a handshake control packet, got data=%v ctrl=%+v", data, ctrl)
	}
	hs, err := DecodeHandshake(ctrl.CIF)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	return hs
}

// TestEngine_CallerSuccessfulConnect reproduces end-to-end scenario 1: a
// caller completes induction/conclusion against a listener and both sides
// land in the connected state with the negotiated TSBPD delay.
func TestEngine_CallerSuccessfulConnect(t *testing.T) {
	cfg := newTestConfig()
	cfg.TimeBasedDeliverMs = 120
	cfg.StreamID = "#!::h=live/demo,m=publish"

	now := time.Unix(0, 0)
	clock := &fakeClock{now: now}
	callerSender := &fakeSender{}
	caller := NewEngine(cfg)
	caller.SetCollaborators(clock, callerSender, &fakeReceiver{}, &fakeErrorSink{}, newFakeTimers())

	listener, err := NewListener(cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}

	peerAddr := []byte{127, 0, 0, 1}
	if err := caller.Dial(peerAddr, 9000, now); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if caller.State() != stateCallerInduction {
		t.Fatalf("caller state = %v, want caller-induction", caller.State())
	}

	inductionReq := decodeControlHandshake(t, callerSender.popLast())
	inductionRsp := listener.HandleInduction(peerAddr, 9000, inductionReq)
	if inductionRsp.ExtensionField != ExtMagic {
		t.Fatalf("induction response extension field = %#x, want %#x", inductionRsp.ExtensionField, ExtMagic)
	}

	feedHandshake(t, caller, inductionRsp, now)
	if caller.State() != stateCallerConclusion {
		t.Fatalf("caller state = %v, want caller-conclusion", caller.State())
	}

	conclusionReq := decodeControlHandshake(t, callerSender.popLast())
	if conclusionReq.StreamID != cfg.StreamID {
		t.Fatalf("conclusion request StreamID = %q, want %q", conclusionReq.StreamID, cfg.StreamID)
	}

	listenerEng, hsrsp, err := listener.HandleConclusion(peerAddr, 9000, conclusionReq, now)
	if err != nil {
		t.Fatalf("HandleConclusion: %v", err)
	}
	if hsrsp.HSRsp.ReceiverTSBPDDelayMs != 120 {
		t.Fatalf("HSRsp delay = %d, want 120", hsrsp.HSRsp.ReceiverTSBPDDelayMs)
	}
	if listenerEng.State() != stateConnected {
		t.Fatalf("listener-side engine state = %v, want connected", listenerEng.State())
	}

	feedHandshake(t, caller, hsrsp, now)
	if caller.State() != stateConnected {
		t.Fatalf("caller state = %v, want connected", caller.State())
	}
	if caller.receiverTSBPDDelay != 120000 {
		t.Errorf("caller receiverTSBPDDelay = %d, want 120000", caller.receiverTSBPDDelay)
	}
	if listenerEng.receiverTSBPDDelay != 120000 {
		t.Errorf("listener-side engine receiverTSBPDDelay = %d, want 120000", listenerEng.receiverTSBPDDelay)
	}
	if !caller.dropTooLate {
		t.Error("caller dropTooLate = false, want true (both sides advertise TLPKTDROP by default)")
	}
}

func feedHandshake(t *testing.T, e *Engine, hs *HandshakeContext, now time.Time) {
	t.Helper()
	cif := EncodeHandshake(nil, hs)
	c := &ControlPacket{Type: ControlHandshake, DestSocketID: e.socketID, CIF: cif}
	buf := AppendControlPacket(nil, c)
	if err := e.HandleDatagram(buf, now); err != nil {
		t.Fatalf("HandleDatagram(handshake): %v", err)
	}
}

// TestEngine_CallerTimeout reproduces end-to-end scenario 2: a silent
// listener causes the caller to retry induction at the configured cadence
// and eventually report connect_timeout exactly once.
func TestEngine_CallerTimeout(t *testing.T) {
	cfg := newTestConfig()
	cfg.ConnectTimeoutMs = 3000

	now := time.Unix(0, 0)
	clock := &fakeClock{now: now}
	sender := &fakeSender{}
	errs := &fakeErrorSink{}
	timers := newFakeTimers()
	caller := NewEngine(cfg)
	caller.SetCollaborators(clock, sender, &fakeReceiver{}, errs, timers)

	if err := caller.Dial([]byte{127, 0, 0, 1}, 9000, now); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// Fire the handshake retry timer repeatedly, advancing the clock by
	// handshakeRetryInterval each time, until the connect timeout fires.
	for i := 0; i < 20 && len(errs.errs) == 0; i++ {
		now = now.Add(handshakeRetryInterval)
		clock.now = now
		if err := caller.HandleTimeout(TimerHandshakeRetry, now); err != nil {
			t.Fatalf("HandleTimeout: %v", err)
		}
	}

	if len(errs.errs) != 1 {
		t.Fatalf("got %d timeout errors, want exactly 1", len(errs.errs))
	}
	if errs.errs[0].Kind != ErrKindConnectTimeout {
		t.Errorf("error kind = %v, want ErrKindConnectTimeout", errs.errs[0].Kind)
	}
	if caller.State() != stateClosed {
		t.Errorf("caller state after timeout = %v, want closed", caller.State())
	}
}

// TestEngine_NAKRoundTrip reproduces end-to-end scenario 3: a receiver
// detects a sequence gap, emits a NAK, and the sender's send_again
// re-transmits exactly the requested range with the retransmit bit set.
func TestEngine_NAKRoundTrip(t *testing.T) {
	cfg := newTestConfig()
	now := time.Unix(0, 0)

	sendSender := &fakeSender{}
	sendEng := NewEngine(cfg)
	sendEng.SetCollaborators(&fakeClock{now: now}, sendSender, &fakeReceiver{}, &fakeErrorSink{}, newFakeTimers())
	sendEng.socketID = 1
	sendEng.peerSocketID = 2
	sendEng.state = stateConnected
	sendEng.initRecvFrom(0, now)
	sendEng.initSendAt(10, now)

	for i := 0; i < 4; i++ {
		n, err := sendEng.Send([]byte{byte(10 + i)}, now)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if n != 1 {
			t.Fatalf("Send sent-count = %d, want 1", n)
		}
	}
	if len(sendSender.sent) != 4 {
		t.Fatalf("sent %d data packets, want 4", len(sendSender.sent))
	}

	nakCIF := appendNAKRange(nil, 12, 12)
	nak := &ControlPacket{Type: ControlNAK, DestSocketID: 1, CIF: nakCIF}
	if err := sendEng.HandleDatagram(AppendControlPacket(nil, nak), now); err != nil {
		t.Fatalf("HandleDatagram(NAK): %v", err)
	}

	retransmitted := sendSender.popLast()
	d, _, err := DecodePacket(retransmitted)
	if err != nil {
		t.Fatalf("DecodePacket(retransmit): %v", err)
	}
	if !d.Retransmit {
		t.Error("re-sent packet must carry the retransmit bit")
	}
	if string(d.Payload) != string([]byte{12}) {
		t.Errorf("retransmitted payload = %v, want the packet originally assigned seq 12", d.Payload)
	}
}

// TestEngine_RejectionOnEncryption reproduces end-to-end scenario 6: a
// caller conclusion carrying a KMREQ extension is rejected outright by the
// listener, and a listener's conclusion reply carrying one is likewise
// rejected by the caller's onConclusionResponse.
func TestEngine_RejectionOnEncryption(t *testing.T) {
	cfg := newTestConfig()
	listener, err := NewListener(cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	now := time.Unix(0, 0)

	req := &HandshakeContext{
		Version: 5, ReqType: HandshakeConclusion, SocketID: 42, HasKMREQ: true,
	}
	eng, rsp, err := listener.HandleConclusion([]byte{10, 0, 0, 1}, 5000, req, now)
	if eng != nil {
		t.Error("expected no Engine to be created for a KMREQ conclusion")
	}
	if err == nil || err.(*Error).Kind != ErrKindUnsupportedEncryption {
		t.Fatalf("HandleConclusion error = %v, want ErrKindUnsupportedEncryption", err)
	}
	if rsp.ReqType != HandshakeDone {
		t.Errorf("rejection handshake ReqType = %v, want HandshakeDone", rsp.ReqType)
	}

	errs := &fakeErrorSink{}
	caller := NewEngine(cfg)
	caller.SetCollaborators(&fakeClock{now: now}, &fakeSender{}, &fakeReceiver{}, errs, newFakeTimers())
	if err := caller.Dial([]byte{127, 0, 0, 1}, 9000, now); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	caller.state = stateCallerConclusion

	kmrsp := &HandshakeContext{Version: 5, ReqType: HandshakeConclusion, SocketID: 99, HasKMREQ: true}
	if err := caller.onConclusionResponse(kmrsp, now); err != nil {
		t.Fatalf("onConclusionResponse: %v", err)
	}
	if len(errs.errs) != 1 || errs.errs[0].Kind != ErrKindUnsupportedEncryption {
		t.Fatalf("caller errors = %v, want exactly one ErrKindUnsupportedEncryption", errs.errs)
	}
	if caller.State() != stateClosed {
		t.Errorf("caller state = %v, want closed", caller.State())
	}
}
