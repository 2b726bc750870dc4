package srt

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-srt/srt/internal"
)

// connState enumerates the lifecycle states an Engine progresses through,
// mirroring the shape (if not the exact member set) of the teacher's TCP
// State enum in tcp/definitions.go.
type connState uint8

const (
	stateClosed connState = iota
	stateCallerInduction
	stateCallerConclusion
	stateConnected
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateCallerInduction:
		return "caller-induction"
	case stateCallerConclusion:
		return "caller-conclusion"
	case stateConnected:
		return "connected"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// sendState tracks the connection's outbound sequence-space cursors, kept as
// its own small value struct per the teacher's sendSpace/recvSpace split in
// tcp/control.go rather than scattered fields on Engine.
type sendState struct {
	iss SeqNr // initial sequence number
	nxt SeqNr // next sequence number to assign
	una SeqNr // oldest unacknowledged sequence number
	msg MsgNr // next message number to assign
}

// recvState tracks the connection's inbound sequence-space cursors.
type recvState struct {
	irs SeqNr // peer's initial sequence number
}

// Engine is the per-connection SRT protocol state machine. It never spawns
// goroutines or blocks; HandleDatagram and HandleTimeout are plain
// synchronous methods an external single-threaded executor invokes
// serially, exactly as the teacher's ControlBlock is driven by an external
// polling loop rather than owning a thread.
//
// Buffer management and socket I/O are left up entirely to the caller via
// the Sender/Receiver/Clock/TimerScheduler collaborators.
type Engine struct {
	config Config

	socketID     uint32
	peerSocketID uint32
	state        connState

	sender  Sender
	receiver Receiver
	errSink ErrorSink
	timers  TimerScheduler
	clock   Clock
	epoch   time.Time

	sendState sendState
	recvState recvState

	sendQ *sendQueue
	recvQ *recvQueue
	rtt   *RTTEstimator

	arrival  arrivalMeter
	capacity capacityMeter
	byteRate byteRateMeter

	cong *liveCongestionController

	lastSendTime TimeStamp
	lastRecvTime TimeStamp

	stats engineStats

	handshakeTimer    TimerHandle
	pacingTimer       TimerHandle
	handshakeAttempts int
	inductionCookie   uint32
	streamID          string

	// receiverTSBPDDelay, dropTooLate and reportNAK start out as this
	// engine's own configured values and are folded together with the
	// peer's HSREQ/HSRSP extension once the conclusion handshake
	// completes, via adoptNegotiatedParams.
	receiverTSBPDDelay uint32
	dropTooLate        bool
	reportNAK          bool

	pacer *pacedSendQueue

	rng *rand.Rand

	log *slog.Logger
}

// NewEngine constructs an unconnected Engine using cfg. Call SetCollaborators
// before driving it, and either Dial (caller) or hand it to a Listener
// (listener side) to begin the handshake.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		config:             cfg,
		rtt:                NewRTTEstimator(),
		rng:                rand.New(rand.NewSource(int64(internal.Prand32(uint32(time.Now().UnixNano()))))),
		log:                cfg.Logger,
		receiverTSBPDDelay: uint32(cfg.TimeBasedDeliverMs) * 1000,
		dropTooLate:        cfg.DropTooLatePacket,
		reportNAK:          cfg.ReportNAK,
	}
	return e
}

// SetCollaborators wires the out-of-scope collaborators this Engine needs to
// actually move bytes. clock.Now() anchors the engine-local microsecond
// clock's epoch unless an earlier call already anchored it.
func (e *Engine) SetCollaborators(clock Clock, sender Sender, receiver Receiver, errSink ErrorSink, timers TimerScheduler) {
	e.clock = clock
	e.sender = sender
	e.receiver = receiver
	e.errSink = errSink
	e.timers = timers
	e.ensureEpoch(clock.Now())
}

// nowStamp converts a wall-clock time to the engine-local microsecond
// TimeStamp.
func (e *Engine) nowStamp(t time.Time) TimeStamp {
	return TimeStamp(t.Sub(e.epoch).Microseconds())
}

// ensureEpoch anchors the engine-local clock to t if SetCollaborators has not
// already done so, covering the listener-side path where an Engine's
// sequence state is initialized before its collaborators are wired in.
func (e *Engine) ensureEpoch(t time.Time) {
	if e.epoch.IsZero() {
		e.epoch = t
	}
}

// State returns the connection's current lifecycle state.
func (e *Engine) State() connState { return e.state }

// SocketID returns this engine's local socket id.
func (e *Engine) SocketID() uint32 { return e.socketID }

// engineStats accumulates the counters socket_statistic.hpp tracks per
// connection: bytes/packets moved in each direction, lost packets (NAK'd
// packets this side re-sent, plus received sequences abandoned past the
// TSBPD deadline) and retransmitted packets (received with the retransmit
// bit set; this side's own re-sends are not counted here).
type engineStats struct {
	bytesSent            uint64
	bytesReceived        uint64
	packetsSent          uint64
	packetsReceived      uint64
	packetsLost          uint64
	packetsRetransmitted uint64
}

// Stats returns a point-in-time snapshot of this Engine's traffic counters,
// plus its current RTT and congestion-window estimates.
func (e *Engine) Stats() Stats {
	s := Stats{
		BytesSent:            e.stats.bytesSent,
		BytesReceived:        e.stats.bytesReceived,
		PacketsSent:          e.stats.packetsSent,
		PacketsReceived:      e.stats.packetsReceived,
		PacketsLost:          e.stats.packetsLost,
		PacketsRetransmitted: e.stats.packetsRetransmitted,
		RTTMicros:            e.rtt.RTT(),
	}
	if e.cong != nil {
		s.CongestionWindow = e.cong.CongestionWindow()
	}
	return s
}

func (e *Engine) logenabled(lvl slog.Level) bool {
	return internal.HeapAllocDebugging || (e.log != nil && e.log.Handler().Enabled(context.Background(), lvl))
}

func (e *Engine) logattrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	internal.LogAttrs(e.log, lvl, msg, attrs...)
}

func (e *Engine) debug(msg string, attrs ...slog.Attr) { e.logattrs(slog.LevelDebug, msg, attrs...) }
func (e *Engine) trace(msg string, attrs ...slog.Attr) { e.logattrs(internal.LevelTrace, msg, attrs...) }
func (e *Engine) logerr(msg string, attrs ...slog.Attr) { e.logattrs(slog.LevelError, msg, attrs...) }

func (e *Engine) reportError(kind ErrorKind, msg string) {
	err := newErr(kind, msg)
	e.logerr("srt:error", slog.String("kind", kind.String()), slog.String("msg", msg))
	if e.errSink != nil {
		e.errSink.OnError(err)
	}
}

// adoptNegotiatedParams folds this engine's own TSBPD/drop/NAK settings
// together with whatever the peer advertised in its HSREQ or HSRSP
// extension: the TSBPD delay takes the larger of the two sides (per the
// conclusion handshake's delay negotiation), while TLPKTDROP and periodic
// NAK only stay enabled if both ends asked for them. peer may be nil if the
// other side sent no HSREQ/HSRSP TLV at all, in which case this engine's own
// configured values are left untouched.
func (e *Engine) adoptNegotiatedParams(peer *HSExtension) {
	if peer == nil {
		return
	}
	peerDelay := peer.ReceiverTSBPDDelayMs
	if peer.SenderTSBPDDelayMs > peerDelay {
		peerDelay = peer.SenderTSBPDDelayMs
	}
	e.receiverTSBPDDelay = negotiateTSBPDDelay(e.config.TimeBasedDeliverMs, peerDelay)
	e.dropTooLate = e.config.DropTooLatePacket && peer.Flags&HSFlagTLPktDrop != 0
	e.reportNAK = e.config.ReportNAK && peer.Flags&HSFlagPeriodicNAK != 0
}

// initRecvFrom sets up the receive-side state once the peer's initial
// sequence number is known (post-handshake).
func (e *Engine) initRecvFrom(irs SeqNr, now time.Time) {
	e.ensureEpoch(now)
	e.recvState.irs = irs
	e.recvQ = newRecvQueue(irs, e.config.MaxWindowSize, e.receiverTSBPDDelay, e.dropTooLate)
	e.lastRecvTime = e.nowStamp(now)
}

// initSendAt sets up the send-side state with the given initial sequence
// number.
func (e *Engine) initSendAt(iss SeqNr, now time.Time) {
	e.ensureEpoch(now)
	e.sendState = sendState{iss: iss, nxt: iss, una: iss}
	e.sendQ = newSendQueue(iss, int(e.config.MaxWindowSize), e.rtt, true, e.dropTooLate, e.receiverTSBPDDelay)
	e.cong = newLiveCongestionController(engineCongestionView{e}, uint64(e.nowStamp(now)), e.rng)
	e.pacer = newPacedSendQueue(e.cong, e.config.MaxWindowSize)
	e.lastSendTime = e.nowStamp(now)
}

// engineCongestionView adapts Engine to congestionHolder without exposing
// the whole struct to the congestion package-level type.
type engineCongestionView struct{ e *Engine }

func (v engineCongestionView) CurrentSeq() SeqNr       { return v.e.sendState.nxt }
func (v engineCongestionView) RTT() uint32             { return v.e.rtt.RTT() }
func (v engineCongestionView) AckLastNumber() SeqNr    { return v.e.sendState.una }
func (v engineCongestionView) LostListSize() uint32    { return uint32(v.e.sendQ.Len()) }
func (v engineCongestionView) MaxWindowSize() uint32   { return v.e.config.MaxWindowSize }
func (v engineCongestionView) MaxPayload() uint32      { return uint32(v.e.config.MaxPayload) }
func (v engineCongestionView) DeliverRate() uint32     { return v.e.byteRate.ReceiveRate() }

// Send submits an application payload for transmission, per the async_send
// contract: it returns the number of bytes accepted, not the number
// actually on the wire yet. Payload is split into MaxPayload-sized chunks
// and staged into the pacing overlay; a chunk the staging FIFO can't hold
// (backpressure) stops the loop and the already-staged prefix is reported
// as sent. One packet is transferred immediately if the congestion/flow
// window allows it; any remainder drains one packet per pkt_snd_period via
// the TimerPacing timer.
func (e *Engine) Send(payload []byte, now time.Time) (int, error) {
	if e.state != stateConnected {
		return 0, newErr(ErrKindInvalidState, "Send requires connected state")
	}
	mss := int(e.config.MaxPayload)
	msgNr := e.sendState.msg
	e.sendState.msg = msgNr.Add(1)
	sent := 0
	for off := 0; off < len(payload) || (off == 0 && len(payload) == 0); off += mss {
		end := off + mss
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[off:end]
		pos := PositionMiddle
		switch {
		case len(payload) <= mss:
			pos = PositionSolo
		case off == 0:
			pos = PositionFirst
		case end == len(payload):
			pos = PositionLast
		}
		n := e.pacer.Stage(chunk, msgNr, pos)
		if n == 0 {
			break // staging FIFO at capacity: backpressure
		}
		sent += n
		if end == len(payload) {
			break
		}
	}
	if err := e.transferPending(now); err != nil {
		return sent, err
	}
	return sent, nil
}

// transferPending moves at most one staged packet into sendQueue and onto
// the wire, gated by min(cwnd, window_size); if more remain staged
// afterward it arms the pacing timer for the next transfer at
// cong.SendPeriod().
func (e *Engine) transferPending(now time.Time) error {
	if e.pacer == nil {
		return nil
	}
	pkt, ok := e.pacer.Next()
	if !ok {
		return nil
	}
	ts := e.nowStamp(now)
	seq, dropped := e.sendQ.Input(pkt.payload, ts)
	if dropped != nil {
		e.sendDropReq(dropped.Begin, dropped.End, now)
	}
	d := &DataPacket{
		Seq:          seq,
		Position:     pkt.position,
		Ordered:      true,
		MsgNr:        pkt.msgNr,
		Timestamp:    ts,
		DestSocketID: e.peerSocketID,
		Payload:      pkt.payload,
	}
	buf := AppendDataPacket(nil, d)
	if err := e.sender.SendDatagram(buf); err != nil {
		return err
	}
	e.stats.packetsSent++
	e.stats.bytesSent += uint64(len(pkt.payload))
	e.sendState.nxt = e.sendQ.curSeq
	e.lastSendTime = ts
	e.armPacing(now)
	return nil
}

// armPacing schedules the next transferPending call at the pacing
// overlay's current period, if anything remains staged.
func (e *Engine) armPacing(now time.Time) {
	if e.timers == nil || e.pacer == nil || e.pacer.Pending() == 0 {
		return
	}
	period := e.pacer.Period()
	if period <= 0 {
		return
	}
	if e.pacingTimer != 0 {
		e.timers.Cancel(e.pacingTimer)
	}
	e.pacingTimer = e.timers.ScheduleAt(TimerPacing, now.Add(time.Duration(period)*time.Microsecond))
}

func (e *Engine) sendDropReq(begin, end SeqNr, now time.Time) {
	c := &ControlPacket{
		Type:         ControlDropReq,
		TypeInfo:     uint32(begin),
		Timestamp:    e.nowStamp(now),
		DestSocketID: e.peerSocketID,
	}
	var cif [4]byte
	putSeq(cif[:], end)
	c.CIF = cif[:]
	buf := AppendControlPacket(nil, c)
	_ = e.sender.SendDatagram(buf)
}

func putSeq(dst []byte, s SeqNr) {
	dst[0] = byte(s >> 24)
	dst[1] = byte(s >> 16)
	dst[2] = byte(s >> 8)
	dst[3] = byte(s)
}

// HandleDatagram decodes and dispatches one inbound UDP payload. It never
// blocks and never spawns goroutines.
func (e *Engine) HandleDatagram(buf []byte, now time.Time) error {
	ts := e.nowStamp(now)
	e.lastRecvTime = ts
	data, ctrl, err := DecodePacket(buf)
	if err != nil {
		return err
	}
	if data != nil {
		return e.handleData(data, ts, now)
	}
	return e.handleControl(ctrl, ts, now)
}

func (e *Engine) handleData(d *DataPacket, ts TimeStamp, now time.Time) error {
	if e.state != stateConnected {
		return newErr(ErrKindInvalidState, "data packet before connected")
	}
	e.arrival.InputPacket(ts)
	e.capacity.InputPacket(ts)
	e.byteRate.InputPacket(ts, len(d.Payload))
	e.stats.packetsReceived++
	e.stats.bytesReceived += uint64(len(d.Payload))
	if d.Retransmit {
		e.stats.packetsRetransmitted++
	}
	err := e.recvQ.Admit(d.Seq, *d, ts)
	if err != nil {
		if err.(*Error).Kind == ErrKindDuplicatePacket {
			return nil // silently ignored per spec
		}
		return err
	}
	ready, dropped := e.recvQ.DeliverReady(ts)
	for _, r := range dropped {
		e.stats.packetsLost += uint64(r.End.Sub(r.Begin) + 1)
		if e.receiver != nil {
			e.receiver.OnDrop(r.Begin, r.End)
		}
	}
	for _, entry := range ready {
		if e.receiver != nil {
			e.receiver.OnReceive(entry.payload)
		}
	}
	return nil
}

func (e *Engine) handleControl(c *ControlPacket, ts TimeStamp, now time.Time) error {
	switch c.Type {
	case ControlACK:
		return e.handleACK(c, ts, now)
	case ControlACKACK:
		e.rtt.Calculate(c.TypeInfo, ts)
		return nil
	case ControlNAK:
		return e.handleNAK(c, now)
	case ControlKeepalive:
		return nil // lastRecvTime already bumped
	case ControlShutdown:
		e.reportError(ErrKindPeerShutdown, "peer closed the connection")
		e.state = stateClosed
		return nil
	case ControlPeerError:
		e.reportError(ErrKindPeerError, "peer reported fatal error")
		e.state = stateClosed
		return nil
	case ControlDropReq:
		if len(c.CIF) >= 4 && e.recvQ != nil {
			begin := SeqNr(c.TypeInfo)
			end := getSeq(c.CIF)
			e.recvQ.Drop(begin, end)
			if e.receiver != nil {
				e.receiver.OnDrop(begin, end)
			}
		}
		return nil
	case ControlHandshake:
		return e.handleHandshakeControl(c, now)
	default:
		return nil
	}
}

func getSeq(b []byte) SeqNr {
	return SeqNr(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

func (e *Engine) handleACK(c *ControlPacket, ts TimeStamp, now time.Time) error {
	if len(c.CIF) < 4 {
		return newErr(ErrKindPacketFormat, "ACK CIF")
	}
	ackSeq := getSeq(c.CIF)
	prevUna := e.sendState.una
	e.sendQ.AckSequenceTo(ackSeq)
	if e.pacer != nil {
		if n := ackSeq.Sub(prevUna); n > 0 {
			e.pacer.Acked(uint32(n))
		}
	}
	e.cong.AckSequenceTo(ackSeq, uint64(ts), e.arrival.PacketReceiveRate(), e.capacity.EstimatedLinkCapacity())
	e.sendState.una = ackSeq

	ack := &ControlPacket{
		Type:         ControlACKACK,
		TypeInfo:     c.TypeInfo,
		Timestamp:    ts,
		DestSocketID: e.peerSocketID,
	}
	buf := AppendControlPacket(nil, ack)
	return e.sender.SendDatagram(buf)
}

func (e *Engine) handleNAK(c *ControlPacket, now time.Time) error {
	ranges, err := decodeNAKRanges(c.CIF)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		begin, end := r[0], r[1]
		slots := e.sendQ.SendAgain(begin, end)
		e.stats.packetsLost += uint64(len(slots))
		e.cong.RexmitPktEvent(true, begin, end)
		for _, s := range slots {
			d := &DataPacket{Seq: s.seq, Retransmit: true, DestSocketID: e.peerSocketID, Payload: s.payload}
			buf := AppendDataPacket(nil, d)
			_ = e.sender.SendDatagram(buf)
		}
	}
	return nil
}

// HandleTimeout is invoked by the caller's executor when a previously
// scheduled TimerHandle fires.
func (e *Engine) HandleTimeout(kind TimerKind, now time.Time) error {
	ts := e.nowStamp(now)
	switch kind {
	case TimerHandshakeRetry:
		return e.retryHandshake(now)
	case TimerKeepalive:
		return e.sendKeepalive(ts)
	case TimerACK:
		return e.sendPeriodicACK(ts)
	case TimerNAK:
		return e.sendPeriodicNAK(ts)
	case TimerRexmit:
		return e.onRexmitTimer(ts)
	case TimerLiveness:
		return e.checkLiveness(now)
	case TimerPacing:
		return e.transferPending(now)
	}
	return nil
}

func (e *Engine) sendKeepalive(ts TimeStamp) error {
	c := &ControlPacket{Type: ControlKeepalive, Timestamp: ts, DestSocketID: e.peerSocketID}
	return e.sender.SendDatagram(AppendControlPacket(nil, c))
}

// ackCIFSize is the full ACK control information field: ack sequence
// number, RTT, RTTVar, available buffer size (packets), packets receive
// rate, estimated link capacity, and receive rate (bytes/sec) — seven
// 32-bit words, matching the original's CACKWindow-driven CIF layout
// rather than the bare 4-byte cumulative position this engine used before.
const ackCIFSize = 7 * 4

func (e *Engine) sendPeriodicACK(ts TimeStamp) error {
	if e.recvQ == nil {
		return nil
	}
	ackNum := uint32(ts) // monotonically increasing local ack-packet identifier
	e.rtt.AddAck(ackNum, ts)

	availBuf := e.config.MaxWindowSize - e.recvQ.ExpectedSize()
	var cif [ackCIFSize]byte
	putSeq(cif[0:4], e.recvQ.Low())
	putU32(cif[4:8], e.rtt.RTT())
	putU32(cif[8:12], e.rtt.RTTVar())
	putU32(cif[12:16], availBuf)
	putU32(cif[16:20], e.arrival.PacketReceiveRate())
	putU32(cif[20:24], e.capacity.EstimatedLinkCapacity())
	putU32(cif[24:28], e.byteRate.ReceiveRate())

	c := &ControlPacket{Type: ControlACK, TypeInfo: ackNum, Timestamp: ts, DestSocketID: e.peerSocketID, CIF: cif[:]}
	return e.sender.SendDatagram(AppendControlPacket(nil, c))
}

func putU32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

func (e *Engine) sendPeriodicNAK(ts TimeStamp) error {
	if !e.reportNAK || e.recvQ == nil {
		return nil
	}
	ranges := e.recvQ.PendingRanges()
	if len(ranges) == 0 {
		return nil
	}
	cif := make([]byte, 0, 8*len(ranges))
	for _, r := range ranges {
		cif = appendNAKRange(cif, r.Begin, r.End)
	}
	c := &ControlPacket{Type: ControlNAK, Timestamp: ts, DestSocketID: e.peerSocketID, CIF: cif}
	return e.sender.SendDatagram(AppendControlPacket(nil, c))
}

func (e *Engine) onRexmitTimer(ts TimeStamp) error {
	if e.sendQ == nil {
		return nil
	}
	res := e.sendQ.OnTimer(ts)
	for _, s := range res.Retransmit {
		e.cong.RexmitPktEvent(false, s.seq, s.seq)
		d := &DataPacket{Seq: s.seq, Retransmit: true, Timestamp: ts, DestSocketID: e.peerSocketID, Payload: s.payload}
		_ = e.sender.SendDatagram(AppendDataPacket(nil, d))
	}
	return nil
}

func (e *Engine) checkLiveness(now time.Time) error {
	ts := e.nowStamp(now)
	if ts.Sub(e.lastRecvTime) > e.config.MaxReceiveTimeoutMs*1000 {
		e.reportError(ErrKindReceiveTimeout, "no inbound packet within max_receive_time_out_ms")
		e.state = stateClosed
	}
	return nil
}

// Close sends a graceful SHUTDOWN control packet and marks the connection
// closed.
func (e *Engine) Close(now time.Time) error {
	ts := e.nowStamp(now)
	c := &ControlPacket{Type: ControlShutdown, Timestamp: ts, DestSocketID: e.peerSocketID}
	err := e.sender.SendDatagram(AppendControlPacket(nil, c))
	e.state = stateClosed
	return err
}
