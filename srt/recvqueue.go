package srt

import "sort"

// recvEntry holds one admitted-but-not-yet-delivered data packet.
type recvEntry struct {
	payload   []byte
	timestamp TimeStamp // wire timestamp the sender stamped the packet with
	arrival   TimeStamp // this engine's local clock value when the packet was admitted
	msgNr     MsgNr
	position  Position
}

// recvQueue is the gap-tolerant receive admission window: packets may arrive
// out of order within the window [low, high), and gaps are tracked so the
// periodic NAK step can request retransmission of exactly what's missing.
// There is no single original-source analog (the reference implementation
// folds this into srt_socket_service's buffer bookkeeping); the admission
// rule itself follows the teacher's validateIncomingSegment modulo-window
// check in tcp/control.go, generalized from one NXT cursor to a map.
type recvQueue struct {
	entries    map[SeqNr]recvEntry
	low        SeqNr // next sequence not yet delivered to the application
	high       SeqNr // one past the highest sequence admitted so far
	windowSize uint32

	tsbpdDelay  uint32 // microseconds; 0 disables deadline-based delivery
	dropTooLate bool
}

func newRecvQueue(start SeqNr, windowSize uint32, tsbpdDelay uint32, dropTooLate bool) *recvQueue {
	return &recvQueue{
		entries:     make(map[SeqNr]recvEntry),
		low:         start,
		high:        start,
		windowSize:  windowSize,
		tsbpdDelay:  tsbpdDelay,
		dropTooLate: dropTooLate,
	}
}

// Admit inserts a newly received data packet into the window, stamping it
// with this engine's local arrival time (used by the TSBPD deadline check in
// DeliverReady). It reports ErrKindDuplicatePacket if seq was already
// delivered or already buffered, and ErrKindWindowFull if seq lies beyond
// the admissible window.
func (q *recvQueue) Admit(seq SeqNr, d DataPacket, arrival TimeStamp) error {
	if seq.LessThan(q.low) {
		return newErr(ErrKindDuplicatePacket, "")
	}
	if _, ok := q.entries[seq]; ok {
		return newErr(ErrKindDuplicatePacket, "")
	}
	if uint32(seq.Sub(q.low)) >= q.windowSize {
		return newErr(ErrKindWindowFull, "")
	}
	q.entries[seq] = recvEntry{payload: d.Payload, timestamp: d.Timestamp, arrival: arrival, msgNr: d.MsgNr, position: d.Position}
	if !seq.LessThan(q.high) {
		q.high = seq.Add(1)
	}
	return nil
}

// DeliverReady drains ready packets in sequence order via two rules: (a) any
// contiguous run starting at low with no gap before it, and (b), when
// drop-too-late delivery is enabled, a gap at low is abandoned — and
// reported in dropped — once the next already-admitted packet past the gap
// has been waiting at least tsbpdDelay, per the time-stamped delivery
// rule. The caller is responsible for any message-reassembly semantics above
// the packet level and for notifying its own collaborator of dropped.
func (q *recvQueue) DeliverReady(now TimeStamp) (ready []recvEntry, dropped []SeqRange) {
	for {
		if e, ok := q.entries[q.low]; ok {
			ready = append(ready, e)
			delete(q.entries, q.low)
			q.low = q.low.Add(1)
			continue
		}
		if !q.dropTooLate || q.tsbpdDelay == 0 {
			break
		}
		nextSeq, ok := q.earliestAdmittedFrom(q.low)
		if !ok {
			break
		}
		entry := q.entries[nextSeq]
		if now.Sub(entry.arrival) < q.tsbpdDelay {
			break
		}
		dropped = append(dropped, SeqRange{Begin: q.low, End: nextSeq.Add(-1)})
		q.low = nextSeq
	}
	return ready, dropped
}

// earliestAdmittedFrom returns the smallest buffered sequence number not
// preceding from, if any.
func (q *recvQueue) earliestAdmittedFrom(from SeqNr) (SeqNr, bool) {
	best, ok := SeqNr(0), false
	for seq := range q.entries {
		if seq.LessThan(from) {
			continue
		}
		if !ok || seq.LessThan(best) {
			best, ok = seq, true
		}
	}
	return best, ok
}

// Drop discards every buffered packet in [begin,end] and advances low past
// end if necessary, mirroring sendQueue.Drop's eviction in response to a
// peer DROPREQ or a local TSBPD/TLPKTDROP decision.
func (q *recvQueue) Drop(begin, end SeqNr) {
	count := end.Sub(begin)
	if count < 0 {
		return
	}
	for i := int32(0); i <= count; i++ {
		delete(q.entries, begin.Add(i))
	}
	next := end.Add(1)
	if q.low.LessThan(next) {
		q.low = next
	}
	if q.high.LessThan(q.low) {
		q.high = q.low
	}
}

// PendingRanges returns the sorted list of [begin, end] inclusive gaps
// between low and high that have not yet been admitted — the set a periodic
// NAK should request retransmission of.
func (q *recvQueue) PendingRanges() []SeqRange {
	if q.low == q.high {
		return nil
	}
	have := make([]SeqNr, 0, len(q.entries))
	for seq := range q.entries {
		have = append(have, seq)
	}
	sort.Slice(have, func(i, j int) bool { return have[i].LessThan(have[j]) })

	var ranges []SeqRange
	cur := q.low
	for _, seq := range have {
		if cur.LessThan(seq) {
			ranges = append(ranges, SeqRange{Begin: cur, End: seq.Add(-1)})
		}
		cur = seq.Add(1)
	}
	if cur.LessThan(q.high) {
		ranges = append(ranges, SeqRange{Begin: cur, End: q.high.Add(-1)})
	}
	return ranges
}

// SeqRange is an inclusive range of sequence numbers, e.g. a single NAK loss
// report entry or a dropped span.
type SeqRange struct{ Begin, End SeqNr }

// Low returns the next sequence number not yet delivered — the value to
// report as the cumulative ACK position.
func (q *recvQueue) Low() SeqNr { return q.low }

// FirstSeq is an alias of Low, named to match the expected_size/first_seq/
// last_seq terminology used for the receive queue's admission window.
func (q *recvQueue) FirstSeq() SeqNr { return q.low }

// LastSeq returns the highest sequence number admitted so far, or FirstSeq
// if nothing has been admitted yet.
func (q *recvQueue) LastSeq() SeqNr {
	if q.low == q.high {
		return q.low
	}
	return q.high.Add(-1)
}

// ExpectedSize returns the span, in sequence numbers, between the next
// undelivered sequence and one past the highest admitted so far.
func (q *recvQueue) ExpectedSize() uint32 { return (uint32(q.high) - uint32(q.low)) & seqMask }
