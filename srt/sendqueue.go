package srt

// sendSlot is one in-flight data packet awaiting acknowledgment.
type sendSlot struct {
	seq             SeqNr
	payload         []byte
	submitTime      TimeStamp
	retransmitAt    TimeStamp
	retransmitCount uint32
}

// sendQueue is the bucketed retransmission queue from packet_sending_queue.hpp:
// packets live in bucket 0 until their first retransmit timeout, at which
// point the still-unacked prefix of the bucket migrates to bucket 1, and so
// on. Each bucket's front element always holds the next-to-expire packet for
// that bucket, so finding the global next expiry only requires comparing one
// element per bucket instead of the whole queue — the named "bucketed
// variant" called for in spec.md's Open Questions.
type sendQueue struct {
	buckets        [][]sendSlot
	curSeq         SeqNr
	maxPackets     int
	allocatedBytes int

	enableNAK  bool
	enableDrop bool
	maxDelay   uint32 // microseconds; 0 disables latency-based dropping

	rtt *RTTEstimator
}

func newSendQueue(start SeqNr, maxPackets int, rtt *RTTEstimator, enableNAK, enableDrop bool, maxDelay uint32) *sendQueue {
	return &sendQueue{
		curSeq:     start,
		maxPackets: maxPackets,
		enableNAK:  enableNAK,
		enableDrop: enableDrop,
		maxDelay:   maxDelay,
		rtt:        rtt,
	}
}

// Len returns the total number of packets awaiting acknowledgment across all
// buckets.
func (q *sendQueue) Len() int {
	n := 0
	for _, b := range q.buckets {
		n += len(b)
	}
	return n
}

// nextSequence consumes and returns the next sequence number to assign,
// advancing the circular counter.
func (q *sendQueue) nextSequence() SeqNr {
	s := q.curSeq
	q.curSeq = s.Add(1)
	return s
}

// droppedEvent, when non-nil after Input, names a range the caller must
// signal to its peer with a DROPREQ (the queue evicted an unacked packet to
// make room for a new one, per the original's capacity-exhausted eviction).
type droppedEvent struct{ Begin, End SeqNr }

// Input assigns the next sequence number to payload and appends it to the
// head bucket, evicting the oldest unacked packet first if the queue is at
// capacity. now stamps the packet's submission time and seeds its first
// retransmit deadline via the RTT estimator's RTO(1).
func (q *sendQueue) Input(payload []byte, now TimeStamp) (seq SeqNr, dropped *droppedEvent) {
	if q.maxPackets > 0 && q.Len() >= q.maxPackets {
		if ev := q.evictOldest(); ev != nil {
			dropped = ev
		}
	}
	seq = q.nextSequence()
	slot := sendSlot{
		seq:          seq,
		payload:      payload,
		submitTime:   now,
		retransmitAt: now.Add(q.rtt.RTO(1)),
	}
	if len(q.buckets) == 0 {
		q.buckets = append(q.buckets, nil)
	}
	q.buckets[0] = append(q.buckets[0], slot)
	q.allocatedBytes += len(payload)
	return seq, dropped
}

func (q *sendQueue) evictOldest() *droppedEvent {
	for i := len(q.buckets) - 1; i >= 0; i-- {
		if len(q.buckets[i]) == 0 {
			continue
		}
		evicted := q.buckets[i][0]
		q.buckets[i] = q.buckets[i][1:]
		q.allocatedBytes -= len(evicted.payload)
		return &droppedEvent{Begin: evicted.seq, End: evicted.seq}
	}
	return nil
}

// findRange locates the contiguous [begin,end] run within bucket i, ordered
// by submission order rather than by sequence value (mirroring the
// original's find_packet_by_sequence, which walks submission order and swaps
// the endpoints if they were found out of order).
func findRange(bucket []sendSlot, begin, end SeqNr) (lo, hi int, ok bool) {
	bi, ei := -1, -1
	for i, s := range bucket {
		if s.seq == begin {
			bi = i
		}
		if s.seq == end {
			ei = i
			break
		}
	}
	if bi == -1 || ei == -1 {
		return 0, 0, false
	}
	if bi > ei {
		bi, ei = ei, bi
	}
	return bi, ei, true
}

// Drop removes the packets in [begin,end] from whichever bucket holds them,
// in response to a peer DROPREQ or local TLPKTDROP decision.
func (q *sendQueue) Drop(begin, end SeqNr) {
	for i := range q.buckets {
		lo, hi, ok := findRange(q.buckets[i], begin, end)
		if !ok {
			continue
		}
		for _, s := range q.buckets[i][lo : hi+1] {
			q.allocatedBytes -= len(s.payload)
		}
		q.buckets[i] = append(q.buckets[i][:lo], q.buckets[i][hi+1:]...)
	}
}

// SendAgain marks every packet in [begin,end] for immediate retransmission
// (as opposed to waiting for its RTO) in response to a NAK, returning the
// slots (seq + payload) for the caller to re-send, and migrates them to the
// next bucket.
func (q *sendQueue) SendAgain(begin, end SeqNr) []sendSlot {
	var out []sendSlot
	for i := len(q.buckets) - 1; i >= 0; i-- {
		lo, hi, ok := findRange(q.buckets[i], begin, end)
		if !ok {
			continue
		}
		moved := make([]sendSlot, hi-lo+1)
		copy(moved, q.buckets[i][lo:hi+1])
		for j := range moved {
			moved[j].retransmitCount++
		}
		out = append(out, moved...)
		q.buckets[i] = append(q.buckets[i][:lo], q.buckets[i][hi+1:]...)
		q.ensureBucket(i + 1)
		q.buckets[i+1] = append(q.buckets[i+1], moved...)
	}
	return out
}

// AckSequenceTo drops every packet with sequence strictly before seq from
// the front of each bucket (SRT ACKs are cumulative, so only a front-trim is
// needed per bucket).
func (q *sendQueue) AckSequenceTo(seq SeqNr) {
	for i := range q.buckets {
		b := q.buckets[i]
		trim := 0
		for trim < len(b) && b[trim].seq.LessThan(seq) {
			q.allocatedBytes -= len(b[trim].payload)
			trim++
		}
		q.buckets[i] = b[trim:]
	}
}

func (q *sendQueue) ensureBucket(i int) {
	for len(q.buckets) <= i {
		q.buckets = append(q.buckets, nil)
	}
}

// nextExpiry returns the earliest retransmitAt across all non-empty
// buckets' front elements, mirroring get_minimum_expired.
func (q *sendQueue) nextExpiry() (TimeStamp, bool) {
	idx, ok := q.bucketWithEarliestExpiry()
	if !ok {
		return 0, false
	}
	return q.buckets[idx][0].retransmitAt, true
}

// timerResult summarizes what OnTimer found: packets due for retransmission
// (payload + new attempt count) and packets dropped for exceeding maxDelay.
type timerResult struct {
	Retransmit []sendSlot
	Dropped    []droppedEvent
}

// OnTimer sweeps the bucket whose front packet expires earliest for packets
// whose retransmitAt has elapsed (or which have aged past maxDelay, if
// latency-based dropping is enabled), retransmitting or dropping each in
// turn and migrating the retransmitted ones to the next bucket, exactly as
// on_timer in the original.
func (q *sendQueue) OnTimer(now TimeStamp) timerResult {
	var res timerResult
	idx, ok := q.bucketWithEarliestExpiry()
	if !ok {
		return res
	}
	bucket := q.buckets[idx]
	i := 0
	for i < len(bucket) {
		s := &bucket[i]
		if q.enableDrop && q.maxDelay != 0 && now.Sub(s.submitTime) >= q.maxDelay {
			res.Dropped = append(res.Dropped, droppedEvent{Begin: s.seq, End: s.seq})
			q.allocatedBytes -= len(s.payload)
			bucket = append(bucket[:i], bucket[i+1:]...)
			continue
		}
		if int32(s.retransmitAt.Sub(now)) > 0 {
			break
		}
		s.retransmitCount++
		if q.enableNAK {
			res.Retransmit = append(res.Retransmit, *s)
		}
		s.retransmitAt = s.retransmitAt.Add(q.rtt.RTO(s.retransmitCount))
		i++
	}
	moved := bucket[:i]
	q.buckets[idx] = bucket[i:]
	if len(moved) > 0 {
		q.ensureBucket(idx + 1)
		q.buckets[idx+1] = append(q.buckets[idx+1], moved...)
	}
	return res
}

func (q *sendQueue) bucketWithEarliestExpiry() (int, bool) {
	best := -1
	var bestAt TimeStamp
	for i, b := range q.buckets {
		if len(b) == 0 {
			continue
		}
		if best == -1 || int32(b[0].retransmitAt.Sub(bestAt)) < 0 {
			best = i
			bestAt = b[0].retransmitAt
		}
	}
	return best, best != -1
}
