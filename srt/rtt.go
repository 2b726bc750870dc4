package srt

// maxPendingAcks bounds the RTTEstimator's pending-ack bookkeeping. The
// original srt_ack_queue keeps an unbounded unordered_map since its C++
// process lifetime is managed externally; a long-lived Go connection instead
// prunes stale entries so a run of lost ACKACKs can't leak memory.
const maxPendingAcks = 1024

// RTTEstimator tracks round-trip time using the EWMA update from the
// original srt_ack_queue: each ACK is stamped with its send time; when the
// matching ACKACK arrives, the elapsed time feeds the RTT/RTTVar filters.
type RTTEstimator struct {
	rtt    float64 // microseconds
	rttVar float64 // microseconds

	pending map[uint32]TimeStamp
	order   []uint32 // insertion order, for bounded pruning
}

// NewRTTEstimator returns an estimator seeded with the original's initial
// values (RTT=100000us, RTTVar=50000us — a conservative 100ms starting
// point before any real sample arrives).
func NewRTTEstimator() *RTTEstimator {
	return &RTTEstimator{
		rtt:     100000,
		rttVar:  50000,
		pending: make(map[uint32]TimeStamp),
	}
}

// AddAck records that an ACK carrying ackNumber was sent at now, so a later
// ACKACK for the same number can be timed.
func (r *RTTEstimator) AddAck(ackNumber uint32, now TimeStamp) {
	if len(r.pending) >= maxPendingAcks {
		r.pruneOldest()
	}
	if _, exists := r.pending[ackNumber]; !exists {
		r.order = append(r.order, ackNumber)
	}
	r.pending[ackNumber] = now
}

func (r *RTTEstimator) pruneOldest() {
	for len(r.order) > 0 {
		oldest := r.order[0]
		r.order = r.order[1:]
		if _, ok := r.pending[oldest]; ok {
			delete(r.pending, oldest)
			return
		}
	}
}

// Calculate applies the ACKACK for ackNumber received at now, updating the
// RTT/RTTVar EWMA filters. Unknown ack numbers (already pruned or never
// sent) are ignored, matching the original's "not found -> return".
func (r *RTTEstimator) Calculate(ackNumber uint32, now TimeStamp) {
	sentAt, ok := r.pending[ackNumber]
	if !ok {
		return
	}
	delete(r.pending, ackNumber)
	sample := float64(now.Sub(sentAt))
	diff := sample - r.rtt
	if diff < 0 {
		diff = -diff
	}
	// rtt_var = 3/4 * rtt_var + 1/4 * |RTT - sample|
	r.rttVar = (3*r.rttVar + diff) / 4
	// rtt = (7 * sample + rtt) / 8 -- note the sample, not the prior
	// smoothed value, carries the heavier weight; reproduced exactly as
	// srt_ack_queue::calculate computes it.
	r.rtt = (7*sample + r.rtt) / 8
}

// RTT returns the current smoothed round-trip time estimate in microseconds.
func (r *RTTEstimator) RTT() uint32 { return uint32(r.rtt) }

// RTTVar returns the current round-trip time variance estimate in
// microseconds.
func (r *RTTEstimator) RTTVar() uint32 { return uint32(r.rttVar) }

// RTO returns the retransmission timeout for the n-th retransmit attempt of
// a packet, following the send queue's pkt_RTO(counts) formula:
// counts*(rtt+4*rttVar+20000)+10000, all in microseconds.
func (r *RTTEstimator) RTO(attempt uint32) uint32 {
	if attempt == 0 {
		attempt = 1
	}
	return attempt*(r.RTT()+4*r.RTTVar()+20000) + 10000
}
