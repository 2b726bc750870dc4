package srt

import (
	"math"
	"math/rand"
)

// congestionHolder is the read-only view the congestion controller needs
// into the rest of the connection. It mirrors the original's abstract
// congestion_holder base class, translated to a Go interface per the
// teacher's StackNode-interface convention for swappable collaborators.
type congestionHolder interface {
	CurrentSeq() SeqNr
	RTT() uint32
	AckLastNumber() SeqNr
	LostListSize() uint32
	MaxWindowSize() uint32
	MaxPayload() uint32
	DeliverRate() uint32
}

// rcInterval is the minimum spacing between congestion window updates
// (10ms), matching _rc_internal in the original.
const rcInterval = 10000

// maxCongestionWindow is a generous cwnd ceiling constant; not present as a
// literal in the original (MAX_CWND_SIZE is referenced only in a comment
// there). The controller does not reference it: slow start ends when cwnd
// reaches the holder's MaxWindowSize.
const maxCongestionWindow = 1 << 20

// liveCongestionController implements TCP-Reno-like slow start and
// congestion avoidance exactly as the original congestion class: pacing
// period updates, NAK-driven multiplicative backoff with randomized decrease
// spacing, and window growth gated by a holder-supplied delivery rate.
type liveCongestionController struct {
	holder congestionHolder

	pktSendPeriod float64 // microseconds per packet
	cwndSize      uint32
	lastRCTime    uint64 // microseconds, engine clock
	inSlowStart   bool

	bloss         bool
	lastDecSeq    SeqNr
	lastDecPeriod float64
	linkCapacity  uint32

	nakCount   uint32
	decRandom  uint32
	avgNakNum  uint32
	decCount   uint32

	rng *rand.Rand
}

// newLiveCongestionController constructs a controller seeded from holder's
// current state, mirroring the original constructor's last_dec_seq
// initialization to one below the last acked sequence.
func newLiveCongestionController(holder congestionHolder, nowMicros uint64, rng *rand.Rand) *liveCongestionController {
	return &liveCongestionController{
		holder:        holder,
		pktSendPeriod: 1.0,
		cwndSize:      16,
		lastRCTime:    nowMicros,
		inSlowStart:   true,
		lastDecSeq:    decSeq(holder.AckLastNumber()),
		lastDecPeriod: 1.0,
		nakCount:      1,
		decRandom:     1,
		rng:           rng,
	}
}

func decSeq(s SeqNr) SeqNr {
	if s == 0 {
		return SeqNr(seqMask)
	}
	return s - 1
}

// SendPeriod returns the current inter-packet pacing interval in
// microseconds (pkt_snd_period).
func (c *liveCongestionController) SendPeriod() float64 { return c.pktSendPeriod }

// CongestionWindow returns the current congestion window size in packets.
func (c *liveCongestionController) CongestionWindow() uint32 { return c.cwndSize }

// SlowStarting reports whether the controller is still in the slow-start
// phase.
func (c *liveCongestionController) SlowStarting() bool { return c.inSlowStart }

// RexmitPktEvent handles a loss signal: on the very first loss it ends slow
// start and switches to a deliver-rate-derived pacing period; on a NAK it
// may additionally multiplicatively back off the pacing period, following
// the original's loss-percentage gate and randomized decrease spacing.
func (c *liveCongestionController) RexmitPktEvent(isNAK bool, begin, end SeqNr) {
	if c.inSlowStart {
		c.inSlowStart = false
		c.updatePktSendPeriod()
	}
	if !isNAK {
		return
	}

	c.bloss = true
	var pktsInFlight uint32
	if c.pktSendPeriod > 0 {
		pktsInFlight = uint32(float64(c.holder.RTT()) / c.pktSendPeriod)
	}
	var lostPercentX10 uint32
	if pktsInFlight > 0 {
		lostPercentX10 = (c.holder.LostListSize() * 1000) / pktsInFlight
	}
	if lostPercentX10 < 20 {
		c.lastDecPeriod = c.pktSendPeriod
		return
	}

	if seqCmp(begin, c.lastDecSeq) > 0 {
		c.lastDecPeriod = c.pktSendPeriod
		c.pktSendPeriod = math.Ceil(c.pktSendPeriod * 1.03)
		const lossShareFactor = 0.03
		c.avgNakNum = uint32(math.Ceil(float64(c.avgNakNum)*(1-lossShareFactor) + float64(c.nakCount)*lossShareFactor))
		c.nakCount = 1
		c.decCount = 1
		c.lastDecSeq = c.holder.CurrentSeq()
		if c.avgNakNum > 1 {
			c.decRandom = uint32(1 + c.rng.Intn(int(c.avgNakNum)))
		} else {
			c.decRandom = 1
		}
		return
	}
	c.decCount++
	c.nakCount++
	if c.decCount-1 < 5 && c.nakCount%c.decRandom == 0 {
		c.pktSendPeriod = math.Ceil(c.pktSendPeriod * 1.03)
		c.lastDecSeq = c.holder.CurrentSeq()
	}
}

// AckSequenceTo advances the controller's state in response to an
// acknowledgment covering up to seq, rate-limited to once per rcInterval.
// During slow start the window grows by the newly acked range; once it
// reaches the holder's max window size (or once congestion avoidance takes
// over), the pacing period is derived from the deliver rate and an additive
// increase formula identical to the original's.
func (c *liveCongestionController) AckSequenceTo(seq SeqNr, nowMicros uint64, receiveRate, linkCapacity uint32) {
	if nowMicros-c.lastRCTime < rcInterval {
		return
	}
	c.lastRCTime = nowMicros

	if c.inSlowStart {
		c.cwndSize += seqLen(c.holder.AckLastNumber(), seq)
		if c.cwndSize >= c.holder.MaxWindowSize() {
			c.updatePktSendPeriod()
			c.inSlowStart = false
		}
		return
	}

	c.cwndSize = c.holder.DeliverRate()*(c.holder.RTT()+rcInterval)/1000000 + 16
	if c.bloss {
		c.bloss = false
		return
	}

	lossBandwidth := uint32(2.0 * (1000000.0 / c.lastDecPeriod))
	c.linkCapacity = minu32(lossBandwidth, linkCapacity)
	maxMSS := float64(c.holder.MaxPayload())
	b := float64(c.linkCapacity) - 1000000.0/c.pktSendPeriod
	if c.pktSendPeriod > c.lastDecPeriod && float64(c.linkCapacity)/9 < b {
		b = float64(c.linkCapacity) / 9
	}
	var inc float64
	if b <= 0 {
		inc = 1.0 / maxMSS
	} else {
		inc = math.Pow(10.0, math.Ceil(math.Log10(b*maxMSS*8.0))) * 0.0000015 / maxMSS
		inc = math.Max(inc, 1.0/maxMSS)
	}
	c.pktSendPeriod = (c.pktSendPeriod * rcInterval) / (c.pktSendPeriod*inc + rcInterval)
}

func (c *liveCongestionController) updatePktSendPeriod() {
	rate := c.holder.DeliverRate()
	if rate > 0 {
		c.pktSendPeriod = 1000000.0 / float64(rate)
	} else {
		c.pktSendPeriod = float64(c.cwndSize) / float64(c.holder.RTT()+rcInterval)
	}
}

// seqCmp compares two sequence numbers using the original's "small circular
// distance" heuristic (distinguishes true wraparound from a plain negative
// difference).
func seqCmp(a, b SeqNr) int32 {
	const maxSeq = 0x3FFFFFFF
	diff := int32(a) - int32(b)
	if diff < 0 {
		diff = -diff
	}
	if diff < maxSeq {
		return int32(a) - int32(b)
	}
	return int32(b) - int32(a)
}

// seqLen returns the inclusive count of sequence numbers from a to b,
// wrapping through the 31-bit space if b precedes a.
func seqLen(a, b SeqNr) uint32 {
	if a <= b {
		return uint32(b) - uint32(a) + 1
	}
	return uint32(b) - uint32(a) + seqMask + 2
}

func minu32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
