package srt

import "sort"

// Each meter here reimplements one of the original's std::map<int64_t,int64_t>
// sliding windows over a plain Go slice, per the teacher's general preference
// for slices over container types. All three key off the connection's
// TimeStamp clock (microseconds since an arbitrary per-connection epoch).

// arrivalMeter estimates packet receive rate from the minimum inter-arrival
// gap across the last packetRateWindow samples (packet_receive_rate in the
// original).
type arrivalMeter struct {
	samples []int64 // monotonically increasing timestamps, oldest first
}

const packetRateWindow = 100

func (m *arrivalMeter) InputPacket(now TimeStamp) {
	m.samples = append(m.samples, int64(now))
	if len(m.samples) > packetRateWindow {
		m.samples = m.samples[1:]
	}
}

// PacketReceiveRate returns the estimated packets-per-second rate, defaulting
// to 50000 when fewer than two samples are available or the minimum gap
// implies an implausibly low rate.
func (m *arrivalMeter) PacketReceiveRate() uint32 {
	if len(m.samples) < 2 {
		return 50000
	}
	minGap := int64(1000)
	for i := 1; i < len(m.samples); i++ {
		gap := m.samples[i] - m.samples[i-1]
		if gap < minGap {
			minGap = gap
		}
	}
	if minGap <= 0 {
		return 50000
	}
	rate := 1e6 / float64(minGap)
	if rate <= 1000 {
		return 50000
	}
	return uint32(rate)
}

// capacityMeter estimates link capacity (packets/sec) from the smallest
// inter-arrival gap across the last capacityWindow samples, requiring at
// least that many samples before producing a non-default estimate
// (estimated_link_capacity in the original).
type capacityMeter struct {
	samples []int64
}

const capacityWindow = 16

func (m *capacityMeter) InputPacket(now TimeStamp) {
	m.samples = append(m.samples, int64(now))
	if len(m.samples) > capacityWindow {
		m.samples = m.samples[1:]
	}
}

func (m *capacityMeter) EstimatedLinkCapacity() uint32 {
	if len(m.samples) < capacityWindow {
		return 1000
	}
	gaps := make([]int64, 0, len(m.samples)-1)
	for i := 1; i < len(m.samples); i++ {
		gaps = append(gaps, m.samples[i]-m.samples[i-1])
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	durSec := float64(gaps[0]) / 1e6
	if durSec <= 0 {
		return 1000
	}
	return uint32(1.0 / durSec)
}

// byteRateMeter estimates received byte rate over the span of its window
// (receive_rate in the original), holding payload sizes alongside arrival
// timestamps.
type byteRateMeter struct {
	times []int64
	sizes []int64
}

const byteRateWindow = 100

func (m *byteRateMeter) InputPacket(now TimeStamp, size int) {
	m.times = append(m.times, int64(now))
	m.sizes = append(m.sizes, int64(size))
	if len(m.times) > byteRateWindow {
		m.times = m.times[1:]
		m.sizes = m.sizes[1:]
	}
}

func (m *byteRateMeter) ReceiveRate() uint32 {
	if len(m.times) < 2 {
		return 0
	}
	durSec := float64(m.times[len(m.times)-1]-m.times[0]) / 1e6
	if durSec <= 0 {
		return 0
	}
	var total int64
	for _, s := range m.sizes {
		total += s
	}
	return uint32(float64(total) / durSec)
}
