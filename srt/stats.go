package srt

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of one Engine's traffic counters and
// estimators, as returned by Engine.Stats. Field set mirrors
// socket_statistic.hpp's bytes/packet/loss counters plus the RTT and
// congestion-window estimates a dashboard would want alongside them.
type Stats struct {
	BytesSent            uint64
	BytesReceived        uint64
	PacketsSent          uint64
	PacketsReceived      uint64
	PacketsLost          uint64
	PacketsRetransmitted uint64
	RTTMicros            uint32
	CongestionWindow     uint32
}

// StatsCollector is a prometheus.Collector exposing every Engine registered
// with it as a set of gauges/counters labelled by socket id, mirroring the
// Add/Remove/Describe/Collect shape of the teacher pack's
// exporter.TCPInfoCollector (runZeroInc-sockstats/pkg/exporter/exporter.go)
// rather than inventing a bespoke registration scheme.
type StatsCollector struct {
	mu      sync.Mutex
	engines map[string]*Engine

	bytesSent            *prometheus.Desc
	bytesReceived        *prometheus.Desc
	packetsSent          *prometheus.Desc
	packetsReceived      *prometheus.Desc
	packetsLost          *prometheus.Desc
	packetsRetransmitted *prometheus.Desc
	rttMicros            *prometheus.Desc
	congestionWindow     *prometheus.Desc
}

// NewStatsCollector constructs an empty StatsCollector. constLabels are
// attached to every metric it exports (e.g. a process or instance label).
func NewStatsCollector(constLabels prometheus.Labels) *StatsCollector {
	labels := []string{"socket_id"}
	return &StatsCollector{
		engines:              make(map[string]*Engine),
		bytesSent:            prometheus.NewDesc("srt_bytes_sent_total", "Bytes sent on this connection.", labels, constLabels),
		bytesReceived:        prometheus.NewDesc("srt_bytes_received_total", "Bytes received on this connection.", labels, constLabels),
		packetsSent:          prometheus.NewDesc("srt_packets_sent_total", "Data packets sent on this connection.", labels, constLabels),
		packetsReceived:      prometheus.NewDesc("srt_packets_received_total", "Data packets received on this connection.", labels, constLabels),
		packetsLost:          prometheus.NewDesc("srt_packets_lost_total", "Packets NAK'd by the peer and resent, plus received sequences abandoned past the TSBPD deadline.", labels, constLabels),
		packetsRetransmitted: prometheus.NewDesc("srt_packets_retransmitted_total", "Packets received with the retransmit bit set.", labels, constLabels),
		rttMicros:            prometheus.NewDesc("srt_rtt_microseconds", "Current smoothed round-trip time estimate.", labels, constLabels),
		congestionWindow:     prometheus.NewDesc("srt_congestion_window_packets", "Current congestion window size in packets.", labels, constLabels),
	}
}

// Add registers an Engine under label so it's included in future Collect
// calls. label is typically the hex or decimal socket id.
func (s *StatsCollector) Add(label string, e *Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[label] = e
}

// Remove unregisters a previously Add-ed Engine, e.g. once its connection
// closes.
func (s *StatsCollector) Remove(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.engines, label)
}

func (s *StatsCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- s.bytesSent
	descs <- s.bytesReceived
	descs <- s.packetsSent
	descs <- s.packetsReceived
	descs <- s.packetsLost
	descs <- s.packetsRetransmitted
	descs <- s.rttMicros
	descs <- s.congestionWindow
}

func (s *StatsCollector) Collect(metrics chan<- prometheus.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for label, e := range s.engines {
		st := e.Stats()
		metrics <- prometheus.MustNewConstMetric(s.bytesSent, prometheus.CounterValue, float64(st.BytesSent), label)
		metrics <- prometheus.MustNewConstMetric(s.bytesReceived, prometheus.CounterValue, float64(st.BytesReceived), label)
		metrics <- prometheus.MustNewConstMetric(s.packetsSent, prometheus.CounterValue, float64(st.PacketsSent), label)
		metrics <- prometheus.MustNewConstMetric(s.packetsReceived, prometheus.CounterValue, float64(st.PacketsReceived), label)
		metrics <- prometheus.MustNewConstMetric(s.packetsLost, prometheus.CounterValue, float64(st.PacketsLost), label)
		metrics <- prometheus.MustNewConstMetric(s.packetsRetransmitted, prometheus.CounterValue, float64(st.PacketsRetransmitted), label)
		metrics <- prometheus.MustNewConstMetric(s.rttMicros, prometheus.GaugeValue, float64(st.RTTMicros), label)
		metrics <- prometheus.MustNewConstMetric(s.congestionWindow, prometheus.GaugeValue, float64(st.CongestionWindow), label)
	}
}
