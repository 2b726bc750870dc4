package srt

import "testing"

// TestRTTEstimator_Learning reproduces the worked example: starting from the
// default RTT=100000us/RTTVar=50000us, an ACK sent at t=0 acknowledged by its
// ACKACK at t=40ms feeds a 40000us sample into both EWMA filters.
//
// RTT = (7*sample + RTT) / 8 = (7*40000 + 100000) / 8 = 47500
// RTTVar = (3*RTTVar + |RTT-sample|) / 4 = (3*50000 + 60000) / 4 = 52500
func TestRTTEstimator_Learning(t *testing.T) {
	r := NewRTTEstimator()
	if r.RTT() != 100000 || r.RTTVar() != 50000 {
		t.Fatalf("initial RTT/RTTVar = %d/%d, want 100000/50000", r.RTT(), r.RTTVar())
	}

	r.AddAck(1, 0)
	r.Calculate(1, 40000)

	if r.RTT() != 47500 {
		t.Errorf("RTT after sample = %d, want 47500", r.RTT())
	}
	if r.RTTVar() != 52500 {
		t.Errorf("RTTVar after sample = %d, want 52500", r.RTTVar())
	}
}

func TestRTTEstimator_UnknownAckNumberIgnored(t *testing.T) {
	r := NewRTTEstimator()
	r.Calculate(999, 40000) // never added via AddAck
	if r.RTT() != 100000 || r.RTTVar() != 50000 {
		t.Errorf("Calculate on unknown ack number mutated state: RTT=%d RTTVar=%d", r.RTT(), r.RTTVar())
	}
}

func TestRTTEstimator_RepeatedACKACKIsNoop(t *testing.T) {
	r := NewRTTEstimator()
	r.AddAck(5, 0)
	r.Calculate(5, 40000)
	rtt, rttVar := r.RTT(), r.RTTVar()

	r.Calculate(5, 80000) // ack number 5 already consumed; must be ignored
	if r.RTT() != rtt || r.RTTVar() != rttVar {
		t.Errorf("repeated ACKACK for the same ack number mutated state again")
	}
}

func TestRTTEstimator_PruneBoundsMemory(t *testing.T) {
	r := NewRTTEstimator()
	for i := uint32(0); i < maxPendingAcks+10; i++ {
		r.AddAck(i, TimeStamp(i))
	}
	if len(r.pending) > maxPendingAcks {
		t.Errorf("pending map grew to %d entries, want <= %d", len(r.pending), maxPendingAcks)
	}
}

func TestRTTEstimator_RTOFormula(t *testing.T) {
	r := NewRTTEstimator() // RTT=100000, RTTVar=50000
	got := r.RTO(1)
	want := uint32(1*(100000+4*50000+20000) + 10000)
	if got != want {
		t.Errorf("RTO(1) = %d, want %d", got, want)
	}
	got2 := r.RTO(2)
	want2 := uint32(2*(100000+4*50000+20000) + 10000)
	if got2 != want2 {
		t.Errorf("RTO(2) = %d, want %d", got2, want2)
	}
}
