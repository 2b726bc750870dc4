package srt

import "testing"

// TestSendQueue_WindowEviction exercises the bounded-capacity sliding-window
// eviction behavior: pushing into a full queue drops the oldest resident
// packet and returns a droppedEvent naming it, mirroring the generic
// fixed-window push/evict behavior spec.md documents.
func TestSendQueue_WindowEviction(t *testing.T) {
	rtt := NewRTTEstimator()
	q := newSendQueue(0, 6, rtt, true, false, 0)

	values := []byte{11, 22, 33, 44, 55, 66}
	for _, v := range values {
		_, dropped := q.Input([]byte{v}, 0)
		if dropped != nil {
			t.Fatalf("unexpected drop while filling queue: %+v", dropped)
		}
	}
	if q.Len() != 6 {
		t.Fatalf("Len() = %d, want 6 (queue full)", q.Len())
	}

	seq, dropped := q.Input([]byte{77}, 0)
	if dropped == nil {
		t.Fatal("expected eviction of the oldest packet (11) once the queue is full")
	}
	if dropped.Begin != 0 || dropped.End != 0 {
		t.Errorf("dropped range = (%v,%v), want (0,0) [the packet carrying 11]", dropped.Begin, dropped.End)
	}
	if seq != 6 {
		t.Errorf("new packet's sequence = %v, want 6", seq)
	}
	if q.Len() != 6 {
		t.Fatalf("Len() after eviction = %d, want 6 (stays at capacity)", q.Len())
	}
	first := q.buckets[0][0]
	last := q.buckets[0][len(q.buckets[0])-1]
	if first.payload[0] != 22 {
		t.Errorf("oldest surviving payload = %d, want 22 (11 was evicted)", first.payload[0])
	}
	if last.payload[0] != 77 {
		t.Errorf("newest payload = %d, want 77", last.payload[0])
	}
}

func TestSendQueue_AckSequenceToTrimsFront(t *testing.T) {
	rtt := NewRTTEstimator()
	q := newSendQueue(0, 0, rtt, true, false, 0)
	for i := 0; i < 5; i++ {
		q.Input([]byte{byte(i)}, 0)
	}
	q.AckSequenceTo(3)
	if q.Len() != 2 {
		t.Fatalf("Len() after ack_to(3) = %d, want 2 (seq 3,4 remain)", q.Len())
	}
	for _, s := range q.buckets[0] {
		if s.seq.LessThan(3) {
			t.Errorf("resident packet seq %v precedes ack_to cutoff of 3", s.seq)
		}
	}
}

func TestSendQueue_SendAgainMigratesBucket(t *testing.T) {
	rtt := NewRTTEstimator()
	q := newSendQueue(100, 0, rtt, true, false, 0)
	q.Input([]byte("a"), 0)
	q.Input([]byte("b"), 0)
	q.Input([]byte("c"), 0)

	slots := q.SendAgain(101, 101)
	if len(slots) != 1 || string(slots[0].payload) != "b" || slots[0].seq != 101 {
		t.Fatalf("SendAgain(101,101) = %+v, want seq 101 payload \"b\"", slots)
	}
	if len(q.buckets) < 2 || len(q.buckets[1]) != 1 {
		t.Fatalf("expected the retransmitted packet to migrate to bucket 1, buckets=%v", q.buckets)
	}
	if len(q.buckets[0]) != 2 {
		t.Errorf("bucket 0 should retain the two non-retransmitted packets, got %d", len(q.buckets[0]))
	}
}

func TestSendQueue_OnTimerRetransmitsExpired(t *testing.T) {
	rtt := NewRTTEstimator()
	q := newSendQueue(0, 0, rtt, true, false, 0)
	seq, _ := q.Input([]byte("x"), 0)
	rto := rtt.RTO(1)

	res := q.OnTimer(TimeStamp(rto - 1))
	if len(res.Retransmit) != 0 {
		t.Fatalf("OnTimer before RTO elapsed retransmitted %d packets, want 0", len(res.Retransmit))
	}

	res = q.OnTimer(TimeStamp(rto))
	if len(res.Retransmit) != 1 || res.Retransmit[0].seq != seq {
		t.Fatalf("OnTimer at RTO = %+v, want exactly seq %v retransmitted", res.Retransmit, seq)
	}
}

func TestSendQueue_LatencyDrop(t *testing.T) {
	rtt := NewRTTEstimator()
	const maxDelayUs = 200_000
	q := newSendQueue(42, 0, rtt, true, true, maxDelayUs)
	q.Input([]byte("late"), 0)

	res := q.OnTimer(TimeStamp(250_000))
	if len(res.Dropped) != 1 || res.Dropped[0] != (droppedEvent{42, 42}) {
		t.Fatalf("OnTimer with max_delay exceeded = %+v, want a single drop of (42,42)", res.Dropped)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after latency drop = %d, want 0", q.Len())
	}
}
