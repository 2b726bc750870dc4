package srt

import "testing"

func TestRecvQueue_PendingRanges(t *testing.T) {
	q := newRecvQueue(30, 1024, 0, false)
	for _, seq := range []SeqNr{32, 35, 36, 37, 38, 40, 50, 52, 54, 56} {
		err := q.Admit(seq, DataPacket{Payload: []byte{byte(seq)}}, 0)
		if err != nil {
			t.Fatalf("Admit(%d): %v", seq, err)
		}
	}

	got := q.PendingRanges()
	want := []SeqRange{
		{30, 31}, {33, 34}, {39, 39}, {41, 49}, {51, 51}, {53, 53}, {55, 55},
	}
	if len(got) != len(want) {
		t.Fatalf("len(ranges) = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if q.ExpectedSize() != 27 {
		t.Errorf("expected_size = %d, want 27", q.ExpectedSize())
	}
	if q.FirstSeq() != 30 {
		t.Errorf("first_seq = %v, want 30", q.FirstSeq())
	}
	if q.LastSeq() != 56 {
		t.Errorf("last_seq = %v, want 56", q.LastSeq())
	}
}

func TestRecvQueue_DeliverReadyContiguousPrefix(t *testing.T) {
	q := newRecvQueue(10, 1024, 0, false)
	must := func(seq SeqNr) {
		t.Helper()
		if err := q.Admit(seq, DataPacket{Payload: []byte{byte(seq)}}, 0); err != nil {
			t.Fatalf("Admit(%d): %v", seq, err)
		}
	}
	must(11)
	must(10)
	must(13)

	ready, dropped := q.DeliverReady(0)
	if len(ready) != 2 {
		t.Fatalf("len(ready) = %d, want 2 (10,11 only; 13 leaves a gap)", len(ready))
	}
	if len(dropped) != 0 {
		t.Fatalf("dropped = %v, want none (drop-too-late disabled)", dropped)
	}
	if q.Low() != 12 {
		t.Errorf("Low() = %v, want 12", q.Low())
	}

	must(12)
	ready, _ = q.DeliverReady(0)
	if len(ready) != 2 {
		t.Fatalf("len(ready) = %d, want 2 (12,13 now contiguous)", len(ready))
	}
	if q.Low() != 14 {
		t.Errorf("Low() = %v, want 14", q.Low())
	}
}

func TestRecvQueue_DuplicateAndWindowFull(t *testing.T) {
	q := newRecvQueue(0, 4, 0, false)
	if err := q.Admit(0, DataPacket{}, 0); err != nil {
		t.Fatalf("Admit(0): %v", err)
	}
	err := q.Admit(0, DataPacket{}, 0)
	if err == nil || err.(*Error).Kind != ErrKindDuplicatePacket {
		t.Fatalf("Admit(0) again: got %v, want ErrKindDuplicatePacket", err)
	}
	err = q.Admit(10, DataPacket{}, 0)
	if err == nil || err.(*Error).Kind != ErrKindWindowFull {
		t.Fatalf("Admit(10) beyond window: got %v, want ErrKindWindowFull", err)
	}
}

func TestRecvQueue_SeqWrap(t *testing.T) {
	start := SeqNr(seqMask) // 2^31-1
	q := newRecvQueue(start, 1024, 0, false)
	if err := q.Admit(start, DataPacket{Payload: []byte{1}}, 0); err != nil {
		t.Fatalf("Admit(wrap-1): %v", err)
	}
	if err := q.Admit(start.Add(1), DataPacket{Payload: []byte{2}}, 0); err != nil {
		t.Fatalf("Admit(wrap 0): %v", err)
	}
	ready, _ := q.DeliverReady(0)
	if len(ready) != 2 {
		t.Fatalf("len(ready) = %d, want 2 across the sequence wrap", len(ready))
	}
}

// TestRecvQueue_DropTooLateAbandonsGap reproduces the time-stamped delivery
// rule's second path: once the packet past a gap has aged beyond the
// negotiated delay, the gap is abandoned and reported instead of blocking
// delivery forever.
func TestRecvQueue_DropTooLateAbandonsGap(t *testing.T) {
	const delay = 50000 // 50ms, microseconds
	q := newRecvQueue(10, 1024, delay, true)
	if err := q.Admit(12, DataPacket{Payload: []byte{12}}, 1000); err != nil {
		t.Fatalf("Admit(12): %v", err)
	}

	ready, dropped := q.DeliverReady(1000 + delay - 1)
	if len(ready) != 0 || len(dropped) != 0 {
		t.Fatalf("DeliverReady before deadline = ready=%v dropped=%v, want none", ready, dropped)
	}

	ready, dropped = q.DeliverReady(1000 + delay)
	if len(dropped) != 1 || dropped[0] != (SeqRange{Begin: 10, End: 11}) {
		t.Fatalf("dropped = %v, want [{10 11}]", dropped)
	}
	if len(ready) != 1 || string(ready[0].payload) != string([]byte{12}) {
		t.Fatalf("ready = %v, want the packet at seq 12", ready)
	}
	if q.Low() != 13 {
		t.Errorf("Low() = %v, want 13", q.Low())
	}
}
