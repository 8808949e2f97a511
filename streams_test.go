package h2

import "testing"

func TestStreamMapInsertGetRemove(t *testing.T) {
	m := NewStreamMap()
	s := newStream(1, defaultInitialWindowSize)
	m.Insert(s)
	m.MarkPeerInitiated(1)

	if got := m.Get(1); got != s {
		t.Fatal("expected to get back the inserted stream")
	}
	if m.LastPeerStreamID() != 1 {
		t.Fatalf("got %d, want 1", m.LastPeerStreamID())
	}
	if m.Len() != 1 {
		t.Fatalf("got len %d, want 1", m.Len())
	}

	m.Remove(1)
	if m.Get(1) != nil {
		t.Fatal("expected stream to be gone after Remove")
	}
	if !m.WasRecentlyClosed(1) {
		t.Fatal("expected id 1 to be remembered as recently closed")
	}
	releaseStream(s)
}

func TestStreamMapRecentlyClosedRingWraps(t *testing.T) {
	m := NewStreamMap()
	for i := uint32(1); i <= recentlyClosedCap+10; i++ {
		m.Remove(i)
	}
	if m.WasRecentlyClosed(1) {
		t.Fatal("expected the oldest entries to have been evicted from the ring")
	}
	if !m.WasRecentlyClosed(recentlyClosedCap + 10) {
		t.Fatal("expected the most recent entry to still be remembered")
	}
}

func TestStreamMapEachWritableSkipsNonWritable(t *testing.T) {
	m := NewStreamMap()

	writable := newStream(1, defaultInitialWindowSize)
	writable.state = StreamOpen
	writable.outgoing = append(writable.outgoing, OutgoingPart{Data: []byte("x")})
	writable.outWindow = 1

	blocked := newStream(3, defaultInitialWindowSize)
	blocked.state = StreamOpen
	blocked.outgoing = append(blocked.outgoing, OutgoingPart{Data: []byte("x")})
	blocked.outWindow = 0

	empty := newStream(5, defaultInitialWindowSize)
	empty.state = StreamOpen

	m.Insert(writable)
	m.Insert(blocked)
	m.Insert(empty)

	var seen []uint32
	m.EachWritable(func(s *Stream) bool {
		seen = append(seen, s.id)
		return true
	})

	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("got %v, want [1]", seen)
	}

	releaseStream(writable)
	releaseStream(blocked)
	releaseStream(empty)
}

func TestStreamMapEachOpenVisitsEverything(t *testing.T) {
	m := NewStreamMap()
	a := newStream(1, defaultInitialWindowSize)
	b := newStream(3, defaultInitialWindowSize)
	m.Insert(a)
	m.Insert(b)

	count := 0
	m.EachOpen(func(s *Stream) { count++ })
	if count != 2 {
		t.Fatalf("got %d, want 2", count)
	}

	releaseStream(a)
	releaseStream(b)
}
