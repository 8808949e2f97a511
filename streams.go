package h2

// recentlyClosedCap bounds how many recently-closed stream ids are
// remembered so the reader can tell "closed" (silently ignore late frames)
// from "never existed" (PROTOCOL_ERROR)
const recentlyClosedCap = 64

// StreamMap is the connection's collection of live streams, keyed by
// stream id. Iteration follows Go map order, not stream-id order. It is
// not safe for concurrent use; it is owned
// exclusively by the connection engine's single goroutine.
type StreamMap struct {
	byID map[uint32]*Stream

	lastPeerStreamID  uint32
	lastLocalStreamID uint32

	recentlyClosed    []uint32
	recentlyClosedPos int
}

// NewStreamMap returns an empty StreamMap.
func NewStreamMap() *StreamMap {
	return &StreamMap{
		byID:           make(map[uint32]*Stream),
		recentlyClosed: make([]uint32, 0, recentlyClosedCap),
	}
}

// Insert adds s to the map. If id belongs to the peer (determined by the
// caller, which knows stream-id parity for its role) the caller must also
// call MarkPeerInitiated so last_peer_stream_id advances.
func (m *StreamMap) Insert(s *Stream) {
	m.byID[s.id] = s
}

// MarkPeerInitiated records id as the most recent peer-initiated stream,
// used later as GOAWAY's last-stream-id.
func (m *StreamMap) MarkPeerInitiated(id uint32) {
	if id > m.lastPeerStreamID {
		m.lastPeerStreamID = id
	}
}

func (m *StreamMap) MarkLocalInitiated(id uint32) {
	if id > m.lastLocalStreamID {
		m.lastLocalStreamID = id
	}
}

func (m *StreamMap) LastPeerStreamID() uint32 { return m.lastPeerStreamID }

// Get returns the stream for id, or nil if it is not currently open.
func (m *StreamMap) Get(id uint32) *Stream {
	return m.byID[id]
}

// WasRecentlyClosed reports whether id belonged to a stream this connection
// closed itself (as opposed to an id the peer never opened), so late frames
// can be distinguished: "late frames on closed streams are
// silently ignored; late frames on truly unknown ids may be PROTOCOL_ERROR".
func (m *StreamMap) WasRecentlyClosed(id uint32) bool {
	for _, rc := range m.recentlyClosed {
		if rc == id {
			return true
		}
	}
	return false
}

// Remove deletes id from the live map and records it in the bounded
// recently-closed ring so WasRecentlyClosed keeps working afterward.
func (m *StreamMap) Remove(id uint32) {
	delete(m.byID, id)

	if len(m.recentlyClosed) < recentlyClosedCap {
		m.recentlyClosed = append(m.recentlyClosed, id)
	} else {
		m.recentlyClosed[m.recentlyClosedPos] = id
		m.recentlyClosedPos = (m.recentlyClosedPos + 1) % recentlyClosedCap
	}
}

// Len returns the number of live (non-closed) streams.
func (m *StreamMap) Len() int { return len(m.byID) }

// EachWritable calls fn once for every live stream with queued output the
// writer can emit now (see Stream.Writable), in map iteration order. The
// connection writer uses
// this for its round-robin drain pass.
func (m *StreamMap) EachWritable(fn func(*Stream) bool) {
	for _, s := range m.byID {
		if s.Writable() {
			if !fn(s) {
				return
			}
		}
	}
}

// EachOpen calls fn for every live stream, regardless of writability. Used
// to rescale out_window_size on a peer SETTINGS change and to build
// DumpState snapshots.
func (m *StreamMap) EachOpen(fn func(*Stream)) {
	for _, s := range m.byID {
		fn(s)
	}
}
