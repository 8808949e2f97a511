package h2

import "sync"

// StreamState is one of the per-stream lifecycle states from RFC 7540 §5.1,
// trimmed to the subset this engine actually traverses.
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamReservedLocal
	StreamReservedRemote
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "Idle"
	case StreamReservedLocal:
		return "ReservedLocal"
	case StreamReservedRemote:
		return "ReservedRemote"
	case StreamOpen:
		return "Open"
	case StreamHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamClosed:
		return "Closed"
	}
	return "Unknown"
}

// InMessageStage tracks whether the next inbound HEADERS on a stream is
// expected to be the initial headers, trailers, or is no longer valid.
type InMessageStage int8

const (
	StageInitial InMessageStage = iota
	StageAfterInitialHeaders
	StageAfterTrailingHeaders
)

// OutgoingPart is one queued unit awaiting emission on a stream: headers,
// a chunk of body data, or trailers.
type OutgoingPart struct {
	Headers   []*HeaderField
	Data      []byte
	Trailers  []*HeaderField
	EndStream bool
}

// Stream is the per-connection-local record of one HTTP/2 stream.
// It is owned exclusively by the connection engine's single goroutine;
// no other goroutine may touch its fields.
type Stream struct {
	id    uint32
	state StreamState
	stage InMessageStage

	inWindow  int64
	outWindow int64

	inRemContentLength int64
	hasContentLength   bool

	outgoing    []OutgoingPart
	outgoingEnd *ErrorCode // set once the local side has declared the stream done

	weight    uint8
	depStream uint32
	exclusive bool

	handler interface{} // ClientStreamHandler or ServerStreamHandler
	queue   *streamQueue

	// winSignal is non-nil once a Pull command has attached a lazy body to
	// this stream: the cross-goroutine handle its pump task uses to learn
	// about out-window changes without touching Stream's own fields, which
	// are otherwise exclusively the engine goroutine's to read or write.
	winSignal *streamWindowSignal
}

var streamPool = sync.Pool{
	New: func() interface{} { return &Stream{} },
}

// newStream returns a pooled Stream initialized to Idle with the given
// initial flow-control windows.
func newStream(id uint32, initialWindow uint32) *Stream {
	s := streamPool.Get().(*Stream)
	s.id = id
	s.state = StreamIdle
	s.stage = StageInitial
	s.inWindow = int64(initialWindow)
	s.outWindow = int64(initialWindow)
	s.inRemContentLength = 0
	s.hasContentLength = false
	s.outgoing = s.outgoing[:0]
	s.outgoingEnd = nil
	s.weight = 16
	s.depStream = 0
	s.exclusive = false
	s.handler = nil
	s.queue = newStreamQueue()
	s.winSignal = nil
	return s
}

func releaseStream(s *Stream) {
	streamPool.Put(s)
}

func (s *Stream) ID() uint32            { return s.id }
func (s *Stream) State() StreamState    { return s.state }
func (s *Stream) Stage() InMessageStage { return s.stage }

// IsClosed reports whether the stream has reached its terminal state.
func (s *Stream) IsClosed() bool { return s.state == StreamClosed }

// Writable reports whether the stream has queued output the writer could
// emit right now. Flow control only governs DATA: queued headers, trailers,
// and an empty end-of-stream DATA frame are writable even at a zero
// out-window.
func (s *Stream) Writable() bool {
	if len(s.outgoing) == 0 || s.state == StreamClosed {
		return false
	}
	p := s.outgoing[0]
	if p.Headers != nil || p.Trailers != nil || len(p.Data) == 0 {
		return true
	}
	return s.outWindow > 0
}

// applyLocalEndStream transitions the stream when this side sends
// END_STREAM.
func (s *Stream) applyLocalEndStream() {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedLocal
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	}
}

// applyRemoteEndStream transitions the stream when the peer sends
// END_STREAM.
func (s *Stream) applyRemoteEndStream() {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedRemote
	case StreamHalfClosedLocal:
		s.state = StreamClosed
	}
}

// rescaleOutWindow applies a signed delta to out_window_size, as required
// when the peer's SETTINGS_INITIAL_WINDOW_SIZE changes.
func (s *Stream) rescaleOutWindow(delta int64) {
	s.outWindow += delta
}
