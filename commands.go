package h2

// Command is the sum type carried on the connection's command channel:
// every mutation of connection/stream state that does not originate from
// the reader half arrives as one of these. The writer
// goroutine is the sole consumer.
type Command interface {
	command()
}

// StreamEnqueue appends one outgoing part (headers, data, or trailers) to
// a stream's pending output.
type StreamEnqueue struct {
	StreamID uint32
	Part     OutgoingPart
}

// StreamEnd marks a stream closed from the local side with the given
// error code (NoError for a clean close).
type StreamEnd struct {
	StreamID uint32
	Code     ErrorCode
}

// IncreaseInWindow returns previously-received bytes of window credit,
// causing the writer to emit a WINDOW_UPDATE for the stream (or the
// connection, if StreamID is 0).
type IncreaseInWindow struct {
	StreamID uint32
	Delta    uint32
}

// Pull attaches a lazy body producer to an already-started stream; the
// connection engine spawns a dedicated pump task (see pump.go) that reads
// chunks from Body and enqueues them as StreamEnqueue commands, waiting
// before each one, via a one-direction window receiver, until the stream's
// out-window is positive. The window shrinks only as DATA is written, so
// chunks enqueued but not yet written do not count against it.
type Pull struct {
	StreamID uint32
	Body     BodyProducer
}

// BodyProducer supplies body bytes lazily. Next returns the next chunk and
// whether it is the final one; an error ends the stream with
// InternalError.
type BodyProducer interface {
	Next() (chunk []byte, end bool, err error)
}

// DumpState requests a snapshot of every stream for diagnostics. The writer answers on Reply.
type DumpState struct {
	Reply chan<- ConnState
}

// ConnState is the snapshot DumpState answers with.
type ConnState struct {
	Streams []StreamState2
}

// StreamState2 is one stream's entry in a ConnState snapshot. Named to
// avoid colliding with the StreamState lifecycle enum.
type StreamState2 struct {
	ID        uint32
	State     StreamState
	Stage     InMessageStage
	InWindow  int64
	OutWindow int64
	QueueLen  int
}

// Start is the client-role command that opens a new request stream.
type Start struct {
	Headers   []*HeaderField
	Body      BodyProducer
	Trailers  []*HeaderField
	EndStream bool
	Handler   ClientStreamCreatedHandler
}

func (StreamEnqueue) command()    {}
func (StreamEnd) command()        {}
func (IncreaseInWindow) command() {}
func (Pull) command()             {}
func (DumpState) command()        {}
func (Start) command()            {}
