package h2

// Request is the request-side view of a server stream's initial headers,
// handed to ServerHandler.StartRequest.
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Headers   []*HeaderField
}

// ResponseSender is the server role's per-stream handle for emitting a
// response. Every method enqueues a command to the writer half identically
// to the client-role Start path.
type ResponseSender struct {
	streamID uint32
	commands chan<- Command
}

func newResponseSender(streamID uint32, commands chan<- Command) *ResponseSender {
	return &ResponseSender{streamID: streamID, commands: commands}
}

// SendHeaders enqueues the response (or informational) headers.
func (r *ResponseSender) SendHeaders(hs []*HeaderField, endStream bool) {
	r.commands <- StreamEnqueue{
		StreamID: r.streamID,
		Part:     OutgoingPart{Headers: hs, EndStream: endStream},
	}
	if endStream {
		r.commands <- StreamEnd{StreamID: r.streamID, Code: NoError}
	}
}

// SendBody attaches a lazy body producer to the response, the same pump
// mechanism Start's Body argument uses on the client side.
func (r *ResponseSender) SendBody(body BodyProducer) {
	r.commands <- Pull{StreamID: r.streamID, Body: body}
}

// SendData enqueues a chunk of response body.
func (r *ResponseSender) SendData(b []byte, endStream bool) {
	r.commands <- StreamEnqueue{
		StreamID: r.streamID,
		Part:     OutgoingPart{Data: b, EndStream: endStream},
	}
	if endStream {
		r.commands <- StreamEnd{StreamID: r.streamID, Code: NoError}
	}
}

// SendTrailers enqueues trailing headers and ends the stream.
func (r *ResponseSender) SendTrailers(hs []*HeaderField) {
	r.commands <- StreamEnqueue{
		StreamID: r.streamID,
		Part:     OutgoingPart{Trailers: hs, EndStream: true},
	}
	r.commands <- StreamEnd{StreamID: r.streamID, Code: NoError}
}

// SendFound200PlainText is a convenience response used by smoke tests and
// trivial handlers: a 200 response with content-type text/plain carrying b
// as the entire body.
func (r *ResponseSender) SendFound200PlainText(b []byte) {
	status := AcquireHeaderField()
	status.Set(":status", "200")
	ct := AcquireHeaderField()
	ct.Set("content-type", "text/plain; charset=utf-8")

	r.SendHeaders([]*HeaderField{status, ct}, false)
	r.SendData(b, true)
}

// Reset abandons the response, emitting RST_STREAM with the given code.
// Callers abandoning a response midway usually pass INTERNAL_ERROR.
func (r *ResponseSender) Reset(code ErrorCode) {
	r.commands <- StreamEnd{StreamID: r.streamID, Code: code}
}
