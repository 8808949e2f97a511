package h2

import "net"

// ClientStreamCreatedHandler is notified once a Start command has been
// assigned a stream id and is about to be written.
type ClientStreamCreatedHandler interface {
	// RequestCreated receives a credit handle for returning consumed
	// receive-window bytes and must return the handler that will receive
	// this stream's inbound events.
	RequestCreated(credit *WindowCredit) ClientStreamHandler
}

// ClientStreamHandler receives inbound events for one client-initiated
// stream.
type ClientStreamHandler interface {
	Headers(hs []*HeaderField, endStream bool)
	DataFrame(b []byte, endStream bool)
	Trailers(hs []*HeaderField)
	Rst(code ErrorCode)
	Error(err error)
}

// ServerHandler dispatches newly accepted request streams.
type ServerHandler interface {
	// StartRequest is called once a request's headers (and, for streams
	// without a body, its END_STREAM) have been validated. It returns the
	// handler that will receive this stream's remaining inbound events.
	StartRequest(ctx *RequestContext, req *Request, resp *ResponseSender) (ServerStreamHandler, error)
}

// ServerStreamHandler receives inbound events for one server-side stream,
// after the initial request headers already delivered via StartRequest.
type ServerStreamHandler interface {
	DataFrame(b []byte, endStream bool)
	Trailers(hs []*HeaderField)
	Rst(code ErrorCode)
	Error(err error)
}

// WindowCredit lets a stream consumer return receive-window credit to the
// connection engine once it has consumed bytes delivered to it. The engine
// also restores receive windows on its own as DATA arrives (see
// maybeSendWindowUpdates), so credit returned here is added on top of that.
type WindowCredit struct {
	streamID uint32
	commands chan<- Command
}

// Return enqueues an IncreaseInWindow command for n bytes of newly freed
// receive-window credit on this stream.
func (w *WindowCredit) Return(n uint32) {
	w.commands <- IncreaseInWindow{StreamID: w.streamID, Delta: n}
}

// Cancel abandons this stream immediately, emitting RST_STREAM(CANCEL).
// Go has no destructor to hook "the handle was dropped" the way the
// original does, so callers that would have dropped the handle must call
// Cancel explicitly instead.
func (w *WindowCredit) Cancel() {
	w.commands <- StreamEnd{StreamID: w.streamID, Code: CancelError}
}

// RequestContext carries per-request metadata made available to
// ServerHandler.StartRequest beyond the request itself.
type RequestContext struct {
	StreamID uint32

	// Conn is the underlying transport for the whole connection this
	// stream belongs to, exposed read-only so adapters (e.g. h2fasthttp)
	// can recover per-connection details like the remote address without
	// the engine itself leaking net.Conn into Stream bookkeeping.
	Conn net.Conn
}
