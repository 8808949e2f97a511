package h2

import (
	"net"
)

// clientRole implements connRole for client-initiated connections: odd
// local stream ids, response-shaped headers validation.
type clientRole struct {
	nextID uint32
}

func (r *clientRole) isLocalID(id uint32) bool { return id%2 == 1 }

func (r *clientRole) allocateLocalStreamID() uint32 {
	id := r.nextID
	r.nextID += 2
	return id
}

func (r *clientRole) acceptsPushPromise() bool { return true }

func (r *clientRole) validateHeaders(hs []*HeaderField, stage InMessageStage) error {
	if stage != StageInitial {
		return validateTrailers(hs)
	}
	var sawStatus, sawRegular bool
	for _, hf := range hs {
		if hf.IsPseudo() {
			if sawRegular {
				return NewStreamError(ProtocolError, "pseudo-header after a regular header field")
			}
			if hf.Key() != ":status" {
				return NewStreamError(ProtocolError, "response headers carry a request pseudo-header")
			}
			sawStatus = true
		} else {
			sawRegular = true
		}
	}
	if !sawStatus {
		return NewStreamError(ProtocolError, "response headers missing :status")
	}
	return nil
}

// validateTrailers rejects pseudo-headers in a trailing header block, which
// both roles treat identically.
func validateTrailers(hs []*HeaderField) error {
	for _, hf := range hs {
		if hf.IsPseudo() {
			return NewStreamError(ProtocolError, "pseudo-header in trailers")
		}
	}
	return nil
}

// isInformational reports a 1xx :status. Informational responses keep the
// message stage at Initial; the final response headers are still to come.
func (r *clientRole) isInformational(hs []*HeaderField) bool {
	for _, hf := range hs {
		if hf.Key() == ":status" {
			v := hf.Value()
			return len(v) == 3 && v[0] == '1'
		}
	}
	return false
}

// onPeerStreamStart delivers initial response HEADERS (including any 1xx
// informational ones) to the stream's handler. It is named to match the
// connRole interface (finishHeaders calls it whenever a stream's initial
// inbound HEADERS arrive): for the client role that is a response either on
// a stream it opened via Start or on a pushed stream, whose PUSH_PROMISE
// was handled earlier by onPushPromise.
func (r *clientRole) onPeerStreamStart(c *Conn, s *Stream, hs []*HeaderField, endStream bool) error {
	c.deliver(s, StreamItem{Headers: hs, EndStream: endStream})
	return nil
}

func (r *clientRole) onPushPromise(c *Conn, promisedID uint32, hs []*HeaderField) error {
	if promisedID <= c.streams.LastPeerStreamID() || promisedID%2 != 0 {
		return NewConnError(ProtocolError, "invalid promised stream id")
	}
	if !c.local.EnablePush {
		return NewConnError(ProtocolError, "PUSH_PROMISE with push disabled")
	}

	s := newStream(promisedID, c.local.InitialWindowSize)
	s.outWindow = int64(c.peer.InitialWindowSize)
	s.state = StreamReservedRemote
	// The stage stays Initial: the PUSH_PROMISE block is the promised
	// request, and the response HEADERS on this stream are still to come.
	c.streams.Insert(s)
	c.streams.MarkPeerInitiated(promisedID)
	c.deliver(s, StreamItem{Headers: hs})
	return nil
}

// ClientConn is an HTTP/2 connection in the client role.
type ClientConn struct {
	*Conn
	role *clientRole
}

// NewClientConn wraps transport as a client-role connection. Callers must
// call Handshake before issuing Start commands.
func NewClientConn(transport net.Conn, opts ClientOpts) *ClientConn {
	role := &clientRole{nextID: 1}
	return &ClientConn{
		Conn: newConn(transport, role, opts.ConnOpts),
		role: role,
	}
}

// Start opens a new request stream: headers (required), an optional lazy
// body, optional trailers, and the handler that will receive the
// stream-created callback. When body is non-nil, trailers are not sent:
// the body's last chunk carries END_STREAM.
func (cc *ClientConn) Start(headers []*HeaderField, body BodyProducer, trailers []*HeaderField, endStream bool, handler ClientStreamCreatedHandler) {
	cc.commands <- Start{
		Headers:   headers,
		Body:      body,
		Trailers:  trailers,
		EndStream: endStream,
		Handler:   handler,
	}
}

// Dial performs the HTTP/2 client handshake over a transport already
// produced by the caller (e.g. a TLS connector) -- it does not connect
// anywhere itself.
func Dial(transport net.Conn, opts ClientOpts) (*ClientConn, error) {
	cc := NewClientConn(transport, opts)
	if err := cc.Handshake(true); err != nil {
		return nil, err
	}
	return cc, nil
}
