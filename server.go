package h2

import "net"

// serverRole implements connRole for server-accepted connections: even
// local stream ids (push only), request-shaped headers validation, and
// dispatch of newly accepted streams to a ServerHandler.
type serverRole struct {
	nextPushID uint32
	handler    ServerHandler
}

func (r *serverRole) isLocalID(id uint32) bool { return id%2 == 0 }

func (r *serverRole) allocateLocalStreamID() uint32 {
	id := r.nextPushID
	r.nextPushID += 2
	return id
}

func (r *serverRole) acceptsPushPromise() bool { return false }

func (r *serverRole) validateHeaders(hs []*HeaderField, stage InMessageStage) error {
	if stage != StageInitial {
		return validateTrailers(hs)
	}
	need := map[string]bool{":method": false, ":scheme": false, ":path": false}
	var sawRegular bool
	for _, hf := range hs {
		if !hf.IsPseudo() {
			sawRegular = true
			continue
		}
		if sawRegular {
			return NewStreamError(ProtocolError, "pseudo-header after a regular header field")
		}
		if _, ok := need[hf.Key()]; ok {
			need[hf.Key()] = true
		} else if hf.Key() != ":authority" {
			return NewStreamError(ProtocolError, "request headers carry an unknown pseudo-header")
		}
	}
	for k, seen := range need {
		if !seen {
			return NewStreamError(ProtocolError, "request headers missing "+k)
		}
	}
	return nil
}

// isInformational is always false: requests never carry :status, so the
// server role never sees a 1xx initial HEADERS.
func (r *serverRole) isInformational(hs []*HeaderField) bool { return false }

func (r *serverRole) onPeerStreamStart(c *Conn, s *Stream, hs []*HeaderField, endStream bool) error {
	req := &Request{Headers: hs}
	for _, hf := range hs {
		switch hf.Key() {
		case ":method":
			req.Method = hf.Value()
		case ":scheme":
			req.Scheme = hf.Value()
		case ":authority":
			req.Authority = hf.Value()
		case ":path":
			req.Path = hf.Value()
		}
	}

	ctx := &RequestContext{StreamID: s.id, Conn: c.transport}
	sender := newResponseSender(s.id, c.commands)

	handler, err := r.handler.StartRequest(ctx, req, sender)
	if err != nil {
		return NewStreamError(InternalError, err.Error())
	}

	c.attachHandler(s, handler)
	if endStream {
		c.deliver(s, StreamItem{EndStream: true})
	}
	return nil
}

// onPushPromise never fires for the server role: acceptsPushPromise
// returns false, so dispatchFrame rejects PUSH_PROMISE before reaching
// here.
func (r *serverRole) onPushPromise(c *Conn, promisedID uint32, hs []*HeaderField) error {
	return NewConnError(ProtocolError, "server role cannot receive PUSH_PROMISE")
}

// ServerConn is an HTTP/2 connection in the server role.
type ServerConn struct {
	*Conn
	role *serverRole
}

// NewServerConn wraps an already-accepted transport (post-TLS/ALPN
// negotiation, which is out of scope here) as a server-role connection.
// Callers must call Handshake(false) to read the client preface.
func NewServerConn(transport net.Conn, cfg ServerConfig) *ServerConn {
	role := &serverRole{nextPushID: 2, handler: cfg.Handler}
	return &ServerConn{
		Conn: newConn(transport, role, cfg.ConnOpts),
		role: role,
	}
}

// Serve performs the server-side handshake and then blocks until the
// connection is closed.
func (sc *ServerConn) Serve() error {
	if err := sc.Handshake(false); err != nil {
		return err
	}
	if err := sc.WaitForHandshake(); err != nil {
		return err
	}
	return sc.Wait()
}
