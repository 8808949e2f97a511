package h2

import (
	"bufio"
	"log"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// connRole is implemented by client.go and server.go: the only places
// where client and server connections actually differ.
type connRole interface {
	// isLocalID reports whether id belongs to the streams this side
	// initiates (odd for client requests, even for server pushes).
	isLocalID(id uint32) bool

	// validateHeaders checks pseudo-header presence/ordering for the
	// current message stage, returning a stream error on violation.
	validateHeaders(hs []*HeaderField, stage InMessageStage) error

	// isInformational reports whether an initial-stage HEADERS is a 1xx
	// informational response: the client keeps in_message_stage at Initial
	// for these rather than advancing to AfterInitialHeaders, since the
	// real final response headers are still to come. Always false on the
	// server role, which never receives 1xx on inbound request headers.
	isInformational(hs []*HeaderField) bool

	// onPeerStreamStart is called when a stream receives its initial HEADERS
	// (on the client, also for each 1xx informational HEADERS before the
	// final ones). The server role dispatches the new request to user code
	// (ServerHandler.StartRequest); the client role delivers the response
	// headers, on a stream it opened or on a pushed stream, to the stream's
	// handler.
	onPeerStreamStart(c *Conn, s *Stream, hs []*HeaderField, endStream bool) error

	// acceptsPushPromise reports whether this role may receive
	// PUSH_PROMISE (clients only; a server receiving one is a
	// PROTOCOL_ERROR).
	acceptsPushPromise() bool

	// onPushPromise is called once a PUSH_PROMISE's header block is fully
	// reassembled (client role only).
	onPushPromise(c *Conn, promisedID uint32, hs []*HeaderField) error

	// allocateLocalStreamID returns the next id this side initiates with
	// (odd, starting at 1, for client Start; even, starting at 2, for
	// server push).
	allocateLocalStreamID() uint32
}

// Conn drives one HTTP/2 connection: frame codec, HPACK state, the stream
// map, and the reader/writer halves. Exactly one goroutine (run) owns
// every mutable field below; the reader goroutine only
// decodes frames and forwards them over commands, and everything else
// reaches the engine the same way, so no lock is ever held across a
// suspension point.
type Conn struct {
	transport net.Conn
	br        *bufio.Reader
	bw        *bufio.Writer

	enc *Encoder
	dec *Decoder

	role connRole

	streams *StreamMap

	// local is what this side has announced; peer is what the remote side
	// has advertised to us. A third copy -- "local effective" -- is
	// localAcked: the subset of local that is safe to assume the peer has
	// applied, namely local itself once its SETTINGS frame has been acked.
	local      SettingsState
	localAcked bool
	peer       SettingsState

	connInWindow  int64
	connOutWindow int64

	writeWatermark int
	queuedBytes    int

	commands chan Command

	opts ConnOpts
	log  *log.Logger

	goAwaySent     bool
	goAwayReceived bool
	draining       bool

	handshakeDone chan struct{}
	handshakeErr  error

	done    chan struct{}
	doneErr error

	unackedPings int

	closed int32

	// pending accumulates a HEADERS/PUSH_PROMISE header block across
	// CONTINUATION frames.
	pending *pendingHeaderBlock

	// peerMaxFrameSizeAtomic mirrors c.peer.MaxFrameSize for the reader
	// goroutine, which must not touch fields the engine goroutine owns.
	// The engine updates it with atomic.StoreUint32 whenever a peer
	// SETTINGS frame changes MaxFrameSize.
	peerMaxFrameSizeAtomic uint32
}

// newConn builds a Conn in its pre-handshake state. Callers (NewClientConn/
// NewServerConn in client.go/server.go) fill in role and kick off
// Handshake.
func newConn(transport net.Conn, role connRole, opts ConnOpts) *Conn {
	watermark := opts.WriteWatermark
	if watermark <= 0 {
		watermark = DefaultWriteWatermark
	}

	c := &Conn{
		transport:      transport,
		br:             bufio.NewReaderSize(transport, 4096),
		bw:             bufio.NewWriterSize(transport, int(defaultMaxFrameSize)),
		enc:            AcquireEncoder(),
		dec:            AcquireDecoder(),
		role:           role,
		streams:        NewStreamMap(),
		local:          opts.settingsState(),
		peer:           DefaultSettingsState(),
		connInWindow:   int64(defaultInitialWindowSize),
		connOutWindow:  int64(defaultInitialWindowSize),
		writeWatermark: watermark,
		commands:       make(chan Command, 128),
		opts:           opts,
		log:            log.New(os.Stderr, "h2: ", log.LstdFlags),
		handshakeDone:  make(chan struct{}),
		done:           make(chan struct{}),
	}

	if tcp, ok := transport.(*net.TCPConn); ok && opts.NoDelay {
		_ = tcp.SetNoDelay(true)
	}

	c.dec.SetMaxTableSize(c.local.HeaderTableSize)

	atomic.StoreUint32(&c.peerMaxFrameSizeAtomic, defaultMaxFrameSize)

	return c
}

// inboundFrame wraps a decoded frame as it crosses from the reader
// goroutine to the engine goroutine over the command channel; it is not
// part of the public Command set.
type inboundFrame struct {
	fr *FrameHeader
}

// readError reports that the reader goroutine's transport read failed or
// decoded an invalid frame; the engine goroutine treats it as connection
// fatal.
type readError struct {
	err error
}

func (inboundFrame) command() {}
func (readError) command()    {}

// WaitForHandshake blocks until both sides' SETTINGS have been
// acknowledged, or returns the error that aborted the attempt.
func (c *Conn) WaitForHandshake() error {
	<-c.handshakeDone
	return c.handshakeErr
}

// Handshake performs the preface/SETTINGS exchange and, once it succeeds,
// starts the reader and engine goroutines.
// sendPreface is true for the client side only.
func (c *Conn) Handshake(sendPreface bool) error {
	var timer *time.Timer
	if c.opts.HandshakeTimeout > 0 {
		timer = time.AfterFunc(c.opts.HandshakeTimeout, func() {
			c.finishHandshake(ErrHandshakeTimeout)
			_ = c.transport.Close()
		})
	}

	err := c.doHandshake(sendPreface)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		_ = c.transport.Close()
		return err
	}

	go c.readLoop()
	go c.run()

	return nil
}

func (c *Conn) doHandshake(sendPreface bool) error {
	if sendPreface {
		if err := WritePreface(c.bw); err != nil {
			return err
		}
	} else {
		if err := ReadPreface(c.br); err != nil {
			return err
		}
	}

	fh := AcquireFrameHeader()
	st := c.local.ToFrame(true)
	fh.SetStream(0)
	fh.SetBody(st)
	if _, err := fh.WriteTo(c.bw); err != nil {
		ReleaseFrameHeader(fh)
		return err
	}
	ReleaseFrameHeader(fh)

	if err := c.bw.Flush(); err != nil {
		return err
	}

	return nil
}

func (c *Conn) finishHandshake(err error) {
	select {
	case <-c.handshakeDone:
	default:
		c.handshakeErr = err
		close(c.handshakeDone)
	}
}

// readLoop decodes frames off the transport and forwards them to the
// engine goroutine. It never mutates Conn state directly.
func (c *Conn) readLoop() {
	for {
		maxLen := atomic.LoadUint32(&c.peerMaxFrameSizeAtomic)
		if maxLen == 0 {
			maxLen = defaultMaxFrameSize
		}

		fh, err := ReadFrameFromWithSize(c.br, maxLen)
		if err == ErrUnknownFrameType {
			// Unknown frame types are ignored (RFC 7540 §4.1); the payload
			// has already been drained so the stream stays framed.
			continue
		}
		if err != nil {
			select {
			case c.commands <- readError{err}:
			case <-c.done:
			}
			return
		}
		select {
		case c.commands <- inboundFrame{fh}:
		case <-c.done:
			ReleaseFrameHeader(fh)
			return
		}
	}
}

func (c *Conn) run() {
	pingInterval := c.opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if !c.opts.DisablePingChecking {
		ticker = time.NewTicker(pingInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var fatal error

loop:
	for {
		select {
		case cmd := <-c.commands:
			if err := c.handleCommand(cmd); err != nil {
				fatal = err
				break loop
			}
		case <-tickC:
			c.sendPing()
			c.unackedPings++
			if c.unackedPings >= 3 {
				fatal = ErrPingTimeout
				break loop
			}
		}

		if err := c.flushWritable(); err != nil {
			fatal = err
			break loop
		}

		if c.draining && c.streams.Len() == 0 {
			break loop
		}
	}

	c.shutdown(fatal)
}

func (c *Conn) handleCommand(cmd Command) error {
	switch v := cmd.(type) {
	case inboundFrame:
		streamID := v.fr.Stream()
		err := c.dispatchFrame(v.fr)
		ReleaseFrameHeader(v.fr)
		return c.classifyFrameError(streamID, err)
	case readError:
		return c.classifyReadError(v.err)
	case StreamEnqueue:
		return c.handleEnqueue(v)
	case StreamEnd:
		return c.handleStreamEnd(v)
	case IncreaseInWindow:
		return c.handleIncreaseInWindow(v)
	case Pull:
		return c.handlePull(v)
	case DumpState:
		c.handleDumpState(v)
		return nil
	case Start:
		return c.handleStart(v)
	case closeRequest:
		c.beginDrain()
		close(v.done)
		return nil
	}
	return nil
}

// beginDrain marks the connection as shutting down: GOAWAY(NO_ERROR) is
// written at once, Start commands are refused from here on, and streams
// already open keep sending until they finish; run then closes the
// transport once no stream is left.
func (c *Conn) beginDrain() {
	c.sendGoAway(NoError)
	c.draining = true
}

// sendGoAway writes GOAWAY(code) at most once per connection; later calls
// (e.g. a graceful Close racing a connection error) are no-ops.
func (c *Conn) sendGoAway(code ErrorCode) {
	if c.goAwaySent {
		return
	}
	c.goAwaySent = true

	fh := AcquireFrameHeader()
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetLastStreamID(c.streams.LastPeerStreamID())
	ga.SetCode(code)
	fh.SetBody(ga)
	_ = c.writeFrame(fh)
}

// classifyReadError routes an error surfaced by the reader goroutine: a
// malformed frame still gets the peer a GOAWAY naming what went wrong,
// while a transport failure ends the connection with nothing written
// (there is no reason to believe a write would fare better than the read
// just did).
func (c *Conn) classifyReadError(err error) error {
	switch err {
	case ErrPayloadExceeds, ErrIncorrectLength, ErrMissingBytes:
		c.sendGoAway(FrameSizeError)
	case ErrStreamIDNonZero, ErrStreamIDZero, ErrBadPaddingLength, ErrStreamDependsOnSelf:
		c.sendGoAway(ProtocolError)
	default:
		if he, ok := err.(Error); ok {
			c.sendGoAway(he.Code)
		}
	}
	return err
}

// classifyFrameError routes an error returned from dispatchFrame:
// a stream-scoped Error resets just the implicated stream
// (RST_STREAM, terminal Rst delivered to its handler) and the connection
// continues; a connection-scoped Error emits GOAWAY(code) before the
// connection tears down; anything else (a codec/internal error that isn't
// our classified Error type) is treated as connection-fatal with
// INTERNAL_ERROR. streamID is the id of the frame that produced the error,
// which is also the stream RST_STREAM targets when scoped to a stream.
func (c *Conn) classifyFrameError(streamID uint32, err error) error {
	if err == nil {
		return nil
	}

	he, ok := err.(Error)
	if !ok {
		c.sendGoAway(InternalError)
		return err
	}

	if he.Scope == scopeStream {
		c.resetStream(streamID, he.Code)
		return nil
	}

	c.sendGoAway(he.Code)
	return err
}

// resetStream answers a stream-scoped error by writing RST_STREAM(code),
// delivering a terminal Rst to the stream's handler, and dropping it --
// the connection itself continues running.
func (c *Conn) resetStream(streamID uint32, code ErrorCode) {
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)
	fh.SetBody(rst)
	_ = c.writeFrame(fh)

	// The stream may not exist: a refused peer stream is reset before it
	// is ever inserted into the map.
	s := c.streams.Get(streamID)
	if s == nil {
		return
	}

	c.deliver(s, StreamItem{Err: Error{Scope: scopeStream, Code: code}})
	s.state = StreamClosed
	c.maybeCloseStream(s)
}

func (c *Conn) handleDumpState(cmd DumpState) {
	var snap ConnState
	c.streams.EachOpen(func(s *Stream) {
		snap.Streams = append(snap.Streams, StreamState2{
			ID:        s.id,
			State:     s.state,
			Stage:     s.stage,
			InWindow:  s.inWindow,
			OutWindow: s.outWindow,
			QueueLen:  len(s.outgoing),
		})
	})
	select {
	case cmd.Reply <- snap:
	default:
	}
}

func (c *Conn) handleEnqueue(cmd StreamEnqueue) error {
	s := c.streams.Get(cmd.StreamID)
	if s == nil || s.IsClosed() {
		return nil
	}
	s.outgoing = append(s.outgoing, cmd.Part)
	return nil
}

// handleStreamEnd implements the StreamEnd command: a clean close (NoError)
// just records the local-side terminal code on the stream (END_STREAM
// itself goes out only on a queued part whose EndStream flag the producer
// set); any other code is an abrupt local reset and emits RST_STREAM
// immediately, ahead of whatever is still queued.
func (c *Conn) handleStreamEnd(cmd StreamEnd) error {
	s := c.streams.Get(cmd.StreamID)
	if s == nil || s.IsClosed() {
		return nil
	}
	code := cmd.Code
	s.outgoingEnd = &code

	if code == NoError {
		return nil
	}

	fh := AcquireFrameHeader()
	fh.SetStream(cmd.StreamID)
	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)
	fh.SetBody(rst)
	_ = c.writeFrame(fh)

	s.outgoing = nil
	s.state = StreamClosed
	c.maybeCloseStream(s)
	return nil
}

func (c *Conn) handleIncreaseInWindow(cmd IncreaseInWindow) error {
	if cmd.StreamID == 0 {
		c.connInWindow += int64(cmd.Delta)

		fh := AcquireFrameHeader()
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(cmd.Delta)
		fh.SetBody(wu)
		return c.writeFrame(fh)
	}

	s := c.streams.Get(cmd.StreamID)
	if s == nil {
		return nil
	}
	s.inWindow += int64(cmd.Delta)

	fh := AcquireFrameHeader()
	fh.SetStream(cmd.StreamID)
	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(cmd.Delta)
	fh.SetBody(wu)
	return c.writeFrame(fh)
}

func (c *Conn) sendPing() {
	fh := AcquireFrameHeader()
	p := AcquireFrame(FramePing).(*Ping)
	fh.SetBody(p)
	_ = c.writeFrame(fh)
}

// writeFrame serializes fh immediately, outside the round-robin drain
// pass -- used for control frames (SETTINGS/PING/WINDOW_UPDATE acks,
// GOAWAY) that must not wait behind queued DATA.
func (c *Conn) writeFrame(fh *FrameHeader) error {
	defer ReleaseFrameHeader(fh)
	if _, err := fh.WriteTo(c.bw); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) shutdown(err error) {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.failAllStreams(err)
		_ = c.transport.Close()
		if c.opts.OnDisconnect != nil {
			c.opts.OnDisconnect(c)
		}
		c.doneErr = err
		close(c.done)
	}
	c.finishHandshake(err)
}

// failAllStreams delivers a terminal Error event to every still-live
// stream's handler. Every handler hears exactly one terminal event, and
// that must hold on a connection-fatal path too, not only on the
// per-stream RST_STREAM path resetStream takes.
func (c *Conn) failAllStreams(err error) {
	if err == nil {
		return
	}
	c.streams.EachOpen(func(s *Stream) {
		c.deliver(s, StreamItem{Err: err})
		s.state = StreamClosed
		if s.winSignal != nil {
			s.winSignal.markClosed()
		}
	})
}

// Wait blocks until the connection's engine goroutine has exited (the
// transport closed, for any reason) and returns the error that ended it,
// or nil for a clean Close.
func (c *Conn) Wait() error {
	<-c.done
	return c.doneErr
}

// Close starts a graceful shutdown (see beginDrain): GOAWAY(NO_ERROR) is
// written at once and the transport is closed once every open stream has
// finished. Close returns as soon as the shutdown has begun; Wait blocks
// until the transport is closed.
func (c *Conn) Close() error {
	reply := make(chan struct{})
	select {
	case c.commands <- closeRequest{reply}:
	case <-c.done:
		return c.doneErr
	}
	select {
	case <-reply:
	case <-c.done:
	}
	return nil
}

// sendCommand enqueues cmd unless the connection has already shut down,
// so goroutines the engine spawned (pumps) can never block forever on a
// channel nobody reads anymore.
func (c *Conn) sendCommand(cmd Command) bool {
	select {
	case c.commands <- cmd:
		return true
	case <-c.done:
		return false
	}
}

type closeRequest struct{ done chan struct{} }

func (closeRequest) command() {}
