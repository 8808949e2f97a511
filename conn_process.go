package h2

import "sync/atomic"

// pendingHeaderBlock accumulates HEADERS/PUSH_PROMISE fragments across
// CONTINUATION frames. Only one may be open at a time connection-wide:
// while fragments are flowing, no frame for any other stream may be
// interleaved.
type pendingHeaderBlock struct {
	streamID   uint32
	promisedID uint32
	isPush     bool
	endStream  bool
	frag       []byte

	hasPriority  bool
	priExclusive bool
	priDepStream uint32
	priWeight    uint8
}

func (c *Conn) dispatchFrame(fh *FrameHeader) error {
	if c.pending != nil && fh.Stream() != c.pending.streamID {
		return NewConnError(ProtocolError, "frame interleaved mid header block")
	}
	if c.pending != nil && fh.Type() != FrameContinuation {
		return NewConnError(ProtocolError, "expected CONTINUATION")
	}

	switch fh.Type() {
	case FrameData:
		return c.processData(fh)
	case FrameHeaders:
		return c.processHeaders(fh)
	case FrameContinuation:
		return c.processContinuation(fh)
	case FramePriority:
		return c.processPriority(fh)
	case FrameResetStream:
		return c.processRstStream(fh)
	case FrameSettings:
		return c.processSettings(fh)
	case FramePushPromise:
		return c.processPushPromise(fh)
	case FramePing:
		return c.processPing(fh)
	case FrameGoAway:
		return c.processGoAway(fh)
	case FrameWindowUpdate:
		return c.processWindowUpdate(fh)
	}
	return ErrUnknownFrameType
}

func (c *Conn) processData(fh *FrameHeader) error {
	d := fh.Body().(*Data)
	n := int64(fh.Len())

	s := c.streams.Get(fh.Stream())
	if s == nil {
		if c.streams.WasRecentlyClosed(fh.Stream()) {
			c.log.Printf("discarding late DATA on closed stream %d", fh.Stream())
			return nil
		}
		return NewConnError(ProtocolError, "DATA on unknown stream")
	}

	c.connInWindow -= n
	s.inWindow -= n
	if c.connInWindow < 0 || s.inWindow < 0 {
		return NewConnError(FlowControlError, "DATA exceeds advertised window")
	}

	endStream := d.EndStream()

	if s.hasContentLength {
		// Window accounting above covers the whole payload, padding
		// included; content-length covers only the data itself.
		s.inRemContentLength -= int64(len(d.Bytes()))
		if s.inRemContentLength < 0 {
			return NewStreamError(ProtocolError, "DATA exceeds declared content-length")
		}
		if endStream && s.inRemContentLength != 0 {
			return NewStreamError(ProtocolError, "content-length mismatch at end of stream")
		}
	}

	c.deliver(s, StreamItem{Data: d.Bytes(), EndStream: endStream})

	if endStream {
		s.applyRemoteEndStream()
		c.maybeCloseStream(s)
	} else {
		c.maybeSendWindowUpdates(s)
	}

	return nil
}

// maybeSendWindowUpdates restores stream and/or connection receive window
// once consumed credit falls below half the initial window.
func (c *Conn) maybeSendWindowUpdates(s *Stream) {
	half := int64(c.local.InitialWindowSize) / 2

	if s.inWindow < half {
		delta := int64(c.local.InitialWindowSize) - s.inWindow
		s.inWindow = int64(c.local.InitialWindowSize)

		fh := AcquireFrameHeader()
		fh.SetStream(s.id)
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(uint32(delta))
		fh.SetBody(wu)
		_ = c.writeFrame(fh)
	}

	if c.connInWindow < half {
		delta := int64(c.local.InitialWindowSize) - c.connInWindow
		c.connInWindow = int64(c.local.InitialWindowSize)

		fh := AcquireFrameHeader()
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(uint32(delta))
		fh.SetBody(wu)
		_ = c.writeFrame(fh)
	}
}

func (c *Conn) processHeaders(fh *FrameHeader) error {
	h := fh.Body().(*Headers)

	hasPriority, priEx, priDep, priW := false, false, uint32(0), uint8(0)
	if h.HasPriority() {
		hasPriority = true
		priEx, priDep, priW = h.DependsOn()
	}

	if !h.EndHeaders() {
		c.pending = &pendingHeaderBlock{
			streamID:     fh.Stream(),
			endStream:    h.EndStream(),
			frag:         append([]byte(nil), h.HeaderBlockFragment()...),
			hasPriority:  hasPriority,
			priExclusive: priEx,
			priDepStream: priDep,
			priWeight:    priW,
		}
		return nil
	}

	if err := c.finishHeaders(fh.Stream(), h.HeaderBlockFragment(), h.EndStream(), 0, false); err != nil {
		return err
	}
	if hasPriority {
		c.applyPriority(fh.Stream(), priEx, priDep, priW)
	}
	return nil
}

// applyPriority records a HEADERS/PRIORITY frame's dependency on a stream
// that is known to exist by now; see processPriority for why this is
// bookkeeping only.
func (c *Conn) applyPriority(streamID uint32, exclusive bool, dep uint32, weight uint8) {
	if s := c.streams.Get(streamID); s != nil {
		s.exclusive, s.depStream, s.weight = exclusive, dep, weight
	}
}

func (c *Conn) processPushPromise(fh *FrameHeader) error {
	if !c.role.acceptsPushPromise() {
		return NewConnError(ProtocolError, "unexpected PUSH_PROMISE")
	}

	pp := fh.Body().(*PushPromise)

	if !pp.EndHeaders() {
		c.pending = &pendingHeaderBlock{
			streamID:   fh.Stream(),
			promisedID: pp.PromisedStreamID(),
			isPush:     true,
			frag:       append([]byte(nil), pp.HeaderBlockFragment()...),
		}
		return nil
	}

	return c.finishHeaders(fh.Stream(), pp.HeaderBlockFragment(), false, pp.PromisedStreamID(), true)
}

func (c *Conn) processContinuation(fh *FrameHeader) error {
	cont := fh.Body().(*Continuation)
	if c.pending == nil || c.pending.streamID != fh.Stream() {
		return NewConnError(ProtocolError, "unexpected CONTINUATION")
	}

	c.pending.frag = append(c.pending.frag, cont.HeaderBlockFragment()...)

	if !cont.EndHeaders() {
		return nil
	}

	p := c.pending
	c.pending = nil

	if p.isPush {
		return c.finishHeaders(p.streamID, p.frag, false, p.promisedID, true)
	}
	if err := c.finishHeaders(p.streamID, p.frag, p.endStream, 0, false); err != nil {
		return err
	}
	if p.hasPriority {
		c.applyPriority(p.streamID, p.priExclusive, p.priDepStream, p.priWeight)
	}
	return nil
}

func (c *Conn) finishHeaders(streamID uint32, block []byte, endStream bool, promisedID uint32, isPush bool) error {
	hs, err := c.dec.DecodeHeaderBlock(block)
	if err != nil {
		return err
	}

	if isPush {
		return c.role.onPushPromise(c, promisedID, hs)
	}

	s := c.streams.Get(streamID)
	if s == nil {
		if c.streams.WasRecentlyClosed(streamID) {
			c.log.Printf("discarding late HEADERS on closed stream %d", streamID)
			return nil
		}
		if c.role.isLocalID(streamID) {
			// HEADERS on a stream this side never opened.
			return NewConnError(ProtocolError, "HEADERS on idle locally-owned stream")
		}
		if streamID <= c.streams.LastPeerStreamID() {
			return NewConnError(ProtocolError, "peer stream id not strictly increasing")
		}
		if uint32(c.streams.Len()) >= c.local.MaxConcurrentStreams {
			c.streams.MarkPeerInitiated(streamID)
			return NewStreamError(RefusedStreamError, "too many concurrent streams")
		}
		s = newStream(streamID, c.local.InitialWindowSize)
		s.outWindow = int64(c.peer.InitialWindowSize)
		s.state = StreamOpen
		c.streams.Insert(s)
		c.streams.MarkPeerInitiated(streamID)
	}

	if s.state == StreamReservedRemote {
		// The promised stream's response headers arrive here; receiving
		// them moves the reservation to half-closed (local), RFC 7540 §5.1.
		s.state = StreamHalfClosedLocal
	}

	switch s.stage {
	case StageInitial:
		if err := c.role.validateHeaders(hs, StageInitial); err != nil {
			return err
		}
		if !c.role.isInformational(hs) {
			s.stage = StageAfterInitialHeaders
			applyContentLength(s, hs)
		}

		if s.state == StreamOpen || s.state == StreamHalfClosedLocal {
			if err := c.role.onPeerStreamStart(c, s, hs, endStream); err != nil {
				return err
			}
		} else {
			c.deliver(s, StreamItem{Headers: hs, EndStream: endStream})
		}
	case StageAfterInitialHeaders:
		if !endStream {
			return NewStreamError(ProtocolError, "second HEADERS without END_STREAM")
		}
		if err := c.role.validateHeaders(hs, StageAfterInitialHeaders); err != nil {
			return err
		}
		s.stage = StageAfterTrailingHeaders
		c.deliver(s, StreamItem{Trailers: hs, EndStream: true})
	default:
		return NewStreamError(ProtocolError, "HEADERS after trailers")
	}

	if endStream {
		s.applyRemoteEndStream()
		c.maybeCloseStream(s)
	}

	return nil
}

func applyContentLength(s *Stream, hs []*HeaderField) {
	for _, hf := range hs {
		if hf.Key() == "content-length" {
			var n int64
			for _, ch := range hf.ValueBytes() {
				if ch < '0' || ch > '9' {
					return
				}
				n = n*10 + int64(ch-'0')
			}
			s.inRemContentLength = n
			s.hasContentLength = true
			return
		}
	}
}

func (c *Conn) processRstStream(fh *FrameHeader) error {
	r := fh.Body().(*RstStream)
	s := c.streams.Get(fh.Stream())
	if s == nil {
		return nil
	}
	c.deliver(s, StreamItem{Err: Error{Scope: scopeStream, Code: r.Code()}})
	s.state = StreamClosed
	c.maybeCloseStream(s)
	return nil
}

func (c *Conn) processSettings(fh *FrameHeader) error {
	st := fh.Body().(*Settings)
	if st.IsAck() {
		c.localAcked = true
		c.finishHandshake(nil)
		return nil
	}

	delta, err := c.peer.Apply(st)
	if err != nil {
		return err
	}

	atomic.StoreUint32(&c.peerMaxFrameSizeAtomic, c.peer.MaxFrameSize)

	if delta != 0 {
		c.streams.EachOpen(func(s *Stream) {
			s.rescaleOutWindow(delta)
			c.notifyWindowChange(s)
		})
	}

	c.enc.SetMaxTableSize(c.peer.HeaderTableSize)

	ack := AcquireFrame(FrameSettings).(*Settings)
	ack.SetAck(true)
	fh2 := AcquireFrameHeader()
	fh2.SetBody(ack)
	return c.writeFrame(fh2)
}

func (c *Conn) processPing(fh *FrameHeader) error {
	p := fh.Body().(*Ping)
	if p.IsAck() {
		if c.unackedPings > 0 {
			c.unackedPings--
		}
		return nil
	}

	reply := AcquireFrame(FramePing).(*Ping)
	reply.SetAck(true)
	reply.SetData(p.Data())
	fh2 := AcquireFrameHeader()
	fh2.SetBody(reply)
	return c.writeFrame(fh2)
}

func (c *Conn) processGoAway(fh *FrameHeader) error {
	ga := fh.Body().(*GoAway)
	c.goAwayReceived = true
	c.draining = true

	// Streams above last-stream-id will never complete on the peer; they
	// surface the GOAWAY as a terminal error and go away. Streams at or
	// below it keep running to completion.
	err := NewConnError(ga.Code(), "peer sent GOAWAY")
	var abandoned []*Stream
	c.streams.EachOpen(func(s *Stream) {
		if c.role.isLocalID(s.id) && s.id > ga.LastStreamID() {
			abandoned = append(abandoned, s)
		}
	})
	for _, s := range abandoned {
		c.deliver(s, StreamItem{Err: err})
		s.state = StreamClosed
		c.maybeCloseStream(s)
	}
	return nil
}

func (c *Conn) processWindowUpdate(fh *FrameHeader) error {
	wu := fh.Body().(*WindowUpdate)

	if fh.Stream() == 0 {
		if wu.Increment() == 0 {
			return NewConnError(FlowControlError, "connection window update increment of 0")
		}
		c.connOutWindow += int64(wu.Increment())
		if c.connOutWindow > int64(maxWindowSize) {
			return NewConnError(FlowControlError, "connection window overflow")
		}
		return nil
	}

	if wu.Increment() == 0 {
		return NewStreamError(ProtocolError, "window update increment of 0")
	}

	s := c.streams.Get(fh.Stream())
	if s == nil {
		return nil
	}
	s.outWindow += int64(wu.Increment())
	if s.outWindow > int64(maxWindowSize) {
		return NewStreamError(FlowControlError, "stream window overflow")
	}
	c.notifyWindowChange(s)
	return nil
}

// processPriority records the dependency/weight a PRIORITY frame declares
// on a stream it already knows about. The engine never builds or enforces
// a priority tree from this, and nothing reads the recorded values back
// (DumpState snapshots do not include them).
func (c *Conn) processPriority(fh *FrameHeader) error {
	p := fh.Body().(*Priority)

	if s := c.streams.Get(fh.Stream()); s != nil {
		ex, dep, w := p.DependsOn()
		s.exclusive, s.depStream, s.weight = ex, dep, w
	}

	return nil
}

// deliver routes a received item either to the stream's attached handler
// (dispatched synchronously, in wire order) or queues it on
// the stream's sync queue if no handler is attached yet. Queued items are
// deep-copied first: the data and header-field storage they reference is
// pooled and will be recycled as soon as the current frame is released,
// while a queued item outlives it.
func (c *Conn) deliver(s *Stream, item StreamItem) {
	if s.handler == nil {
		s.queue.push(retainItem(item))
		return
	}
	c.dispatch(s, item)
}

func retainItem(item StreamItem) StreamItem {
	if item.Data != nil {
		item.Data = append([]byte(nil), item.Data...)
	}
	item.Headers = retainFields(item.Headers)
	item.Trailers = retainFields(item.Trailers)
	return item
}

func retainFields(hs []*HeaderField) []*HeaderField {
	if hs == nil {
		return nil
	}
	out := make([]*HeaderField, len(hs))
	for i, hf := range hs {
		cp := AcquireHeaderField()
		cp.SetBytes(hf.KeyBytes(), hf.ValueBytes())
		cp.SetSensitive(hf.IsSensitive())
		out[i] = cp
	}
	return out
}

func (c *Conn) dispatch(s *Stream, item StreamItem) {
	switch h := s.handler.(type) {
	case ClientStreamHandler:
		if item.Err != nil {
			if he, ok := item.Err.(Error); ok && he.Scope == scopeStream {
				h.Rst(he.Code)
			} else {
				h.Error(item.Err)
			}
			return
		}
		switch {
		case item.Trailers != nil:
			h.Trailers(item.Trailers)
		case item.Headers != nil:
			h.Headers(item.Headers, item.EndStream)
		default:
			h.DataFrame(item.Data, item.EndStream)
		}
	case ServerStreamHandler:
		if item.Err != nil {
			if he, ok := item.Err.(Error); ok && he.Scope == scopeStream {
				h.Rst(he.Code)
			} else {
				h.Error(item.Err)
			}
			return
		}
		switch {
		case item.Trailers != nil:
			h.Trailers(item.Trailers)
		default:
			h.DataFrame(item.Data, item.EndStream)
		}
	}
}

// attachHandler binds a stream's handler and replays anything that queued
// before it was attached, in order.
func (c *Conn) attachHandler(s *Stream, handler interface{}) {
	s.handler = handler
	s.queue.drain(func(item StreamItem) { c.dispatch(s, item) })
}

func (c *Conn) maybeCloseStream(s *Stream) {
	if s.state != StreamClosed {
		return
	}
	if s.winSignal != nil {
		s.winSignal.markClosed()
	}
	c.streams.Remove(s.id)
	releaseStream(s)
}

// flushWritable drains every writable stream round-robin until the write
// watermark, a stream's window, or the connection's out-window is
// exhausted, then flushes the buffered bytes to the transport. Once the
// flush succeeds the queued-byte count resets: the watermark bounds bytes
// buffered but not yet on the wire, not lifetime throughput.
func (c *Conn) flushWritable() error {
	wrote := true
	for wrote && c.queuedBytes < c.writeWatermark {
		wrote = false
		c.streams.EachWritable(func(s *Stream) bool {
			if c.queuedBytes >= c.writeWatermark {
				return false
			}
			if c.writeOnePart(s) {
				wrote = true
			}
			return true
		})
	}

	if err := c.bw.Flush(); err != nil {
		return err
	}
	c.queuedBytes = 0
	return nil
}

func (c *Conn) writeOnePart(s *Stream) bool {
	if len(s.outgoing) == 0 {
		return false
	}
	part := s.outgoing[0]

	switch {
	case part.Headers != nil:
		c.writeHeaderBlock(s.id, part.Headers, part.EndStream, false, 0)
		s.outgoing = s.outgoing[1:]
		if part.EndStream {
			s.applyLocalEndStream()
			c.maybeCloseStream(s)
		}
		return true

	case part.Trailers != nil:
		c.writeHeaderBlock(s.id, part.Trailers, true, false, 0)
		s.outgoing = s.outgoing[1:]
		s.applyLocalEndStream()
		c.maybeCloseStream(s)
		return true

	default:
		max := int64(c.peer.MaxFrameSize)
		if max > s.outWindow {
			max = s.outWindow
		}
		if max > c.connOutWindow {
			max = c.connOutWindow
		}
		if max <= 0 && len(part.Data) > 0 {
			return false
		}

		chunk := part.Data
		final := true
		if int64(len(chunk)) > max {
			chunk = chunk[:max]
			final = false
		}

		fh := AcquireFrameHeader()
		fh.SetStream(s.id)
		d := AcquireFrame(FrameData).(*Data)
		d.SetData(chunk)
		endStream := final && part.EndStream
		d.SetEndStream(endStream)
		fh.SetBody(d)

		n, err := fh.WriteTo(c.bw)
		ReleaseFrameHeader(fh)
		if err != nil {
			return false
		}
		c.queuedBytes += int(n)
		s.outWindow -= int64(len(chunk))
		c.connOutWindow -= int64(len(chunk))
		c.notifyWindowChange(s)

		if final {
			s.outgoing = s.outgoing[1:]
			if endStream {
				s.applyLocalEndStream()
				c.maybeCloseStream(s)
			}
		} else {
			s.outgoing[0].Data = part.Data[len(chunk):]
		}
		return true
	}
}

// writeHeaderBlock encodes hs and fragments it across one HEADERS (or
// PUSH_PROMISE, if promisedID != 0) frame plus as many CONTINUATION frames
// as needed so that no fragment exceeds peer.MaxFrameSize. The whole
// sequence is written without interleaving any other stream's frame, so
// the block reaches the peer intact and in order.
func (c *Conn) writeHeaderBlock(streamID uint32, hs []*HeaderField, endStream, isPush bool, promisedID uint32) {
	block := c.enc.EncodeHeaderBlock(hs)
	max := int(c.peer.MaxFrameSize)

	first := block
	rest := []byte(nil)
	if len(first) > max {
		rest = first[max:]
		first = first[:max]
	}

	fh := AcquireFrameHeader()
	fh.maxLen = c.peer.MaxFrameSize
	fh.SetStream(streamID)

	if isPush {
		pp := AcquireFrame(FramePushPromise).(*PushPromise)
		pp.SetPromisedStreamID(promisedID)
		pp.SetEndHeaders(len(rest) == 0)
		pp.SetHeaderBlockFragment(first)
		fh.SetBody(pp)
	} else {
		h := AcquireFrame(FrameHeaders).(*Headers)
		h.SetEndStream(endStream)
		h.SetEndHeaders(len(rest) == 0)
		h.SetHeaderBlockFragment(first)
		fh.SetBody(h)
	}

	n, err := fh.WriteTo(c.bw)
	ReleaseFrameHeader(fh)
	if err != nil {
		return
	}
	c.queuedBytes += int(n)

	for len(rest) > 0 {
		chunk := rest
		last := true
		if len(chunk) > max {
			chunk = chunk[:max]
			last = false
		}
		rest = rest[len(chunk):]

		fh := AcquireFrameHeader()
		fh.maxLen = c.peer.MaxFrameSize
		fh.SetStream(streamID)
		cont := AcquireFrame(FrameContinuation).(*Continuation)
		cont.SetEndHeaders(last)
		cont.SetHeaderBlockFragment(chunk)
		fh.SetBody(cont)

		n, err := fh.WriteTo(c.bw)
		ReleaseFrameHeader(fh)
		if err != nil {
			return
		}
		c.queuedBytes += int(n)
	}
}

// handleStart implements the client-role Start command: it
// allocates the next odd stream id, attaches the caller's handler, and
// queues the request headers (plus body/trailers) for emission.
func (c *Conn) handleStart(cmd Start) error {
	if c.draining {
		// A GOAWAY (sent or received) forbids new streams; the caller still
		// gets its one terminal event instead of silence.
		if cmd.Handler != nil {
			handler := cmd.Handler.RequestCreated(&WindowCredit{commands: c.commands})
			if handler != nil {
				handler.Error(ErrConnClosed)
			}
		}
		return nil
	}

	id := c.role.allocateLocalStreamID()
	s := newStream(id, c.local.InitialWindowSize)
	s.outWindow = int64(c.peer.InitialWindowSize)
	s.state = StreamOpen
	c.streams.Insert(s)
	c.streams.MarkLocalInitiated(id)

	credit := &WindowCredit{streamID: id, commands: c.commands}
	if cmd.Handler != nil {
		handler := cmd.Handler.RequestCreated(credit)
		c.attachHandler(s, handler)
	}

	endStream := cmd.EndStream && cmd.Body == nil && cmd.Trailers == nil
	s.outgoing = append(s.outgoing, OutgoingPart{Headers: cmd.Headers, EndStream: endStream})

	if cmd.Body != nil {
		return c.handlePull(Pull{StreamID: id, Body: cmd.Body})
	}
	if cmd.Trailers != nil {
		s.outgoing = append(s.outgoing, OutgoingPart{Trailers: cmd.Trailers, EndStream: true})
	} else if endStream {
		noErr := NoError
		s.outgoingEnd = &noErr
	}

	return nil
}
