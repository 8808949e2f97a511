package h2

import "sync/atomic"

// streamWindowSignal is the one-direction window receiver a per-stream pump
// task waits on. It is a plain heap value, not pooled with Stream, so a
// pump goroutine can hold a reference to it safely even after the Stream it
// was created for is closed and returned to streamPool: the pump only ever
// touches this struct, never Stream's own fields, which belong exclusively
// to the engine goroutine.
type streamWindowSignal struct {
	window int64 // atomic mirror of Stream.outWindow
	closed int32 // atomic; set once the stream is gone
	wake   chan struct{}
}

func newStreamWindowSignal(initial int64) *streamWindowSignal {
	return &streamWindowSignal{window: initial, wake: make(chan struct{}, 1)}
}

// setWindow updates the mirrored out-window and wakes a blocked pump if the
// window is now positive. Called by the engine goroutine only, from every
// site that mutates Stream.outWindow.
func (w *streamWindowSignal) setWindow(n int64) {
	atomic.StoreInt64(&w.window, n)
	if n > 0 {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// markClosed wakes a blocked pump for the last time so it can observe the
// stream is gone and stop instead of waiting on a window that will never
// move again.
func (w *streamWindowSignal) markClosed() {
	atomic.StoreInt32(&w.closed, 1)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *streamWindowSignal) isClosed() bool { return atomic.LoadInt32(&w.closed) != 0 }

// await blocks until the stream's out-window is positive or the stream has
// closed. Returns false if the stream closed first.
func (w *streamWindowSignal) await() bool {
	for {
		if w.isClosed() {
			return false
		}
		if atomic.LoadInt64(&w.window) > 0 {
			return true
		}
		<-w.wake
	}
}

// notifyWindowChange refreshes s's mirrored out-window after the engine
// goroutine has changed it (WINDOW_UPDATE received, a SETTINGS-driven
// rescale, or a DATA frame actually written to the wire). A no-op if no
// pump is attached.
func (c *Conn) notifyWindowChange(s *Stream) {
	if s.winSignal != nil {
		s.winSignal.setWindow(s.outWindow)
	}
}

// handlePull implements the Pull command: it attaches cmd.Body to the
// stream (allocating its window signal on first use) and spawns the
// dedicated pump task that reads chunks from it and feeds them to the
// engine as the stream's out-window allows.
func (c *Conn) handlePull(cmd Pull) error {
	s := c.streams.Get(cmd.StreamID)
	if s == nil || cmd.Body == nil {
		return nil
	}

	if s.winSignal == nil {
		s.winSignal = newStreamWindowSignal(s.outWindow)
	}

	go c.pump(cmd.StreamID, cmd.Body, s.winSignal)
	return nil
}

// pump is the per-stream task spawned by handlePull. It runs in its own
// goroutine (never the engine goroutine) precisely so it can block on
// sig.await without stalling the connection's single command loop: it
// reads one chunk, waits for positive out-window, enqueues it, and repeats
// until the body ends, the stream closes, or the producer errors.
func (c *Conn) pump(streamID uint32, body BodyProducer, sig *streamWindowSignal) {
	for {
		chunk, end, err := body.Next()
		if err != nil {
			c.sendCommand(StreamEnd{StreamID: streamID, Code: InternalError})
			return
		}

		if len(chunk) > 0 {
			if !sig.await() {
				return
			}
			if !c.sendCommand(StreamEnqueue{StreamID: streamID, Part: OutgoingPart{Data: chunk, EndStream: end}}) {
				return
			}
		} else if end {
			if !c.sendCommand(StreamEnqueue{StreamID: streamID, Part: OutgoingPart{Data: nil, EndStream: true}}) {
				return
			}
		}

		if end {
			c.sendCommand(StreamEnd{StreamID: streamID, Code: NoError})
			return
		}
	}
}
