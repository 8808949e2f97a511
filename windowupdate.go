package h2

import "github.com/h2kit/h2core/h2wire"

// WindowUpdate increases a flow-control window, either for a stream (if
// the frame's stream id is non-zero) or for the whole connection.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment uint32
}

func (w *WindowUpdate) Type() FrameType { return FrameWindowUpdate }

func (w *WindowUpdate) Reset() { w.increment = 0 }

func (w *WindowUpdate) Increment() uint32     { return w.increment }
func (w *WindowUpdate) SetIncrement(n uint32) { w.increment = n }

func (w *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) != 4 {
		return ErrIncorrectLength
	}

	// A zero increment is checked by the connection engine, not here: on a
	// stream it only resets that stream, which the codec has no say over.
	w.increment = h2wire.BytesToUint32(fr.payload) & (1<<31 - 1)

	return nil
}

func (w *WindowUpdate) Serialize(fr *FrameHeader) {
	payload := h2wire.Resize(nil, 4)
	h2wire.Uint32ToBytes(payload, w.increment&(1<<31-1))
	fr.setPayload(payload)
}
