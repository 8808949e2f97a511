package h2

import "github.com/h2kit/h2core/h2wire"

// Headers is the FrameHeaders payload.
//
// Flags: END_STREAM, END_HEADERS, PADDED, PRIORITY.
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type Headers struct {
	padded     bool
	priority   bool
	exclusive  bool
	depStream  uint32
	weight     uint8
	endStream  bool
	endHeaders bool
	frag       []byte // header block fragment (possibly partial, pre-END_HEADERS)
}

func (h *Headers) Type() FrameType { return FrameHeaders }

func (h *Headers) Reset() {
	h.padded = false
	h.priority = false
	h.exclusive = false
	h.depStream = 0
	h.weight = 0
	h.endStream = false
	h.endHeaders = false
	h.frag = h.frag[:0]
}

func (h *Headers) HeaderBlockFragment() []byte { return h.frag }
func (h *Headers) SetHeaderBlockFragment(b []byte) {
	h.frag = append(h.frag[:0], b...)
}
func (h *Headers) AppendHeaderBlockFragment(b []byte) {
	h.frag = append(h.frag, b...)
}

func (h *Headers) EndStream() bool     { return h.endStream }
func (h *Headers) SetEndStream(v bool) { h.endStream = v }

func (h *Headers) EndHeaders() bool     { return h.endHeaders }
func (h *Headers) SetEndHeaders(v bool) { h.endHeaders = v }

func (h *Headers) Padded() bool     { return h.padded }
func (h *Headers) SetPadded(v bool) { h.padded = v }

func (h *Headers) HasPriority() bool { return h.priority }

// SetPriority attaches a stream dependency to this HEADERS frame. Depending
// on stream itself is a protocol error that is caught at Serialize time only
// via the caller; Deserialize catches it on the wire.
func (h *Headers) SetPriority(exclusive bool, stream uint32, weight uint8) {
	h.priority = true
	h.exclusive = exclusive
	h.depStream = stream
	h.weight = weight
}

func (h *Headers) DependsOn() (exclusive bool, stream uint32, weight uint8) {
	return h.exclusive, h.depStream, h.weight
}

func (h *Headers) Deserialize(fr *FrameHeader) error {
	if fr.Stream() == 0 {
		return ErrStreamIDNonZero
	}

	flags := fr.Flags()
	payload := fr.payload

	if flags.Has(FlagPadded) {
		var err error
		payload, err = h2wire.CutPadding(payload, fr.Len())
		if err != nil {
			return ErrBadPaddingLength
		}
		h.padded = true
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrMissingBytes
		}
		raw := h2wire.BytesToUint32(payload)
		h.exclusive = raw&(1<<31) != 0
		h.depStream = raw & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]
		h.priority = true

		if h.depStream == fr.Stream() {
			return ErrStreamDependsOnSelf
		}
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.frag = append(h.frag[:0], payload...)

	return nil
}

func (h *Headers) Serialize(fr *FrameHeader) {
	flags := fr.Flags()
	if h.endStream {
		flags = flags.Add(FlagEndStream)
	}
	if h.endHeaders {
		flags = flags.Add(FlagEndHeaders)
	}

	payload := h.frag

	if h.priority {
		flags = flags.Add(FlagPriority)

		head := make([]byte, 5)
		dep := h.depStream & (1<<31 - 1)
		if h.exclusive {
			dep |= 1 << 31
		}
		h2wire.Uint32ToBytes(head, dep)
		head[4] = h.weight

		payload = append(head, payload...)
	}

	if h.padded {
		flags = flags.Add(FlagPadded)
		payload = h2wire.AddPadding(append([]byte(nil), payload...))
	}

	fr.SetFlags(flags)
	fr.setPayload(payload)
}
