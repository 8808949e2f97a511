package h2

import "sync"

// FrameType identifies one of the ten wire frame types
// (https://httpwg.org/specs/rfc7540.html#FrameTypes).
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameResetStream  FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameResetStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	}
	return "UNKNOWN"
}

// FrameFlags is the 8-bit flags field of a frame header. Which bits are
// meaningful depends on the frame type; see each frame's doc comment.
type FrameFlags uint8

const (
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

// Has reports whether all bits of f are set in fl.
func (fl FrameFlags) Has(f FrameFlags) bool {
	return fl&f == f
}

// Add returns fl with f set.
func (fl FrameFlags) Add(f FrameFlags) FrameFlags {
	return fl | f
}

// Frame is the common interface satisfied by every typed frame payload.
// Deserialize parses fr.payload (already read off the wire) into the
// receiver; Serialize writes the receiver's fields into fr ahead of
// transmission. Implementations live one per file: data.go, headers.go,
// continuation.go, rststream.go, settings.go, ping.go, goaway.go,
// windowupdate.go, priority.go, pushpromise.go.
type Frame interface {
	Type() FrameType
	Reset()
	Deserialize(fr *FrameHeader) error
	Serialize(fr *FrameHeader)
}

// framePools holds one sync.Pool per frame type so the hot read/write loop
// never allocates a payload struct per frame.
var framePools = [...]*sync.Pool{
	FrameData:         {New: func() interface{} { return &Data{} }},
	FrameHeaders:      {New: func() interface{} { return &Headers{} }},
	FramePriority:     {New: func() interface{} { return &Priority{} }},
	FrameResetStream:  {New: func() interface{} { return &RstStream{} }},
	FrameSettings:     {New: func() interface{} { return &Settings{} }},
	FramePushPromise:  {New: func() interface{} { return &PushPromise{} }},
	FramePing:         {New: func() interface{} { return &Ping{} }},
	FrameGoAway:       {New: func() interface{} { return &GoAway{} }},
	FrameWindowUpdate: {New: func() interface{} { return &WindowUpdate{} }},
	FrameContinuation: {New: func() interface{} { return &Continuation{} }},
}

// AcquireFrame returns a pooled, reset Frame payload of the given type.
func AcquireFrame(t FrameType) Frame {
	if int(t) >= len(framePools) || framePools[t] == nil {
		return nil
	}
	fr := framePools[t].Get().(Frame)
	fr.Reset()
	return fr
}

// ReleaseFrame returns fr to its type's pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	t := fr.Type()
	if int(t) >= len(framePools) || framePools[t] == nil {
		return
	}
	framePools[t].Put(fr)
}

// FrameWithHeaders is implemented by the three frame types that carry an
// HPACK header block fragment: HEADERS, CONTINUATION, PUSH_PROMISE.
type FrameWithHeaders interface {
	Frame
	HeaderBlockFragment() []byte
}
