package h2

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/h2kit/h2core/h2wire"
)

const (
	// frameHeaderLen is the fixed 9-byte common frame header
	// (https://httpwg.org/specs/rfc7540.html#FrameHeader).
	frameHeaderLen = 9

	// defaultMaxFrameSize is SETTINGS_MAX_FRAME_SIZE's default.
	defaultMaxFrameSize uint32 = 1 << 14
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} { return &FrameHeader{} },
}

// FrameHeader is the frame-level handle used by both the reader and writer
// halves of the engine: the 9-byte common header plus whichever typed Frame
// payload it carries.
//
// Use AcquireFrameHeader/ReleaseFrameHeader instead of constructing one
// directly; a FrameHeader must not be shared across goroutines.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
type FrameHeader struct {
	length int
	kind   FrameType
	flags  FrameFlags
	stream uint32

	maxLen uint32

	rawHeader [frameHeaderLen]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	fr := frameHeaderPool.Get().(*FrameHeader)
	fr.Reset()
	return fr
}

// ReleaseFrameHeader releases fr's body (if any) and returns fr to the pool.
func ReleaseFrameHeader(fr *FrameHeader) {
	if fr == nil {
		return
	}
	ReleaseFrame(fr.fr)
	frameHeaderPool.Put(fr)
}

// Reset clears fr back to its zero wire state without releasing the body
// frame (the caller owns that decision).
func (fr *FrameHeader) Reset() {
	fr.kind = 0
	fr.flags = 0
	fr.stream = 0
	fr.length = 0
	fr.maxLen = defaultMaxFrameSize
	fr.fr = nil
	fr.payload = fr.payload[:0]
}

func (fr *FrameHeader) Type() FrameType       { return fr.kind }
func (fr *FrameHeader) Flags() FrameFlags     { return fr.flags }
func (fr *FrameHeader) SetFlags(f FrameFlags) { fr.flags = f }
func (fr *FrameHeader) Stream() uint32        { return fr.stream }

// SetStream sets the stream id. The reserved bit is left untouched so
// callers that need it for interop experiments are not blocked.
func (fr *FrameHeader) SetStream(stream uint32) { fr.stream = stream }

// Len returns the payload length as it will be/was written on the wire.
func (fr *FrameHeader) Len() int { return fr.length }

// MaxLen returns the maximum payload length this FrameHeader will accept
// (0 means unlimited).
func (fr *FrameHeader) MaxLen() uint32 { return fr.maxLen }

// Body returns the typed frame payload.
func (fr *FrameHeader) Body() Frame { return fr.fr }

// SetBody attaches fr2 as the payload and records its frame type.
func (fr *FrameHeader) SetBody(fr2 Frame) {
	if fr2 == nil {
		panic("h2: frame body cannot be nil")
	}
	fr.kind = fr2.Type()
	fr.fr = fr2
}

func (fr *FrameHeader) setPayload(payload []byte) {
	fr.payload = append(fr.payload[:0], payload...)
	fr.length = len(fr.payload)
}

func (fr *FrameHeader) checkLen() error {
	if fr.maxLen != 0 && fr.length > int(fr.maxLen) {
		return ErrPayloadExceeds
	}
	return nil
}

func (fr *FrameHeader) parseValues(header []byte) {
	fr.length = int(h2wire.BytesToUint24(header[:3]))
	fr.kind = FrameType(header[3])
	fr.flags = FrameFlags(header[4])
	fr.stream = h2wire.BytesToUint32(header[5:]) & (1<<31 - 1)
}

func (fr *FrameHeader) packHeader(header []byte) {
	h2wire.Uint24ToBytes(header[:3], uint32(fr.length))
	header[3] = byte(fr.kind)
	header[4] = byte(fr.flags)
	h2wire.Uint32ToBytes(header[5:], fr.stream)
}

// ReadFrameFrom reads and decodes one frame from br using the default max
// frame size.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	return ReadFrameFromWithSize(br, defaultMaxFrameSize)
}

// ReadFrameFromWithSize reads and decodes one frame from br, rejecting any
// frame whose declared length exceeds max (0 disables the check, which is
// only safe for handshake reads where max has not been negotiated yet).
func ReadFrameFromWithSize(br *bufio.Reader, max uint32) (*FrameHeader, error) {
	fr := AcquireFrameHeader()
	fr.maxLen = max

	_, err := fr.readFrom(br)
	if err != nil {
		ReleaseFrameHeader(fr)
		return nil, err
	}

	return fr, nil
}

func (fr *FrameHeader) readFrom(br *bufio.Reader) (int64, error) {
	header, err := br.Peek(frameHeaderLen)
	if err != nil {
		return 0, err
	}
	if _, err := br.Discard(frameHeaderLen); err != nil {
		return 0, err
	}

	rn := int64(frameHeaderLen)

	fr.parseValues(header)
	if err := fr.checkLen(); err != nil {
		// the payload still needs draining so the stream stays framed.
		_, _ = br.Discard(fr.length)
		return rn, err
	}

	if fr.kind > FrameContinuation {
		_, _ = br.Discard(fr.length)
		return rn, ErrUnknownFrameType
	}

	fr.fr = AcquireFrame(fr.kind)

	if fr.length > 0 {
		fr.payload = h2wire.Resize(fr.payload, fr.length)

		n, err := io.ReadFull(br, fr.payload)
		rn += int64(n)
		if err != nil {
			return rn, err
		}
	}

	if err := fr.fr.Deserialize(fr); err != nil {
		return rn, err
	}

	return rn, nil
}

// WriteTo serializes the body into fr's payload, patches the common header,
// and writes both to w.
func (fr *FrameHeader) WriteTo(w *bufio.Writer) (int64, error) {
	fr.fr.Serialize(fr)

	fr.length = len(fr.payload)
	if fr.maxLen != 0 && fr.length > int(fr.maxLen) {
		return 0, fmt.Errorf("h2: %w: %d > %d", ErrPayloadExceeds, fr.length, fr.maxLen)
	}

	fr.packHeader(fr.rawHeader[:])

	var wb int64

	n, err := w.Write(fr.rawHeader[:])
	wb += int64(n)
	if err != nil {
		return wb, err
	}

	n, err = w.Write(fr.payload)
	wb += int64(n)

	return wb, err
}
