package h2

import "github.com/h2kit/h2core/h2wire"

// GoAway tells the peer to stop creating new streams on this connection,
// identifying the last stream that will be processed.
//
// https://tools.ietf.org/html/rfc7540#section-6.8
type GoAway struct {
	lastStreamID uint32
	code         ErrorCode
	debug        []byte
}

func (g *GoAway) Type() FrameType { return FrameGoAway }

func (g *GoAway) Reset() {
	g.lastStreamID = 0
	g.code = NoError
	g.debug = g.debug[:0]
}

func (g *GoAway) LastStreamID() uint32      { return g.lastStreamID }
func (g *GoAway) SetLastStreamID(id uint32) { g.lastStreamID = id }

func (g *GoAway) Code() ErrorCode     { return g.code }
func (g *GoAway) SetCode(c ErrorCode) { g.code = c }

func (g *GoAway) Debug() []byte { return g.debug }
func (g *GoAway) SetDebug(b []byte) {
	g.debug = append(g.debug[:0], b...)
}

func (g *GoAway) Deserialize(fr *FrameHeader) error {
	if fr.Stream() != 0 {
		return ErrStreamIDZero
	}
	if len(fr.payload) < 8 {
		return ErrMissingBytes
	}

	g.lastStreamID = h2wire.BytesToUint32(fr.payload) & (1<<31 - 1)
	g.code = ErrorCode(h2wire.BytesToUint32(fr.payload[4:]))
	g.debug = append(g.debug[:0], fr.payload[8:]...)

	return nil
}

func (g *GoAway) Serialize(fr *FrameHeader) {
	payload := h2wire.Resize(nil, 8+len(g.debug))
	h2wire.Uint32ToBytes(payload, g.lastStreamID&(1<<31-1))
	h2wire.Uint32ToBytes(payload[4:], uint32(g.code))
	copy(payload[8:], g.debug)
	fr.setPayload(payload)
}
