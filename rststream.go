package h2

import "github.com/h2kit/h2core/h2wire"

// RstStream abruptly terminates a stream.
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStream struct {
	code ErrorCode
}

func (r *RstStream) Type() FrameType { return FrameResetStream }

func (r *RstStream) Reset() { r.code = NoError }

func (r *RstStream) Code() ErrorCode     { return r.code }
func (r *RstStream) SetCode(c ErrorCode) { r.code = c }

func (r *RstStream) Deserialize(fr *FrameHeader) error {
	if fr.Stream() == 0 {
		return ErrStreamIDNonZero
	}
	if len(fr.payload) != 4 {
		return ErrIncorrectLength
	}

	r.code = ErrorCode(h2wire.BytesToUint32(fr.payload))

	return nil
}

func (r *RstStream) Serialize(fr *FrameHeader) {
	payload := h2wire.Resize(nil, 4)
	h2wire.Uint32ToBytes(payload, uint32(r.code))
	fr.setPayload(payload)
}
