package h2

import "github.com/h2kit/h2core/h2wire"

// PushPromise announces a stream the server intends to push before the
// client asks for it.
//
// https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	padded     bool
	endHeaders bool
	promisedID uint32
	frag       []byte
}

func (pp *PushPromise) Type() FrameType { return FramePushPromise }

func (pp *PushPromise) Reset() {
	pp.padded = false
	pp.endHeaders = false
	pp.promisedID = 0
	pp.frag = pp.frag[:0]
}

func (pp *PushPromise) HeaderBlockFragment() []byte { return pp.frag }
func (pp *PushPromise) SetHeaderBlockFragment(b []byte) {
	pp.frag = append(pp.frag[:0], b...)
}

func (pp *PushPromise) EndHeaders() bool     { return pp.endHeaders }
func (pp *PushPromise) SetEndHeaders(v bool) { pp.endHeaders = v }

func (pp *PushPromise) Padded() bool     { return pp.padded }
func (pp *PushPromise) SetPadded(v bool) { pp.padded = v }

func (pp *PushPromise) PromisedStreamID() uint32      { return pp.promisedID }
func (pp *PushPromise) SetPromisedStreamID(id uint32) { pp.promisedID = id }

func (pp *PushPromise) Deserialize(fr *FrameHeader) error {
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
		pp.padded = true
	}

	if len(payload) < 4 {
		return ErrMissingBytes
	}

	pp.promisedID = h2wire.BytesToUint32(payload) & (1<<31 - 1)
	pp.endHeaders = flags.Has(FlagEndHeaders)
	pp.frag = append(pp.frag[:0], payload[4:]...)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	flags := fr.Flags()
	if pp.endHeaders {
		flags = flags.Add(FlagEndHeaders)
	}

	head := make([]byte, 4)
	h2wire.Uint32ToBytes(head, pp.promisedID&(1<<31-1))
	payload := append(head, pp.frag...)

	if pp.padded {
		flags = flags.Add(FlagPadded)
		payload = h2wire.AddPadding(payload)
	}

	fr.SetFlags(flags)
	fr.setPayload(payload)
}
