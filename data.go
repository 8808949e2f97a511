package h2

import "github.com/h2kit/h2core/h2wire"

// Data is the FrameData payload.
//
// Flags: END_STREAM, PADDED.
//
// https://tools.ietf.org/html/rfc7540#section-6.1
type Data struct {
	endStream bool
	padded    bool
	b         []byte
}

func (d *Data) Type() FrameType { return FrameData }

func (d *Data) Reset() {
	d.endStream = false
	d.padded = false
	d.b = d.b[:0]
}

func (d *Data) EndStream() bool     { return d.endStream }
func (d *Data) SetEndStream(v bool) { d.endStream = v }
func (d *Data) Padded() bool        { return d.padded }
func (d *Data) SetPadded(v bool)    { d.padded = v }
func (d *Data) Bytes() []byte       { return d.b }
func (d *Data) Len() int            { return len(d.b) }
func (d *Data) SetData(b []byte)    { d.b = append(d.b[:0], b...) }
func (d *Data) Append(b []byte)     { d.b = append(d.b, b...) }

func (d *Data) Deserialize(fr *FrameHeader) error {
	if fr.Stream() == 0 {
		return ErrStreamIDNonZero
	}

	payload := fr.payload
	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, err = h2wire.CutPadding(payload, fr.Len())
		if err != nil {
			return ErrBadPaddingLength
		}
	}

	d.endStream = fr.Flags().Has(FlagEndStream)
	d.b = append(d.b[:0], payload...)

	return nil
}

func (d *Data) Serialize(fr *FrameHeader) {
	flags := fr.Flags()
	if d.endStream {
		flags = flags.Add(FlagEndStream)
	}

	payload := d.b
	if d.padded {
		flags = flags.Add(FlagPadded)
		payload = h2wire.AddPadding(append([]byte(nil), d.b...))
	}

	fr.SetFlags(flags)
	fr.setPayload(payload)
}
