package h2

// Continuation carries a continued header block fragment when a HEADERS or
// PUSH_PROMISE frame did not fit in a single frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.10
type Continuation struct {
	endHeaders bool
	frag       []byte
}

func (c *Continuation) Type() FrameType { return FrameContinuation }

func (c *Continuation) Reset() {
	c.endHeaders = false
	c.frag = c.frag[:0]
}

func (c *Continuation) HeaderBlockFragment() []byte { return c.frag }
func (c *Continuation) SetHeaderBlockFragment(b []byte) {
	c.frag = append(c.frag[:0], b...)
}

func (c *Continuation) EndHeaders() bool     { return c.endHeaders }
func (c *Continuation) SetEndHeaders(v bool) { c.endHeaders = v }

func (c *Continuation) Deserialize(fr *FrameHeader) error {
	if fr.Stream() == 0 {
		return ErrStreamIDNonZero
	}

	c.endHeaders = fr.Flags().Has(FlagEndHeaders)
	c.frag = append(c.frag[:0], fr.payload...)

	return nil
}

func (c *Continuation) Serialize(fr *FrameHeader) {
	flags := fr.Flags()
	if c.endHeaders {
		flags = flags.Add(FlagEndHeaders)
	}
	fr.SetFlags(flags)
	fr.setPayload(c.frag)
}
