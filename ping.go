package h2

// Ping measures round-trip time and confirms the connection is still alive.
//
// https://tools.ietf.org/html/rfc7540#section-6.7
type Ping struct {
	ack  bool
	data [8]byte
}

func (p *Ping) Type() FrameType { return FramePing }

func (p *Ping) Reset() {
	p.ack = false
	p.data = [8]byte{}
}

func (p *Ping) IsAck() bool     { return p.ack }
func (p *Ping) SetAck(ack bool) { p.ack = ack }

func (p *Ping) Data() []byte { return p.data[:] }
func (p *Ping) SetData(b []byte) {
	copy(p.data[:], b)
}

func (p *Ping) Deserialize(fr *FrameHeader) error {
	if fr.Stream() != 0 {
		return ErrStreamIDZero
	}
	if len(fr.payload) != 8 {
		return ErrIncorrectLength
	}

	p.ack = fr.Flags().Has(FlagAck)
	copy(p.data[:], fr.payload)

	return nil
}

func (p *Ping) Serialize(fr *FrameHeader) {
	flags := fr.Flags()
	if p.ack {
		flags = flags.Add(FlagAck)
	}
	fr.SetFlags(flags)
	fr.setPayload(p.data[:])
}
