package h2

import "github.com/h2kit/h2core/h2wire"

// Priority carries a stream's dependency and weight.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	exclusive bool
	depStream uint32
	weight    uint8
}

func (p *Priority) Type() FrameType { return FramePriority }

func (p *Priority) Reset() {
	p.exclusive = false
	p.depStream = 0
	p.weight = 0
}

func (p *Priority) DependsOn() (exclusive bool, stream uint32, weight uint8) {
	return p.exclusive, p.depStream, p.weight
}

func (p *Priority) SetDependency(exclusive bool, stream uint32, weight uint8) {
	p.exclusive = exclusive
	p.depStream = stream
	p.weight = weight
}

func (p *Priority) Deserialize(fr *FrameHeader) error {
	if fr.Stream() == 0 {
		return ErrStreamIDNonZero
	}
	if len(fr.payload) != 5 {
		return ErrIncorrectLength
	}

	raw := h2wire.BytesToUint32(fr.payload)
	p.exclusive = raw&(1<<31) != 0
	p.depStream = raw & (1<<31 - 1)
	p.weight = fr.payload[4]

	if p.depStream == fr.Stream() {
		return ErrStreamDependsOnSelf
	}

	return nil
}

func (p *Priority) Serialize(fr *FrameHeader) {
	payload := h2wire.Resize(nil, 5)
	dep := p.depStream & (1<<31 - 1)
	if p.exclusive {
		dep |= 1 << 31
	}
	h2wire.Uint32ToBytes(payload, dep)
	payload[4] = p.weight
	fr.setPayload(payload)
}
