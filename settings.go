package h2

import (
	"github.com/h2kit/h2core/h2wire"
)

// Setting identifiers (https://httpwg.org/specs/rfc7540.html#SettingValues).
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

const (
	defaultHeaderTableSize   uint32 = 4096
	defaultEnablePush        uint32 = 1
	defaultConcurrentStreams uint32 = 100
	defaultInitialWindowSize uint32 = 1<<16 - 1
	maxWindowSize            uint32 = 1<<31 - 1
)

// Settings is the FrameSettings payload: zero or more (id, value) tuples,
// or an empty ACK.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack    bool
	params []settingParam
}

type settingParam struct {
	id    uint16
	value uint32
}

func (s *Settings) Type() FrameType { return FrameSettings }

func (s *Settings) Reset() {
	s.ack = false
	s.params = s.params[:0]
}

func (s *Settings) IsAck() bool     { return s.ack }
func (s *Settings) SetAck(ack bool) { s.ack = ack }

// Add appends a (id, value) tuple to the outgoing SETTINGS payload.
func (s *Settings) Add(id uint16, value uint32) {
	s.params = append(s.params, settingParam{id, value})
}

// ForEach calls fn once per (id, value) tuple carried by a decoded frame.
func (s *Settings) ForEach(fn func(id uint16, value uint32)) {
	for _, p := range s.params {
		fn(p.id, p.value)
	}
}

func (s *Settings) Deserialize(fr *FrameHeader) error {
	if fr.Stream() != 0 {
		return ErrStreamIDZero
	}

	s.ack = fr.Flags().Has(FlagAck)
	payload := fr.payload

	if s.ack {
		if len(payload) != 0 {
			return ErrIncorrectLength
		}
		return nil
	}

	if len(payload)%6 != 0 {
		return ErrIncorrectLength
	}

	for len(payload) > 0 {
		id := uint16(payload[0])<<8 | uint16(payload[1])
		value := h2wire.BytesToUint32(payload[2:6])
		// Unknown setting identifiers are tolerated (RFC 7540 §6.5.2).
		s.params = append(s.params, settingParam{id, value})
		payload = payload[6:]
	}

	return nil
}

func (s *Settings) Serialize(fr *FrameHeader) {
	flags := fr.Flags()
	if s.ack {
		flags = flags.Add(FlagAck)
		fr.SetFlags(flags)
		fr.setPayload(nil)
		return
	}

	payload := h2wire.Resize(nil, 6*len(s.params))
	for i, p := range s.params {
		off := i * 6
		payload[off] = byte(p.id >> 8)
		payload[off+1] = byte(p.id)
		h2wire.Uint32ToBytes(payload[off+2:], p.value)
	}

	fr.SetFlags(flags)
	fr.setPayload(payload)
}

// SettingsState is the engine's record of the six negotiated parameters.
// The engine holds several copies: the values this side has announced,
// the values this side actually enforces once its own SETTINGS has been
// acked, and the values the peer has advertised to us. One SettingsState
// value models any one of those copies.
type SettingsState struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

// DefaultSettingsState returns the RFC 7540 §6.5.2 default parameter values.
func DefaultSettingsState() SettingsState {
	return SettingsState{
		HeaderTableSize:      defaultHeaderTableSize,
		EnablePush:           true,
		MaxConcurrentStreams: defaultConcurrentStreams,
		InitialWindowSize:    defaultInitialWindowSize,
		MaxFrameSize:         defaultMaxFrameSize,
		MaxHeaderListSize:    0,
	}
}

// Apply folds the tuples carried by a decoded SETTINGS frame into st,
// returning the signed delta applied to InitialWindowSize so the caller can
// re-scale every open stream's out_window_size.
func (st *SettingsState) Apply(fr *Settings) (windowDelta int64, err error) {
	prevWindow := int64(st.InitialWindowSize)

	fr.ForEach(func(id uint16, value uint32) {
		if err != nil {
			return
		}
		switch id {
		case SettingHeaderTableSize:
			st.HeaderTableSize = value
		case SettingEnablePush:
			if value > 1 {
				err = NewConnError(ProtocolError, "invalid ENABLE_PUSH value")
				return
			}
			st.EnablePush = value == 1
		case SettingMaxConcurrentStreams:
			st.MaxConcurrentStreams = value
		case SettingInitialWindowSize:
			if value > maxWindowSize {
				err = NewConnError(FlowControlError, "INITIAL_WINDOW_SIZE exceeds 2^31-1")
				return
			}
			st.InitialWindowSize = value
		case SettingMaxFrameSize:
			if value < defaultMaxFrameSize || value > 1<<24-1 {
				err = NewConnError(ProtocolError, "MAX_FRAME_SIZE out of range")
				return
			}
			st.MaxFrameSize = value
		case SettingMaxHeaderListSize:
			st.MaxHeaderListSize = value
		}
	})
	if err != nil {
		return 0, err
	}

	return int64(st.InitialWindowSize) - prevWindow, nil
}

// ToFrame encodes st as an outgoing (non-ACK) Settings frame payload.
// HEADER_TABLE_SIZE, MAX_CONCURRENT_STREAMS, INITIAL_WINDOW_SIZE and
// MAX_FRAME_SIZE are always included; MAX_HEADER_LIST_SIZE is omitted when
// zero, and ENABLE_PUSH is sent only as an explicit 0. Pass
// includePush=true once, on the very first SETTINGS, since
// ENABLE_PUSH defaults to enabled and an explicit 0 is how a side disables
// push.
func (st *SettingsState) ToFrame(includePush bool) *Settings {
	fr := AcquireFrame(FrameSettings).(*Settings)

	fr.Add(SettingHeaderTableSize, st.HeaderTableSize)
	if includePush && !st.EnablePush {
		fr.Add(SettingEnablePush, 0)
	}
	fr.Add(SettingMaxConcurrentStreams, st.MaxConcurrentStreams)
	fr.Add(SettingInitialWindowSize, st.InitialWindowSize)
	fr.Add(SettingMaxFrameSize, st.MaxFrameSize)
	if st.MaxHeaderListSize != 0 {
		fr.Add(SettingMaxHeaderListSize, st.MaxHeaderListSize)
	}

	return fr
}
