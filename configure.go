package h2

import "time"

// DefaultPingInterval is how often a connection pings its peer when no
// ConnOpts.PingInterval is supplied.
const DefaultPingInterval = 15 * time.Second

// DefaultWriteWatermark bounds how many bytes the writer serializes into its
// output buffer in one drain pass before flushing it to the transport. It
// does not limit how much a stream's outgoing queue holds, and producers
// are not held back by it; lazy bodies are paced only by the stream's
// out-window.
const DefaultWriteWatermark = 32 * 1024

// ConnOpts configures a Conn regardless of role, using a plain option
// struct rather than functional options.
type ConnOpts struct {
	// PingInterval is how often the connection pings its peer, whether or
	// not the connection is idle. Zero uses DefaultPingInterval.
	PingInterval time.Duration

	// DisablePingChecking turns off the periodic PING entirely, and with it
	// the 3-missed-ping connection timeout.
	DisablePingChecking bool

	// HandshakeTimeout bounds Handshake: writing the preface and initial
	// SETTINGS and, on the server, reading the client preface. The wait for
	// the peer's SETTINGS ack (WaitForHandshake) is not bounded by it. Zero
	// disables the timeout.
	HandshakeTimeout time.Duration

	// WriteWatermark overrides DefaultWriteWatermark. Zero uses the
	// default.
	WriteWatermark int

	// MaxConcurrentStreams overrides the locally-announced SETTINGS value.
	// Zero uses the RFC default (100).
	MaxConcurrentStreams uint32

	// InitialWindowSize overrides the locally-announced initial stream
	// window. Zero uses the RFC default (65535).
	InitialWindowSize uint32

	// HeaderTableSize overrides the locally-announced HPACK dynamic table
	// size. Zero uses the RFC default (4096).
	HeaderTableSize uint32

	// NoDelay sets TCP_NODELAY on transports that support it.
	NoDelay bool

	// OnDisconnect is called once the connection's transport is closed,
	// for any reason.
	OnDisconnect func(c *Conn)
}

func (o ConnOpts) settingsState() SettingsState {
	st := DefaultSettingsState()
	if o.MaxConcurrentStreams != 0 {
		st.MaxConcurrentStreams = o.MaxConcurrentStreams
	}
	if o.InitialWindowSize != 0 {
		st.InitialWindowSize = o.InitialWindowSize
	}
	if o.HeaderTableSize != 0 {
		st.HeaderTableSize = o.HeaderTableSize
	}
	return st
}

// ClientOpts configures a client-role connection.
type ClientOpts struct {
	ConnOpts
}

// ServerConfig configures a server-role connection.
type ServerConfig struct {
	ConnOpts

	// Handler dispatches accepted request streams.
	Handler ServerHandler
}
