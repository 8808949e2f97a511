package h2

import (
	"errors"
	"fmt"
)

// ErrorCode is an HTTP/2 error code as carried by RST_STREAM and GOAWAY
// frames (https://httpwg.org/specs/rfc7540.html#ErrorCodes).
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectError         ErrorCode = 0xa
	EnhanceYourCalmError ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errCodeNames = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	CancelError:          "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectError:         "CONNECT_ERROR",
	EnhanceYourCalmError: "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errCodeNames) && errCodeNames[c] != "" {
		return errCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN_ERROR(0x%x)", uint32(c))
}

// scope distinguishes the two ways an ErrorCode propagates to the wire: a
// fatal GOAWAY that ends the whole connection, or an RST_STREAM that drops
// only one stream.
type scope uint8

const (
	scopeStream scope = iota
	scopeConnection
)

// Error is the error type the engine classifies and routes:
// connection errors become GOAWAY, stream errors become RST_STREAM.
type Error struct {
	Scope   scope
	Code    ErrorCode
	Message string
}

func (e Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

// IsConnectionError reports whether e must be handled by tearing down the
// whole connection with a GOAWAY rather than just resetting one stream.
func (e Error) IsConnectionError() bool {
	return e.Scope == scopeConnection
}

// NewStreamError builds a stream-scoped error that the engine answers with
// RST_STREAM(code) and then drops the stream
func NewStreamError(code ErrorCode, message string) Error {
	return Error{Scope: scopeStream, Code: code, Message: message}
}

// NewConnError builds a connection-scoped error that the engine answers with
// GOAWAY(code) and then closes the transport
func NewConnError(code ErrorCode, message string) Error {
	return Error{Scope: scopeConnection, Code: code, Message: message}
}

// Sentinel errors produced by the frame codec
// and by the engine's bookkeeping.
var (
	ErrMissingBytes         = errors.New("h2: frame payload shorter than its fixed fields")
	ErrPayloadExceeds       = errors.New("h2: frame payload exceeds negotiated max frame size")
	ErrStreamIDNonZero      = errors.New("h2: frame requires a non-zero stream id")
	ErrStreamIDZero         = errors.New("h2: frame requires a zero stream id")
	ErrIncorrectLength      = errors.New("h2: incorrect frame length for this frame type")
	ErrBadPaddingLength     = errors.New("h2: padding length exceeds frame payload")
	ErrStreamDependsOnSelf  = errors.New("h2: stream cannot depend on itself in PRIORITY/HEADERS")
	ErrUnknownFrameType     = errors.New("h2: unknown frame type")
	ErrContinuationExpected = errors.New("h2: expected CONTINUATION frame to follow headers without END_HEADERS")
	ErrBadPreface           = errors.New("h2: bad connection preface")
	ErrServerSupport        = errors.New("h2: server does not support HTTP/2")
	ErrNotAvailableStreams  = errors.New("h2: no more stream ids available under max concurrent streams")
	ErrConnClosed           = errors.New("h2: connection closed")
	ErrHandshakeTimeout     = errors.New("h2: handshake timed out")
	ErrPingTimeout          = errors.New("h2: peer stopped answering PING")
)
