package h2

import "testing"

func TestErrorScopeDistinguishesStreamAndConnection(t *testing.T) {
	streamErr := NewStreamError(ProtocolError, "bad headers")
	if streamErr.IsConnectionError() {
		t.Fatal("a stream error must not report as a connection error")
	}

	connErr := NewConnError(FlowControlError, "window exceeded")
	if !connErr.IsConnectionError() {
		t.Fatal("a connection error must report as a connection error")
	}
}

func TestErrorMessageFormatting(t *testing.T) {
	err := NewStreamError(ProtocolError, "bad headers")
	if got, want := err.Error(), "PROTOCOL_ERROR: bad headers"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	bare := Error{Scope: scopeConnection, Code: NoError}
	if got, want := bare.Error(), "NO_ERROR"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestErrorCodeString(t *testing.T) {
	if got := CancelError.String(); got != "CANCEL" {
		t.Fatalf("got %q, want CANCEL", got)
	}
	if got := ErrorCode(0xff).String(); got == "" {
		t.Fatal("unknown error codes should still stringify to something")
	}
}
