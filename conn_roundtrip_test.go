package h2

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRequestHeaders() []*HeaderField {
	method := AcquireHeaderField()
	method.Set(":method", "GET")
	scheme := AcquireHeaderField()
	scheme.Set(":scheme", "https")
	authority := AcquireHeaderField()
	authority.Set(":authority", "example.com")
	path := AcquireHeaderField()
	path.Set(":path", "/")
	return []*HeaderField{method, scheme, authority, path}
}

// recordingServerHandler answers every request with SendFound200PlainText
// and reports the decoded Request on started, for assertions.
type recordingServerHandler struct {
	started chan *Request
	body    []byte
}

func (h *recordingServerHandler) StartRequest(ctx *RequestContext, req *Request, resp *ResponseSender) (ServerStreamHandler, error) {
	h.started <- req
	resp.SendFound200PlainText(h.body)
	return &discardServerStream{}, nil
}

type discardServerStream struct{}

func (discardServerStream) DataFrame(b []byte, endStream bool) {}
func (discardServerStream) Trailers(hs []*HeaderField)         {}
func (discardServerStream) Rst(code ErrorCode)                 {}
func (discardServerStream) Error(err error)                    {}

type clientResult struct {
	status string
	body   []byte
}

type recordingClientCreatedHandler struct {
	done chan clientResult
}

func (h *recordingClientCreatedHandler) RequestCreated(credit *WindowCredit) ClientStreamHandler {
	return &recordingClientStream{done: h.done}
}

type recordingClientStream struct {
	done   chan clientResult
	status string
	body   []byte
}

func (s *recordingClientStream) Headers(hs []*HeaderField, endStream bool) {
	for _, hf := range hs {
		if hf.Key() == ":status" {
			s.status = hf.Value()
		}
	}
	if endStream {
		s.done <- clientResult{status: s.status, body: s.body}
	}
}

func (s *recordingClientStream) DataFrame(b []byte, endStream bool) {
	s.body = append(s.body, b...)
	if endStream {
		s.done <- clientResult{status: s.status, body: s.body}
	}
}

func (s *recordingClientStream) Trailers(hs []*HeaderField) {}
func (s *recordingClientStream) Rst(code ErrorCode)         {}
func (s *recordingClientStream) Error(err error)            {}

// TestClientServerGetRoundTrip drives a full GET request across an in-memory
// net.Pipe transport: client Start -> server StartRequest ->
// SendFound200PlainText -> client receives :status 200 and the body.
func TestClientServerGetRoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()

	handler := &recordingServerHandler{started: make(chan *Request, 1), body: []byte("hello")}
	sc := NewServerConn(serverSide, ServerConfig{Handler: handler})
	go sc.Serve()

	cc, err := Dial(clientSide, ClientOpts{})
	require.NoError(t, err)
	require.NoError(t, cc.WaitForHandshake())

	result := make(chan clientResult, 1)
	cc.Start(newTestRequestHeaders(), nil, nil, true, &recordingClientCreatedHandler{done: result})

	select {
	case req := <-handler.started:
		require.Equal(t, "GET", req.Method)
		require.Equal(t, "/", req.Path)
		require.Equal(t, "example.com", req.Authority)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the request")
	}

	select {
	case res := <-result:
		require.Equal(t, "200", res.status)
		require.Equal(t, "hello", string(res.body))
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the response")
	}
}

// chunkedBody produces total bytes of repeating payload in fixed-size
// chunks, the way a streaming upload would.
type chunkedBody struct {
	total, chunk, sent int
}

func (b *chunkedBody) Next() ([]byte, bool, error) {
	n := b.chunk
	if rem := b.total - b.sent; n > rem {
		n = rem
	}
	b.sent += n
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('a' + (b.sent+i)%26)
	}
	return out, b.sent == b.total, nil
}

type countingServerStream struct {
	resp  *ResponseSender
	count int
	done  chan int
}

func (s *countingServerStream) DataFrame(b []byte, endStream bool) {
	s.count += len(b)
	if endStream {
		s.done <- s.count
		s.resp.SendFound200PlainText(nil)
	}
}
func (s *countingServerStream) Trailers(hs []*HeaderField) {}
func (s *countingServerStream) Rst(code ErrorCode)         {}
func (s *countingServerStream) Error(err error)            {}

type countingServerHandler struct {
	done chan int
}

func (h *countingServerHandler) StartRequest(ctx *RequestContext, req *Request, resp *ResponseSender) (ServerStreamHandler, error) {
	return &countingServerStream{resp: resp, done: h.done}, nil
}

// TestLargeBodyFlowControl streams a body several times larger than the
// default 65535-byte window: the per-stream pump must stall on the window
// receiver until the server's automatic WINDOW_UPDATEs replenish credit,
// and every byte must arrive in order.
func TestLargeBodyFlowControl(t *testing.T) {
	clientSide, serverSide := net.Pipe()

	handler := &countingServerHandler{done: make(chan int, 1)}
	sc := NewServerConn(serverSide, ServerConfig{
		ConnOpts: ConnOpts{DisablePingChecking: true},
		Handler:  handler,
	})
	go sc.Serve()

	cc, err := Dial(clientSide, ClientOpts{ConnOpts: ConnOpts{DisablePingChecking: true}})
	require.NoError(t, err)
	require.NoError(t, cc.WaitForHandshake())

	const total = 200 * 1024
	result := make(chan clientResult, 1)
	cc.Start(newTestRequestHeaders(), &chunkedBody{total: total, chunk: 16 * 1024}, nil, false,
		&recordingClientCreatedHandler{done: result})

	select {
	case n := <-handler.done:
		require.Equal(t, total, n)
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the full body")
	}

	select {
	case res := <-result:
		require.Equal(t, "200", res.status)
	case <-time.After(5 * time.Second):
		t.Fatal("client never received the response")
	}
}

// cancelTestServerStream reports every RST_STREAM it observes.
type cancelTestServerStream struct {
	rst chan ErrorCode
}

func (s *cancelTestServerStream) DataFrame(b []byte, endStream bool) {}
func (s *cancelTestServerStream) Trailers(hs []*HeaderField)         {}
func (s *cancelTestServerStream) Rst(code ErrorCode)                 { s.rst <- code }
func (s *cancelTestServerStream) Error(err error)                    {}

type cancelTestServerHandler struct {
	started chan struct{}
	rst     chan ErrorCode
}

func (h *cancelTestServerHandler) StartRequest(ctx *RequestContext, req *Request, resp *ResponseSender) (ServerStreamHandler, error) {
	h.started <- struct{}{}
	return &cancelTestServerStream{rst: h.rst}, nil
}

type captureCreditHandler struct {
	credit chan *WindowCredit
}

func (h *captureCreditHandler) RequestCreated(credit *WindowCredit) ClientStreamHandler {
	h.credit <- credit
	return &discardClientStream{}
}

type discardClientStream struct{}

func (discardClientStream) Headers(hs []*HeaderField, endStream bool) {}
func (discardClientStream) DataFrame(b []byte, endStream bool)        {}
func (discardClientStream) Trailers(hs []*HeaderField)                {}
func (discardClientStream) Rst(code ErrorCode)                        {}
func (discardClientStream) Error(err error)                           {}

// TestClientCancelTriggersServerRst checks that calling WindowCredit.Cancel
// on the client side is observed by the server as RST_STREAM(CANCEL).
func TestClientCancelTriggersServerRst(t *testing.T) {
	clientSide, serverSide := net.Pipe()

	handler := &cancelTestServerHandler{
		started: make(chan struct{}, 1),
		rst:     make(chan ErrorCode, 1),
	}
	sc := NewServerConn(serverSide, ServerConfig{Handler: handler})
	go sc.Serve()

	cc, err := Dial(clientSide, ClientOpts{})
	require.NoError(t, err)
	require.NoError(t, cc.WaitForHandshake())

	creditCh := make(chan *WindowCredit, 1)
	cc.Start(newTestRequestHeaders(), nil, nil, true, &captureCreditHandler{credit: creditCh})

	<-handler.started
	credit := <-creditCh
	credit.Cancel()

	select {
	case code := <-handler.rst:
		require.Equal(t, CancelError, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the client's RST_STREAM")
	}
}
