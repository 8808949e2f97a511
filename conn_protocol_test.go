package h2

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// rawPeer speaks frame-level HTTP/2 against a ServerConn over a net.Pipe,
// for scenarios the real client engine refuses to produce (interleaved
// CONTINUATION, content-length lies).
type rawPeer struct {
	t  *testing.T
	br *bufio.Reader
	bw *bufio.Writer
}

func newRawPeer(t *testing.T, conn net.Conn) *rawPeer {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))

	p := &rawPeer{t: t, br: bufio.NewReader(conn), bw: bufio.NewWriter(conn)}

	require.NoError(t, WritePreface(p.bw))
	p.writeFrame(0, AcquireFrame(FrameSettings))

	// The server announces its SETTINGS first, then acks ours.
	fh := p.readFrame()
	require.Equal(t, FrameSettings, fh.Type())
	require.False(t, fh.Body().(*Settings).IsAck())
	ReleaseFrameHeader(fh)

	ack := AcquireFrame(FrameSettings).(*Settings)
	ack.SetAck(true)
	p.writeFrame(0, ack)

	fh = p.readFrame()
	require.Equal(t, FrameSettings, fh.Type())
	require.True(t, fh.Body().(*Settings).IsAck())
	ReleaseFrameHeader(fh)

	return p
}

func (p *rawPeer) writeFrame(stream uint32, body Frame) {
	p.t.Helper()
	fh := AcquireFrameHeader()
	fh.SetStream(stream)
	fh.SetBody(body)
	_, err := fh.WriteTo(p.bw)
	ReleaseFrameHeader(fh)
	require.NoError(p.t, err)
	require.NoError(p.t, p.bw.Flush())
}

func (p *rawPeer) readFrame() *FrameHeader {
	p.t.Helper()
	fh, err := ReadFrameFrom(p.br)
	require.NoError(p.t, err)
	return fh
}

// expectFrame reads frames, discarding any of other types (window updates,
// pings), until one of the wanted type arrives.
func (p *rawPeer) expectFrame(kind FrameType) *FrameHeader {
	p.t.Helper()
	for {
		fh := p.readFrame()
		if fh.Type() == kind {
			return fh
		}
		ReleaseFrameHeader(fh)
	}
}

type nopServerHandler struct{}

func (nopServerHandler) StartRequest(ctx *RequestContext, req *Request, resp *ResponseSender) (ServerStreamHandler, error) {
	return &discardServerStream{}, nil
}

func startRawServer(t *testing.T) (*ServerConn, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	sc := NewServerConn(serverSide, ServerConfig{
		ConnOpts: ConnOpts{DisablePingChecking: true},
		Handler:  nopServerHandler{},
	})
	go sc.Serve()
	t.Cleanup(func() { _ = clientSide.Close() })
	return sc, clientSide
}

// TestContinuationInterleavedIsConnectionError covers the hard framing
// invariant: once a HEADERS arrives without END_HEADERS, a frame for any
// other stream before END_HEADERS kills the whole connection with
// GOAWAY(PROTOCOL_ERROR).
func TestContinuationInterleavedIsConnectionError(t *testing.T) {
	_, raw := startRawServer(t)
	p := newRawPeer(t, raw)

	enc := AcquireEncoder()
	defer ReleaseEncoder(enc)
	block := enc.EncodeHeaderBlock(newTestRequestHeaders())

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetHeaderBlockFragment(block[:len(block)/2])
	h.SetEndStream(true)
	h.SetEndHeaders(false)
	p.writeFrame(1, h)

	cont := AcquireFrame(FrameContinuation).(*Continuation)
	cont.SetHeaderBlockFragment(block[len(block)/2:])
	cont.SetEndHeaders(true)
	p.writeFrame(3, cont)

	fh := p.expectFrame(FrameGoAway)
	defer ReleaseFrameHeader(fh)
	require.Equal(t, ProtocolError, fh.Body().(*GoAway).Code())
}

// TestContentLengthMismatchResetsStream covers the content-length
// discipline: DATA totaling more than the declared content-length resets
// the stream with PROTOCOL_ERROR while the connection keeps serving.
func TestContentLengthMismatchResetsStream(t *testing.T) {
	_, raw := startRawServer(t)
	p := newRawPeer(t, raw)

	hs := newTestRequestHeaders()
	cl := AcquireHeaderField()
	cl.Set("content-length", "5")
	hs = append(hs, cl)

	enc := AcquireEncoder()
	defer ReleaseEncoder(enc)
	block := enc.EncodeHeaderBlock(hs)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetHeaderBlockFragment(block)
	h.SetEndHeaders(true)
	p.writeFrame(1, h)

	d := AcquireFrame(FrameData).(*Data)
	d.SetData([]byte("7 bytes"))
	d.SetEndStream(true)
	p.writeFrame(1, d)

	fh := p.expectFrame(FrameResetStream)
	require.Equal(t, ProtocolError, fh.Body().(*RstStream).Code())
	ReleaseFrameHeader(fh)

	// The reset is stream-scoped; the connection must still answer PING.
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("still-up"))
	p.writeFrame(0, ping)

	fh = p.expectFrame(FramePing)
	defer ReleaseFrameHeader(fh)
	require.True(t, fh.Body().(*Ping).IsAck())
	require.Equal(t, "still-up", string(fh.Body().(*Ping).Data()))
}

// TestPeerInitialWindowRescale covers the retroactive SETTINGS rule: an
// INITIAL_WINDOW_SIZE change re-scales every open stream's out-window by
// the signed delta.
func TestPeerInitialWindowRescale(t *testing.T) {
	sc, raw := startRawServer(t)
	p := newRawPeer(t, raw)

	enc := AcquireEncoder()
	defer ReleaseEncoder(enc)
	block := enc.EncodeHeaderBlock(newTestRequestHeaders())

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetHeaderBlockFragment(block)
	h.SetEndHeaders(true)
	p.writeFrame(1, h)

	st := AcquireFrame(FrameSettings).(*Settings)
	st.Add(SettingInitialWindowSize, defaultInitialWindowSize-1000)
	p.writeFrame(0, st)

	ReleaseFrameHeader(p.expectFrame(FrameSettings)) // the ack

	reply := make(chan ConnState, 1)
	sc.commands <- DumpState{Reply: reply}

	select {
	case snap := <-reply:
		require.Len(t, snap.Streams, 1)
		require.Equal(t, int64(defaultInitialWindowSize-1000), snap.Streams[0].OutWindow)
	case <-time.After(2 * time.Second):
		t.Fatal("DumpState never answered")
	}
}
