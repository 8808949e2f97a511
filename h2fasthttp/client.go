package h2fasthttp

import (
	"bytes"
	"crypto/tls"
	"net"
	"strconv"

	h2 "github.com/h2kit/h2core"
	"github.com/valyala/fasthttp"
)

var headerUserAgent = []byte("User-Agent")

// ConfigureClient dials c.Addr over TLS, negotiates "h2" via ALPN, and
// installs the resulting connection as c's Transport -- the client-side
// analogue of ConfigureServer.
func ConfigureClient(c *fasthttp.HostClient, tlsConfig *tls.Config) error {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tlsConfig = tlsConfig.Clone()
	}

	if tlsConfig.ServerName == "" {
		host, _, err := net.SplitHostPort(c.Addr)
		if err != nil {
			host = c.Addr
		}
		tlsConfig.ServerName = host
	}
	tlsConfig.NextProtos = append(tlsConfig.NextProtos, "h2")

	raw, err := net.Dial("tcp", c.Addr)
	if err != nil {
		return err
	}

	tlsConn := tls.Client(raw, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		_ = raw.Close()
		return err
	}
	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		_ = tlsConn.Close()
		return h2.ErrServerSupport
	}

	cc, err := h2.Dial(tlsConn, h2.ClientOpts{})
	if err != nil {
		return err
	}

	c.Transport = Do(cc)
	return nil
}

// transportFunc adapts a plain request/response function to
// fasthttp.RoundTripper, since fasthttp has no such adapter itself.
type transportFunc func(req *fasthttp.Request, res *fasthttp.Response) error

func (f transportFunc) RoundTrip(hc *fasthttp.HostClient, req *fasthttp.Request, res *fasthttp.Response) (retry bool, err error) {
	return false, f(req, res)
}

// Do adapts cc into a fasthttp.RoundTripper, translating one
// fasthttp.Request/Response pair per call into an h2 Start command and
// blocking for its terminal event.
func Do(cc *h2.ClientConn) fasthttp.RoundTripper {
	return transportFunc(func(req *fasthttp.Request, res *fasthttp.Response) error {
		hdrs := requestHeaders(req)

		var body h2.BodyProducer
		b := req.Body()
		if len(b) != 0 {
			body = &onceBody{data: b}
		}

		ch := make(chan error, 1)
		cc.Start(hdrs, body, nil, body == nil, &streamCreated{res: res, ch: ch})
		return <-ch
	})
}

func requestHeaders(req *fasthttp.Request) []*h2.HeaderField {
	hdrs := make([]*h2.HeaderField, 0, 4+req.Header.Len())

	method := h2.AcquireHeaderField()
	method.Set(":method", string(req.Header.Method()))
	hdrs = append(hdrs, method)

	path := h2.AcquireHeaderField()
	path.Set(":path", string(req.URI().RequestURI()))
	hdrs = append(hdrs, path)

	scheme := h2.AcquireHeaderField()
	scheme.Set(":scheme", string(req.URI().Scheme()))
	hdrs = append(hdrs, scheme)

	authority := h2.AcquireHeaderField()
	authority.Set(":authority", string(req.URI().Host()))
	hdrs = append(hdrs, authority)

	if ua := req.Header.UserAgent(); len(ua) != 0 {
		hf := h2.AcquireHeaderField()
		hf.SetBytes([]byte("user-agent"), ua)
		hdrs = append(hdrs, hf)
	}

	req.Header.VisitAll(func(k, v []byte) {
		if bytes.EqualFold(k, headerUserAgent) {
			return
		}
		hf := h2.AcquireHeaderField()
		hf.SetBytes(toLower(k), v)
		hdrs = append(hdrs, hf)
	})

	return hdrs
}

func toLower(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// onceBody is a single-chunk h2.BodyProducer for a request body that is
// already fully buffered in memory, which is the only shape
// fasthttp.Request exposes.
type onceBody struct {
	data []byte
	sent bool
}

func (b *onceBody) Next() ([]byte, bool, error) {
	if b.sent {
		return nil, true, nil
	}
	b.sent = true
	return b.data, true, nil
}

type streamCreated struct {
	res *fasthttp.Response
	ch  chan error
}

func (s *streamCreated) RequestCreated(credit *h2.WindowCredit) h2.ClientStreamHandler {
	return &clientStream{res: s.res, ch: s.ch, credit: credit}
}

type clientStream struct {
	res    *fasthttp.Response
	ch     chan error
	credit *h2.WindowCredit
	done   bool
}

func (s *clientStream) Headers(hs []*h2.HeaderField, endStream bool) {
	for _, hf := range hs {
		if hf.Key() == ":status" {
			n, err := strconv.Atoi(hf.Value())
			if err == nil {
				s.res.SetStatusCode(n)
			}
			continue
		}
		if hf.IsPseudo() {
			continue
		}
		s.res.Header.Add(hf.Key(), hf.Value())
	}
	if endStream {
		s.finish(nil)
	}
}

func (s *clientStream) DataFrame(b []byte, endStream bool) {
	if len(b) > 0 {
		s.res.AppendBody(b)
		s.credit.Return(uint32(len(b)))
	}
	if endStream {
		s.finish(nil)
	}
}

func (s *clientStream) Trailers(hs []*h2.HeaderField) {
	s.finish(nil)
}

func (s *clientStream) Rst(code h2.ErrorCode) {
	s.finish(h2.NewStreamError(code, "stream reset by peer"))
}

func (s *clientStream) Error(err error) {
	s.finish(err)
}

func (s *clientStream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	s.ch <- err
}
