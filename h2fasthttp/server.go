// Package h2fasthttp adapts the h2 engine to fasthttp.Server and
// fasthttp.HostClient: ConfigureServer installs the engine as an ALPN
// handler, and Do (in client.go) provides the request/response glue for
// fasthttp.HostClient.
package h2fasthttp

import (
	"bytes"
	"log"
	"net"
	"os"
	"strconv"
	"sync"

	h2 "github.com/h2kit/h2core"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

// ctxPool recycles fasthttp.RequestCtx across requests, since the h2 engine
// calls StartRequest far more often than a plain fasthttp.Server would
// allocate contexts on its own.
var ctxPool = sync.Pool{
	New: func() interface{} { return &fasthttp.RequestCtx{} },
}

var logger = log.New(os.Stdout, "", log.LstdFlags)

// Adaptor implements h2.ServerHandler on top of a fasthttp.RequestHandler,
// buffering each stream's body (via bytebufferpool) until END_STREAM before
// invoking the handler once, synchronously, exactly as fasthttp expects.
type Adaptor struct {
	Handler fasthttp.RequestHandler
}

// NewAdaptor wraps h as an h2.ServerHandler.
func NewAdaptor(h fasthttp.RequestHandler) *Adaptor {
	return &Adaptor{Handler: h}
}

// ConfigureServer registers the h2 engine as s's "h2" ALPN protocol
// handler. The caller is still responsible for serving a TLS listener that
// negotiates ALPN (see ListenAndServeAutocert for one way to do that); TLS
// setup itself is out of scope for the engine.
func ConfigureServer(s *fasthttp.Server, opts h2.ConnOpts) {
	a := NewAdaptor(s.Handler)
	s.NextProto("h2", func(c net.Conn) error {
		sc := h2.NewServerConn(c, h2.ServerConfig{ConnOpts: opts, Handler: a})
		return sc.Serve()
	})
}

func (a *Adaptor) StartRequest(ctx *h2.RequestContext, req *h2.Request, resp *h2.ResponseSender) (h2.ServerStreamHandler, error) {
	rc := ctxPool.Get().(*fasthttp.RequestCtx)
	rc.Request.Reset()
	rc.Response.Reset()
	rc.Init2(ctx.Conn, logger, false)

	rc.Request.Header.SetMethod(req.Method)
	rc.Request.Header.SetRequestURI(req.Path)

	scheme := req.Scheme
	if scheme == "" {
		scheme = "https"
	}
	rc.Request.URI().SetScheme(scheme)

	if req.Authority != "" {
		rc.Request.Header.SetHost(req.Authority)
	}
	for _, hf := range req.Headers {
		if hf.IsPseudo() {
			continue
		}
		rc.Request.Header.Add(hf.Key(), hf.Value())
	}
	rc.Request.Header.SetProtocol("HTTP/2.0")

	return &streamAdaptor{handler: a.Handler, ctx: rc, resp: resp}, nil
}

type streamAdaptor struct {
	handler fasthttp.RequestHandler
	ctx     *fasthttp.RequestCtx
	resp    *h2.ResponseSender
	body    *bytebufferpool.ByteBuffer
	done    bool
}

func (s *streamAdaptor) DataFrame(b []byte, endStream bool) {
	if len(b) > 0 {
		if s.body == nil {
			s.body = bytebufferpool.Get()
		}
		_, _ = s.body.Write(b)
	}
	if endStream {
		s.finish()
	}
}

// Trailers treats the arrival of trailing headers as the request's natural
// end: the request body (if any) was already fully delivered via
// DataFrame's headers discipline (a trailing HEADERS always
// carries END_STREAM).
func (s *streamAdaptor) Trailers(hs []*h2.HeaderField) {
	s.finish()
}

func (s *streamAdaptor) Rst(code h2.ErrorCode) { s.release() }
func (s *streamAdaptor) Error(err error)       { s.release() }

func (s *streamAdaptor) finish() {
	if s.done {
		return
	}
	s.done = true

	if s.body != nil {
		s.ctx.Request.SetBody(s.body.B)
	}

	s.handler(s.ctx)

	fasthttpResponseHeaders(s.resp, &s.ctx.Response)

	s.release()
}

func (s *streamAdaptor) release() {
	if s.body != nil {
		bytebufferpool.Put(s.body)
		s.body = nil
	}
	s.ctx.Request.Reset()
	s.ctx.Response.Reset()
	ctxPool.Put(s.ctx)
}

// fasthttpResponseHeaders sends res as the stream's response, lower-casing
// header names the way HPACK requires (RFC 7541 §4.1.2) before appending
// each as a HeaderField.
func fasthttpResponseHeaders(resp *h2.ResponseSender, res *fasthttp.Response) {
	hdrs := make([]*h2.HeaderField, 0, 4+res.Header.Len())

	status := h2.AcquireHeaderField()
	status.Set(":status", strconv.Itoa(res.StatusCode()))
	hdrs = append(hdrs, status)

	res.Header.SetContentLength(len(res.Body()))
	res.Header.VisitAll(func(k, v []byte) {
		hf := h2.AcquireHeaderField()
		hf.SetBytes(bytes.ToLower(k), v)
		hdrs = append(hdrs, hf)
	})

	body := res.Body()
	resp.SendHeaders(hdrs, len(body) == 0)
	if len(body) != 0 {
		resp.SendData(body, true)
	}
}
