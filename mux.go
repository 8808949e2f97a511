package h2

import "strings"

// ServeMux is a ServerHandler that routes each accepted request stream to
// the registered handler with the longest matching :path prefix. Requests
// that match nothing get an immediate 404 with no body.
type ServeMux struct {
	entries []muxEntry
}

type muxEntry struct {
	prefix  string
	handler ServerHandler
}

func NewServeMux() *ServeMux { return &ServeMux{} }

// Handle registers handler for every request whose :path starts with
// prefix. Longer prefixes win over shorter ones regardless of registration
// order.
func (m *ServeMux) Handle(prefix string, handler ServerHandler) {
	m.entries = append(m.entries, muxEntry{prefix: prefix, handler: handler})
}

func (m *ServeMux) StartRequest(ctx *RequestContext, req *Request, resp *ResponseSender) (ServerStreamHandler, error) {
	var best *muxEntry
	for i := range m.entries {
		e := &m.entries[i]
		if strings.HasPrefix(req.Path, e.prefix) && (best == nil || len(e.prefix) > len(best.prefix)) {
			best = e
		}
	}

	if best == nil {
		status := AcquireHeaderField()
		status.Set(":status", "404")
		resp.SendHeaders([]*HeaderField{status}, true)
		return nopStreamHandler{}, nil
	}

	return best.handler.StartRequest(ctx, req, resp)
}

// nopStreamHandler swallows the remaining events of a stream nobody wants.
type nopStreamHandler struct{}

func (nopStreamHandler) DataFrame(b []byte, endStream bool) {}
func (nopStreamHandler) Trailers(hs []*HeaderField)         {}
func (nopStreamHandler) Rst(code ErrorCode)                 {}
func (nopStreamHandler) Error(err error)                    {}
