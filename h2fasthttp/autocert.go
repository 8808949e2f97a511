package h2fasthttp

import (
	"crypto/tls"

	h2 "github.com/h2kit/h2core"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/acme/autocert"
)

// ListenAndServeAutocert serves s over TLS on addr using Let's Encrypt
// certificates managed by autocert for the given domains, with ALPN "h2"
// connections dispatched through the engine via ConfigureServer.
//
// autocert.Manager.GetCertificate is plugged directly into the TLS
// listener's config, rather than standing up a throwaway net/http server
// just to extract the certificate bytes autocert already cached.
func ListenAndServeAutocert(s *fasthttp.Server, addr, cacheDir string, domains ...string) error {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	ConfigureServer(s, h2.ConnOpts{})

	tlsConfig := &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
	}

	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	defer ln.Close()

	return s.Serve(ln)
}
