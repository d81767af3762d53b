package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Server wraps the HTTP listener. Read and write timeouts must outlast the
// per-request upstream timeout or long proxied responses get cut off.
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
}

// New creates a server for the given handler. proxyTimeout is the upstream
// request budget; the listener's timeouts are derived from it.
func New(handler http.Handler, port string, proxyTimeout time.Duration, tlsCert, tlsKey string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  proxyTimeout + 30*time.Second,
			WriteTimeout: proxyTimeout + 30*time.Second,
			IdleTimeout:  120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
	}
}

// Start begins serving in a background goroutine. With a cert and key pair
// configured the listener speaks TLS 1.2+.
func (s *Server) Start() error {
	if s.tlsCert != "" && s.tlsKey != "" {
		s.srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		go func() {
			if err := s.srv.ListenAndServeTLS(s.tlsCert, s.tlsKey); err != nil && err != http.ErrServerClosed {
				panic(err)
			}
		}()
		return nil
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
