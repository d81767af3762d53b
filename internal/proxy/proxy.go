// Package proxy implements the passthrough dispatcher. Every inbound request
// not claimed by the management API is forwarded to the upstream Dreamina API
// on behalf of a rotating pool account: the dispatcher picks an account,
// rewrites authorization, relays the request byte-for-byte and maps transport
// failures to caller-visible outcomes.
package proxy

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/store"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/token"
)

// RoutePrefix is the fixed routing prefix stripped from inbound paths before
// they are appended to the upstream base address.
const RoutePrefix = "/api"

// reservedPaths are the manager's own sub-paths. Requests that reach the
// dispatcher for them (wrong method, trailing garbage) get a 404 instead of
// being forwarded, which would recurse through the proxy.
var reservedPaths = []string{
	"/api/accounts",
	"/api/config",
	"/api/events",
	"/health",
}

// requestStripHeaders are connection-management headers the transport layer
// recomputes; they must not be copied to the outbound request.
var requestStripHeaders = []string{
	"Host",
	"Connection",
	"Content-Length",
	"Transfer-Encoding",
	"Expect",
}

// hopByHopHeaders must not be relayed from the upstream response.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy is the request-forwarding engine.
type Proxy struct {
	pool     *store.AccountStore
	upstream func() string // current base address, empty when unconfigured
	client   *http.Client
	logger   logging.Logger
}

// New creates a dispatcher over the given pool. upstream is read per request
// so runtime reconfiguration takes effect immediately.
func New(pool *store.AccountStore, upstream func() string, timeout time.Duration) *Proxy {
	return &Proxy{
		pool:     pool,
		upstream: upstream,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.WithFields(logging.Field{Key: "component", Value: "proxy"}),
	}
}

// ServeHTTP forwards the inbound request to the upstream API.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Pre-flight requests bypass authentication and account selection
	if r.Method == http.MethodOptions {
		setCORSHeaders(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	base := p.upstream()
	if base == "" {
		p.writeError(w, errors.ConfigError("upstream base address is not configured"))
		return
	}

	if isReservedPath(r.URL.Path) {
		p.writeError(w, errors.NotFoundError("resource"))
		return
	}

	account, err := p.pool.NextAccount()
	if err != nil {
		p.writeError(w, err)
		return
	}

	target := buildTargetURL(base, r.URL.Path, r.URL.RawQuery)

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		p.writeError(w, errors.TransportError("failed to build upstream request", err))
		return
	}

	copyRequestHeaders(outbound.Header, r.Header)
	outbound.Header.Set("Authorization", token.NormalizeBearer(account.SessionID))

	resp, err := p.client.Do(outbound)
	if err != nil {
		p.writeError(w, classifyTransportError(err))
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	setCORSHeaders(w.Header())
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug("Response relay interrupted",
			logging.Err(err),
		)
	}

	p.logger.Info("Request dispatched",
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Int("status", resp.StatusCode),
		logging.String("account", account.Email),
	)
}

// buildTargetURL strips exactly the routing prefix from the inbound path and
// appends the remainder to the base address. Paths outside the prefix are
// forwarded unchanged.
func buildTargetURL(base, path, rawQuery string) string {
	remainder := path
	if path == RoutePrefix {
		remainder = "/"
	} else if strings.HasPrefix(path, RoutePrefix+"/") {
		remainder = path[len(RoutePrefix):]
	}

	target := strings.TrimRight(base, "/") + remainder
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

func isReservedPath(path string) bool {
	for _, reserved := range reservedPaths {
		if path == reserved || strings.HasPrefix(path, reserved+"/") {
			return true
		}
	}
	return false
}

// copyRequestHeaders copies inbound headers to the outbound request, minus
// the connection-management set. Authorization is replaced by the caller, so
// passing it through here is harmless but skipped for clarity.
func copyRequestHeaders(dst, src http.Header) {
	for key, values := range src {
		if isStripHeader(key, requestStripHeaders) || http.CanonicalHeaderKey(key) == "Authorization" {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// copyResponseHeaders copies upstream response headers to the caller, minus
// hop-by-hop headers.
func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if isStripHeader(key, hopByHopHeaders) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func isStripHeader(key string, strip []string) bool {
	for _, s := range strip {
		if strings.EqualFold(key, s) {
			return true
		}
	}
	return false
}

// setCORSHeaders attaches the permissive cross-origin headers every proxied
// response and pre-flight carries.
func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Max-Age", "86400")
}

// classifyTransportError maps a transport failure to the dispatcher's error
// taxonomy: timeouts and cancellations become GatewayTimeout, everything else
// BadGateway. The underlying error is kept for diagnostics; it never
// contains the session token.
func classifyTransportError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.TimeoutError("upstream request", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.TimeoutError("upstream request", err)
	}

	return errors.TransportError("upstream request failed", err)
}

// writeError sends a structured error payload with the mapped status code.
func (p *Proxy) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	setCORSHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	message := "request failed"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{
			"type":    string(errors.GetType(err)),
			"message": message,
		},
	})
	w.Write(payload)

	if status >= http.StatusInternalServerError {
		p.logger.Warn("Dispatch failed",
			logging.Int("status", status),
			logging.Err(err),
		)
	}
}
