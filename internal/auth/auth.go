// Package auth implements the administrative gate in front of privileged
// operations: account CRUD, upstream reconfiguration and manual refresh. It
// is a pass/fail capability check, not a user system.
package auth

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
)

// Auth validates administrative credentials. Two forms are accepted: the
// static admin key, or a JWT signed with the configured HMAC secret (so
// operators can mint short-lived keys for tooling without sharing the
// primary one).
type Auth struct {
	adminKey  string
	jwtSecret string
	logger    logging.Logger
}

// New creates the administrative gate.
func New(adminKey, jwtSecret string) *Auth {
	return &Auth{
		adminKey:  adminKey,
		jwtSecret: jwtSecret,
		logger:    logging.WithFields(logging.Field{Key: "component", Value: "auth"}),
	}
}

// Authorize reports whether the request carries a valid administrative
// credential.
func (a *Auth) Authorize(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		return false
	}

	credential := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if credential == "" {
		return false
	}

	if subtle.ConstantTimeCompare([]byte(credential), []byte(a.adminKey)) == 1 {
		return true
	}

	return a.validateJWT(credential)
}

// validateJWT checks a signed admin token when a JWT secret is configured.
func (a *Auth) validateJWT(credential string) bool {
	if a.jwtSecret == "" {
		return false
	}

	parsed, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return err == nil && parsed.Valid
}

// RequireAdmin wraps a handler so only authorized callers reach it.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorize(r) {
			a.logger.Warn("Unauthorized management request",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("remote_addr", r.RemoteAddr),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"type":"authentication","message":"administrative credential required"}}`)
			return
		}

		next.ServeHTTP(w, r)
	})
}
