// Package token manages the lifecycle of Dreamina session tokens: credential
// login against the upstream identity endpoint, structural and temporal
// validation, and refresh of sessions nearing expiry.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
)

// Manager performs login, validation and refresh against the Dreamina
// identity endpoint. Login and Refresh are distinct fallible operations; the
// upstream requires different request shapes for "authenticate from
// credentials" and "exchange a near-expired session", and the caller decides
// whether a failed refresh falls back to a full login.
type Manager struct {
	loginURL   string
	refreshURL string
	client     *http.Client
	logger     logging.Logger
}

// NewManager creates a lifecycle manager talking to the given login endpoint.
// The refresh endpoint is derived from it.
func NewManager(loginURL string, timeout time.Duration) *Manager {
	return &Manager{
		loginURL:   loginURL,
		refreshURL: refreshEndpoint(loginURL),
		client:     &http.Client{Timeout: timeout},
		logger:     logging.WithFields(logging.Field{Key: "component", Value: "token"}),
	}
}

// refreshEndpoint derives the session-exchange endpoint from the login URL.
func refreshEndpoint(loginURL string) string {
	if strings.HasSuffix(loginURL, "/login") {
		return strings.TrimSuffix(loginURL, "/login") + "/refresh_session"
	}
	return strings.TrimRight(loginURL, "/") + "/refresh_session"
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		SessionID string `json:"session_id"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"data"`
}

// Login authenticates with email and password and returns a fresh session
// token plus its expiry. Rejected credentials and unreachable upstreams both
// surface as an AuthFailure.
func (m *Manager) Login(ctx context.Context, email, password string) (string, *time.Time, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", nil, errors.InternalError("failed to encode login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.loginURL, bytes.NewReader(body))
	if err != nil {
		return "", nil, errors.InternalError("failed to build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", nil, errors.AuthError("identity endpoint unreachable", err).WithContext("email", email)
	}
	defer resp.Body.Close()

	session, expiry, err := parseSessionResponse(resp)
	if err != nil {
		return "", nil, errors.AuthError("login rejected by upstream", err).WithContext("email", email)
	}

	m.logger.Info("Login succeeded",
		logging.String("email", email),
	)
	return session, expiry, nil
}

// Refresh exchanges the account's current session for a new one. It never
// mutates the input; on success it returns a new record so the caller can
// apply it atomically, on failure it returns nil and a RefreshFailure.
func (m *Manager) Refresh(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account == nil {
		return nil, errors.ValidationError("account is required")
	}
	if !account.HasSession() {
		return nil, errors.RefreshError(account.Email, fmt.Errorf("no session to exchange"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, nil)
	if err != nil {
		return nil, errors.RefreshError(account.Email, err)
	}
	req.Header.Set("Authorization", NormalizeBearer(account.SessionID))

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.RefreshError(account.Email, err)
	}
	defer resp.Body.Close()

	session, expiry, err := parseSessionResponse(resp)
	if err != nil {
		return nil, errors.RefreshError(account.Email, err)
	}

	updated := account.Clone()
	updated.SessionID = session
	updated.ExpireTime = expiry

	m.logger.Debug("Session refreshed",
		logging.String("email", account.Email),
	)
	return updated, nil
}

// parseSessionResponse decodes the upstream identity response shared by the
// login and refresh endpoints.
func parseSessionResponse(resp *http.Response) (string, *time.Time, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var parsed sessionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Code != 0 {
		return "", nil, fmt.Errorf("upstream code %d: %s", parsed.Code, parsed.Message)
	}
	if parsed.Data.SessionID == "" {
		return "", nil, fmt.Errorf("upstream returned empty session")
	}

	var expiry *time.Time
	if parsed.Data.ExpiresAt > 0 {
		t := time.Unix(parsed.Data.ExpiresAt, 0)
		expiry = &t
	}
	return parsed.Data.SessionID, expiry, nil
}

// Validate reports whether a session token is structurally sound and its
// expiry lies in the future. A missing expiry fails validation even though
// dispatch tolerates it; Validate answers "certainly good", not "usable".
func (m *Manager) Validate(sessionID string, expiry *time.Time) bool {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
		return false
	}
	if expiry == nil {
		return false
	}
	return expiry.After(time.Now())
}

// IsExpiringSoon reports whether a session should be proactively refreshed.
// An unset expiry counts as immediately expiring, forcing a refresh or login.
func (m *Manager) IsExpiringSoon(expiry *time.Time, threshold time.Duration) bool {
	if expiry == nil {
		return true
	}
	return time.Until(*expiry) <= threshold
}

// NormalizeBearer ensures the bearer scheme prefix is present exactly once.
func NormalizeBearer(sessionID string) string {
	trimmed := strings.TrimSpace(sessionID)
	for strings.HasPrefix(strings.ToLower(trimmed), "bearer ") {
		trimmed = strings.TrimSpace(trimmed[len("bearer "):])
	}
	return "Bearer " + trimmed
}
