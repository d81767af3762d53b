package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/storage"
)

// UpstreamConfig is the runtime-configurable slice of the config surface.
type UpstreamConfig struct {
	UpstreamBaseURL string `json:"upstream_base_url"`
}

// GetConfig returns the current upstream base address.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UpstreamConfig{UpstreamBaseURL: h.upstream.Get()})
}

// UpdateConfig replaces the upstream base address. The change takes effect
// for subsequent proxied requests and survives restarts via the settings
// table.
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpstreamConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}

	base := strings.TrimRight(strings.TrimSpace(req.UpstreamBaseURL), "/")
	if base == "" {
		writeError(w, errors.ValidationError("upstream_base_url is required"))
		return
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeError(w, errors.ValidationError("upstream_base_url must be an absolute http(s) URL"))
		return
	}

	h.upstream.Set(base)
	if err := h.storage.SetSetting(storage.SettingUpstreamBaseURL, base); err != nil {
		h.logger.Error("Failed to persist upstream base", err)
	}

	h.logger.Info("Upstream base updated", logging.String("base", base))
	writeJSON(w, http.StatusOK, UpstreamConfig{UpstreamBaseURL: base})
}

// Health reports storage connectivity and the pool size. Unauthenticated.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.storage.Health(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.Warn("Storage health check failed", logging.Err(err))
	}

	writeJSON(w, code, map[string]interface{}{
		"status":   status,
		"accounts": h.pool.Len(),
	})
}
