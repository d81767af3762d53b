// Package handlers implements the account management API. All endpoints here
// sit behind the admin gate; the passthrough dispatcher lives in
// internal/proxy and never reaches this package.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/config"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/notify"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/storage"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/store"
)

// Lifecycle is the part of the token manager the handlers need.
type Lifecycle interface {
	Login(ctx context.Context, email, password string) (string, *time.Time, error)
}

// Refresher triggers a refresh pass over the whole pool.
type Refresher interface {
	RefreshAll(ctx context.Context) (refreshed, failed int)
}

type Handlers struct {
	pool       *store.AccountStore
	storage    storage.Storage
	lifecycle  Lifecycle
	refresher  Refresher
	notifier   notify.Notifier
	upstream   *config.UpstreamBase
	loginDelay time.Duration
	logger     logging.Logger
}

func New(pool *store.AccountStore, st storage.Storage, lifecycle Lifecycle, refresher Refresher, notifier notify.Notifier, upstream *config.UpstreamBase, loginDelay time.Duration) *Handlers {
	return &Handlers{
		pool:       pool,
		storage:    st,
		lifecycle:  lifecycle,
		refresher:  refresher,
		notifier:   notifier,
		upstream:   upstream,
		loginDelay: loginDelay,
		logger:     logging.WithFields(logging.Field{Key: "component", Value: "handlers"}),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses and emits the same
// payload shape the dispatcher uses.
func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	message := "request failed"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"type":    string(errors.GetType(err)),
			"message": message,
		},
	})
}
