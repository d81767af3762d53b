package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/logging"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/notify"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/store"
)

// CredentialRequest is the payload for adding a single account.
type CredentialRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// BatchRequest is the payload for adding many accounts at once.
type BatchRequest struct {
	Accounts []CredentialRequest `json:"accounts"`
}

// JobResponse acknowledges an asynchronous job submission.
type JobResponse struct {
	JobID string `json:"job_id"`
	Total int    `json:"total"`
}

// validate checks the credential and canonicalizes the email so the pool,
// persistence and job reports all key the account identically.
func (c *CredentialRequest) validate() error {
	c.Email = store.NormalizeEmail(c.Email)
	if c.Email == "" {
		return errors.ValidationError("email is required")
	}
	if !strings.Contains(c.Email, "@") {
		return errors.ValidationError("email is not a valid address")
	}
	if c.Password == "" {
		return errors.ValidationError("password is required")
	}
	return nil
}

// ListAccounts returns every pooled account with its session masked.
// Passwords and full session tokens never appear in responses.
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.pool.List()
	views := make([]models.AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, account.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateAccount logs the credential in against the identity endpoint and, on
// success, adds it to the pool and persists it. A duplicate email is a
// conflict regardless of the password supplied.
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.pool.Get(req.Email); err == nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]string{
				"type":    string(errors.ErrTypeValidation),
				"message": "account already exists",
			},
		})
		return
	}

	account, err := h.loginAndBuild(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.pool.Add(account); err != nil {
		writeError(w, err)
		return
	}
	if err := h.storage.SaveAccount(account); err != nil {
		h.logger.Error("Failed to persist account", err,
			logging.String("email", account.Email),
		)
	}

	h.logger.Info("Account added", logging.String("email", account.Email))
	writeJSON(w, http.StatusCreated, account.View())
}

// BatchCreateAccounts accepts a list of credentials and responds immediately
// with a job ID. Logins run serially in the background with the configured
// delay between attempts; the outcome is broadcast as a job event.
func (h *Handlers) BatchCreateAccounts(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if len(req.Accounts) == 0 {
		writeError(w, errors.ValidationError("accounts list is empty"))
		return
	}
	for i := range req.Accounts {
		if err := req.Accounts[i].validate(); err != nil {
			writeError(w, err)
			return
		}
	}

	jobID := uuid.New().String()
	go h.runBatchCreate(jobID, req.Accounts)

	writeJSON(w, http.StatusAccepted, JobResponse{JobID: jobID, Total: len(req.Accounts)})
}

func (h *Handlers) runBatchCreate(jobID string, requests []CredentialRequest) {
	ctx := context.Background()
	items := make([]notify.JobItem, 0, len(requests))
	succeeded := 0

	for i, req := range requests {
		if i > 0 && h.loginDelay > 0 {
			time.Sleep(h.loginDelay)
		}

		if err := h.createOne(ctx, req); err != nil {
			items = append(items, notify.JobItem{Key: req.Email, Error: err.Error()})
			h.logger.Warn("Batch item failed",
				logging.String("job_id", jobID),
				logging.String("email", req.Email),
				logging.Err(err),
			)
			continue
		}
		items = append(items, notify.JobItem{Key: req.Email, OK: true})
		succeeded++
	}

	h.logger.Info("Batch create finished",
		logging.String("job_id", jobID),
		logging.Int("total", len(requests)),
		logging.Int("succeeded", succeeded),
	)

	event := notify.JobEvent{
		JobID:     jobID,
		Type:      notify.JobTypeBatchCreate,
		Total:     len(requests),
		Succeeded: succeeded,
		Failed:    len(requests) - succeeded,
		Items:     items,
	}
	if err := h.notifier.PublishJobEvent(ctx, event); err != nil {
		h.logger.Warn("Failed to publish job event",
			logging.String("job_id", jobID),
			logging.Err(err),
		)
	}
}

func (h *Handlers) createOne(ctx context.Context, req CredentialRequest) error {
	if _, err := h.pool.Get(req.Email); err == nil {
		return errors.ValidationError("account already exists")
	}
	account, err := h.loginAndBuild(ctx, req)
	if err != nil {
		return err
	}
	if err := h.pool.Add(account); err != nil {
		return err
	}
	if err := h.storage.SaveAccount(account); err != nil {
		h.logger.Error("Failed to persist account", err,
			logging.String("email", account.Email),
		)
	}
	return nil
}

func (h *Handlers) loginAndBuild(ctx context.Context, req CredentialRequest) (*models.Account, error) {
	sessionID, expiry, err := h.lifecycle.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &models.Account{
		Email:      req.Email,
		Password:   req.Password,
		SessionID:  sessionID,
		ExpireTime: expiry,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// DeleteAccount removes an account from the pool and from persistence.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	email := store.NormalizeEmail(mux.Vars(r)["email"])

	if err := h.pool.Remove(email); err != nil {
		writeError(w, err)
		return
	}
	if err := h.storage.DeleteAccount(email); err != nil {
		h.logger.Error("Failed to delete persisted account", err,
			logging.String("email", email),
		)
	}

	h.logger.Info("Account removed", logging.String("email", email))
	w.WriteHeader(http.StatusNoContent)
}

// RefreshAccounts kicks off a refresh pass over every pooled account and
// responds immediately with a job ID.
func (h *Handlers) RefreshAccounts(w http.ResponseWriter, r *http.Request) {
	jobID := uuid.New().String()
	total := h.pool.Len()

	go func() {
		ctx := context.Background()
		refreshed, failed := h.refresher.RefreshAll(ctx)

		event := notify.JobEvent{
			JobID:     jobID,
			Type:      notify.JobTypeRefreshAll,
			Total:     refreshed + failed,
			Succeeded: refreshed,
			Failed:    failed,
		}
		if err := h.notifier.PublishJobEvent(ctx, event); err != nil {
			h.logger.Warn("Failed to publish job event",
				logging.String("job_id", jobID),
				logging.Err(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, JobResponse{JobID: jobID, Total: total})
}
