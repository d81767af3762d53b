package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/config"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/middleware"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/notify"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/store"
)

type fakeLifecycle struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   []string
}

func (f *fakeLifecycle) Login(ctx context.Context, email, password string) (string, *time.Time, error) {
	f.mu.Lock()
	f.calls = append(f.calls, email)
	f.mu.Unlock()

	if f.failFor[email] {
		return "", nil, errors.AuthError("login rejected", nil)
	}
	expiry := time.Now().Add(time.Hour)
	return "session-" + email, &expiry, nil
}

type fakeRefresher struct {
	mu        sync.Mutex
	calls     int
	refreshed int
	failed    int
}

func (f *fakeRefresher) RefreshAll(ctx context.Context) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.refreshed, f.failed
}

type recordingNotifier struct {
	events chan notify.JobEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan notify.JobEvent, 4)}
}

func (n *recordingNotifier) PublishJobEvent(ctx context.Context, event notify.JobEvent) error {
	n.events <- event
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) waitForEvent(t *testing.T) notify.JobEvent {
	t.Helper()
	select {
	case event := <-n.events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job event")
		return notify.JobEvent{}
	}
}

// streamingNotifier adds the subscribe side so the event stream endpoint can
// be driven in tests. Published events land on the same channel subscribers
// read from.
type streamingNotifier struct {
	*recordingNotifier
}

func (n *streamingNotifier) SubscribeJobEvents(ctx context.Context) (<-chan notify.JobEvent, error) {
	return n.events, nil
}

type memStorage struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	settings  map[string]string
	healthErr error
}

func newMemStorage() *memStorage {
	return &memStorage{
		accounts: make(map[string]*models.Account),
		settings: make(map[string]string),
	}
}

func (s *memStorage) SaveAccount(account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Email] = account.Clone()
	return nil
}

func (s *memStorage) SaveAllAccounts(accounts []*models.Account) error {
	for _, account := range accounts {
		if err := s.SaveAccount(account); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStorage) LoadAccounts() ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, account.Clone())
	}
	return out, nil
}

func (s *memStorage) DeleteAccount(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, email)
	return nil
}

func (s *memStorage) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *memStorage) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *memStorage) Health() error { return s.healthErr }
func (s *memStorage) Close() error  { return nil }

type testEnv struct {
	handlers  *Handlers
	pool      *store.AccountStore
	storage   *memStorage
	lifecycle *fakeLifecycle
	refresher *fakeRefresher
	notifier  *recordingNotifier
	upstream  *config.UpstreamBase
}

func newTestEnv() *testEnv {
	env := &testEnv{
		pool:      store.New(),
		storage:   newMemStorage(),
		lifecycle: &fakeLifecycle{failFor: make(map[string]bool)},
		refresher: &fakeRefresher{},
		notifier:  newRecordingNotifier(),
		upstream:  config.NewUpstreamBase("https://api.example.com"),
	}
	env.handlers = New(env.pool, env.storage, env.lifecycle, env.refresher, env.notifier, env.upstream, 0)
	return env
}

func (env *testEnv) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/accounts", env.handlers.ListAccounts).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts", env.handlers.CreateAccount).Methods(http.MethodPost)
	r.HandleFunc("/api/accounts/batch", env.handlers.BatchCreateAccounts).Methods(http.MethodPost)
	r.HandleFunc("/api/accounts/refresh", env.handlers.RefreshAccounts).Methods(http.MethodPost)
	r.HandleFunc("/api/accounts/{email}", env.handlers.DeleteAccount).Methods(http.MethodDelete)
	r.HandleFunc("/api/config", env.handlers.GetConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/config", env.handlers.UpdateConfig).Methods(http.MethodPut)
	r.HandleFunc("/api/events", env.handlers.Events).Methods(http.MethodGet)
	r.HandleFunc("/health", env.handlers.Health).Methods(http.MethodGet)
	return r
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAccount(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts", CredentialRequest{
		Email:    "user@example.com",
		Password: "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view models.AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "user@example.com", view.Email)
	assert.True(t, view.HasSession)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.NotContains(t, rec.Body.String(), "session-user@example.com")

	account, err := env.pool.Get("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "session-user@example.com", account.SessionID)

	env.storage.mu.Lock()
	_, persisted := env.storage.accounts["user@example.com"]
	env.storage.mu.Unlock()
	assert.True(t, persisted)
}

func TestCreateAccountDuplicate(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	first := doJSON(t, router, http.MethodPost, "/api/accounts", CredentialRequest{
		Email:    "user@example.com",
		Password: "secret",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, router, http.MethodPost, "/api/accounts", CredentialRequest{
		Email:    "User@Example.com",
		Password: "other",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, 1, env.pool.Len())
}

func TestCreateAccountLoginRejected(t *testing.T) {
	env := newTestEnv()
	env.lifecycle.failFor["bad@example.com"] = true
	router := env.router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts", CredentialRequest{
		Email:    "bad@example.com",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, env.pool.Len())
}

func TestCreateAccountValidation(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	tests := []struct {
		name string
		req  CredentialRequest
	}{
		{"missing email", CredentialRequest{Password: "secret"}},
		{"invalid email", CredentialRequest{Email: "not-an-address", Password: "secret"}},
		{"missing password", CredentialRequest{Email: "user@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/accounts", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAccountEmailNormalization(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts", CredentialRequest{
		Email:    "Foo@Bar.com",
		Password: "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Pool and persistence must share the canonical key
	env.storage.mu.Lock()
	_, rawCased := env.storage.accounts["Foo@Bar.com"]
	_, normalized := env.storage.accounts["foo@bar.com"]
	env.storage.mu.Unlock()
	assert.False(t, rawCased)
	assert.True(t, normalized)

	// Deleting by the canonical form removes the persisted row too
	rec = doJSON(t, router, http.MethodDelete, "/api/accounts/foo@bar.com", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.pool.Len())

	remaining, err := env.storage.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestListAccountsMasksSessions(t *testing.T) {
	env := newTestEnv()
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, env.pool.Add(&models.Account{
		Email:      "user@example.com",
		Password:   "secret",
		SessionID:  "very-long-session-token-value",
		ExpireTime: &expiry,
	}))
	router := env.router()

	rec := doJSON(t, router, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []models.AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.NotContains(t, rec.Body.String(), "very-long-session-token-value")
}

func TestBatchCreateAccounts(t *testing.T) {
	env := newTestEnv()
	env.lifecycle.failFor["bad@example.com"] = true
	router := env.router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/batch", BatchRequest{
		Accounts: []CredentialRequest{
			{Email: "a@example.com", Password: "pw"},
			{Email: "bad@example.com", Password: "pw"},
			{Email: "b@example.com", Password: "pw"},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 3, resp.Total)

	event := env.notifier.waitForEvent(t)
	assert.Equal(t, resp.JobID, event.JobID)
	assert.Equal(t, notify.JobTypeBatchCreate, event.Type)
	assert.Equal(t, 3, event.Total)
	assert.Equal(t, 2, event.Succeeded)
	assert.Equal(t, 1, event.Failed)
	require.Len(t, event.Items, 3)
	assert.True(t, event.Items[0].OK)
	assert.False(t, event.Items[1].OK)
	assert.NotEmpty(t, event.Items[1].Error)
	assert.True(t, event.Items[2].OK)

	assert.Equal(t, 2, env.pool.Len())
}

func TestBatchCreateAccountsEmpty(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.pool.Add(&models.Account{Email: "user@example.com"}))
	require.NoError(t, env.storage.SaveAccount(&models.Account{Email: "user@example.com"}))
	router := env.router()

	rec := doJSON(t, router, http.MethodDelete, "/api/accounts/user@example.com", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.pool.Len())

	env.storage.mu.Lock()
	_, persisted := env.storage.accounts["user@example.com"]
	env.storage.mu.Unlock()
	assert.False(t, persisted)
}

func TestDeleteAccountNotFound(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodDelete, "/api/accounts/missing@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshAccounts(t *testing.T) {
	env := newTestEnv()
	env.refresher.refreshed = 2
	env.refresher.failed = 1
	router := env.router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)

	event := env.notifier.waitForEvent(t)
	assert.Equal(t, notify.JobTypeRefreshAll, event.Type)
	assert.Equal(t, 2, event.Succeeded)
	assert.Equal(t, 1, event.Failed)

	env.refresher.mu.Lock()
	calls := env.refresher.calls
	env.refresher.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv()
	stream := &streamingNotifier{recordingNotifier: env.notifier}
	h := New(env.pool, env.storage, env.lifecycle, env.refresher, stream, env.upstream, 0)

	// Route through the logging middleware exactly as the app wires it; the
	// stream must survive the response writer wrapper.
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.HandleFunc("/api/events", h.Events).Methods(http.MethodGet)

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, stream.PublishJobEvent(context.Background(), notify.JobEvent{
		JobID:     "job-42",
		Type:      notify.JobTypeBatchCreate,
		Total:     1,
		Succeeded: 1,
	}))

	reader := bufio.NewReader(resp.Body)
	timeout := time.AfterFunc(5*time.Second, func() { resp.Body.Close() })
	defer timeout.Stop()

	var payload string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			payload = strings.TrimPrefix(line, "data: ")
			break
		}
	}

	var event notify.JobEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	assert.Equal(t, "job-42", event.JobID)
	assert.Equal(t, notify.JobTypeBatchCreate, event.Type)

	// Ends the handler's range loop so the server can shut down
	close(stream.events)
}

func TestEventsStreamRequiresSubscriber(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UpstreamConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://api.example.com", resp.UpstreamBaseURL)
}

func TestUpdateConfig(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	rec := doJSON(t, router, http.MethodPut, "/api/config", UpstreamConfig{
		UpstreamBaseURL: "https://new.example.com/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://new.example.com", env.upstream.Get())

	value, err := env.storage.GetSetting("upstream_base_url")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", value)
}

func TestUpdateConfigInvalid(t *testing.T) {
	env := newTestEnv()
	router := env.router()

	tests := []string{"", "not-a-url", "ftp://example.com"}
	for _, base := range tests {
		t.Run(fmt.Sprintf("base=%q", base), func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPut, "/api/config", UpstreamConfig{UpstreamBaseURL: base})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, "https://api.example.com", env.upstream.Get())
}

func TestHealth(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.pool.Add(&models.Account{Email: "user@example.com"}))
	router := env.router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, float64(1), resp["accounts"])
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv()
	env.storage.healthErr = fmt.Errorf("connection lost")
	router := env.router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
