package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(&Config{
		DatabasePath: filepath.Join(t.TempDir(), "accounts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestNewAdapter_InvalidConfig(t *testing.T) {
	_, err := NewAdapter(&Config{})
	assert.Error(t, err)
}

func TestSaveAndLoadAccounts(t *testing.T) {
	adapter := newTestAdapter(t)

	expiry := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	accounts := []*models.Account{
		{Email: "a@x.com", Password: "pw-a", SessionID: "sess-a", ExpireTime: &expiry},
		{Email: "b@x.com", Password: "pw-b"},
	}
	for _, account := range accounts {
		require.NoError(t, adapter.SaveAccount(account))
	}

	loaded, err := adapter.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "a@x.com", loaded[0].Email)
	assert.Equal(t, "pw-a", loaded[0].Password)
	assert.Equal(t, "sess-a", loaded[0].SessionID)
	require.NotNil(t, loaded[0].ExpireTime)
	assert.WithinDuration(t, expiry, *loaded[0].ExpireTime, time.Second)

	assert.Equal(t, "b@x.com", loaded[1].Email)
	assert.Empty(t, loaded[1].SessionID)
	assert.Nil(t, loaded[1].ExpireTime)
}

func TestSaveAccount_Upsert(t *testing.T) {
	adapter := newTestAdapter(t)

	require.NoError(t, adapter.SaveAccount(&models.Account{Email: "a@x.com", Password: "pw", SessionID: "old"}))
	require.NoError(t, adapter.SaveAccount(&models.Account{Email: "a@x.com", Password: "pw", SessionID: "new"}))

	loaded, err := adapter.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].SessionID)
}

func TestSaveAllAccounts(t *testing.T) {
	adapter := newTestAdapter(t)

	accounts := []*models.Account{
		{Email: "a@x.com", Password: "pw-a", SessionID: "s1"},
		{Email: "b@x.com", Password: "pw-b", SessionID: "s2"},
		{Email: "c@x.com", Password: "pw-c", SessionID: "s3"},
	}
	require.NoError(t, adapter.SaveAllAccounts(accounts))

	loaded, err := adapter.LoadAccounts()
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestDeleteAccount(t *testing.T) {
	adapter := newTestAdapter(t)

	require.NoError(t, adapter.SaveAccount(&models.Account{Email: "a@x.com", Password: "pw"}))
	require.NoError(t, adapter.DeleteAccount("a@x.com"))

	loaded, err := adapter.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	assert.Error(t, adapter.DeleteAccount("a@x.com"))
}

func TestSettings(t *testing.T) {
	adapter := newTestAdapter(t)

	// Missing key returns empty value, not an error
	value, err := adapter.GetSetting("upstream_base_url")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, adapter.SetSetting("upstream_base_url", "https://up.example"))
	value, err = adapter.GetSetting("upstream_base_url")
	require.NoError(t, err)
	assert.Equal(t, "https://up.example", value)

	// Upsert overwrites
	require.NoError(t, adapter.SetSetting("upstream_base_url", "https://other.example"))
	value, err = adapter.GetSetting("upstream_base_url")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example", value)
}

func TestHealth(t *testing.T) {
	adapter := newTestAdapter(t)
	assert.NoError(t, adapter.Health())
}
