package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("PROVIDER_CLIENT_ID", "cid")
	t.Setenv("PROVIDER_CLIENT_SECRET", "csecret")
	t.Setenv("IDENTITY_BASE_URL", "https://identity.test")
	t.Setenv("IDENTITY_API_KEY", "ikey")
	t.Setenv("BILLING_BASE_URL", "https://billing.test")
	t.Setenv("BILLING_API_KEY", "bkey")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 1, cfg.Quota.FreeAccounts)
	require.Equal(t, 3, cfg.Quota.ProAccounts)
	require.Equal(t, 30*time.Second, cfg.Sync.Interval)
	require.Equal(t, 5*time.Second, cfg.Sync.CountRefresh)
	require.Equal(t, "https://api.aurinko.io", cfg.Provider.BaseURL)
}

func TestNew_MissingSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_SECRET", "")

	_, err := New()
	require.Error(t, err)
}

func TestNew_InvalidQuotaOrdering(t *testing.T) {
	setRequired(t)
	t.Setenv("QUOTA_FREE_ACCOUNTS", "5")
	t.Setenv("QUOTA_PRO_ACCOUNTS", "3")

	_, err := New()
	require.ErrorContains(t, err, "QUOTA_FREE_ACCOUNTS")
}

func TestNew_OverridesParsed(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_INTERVAL", "1m")
	t.Setenv("SYNC_COUNT_REFRESH", "2s")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, time.Minute, cfg.Sync.Interval)
	require.Equal(t, 2*time.Second, cfg.Sync.CountRefresh)
}
