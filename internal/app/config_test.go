package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 3, cfg.StoreRetryAttempts)
	require.Equal(t, 100*time.Millisecond, cfg.StoreRetryBaseDelay)
	require.Equal(t, 500, cfg.BatchSize)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, StorageLocal, cfg.StorageDriver)
	require.False(t, cfg.LedgerAllowNegative)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"zero attempts":    {"STORE_RETRY_ATTEMPTS": "0"},
		"zero batch":       {"BATCH_SIZE": "0"},
		"unknown driver":   {"STORAGE_DRIVER": "ftp"},
		"minio no creds":   {"STORAGE_DRIVER": "minio", "MINIO_ENDPOINT": "minio:9000"},
		"negative lockttl": {"LOCK_TTL": "-1s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfigMinio(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "minio")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("LEDGER_ALLOW_NEGATIVE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "gestionale-imports", cfg.MinioBucket)
	require.True(t, cfg.LedgerAllowNegative)
}
