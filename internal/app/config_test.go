package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/app"
	_ "github.com/odyssey-erp/payables/testing"
)

func TestTestModeIsActive(t *testing.T) {
	require.True(t, app.InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_MAX_CONNS", "25")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "local", cfg.StorageDriver)
	require.Equal(t, "0 */6 * * *", cfg.SyncCron)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	require.False(t, cfg.IsProduction())

	pool := cfg.Pool("api")
	require.Equal(t, int32(25), pool.MaxConns)
	require.Equal(t, "payables-api", pool.ApplicationName)
	require.Equal(t, "hunter2", cfg.Redis().Password)
	require.Equal(t, cfg.RedisAddr, cfg.Queue().Addr)
}

func TestLoadConfigRejectsUnknownStorageDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "s3")
	_, err := app.LoadConfig()
	require.ErrorContains(t, err, "storage driver")
}

func TestLoadConfigRequiresCSRFSecret(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	_, err := app.LoadConfig()
	require.Error(t, err)
}
