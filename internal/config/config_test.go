package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresLongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "file::memory:")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxAllowedDevices)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.NotEmpty(t, cfg.JWTRefreshSecret)
	assert.True(t, cfg.Permissions.Contains(PermHierarchyManage))
	assert.False(t, cfg.Permissions.Contains("inventory.edit"))
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DATABASE_DRIVER", "oracle")
	_, err := Load()
	require.Error(t, err)
}

func TestPermissionCatalogFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("PERMISSION_CATALOG", "b.read, a.write ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.write", "b.read"}, cfg.Permissions.Actions())
}

func TestCORSOriginList(t *testing.T) {
	cfg := &Config{CORSOrigins: "https://a.example, https://b.example,"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOriginList())
}
