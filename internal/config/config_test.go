package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.False(t, cfg.OKR.StrictStatus)
	assert.Contains(t, cfg.RolePermissions("owner"), PermOKRDelete)
	assert.NotContains(t, cfg.RolePermissions("viewer"), PermOKRUpdate)
	assert.Equal(t, 100, cfg.PageSizeLimit())
}

func TestFromYAMLOverridesSections(t *testing.T) {
	cfg, err := FromYAML([]byte(`
okr:
  strict_status: true
  max_page_size: 10
rbac:
  roles:
    owner:
      permissions: [okr:read]
`))
	require.NoError(t, err)
	assert.True(t, cfg.OKR.StrictStatus)
	assert.Equal(t, 10, cfg.PageSizeLimit())
	assert.Len(t, cfg.RBAC.Roles, 1)
	// untouched sections keep defaults
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown driver":     "database:\n  driver: mysql\n",
		"postgres needs dsn": "database:\n  driver: postgres\n",
		"owner role missing": "rbac:\n  default_role: ''\n  roles:\n    admin:\n      permissions: [okr:read]\n",
		"empty permission":   "rbac:\n  roles:\n    owner:\n      permissions: ['']\n",
		"unknown default":    "rbac:\n  default_role: ghost\n",
	}
	for name, raw := range cases {
		_, err := FromYAML([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(Path(dir), []byte("okr:\n  strict_status: true\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.OKR.StrictStatus)
}
