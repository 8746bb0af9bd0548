// file: internal/adapter/platform/sqlite/directory_test.go
package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDirectory 在临时目录里建一个真实的平台目录数据库并灌入测试数据。
func openTestDirectory(t *testing.T) *Directory {
	t.Helper()

	path := filepath.Join(t.TempDir(), "platform.db")
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, InitPlatformSchema(d.conn()))

	db := d.conn()
	seed := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO network_plugins (file, name, version, author, headers_json, must_use) VALUES (?, ?, ?, ?, ?, ?)",
			[]any{"core/core.php", "Core Tools", "3.2", "Acme", `{"Internal Plugin":"yes"}`, 1}},
		{"INSERT INTO network_plugins (file, name, version, author, must_use) VALUES (?, ?, ?, ?, ?)",
			[]any{"seo/seo.php", "SEO", "1.4", "Beta", 0}},
		{"INSERT INTO network_active_plugins (file) VALUES (?)", []any{"seo/seo.php"}},
		{"INSERT INTO tenants (tenant_id, name) VALUES (?, ?)", []any{1, "Blog"}},
		{"INSERT INTO tenants (tenant_id, name, deleted) VALUES (?, ?, 1)", []any{2, "Gone"}},
		{"INSERT INTO tenant_active_plugins (tenant_id, file) VALUES (?, ?)", []any{1, "seo/seo.php"}},
	}
	for _, s := range seed {
		_, err := db.Exec(s.query, s.args...)
		require.NoError(t, err)
	}
	return d
}

func TestDirectory_Roundtrip(t *testing.T) {
	d := openTestDirectory(t)
	ctx := context.Background()

	mu, err := d.MustUsePlugins(ctx)
	require.NoError(t, err)
	require.Len(t, mu, 1)
	assert.Equal(t, "yes", mu["core/core.php"].Headers["Internal Plugin"])

	installed, err := d.InstalledPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "SEO", installed["seo/seo.php"].Name)

	network, err := d.NetworkActivePluginKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seo/seo.php"}, network)

	// 被标记 deleted 的租户不进入枚举
	ids, err := d.ActiveTenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	name, err := d.TenantDisplayName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Blog", name)

	name, err = d.TenantDisplayName(ctx, 404)
	require.NoError(t, err)
	assert.Equal(t, "", name)

	active, err := d.TenantActivePluginKeys(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"seo/seo.php"}, active)
}

func TestDirectory_HealthCheckAndType(t *testing.T) {
	d := openTestDirectory(t)
	assert.NoError(t, d.HealthCheck(context.Background()))
	assert.Equal(t, "sqlite_platform", d.Type())
}

func TestDirectory_CloseInvalidatesConnection(t *testing.T) {
	d := openTestDirectory(t)
	require.NoError(t, d.Close())
	assert.Error(t, d.HealthCheck(context.Background()))
}
