// file: internal/transport/http/router/router_test.go
package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"PluginAtlas/internal/core/domain"
	"PluginAtlas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePlatform 是路由测试用的内存平台目录
type fakePlatform struct {
	mustUse   map[string]domain.PluginMeta
	installed map[string]domain.PluginMeta
	network   []string
	tenantIDs []int64
	names     map[int64]string
	active    map[int64][]string
}

func (f *fakePlatform) MustUsePlugins(context.Context) (map[string]domain.PluginMeta, error) {
	return f.mustUse, nil
}

func (f *fakePlatform) InstalledPlugins(context.Context) (map[string]domain.PluginMeta, error) {
	return f.installed, nil
}

func (f *fakePlatform) NetworkActivePluginKeys(context.Context) ([]string, error) {
	return f.network, nil
}

func (f *fakePlatform) ActiveTenantIDs(context.Context) ([]int64, error) {
	return f.tenantIDs, nil
}

func (f *fakePlatform) TenantDisplayName(_ context.Context, id int64) (string, error) {
	return f.names[id], nil
}

func (f *fakePlatform) TenantActivePluginKeys(_ context.Context, id int64) ([]string, error) {
	return f.active[id], nil
}

func (f *fakePlatform) HealthCheck(context.Context) error { return nil }
func (f *fakePlatform) Type() string                      { return "fake" }

func populatedPlatform() *fakePlatform {
	return &fakePlatform{
		mustUse: map[string]domain.PluginMeta{
			"core/core.php": {Name: "Core Tools", Version: "3.2", Author: "Acme"},
		},
		installed: map[string]domain.PluginMeta{
			"core/core.php": {Name: "Core Tools", Version: "3.2", Author: "Acme"},
			"seo/seo.php":   {Name: "SEO", Version: "1.4", Author: "Beta"},
			"shop/shop.php": {Name: "Shop", Version: "2.0", Author: "Gamma"},
		},
		network:   []string{"seo/seo.php"},
		tenantIDs: []int64{1},
		names:     map[int64]string{1: "Blog"},
		active:    map[int64][]string{1: {"shop/shop.php"}},
	}
}

// newTestRouter 组装完整的路由器：真实的系统数据库 + 内存平台目录。
// 返回路由器和一个已登录管理员的 Bearer 令牌。
func newTestRouter(t *testing.T, platform *fakePlatform) (http.Handler, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "system.db")
	sysDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=10000", dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sysDB.Close() })
	require.NoError(t, service.InitSystemTables(sysDB))
	require.NoError(t, service.CreateAdmin(sysDB, "admin", "secret-pass"))

	id, role, ok := service.CheckUser(sysDB, "admin", "secret-pass")
	require.True(t, ok)
	token, err := service.GenToken(id, role)
	require.NoError(t, err)

	settingsService, err := service.NewReportSettingsServiceImpl(sysDB, time.Minute)
	require.NoError(t, err)

	handler := New(Dependencies{
		ReportService:   service.NewReportService(platform, settingsService),
		SettingsService: settingsService,
		TokenStore:      service.NewDownloadTokenStore(time.Minute),
		AuthDB:          sysDB,
	})
	return handler, token
}

func doJSON(t *testing.T, handler http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// ============================================================================
//  权限
// ============================================================================

func TestReportEndpoints_RequireAuth(t *testing.T) {
	handler, _ := newTestRouter(t, populatedPlatform())

	for _, path := range []string{
		"/api/v1/report/plugins",
		"/api/v1/report/plugins/table",
		"/api/v1/report/plugins/summary",
		"/api/v1/admin/settings/report",
	} {
		w := doJSON(t, handler, http.MethodGet, path, "", nil)
		assert.Equalf(t, http.StatusUnauthorized, w.Code, "路径 %s 未认证时应返回 401", path)
	}
}

func TestReportEndpoints_RejectGarbageToken(t *testing.T) {
	handler, _ := newTestRouter(t, populatedPlatform())
	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ============================================================================
//  报表平面
// ============================================================================

func TestReportPlugins(t *testing.T) {
	handler, token := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Records []struct {
				Key           string `json:"key"`
				MustUse       bool   `json:"must_use"`
				NetworkActive bool   `json:"network_active"`
			} `json:"records"`
			Counts domain.PluginCounts `json:"counts"`
		} `json:"data"`
		Empty bool `json:"empty"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.False(t, resp.Empty)
	assert.Len(t, resp.Data.Records, 3)
	assert.Equal(t, 3, resp.Data.Counts.Total)
	assert.Equal(t, 1, resp.Data.Counts.MustUse)
	assert.Equal(t, 1, resp.Data.Counts.NetworkActive)
	assert.Equal(t, 1, resp.Data.Counts.Active)
}

func TestReportPlugins_EmptyState(t *testing.T) {
	handler, token := newTestRouter(t, &fakePlatform{})

	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["empty"])
	assert.Equal(t, "/network/plugins", resp["manage_url"])
}

func TestReportPluginsTable(t *testing.T) {
	handler, token := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/table", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Headers []string   `json:"headers"`
		Rows    [][]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// 15 个固定列 + 1 个租户列
	require.Len(t, resp.Headers, 16)
	assert.Equal(t, "Blog", resp.Headers[15])
	require.Len(t, resp.Rows, 3)
	for _, row := range resp.Rows {
		assert.Len(t, row, len(resp.Headers))
	}
}

func TestReportPluginsSummary(t *testing.T) {
	handler, token := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Counts  domain.PluginCounts `json:"counts"`
		Buckets map[string][]string `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Counts.Total)
	assert.Equal(t, []string{"core/core.php"}, resp.Buckets["must_use"])
	assert.Equal(t, []string{"seo/seo.php"}, resp.Buckets["network_active"])
	assert.Equal(t, []string{"shop/shop.php"}, resp.Buckets["active"])
	assert.Empty(t, resp.Buckets["inactive"])
}

// ============================================================================
//  CSV 下载
// ============================================================================

func exportToken(t *testing.T, handler http.Handler, bearer string) string {
	t.Helper()
	w := doJSON(t, handler, http.MethodPost, "/api/v1/report/plugins/export-token", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, 60, resp.ExpiresIn)
	return resp.Token
}

func TestExport_FullFlow(t *testing.T) {
	handler, bearer := newTestRouter(t, populatedPlatform())
	token := exportToken(t, handler, bearer)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/export?token="+token, bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	disposition := w.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, `attachment; filename="manage-multisite-plugins-`)
	assert.True(t, strings.HasSuffix(disposition, `.csv"`))

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4) // 表头 + 三条记录
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, "Blog", rows[0][15])
}

func TestExport_TokenIsSingleUse(t *testing.T) {
	handler, bearer := newTestRouter(t, populatedPlatform())
	token := exportToken(t, handler, bearer)

	first := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/export?token="+token, bearer, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/export?token="+token, bearer, nil)
	assert.Equal(t, http.StatusForbidden, second.Code)
}

func TestExport_MissingTokenRejected(t *testing.T) {
	handler, bearer := newTestRouter(t, populatedPlatform())
	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/export", bearer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExport_EmptyReportRejected(t *testing.T) {
	handler, bearer := newTestRouter(t, &fakePlatform{})
	token := exportToken(t, handler, bearer)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/report/plugins/export?token="+token, bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================================================
//  管理员配置
// ============================================================================

func TestAdminSettings_GetAndUpdate(t *testing.T) {
	handler, bearer := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodGet, "/api/v1/admin/settings/report", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var settings domain.ReportSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "UTC", settings.Timezone)

	w = doJSON(t, handler, http.MethodPut, "/api/v1/admin/settings/report", bearer, map[string]string{
		"internal_field": "Built In-House",
		"timezone":       "UTC",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/api/v1/admin/settings/report", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "Built In-House", settings.InternalField)
}

func TestAdminSettings_InvalidTimezoneRejected(t *testing.T) {
	handler, bearer := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodPut, "/api/v1/admin/settings/report", bearer, map[string]string{
		"timezone": "Not/AZone",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============================================================================
//  系统平面
// ============================================================================

func TestSystemStatus(t *testing.T) {
	handler, _ := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodGet, "/api/v1/system/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready_for_login", resp["status"])
}

func TestLogin(t *testing.T) {
	handler, _ := newTestRouter(t, populatedPlatform())

	w := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"user": "admin", "pass": "secret-pass",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	w = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"user": "admin", "pass": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
