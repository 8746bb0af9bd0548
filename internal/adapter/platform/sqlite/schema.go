// Package sqlite file: internal/adapter/platform/sqlite/schema.go
package sqlite

import (
	"database/sql"
	"fmt"
)

// InitPlatformSchema 创建平台目录的表结构 (若不存在)。
// 生产环境中这些表由平台侧的同步任务维护；本函数用于内嵌部署与测试。
func InitPlatformSchema(db *sql.DB) error {
	queryPlugins := `
    CREATE TABLE IF NOT EXISTS network_plugins (
        file TEXT PRIMARY KEY,           -- 插件键 (包路径), e.g. "seo-toolkit/seo-toolkit.php"
        name TEXT NOT NULL,
        version TEXT,
        author TEXT,
        author_uri TEXT,
        description TEXT,
        headers_json TEXT,               -- 其余声明式元数据头 (JSON 对象)
        must_use INTEGER NOT NULL DEFAULT 0
    );`
	if _, err := db.Exec(queryPlugins); err != nil {
		return fmt.Errorf("创建 'network_plugins' 表失败: %w", err)
	}

	queryNetworkActive := `
    CREATE TABLE IF NOT EXISTS network_active_plugins (
        file TEXT PRIMARY KEY
    );`
	if _, err := db.Exec(queryNetworkActive); err != nil {
		return fmt.Errorf("创建 'network_active_plugins' 表失败: %w", err)
	}

	queryTenants := `
    CREATE TABLE IF NOT EXISTS tenants (
        tenant_id INTEGER PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        spam INTEGER NOT NULL DEFAULT 0,
        deleted INTEGER NOT NULL DEFAULT 0,
        archived INTEGER NOT NULL DEFAULT 0,
        registered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := db.Exec(queryTenants); err != nil {
		return fmt.Errorf("创建 'tenants' 表失败: %w", err)
	}

	queryTenantActive := `
    CREATE TABLE IF NOT EXISTS tenant_active_plugins (
        tenant_id INTEGER NOT NULL,
        file TEXT NOT NULL,
        PRIMARY KEY (tenant_id, file)
    );`
	if _, err := db.Exec(queryTenantActive); err != nil {
		return fmt.Errorf("创建 'tenant_active_plugins' 表失败: %w", err)
	}

	return nil
}
