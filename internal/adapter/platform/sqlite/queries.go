// Package sqlite file: internal/adapter/platform/sqlite/queries.go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"PluginAtlas/internal/core/domain"
)

// MustUsePlugins 枚举强制激活插件清单。
func (d *Directory) MustUsePlugins(ctx context.Context) (map[string]domain.PluginMeta, error) {
	return d.listPlugins(ctx, true)
}

// InstalledPlugins 枚举普通已安装插件清单 (不含 must-use 目录)。
func (d *Directory) InstalledPlugins(ctx context.Context) (map[string]domain.PluginMeta, error) {
	return d.listPlugins(ctx, false)
}

// listPlugins 按 must_use 标志读取 network_plugins 表。
func (d *Directory) listPlugins(ctx context.Context, mustUse bool) (map[string]domain.PluginMeta, error) {
	db := d.conn()
	if db == nil {
		return nil, fmt.Errorf("平台目录数据库连接不可用")
	}

	query := `
        SELECT file, name, version, author, author_uri, description, headers_json
        FROM network_plugins WHERE must_use = ?`
	rows, err := db.QueryContext(ctx, query, boolToInt(mustUse))
	if err != nil {
		return nil, fmt.Errorf("查询插件清单失败 (must_use=%v): %w", mustUse, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("警告: [PlatformDir] 关闭插件清单结果集失败: %v", err)
		}
	}()

	plugins := make(map[string]domain.PluginMeta)
	for rows.Next() {
		var (
			file, name                               string
			version, author, authorURI, desc, hdrRaw sql.NullString
		)
		if err := rows.Scan(&file, &name, &version, &author, &authorURI, &desc, &hdrRaw); err != nil {
			log.Printf("警告: [PlatformDir] 扫描插件行失败，已跳过: %v", err)
			continue
		}
		meta := domain.PluginMeta{
			Name:        name,
			Version:     version.String,
			Author:      author.String,
			AuthorURI:   authorURI.String,
			Description: desc.String,
		}
		if hdrRaw.Valid && hdrRaw.String != "" {
			headers := make(map[string]string)
			if err := json.Unmarshal([]byte(hdrRaw.String), &headers); err != nil {
				// 元数据头损坏不影响记录本身
				log.Printf("警告: [PlatformDir] 插件 '%s' 的元数据头JSON解析失败: %v", file, err)
			} else {
				meta.Headers = headers
			}
		}
		plugins[file] = meta
	}
	return plugins, rows.Err()
}

// NetworkActivePluginKeys 返回全网激活注册表中的插件键。
func (d *Directory) NetworkActivePluginKeys(ctx context.Context) ([]string, error) {
	db := d.conn()
	if db == nil {
		return nil, fmt.Errorf("平台目录数据库连接不可用")
	}

	rows, err := db.QueryContext(ctx, `SELECT file FROM network_active_plugins`)
	if err != nil {
		return nil, fmt.Errorf("查询全网激活列表失败: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			log.Printf("警告: [PlatformDir] 扫描全网激活条目失败，已跳过: %v", err)
			continue
		}
		keys = append(keys, file)
	}
	return keys, rows.Err()
}

// ActiveTenantIDs 按注册顺序返回有效租户ID，排除 spam/deleted/archived。
func (d *Directory) ActiveTenantIDs(ctx context.Context) ([]int64, error) {
	db := d.conn()
	if db == nil {
		return nil, fmt.Errorf("平台目录数据库连接不可用")
	}

	query := `
        SELECT tenant_id FROM tenants
        WHERE spam = 0 AND deleted = 0 AND archived = 0
        ORDER BY tenant_id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("枚举有效租户失败: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			log.Printf("警告: [PlatformDir] 扫描租户ID失败，已跳过: %v", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TenantDisplayName 解析租户显示名。租户不存在或名称为空时返回空字符串，不视为错误。
func (d *Directory) TenantDisplayName(ctx context.Context, tenantID int64) (string, error) {
	db := d.conn()
	if db == nil {
		return "", fmt.Errorf("平台目录数据库连接不可用")
	}

	var name sql.NullString
	err := db.QueryRowContext(ctx, `SELECT name FROM tenants WHERE tenant_id = ?`, tenantID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("解析租户 %d 显示名失败: %w", tenantID, err)
	}
	return name.String, nil
}

// TenantActivePluginKeys 返回指定租户显式激活的插件键。
func (d *Directory) TenantActivePluginKeys(ctx context.Context, tenantID int64) ([]string, error) {
	db := d.conn()
	if db == nil {
		return nil, fmt.Errorf("平台目录数据库连接不可用")
	}

	rows, err := db.QueryContext(ctx,
		`SELECT file FROM tenant_active_plugins WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("查询租户 %d 的激活列表失败: %w", tenantID, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			log.Printf("警告: [PlatformDir] 扫描租户激活条目失败，已跳过: %v", err)
			continue
		}
		keys = append(keys, file)
	}
	return keys, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
