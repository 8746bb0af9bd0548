// file: internal/service/settings_service.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"PluginAtlas/internal/core/domain"
	"PluginAtlas/internal/core/port"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	settingKeyInternalField  = "internal_metadata_field"
	settingKeyExportTimezone = "export_timezone"

	// DefaultExportTimezone 是时区未配置时的默认值
	DefaultExportTimezone = "UTC"

	settingsCacheKey = "report_settings"
)

// ReportSettingsServiceImpl 是 QueryReportSettingsService 的一个实现。
// 配置存放在系统数据库的 report_settings 键值表中，并用带过期时间的 LRU 缓存。
// 注意缓存的只是管理配置 (字段名覆盖、时区)，报表数据本身永远按请求现算。
type ReportSettingsServiceImpl struct {
	db    *sql.DB
	cache *lru.LRU[string, *domain.ReportSettings]
}

// 静态断言，确保 ReportSettingsServiceImpl 实现了 port.QueryReportSettingsService 接口。
var _ port.QueryReportSettingsService = (*ReportSettingsServiceImpl)(nil)

// NewReportSettingsServiceImpl 创建一个新的 ReportSettingsServiceImpl 实例。
func NewReportSettingsServiceImpl(sysDB *sql.DB, cacheTTL time.Duration) (*ReportSettingsServiceImpl, error) {
	if sysDB == nil {
		return nil, fmt.Errorf("ReportSettingsServiceImpl 初始化失败: sysDB 实例不能为 nil")
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute // 默认值
	}
	return &ReportSettingsServiceImpl{
		db:    sysDB,
		cache: lru.NewLRU[string, *domain.ReportSettings](8, nil, cacheTTL),
	}, nil
}

// InvalidateCache 手动使配置缓存失效 (写入后调用)。
func (s *ReportSettingsServiceImpl) InvalidateCache() {
	s.cache.Purge()
	log.Printf("信息: [ReportSettings] 报表配置缓存已失效。")
}

// GetReportSettings 返回当前持久化的报表配置，未配置的键取默认值。
func (s *ReportSettingsServiceImpl) GetReportSettings(ctx context.Context) (*domain.ReportSettings, error) {
	if cached, ok := s.cache.Get(settingsCacheKey); ok {
		return cached, nil
	}

	settings := &domain.ReportSettings{Timezone: DefaultExportTimezone}
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM report_settings")
	if err != nil {
		return nil, fmt.Errorf("查询报表配置失败: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("警告: [ReportSettings] 关闭配置结果集失败: %v", err)
		}
	}()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			log.Printf("警告: [ReportSettings] 扫描配置行失败，已跳过: %v", err)
			continue
		}
		switch key {
		case settingKeyInternalField:
			settings.InternalField = value
		case settingKeyExportTimezone:
			if value != "" {
				settings.Timezone = value
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历报表配置失败: %w", err)
	}

	s.cache.Add(settingsCacheKey, settings)
	return settings, nil
}

// UpdateReportSettings 持久化报表配置并使缓存失效。
func (s *ReportSettingsServiceImpl) UpdateReportSettings(ctx context.Context, settings domain.ReportSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启配置更新事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := `
	INSERT INTO report_settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP;`

	if _, err := tx.ExecContext(ctx, upsert, settingKeyInternalField, settings.InternalField); err != nil {
		return fmt.Errorf("更新自研标记字段配置失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, settingKeyExportTimezone, settings.Timezone); err != nil {
		return fmt.Errorf("更新导出时区配置失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交配置更新事务失败: %w", err)
	}

	s.InvalidateCache()
	return nil
}

// InternalMetadataField 返回生效的自研插件标记字段名。
// 管理员覆盖值优先；未配置或读取失败时回退编译期默认值。
func (s *ReportSettingsServiceImpl) InternalMetadataField(ctx context.Context) string {
	settings, err := s.GetReportSettings(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("警告: [ReportSettings] 读取自研标记字段配置失败，使用默认值: %v", err)
		}
		return DefaultInternalMetadataField
	}
	if settings.InternalField == "" {
		return DefaultInternalMetadataField
	}
	return settings.InternalField
}

// ExportTimezone 返回导出文件名时间戳使用的时区名，读取失败时回退 UTC。
func (s *ReportSettingsServiceImpl) ExportTimezone(ctx context.Context) string {
	settings, err := s.GetReportSettings(ctx)
	if err != nil {
		log.Printf("警告: [ReportSettings] 读取导出时区配置失败，使用 UTC: %v", err)
		return DefaultExportTimezone
	}
	return settings.Timezone
}
