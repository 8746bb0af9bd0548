// Package port file: internal/core/port/service.go
package port

import (
	"PluginAtlas/internal/core/domain"
	"context"
)

// QueryReportSettingsService 是一个接口，定义了系统获取和修改报表配置的能力。
type QueryReportSettingsService interface {
	// InternalMetadataField 返回生效的自研插件标记字段名 (管理员覆盖值优先于编译期默认值)
	InternalMetadataField(ctx context.Context) string

	// ExportTimezone 返回导出文件名时间戳使用的时区名
	ExportTimezone(ctx context.Context) string

	GetReportSettings(ctx context.Context) (*domain.ReportSettings, error)
	UpdateReportSettings(ctx context.Context, settings domain.ReportSettings) error

	InvalidateCache()
}
