// Package port file: internal/core/port/platform.go
package port

import (
	"context"
	"errors"

	"PluginAtlas/internal/core/domain"
)

// Standard errors
var (
	ErrPermissionDenied = errors.New("权限不足，操作被拒绝")
	ErrNothingToExport  = errors.New("没有可供下载的聚合数据")
)

// PlatformDirectory 抽象托管平台提供的只读插件与租户目录。
// 所有查询都是阻塞读；返回空集合表示"无数据"而非错误，调用方以降级方式继续。
type PlatformDirectory interface {
	// MustUsePlugins 枚举强制激活 (must-use) 插件清单
	MustUsePlugins(ctx context.Context) (map[string]domain.PluginMeta, error)

	// InstalledPlugins 枚举完整的已安装插件清单 (不含 must-use 目录)
	InstalledPlugins(ctx context.Context) (map[string]domain.PluginMeta, error)

	// NetworkActivePluginKeys 返回全网激活注册表中的插件键
	NetworkActivePluginKeys(ctx context.Context) ([]string, error)

	// ActiveTenantIDs 按枚举顺序返回有效租户ID (排除 spam/deleted/archived)
	ActiveTenantIDs(ctx context.Context) ([]int64, error)

	// TenantDisplayName 解析租户显示名，未能解析时返回空字符串
	TenantDisplayName(ctx context.Context, tenantID int64) (string, error)

	// TenantActivePluginKeys 返回指定租户显式激活的插件键
	TenantActivePluginKeys(ctx context.Context, tenantID int64) ([]string, error)

	// HealthCheck 检查平台目录的可用性
	HealthCheck(ctx context.Context) error

	// Type 返回适配器的类型标识符
	Type() string
}
