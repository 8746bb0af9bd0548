// file: internal/service/aggregator.go
package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"PluginAtlas/internal/core/domain"
	"PluginAtlas/internal/core/port"

	"github.com/maruel/natural"
)

// Aggregator 将平台的三份互不重叠的插件清单 (must-use、全量注册、逐租户激活)
// 合并为统一的 PluginRecord 集合。平台查询失败一律按"无数据"降级处理，
// Aggregate 永远不向外传播错误。
type Aggregator struct {
	platform port.PlatformDirectory
}

// NewAggregator 创建一个新的 Aggregator 实例。
func NewAggregator(platform port.PlatformDirectory) *Aggregator {
	if platform == nil {
		panic("Aggregator: PlatformDirectory 实例不能为 nil")
	}
	return &Aggregator{platform: platform}
}

// Aggregate 执行一次完整的聚合，返回按名称自然序排序的记录集合，
// 以及显示名已解析的租户列表 (保持平台枚举顺序)。
func (a *Aggregator) Aggregate(ctx context.Context) ([]*domain.PluginRecord, []domain.Tenant) {
	mustUse, err := a.platform.MustUsePlugins(ctx)
	if err != nil {
		slog.Warn("聚合: 获取 must-use 插件清单失败，按空清单处理", "error", err)
		mustUse = nil
	}
	installed, err := a.platform.InstalledPlugins(ctx)
	if err != nil {
		slog.Warn("聚合: 获取已安装插件清单失败，按空清单处理", "error", err)
		installed = nil
	}
	networkKeys, err := a.platform.NetworkActivePluginKeys(ctx)
	if err != nil {
		slog.Warn("聚合: 获取全网激活列表失败，按空列表处理", "error", err)
		networkKeys = nil
	}

	records := make(map[string]*domain.PluginRecord, len(mustUse)+len(installed))

	// 第一步: 以 must-use 清单为种子
	for key, meta := range mustUse {
		records[key] = newRecord(key, meta, true)
	}

	// 第二步: 补入全量清单中尚未出现的键。
	// 已在第一步落座的记录保持原样，must-use 状态不会被普通清单覆盖。
	for key, meta := range installed {
		if _, exists := records[key]; exists {
			continue
		}
		records[key] = newRecord(key, meta, false)
	}

	// 第三步: 标记全网激活。该步骤无条件改写两个标志，
	// 因此可以把第一步设下的 must-use 降级为 network-active —— 两者互斥，
	// 且下游计数依赖这一精确的优先级。没有对应清单条目的键直接跳过，不合成记录。
	for _, key := range networkKeys {
		rec, exists := records[key]
		if !exists {
			continue
		}
		rec.NetworkActive = true
		rec.MustUse = false
	}

	// 第四步: 逐租户合并显式激活列表
	tenants := a.collectTenants(ctx, records)

	// 第五步: 按名称排序 (自然序 + 大小写不敏感，"Plugin 2" 先于 "Plugin 10")
	sorted := make([]*domain.PluginRecord, 0, len(records))
	for _, rec := range records {
		sorted = append(sorted, rec)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return natural.Less(strings.ToLower(sorted[i].Name), strings.ToLower(sorted[j].Name))
	})

	return sorted, tenants
}

// collectTenants 枚举有效租户，解析显示名，并把各租户的激活列表并入记录集合。
// 显示名解析为空的租户被静默丢弃：既不产生导出列，也不在 ActiveSites 中留痕。
func (a *Aggregator) collectTenants(ctx context.Context, records map[string]*domain.PluginRecord) []domain.Tenant {
	ids, err := a.platform.ActiveTenantIDs(ctx)
	if err != nil {
		slog.Warn("聚合: 枚举有效租户失败，按无租户处理", "error", err)
		return nil
	}

	tenants := make([]domain.Tenant, 0, len(ids))
	for _, id := range ids {
		name, err := a.platform.TenantDisplayName(ctx, id)
		if err != nil {
			slog.Warn("聚合: 解析租户显示名失败，已跳过该租户", "tenant_id", id, "error", err)
			continue
		}
		if name == "" {
			continue
		}
		tenants = append(tenants, domain.Tenant{ID: id, Name: name})

		keys, err := a.platform.TenantActivePluginKeys(ctx, id)
		if err != nil {
			slog.Warn("聚合: 获取租户激活列表失败，按空列表处理", "tenant_id", id, "error", err)
			continue
		}
		for _, key := range keys {
			rec, exists := records[key]
			if !exists {
				// 激活表里的孤儿条目没有对应的清单记录，直接跳过
				continue
			}
			rec.ActiveSites[id] = name
		}
	}
	return tenants
}

// newRecord 从清单元数据构造基础记录。第一份报告某个键的清单决定记录身份。
func newRecord(key string, meta domain.PluginMeta, mustUse bool) *domain.PluginRecord {
	name := meta.Name
	if name == "" {
		name = key
	}
	return &domain.PluginRecord{
		Key:         key,
		Name:        name,
		Version:     meta.Version,
		Author:      meta.Author,
		AuthorURI:   meta.AuthorURI,
		Description: meta.Description,
		Headers:     meta.Headers,
		MustUse:     mustUse,
		ActiveSites: make(map[int64]string),
	}
}
