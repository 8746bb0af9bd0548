// Package domain file: internal/core/domain/report_models.go
package domain

import "time"

// PluginMeta 代表平台插件注册表中声明的插件元数据
type PluginMeta struct {
	Name        string            `json:"name"`                  // 人类可读的名称
	Version     string            `json:"version"`               // 已安装版本号
	Author      string            `json:"author"`                // 作者名称
	AuthorURI   string            `json:"author_uri,omitempty"`  // 作者主页 (可选)
	Description string            `json:"description,omitempty"` // 简短描述 (可选)
	Headers     map[string]string `json:"headers,omitempty"`     // 其余的声明式元数据头, e.g. "Internal Plugin": "yes"
}

// PluginRecord 是聚合后的统一插件记录，每个插件键 (包路径) 恰好对应一条。
// MustUse 与 NetworkActive 在构造上互斥：强制激活的插件不会再被单独标记为网络激活。
type PluginRecord struct {
	Key         string            `json:"key"` // 稳定的插件标识符, e.g. "seo-toolkit/seo-toolkit.php"
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Author      string            `json:"author"`
	AuthorURI   string            `json:"author_uri,omitempty"`
	Description string            `json:"description,omitempty"`
	Headers     map[string]string `json:"-"`

	Internal      bool `json:"internal"`       // 元数据标记为运营方自研插件
	MustUse       bool `json:"must_use"`       // 强制激活 (安装位置决定，独立于任何激活列表)
	NetworkActive bool `json:"network_active"` // 通过中央注册表全网激活

	// ActiveSites 记录显式激活了该插件的租户 (租户ID -> 显示名)。
	// 只收录显示名解析为非空字符串的租户；枚举顺序由租户列表承载。
	ActiveSites map[int64]string `json:"active_sites"`
}

// ActiveOn 判断插件在指定租户上是否生效 (强制激活、网络激活或该租户显式激活)。
func (r *PluginRecord) ActiveOn(tenantID int64) bool {
	if r.MustUse || r.NetworkActive {
		return true
	}
	_, ok := r.ActiveSites[tenantID]
	return ok
}

// ManuallyActive 判断插件是否仅在部分租户上被手动激活。
func (r *PluginRecord) ManuallyActive() bool {
	return !r.MustUse && !r.NetworkActive && len(r.ActiveSites) > 0
}

// Inactive 判断插件是否处于完全未激活状态。
func (r *PluginRecord) Inactive() bool {
	return !r.MustUse && !r.NetworkActive && len(r.ActiveSites) == 0
}

// Tenant 代表网络中的一个可寻址子站点 (不含 spam/deleted/archived 租户)
type Tenant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PluginCounts 是派生的汇总计数。
// MustUse/NetworkActive/Inactive/Active 构成对 Total 的四分划分；
// Internal 在整个集合上独立计数，与划分桶不互斥。
type PluginCounts struct {
	Total         int `json:"total"`
	Internal      int `json:"internal"`
	MustUse       int `json:"must_use"`
	NetworkActive int `json:"network_active"`
	Inactive      int `json:"inactive"`
	Active        int `json:"active"`
}

// ActivationScope 标识插件的激活范围桶
type ActivationScope string

const (
	ScopeMustUse       ActivationScope = "must_use"
	ScopeNetworkActive ActivationScope = "network_active"
	ScopeActive        ActivationScope = "active"
	ScopeInactive      ActivationScope = "inactive"
)

// Classification 按两条独立轴线划分后的记录桶。
// Internal/External 是一组完整划分，四个范围桶是另一组完整划分。
type Classification struct {
	Internal      []*PluginRecord `json:"internal"`
	External      []*PluginRecord `json:"external"`
	MustUse       []*PluginRecord `json:"must_use"`
	NetworkActive []*PluginRecord `json:"network_active"`
	Inactive      []*PluginRecord `json:"inactive"`
	Active        []*PluginRecord `json:"active"`
}

// PluginReport 是一次完整聚合的产物，按请求重新计算，不做持久化。
type PluginReport struct {
	Records     []*PluginRecord `json:"records"` // 已按名称自然序 (大小写不敏感) 排序
	Tenants     []Tenant        `json:"tenants"` // 枚举顺序，仅含显示名非空的租户
	Counts      PluginCounts    `json:"counts"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Empty 判断报表是否没有任何聚合数据 (用于下载拒绝与空状态渲染)。
func (p *PluginReport) Empty() bool {
	return len(p.Records) == 0
}

// ReportSettings 是可由管理端调整的报表配置
type ReportSettings struct {
	// InternalField 覆盖用于识别自研插件的元数据字段名，空值表示使用编译期默认值
	InternalField string `json:"internal_field"`
	// Timezone 是导出文件名时间戳使用的 IANA 时区，解析失败时静默回退 UTC
	Timezone string `json:"timezone"`
}
