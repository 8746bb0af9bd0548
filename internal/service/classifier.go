// file: internal/service/classifier.go
package service

import (
	"strings"

	"PluginAtlas/internal/core/domain"
)

// DefaultInternalMetadataField 是识别自研插件的元数据字段的编译期默认名。
// 管理端可以通过报表配置覆盖它。
const DefaultInternalMetadataField = "Internal Plugin"

// Classifier 沿两条独立轴线对聚合记录进行划分：
// 自研/第三方 (由元数据字段判定)，以及四选一的激活范围。
type Classifier struct {
	field string
}

// NewClassifier 创建一个 Classifier。fieldOverride 为空时使用编译期默认字段名。
func NewClassifier(fieldOverride string) *Classifier {
	field := strings.TrimSpace(fieldOverride)
	if field == "" {
		field = DefaultInternalMetadataField
	}
	return &Classifier{field: field}
}

// IsInternal 判断记录是否为自研插件：
// 指定元数据字段存在且其值 (去除首尾空白后) 大小写不敏感地等于 "yes"。
func (c *Classifier) IsInternal(rec *domain.PluginRecord) bool {
	if rec == nil || rec.Headers == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(rec.Headers[c.field]), "yes")
}

// Scope 返回记录所属的激活范围桶，每条记录恰好落入一个桶。
func (c *Classifier) Scope(rec *domain.PluginRecord) domain.ActivationScope {
	switch {
	case rec.MustUse:
		return domain.ScopeMustUse
	case rec.NetworkActive:
		return domain.ScopeNetworkActive
	case len(rec.ActiveSites) > 0:
		return domain.ScopeActive
	default:
		return domain.ScopeInactive
	}
}

// Classify 按两条轴线划分记录。输入顺序在各桶内保持不变。
func (c *Classifier) Classify(records []*domain.PluginRecord) domain.Classification {
	var cls domain.Classification
	for _, rec := range records {
		if c.IsInternal(rec) {
			cls.Internal = append(cls.Internal, rec)
		} else {
			cls.External = append(cls.External, rec)
		}
		switch c.Scope(rec) {
		case domain.ScopeMustUse:
			cls.MustUse = append(cls.MustUse, rec)
		case domain.ScopeNetworkActive:
			cls.NetworkActive = append(cls.NetworkActive, rec)
		case domain.ScopeActive:
			cls.Active = append(cls.Active, rec)
		case domain.ScopeInactive:
			cls.Inactive = append(cls.Inactive, rec)
		}
	}
	return cls
}

// Summarize 计算汇总计数：四个范围桶对 Total 完整划分，Internal 独立计数。
func (c *Classifier) Summarize(records []*domain.PluginRecord) domain.PluginCounts {
	counts := domain.PluginCounts{Total: len(records)}
	for _, rec := range records {
		if c.IsInternal(rec) {
			counts.Internal++
		}
		switch c.Scope(rec) {
		case domain.ScopeMustUse:
			counts.MustUse++
		case domain.ScopeNetworkActive:
			counts.NetworkActive++
		case domain.ScopeActive:
			counts.Active++
		case domain.ScopeInactive:
			counts.Inactive++
		}
	}
	return counts
}
