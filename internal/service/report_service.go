// file: internal/service/report_service.go
package service

import (
	"context"
	"time"

	"PluginAtlas/internal/atlasobserve"
	"PluginAtlas/internal/core/domain"
	"PluginAtlas/internal/core/port"
)

// ReportService 串联聚合器与分类器，按请求现算完整的插件使用报表。
// 报表本身不做任何缓存，每次页面访问或下载请求都重新计算。
type ReportService struct {
	aggregator *Aggregator
	settings   port.QueryReportSettingsService
}

// NewReportService 创建 ReportService 实例。
func NewReportService(platform port.PlatformDirectory, settings port.QueryReportSettingsService) *ReportService {
	if settings == nil {
		panic("ReportService: QueryReportSettingsService 实例不能为 nil")
	}
	return &ReportService{
		aggregator: NewAggregator(platform),
		settings:   settings,
	}
}

// classifier 按当前生效的配置构造分类器 (字段名覆盖值每次请求重新解析)。
func (s *ReportService) classifier(ctx context.Context) *Classifier {
	return NewClassifier(s.settings.InternalMetadataField(ctx))
}

// BuildReport 执行一次聚合并回填 Internal 标志与汇总计数。
func (s *ReportService) BuildReport(ctx context.Context) *domain.PluginReport {
	cls := s.classifier(ctx)
	records, tenants := s.aggregator.Aggregate(ctx)
	for _, rec := range records {
		rec.Internal = cls.IsInternal(rec)
	}
	atlasobserve.ReportBuilds.Inc()
	return &domain.PluginReport{
		Records:     records,
		Tenants:     tenants,
		Counts:      cls.Summarize(records),
		GeneratedAt: time.Now(),
	}
}

// ClassifyReport 对已生成的报表做双轴划分，供交互视图按桶展示。
func (s *ReportService) ClassifyReport(ctx context.Context, report *domain.PluginReport) domain.Classification {
	return s.classifier(ctx).Classify(report.Records)
}
