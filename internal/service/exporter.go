// file: internal/service/exporter.go
package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"PluginAtlas/internal/core/domain"
)

// presenceMark 是表格中布尔列与租户激活列使用的字面标记。
const presenceMark = "X"

// exportFilePrefix 是下载文件名的固定前缀。
const exportFilePrefix = "manage-multisite-plugins-"

// fixedColumns 是固定表头。版本检查与采购相关的列是永久空白的占位列，
// 本系统不追踪更新与授权数据。
var fixedColumns = []string{
	"Name",
	"Internal",
	"Must-use",
	"Network-active",
	"Our version",
	"Current version",
	"Needs update",
	"Allow update",
	"Is forked",
	"In WP repo",
	"Purchased",
	"Purchased Date",
	"Purchased Expiration",
	"Flag for removal",
	"Author",
}

// HeaderRow 生成表头：固定列之后，按租户枚举顺序为每个显示名已解析的租户追加一列。
// 交互视图与下载文件共用这份契约，仅序列化格式不同。
func HeaderRow(tenants []domain.Tenant) []string {
	header := make([]string, 0, len(fixedColumns)+len(tenants))
	header = append(header, fixedColumns...)
	for _, t := range tenants {
		header = append(header, t.Name)
	}
	return header
}

// RecordRow 把一条聚合记录渲染为一行字面显示值。
// 租户单元格在插件为 must-use、网络激活或在该租户上显式激活时标记 "X"，否则留空。
func RecordRow(rec *domain.PluginRecord, tenants []domain.Tenant) []string {
	row := make([]string, 0, len(fixedColumns)+len(tenants))
	row = append(row,
		rec.Name,
		mark(rec.Internal),
		mark(rec.MustUse),
		mark(rec.NetworkActive),
		rec.Version,
		"", // Current version: 永久空白
		"", // Needs update
		"", // Allow update
		"", // Is forked
		"", // In WP repo
		"", // Purchased
		"", // Purchased Date
		"", // Purchased Expiration
		"", // Flag for removal
		rec.Author,
	)
	for _, t := range tenants {
		row = append(row, mark(rec.ActiveOn(t.ID)))
	}
	return row
}

// Rows 按记录的既有排序逐条渲染。
func Rows(records []*domain.PluginRecord, tenants []domain.Tenant) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RecordRow(rec, tenants))
	}
	return rows
}

// WriteCSV 把完整报表以 CSV 形式写入 w。
func WriteCSV(w io.Writer, report *domain.PluginReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HeaderRow(report.Tenants)); err != nil {
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for _, rec := range report.Records {
		if err := cw.Write(RecordRow(rec, report.Tenants)); err != nil {
			return fmt.Errorf("写入插件 '%s' 的CSV行失败: %w", rec.Key, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("刷新CSV输出失败: %w", err)
	}
	return nil
}

// ExportFileName 生成下载文件名: manage-multisite-plugins-<时间戳>.csv。
// 时间戳使用配置时区；时区解析失败时静默回退 UTC，绝不阻断下载。
func ExportFileName(now time.Time, tzName string) string {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		slog.Warn("导出: 时区解析失败，回退 UTC", "timezone", tzName, "error", err)
		loc = time.UTC
	}
	return exportFilePrefix + now.In(loc).Format("2006-01-02T150405") + ".csv"
}

func mark(on bool) string {
	if on {
		return presenceMark
	}
	return ""
}
