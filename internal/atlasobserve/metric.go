// Package atlasobserve 暴露 Prometheus 指标
package atlasobserve

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	ReportBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginatlas_report_builds_total",
		Help: "报表聚合执行总数",
	})
	CSVExports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginatlas_csv_exports_total",
		Help: "成功下载的CSV导出总数",
	})
	RejectedExports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginatlas_csv_exports_rejected_total",
		Help: "被拒绝的CSV下载请求数 (令牌无效、权限不足或无数据)",
	})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(ReportBuilds, CSVExports, RejectedExports)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }
