// file: internal/transport/http/router/router.go
package router

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"PluginAtlas/internal/atlasmiddleware"
	"PluginAtlas/internal/atlasobserve"
	"PluginAtlas/internal/core/domain"
	"PluginAtlas/internal/core/port"
	"PluginAtlas/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// manageURL 是聚合数据为空时，交互视图引导管理员返回的插件管理页地址。
const manageURL = "/network/plugins"

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	ReportService      *service.ReportService
	SettingsService    port.QueryReportSettingsService
	TokenStore         *service.DownloadTokenStore
	AuthDB             *sql.DB
	LoginLimiter       *atlasmiddleware.IPRateLimiter
	SetupToken         string
	SetupTokenDeadline time.Time
}

// New 创建并配置一个全新的、基于 Gin 的 HTTP 路由器 (V1 版本)
func New(deps Dependencies) http.Handler {
	router := gin.Default()

	// --- 配置全局中间件 ---
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	registerValidations()

	router.GET("/metrics", gin.WrapH(atlasobserve.Handler()))

	authService := service.NewAuthenticator(deps.AuthDB)
	v1 := router.Group("/api/v1")
	{
		// --- 系统/认证平面 (System/Auth Plane) ---
		authGroup := v1.Group("/auth")
		{
			loginHandlers := []gin.HandlerFunc{loginHandler(deps.AuthDB)}
			if deps.LoginLimiter != nil {
				loginHandlers = append([]gin.HandlerFunc{deps.LoginLimiter.Middleware()}, loginHandlers...)
			}
			authGroup.POST("/login", loginHandlers...)
		}
		systemGroup := v1.Group("/system")
		{
			systemGroup.Any("/setup", setupHandler(deps.AuthDB, deps.SetupToken, deps.SetupTokenDeadline))
			systemGroup.GET("/status", statusHandler(deps.AuthDB))
		}

		// --- 报表平面 (Report Plane) ---
		reportGroup := v1.Group("/report")
		reportGroup.Use(authMiddleware(authService), requireAdmin())
		{
			reportGroup.GET("/plugins", reportHandler(deps.ReportService))
			reportGroup.GET("/plugins/table", tableHandler(deps.ReportService))
			reportGroup.GET("/plugins/summary", summaryHandler(deps.ReportService))
			reportGroup.POST("/plugins/export-token", exportTokenHandler(deps.TokenStore))
			reportGroup.GET("/plugins/export", exportHandler(deps.ReportService, deps.SettingsService, deps.TokenStore))
		}

		// --- 控制平面 (Control Plane) ---
		adminGroup := v1.Group("/admin")
		adminGroup.Use(authMiddleware(authService), requireAdmin())
		{
			adminGroup.GET("/settings/report", getReportSettingsHandler(deps.SettingsService))
			adminGroup.PUT("/settings/report", updateReportSettingsHandler(deps.SettingsService))
		}
	}

	return router
}

// registerValidations 向 gin 的 validator 引擎注册自定义校验规则。
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// iana_tz: 字段值必须是可解析的 IANA 时区名
		_ = v.RegisterValidation("iana_tz", func(fl validator.FieldLevel) bool {
			_, err := time.LoadLocation(fl.Field().String())
			return err == nil
		})
	}
}

// =============================================================================
//  Gin 中间件 (Middleware)
// =============================================================================

// authMiddleware 是一个将 service.Authenticator 集成到 gin 流程的中间件
func authMiddleware(auth *service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// requireAdmin 是一个确保只有管理员角色才能访问的中间件
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := service.ClaimFrom(c.Request)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "需要认证"})
			return
		}
		if claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": port.ErrPermissionDenied.Error()})
			return
		}
		c.Next()
	}
}

// =============================================================================
//  报表平面处理器 (Report Plane Handlers)
// =============================================================================

// reportHandler 返回完整的聚合报表 (交互视图的数据源)。
// 聚合结果为空时渲染友好的空状态，并附上返回插件管理页的链接。
func reportHandler(reports *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := reports.BuildReport(c.Request.Context())
		if report.Empty() {
			c.JSON(http.StatusOK, gin.H{
				"data":       report,
				"empty":      true,
				"message":    "当前没有任何插件数据。",
				"manage_url": manageURL,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": report})
	}
}

// tableHandler 以表头+行的形式返回报表。
// 该契约与CSV下载完全一致，仅序列化格式不同。
func tableHandler(reports *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := reports.BuildReport(c.Request.Context())
		if report.Empty() {
			c.JSON(http.StatusOK, gin.H{
				"headers":    service.HeaderRow(report.Tenants),
				"rows":       [][]string{},
				"empty":      true,
				"message":    "当前没有任何插件数据。",
				"manage_url": manageURL,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"headers": service.HeaderRow(report.Tenants),
			"rows":    service.Rows(report.Records, report.Tenants),
		})
	}
}

// summaryHandler 返回汇总计数与双轴分类桶 (桶内仅含插件键，避免载荷膨胀)。
func summaryHandler(reports *service.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := reports.BuildReport(c.Request.Context())
		cls := reports.ClassifyReport(c.Request.Context(), report)
		c.JSON(http.StatusOK, gin.H{
			"counts": report.Counts,
			"buckets": gin.H{
				"internal":       recordKeys(cls.Internal),
				"external":       recordKeys(cls.External),
				"must_use":       recordKeys(cls.MustUse),
				"network_active": recordKeys(cls.NetworkActive),
				"active":         recordKeys(cls.Active),
				"inactive":       recordKeys(cls.Inactive),
			},
		})
	}
}

// exportTokenHandler 为当前管理员签发一次性的CSV下载令牌。
func exportTokenHandler(tokens *service.DownloadTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := service.ClaimFrom(c.Request)
		token := tokens.Issue(claims.ID)
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(tokens.TTL().Seconds()),
		})
	}
}

// exportHandler 校验一次性令牌后以附件形式流式输出CSV。
// 令牌缺失/无效时直接终止请求；聚合结果为空时拒绝并提示无数据可下载。
func exportHandler(reports *service.ReportService, settings port.QueryReportSettingsService, tokens *service.DownloadTokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := service.ClaimFrom(c.Request)
		token := c.Query("token")
		if !tokens.Redeem(token, claims.ID) {
			atlasobserve.RejectedExports.Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "下载令牌缺失、无效或已被使用"})
			return
		}

		report := reports.BuildReport(c.Request.Context())
		if report.Empty() {
			atlasobserve.RejectedExports.Inc()
			c.JSON(http.StatusNotFound, gin.H{"error": port.ErrNothingToExport.Error()})
			return
		}

		filename := service.ExportFileName(time.Now(), settings.ExportTimezone(c.Request.Context()))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := service.WriteCSV(c.Writer, report); err != nil {
			// 表头可能已经发出，这里只能记录错误
			log.Printf("ERROR: exportHandler 写入CSV失败: %v", err)
			return
		}
		atlasobserve.CSVExports.Inc()
		log.Printf("审计日志: 用户ID '%d' 已下载插件报表 '%s' (%d 条记录)。", claims.ID, filename, len(report.Records))
	}
}

func recordKeys(records []*domain.PluginRecord) []string {
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key)
	}
	return keys
}

// =============================================================================
//  管理员配置处理器 (Admin Settings Handlers)
// =============================================================================

func getReportSettingsHandler(configService port.QueryReportSettingsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings, err := configService.GetReportSettings(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取报表配置失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func updateReportSettingsHandler(configService port.QueryReportSettingsService) gin.HandlerFunc {
	type settingsPayload struct {
		InternalField string `json:"internal_field"`
		Timezone      string `json:"timezone" binding:"omitempty,iana_tz"`
	}

	return func(c *gin.Context) {
		var payload settingsPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		settings := domain.ReportSettings{
			InternalField: payload.InternalField,
			Timezone:      payload.Timezone,
		}
		if err := configService.UpdateReportSettings(c.Request.Context(), settings); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新报表配置失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "报表配置已更新"})
	}
}

// =============================================================================
//  系统与认证处理器
// =============================================================================

// statusHandler 返回系统状态，用于前端判断是否需要进入安装流程
func statusHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if service.UserCount(db) > 0 {
			c.JSON(http.StatusOK, gin.H{"status": "ready_for_login"})
		} else {
			c.JSON(http.StatusOK, gin.H{"status": "needs_setup"})
		}
	}
}

// loginHandler 处理用户登录请求
func loginHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			User string `form:"user" json:"user" binding:"required"`
			Pass string `form:"pass" json:"pass" binding:"required"`
		}
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "用户名或密码不能为空"})
			return
		}
		id, role, ok := service.CheckUser(db, req.User, req.Pass)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码无效"})
			return
		}
		token, err := service.GenToken(id, role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成令牌失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": gin.H{"id": id, "username": req.User, "role": role}})
	}
}

// setupHandler 处理首次安装时的管理员创建请求
func setupHandler(db *sql.DB, token string, deadline time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			if service.UserCount(db) > 0 {
				c.JSON(http.StatusForbidden, gin.H{"error": "系统已安装，无法获取安装令牌"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
			return
		}

		if c.Request.Method == http.MethodPost {
			if service.UserCount(db) > 0 {
				c.JSON(http.StatusForbidden, gin.H{"error": "系统已存在管理员账户，无法重复设置"})
				return
			}
			var req struct {
				Token string `form:"token" json:"token" binding:"required"`
				User  string `form:"user" json:"user" binding:"required"`
				Pass  string `form:"pass" json:"pass" binding:"required"`
			}
			if err := c.ShouldBind(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "令牌、用户名或密码不能为空"})
				return
			}
			if req.Token != token || token == "" || time.Now().After(deadline) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "无效或过期的安装令牌"})
				return
			}
			if err := service.CreateAdmin(db, req.User, req.Pass); err != nil {
				log.Printf("ERROR: [API /setup] 创建管理员 '%s' 失败: %v", req.User, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "创建管理员失败: " + err.Error()})
				return
			}
			id, _, _ := service.CheckUser(db, req.User, req.Pass)
			jwtToken, err := service.GenToken(id, "admin")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "为新管理员生成令牌失败"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": jwtToken, "user": gin.H{"id": id, "username": req.User, "role": "admin"}})
			return
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "仅支持 GET 和 POST 方法"})
	}
}
