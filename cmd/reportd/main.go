// file: cmd/reportd/main.go

package main

import (
	"PluginAtlas/internal/adapter/platform/sqlite"
	"PluginAtlas/internal/atlasmiddleware"
	"PluginAtlas/internal/atlasobserve"
	"PluginAtlas/internal/service"
	"PluginAtlas/internal/transport/http/router"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	_ "modernc.org/sqlite"
)

const version = "v1.0.0"

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type PlatformConfig struct {
	Database string `mapstructure:"database"` // 平台目录数据库路径
	Watch    bool   `mapstructure:"watch"`    // 是否监视目录数据库文件变更
}

type ExportConfig struct {
	TokenTTLMinutes int `mapstructure:"token_ttl_minutes"`
}

type ObservabilityConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	PprofAddr string `mapstructure:"pprof_addr"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Platform      PlatformConfig      `mapstructure:"platform"`
	Export        ExportConfig        `mapstructure:"export"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("PluginAtlas 多站点插件报表服务 %s 正在启动...", version)

	exePath, err := os.Executable()
	if err != nil {
		log.Fatalf("CRITICAL: 无法获取可执行文件路径: %v", err)
	}
	rootDir := filepath.Dir(filepath.Dir(exePath))

	configFilePath := filepath.Join(rootDir, "configs", "config.yaml")
	if envPath := os.Getenv("ATLAS_CONFIG"); envPath != "" {
		configFilePath = envPath
	}
	viper.SetConfigFile(configFilePath)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("CRITICAL: 读取配置文件 '%s' 失败: %v", configFilePath, err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("CRITICAL: 解析配置到结构体失败: %v", err)
	}

	if config.Observability.Enabled {
		atlasobserve.InitLogger(config.Server.LogLevel) // 使用 slog
	} else {
		log.Println("ℹ️  高级可观测性功能未启用，使用标准日志。")
	}

	slog.Info("PluginAtlas starting up", "version", version)
	slog.Info("配置加载并解析成功", "path", configFilePath)

	instanceDir := filepath.Join(rootDir, "instance")
	if _, err := os.Stat(instanceDir); os.IsNotExist(err) {
		_ = os.MkdirAll(instanceDir, 0755)
	}
	sysDB, err := initSystemDB(filepath.Join(instanceDir, "system.db"))
	if err != nil {
		log.Fatalf("CRITICAL: 初始化系统数据库失败: %v", err)
	}
	defer func() {
		slog.Info("正在关闭系统数据库连接...")
		if err := sysDB.Close(); err != nil {
			slog.Error("关闭系统数据库时发生错误", "error", err)
		}
	}()

	// 确保表结构存在
	if err := service.InitSystemTables(sysDB); err != nil {
		log.Fatalf("CRITICAL: 初始化系统表失败: %v", err)
	}

	// 平台目录适配器
	platformDBPath := config.Platform.Database
	if platformDBPath == "" {
		platformDBPath = filepath.Join(instanceDir, "platform.db")
	}
	directory, err := sqlite.Open(platformDBPath)
	if err != nil {
		log.Fatalf("CRITICAL: 打开平台目录数据库失败: %v", err)
	}
	defer func() { _ = directory.Close() }()
	slog.Info("适配层: 平台目录适配器初始化完成", "type", directory.Type(), "path", platformDBPath)

	if config.Platform.Watch {
		if err := directory.StartWatcher(); err != nil {
			slog.Error("启动平台目录文件监视器失败", "error", err)
		}
	}

	settingsService, err := service.NewReportSettingsServiceImpl(sysDB, 5*time.Minute)
	if err != nil {
		slog.Error("初始化 ReportSettingsService 失败", "error", err)
		os.Exit(1)
	}
	slog.Info("服务层: ReportSettingsService 初始化完成")

	reportService := service.NewReportService(directory, settingsService)
	slog.Info("服务层: ReportService 初始化完成")

	tokenStore := service.NewDownloadTokenStore(time.Duration(config.Export.TokenTTLMinutes) * time.Minute)
	loginLimiter := atlasmiddleware.NewIPRateLimiter(rate.Limit(15.0/60.0), 5)
	slog.Info("服务层: DownloadTokenStore 与登录限流器初始化完成")

	var setupToken string
	var setupTokenDeadline time.Time
	if service.UserCount(sysDB) == 0 {
		setupToken = genToken()
		setupTokenDeadline = time.Now().Add(30 * time.Minute)
		slog.Warn("系统中无管理员，安装令牌已生成 (30分钟内有效)", "setup_token", setupToken)
	}

	httpRouter := router.New(
		router.Dependencies{
			ReportService:      reportService,
			SettingsService:    settingsService,
			TokenStore:         tokenStore,
			AuthDB:             sysDB,
			LoginLimiter:       loginLimiter,
			SetupToken:         setupToken,
			SetupTokenDeadline: setupTokenDeadline,
		},
	)
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpRouter,
	}

	go func() {
		slog.Info("PluginAtlas 启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP服务启动失败", "error", err)
			os.Exit(1)
		}
	}()

	// 按需启用 pprof 并注册 prometheus metrics
	if config.Observability.Enabled {
		atlasobserve.EnablePprof(config.Observability.PprofAddr)
	}
	atlasobserve.Register()
	slog.Info("监控: metrics 已注册。")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("收到停机信号，准备优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP服务优雅关闭失败", "error", err)
		os.Exit(1)
	}

	slog.Info("HTTP服务已成功关闭。")
	slog.Info("程序即将退出。")
}

// initSystemDB 封装了系统数据库的初始化逻辑
func initSystemDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开/创建系统数据库 '%s' 失败: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接系统数据库 '%s' (Ping) 失败: %w", path, err)
	}
	return db, nil
}

// genToken 生成一次性的安装令牌
func genToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback_token_generation_failed"
	}
	return hex.EncodeToString(b)
}
