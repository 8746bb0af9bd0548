// Package sqlite — 基于 SQLite 的平台目录适配器
// internal/adapter/platform/sqlite/directory.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"PluginAtlas/internal/core/port"

	_ "modernc.org/sqlite"
)

// 断言 *Directory 实现 port.PlatformDirectory 接口，编译期校验
var _ port.PlatformDirectory = (*Directory)(nil)

const debounceDuration = 2 * time.Second

// Directory 通过平台目录数据库实现 PlatformDirectory。
// 数据库文件可能被外部同步任务整体替换，文件监视器会在变更后热重载连接。
type Directory struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string

	// debounceTimer 用于文件系统事件的防抖处理
	debounceTimer   *time.Timer
	debounceTimerMu sync.Mutex
}

// Open 打开平台目录数据库并返回 Directory 实例。
func Open(path string) (*Directory, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Directory{db: db, path: path}, nil
}

// NewDirectory 用一个已建立的数据库连接构造 Directory (测试时配合 sqlmock 使用)。
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开平台目录数据库 '%s' 失败: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接平台目录数据库 '%s' (Ping) 失败: %w", path, err)
	}
	return db, nil
}

// conn 返回当前数据库连接 (热重载期间可能被替换)。
func (d *Directory) conn() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Close 关闭底层数据库连接。
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// HealthCheck 实现 port.PlatformDirectory.HealthCheck。
func (d *Directory) HealthCheck(ctx context.Context) error {
	db := d.conn()
	if db == nil {
		return fmt.Errorf("平台目录数据库连接不可用")
	}
	return db.PingContext(ctx)
}

// Type 实现 port.PlatformDirectory.Type，返回适配器类型标识。
func (d *Directory) Type() string {
	return "sqlite_platform"
}
