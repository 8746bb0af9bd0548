// file: internal/service/db_init.go
package service

import (
	"database/sql"
	"fmt"
	"log"
)

// InitSystemTables 负责在系统启动时，检查并创建所有系统管理表。
func InitSystemTables(db *sql.DB) error {
	if err := initUserTable(db); err != nil {
		return fmt.Errorf("初始化用户表失败: %w", err)
	}
	if err := initReportSettingsTable(db); err != nil {
		return fmt.Errorf("初始化报表配置表失败: %w", err)
	}
	log.Println("✅ 数据库: 所有系统表结构初始化/检查完成。")
	return nil
}

// initUserTable 创建用户表
func initUserTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS _user(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        role TEXT NOT NULL
    );`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("创建 '_user' 表失败: %w", err)
	}
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_username ON _user (username);`)
	return err
}

// initReportSettingsTable 创建报表配置键值表，并写入默认的导出时区。
func initReportSettingsTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS report_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("创建 'report_settings' 表失败: %w", err)
	}
	insertDefaults := `
	INSERT OR IGNORE INTO report_settings (key, value, description) VALUES
		('export_timezone', 'UTC', '导出文件名时间戳使用的IANA时区');`
	if _, err := db.Exec(insertDefaults); err != nil {
		return fmt.Errorf("插入默认报表配置失败: %w", err)
	}
	return nil
}
