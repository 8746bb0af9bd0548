// Package sqlite file: internal/adapter/platform/sqlite/watcher.go
package sqlite

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher 启动文件系统监视器。平台侧的同步任务会整体替换目录数据库文件，
// 监视到变更后防抖热重载连接，使下一次报表请求读到新数据。
func (d *Directory) StartWatcher() error {
	if d.path == "" {
		return fmt.Errorf("未知的平台目录数据库路径，无法启动监视器")
	}
	dir := filepath.Dir(filepath.Clean(d.path))
	log.Printf("[PlatformDir] 尝试启动文件监视器于目录: %s", dir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}

	go func() {
		defer watcher.Close()
		log.Printf("信息: [PlatformDir] 文件监视 goroutine 已启动。")
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					log.Printf("警告: [PlatformDir] 文件监视器事件通道已关闭。")
					return
				}
				d.handleFsEvent(event)
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					log.Printf("警告: [PlatformDir] 文件监视器错误通道已关闭。")
					return
				}
				log.Printf("错误: [PlatformDir] 文件监视器报告错误: %v", errWatch)
			}
		}
	}()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("添加目录 '%s' 到监视器失败: %w", dir, err)
	}
	log.Printf("信息: [PlatformDir] 已成功添加目录 '%s' 到监视器。", dir)
	return nil
}

// handleFsEvent 处理单个文件系统事件，只关心目录数据库文件本身。
func (d *Directory) handleFsEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(d.path) {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return
	}

	// 防抖：同步任务替换文件时会触发连续多个事件
	d.debounceTimerMu.Lock()
	defer d.debounceTimerMu.Unlock()
	if d.debounceTimer != nil {
		d.debounceTimer.Stop()
	}
	d.debounceTimer = time.AfterFunc(debounceDuration, d.reload)
}

// reload 在防抖后关闭旧连接并重新打开目录数据库。
func (d *Directory) reload() {
	log.Printf("信息: [PlatformDir] 检测到目录数据库变更，开始热重载: '%s'", d.path)

	if _, err := os.Stat(d.path); os.IsNotExist(err) {
		log.Printf("警告: [PlatformDir] 目录数据库文件 '%s' 已不存在，保留现有连接等待文件恢复。", d.path)
		return
	}

	newDB, err := openDB(d.path)
	if err != nil {
		log.Printf("错误: [PlatformDir] 热重载目录数据库 '%s' 失败: %v", d.path, err)
		return
	}

	d.mu.Lock()
	oldDB := d.db
	d.db = newDB
	d.mu.Unlock()

	if oldDB != nil {
		if err := oldDB.Close(); err != nil {
			log.Printf("警告: [PlatformDir] 关闭旧数据库连接失败: %v", err)
		}
	}
	log.Printf("信息: [PlatformDir] 目录数据库 '%s' 热重载成功。", d.path)
}
