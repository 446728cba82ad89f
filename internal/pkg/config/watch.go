package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce 连续写入合并为一次重新加载
var WatchDebounce = 300 * time.Millisecond

// Watch 监听配置文件变化并回调新配置，直到 ctx 结束。
// 监听的是所在目录：编辑器常用“写临时文件再 rename”的方式保存。
// 解析失败的版本只记日志，不回调。
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("解析配置路径失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监控器失败: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("监控配置目录失败: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(abs)
		if err != nil {
			slog.Warn("配置重新加载失败", "path", abs, "error", err)
			return
		}
		slog.Info("配置已重新加载", "path", abs)
		fn(cfg)
	}

	go func() {
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			_ = watcher.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(WatchDebounce, reload)
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("配置监控错误", "error", err)
			}
		}
	}()
	return nil
}
