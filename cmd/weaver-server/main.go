package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vs316/schema-weaver-sub001/internal/bootstrap"
	"github.com/vs316/schema-weaver-sub001/internal/httpapi"
	"github.com/vs316/schema-weaver-sub001/internal/pkg/buildinfo"
	"github.com/vs316/schema-weaver-sub001/internal/pkg/config"
)

func main() {
	cfgFlag := flag.String("config", "", "配置文件路径（默认为可执行文件目录下 config/config.yaml）")
	listenFlag := flag.String("listen", "", "监听地址，覆盖 server.listen_addr")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := *cfgFlag
	if cfgPath == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			cfgPath = p
			// 首次启动写出默认配置，便于用户修改
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				_ = config.WriteFile(cfgPath, config.Default())
			}
		}
	}

	core, err := bootstrap.NewCore(cfgPath)
	if err != nil {
		slog.Error("启动服务失败", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	slog.Info("schema-weaver 启动中...", "name", core.Cfg.App.Name, "version", buildinfo.Version, "driver", core.DB.Driver)
	if core.DB.SafeMode {
		slog.Warn("数据库处于安全模式，写接口不可用", "reason", core.DB.MigrationError)
	}

	// 配置热更新：目前只有日志级别可以在运行时生效
	if cfgPath != "" {
		if err := config.Watch(ctx, cfgPath, func(next *config.Config) {
			config.SetLogLevel(next.App.LogLevel)
			slog.Info("日志级别已更新", "level", next.App.LogLevel)
		}); err != nil {
			slog.Warn("配置监控未启用", "error", err)
		}
	}

	listen := core.Cfg.Server.ListenAddr
	if *listenFlag != "" {
		listen = *listenFlag
	}
	srv, err := httpapi.Start(ctx, core, httpapi.Options{ListenAddr: listen})
	if err != nil {
		slog.Error("启动 HTTP 服务失败", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("收到系统退出信号，正在关闭...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	shutdownCancel()
	slog.Info("schema-weaver 已退出")
}
