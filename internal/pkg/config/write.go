package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

func DefaultConfigPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("获取可执行文件路径失败: %w", err)
	}
	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, "config", "config.yaml"), nil
}

// WriteFile 把配置写回 yaml；key 与 Load 读取的 key 一一对应
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"version":   cfg.App.Version,
			"log_level": cfg.App.LogLevel,
			"log_path":  cfg.App.LogPath,
		},
		"storage": map[string]any{
			"driver":  cfg.Storage.Driver,
			"db_path": cfg.Storage.DBPath,
			"dsn":     cfg.Storage.DSN,
		},
		"server": map[string]any{
			"listen_addr": cfg.Server.ListenAddr,
		},
		"sync": map[string]any{
			"save_debounce_ms": cfg.Sync.SaveDebounceMs,
			"realtime_buffer":  cfg.Sync.RealtimeBuffer,
		},
		"auth": map[string]any{
			"user_id":         cfg.Auth.UserID,
			"email":           cfg.Auth.Email,
			"display_name":    cfg.Auth.DisplayName,
			"default_team_id": cfg.Auth.DefaultTeamID,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	// dsn 可能带密码
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
