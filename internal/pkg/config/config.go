package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// StorageConfig 存储配置；driver 为 sqlite 或 postgres
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DBPath string `mapstructure:"db_path"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig 本地 HTTP 服务
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SyncConfig 同步引擎
type SyncConfig struct {
	SaveDebounceMs int `mapstructure:"save_debounce_ms"`
	RealtimeBuffer int `mapstructure:"realtime_buffer"`
}

// SaveDebounce 防抖窗口
func (c SyncConfig) SaveDebounce() time.Duration {
	return time.Duration(c.SaveDebounceMs) * time.Millisecond
}

// AuthConfig 当前身份；没有外部认证服务时由配置提供
type AuthConfig struct {
	UserID        string `mapstructure:"user_id"`
	Email         string `mapstructure:"email"`
	DisplayName   string `mapstructure:"display_name"`
	DefaultTeamID string `mapstructure:"default_team_id"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	// .env 只补充尚未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("读取 .env 失败", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WEAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configPath != "" && errors.Is(err, os.ErrNotExist)) {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理环境变量占位符
	cfg.Storage.DSN = expandEnv(cfg.Storage.DSN)
	cfg.Auth.UserID = expandEnv(cfg.Auth.UserID)
	cfg.Auth.Email = expandEnv(cfg.Auth.Email)

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("不支持的存储驱动: %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DSN == "" {
		return nil, fmt.Errorf("postgres 驱动需要配置 storage.dsn")
	}

	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)
	if cfg.App.LogPath != "" {
		cfg.App.LogPath = resolvePath(cfg.App.LogPath)
	}

	return &cfg, nil
}

// Default 不读文件、不读环境变量时的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "schema-weaver")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Storage
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.db_path", "./data/weaver.db")
	v.SetDefault("storage.dsn", "")

	// Server
	v.SetDefault("server.listen_addr", "127.0.0.1:7788")

	// Sync
	v.SetDefault("sync.save_debounce_ms", 500)
	v.SetDefault("sync.realtime_buffer", 32)

	// Auth
	v.SetDefault("auth.user_id", "")
	v.SetDefault("auth.email", "")
	v.SetDefault("auth.display_name", "")
	v.SetDefault("auth.default_team_id", "")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径为绝对路径（相对可执行文件目录）
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	exe, err := os.Executable()
	if err != nil {
		return path
	}

	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, path)
}

// LoggerOptions 日志配置
type LoggerOptions struct {
	Level     string
	Path      string // 为空只输出到 stdout
	Component string
}

// ParseLevel 未知级别按 info 处理
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logLevel 进程级共享，热更新只需改它
var logLevel = new(slog.LevelVar)

// SetLogLevel 运行时调整日志级别
func SetLogLevel(level string) {
	logLevel.Set(ParseLevel(level))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogger 根据配置设置默认 logger；返回的 Closer 负责关闭日志文件
func SetupLogger(opts LoggerOptions) (io.Closer, error) {
	logLevel.Set(ParseLevel(opts.Level))

	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	slog.SetDefault(logger)
	return closer, nil
}
