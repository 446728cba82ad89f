package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver=%q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Sync.SaveDebounce() != 500*time.Millisecond {
		t.Fatalf("debounce=%v, want 500ms", cfg.Sync.SaveDebounce())
	}
	if cfg.Sync.RealtimeBuffer != 32 {
		t.Fatalf("realtime_buffer=%d, want 32", cfg.Sync.RealtimeBuffer)
	}
	if cfg.Server.ListenAddr == "" {
		t.Fatalf("listen_addr should have a default")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "weaver.db")
	p := writeYAML(t, dir, `
app:
  log_level: debug
storage:
  db_path: `+dbPath+`
sync:
  save_debounce_ms: 250
auth:
  user_id: ${WEAVER_TEST_USER}
  email: dev@example.com
  default_team_id: team-1
`)
	t.Setenv("WEAVER_TEST_USER", "u-42")
	t.Setenv("WEAVER_SERVER_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != "debug" {
		t.Fatalf("log_level=%q", cfg.App.LogLevel)
	}
	if cfg.Storage.DBPath != dbPath {
		t.Fatalf("db_path=%q, want %q", cfg.Storage.DBPath, dbPath)
	}
	if cfg.Sync.SaveDebounce() != 250*time.Millisecond {
		t.Fatalf("debounce=%v", cfg.Sync.SaveDebounce())
	}
	if cfg.Sync.RealtimeBuffer != 32 {
		t.Fatalf("unset key should keep default, got %d", cfg.Sync.RealtimeBuffer)
	}
	if cfg.Auth.UserID != "u-42" {
		t.Fatalf("user_id=%q, want expanded env", cfg.Auth.UserID)
	}
	if cfg.Auth.DefaultTeamID != "team-1" {
		t.Fatalf("default_team_id=%q", cfg.Auth.DefaultTeamID)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("listen_addr=%q, want env override", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver=%q", cfg.Storage.Driver)
	}
}

func TestLoad_RejectsBadStorage(t *testing.T) {
	dir := t.TempDir()

	p := writeYAML(t, dir, "storage:\n  driver: postgres\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("postgres without dsn should fail")
	}

	p = writeYAML(t, dir, "storage:\n  driver: mongo\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("unknown driver should fail")
	}

	p = writeYAML(t, dir, "storage:\n  driver: Postgres\n  dsn: host=localhost dbname=weaver\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("driver should be normalized, got %q", cfg.Storage.Driver)
	}
}

func TestWriteFile_LoadBack(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.DBPath = filepath.Join(dir, "x.db")
	cfg.Auth.UserID = "u-1"
	cfg.Sync.SaveDebounceMs = 900

	p := filepath.Join(dir, "nested", "config.yaml")
	if err := WriteFile(p, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Auth.UserID != "u-1" || got.Sync.SaveDebounceMs != 900 || got.Storage.DBPath != cfg.Storage.DBPath {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := WriteFile("", cfg); err == nil {
		t.Fatalf("empty path should fail")
	}
	if err := WriteFile(p, nil); err == nil {
		t.Fatalf("nil cfg should fail")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_WritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	p := filepath.Join(t.TempDir(), "logs", "weaver.log")
	closer, err := SetupLogger(LoggerOptions{Level: "warn", Path: p, Component: "test"})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	slog.Info("不应写入")
	slog.Warn("应写入", "k", "v")
	SetLogLevel("info")
	slog.Info("级别热更新后写入")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "不应写入") {
		t.Fatalf("info line should be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, "应写入") || !strings.Contains(out, "component=test") {
		t.Fatalf("warn line missing:\n%s", out)
	}
	if !strings.Contains(out, "级别热更新后写入") {
		t.Fatalf("SetLogLevel should take effect:\n%s", out)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	prev := WatchDebounce
	WatchDebounce = 20 * time.Millisecond
	t.Cleanup(func() { WatchDebounce = prev })

	dir := t.TempDir()
	p := writeYAML(t, dir, "app:\n  log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	if err := Watch(ctx, p, func(c *Config) { got <- c.App.LogLevel }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// 无关文件不触发
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write other: %v", err)
	}
	writeYAML(t, dir, "app:\n  log_level: debug\n")

	select {
	case lvl := <-got:
		if lvl != "debug" {
			t.Fatalf("reloaded log_level=%q, want debug", lvl)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("watch callback not fired")
	}
}
