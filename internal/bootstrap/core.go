package bootstrap

import (
	"io"
	"os"
	"path/filepath"

	"github.com/vs316/schema-weaver-sub001/internal/eventbus"
	"github.com/vs316/schema-weaver-sub001/internal/pkg/config"
	"github.com/vs316/schema-weaver-sub001/internal/repository"
	"github.com/vs316/schema-weaver-sub001/internal/service"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	Hub       *eventbus.Hub
	LogCloser io.Closer

	Repos struct {
		Diagram *repository.DiagramRepository
		Profile *repository.ProfileRepository
	}

	Services struct {
		Sessions service.StaticSessionProvider
		Sync     *service.SyncService
		Editor   *service.Editor
	}
}

// NewCore 加载配置并构建核心依赖（不调用 Sync.Init）
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser, _ := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})

	db, err := repository.NewDatabase(repository.Options{
		Driver: cfg.Storage.Driver,
		DBPath: cfg.Storage.DBPath,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	c := NewCoreWithDB(cfg, db)
	c.LogCloser = logCloser
	return c, nil
}

// NewCoreWithDB 用现成的数据库装配依赖；测试直接传入内存库
func NewCoreWithDB(cfg *config.Config, db *repository.Database) *Core {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Core{Cfg: cfg, DB: db, Hub: eventbus.NewHub()}

	// Repos：写操作通过 Hub 广播给实时订阅者
	c.Repos.Diagram = repository.NewDiagramRepository(db.DB, c.Hub)
	c.Repos.Profile = repository.NewProfileRepository(db.DB)

	// Services
	c.Services.Sessions = service.NewStaticSessionProvider(cfg.Auth.UserID, cfg.Auth.Email)
	c.Services.Sync = service.NewSyncService(
		c.Services.Sessions,
		c.Repos.Profile,
		c.Repos.Diagram,
		c.Hub,
		&service.SyncConfig{
			SaveDebounce:   cfg.Sync.SaveDebounce(),
			RealtimeBuffer: cfg.Sync.RealtimeBuffer,
			DefaultTeamID:  cfg.Auth.DefaultTeamID,
			DisplayName:    cfg.Auth.DisplayName,
		},
	)
	// Editor 占用 Sync 的远端更新回调
	c.Services.Editor = service.NewEditor(c.Services.Sync)
	return c
}

// Close 关闭核心依赖资源；先退订实时频道再关库
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.Services.Sync != nil {
		c.Services.Sync.Close()
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
