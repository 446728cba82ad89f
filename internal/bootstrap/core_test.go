package bootstrap

import (
	"context"
	"testing"

	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/pkg/config"
	"github.com/vs316/schema-weaver-sub001/internal/repository"
	"github.com/vs316/schema-weaver-sub001/internal/service"
	"github.com/vs316/schema-weaver-sub001/internal/testutil"
)

func TestNewCoreWithDB_SyncReady(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.UserID = "u-1"
	cfg.Auth.Email = "u1@example.com"
	cfg.Auth.DefaultTeamID = "team-1"

	c := NewCoreWithDB(cfg, &repository.Database{DB: testutil.OpenTestDB(t), Driver: repository.DriverSQLite})
	defer c.Services.Sync.Close()

	ctx := context.Background()
	if err := c.Services.Sync.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if c.Services.Sync.Status() != service.SyncReady {
		t.Fatalf("status=%s, want ready", c.Services.Sync.Status())
	}
	if c.Hub.Subscribers() != 1 {
		t.Fatalf("sync should subscribe to the team topic, subscribers=%d", c.Hub.Subscribers())
	}

	d, err := c.Services.Sync.CreateDiagram(ctx, "orders", "")
	if err != nil {
		t.Fatalf("CreateDiagram: %v", err)
	}
	stored, err := c.Repos.Diagram.GetByID(ctx, d.ID)
	if err != nil || stored == nil {
		t.Fatalf("diagram should be persisted: %v", err)
	}
	if stored.TeamID != "team-1" || stored.CreatedBy != "u-1" {
		t.Fatalf("unexpected owner fields: %+v", stored)
	}

	p, err := c.Repos.Profile.GetByUserID(ctx, "u-1")
	if err != nil || p == nil {
		t.Fatalf("profile should be created lazily: %v", err)
	}

	// 编辑器经 Sync 保存，落库后仍保留本地历史
	ed := c.Services.Editor
	if _, err := ed.Open(d.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ed.Edit(func(s *model.Snapshot) { s.Tables = []model.Table{{ID: "t1", Name: "orders"}} }); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := c.Services.Sync.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stored, err = c.Repos.Diagram.GetByID(ctx, d.ID)
	if err != nil || stored == nil || len(stored.Tables) != 1 || stored.UpdatedBy != "u-1" {
		t.Fatalf("editor save not persisted: %+v %v", stored, err)
	}
	if !ed.History().CanUndo() {
		t.Fatalf("history lost after own save")
	}
}

func TestNewCoreWithDB_NoIdentity(t *testing.T) {
	c := NewCoreWithDB(nil, &repository.Database{DB: testutil.OpenTestDB(t)})
	defer c.Services.Sync.Close()

	if err := c.Services.Sync.Init(context.Background()); err == nil {
		t.Fatalf("Init without auth.user_id should fail")
	}
	if c.Services.Sync.Status() != service.SyncError {
		t.Fatalf("status=%s, want error", c.Services.Sync.Status())
	}
}
