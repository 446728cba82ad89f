package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vs316/schema-weaver-sub001/internal/eventbus"
	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
)

func newEditorFixture(t *testing.T, role model.Role) (*Editor, *SyncService, *fakeDiagramRepo) {
	t.Helper()
	repo := &fakeDiagramRepo{list: []schema.Diagram{{
		ID:        "d1",
		TeamID:    "team-1",
		Tables:    schema.TableList{{ID: "a"}, {ID: "b"}},
		Relations: schema.RelationList{{ID: "r1", SourceTableID: "a", TargetTableID: "b"}},
		Version:   1,
	}}}
	profiles := &fakeProfileRepo{profiles: map[string]*schema.Profile{
		"u1": {UserID: "u1", TeamID: "team-1", Role: role},
	}}
	svc := NewSyncService(NewStaticSessionProvider("u1", ""), profiles, repo, eventbus.NewHub(),
		&SyncConfig{SaveDebounce: time.Hour})
	t.Cleanup(svc.Close)
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewEditor(svc), svc, repo
}

func lastUpdate(t *testing.T, repo *fakeDiagramRepo) schema.DiagramUpdate {
	t.Helper()
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.updates) == 0 {
		t.Fatalf("no update written")
	}
	return repo.updates[len(repo.updates)-1]
}

func TestEditorOpenResetsHistory(t *testing.T) {
	ed, svc, _ := newEditorFixture(t, model.RoleEditor)

	if _, err := ed.Open("missing"); err == nil {
		t.Fatalf("opening a missing diagram should fail")
	}
	d, err := ed.Open("d1")
	if err != nil || d.ID != "d1" {
		t.Fatalf("Open = %v, %v", d, err)
	}
	h := ed.History()
	if h.Len() != 1 || h.Index() != 0 || len(h.Tables()) != 2 || len(h.Relations()) != 1 {
		t.Fatalf("history not seeded: len=%d tables=%d", h.Len(), len(h.Tables()))
	}
	if cur := svc.Current(); cur == nil || cur.ID != "d1" {
		t.Fatalf("current=%+v", cur)
	}
}

func TestEditorEditUndoRedoSchedulesSave(t *testing.T) {
	ed, svc, repo := newEditorFixture(t, model.RoleEditor)
	ctx := context.Background()
	if _, err := ed.Open("d1"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := ed.Edit(func(s *model.Snapshot) {
		s.Tables = append(s.Tables, model.Table{ID: "c"})
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !svc.HasPendingSave("d1") || ed.History().Len() != 2 {
		t.Fatalf("edit should push history and schedule a save")
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := lastUpdate(t, repo); got.Tables == nil || len(*got.Tables) != 3 || got.Relations == nil || got.Viewport == nil {
		t.Fatalf("edit update=%+v", got)
	}

	if !ed.Undo() {
		t.Fatalf("undo failed")
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := lastUpdate(t, repo); got.Tables == nil || len(*got.Tables) != 2 {
		t.Fatalf("undo should save the restored tables: %+v", got)
	}

	if !ed.Redo() {
		t.Fatalf("redo failed")
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := lastUpdate(t, repo); got.Tables == nil || len(*got.Tables) != 3 {
		t.Fatalf("redo should save the restored tables: %+v", got)
	}
}

func TestEditorRequiresOpenWritableDiagram(t *testing.T) {
	ed, _, _ := newEditorFixture(t, model.RoleEditor)
	if err := ed.Edit(func(*model.Snapshot) {}); !errors.Is(err, ErrNoDiagramOpen) {
		t.Fatalf("edit without open err=%v", err)
	}

	viewer, svc, _ := newEditorFixture(t, model.RoleViewer)
	if _, err := viewer.Open("d1"); err != nil {
		t.Fatalf("viewer may open: %v", err)
	}
	if err := viewer.Edit(func(*model.Snapshot) {}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("viewer edit err=%v", err)
	}
	if viewer.Undo() || svc.HasPendingSave("d1") {
		t.Fatalf("viewer must not schedule saves")
	}
}

func TestEditorRemoteUpdateResetsHistory(t *testing.T) {
	svc, diagrams, _ := newRealtimeFixture(t)
	ed := NewEditor(svc)
	ctx := context.Background()
	// 关库前写完防抖中的本地修改
	t.Cleanup(func() { _ = svc.Flush(ctx) })

	d, err := svc.CreateDiagram(ctx, "shared", schema.DiagramERD)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ed.Open(d.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ed.Edit(func(s *model.Snapshot) { s.Tables = []model.Table{{ID: "mine"}} }); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if ed.History().Len() != 2 {
		t.Fatalf("len=%d", ed.History().Len())
	}

	other := "u2"
	remote := []model.Table{{ID: "theirs"}, {ID: "theirs-2"}}
	if _, err := diagrams.Update(ctx, d.ID, schema.DiagramUpdate{Tables: &remote, UpdatedBy: &other}); err != nil {
		t.Fatalf("remote update: %v", err)
	}

	waitFor(t, "history reset", func() bool {
		h := ed.History()
		return h.Len() == 1 && len(h.Tables()) == 2 && h.Tables()[0].ID == "theirs"
	})
}

func TestEditorOwnSaveEchoKeepsHistory(t *testing.T) {
	svc, _, _ := newRealtimeFixture(t)
	ed := NewEditor(svc)
	ctx := context.Background()

	d, err := svc.CreateDiagram(ctx, "mine", schema.DiagramERD)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ed.Open(d.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ed.Edit(func(s *model.Snapshot) { s.Tables = []model.Table{{ID: "t1"}} }); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// 自己的保存经实时频道回到当前图
	waitFor(t, "echo applied", func() bool {
		cur := svc.Current()
		return cur != nil && cur.Version == 2
	})
	time.Sleep(20 * time.Millisecond)
	if h := ed.History(); h.Len() != 2 || !h.CanUndo() {
		t.Fatalf("own save reset history: len=%d", h.Len())
	}
}
