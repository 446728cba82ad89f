package service

import (
	"reflect"
	"testing"

	"github.com/vs316/schema-weaver-sub001/internal/model"
)

func tablesN(n int) []model.Table {
	out := make([]model.Table, n)
	for i := range out {
		out[i] = model.Table{ID: string(rune('a' + i)), Name: "t", X: float64(i * 10)}
	}
	return out
}

func TestHistoryInitialState(t *testing.T) {
	h := NewHistoryEngine()
	if h.Index() != -1 || h.Len() != 0 {
		t.Fatalf("index=%d len=%d, want -1/0", h.Index(), h.Len())
	}
	if h.CanUndo() || h.CanRedo() {
		t.Fatalf("fresh engine cannot undo/redo")
	}
	if h.Undo() || h.Redo() {
		t.Fatalf("undo/redo on empty history must fail")
	}
	if len(h.Tables()) != 0 || len(h.Relations()) != 0 {
		t.Fatalf("live collections should start empty")
	}
}

func TestHistoryCanUndoCanRedo(t *testing.T) {
	h := NewHistoryEngine()
	const n = 5
	for i := 1; i <= n; i++ {
		h.SetTables(tablesN(i))
		h.PushHistory(nil)
		if got, want := h.CanUndo(), i > 1; got != want {
			t.Fatalf("after %d pushes canUndo=%v, want %v", i, got, want)
		}
		if h.CanRedo() {
			t.Fatalf("canRedo should be false at newest entry")
		}
	}

	for i := n - 1; i >= 1; i-- {
		if !h.Undo() {
			t.Fatalf("undo to %d failed", i-1)
		}
		if !h.CanRedo() {
			t.Fatalf("canRedo should be true after undo")
		}
	}
	if h.Index() != 0 || h.CanUndo() {
		t.Fatalf("index=%d canUndo=%v, want 0/false", h.Index(), h.CanUndo())
	}
	if h.Undo() {
		t.Fatalf("undo past oldest must fail")
	}
	if len(h.Tables()) != 1 {
		t.Fatalf("live tables=%d, want 1", len(h.Tables()))
	}
}

func TestHistoryUndoRedoRoundTrip(t *testing.T) {
	h := NewHistoryEngine()
	h.SetTables(tablesN(1))
	h.PushHistory(nil)

	h.SetTables(tablesN(2))
	h.SetRelations([]model.Relation{{ID: "r1", SourceTableID: "a", TargetTableID: "b", BendOffset: model.Point{X: 3}}})
	h.SetViewport(model.Viewport{X: 12, Y: -4, Zoom: 1.25})
	h.PushHistory(nil)

	before := h.Live()
	if !h.Undo() {
		t.Fatalf("undo failed")
	}
	if reflect.DeepEqual(before, h.Live()) {
		t.Fatalf("undo did not change state")
	}
	if h.Viewport() != model.DefaultViewport() {
		t.Fatalf("viewport not restored by undo: %+v", h.Viewport())
	}
	if !h.Redo() {
		t.Fatalf("redo failed")
	}
	if after := h.Live(); !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip mismatch:\nbefore=%+v\nafter =%+v", before, after)
	}
	if h.Redo() {
		t.Fatalf("redo past newest must fail")
	}
}

func TestHistoryBranchTruncation(t *testing.T) {
	h := NewHistoryEngine()
	for i := 1; i <= 4; i++ {
		h.SetTables(tablesN(i))
		h.PushHistory(nil)
	}
	h.Undo()
	h.Undo()
	if !h.CanRedo() {
		t.Fatalf("expected redo available")
	}

	h.PushHistory(&model.Snapshot{Tables: tablesN(3)[2:], Viewport: model.DefaultViewport()})
	if h.CanRedo() {
		t.Fatalf("push after undo must discard redo entries")
	}
	if h.Len() != 3 || h.Index() != 2 {
		t.Fatalf("len=%d index=%d, want 3/2", h.Len(), h.Index())
	}
}

func TestHistorySnapshotsAreIsolated(t *testing.T) {
	h := NewHistoryEngine()
	tables := tablesN(1)
	h.SetTables(tables)
	h.PushHistory(nil)

	// 修改调用方持有的切片与 live 状态都不能污染历史
	tables[0].Name = "mutated"
	h.SetTables([]model.Table{{ID: "a", Name: "live-edit"}})
	h.PushHistory(nil)
	h.Undo()

	if got := h.Tables()[0].Name; got != "t" {
		t.Fatalf("history entry corrupted: name=%q", got)
	}
}

func TestHistoryUndoPrunesDanglingRelations(t *testing.T) {
	h := NewHistoryEngine()
	h.PushHistory(&model.Snapshot{
		Tables: []model.Table{{ID: "a"}},
		Relations: []model.Relation{
			{ID: "dangling", SourceTableID: "a", TargetTableID: "ghost"},
			{ID: "self", SourceTableID: "a", TargetTableID: "a"},
		},
	})
	h.PushHistory(&model.Snapshot{Tables: []model.Table{{ID: "a"}, {ID: "b"}}})

	if !h.Undo() {
		t.Fatalf("undo must succeed even with dangling relations")
	}
	rels := h.Relations()
	if len(rels) != 1 || rels[0].ID != "self" {
		t.Fatalf("relations=%+v, want only self", rels)
	}
}

func TestHistoryRestoreNeverPushes(t *testing.T) {
	h := NewHistoryEngine()
	var restored []model.Snapshot
	h.SetOnRestore(func(s model.Snapshot) {
		restored = append(restored, s)
		// 恢复回调里的写入不能被记录为新历史
		h.PushHistory(nil)
		if h.Undo() {
			t.Errorf("nested undo during restore must be rejected")
		}
	})

	h.SetTables(tablesN(1))
	h.PushHistory(nil)
	h.SetTables(tablesN(2))
	h.PushHistory(nil)

	if !h.Undo() {
		t.Fatalf("undo failed")
	}
	if h.Len() != 2 {
		t.Fatalf("len=%d, restore produced a history entry", h.Len())
	}
	if len(restored) != 1 || len(restored[0].Tables) != 1 {
		t.Fatalf("hook not called with restored snapshot: %+v", restored)
	}

	// 回调结束后回到 idle，正常记录恢复
	h.PushHistory(nil)
	if h.Len() != 2 || h.CanRedo() {
		t.Fatalf("len=%d canRedo=%v after push", h.Len(), h.CanRedo())
	}
}

func TestHistoryRestorePanicRollsBack(t *testing.T) {
	h := NewHistoryEngine()
	h.SetOnRestore(func(model.Snapshot) { panic("boom") })
	h.SetTables(tablesN(1))
	h.PushHistory(nil)
	h.SetTables(tablesN(3))
	h.PushHistory(nil)

	if h.Undo() {
		t.Fatalf("panicking restore must report false")
	}
	if h.Index() != 1 || len(h.Tables()) != 3 || !h.CanUndo() {
		t.Fatalf("state not rolled back: index=%d tables=%d", h.Index(), len(h.Tables()))
	}
	// 模式必须复位，之后的撤销与记录正常生效
	h.SetOnRestore(nil)
	if !h.Undo() || len(h.Tables()) != 1 {
		t.Fatalf("undo after recovery failed: tables=%d", len(h.Tables()))
	}
	h.PushHistory(nil)
	if h.Len() != 2 || h.Index() != 1 {
		t.Fatalf("len=%d index=%d after recovery", h.Len(), h.Index())
	}
}

func TestHistoryResetIgnoredWhileRestoring(t *testing.T) {
	h := NewHistoryEngine()
	h.SetTables(tablesN(1))
	h.PushHistory(nil)
	h.SetTables(tablesN(2))
	h.PushHistory(nil)

	var accepted bool
	h.SetOnRestore(func(model.Snapshot) {
		accepted = h.Reset(model.Snapshot{Tables: tablesN(5)})
	})
	if !h.Undo() {
		t.Fatalf("undo failed")
	}
	if accepted {
		t.Fatalf("reset during restore must be rejected")
	}
	if h.Len() != 2 || h.Index() != 0 || len(h.Tables()) != 1 {
		t.Fatalf("reset leaked into restore: len=%d index=%d tables=%d", h.Len(), h.Index(), len(h.Tables()))
	}

	h.SetOnRestore(nil)
	if !h.Reset(model.Snapshot{Tables: tablesN(5)}) || len(h.Tables()) != 5 {
		t.Fatalf("reset after restore should apply")
	}
}

func TestHistoryReset(t *testing.T) {
	h := NewHistoryEngine()
	h.PushHistory(nil)
	h.PushHistory(nil)

	if !h.Reset(model.Snapshot{Tables: tablesN(2), Viewport: model.Viewport{Zoom: 2}}) {
		t.Fatalf("reset rejected while idle")
	}
	if h.Len() != 1 || h.Index() != 0 || h.CanUndo() || h.CanRedo() {
		t.Fatalf("len=%d index=%d after reset", h.Len(), h.Index())
	}
	if len(h.Tables()) != 2 || h.Relations() == nil || h.Viewport().Zoom != 2 {
		t.Fatalf("live state not loaded from reset snapshot")
	}
}
