package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
)

var ErrNoDiagramOpen = errors.New("没有打开的图")

// Editor 把历史引擎接到同步引擎上：
// 打开图或远端覆盖当前图时重置历史，提交编辑与撤销/重做后用 live 状态调度防抖保存。
// 一个 SyncService 只挂一个 Editor（占用它的远端更新回调）。
type Editor struct {
	syncer  *SyncService
	history *HistoryEngine

	mu sync.Mutex
	id string
}

func NewEditor(syncer *SyncService) *Editor {
	e := &Editor{syncer: syncer, history: NewHistoryEngine()}
	e.history.SetOnRestore(e.onRestore)
	syncer.SetOnRemoteUpdate(e.onRemoteUpdate)
	return e
}

// History 直接访问历史引擎（读 live 状态、CanUndo 等）
func (e *Editor) History() *HistoryEngine {
	return e.history
}

// DiagramID 当前打开的图；未打开时为空
func (e *Editor) DiagramID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Open 选中图并以它的内容作为历史起点
func (e *Editor) Open(id string) (*schema.Diagram, error) {
	d := e.syncer.LoadDiagram(id)
	if d == nil {
		return nil, fmt.Errorf("图不存在: %s", id)
	}
	e.mu.Lock()
	e.id = d.ID
	e.mu.Unlock()

	if !e.history.Reset(d.Snapshot()) {
		return nil, fmt.Errorf("正在恢复历史快照，稍后再打开: %s", id)
	}
	return d, nil
}

// Edit 在 live 状态上应用 fn，记录一帧历史并调度保存
func (e *Editor) Edit(fn func(snap *model.Snapshot)) error {
	id, err := e.writableID()
	if err != nil {
		return err
	}

	snap := e.history.Live()
	fn(&snap)
	e.history.SetTables(snap.Tables)
	e.history.SetRelations(snap.Relations)
	e.history.SetViewport(snap.Viewport)
	e.history.PushHistory(nil)

	e.syncer.ScheduleSave(id, snapshotUpdate(e.history.Live()))
	return nil
}

// Undo 撤销一步；恢复后的状态由回调调度保存
func (e *Editor) Undo() bool {
	if _, err := e.writableID(); err != nil {
		return false
	}
	return e.history.Undo()
}

func (e *Editor) Redo() bool {
	if _, err := e.writableID(); err != nil {
		return false
	}
	return e.history.Redo()
}

func (e *Editor) writableID() (string, error) {
	id := e.DiagramID()
	if id == "" {
		return "", ErrNoDiagramOpen
	}
	if !e.syncer.CanWrite() {
		return "", ErrReadOnly
	}
	return id, nil
}

func (e *Editor) onRestore(snap model.Snapshot) {
	id := e.DiagramID()
	if id == "" {
		return
	}
	e.syncer.ScheduleSave(id, snapshotUpdate(snap))
}

// onRemoteUpdate 协作者覆盖了当前图时丢弃本地历史；自己保存的回声不重置
func (e *Editor) onRemoteUpdate(d schema.Diagram) {
	if d.ID != e.DiagramID() {
		return
	}
	if p := e.syncer.Profile(); p != nil && d.UpdatedBy == p.UserID {
		return
	}
	if !e.history.Reset(d.Snapshot()) {
		slog.Warn("远端更新到达时正在恢复历史，未重置", "id", d.ID, "version", d.Version)
		return
	}
	slog.Info("当前图被协作者更新，历史已重置", "id", d.ID, "updated_by", d.UpdatedBy, "version", d.Version)
}

func snapshotUpdate(snap model.Snapshot) schema.DiagramUpdate {
	tables := snap.Tables
	relations := snap.Relations
	vp := snap.Viewport
	return schema.DiagramUpdate{Tables: &tables, Relations: &relations, Viewport: &vp}
}
