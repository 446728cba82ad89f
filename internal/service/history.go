package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vs316/schema-weaver-sub001/internal/model"
)

// historyMode 历史引擎的内部状态；restoring 期间任何 PushHistory 都被忽略，
// 保证“恢复快照本身不会产生新的历史记录”。
type historyMode int

const (
	historyIdle historyMode = iota
	historyRestoring
)

// HistoryEngine 线性撤销/重做日志，并持有当前可编辑的表、连线与视口
type HistoryEngine struct {
	mu        sync.Mutex
	entries   []model.Snapshot
	index     int
	mode      historyMode
	live      model.Snapshot
	onRestore func(model.Snapshot)
}

// NewHistoryEngine 初始状态：空日志，index = -1，live 为空集合
func NewHistoryEngine() *HistoryEngine {
	return &HistoryEngine{
		index: -1,
		live: model.Snapshot{
			Tables:    []model.Table{},
			Relations: []model.Relation{},
			Viewport:  model.DefaultViewport(),
		},
	}
}

// SetOnRestore 注册 undo/redo 之后的回调（在 restoring 模式下、无锁调用）
func (h *HistoryEngine) SetOnRestore(fn func(model.Snapshot)) {
	h.mu.Lock()
	h.onRestore = fn
	h.mu.Unlock()
}

func (h *HistoryEngine) SetTables(tables []model.Table) {
	h.mu.Lock()
	h.live.Tables = model.CloneTables(tables)
	h.mu.Unlock()
}

func (h *HistoryEngine) SetRelations(relations []model.Relation) {
	h.mu.Lock()
	h.live.Relations = model.CloneRelations(relations)
	h.mu.Unlock()
}

func (h *HistoryEngine) SetViewport(vp model.Viewport) {
	h.mu.Lock()
	h.live.Viewport = vp
	h.mu.Unlock()
}

func (h *HistoryEngine) Tables() []model.Table {
	h.mu.Lock()
	defer h.mu.Unlock()
	return model.CloneTables(h.live.Tables)
}

func (h *HistoryEngine) Relations() []model.Relation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return model.CloneRelations(h.live.Relations)
}

func (h *HistoryEngine) Viewport() model.Viewport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live.Viewport
}

// Live 当前可编辑状态的深拷贝
func (h *HistoryEngine) Live() model.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live.Clone()
}

// PushHistory 记录一帧；snap 为 nil 时捕获当前 live 状态。
// 会丢弃 index 之后的所有“未来”记录。restoring 期间为空操作。
func (h *HistoryEngine) PushHistory(snap *model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mode == historyRestoring {
		return
	}

	var entry model.Snapshot
	if snap != nil {
		entry = snap.Clone()
	} else {
		entry = h.live.Clone()
	}

	h.entries = append(h.entries[:h.index+1], entry)
	h.index = len(h.entries) - 1
}

// Reset 清空日志并以 snap 作为新的起点（打开另一张图、远端覆盖时使用）。
// restoring 期间不生效并返回 false，恢复回调里不要调用。
func (h *HistoryEngine) Reset(snap model.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mode == historyRestoring {
		slog.Warn("正在恢复历史快照，忽略重置")
		return false
	}

	h.live = snap.Clone()
	if h.live.Tables == nil {
		h.live.Tables = []model.Table{}
	}
	if h.live.Relations == nil {
		h.live.Relations = []model.Relation{}
	}
	h.entries = []model.Snapshot{h.live.Clone()}
	h.index = 0
	return true
}

// Undo 回到上一帧；已在最早一帧或恢复失败时返回 false
func (h *HistoryEngine) Undo() bool {
	h.mu.Lock()
	if h.mode == historyRestoring || h.index <= 0 {
		h.mu.Unlock()
		return false
	}
	return h.restoreLocked(h.index - 1)
}

// Redo 前进到下一帧；已在最新一帧或恢复失败时返回 false
func (h *HistoryEngine) Redo() bool {
	h.mu.Lock()
	if h.mode == historyRestoring || h.index >= len(h.entries)-1 {
		h.mu.Unlock()
		return false
	}
	return h.restoreLocked(h.index + 1)
}

func (h *HistoryEngine) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index > 0
}

func (h *HistoryEngine) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index < len(h.entries)-1
}

// Len 日志长度
func (h *HistoryEngine) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Index 当前所在帧
func (h *HistoryEngine) Index() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index
}

// restoreLocked 调用方持有锁且处于 idle；函数返回前释放锁并回到 idle。
// 回调 panic 时 live 与 index 回滚到恢复之前。
func (h *HistoryEngine) restoreLocked(target int) (ok bool) {
	h.mode = historyRestoring
	hook := h.onRestore
	prevLive, prevIndex := h.live, h.index
	h.mu.Unlock()

	defer func() {
		r := recover()
		h.mu.Lock()
		if r != nil {
			slog.Error("恢复历史快照异常，已回滚", "target", target, "panic", r)
			h.live, h.index = prevLive, prevIndex
			ok = false
		}
		h.mode = historyIdle
		h.mu.Unlock()
	}()

	snap, err := h.load(target)
	if err != nil {
		slog.Error("恢复历史快照失败", "target", target, "error", err)
		return false
	}
	if hook != nil {
		hook(snap)
	}
	return true
}

func (h *HistoryEngine) load(target int) (model.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if target < 0 || target >= len(h.entries) {
		return model.Snapshot{}, fmt.Errorf("历史快照 %d 不存在（共 %d 帧）", target, len(h.entries))
	}
	snap := h.entries[target].Clone()
	snap.Relations = pruneDangling(snap.Tables, snap.Relations)

	h.live = snap
	h.index = target
	return snap.Clone(), nil
}

// pruneDangling 丢弃端点不在同一快照中的连线；全部有效时原样返回
func pruneDangling(tables []model.Table, relations []model.Relation) []model.Relation {
	valid := model.ValidRelations(tables, relations)
	if len(valid) == len(relations) {
		return relations
	}
	slog.Warn("恢复快照时丢弃悬空连线", "dropped", len(relations)-len(valid))
	return valid
}
