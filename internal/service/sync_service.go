package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vs316/schema-weaver-sub001/internal/eventbus"
	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
)

var (
	ErrNoTeam   = errors.New("当前用户未加入团队")
	ErrReadOnly = errors.New("当前角色只读")
)

// SyncStatus 同步引擎状态：absent → loading → {ready | onboarding | error}
type SyncStatus string

const (
	SyncAbsent     SyncStatus = "absent"
	SyncLoading    SyncStatus = "loading"
	SyncReady      SyncStatus = "ready"
	SyncOnboarding SyncStatus = "onboarding"
	SyncError      SyncStatus = "error"
)

// SyncConfig 同步引擎配置
type SyncConfig struct {
	SaveDebounce   time.Duration // 本地编辑落库的防抖窗口
	RealtimeBuffer int           // 实时频道缓冲
	DefaultTeamID  string        // 首次创建用户资料时使用的团队；为空则进入 onboarding
	DisplayName    string
}

// DefaultSyncConfig 默认配置
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SaveDebounce:   500 * time.Millisecond,
		RealtimeBuffer: 32,
	}
}

// SyncService 持有“当前图”的远端镜像：CRUD、防抖保存与实时对账。
// 对账策略是 last-writer-wins：别人的更新会覆盖当前打开的图，
// 本地尚未落库的修改可能因此丢失；防抖只能缩小这个窗口。
type SyncService struct {
	sessions SessionProvider
	profiles ProfileRepository
	diagrams DiagramRepository
	realtime ChangeSubscriber
	cfg      SyncConfig

	mu             sync.Mutex
	status         SyncStatus
	loading        bool
	errMsg         string
	session        *model.Session
	profile        *schema.Profile
	list           []schema.Diagram
	current        *schema.Diagram
	onRemoteUpdate func(schema.Diagram)
	stopRealtime   context.CancelFunc
	realtimeDone   chan struct{}

	saveMu   sync.Mutex
	pending  map[string]schema.DiagramUpdate
	timers   map[string]*time.Timer
	inflight int
	idle     chan struct{} // inflight 归零时关闭
}

// NewSyncService 创建同步引擎；所有外部依赖显式注入
func NewSyncService(
	sessions SessionProvider,
	profiles ProfileRepository,
	diagrams DiagramRepository,
	realtime ChangeSubscriber,
	cfg *SyncConfig,
) *SyncService {
	c := DefaultSyncConfig()
	if cfg != nil {
		if cfg.SaveDebounce > 0 {
			c.SaveDebounce = cfg.SaveDebounce
		}
		if cfg.RealtimeBuffer > 0 {
			c.RealtimeBuffer = cfg.RealtimeBuffer
		}
		c.DefaultTeamID = cfg.DefaultTeamID
		c.DisplayName = cfg.DisplayName
	}
	return &SyncService{
		sessions: sessions,
		profiles: profiles,
		diagrams: diagrams,
		realtime: realtime,
		cfg:      c,
		status:   SyncAbsent,
		pending:  make(map[string]schema.DiagramUpdate),
		timers:   make(map[string]*time.Timer),
	}
}

// SetOnRemoteUpdate 当前图被协作者的更新覆盖后回调（在实时协程中、无锁调用）。
// 回调内不要调用 Close。
func (s *SyncService) SetOnRemoteUpdate(fn func(schema.Diagram)) {
	s.mu.Lock()
	s.onRemoteUpdate = fn
	s.mu.Unlock()
}

// Init 解析会话 → 获取或创建用户资料 → 拉取团队的图 → 打开实时频道。
// 任一步失败都写入错误状态并停止，不做内部重试。
func (s *SyncService) Init(ctx context.Context) error {
	s.closeRealtime()

	s.mu.Lock()
	s.status = SyncLoading
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	sess, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return s.fail("获取登录会话失败", err)
	}

	profile, err := s.profiles.GetByUserID(ctx, sess.UserID)
	if err != nil {
		return s.fail("获取用户资料失败", err)
	}
	if profile == nil {
		profile = &schema.Profile{
			UserID:      sess.UserID,
			Email:       sess.Email,
			DisplayName: s.cfg.DisplayName,
			TeamID:      s.cfg.DefaultTeamID,
			Role:        model.RoleEditor,
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return s.fail("创建用户资料失败", err)
		}
		slog.Info("已创建用户资料", "user_id", sess.UserID, "team_id", profile.TeamID)
	}

	s.mu.Lock()
	s.session = sess
	p := *profile
	s.profile = &p
	s.mu.Unlock()

	if profile.TeamID == "" {
		s.mu.Lock()
		s.status = SyncOnboarding
		s.loading = false
		s.list = nil
		s.current = nil
		s.mu.Unlock()
		slog.Info("用户尚未加入团队，进入 onboarding", "user_id", sess.UserID)
		return nil
	}

	if err := s.FetchDiagrams(ctx, profile.TeamID); err != nil {
		return s.fail("加载图列表失败", err)
	}

	s.openRealtime(profile.TeamID)

	s.mu.Lock()
	s.status = SyncReady
	s.loading = false
	s.mu.Unlock()
	slog.Info("同步引擎就绪", "team_id", profile.TeamID, "diagrams", len(s.Diagrams()))
	return nil
}

func (s *SyncService) fail(msg string, err error) error {
	slog.Error(msg, "error", err)
	s.mu.Lock()
	s.status = SyncError
	s.loading = false
	s.errMsg = msg
	s.mu.Unlock()
	return fmt.Errorf("%s: %w", msg, err)
}

// FetchDiagrams 用远端内容替换内存列表，最近更新的在前
func (s *SyncService) FetchDiagrams(ctx context.Context, teamID string) error {
	list, err := s.diagrams.ListByTeam(ctx, teamID)
	if err != nil {
		s.mu.Lock()
		s.errMsg = "加载图列表失败"
		s.mu.Unlock()
		return err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})

	s.mu.Lock()
	s.list = list
	s.mu.Unlock()
	return nil
}

// CreateDiagram 插入空图，放到列表最前并设为当前图
func (s *SyncService) CreateDiagram(ctx context.Context, name string, typ schema.DiagramType) (*schema.Diagram, error) {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()

	if profile == nil || profile.TeamID == "" {
		return nil, ErrNoTeam
	}
	if !profile.Role.CanWrite() {
		return nil, ErrReadOnly
	}
	if typ == "" {
		typ = schema.DiagramERD
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("不支持的图类型: %s", typ)
	}

	d := &schema.Diagram{
		Name:        name,
		DiagramType: typ,
		Tables:      schema.TableList{},
		Relations:   schema.RelationList{},
		Viewport:    schema.ViewportJSON(model.DefaultViewport()),
		TeamID:      profile.TeamID,
		CreatedBy:   profile.UserID,
		UpdatedBy:   profile.UserID,
	}
	if err := s.diagrams.Create(ctx, d); err != nil {
		slog.Error("创建图失败", "name", name, "error", err)
		return nil, err
	}

	s.mu.Lock()
	// 实时频道可能已经把新图拉回列表，先去重再放到最前
	s.list = append([]schema.Diagram{d.Clone()}, removeDiagram(s.list, d.ID)...)
	cur := d.Clone()
	s.current = &cur
	s.mu.Unlock()

	out := d.Clone()
	return &out, nil
}

// SaveDiagram 只持久化提供的字段并刷新更新时间；不修改内存列表，由实时频道追平
func (s *SyncService) SaveDiagram(ctx context.Context, id string, update schema.DiagramUpdate) error {
	s.saveMu.Lock()
	s.beginSaveLocked()
	s.saveMu.Unlock()
	defer s.endSave()
	return s.save(ctx, id, update)
}

func (s *SyncService) save(ctx context.Context, id string, update schema.DiagramUpdate) error {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()

	if profile != nil && !profile.Role.CanWrite() {
		return ErrReadOnly
	}
	if update.UpdatedBy == nil && profile != nil {
		uid := profile.UserID
		update.UpdatedBy = &uid
	}

	if _, err := s.diagrams.Update(ctx, id, update); err != nil {
		slog.Error("保存图失败", "id", id, "error", err)
		return err
	}
	return nil
}

// 调用方持有 saveMu
func (s *SyncService) beginSaveLocked() {
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *SyncService) endSave() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// ScheduleSave 防抖保存：窗口内的多次调用合并为一次写入，后来的字段覆盖先前的
func (s *SyncService) ScheduleSave(id string, update schema.DiagramUpdate) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.pending[id] = s.pending[id].Merge(update)
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(s.cfg.SaveDebounce, func() {
		if err := s.flushOne(context.Background(), id); err != nil {
			slog.Warn("防抖保存失败", "id", id, "error", err)
		}
	})
}

// Flush 立即写入所有待保存的修改，并等待已经发出的保存（包括防抖定时器触发的）结束。
// ctx 结束时不再等待，返回 ctx.Err()。
func (s *SyncService) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.saveMu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := s.flushOne(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.saveMu.Lock()
	busy, idle := s.inflight > 0, s.idle
	s.saveMu.Unlock()
	if busy {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return firstErr
}

func (s *SyncService) flushOne(ctx context.Context, id string) error {
	s.saveMu.Lock()
	update, ok := s.pending[id]
	delete(s.pending, id)
	if t, exists := s.timers[id]; exists {
		t.Stop()
		delete(s.timers, id)
	}
	if !ok || update.IsEmpty() {
		s.saveMu.Unlock()
		return nil
	}
	// 出队与计数在同一把锁内完成，Flush 不会漏掉刚被定时器取走的保存
	s.beginSaveLocked()
	s.saveMu.Unlock()
	defer s.endSave()

	return s.save(ctx, id, update)
}

// HasPendingSave 是否有尚未写入的防抖修改
func (s *SyncService) HasPendingSave(id string) bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// DeleteDiagram 远端与本地同时删除；如果删的是当前图则清空当前引用
func (s *SyncService) DeleteDiagram(ctx context.Context, id string) error {
	s.mu.Lock()
	profile := s.profile
	s.mu.Unlock()
	if profile != nil && !profile.Role.CanWrite() {
		return ErrReadOnly
	}

	if err := s.diagrams.Delete(ctx, id); err != nil {
		slog.Error("删除图失败", "id", id, "error", err)
		return err
	}

	s.mu.Lock()
	s.list = removeDiagram(s.list, id)
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.mu.Unlock()
	return nil
}

// LoadDiagram 从内存列表中选中一张图作为当前图；不存在返回 nil
func (s *SyncService) LoadDiagram(id string) *schema.Diagram {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.list {
		if s.list[i].ID == id {
			cur := s.list[i].Clone()
			s.current = &cur
			out := cur.Clone()
			return &out
		}
	}
	return nil
}

func (s *SyncService) openRealtime(teamID string) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.realtime.Subscribe(ctx, eventbus.TeamTopic(teamID), s.cfg.RealtimeBuffer)
	done := make(chan struct{})

	s.mu.Lock()
	s.stopRealtime = cancel
	s.realtimeDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				s.reconcile(ctx, teamID, evt)
			}
		}
	}()
}

// reconcile 任何变更都整表重拉；UPDATE 命中当前图时用事件负载覆盖当前图。
// Hub 会丢弃慢消费者的事件，所以重拉后的列表里当前图版本更高时同样覆盖。
func (s *SyncService) reconcile(ctx context.Context, teamID string, evt eventbus.Event) {
	fetched := true
	if err := s.FetchDiagrams(ctx, teamID); err != nil {
		fetched = false
		slog.Warn("实时变更后重新拉取失败", "team_id", teamID, "error", err)
	}

	var hook func(schema.Diagram)
	var overwritten schema.Diagram
	changed := false

	s.mu.Lock()
	switch evt.Type {
	case eventbus.TypeUpdate:
		rec, ok := DiagramFromEvent(evt)
		if ok && s.current != nil && s.current.ID == rec.ID {
			if rec.Version < s.current.Version {
				slog.Debug("忽略过期的远端更新", "id", rec.ID, "version", rec.Version, "current", s.current.Version)
			} else {
				cur := rec.Clone()
				s.current = &cur
				changed = true
			}
		}
	case eventbus.TypeDelete:
		id, _ := evt.Data["id"].(string)
		if id != "" && s.current != nil && s.current.ID == id {
			s.current = nil
		}
	}
	if fetched && s.current != nil {
		for i := range s.list {
			if s.list[i].ID == s.current.ID && s.list[i].Version > s.current.Version {
				cur := s.list[i].Clone()
				s.current = &cur
				changed = true
				break
			}
		}
	}
	if changed {
		overwritten = s.current.Clone()
		hook = s.onRemoteUpdate
	}
	s.mu.Unlock()

	if hook != nil {
		hook(overwritten)
	}
}

// Close 退订实时频道；已经发出的保存与待触发的防抖保存仍会完成
func (s *SyncService) Close() {
	s.closeRealtime()
}

func (s *SyncService) closeRealtime() {
	s.mu.Lock()
	cancel, done := s.stopRealtime, s.realtimeDone
	s.stopRealtime, s.realtimeDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SyncService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Syncing 是否有保存请求正在进行
func (s *SyncService) Syncing() bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.inflight > 0
}

// LastError 面向用户的错误信息；无错误时为空
func (s *SyncService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *SyncService) Session() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

func (s *SyncService) Profile() *schema.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// CanWrite 角色是否允许尝试写操作（真正的权限在服务端）
func (s *SyncService) CanWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile != nil && s.profile.Role.CanWrite()
}

func (s *SyncService) Diagrams() []schema.Diagram {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Diagram, len(s.list))
	for i := range s.list {
		out[i] = s.list[i].Clone()
	}
	return out
}

func (s *SyncService) Current() *schema.Diagram {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	out := s.current.Clone()
	return &out
}

// DiagramFromEvent 解析事件中的 record；兼容进程内对象和 JSON 解码后的 map
func DiagramFromEvent(evt eventbus.Event) (*schema.Diagram, bool) {
	raw, ok := evt.Data["record"]
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case schema.Diagram:
		d := v.Clone()
		return &d, true
	case *schema.Diagram:
		if v == nil {
			return nil, false
		}
		d := v.Clone()
		return &d, true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var d schema.Diagram
		if err := json.Unmarshal(b, &d); err != nil || d.ID == "" {
			return nil, false
		}
		return &d, true
	}
}

func removeDiagram(list []schema.Diagram, id string) []schema.Diagram {
	out := make([]schema.Diagram, 0, len(list))
	for _, d := range list {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}
