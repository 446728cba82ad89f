package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vs316/schema-weaver-sub001/internal/eventbus"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// Publisher 变更通知出口（实时频道）
type Publisher interface {
	Publish(evt eventbus.Event)
}

// DiagramRepository 图仓储；每次写入成功后向团队频道发布变更事件
type DiagramRepository struct {
	db  *gorm.DB
	pub Publisher
}

// NewDiagramRepository 创建图仓储；pub 可为 nil（不发布事件）
func NewDiagramRepository(db *gorm.DB, pub Publisher) *DiagramRepository {
	return &DiagramRepository{db: db, pub: pub}
}

// ListByTeam 按团队查询，最近更新的在前
func (r *DiagramRepository) ListByTeam(ctx context.Context, teamID string) ([]schema.Diagram, error) {
	var diagrams []schema.Diagram
	if err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("updated_at DESC").
		Find(&diagrams).Error; err != nil {
		return nil, fmt.Errorf("查询图列表失败: %w", err)
	}
	return diagrams, nil
}

// GetByID 按 ID 查询（不存在返回 nil）
func (r *DiagramRepository) GetByID(ctx context.Context, id string) (*schema.Diagram, error) {
	var d schema.Diagram
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询图失败: %w", err)
	}
	return &d, nil
}

// Create 插入新图
func (r *DiagramRepository) Create(ctx context.Context, d *schema.Diagram) error {
	if d == nil {
		return fmt.Errorf("diagram is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DiagramType == "" {
		d.DiagramType = schema.DiagramERD
	}
	if d.Version == 0 {
		d.Version = 1
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("创建图失败: %w", err)
	}
	r.publish(eventbus.TypeInsert, d.TeamID, d.ID, d)
	return nil
}

// Update 只写入提供的字段，并刷新 updated_at 与 version
func (r *DiagramRepository) Update(ctx context.Context, id string, update schema.DiagramUpdate) (*schema.Diagram, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
		"version":    gorm.Expr("version + ?", 1),
	}
	if update.Name != nil {
		updates["name"] = *update.Name
	}
	if update.Tables != nil {
		updates["tables"] = schema.TableList(*update.Tables)
	}
	if update.Relations != nil {
		updates["relations"] = schema.RelationList(*update.Relations)
	}
	if update.Viewport != nil {
		updates["viewport"] = schema.ViewportJSON(*update.Viewport)
	}
	if update.IsDarkMode != nil {
		updates["is_dark_mode"] = *update.IsDarkMode
	}
	if update.IsLocked != nil {
		updates["is_locked"] = *update.IsLocked
	}
	if update.UpdatedBy != nil {
		updates["updated_by"] = *update.UpdatedBy
	}

	res := r.db.WithContext(ctx).Model(&schema.Diagram{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("更新图失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("更新图 %s: %w", id, ErrNotFound)
	}

	d, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("更新图 %s: %w", id, ErrNotFound)
	}
	r.publish(eventbus.TypeUpdate, d.TeamID, d.ID, d)
	return d, nil
}

// Delete 删除图
func (r *DiagramRepository) Delete(ctx context.Context, id string) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("删除图 %s: %w", id, ErrNotFound)
	}

	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&schema.Diagram{}).Error; err != nil {
		return fmt.Errorf("删除图失败: %w", err)
	}
	r.publish(eventbus.TypeDelete, existing.TeamID, id, nil)
	return nil
}

func (r *DiagramRepository) publish(typ, teamID, id string, record *schema.Diagram) {
	if r.pub == nil {
		return
	}
	data := map[string]any{"id": id, "team_id": teamID}
	if record != nil {
		data["record"] = record.Clone()
	}
	r.pub.Publish(eventbus.Event{
		Type:  typ,
		Topic: eventbus.TeamTopic(teamID),
		Table: schema.Diagram{}.TableName(),
		Data:  data,
	})
}
