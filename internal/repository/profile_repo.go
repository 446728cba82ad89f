package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 用户资料仓储
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建仓储
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID 查询用户资料（不存在返回 nil）
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*schema.Profile, error) {
	var p schema.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户资料失败: %w", err)
	}
	return &p, nil
}

// Create 创建用户资料（已存在则忽略）
func (r *ProfileRepository) Create(ctx context.Context, p *schema.Profile) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("profile user_id 不能为空")
	}
	if p.Role == "" {
		p.Role = model.RoleEditor
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
		return fmt.Errorf("创建用户资料失败: %w", err)
	}
	return nil
}

// AssignTeam 设置用户所属团队与角色
func (r *ProfileRepository) AssignTeam(ctx context.Context, userID, teamID string, role model.Role) error {
	updates := map[string]interface{}{"team_id": teamID}
	if role != "" {
		updates["role"] = role
	}
	res := r.db.WithContext(ctx).Model(&schema.Profile{}).Where("user_id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新用户团队失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("更新用户团队 %s: %w", userID, ErrNotFound)
	}
	return nil
}
