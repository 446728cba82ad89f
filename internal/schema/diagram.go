package schema

import (
	"time"

	"github.com/vs316/schema-weaver-sub001/internal/model"
	"gorm.io/datatypes"
)

// DiagramType 图类型
type DiagramType string

const (
	DiagramERD          DiagramType = "erd"
	DiagramFlowchart    DiagramType = "flowchart"
	DiagramSequence     DiagramType = "sequence"
	DiagramArchitecture DiagramType = "architecture"
)

// Valid 是否为支持的图类型
func (t DiagramType) Valid() bool {
	switch t {
	case DiagramERD, DiagramFlowchart, DiagramSequence, DiagramArchitecture:
		return true
	}
	return false
}

// Diagram 团队共享的图（远端持久化聚合）
// ERD 使用 Tables/Relations；其他图类型的数据原样存放在各自的 JSON 槽位中。
type Diagram struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	Name             string         `gorm:"size:255;not null" json:"name"`
	DiagramType      DiagramType    `gorm:"size:32;not null;default:erd" json:"diagram_type"`
	Tables           TableList      `gorm:"type:text" json:"tables"`
	Relations        RelationList   `gorm:"type:text" json:"relations"`
	FlowchartData    datatypes.JSON `gorm:"type:text" json:"flowchart_data,omitempty"`
	SequenceData     datatypes.JSON `gorm:"type:text" json:"sequence_data,omitempty"`
	ArchitectureData datatypes.JSON `gorm:"type:text" json:"architecture_data,omitempty"`
	Viewport         ViewportJSON   `gorm:"type:text" json:"viewport"`
	IsDarkMode       bool           `gorm:"default:false" json:"is_dark_mode"`
	IsLocked         bool           `gorm:"default:false" json:"is_locked"`
	TeamID           string         `gorm:"size:36;index" json:"team_id"`
	Version          int64          `gorm:"not null;default:1" json:"version"` // 每次更新 +1
	CreatedBy        string         `gorm:"size:36" json:"created_by"`
	UpdatedBy        string         `gorm:"size:36" json:"updated_by"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"index" json:"updated_at"`
}

// TableName 指定表名
func (Diagram) TableName() string {
	return "diagrams"
}

// Snapshot 取出 ERD 部分作为可编辑快照（深拷贝）
func (d Diagram) Snapshot() model.Snapshot {
	return model.Snapshot{
		Tables:    model.CloneTables(d.Tables),
		Relations: model.CloneRelations(d.Relations),
		Viewport:  model.Viewport(d.Viewport),
	}
}

// Clone 深拷贝整行，避免调用方修改内存列表
func (d Diagram) Clone() Diagram {
	out := d
	out.Tables = model.CloneTables(d.Tables)
	out.Relations = model.CloneRelations(d.Relations)
	out.FlowchartData = cloneJSON(d.FlowchartData)
	out.SequenceData = cloneJSON(d.SequenceData)
	out.ArchitectureData = cloneJSON(d.ArchitectureData)
	return out
}

func cloneJSON(in datatypes.JSON) datatypes.JSON {
	if in == nil {
		return nil
	}
	return append(datatypes.JSON(nil), in...)
}

// DiagramUpdate 部分字段更新；nil 字段不写入
type DiagramUpdate struct {
	Name       *string
	Tables     *[]model.Table
	Relations  *[]model.Relation
	Viewport   *model.Viewport
	IsDarkMode *bool
	IsLocked   *bool
	UpdatedBy  *string
}

// IsEmpty 是否没有任何字段
func (u DiagramUpdate) IsEmpty() bool {
	return u.Name == nil && u.Tables == nil && u.Relations == nil && u.Viewport == nil &&
		u.IsDarkMode == nil && u.IsLocked == nil && u.UpdatedBy == nil
}

// Merge 合并两次更新，next 中出现的字段覆盖当前值
func (u DiagramUpdate) Merge(next DiagramUpdate) DiagramUpdate {
	if next.Name != nil {
		u.Name = next.Name
	}
	if next.Tables != nil {
		u.Tables = next.Tables
	}
	if next.Relations != nil {
		u.Relations = next.Relations
	}
	if next.Viewport != nil {
		u.Viewport = next.Viewport
	}
	if next.IsDarkMode != nil {
		u.IsDarkMode = next.IsDarkMode
	}
	if next.IsLocked != nil {
		u.IsLocked = next.IsLocked
	}
	if next.UpdatedBy != nil {
		u.UpdatedBy = next.UpdatedBy
	}
	return u
}

// Profile 用户资料（团队归属与角色来自外部团队协作方）
type Profile struct {
	UserID      string     `gorm:"primaryKey;size:36" json:"user_id"`
	Email       string     `gorm:"size:255;index" json:"email"`
	DisplayName string     `gorm:"size:255" json:"display_name"`
	TeamID      string     `gorm:"size:36;index" json:"team_id"` // 为空表示尚未加入团队
	Role        model.Role `gorm:"size:20;default:editor" json:"role"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}
