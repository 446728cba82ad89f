package dto

import (
	"encoding/json"

	"github.com/vs316/schema-weaver-sub001/internal/model"
)

// 注意：本包用于承载“对外契约”的 DTO（与前端/HTTP API 保持稳定）。
// 不要在这里放 GORM/持久化细节；内部持久化 schema 请见 internal/schema；业务逻辑收敛在 internal/service。

type DiagramSummaryDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DiagramType string `json:"diagram_type"`
	TableCount  int    `json:"table_count"`
	IsLocked    bool   `json:"is_locked"`
	Version     int64  `json:"version"`
	UpdatedAt   int64  `json:"updated_at"` // unix ms
}

type DiagramDTO struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	DiagramType      string           `json:"diagram_type"`
	Tables           []model.Table    `json:"tables"`
	Relations        []model.Relation `json:"relations"`
	FlowchartData    json.RawMessage  `json:"flowchart_data,omitempty"`
	SequenceData     json.RawMessage  `json:"sequence_data,omitempty"`
	ArchitectureData json.RawMessage  `json:"architecture_data,omitempty"`
	Viewport         model.Viewport   `json:"viewport"`
	IsDarkMode       bool             `json:"is_dark_mode"`
	IsLocked         bool             `json:"is_locked"`
	TeamID           string           `json:"team_id"`
	Version          int64            `json:"version"`
	CreatedBy        string           `json:"created_by,omitempty"`
	UpdatedBy        string           `json:"updated_by,omitempty"`
	CreatedAt        int64            `json:"created_at"`
	UpdatedAt        int64            `json:"updated_at"`
}

type CreateDiagramRequest struct {
	Name        string `json:"name"`
	DiagramType string `json:"diagram_type,omitempty"` // 为空默认 erd
	TeamID      string `json:"team_id"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// UpdateDiagramRequest 缺省字段不修改
type UpdateDiagramRequest struct {
	Name       *string           `json:"name,omitempty"`
	Tables     *[]model.Table    `json:"tables,omitempty"`
	Relations  *[]model.Relation `json:"relations,omitempty"`
	Viewport   *model.Viewport   `json:"viewport,omitempty"`
	IsDarkMode *bool             `json:"is_dark_mode,omitempty"`
	IsLocked   *bool             `json:"is_locked,omitempty"`
	UpdatedBy  *string           `json:"updated_by,omitempty"`
}

type RelationGeometryDTO struct {
	RelationID string      `json:"relation_id"`
	Path       string      `json:"path"`
	Label      model.Point `json:"label"`
}

type GeometryDTO struct {
	DiagramID string                `json:"diagram_id"`
	Relations []RelationGeometryDTO `json:"relations"`
	Skipped   int                   `json:"skipped"` // 端点缺失未渲染的连线数
}
