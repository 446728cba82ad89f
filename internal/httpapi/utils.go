package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/vs316/schema-weaver-sub001/internal/dto"
	"github.com/vs316/schema-weaver-sub001/internal/eventbus"
	"github.com/vs316/schema-weaver-sub001/internal/model"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
	"github.com/vs316/schema-weaver-sub001/internal/service"
)

func toDiagramDTO(d *schema.Diagram) dto.DiagramDTO {
	tables := model.CloneTables(d.Tables)
	if tables == nil {
		tables = []model.Table{}
	}
	relations := model.CloneRelations(d.Relations)
	if relations == nil {
		relations = []model.Relation{}
	}
	return dto.DiagramDTO{
		ID:               d.ID,
		Name:             d.Name,
		DiagramType:      string(d.DiagramType),
		Tables:           tables,
		Relations:        relations,
		FlowchartData:    rawJSON(d.FlowchartData),
		SequenceData:     rawJSON(d.SequenceData),
		ArchitectureData: rawJSON(d.ArchitectureData),
		Viewport:         model.Viewport(d.Viewport),
		IsDarkMode:       d.IsDarkMode,
		IsLocked:         d.IsLocked,
		TeamID:           d.TeamID,
		Version:          d.Version,
		CreatedBy:        d.CreatedBy,
		UpdatedBy:        d.UpdatedBy,
		CreatedAt:        d.CreatedAt.UnixMilli(),
		UpdatedAt:        d.UpdatedAt.UnixMilli(),
	}
}

func toDiagramSummaryDTO(d schema.Diagram) dto.DiagramSummaryDTO {
	return dto.DiagramSummaryDTO{
		ID:          d.ID,
		Name:        d.Name,
		DiagramType: string(d.DiagramType),
		TableCount:  len(d.Tables),
		IsLocked:    d.IsLocked,
		Version:     d.Version,
		UpdatedAt:   d.UpdatedAt.UnixMilli(),
	}
}

func toGeometryDTO(d *schema.Diagram) dto.GeometryDTO {
	geo := service.ComputeGeometry(d.Tables, d.Relations)
	out := dto.GeometryDTO{
		DiagramID: d.ID,
		Relations: make([]dto.RelationGeometryDTO, 0, len(geo)),
		Skipped:   len(d.Relations) - len(geo),
	}
	for _, g := range geo {
		out.Relations = append(out.Relations, dto.RelationGeometryDTO{
			RelationID: g.RelationID,
			Path:       g.Path,
			Label:      g.Label,
		})
	}
	return out
}

func toDiagramUpdate(req dto.UpdateDiagramRequest) schema.DiagramUpdate {
	return schema.DiagramUpdate{
		Name:       req.Name,
		Tables:     req.Tables,
		Relations:  req.Relations,
		Viewport:   req.Viewport,
		IsDarkMode: req.IsDarkMode,
		IsLocked:   req.IsLocked,
		UpdatedBy:  req.UpdatedBy,
	}
}

// validateTables 列类型必须属于固定集合
func validateTables(tables []model.Table) error {
	for _, t := range tables {
		if t.ID == "" {
			return fmt.Errorf("表 %q 缺少 id", t.Name)
		}
		for _, c := range t.Columns {
			if !c.Type.Valid() {
				return fmt.Errorf("表 %q 的字段 %q 类型不支持: %s", t.Name, c.Name, c.Type)
			}
		}
	}
	return nil
}

// editsContent 锁定的图只允许改锁定状态与显示偏好
func editsContent(req dto.UpdateDiagramRequest) bool {
	return req.Name != nil || req.Tables != nil || req.Relations != nil
}

// toEventPayload SSE 下发时把 record 转成对外 DTO
func toEventPayload(evt eventbus.Event) eventbus.Event {
	rec, ok := service.DiagramFromEvent(evt)
	if !ok {
		return evt
	}
	data := make(map[string]any, len(evt.Data))
	for k, v := range evt.Data {
		data[k] = v
	}
	data["record"] = toDiagramDTO(rec)
	evt.Data = data
	return evt
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(append([]byte(nil), b...))
}
