package service

import (
	"strconv"
	"strings"

	"github.com/vs316/schema-weaver-sub001/internal/model"
)

// 连线在表上的固定连接点（相对表左上角），不是表的视觉中心
const (
	anchorOffsetX = 110
	anchorOffsetY = 20
)

// Anchors 一条连线的几何要素
type Anchors struct {
	Source  model.Point
	Target  model.Point
	Mid     model.Point
	Control model.Point
}

// RelationGeometry 单条连线的路径与标签位置
type RelationGeometry struct {
	RelationID string      `json:"relation_id"`
	Path       string      `json:"path"`
	Label      model.Point `json:"label"`
}

// ComputeAnchors 端点表缺失时返回 nil，调用方应视为“不渲染”
func ComputeAnchors(rel model.Relation, tables []model.Table) *Anchors {
	var src, dst *model.Table
	for i := range tables {
		if tables[i].ID == rel.SourceTableID && src == nil {
			src = &tables[i]
		}
		if tables[i].ID == rel.TargetTableID && dst == nil {
			dst = &tables[i]
		}
	}
	if src == nil || dst == nil {
		return nil
	}

	a := &Anchors{
		Source: model.Point{X: src.X + anchorOffsetX, Y: src.Y + anchorOffsetY},
		Target: model.Point{X: dst.X + anchorOffsetX, Y: dst.Y + anchorOffsetY},
	}
	a.Mid = model.Point{X: (a.Source.X + a.Target.X) / 2, Y: (a.Source.Y + a.Target.Y) / 2}
	a.Control = model.Point{X: a.Mid.X + rel.BendOffset.X, Y: a.Mid.Y + rel.BendOffset.Y}
	return a
}

// ComputePath straight 为经过控制点的两段折线，curved 为二次贝塞尔曲线
func ComputePath(rel model.Relation, tables []model.Table) string {
	a := ComputeAnchors(rel, tables)
	if a == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("M ")
	writePoint(&b, a.Source)
	if rel.LineType == model.LineStraight {
		b.WriteString(" L ")
		writePoint(&b, a.Control)
		b.WriteString(" L ")
	} else {
		b.WriteString(" Q ")
		writePoint(&b, a.Control)
		b.WriteString(" ")
	}
	writePoint(&b, a.Target)
	return b.String()
}

// ComputeLabelPosition 无论线型都按二次贝塞尔 t=0.5 取点，保证标签视觉居中
func ComputeLabelPosition(rel model.Relation, tables []model.Table) *model.Point {
	a := ComputeAnchors(rel, tables)
	if a == nil {
		return nil
	}
	p := quadraticAt(a.Source, a.Control, a.Target, 0.5)
	return &p
}

// ComputeGeometry 批量计算，跳过端点缺失的连线
func ComputeGeometry(tables []model.Table, relations []model.Relation) []RelationGeometry {
	out := make([]RelationGeometry, 0, len(relations))
	for _, rel := range relations {
		path := ComputePath(rel, tables)
		label := ComputeLabelPosition(rel, tables)
		if path == "" || label == nil {
			continue
		}
		out = append(out, RelationGeometry{RelationID: rel.ID, Path: path, Label: *label})
	}
	return out
}

func quadraticAt(p0, c, p1 model.Point, t float64) model.Point {
	u := 1 - t
	return model.Point{
		X: u*u*p0.X + 2*u*t*c.X + t*t*p1.X,
		Y: u*u*p0.Y + 2*u*t*c.Y + t*t*p1.Y,
	}
}

func writePoint(b *strings.Builder, p model.Point) {
	b.WriteString(formatCoord(p.X))
	b.WriteByte(' ')
	b.WriteString(formatCoord(p.Y))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
