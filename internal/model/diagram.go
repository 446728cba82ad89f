package model

import "time"

// ColumnType 列类型（固定枚举）
type ColumnType string

const (
	ColumnInt       ColumnType = "INT"
	ColumnBigInt    ColumnType = "BIGINT"
	ColumnUUID      ColumnType = "UUID"
	ColumnVarchar   ColumnType = "VARCHAR"
	ColumnText      ColumnType = "TEXT"
	ColumnBool      ColumnType = "BOOL"
	ColumnDatetime  ColumnType = "DATETIME"
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnDate      ColumnType = "DATE"
	ColumnDecimal   ColumnType = "DECIMAL"
	ColumnFloat     ColumnType = "FLOAT"
	ColumnJSON      ColumnType = "JSON"
)

var columnTypes = map[ColumnType]struct{}{
	ColumnInt: {}, ColumnBigInt: {}, ColumnUUID: {}, ColumnVarchar: {}, ColumnText: {}, ColumnBool: {},
	ColumnDatetime: {}, ColumnTimestamp: {}, ColumnDate: {}, ColumnDecimal: {}, ColumnFloat: {}, ColumnJSON: {},
}

// Valid 是否属于支持的列类型
func (t ColumnType) Valid() bool {
	_, ok := columnTypes[t]
	return ok
}

// LineType 连线类型
type LineType string

const (
	LineCurved   LineType = "curved"
	LineStraight LineType = "straight"
)

// AnnotationStatus 批注状态
type AnnotationStatus string

const (
	StatusOpen     AnnotationStatus = "open"
	StatusResolved AnnotationStatus = "resolved"
	StatusWontFix  AnnotationStatus = "wontfix"
)

// AnnotationPriority 批注优先级
type AnnotationPriority string

const (
	PriorityLow    AnnotationPriority = "low"
	PriorityMedium AnnotationPriority = "medium"
	PriorityHigh   AnnotationPriority = "high"
)

// Point 画布坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Column 表字段
type Column struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	IsPrimaryKey bool       `json:"isPrimaryKey"`
	IsForeignKey bool       `json:"isForeignKey"` // 与 Relation 无约束关系
}

// Annotation 表上的评论/笔记/问题/变更/修复记录
type Annotation struct {
	ID          string             `json:"id"`
	AuthorID    string             `json:"authorId"`
	AuthorLabel string             `json:"authorLabel"`
	Content     string             `json:"content"`
	CreatedAt   time.Time          `json:"createdAt"`
	Status      AnnotationStatus   `json:"status,omitempty"`
	Priority    AnnotationPriority `json:"priority,omitempty"`
}

// Table ERD 中的一张表
type Table struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Columns     []Column     `json:"columns"`
	Color       *string      `json:"color,omitempty"` // nil 表示尚未着色
	Description string       `json:"description,omitempty"`
	Comments    []Annotation `json:"comments,omitempty"`
	Notes       []Annotation `json:"notes,omitempty"`
	Questions   []Annotation `json:"questions,omitempty"`
	Changes     []Annotation `json:"changes,omitempty"`
	Fixes       []Annotation `json:"fixes,omitempty"`
}

// HasColor 是否已着色
func (t Table) HasColor() bool {
	return t.Color != nil && *t.Color != ""
}

// Relation 表之间的连线
type Relation struct {
	ID            string   `json:"id"`
	SourceTableID string   `json:"sourceTableId"`
	TargetTableID string   `json:"targetTableId"`
	Label         string   `json:"label,omitempty"`
	IsDashed      bool     `json:"isDashed"`
	LineType      LineType `json:"lineType,omitempty"`
	BendOffset    Point    `json:"bendOffset"`
}

// Viewport 画布平移与缩放
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport 新图的默认视口
func DefaultViewport() Viewport {
	return Viewport{X: 0, Y: 0, Zoom: 1}
}

// Snapshot 历史记录中的一帧，捕获时深拷贝
type Snapshot struct {
	Tables    []Table    `json:"tables"`
	Relations []Relation `json:"relations"`
	Viewport  Viewport   `json:"viewport"`
}

// Clone 深拷贝表（包括列、颜色与批注）
func (t Table) Clone() Table {
	out := t
	if t.Columns != nil {
		out.Columns = append([]Column(nil), t.Columns...)
	}
	if t.Color != nil {
		c := *t.Color
		out.Color = &c
	}
	out.Comments = cloneAnnotations(t.Comments)
	out.Notes = cloneAnnotations(t.Notes)
	out.Questions = cloneAnnotations(t.Questions)
	out.Changes = cloneAnnotations(t.Changes)
	out.Fixes = cloneAnnotations(t.Fixes)
	return out
}

func cloneAnnotations(in []Annotation) []Annotation {
	if in == nil {
		return nil
	}
	return append([]Annotation(nil), in...)
}

// CloneTables 深拷贝表集合（nil 保持为 nil）
func CloneTables(in []Table) []Table {
	if in == nil {
		return nil
	}
	out := make([]Table, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// CloneRelations 拷贝连线集合（Relation 只含值类型字段）
func CloneRelations(in []Relation) []Relation {
	if in == nil {
		return nil
	}
	out := make([]Relation, len(in))
	copy(out, in)
	return out
}

// Clone 深拷贝快照
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Tables:    CloneTables(s.Tables),
		Relations: CloneRelations(s.Relations),
		Viewport:  s.Viewport,
	}
}

// TableIndex 按 ID 建立索引
func TableIndex(tables []Table) map[string]*Table {
	idx := make(map[string]*Table, len(tables))
	for i := range tables {
		idx[tables[i].ID] = &tables[i]
	}
	return idx
}

// ValidRelations 过滤掉端点不存在的连线
func ValidRelations(tables []Table, relations []Relation) []Relation {
	ids := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		ids[t.ID] = struct{}{}
	}
	out := make([]Relation, 0, len(relations))
	for _, r := range relations {
		_, okSrc := ids[r.SourceTableID]
		_, okDst := ids[r.TargetTableID]
		if okSrc && okDst {
			out = append(out, r)
		}
	}
	return out
}
