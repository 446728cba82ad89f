package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/vs316/schema-weaver-sub001/internal/model"
)

// TableList 以 JSON 文本存储的表集合
type TableList []model.Table

// Value 实现 driver.Valuer 接口
func (l TableList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (l *TableList) Scan(value interface{}) error {
	*l = make(TableList, 0)
	return scanJSON(value, l)
}

// RelationList 以 JSON 文本存储的连线集合
type RelationList []model.Relation

// Value 实现 driver.Valuer 接口
func (l RelationList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (l *RelationList) Scan(value interface{}) error {
	*l = make(RelationList, 0)
	return scanJSON(value, l)
}

// ViewportJSON 以 JSON 存储的视口 {x, y, zoom}
type ViewportJSON model.Viewport

// Value 实现 driver.Valuer 接口
func (v ViewportJSON) Value() (driver.Value, error) {
	b, err := json.Marshal(model.Viewport(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (v *ViewportJSON) Scan(value interface{}) error {
	*v = ViewportJSON(model.DefaultViewport())
	return scanJSON(value, v)
}

// MarshalJSON 与 model.Viewport 保持相同的 JSON 形状
func (v ViewportJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(model.Viewport(v))
}

// UnmarshalJSON 与 model.Viewport 保持相同的 JSON 形状
func (v *ViewportJSON) UnmarshalJSON(b []byte) error {
	var vp model.Viewport
	if err := json.Unmarshal(b, &vp); err != nil {
		return err
	}
	*v = ViewportJSON(vp)
	return nil
}

func scanJSON(value interface{}, out any) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, out)
}
