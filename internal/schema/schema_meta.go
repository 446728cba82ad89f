package schema

import "time"

// SchemaMeta 单行表（ID=1），记录 diagrams/profiles 的结构版本。
// 版本高于程序支持值时拒绝迁移并进入安全模式。
type SchemaMeta struct {
	ID            int       `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
