package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/vs316/schema-weaver-sub001/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB 打开内存 SQLite 并自动迁移所有表
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// :memory: 每个连接是独立的库，限制为单连接
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&schema.SchemaMeta{},
		&schema.Profile{},
		&schema.Diagram{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
