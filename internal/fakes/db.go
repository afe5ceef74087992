package fakes

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a sqlite database and migrates models. Use a shared-cache
// memory DSN ("file:<name>?mode=memory&cache=shared") so several
// connections see the same data.
func NewDB(t *testing.T, dsn string, models ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// sqlite allows one writer; serialize instead of failing with "locked"
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// MemoryDSN is a per-test shared in-memory sqlite DSN.
func MemoryDSN(t *testing.T) string {
	return "file:" + t.Name() + "?mode=memory&cache=shared"
}
