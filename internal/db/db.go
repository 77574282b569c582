package db

import (
	"fmt"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/chat"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open picks the driver from the DSN: "sqlite:<path>" or "file:<...>" use the
// pure-Go SQLite driver, anything else is treated as a MySQL DSN.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		dialector = gormsqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "file:"):
		dialector = gormsqlite.Open(dsn)
	default:
		dialector = mysql.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return gdb, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&knowledge.Entry{},
		&knowledge.Keyword{},
		&catalog.Product{},
		&chat.Conversation{},
		&chat.Message{},
		&chat.Feedback{},
		&imagegen.Job{},
	)
}

// Connect opens and migrates, panicking on failure. For binaries only.
func Connect(dsn string) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		panic(err)
	}
	if err := Migrate(gdb); err != nil {
		panic(fmt.Sprintf("migrate: %v", err))
	}
	return gdb
}
