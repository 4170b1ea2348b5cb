package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/docquiz-backend/internal/domain"
)

// Migrator is implemented by storage components that own extra tables.
type Migrator interface {
	Migrate(db *gorm.DB) error
}

func AutoMigrateAll(db *gorm.DB, extra ...Migrator) error {
	if err := db.AutoMigrate(
		&types.Document{},
		&types.ProcessingJob{},

		&types.Module{},
		&types.ModuleChunk{},
		&types.Quiz{},
		&types.Question{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, m := range extra {
		if m == nil {
			continue
		}
		if err := m.Migrate(db); err != nil {
			return err
		}
	}
	return nil
}
