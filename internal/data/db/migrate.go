package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Project{},
		&types.Version{},
		&types.Secret{},
	)
}

func EnsureVersionIndexes(db *gorm.DB) error {
	// Version history listing per project.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_version_project_created_at
		ON version (project_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_version_project_created_at: %w", err)
	}

	// One secrets bundle per version.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_secret_version_id
		ON secret (version_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_secret_version_id: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureVersionIndexes(s.db); err != nil {
		s.log.Error("Version index migration failed", "error", err)
		return err
	}
	return nil
}
