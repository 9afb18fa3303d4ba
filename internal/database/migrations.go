package database

import (
	"errors"
	"time"

	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillSongVersions = "2026-08-20_backfill_song_versions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSongVersions, apply: backfillSongVersions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before the optimistic-concurrency column existed carry a
// zero version; the service rejects version 0 as stale, so lift them to
// the initial version.
func backfillSongVersions(db *gorm.DB) error {
	return db.Model(&songs.Record{}).
		Where("version <= 0").
		Update("version", 1).Error
}
