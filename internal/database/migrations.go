package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmwedding/invitation/internal/changefeed"
	"github.com/pmwedding/invitation/internal/wishes"
)

const (
	migrationBackfillWishNames        = "2026-03-01_backfill_wish_names"
	migrationInstallWishChangeTrigger = "2026-03-08_install_wish_change_trigger"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

// migrationDefinition.driver restricts a migration to one backend; empty runs everywhere.
type migrationDefinition struct {
	name   string
	driver string
	apply  func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, driver string, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillWishNames, apply: backfillWishNames},
		{name: migrationInstallWishChangeTrigger, driver: DriverPostgres, apply: installWishChangeTrigger},
	}

	for _, migration := range migrations {
		if migration.driver != "" && migration.driver != driver {
			continue
		}
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

// backfillWishNames copies the guest's display name onto wishes written without one.
func backfillWishNames(db *gorm.DB) error {
	return db.Exec(`UPDATE wishes SET name = (SELECT guests.name FROM guests WHERE guests.id = wishes.guest_id)
WHERE (name = '' OR name IS NULL)
AND EXISTS (SELECT 1 FROM guests WHERE guests.id = wishes.guest_id)`).Error
}

func installWishChangeTrigger(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, statement := range changefeed.TriggerSQL(wishes.TableName) {
			if err := tx.Exec(statement).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
