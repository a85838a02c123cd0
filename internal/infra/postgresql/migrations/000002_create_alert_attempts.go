package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/safeher/internal/repository"
	"gorm.io/gorm"
)

func createAlertAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_alert_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AlertAttemptModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_alert_attempts_created_at ON alert_attempts (created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AlertAttemptModel{})
		},
	}
}
