package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Databases created before the phone index existed get it here. Fresh ones
// already have it from the model tag, so the statement is a no-op.
func uniqueContactPhone() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_unique_contact_phone",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_phone ON contacts (phone)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_contacts_phone`).Error
		},
	}
}
