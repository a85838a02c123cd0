package migrations

import (
	"testing"
	"time"

	"github.com/kursadbilgin/safeher/internal/infra/postgresql"
	"github.com/kursadbilgin/safeher/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestMigrateCreatesTables(t *testing.T) {
	t.Parallel()

	db, err := postgresql.NewSQLite("file::memory:")
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	require.True(t, db.Migrator().HasTable("contacts"))
	require.True(t, db.Migrator().HasTable("alert_attempts"))

	// Re-running is a no-op.
	require.NoError(t, Migrate(db))
}

func TestMigrateEnforcesUniqueContactPhone(t *testing.T) {
	t.Parallel()

	db, err := postgresql.NewSQLite("file::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.True(t, db.Migrator().HasIndex(&repository.ContactModel{}, "idx_contacts_phone"))

	insert := `INSERT INTO contacts (id, name, phone, position, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	require.NoError(t, db.Exec(insert, "c-1", "Asha", "9998887770", 0, now, now).Error)
	require.Error(t, db.Exec(insert, "c-2", "Asha again", "9998887770", 1, now, now).Error)
}
