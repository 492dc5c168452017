package testsupport

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"voicelog/internal/database"
)

// MustOpenDB opens a migrated SQLite database in a per-test directory and
// registers cleanup.
func MustOpenDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "voicelog.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
