package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/drafts"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "migration.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&drafts.JournalEntry{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func TestApplyMigrationsIndexesConversationEvents(t *testing.T) {
	database := openTestDatabase(t)
	if err := database.Exec("CREATE INDEX " + draftEventsConversationIndex + " ON draft_events (conversation_id)").Error; err != nil {
		t.Fatalf("failed to create legacy index: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	migrator := database.Migrator()
	if !migrator.HasIndex(&drafts.JournalEntry{}, draftEventsConversationEventIndex) {
		t.Fatalf("expected %s to exist", draftEventsConversationEventIndex)
	}
	if migrator.HasIndex(&drafts.JournalEntry{}, draftEventsConversationIndex) {
		t.Fatalf("expected %s to be dropped", draftEventsConversationIndex)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationIndexDraftEventsByConversation).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(t *testing.T) {
	database := openTestDatabase(t)
	if err := applyMigrations(database, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := database.Exec("DROP INDEX " + draftEventsConversationEventIndex).Error; err != nil {
		t.Fatalf("failed to drop index: %v", err)
	}
	if err := applyMigrations(database, nil); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if database.Migrator().HasIndex(&drafts.JournalEntry{}, draftEventsConversationEventIndex) {
		t.Fatalf("expected applied migration to be skipped")
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one migration record, got %d", count)
	}
}

func TestOpenSQLiteCreatesJournal(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "journal.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !database.Migrator().HasTable(&drafts.JournalEntry{}) {
		t.Fatalf("expected draft_events table")
	}
	if !database.Migrator().HasIndex(&drafts.JournalEntry{}, draftEventsConversationEventIndex) {
		t.Fatalf("expected conversation event index")
	}
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
