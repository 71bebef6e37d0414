package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationIndexDraftEventsByConversation = "2026-10-19_index_draft_events_conversation_event"

const (
	draftEventsConversationIndex      = "idx_draft_events_conversation"
	draftEventsConversationEventIndex = "idx_draft_events_conversation_event"
)

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
		{name: migrationIndexDraftEventsByConversation, apply: indexDraftEventsByConversation},
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
		if err := db.Transaction(migration.apply); err != nil {
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

// indexDraftEventsByConversation replaces the conversation_id index with one
// that also covers the event_id ordering used when replaying a conversation.
func indexDraftEventsByConversation(db *gorm.DB) error {
	if err := db.Exec("DROP INDEX IF EXISTS " + draftEventsConversationIndex).Error; err != nil {
		return err
	}
	return db.Exec("CREATE INDEX IF NOT EXISTS " + draftEventsConversationEventIndex +
		" ON draft_events (conversation_id, event_id)").Error
}
