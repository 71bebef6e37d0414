package drafts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
)

// JournalEntry is the append-only record of an accepted history transition.
// Only a digest of the content is stored.
type JournalEntry struct {
	EventID          string    `gorm:"column:event_id;primaryKey;size:190;not null"`
	ConversationID   string    `gorm:"column:conversation_id;size:190;not null"`
	Kind             EventKind `gorm:"column:kind;size:32;not null"`
	VersionIndex     int       `gorm:"column:version_index;not null"`
	ActiveIndex      int       `gorm:"column:active_index;not null"`
	ContentSHA256    string    `gorm:"column:content_sha256;size:64;not null"`
	ContentLength    int       `gorm:"column:content_length;not null"`
	AppliedAtSeconds int64     `gorm:"column:applied_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (JournalEntry) TableName() string {
	return "draft_events"
}

func (s *Service) recordTransition(ctx context.Context, operation string, conversationID ConversationID, transition Transition) error {
	eventID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err, zap.String("conversation_id", conversationID.String()))
		return newServiceError(operation, "id_generation_failed", err)
	}
	entry := JournalEntry{
		EventID:          eventID,
		ConversationID:   conversationID.String(),
		Kind:             transition.Kind,
		VersionIndex:     transition.VersionIndex,
		ActiveIndex:      transition.ActiveIndex,
		ContentSHA256:    hashSnapshot(transition.Content),
		ContentLength:    len(transition.Content),
		AppliedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(operation, "journal_insert_failed", err, zap.String("conversation_id", conversationID.String()))
		return newServiceError(operation, "journal_insert_failed", err)
	}
	return nil
}

// Journal lists the recorded transitions of a conversation in application order.
func (s *Service) Journal(ctx context.Context, conversationID ConversationID) ([]JournalEntry, error) {
	var entries []JournalEntry
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID.String()).
		Order("event_id ASC").
		Find(&entries).Error; err != nil {
		s.logError(opListJournal, "query_failed", err, zap.String("conversation_id", conversationID.String()))
		return nil, newServiceError(opListJournal, "query_failed", err)
	}
	return entries, nil
}

func hashSnapshot(content Snapshot) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
