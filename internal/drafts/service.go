package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "drafts.service.new"
	opListJournal  = "drafts.list_journal"
	reasonNotFound = "version_not_found"
)

func operationFor(kind EventKind) string {
	return "drafts." + string(kind)
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ChangeNotifier receives every accepted transition after it is committed, in
// commit order. It is called with the service lock held and must not call back
// into the Service.
type ChangeNotifier interface {
	NotifyDraftChange(conversationID ConversationID, transition Transition)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Notifier   ChangeNotifier
	Logger     *zap.Logger
}

// Service owns the in-memory version history of every conversation and
// journals accepted transitions. All mutations are serialized.
type Service struct {
	mu         sync.Mutex
	documents  map[ConversationID]Document
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	notifier   ChangeNotifier
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		documents:  make(map[ConversationID]Document),
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		notifier:   cfg.Notifier,
		logger:     logger,
	}, nil
}

// Apply reduces event against the conversation's document. A changed transition
// is journaled before the new document replaces the old one, then published.
func (s *Service) Apply(ctx context.Context, conversationID ConversationID, event Event) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ctx, conversationID, event)
}

func (s *Service) applyLocked(ctx context.Context, conversationID ConversationID, event Event) (Transition, error) {
	operation := operationFor(event.Kind())
	current := s.documentLocked(conversationID)
	next, transition, err := Reduce(current, event)
	if err != nil {
		reason := "reduce_failed"
		switch {
		case errors.Is(err, ErrVersionNotFound):
			reason = reasonNotFound
		case errors.Is(err, ErrEmptySnapshot):
			reason = "empty_snapshot"
		}
		s.logError(operation, reason, err, zap.String("conversation_id", conversationID.String()))
		return Transition{}, newServiceError(operation, reason, err)
	}
	if !transition.Changed {
		return transition, nil
	}

	if err := s.recordTransition(ctx, operation, conversationID, transition); err != nil {
		return Transition{}, err
	}
	s.documents[conversationID] = next
	if s.notifier != nil {
		s.notifier.NotifyDraftChange(conversationID, transition)
	}

	s.loggerOrDefault().Debug("draft transition applied",
		zap.String("conversation_id", conversationID.String()),
		zap.String("event", string(transition.Kind)),
		zap.Int("version_index", transition.VersionIndex))
	return transition, nil
}

func (s *Service) NewVersion(ctx context.Context, conversationID ConversationID, content Snapshot) (Transition, error) {
	return s.Apply(ctx, conversationID, NewVersion{Content: content})
}

func (s *Service) PushEdit(ctx context.Context, conversationID ConversationID, versionIndex int, content Snapshot) (Transition, error) {
	return s.Apply(ctx, conversationID, PushEdit{VersionIndex: versionIndex, Content: content})
}

func (s *Service) Undo(ctx context.Context, conversationID ConversationID, versionIndex int) (Transition, error) {
	return s.Apply(ctx, conversationID, Undo{VersionIndex: versionIndex})
}

func (s *Service) Redo(ctx context.Context, conversationID ConversationID, versionIndex int) (Transition, error) {
	return s.Apply(ctx, conversationID, Redo{VersionIndex: versionIndex})
}

func (s *Service) SelectVersion(ctx context.Context, conversationID ConversationID, versionIndex int) (Transition, error) {
	return s.Apply(ctx, conversationID, SelectVersion{VersionIndex: versionIndex})
}

// Document returns the conversation's current document value.
func (s *Service) Document(conversationID ConversationID) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentLocked(conversationID)
}

// Current returns the active snapshot of the conversation for read-only use.
func (s *Service) Current(conversationID ConversationID) (Snapshot, bool) {
	return s.Document(conversationID).Current()
}

func (s *Service) documentLocked(conversationID ConversationID) Document {
	document, ok := s.documents[conversationID]
	if !ok {
		return NewDocument()
	}
	return document
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("drafts service error", attrs...)
}
