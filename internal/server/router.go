package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/drafts"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/export"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/uploads"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	conversationParam    = "conversation_id"
	versionParam         = "version"
	defaultExportTimeout = 60 * time.Second
)

var (
	errMissingDraftsService = errors.New("drafts service dependency required")
	errMissingExporter      = errors.New("exporter dependency required")
	errMissingUploads       = errors.New("uploads dependency required")
)

// DraftStore is the version history surface served over HTTP.
type DraftStore interface {
	Document(conversationID drafts.ConversationID) drafts.Document
	Apply(ctx context.Context, conversationID drafts.ConversationID, event drafts.Event) (drafts.Transition, error)
	Journal(ctx context.Context, conversationID drafts.ConversationID) ([]drafts.JournalEntry, error)
}

type Exporter interface {
	Export(ctx context.Context, request export.Request) (export.Result, error)
}

type Assistant interface {
	Assist(ctx context.Context, request assistant.Request) (assistant.Reply, error)
}

type UploadIntake interface {
	Intake(ctx context.Context, upload uploads.Upload) (uploads.Result, error)
	MaxBytes() int64
}

type Dependencies struct {
	DraftsService  DraftStore
	Exporter       Exporter
	Assistant      Assistant
	Uploads        UploadIntake
	Realtime       *RealtimeDispatcher
	Logger         *zap.Logger
	AllowedOrigins []string
	ExportTimeout  time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.DraftsService == nil {
		return nil, errMissingDraftsService
	}
	if deps.Exporter == nil {
		return nil, errMissingExporter
	}
	if deps.Uploads == nil {
		return nil, errMissingUploads
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exportTimeout := deps.ExportTimeout
	if exportTimeout <= 0 {
		exportTimeout = defaultExportTimeout
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		drafts:        deps.DraftsService,
		exporter:      deps.Exporter,
		assistant:     deps.Assistant,
		uploads:       deps.Uploads,
		realtime:      deps.Realtime,
		logger:        logger,
		exportTimeout: exportTimeout,
	}

	router.GET("/healthz", handler.handleHealth)

	conversation := router.Group("/conversations/:" + conversationParam)
	conversation.Use(handler.resolveConversation)
	conversation.GET("/drafts", handler.handleDraftState)
	conversation.POST("/drafts", handler.handleNewVersion)
	conversation.GET("/drafts/journal", handler.handleJournal)
	conversation.PUT("/drafts/:"+versionParam, handler.handlePushEdit)
	conversation.POST("/drafts/:"+versionParam+"/undo", handler.handleVersionEvent(func(index int) drafts.Event {
		return drafts.Undo{VersionIndex: index}
	}))
	conversation.POST("/drafts/:"+versionParam+"/redo", handler.handleVersionEvent(func(index int) drafts.Event {
		return drafts.Redo{VersionIndex: index}
	}))
	conversation.POST("/drafts/:"+versionParam+"/select", handler.handleVersionEvent(func(index int) drafts.Event {
		return drafts.SelectVersion{VersionIndex: index}
	}))
	if deps.Realtime != nil {
		conversation.GET("/drafts/stream", handler.handleDraftStream)
	}
	conversation.POST("/export", handler.handleExport)
	if deps.Assistant != nil {
		conversation.POST("/assist", handler.handleAssist)
	}

	router.POST("/markup/paste", handler.handlePaste)
	router.POST("/markup/markdown", handler.handleCopyMarkdown)
	router.POST("/uploads", handler.handleUpload)

	return router, nil
}

// corsMiddleware allows the listed origins, or any origin when none are given.
func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Disposition", exportStatusHeader, exportErrorHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	drafts        DraftStore
	exporter      Exporter
	assistant     Assistant
	uploads       UploadIntake
	realtime      *RealtimeDispatcher
	logger        *zap.Logger
	exportTimeout time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) resolveConversation(c *gin.Context) {
	conversationID, err := drafts.NewConversationID(c.Param(conversationParam))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_conversation_id"})
		return
	}
	c.Set(conversationParam, conversationID)
	c.Next()
}

func conversationFrom(c *gin.Context) drafts.ConversationID {
	value, _ := c.Get(conversationParam)
	conversationID, _ := value.(drafts.ConversationID)
	return conversationID
}

type versionPayload struct {
	Index     int    `json:"index"`
	Content   string `json:"content"`
	CanUndo   bool   `json:"can_undo"`
	CanRedo   bool   `json:"can_redo"`
	UndoDepth int    `json:"undo_depth"`
	RedoDepth int    `json:"redo_depth"`
}

type draftStatePayload struct {
	ConversationID string           `json:"conversation_id"`
	ActiveIndex    int              `json:"active_index"`
	Content        *string          `json:"content"`
	Versions       []versionPayload `json:"versions"`
}

type transitionPayload struct {
	Event        string `json:"event"`
	Changed      bool   `json:"changed"`
	VersionIndex int    `json:"version_index"`
	ActiveIndex  int    `json:"active_index"`
	Content      string `json:"content"`
}

func newTransitionPayload(transition drafts.Transition) transitionPayload {
	return transitionPayload{
		Event:        string(transition.Kind),
		Changed:      transition.Changed,
		VersionIndex: transition.VersionIndex,
		ActiveIndex:  transition.ActiveIndex,
		Content:      transition.Content.String(),
	}
}

type contentRequestPayload struct {
	Content *string `json:"content"`
}

func (h *httpHandler) handleDraftState(c *gin.Context) {
	conversationID := conversationFrom(c)
	document := h.drafts.Document(conversationID)

	response := draftStatePayload{
		ConversationID: conversationID.String(),
		ActiveIndex:    document.ActiveIndex(),
		Versions:       make([]versionPayload, 0, document.Len()),
	}
	if current, ok := document.Current(); ok {
		content := current.String()
		response.Content = &content
	}
	for index, version := range document.Versions() {
		response.Versions = append(response.Versions, versionPayload{
			Index:     index,
			Content:   version.Content().String(),
			CanUndo:   version.CanUndo(),
			CanRedo:   version.CanRedo(),
			UndoDepth: version.UndoDepth(),
			RedoDepth: version.RedoDepth(),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleNewVersion(c *gin.Context) {
	var request contentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.applyEvent(c, http.StatusCreated, drafts.NewVersion{Content: drafts.Snapshot(*request.Content)})
}

func (h *httpHandler) handlePushEdit(c *gin.Context) {
	index, ok := versionIndex(c)
	if !ok {
		return
	}
	var request contentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.applyEvent(c, http.StatusOK, drafts.PushEdit{VersionIndex: index, Content: drafts.Snapshot(*request.Content)})
}

func (h *httpHandler) handleVersionEvent(build func(index int) drafts.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, ok := versionIndex(c)
		if !ok {
			return
		}
		h.applyEvent(c, http.StatusOK, build(index))
	}
}

func versionIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param(versionParam))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version"})
		return 0, false
	}
	return index, true
}

func (h *httpHandler) applyEvent(c *gin.Context, status int, event drafts.Event) {
	transition, err := h.drafts.Apply(c.Request.Context(), conversationFrom(c), event)
	if err != nil {
		h.writeServiceError(c, err, "draft_update_failed")
		return
	}
	c.JSON(status, newTransitionPayload(transition))
}

type journalEntryPayload struct {
	EventID          string `json:"event_id"`
	Event            string `json:"event"`
	VersionIndex     int    `json:"version_index"`
	ActiveIndex      int    `json:"active_index"`
	ContentSHA256    string `json:"content_sha256"`
	ContentLength    int    `json:"content_length"`
	AppliedAtSeconds int64  `json:"applied_at_s"`
}

func (h *httpHandler) handleJournal(c *gin.Context) {
	entries, err := h.drafts.Journal(c.Request.Context(), conversationFrom(c))
	if err != nil {
		h.writeServiceError(c, err, "journal_failed")
		return
	}
	response := make([]journalEntryPayload, 0, len(entries))
	for _, entry := range entries {
		response = append(response, journalEntryPayload{
			EventID:          entry.EventID,
			Event:            string(entry.Kind),
			VersionIndex:     entry.VersionIndex,
			ActiveIndex:      entry.ActiveIndex,
			ContentSHA256:    entry.ContentSHA256,
			ContentLength:    entry.ContentLength,
			AppliedAtSeconds: entry.AppliedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": response})
}

type realtimeEventPayload struct {
	ConversationID string            `json:"conversation_id"`
	Source         string            `json:"source"`
	Timestamp      string            `json:"timestamp"`
	Transition     transitionPayload `json:"transition"`
}

func (h *httpHandler) handleDraftStream(c *gin.Context) {
	conversationID := conversationFrom(c)
	ctx := c.Request.Context()
	messages, cleanup := h.realtime.Subscribe(ctx, conversationID.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent(realtimeEventReady, gin.H{"conversation_id": conversationID.String(), "source": realtimeSourceBackend})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			return true
		case message, ok := <-messages:
			if !ok {
				return false
			}
			payload, err := json.Marshal(realtimeEventPayload{
				ConversationID: message.ConversationID,
				Source:         realtimeSourceBackend,
				Timestamp:      message.Timestamp.Format(time.RFC3339),
				Transition:     newTransitionPayload(message.Transition),
			})
			if err != nil {
				h.logger.Error("failed to encode realtime event", zap.Error(err))
				return true
			}
			c.SSEvent(message.EventType, string(payload))
			return true
		}
	})
}

type codedError interface {
	Code() string
}

// writeServiceError maps service failures to HTTP statuses and includes the
// service error code when one is available.
func (h *httpHandler) writeServiceError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, drafts.ErrVersionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, drafts.ErrEmptySnapshot), errors.Is(err, drafts.ErrInvalidConversationID):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	payload := gin.H{"error": fallback}
	var coded codedError
	if errors.As(err, &coded) {
		payload["code"] = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, payload)
}

func trimmedForm(c *gin.Context, key string) string {
	return strings.TrimSpace(c.PostForm(key))
}
