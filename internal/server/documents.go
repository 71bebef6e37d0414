package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/export"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/uploads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	exportStatusHeader = "X-Export-Status"
	exportErrorHeader  = "X-Export-Error"
	exportStatusOK     = "ok"
	exportStatusFailed = "fallback"
	// multipartOverheadBytes covers boundaries and form fields around the file part.
	multipartOverheadBytes int64 = 1 << 20
)

type exportRequestPayload struct {
	Format   string `json:"format"`
	FileName string `json:"file_name"`
}

func (h *httpHandler) handleExport(c *gin.Context) {
	var request exportRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	format, err := export.ParseFormat(request.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_format"})
		return
	}

	conversationID := conversationFrom(c)
	content, ok := h.drafts.Document(conversationID).Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_active_draft"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.exportTimeout)
	defer cancel()
	result, err := h.exporter.Export(ctx, export.Request{
		Key:      conversationID.String(),
		Content:  content.String(),
		Format:   format,
		FileName: request.FileName,
	})
	switch {
	case errors.Is(err, export.ErrExportPending):
		c.JSON(http.StatusConflict, gin.H{"error": "export_pending"})
		return
	case err != nil:
		h.logger.Error("export rejected", zap.String("conversation_id", conversationID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}

	status := exportStatusOK
	if result.Fallback {
		status = exportStatusFailed
		if result.Err != nil {
			c.Header(exportErrorHeader, result.Err.Error())
		}
	}
	c.Header(exportStatusHeader, status)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

type assistRequestPayload struct {
	Mode        string `json:"mode"`
	Instruction string `json:"instruction"`
}

type assistResponsePayload struct {
	Mode        string             `json:"mode"`
	Text        string             `json:"text"`
	Placeholder bool               `json:"placeholder"`
	Draft       *transitionPayload `json:"draft,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (h *httpHandler) handleAssist(c *gin.Context) {
	var request assistRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	mode, err := assistant.ParseMode(request.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mode"})
		return
	}

	reply, err := h.assistant.Assist(c.Request.Context(), assistant.Request{
		ConversationID: conversationFrom(c),
		Mode:           mode,
		Instruction:    request.Instruction,
	})
	if errors.Is(err, assistant.ErrEmptyInstruction) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_instruction"})
		return
	}
	if err != nil {
		h.writeServiceError(c, err, "assist_failed")
		return
	}

	response := assistResponsePayload{
		Mode:        string(reply.Mode),
		Text:        reply.Text,
		Placeholder: reply.Placeholder,
	}
	if reply.Draft != nil {
		draft := newTransitionPayload(*reply.Draft)
		response.Draft = &draft
	}
	if reply.Err != nil {
		response.Error = "external_service_failure"
	}
	c.JSON(http.StatusOK, response)
}

type pasteRequestPayload struct {
	Text *string `json:"text"`
}

func (h *httpHandler) handlePaste(c *gin.Context) {
	var request pasteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Text == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markup": richtext.TransformPaste(*request.Text)})
}

func (h *httpHandler) handleCopyMarkdown(c *gin.Context) {
	var request contentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	markdown, err := export.Markdown(*request.Content)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "parse_failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markdown": markdown})
}

type uploadResponsePayload struct {
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Mode        string `json:"mode"`
	Extracted   bool   `json:"extracted"`
	Text        string `json:"text,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	maxBytes := h.uploads.MaxBytes()
	if c.Request.ContentLength > maxBytes+multipartOverheadBytes {
		h.rejectOversize(c, maxBytes)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverheadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectOversize(c, maxBytes)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}

	result, err := h.uploads.Intake(c.Request.Context(), uploads.Upload{
		Name: header.Filename,
		Size: header.Size,
		Mode: uploads.ParseMode(trimmedForm(c, "mode")),
		Open: func() (io.ReadCloser, error) { return header.Open() },
	})
	switch {
	case errors.Is(err, uploads.ErrOversizeInput):
		h.rejectOversize(c, maxBytes)
		return
	case errors.Is(err, uploads.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":   "unsupported_type",
			"allowed": uploads.AllowedExtensions(),
		})
		return
	case errors.Is(err, uploads.ErrMissingFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	case errors.Is(err, uploads.ErrExtractionFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "extraction_failed"})
		return
	case err != nil:
		h.logger.Error("upload intake failed", zap.String("name", header.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	c.JSON(http.StatusOK, uploadResponsePayload{
		Name:        result.Name,
		Extension:   result.Extension,
		Size:        result.Size,
		ContentType: result.ContentType,
		Mode:        string(result.Mode),
		Extracted:   result.Extracted,
		Text:        result.Text,
		Width:       result.Width,
		Height:      result.Height,
	})
}

func (h *httpHandler) rejectOversize(c *gin.Context, maxBytes int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":   "oversize_input",
		"message": fmt.Sprintf("File size exceeds the %d MB limit.", maxBytes/(1024*1024)),
	})
}
