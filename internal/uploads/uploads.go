package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	"go.uber.org/zap"
)

// DefaultMaxBytes is the upload ceiling applied when none is configured.
const DefaultMaxBytes int64 = 100 * 1024 * 1024

var (
	// ErrOversizeInput indicates an upload larger than the configured ceiling.
	ErrOversizeInput = errors.New("uploads: file exceeds size limit")
	// ErrUnsupportedType indicates an upload whose extension is not accepted.
	ErrUnsupportedType = errors.New("uploads: unsupported file type")
	// ErrExtractionFailed indicates that an accepted file could not be read as text.
	ErrExtractionFailed = errors.New("uploads: text extraction failed")
	// ErrMissingFile indicates an upload without a name or reader.
	ErrMissingFile = errors.New("uploads: file is required")
)

// Mode selects what intake does with an accepted file.
type Mode string

const (
	// ModeExtract reads the file's text.
	ModeExtract Mode = "extract"
	// ModeContext attaches the file as conversation context without reading it.
	ModeContext Mode = "context"
)

// ParseMode maps a form value to a Mode. Empty selects ModeExtract.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeContext)) {
		return ModeContext
	}
	return ModeExtract
}

type extractor func(data []byte) (string, error)

var extractors = map[string]extractor{
	".txt":  extractPlainText,
	".md":   extractPlainText,
	".html": extractHTML,
	".docx": extractDOCX,
	".pdf":  extractPDF,
	".doc":  nil,
	".png":  nil,
	".jpg":  nil,
	".jpeg": nil,
	".gif":  nil,
}

// AllowedExtensions lists accepted file extensions.
func AllowedExtensions() []string {
	return []string{".pdf", ".txt", ".md", ".doc", ".docx", ".html", ".png", ".jpg", ".jpeg", ".gif"}
}

// Upload describes one received file. Open is only called once the upload has
// passed the size and type checks.
type Upload struct {
	Name string
	Size int64
	Mode Mode
	Open func() (io.ReadCloser, error)
}

// Result describes an accepted upload.
type Result struct {
	Name        string
	Extension   string
	Size        int64
	ContentType string
	Mode        Mode
	Text        string
	Extracted   bool
	Width       int
	Height      int
}

type Config struct {
	MaxBytes int64
	Logger   *zap.Logger
}

// Service validates and reads uploaded files.
type Service struct {
	maxBytes int64
	logger   *zap.Logger
}

func NewService(cfg Config) *Service {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{maxBytes: maxBytes, logger: logger}
}

// MaxBytes reports the configured upload ceiling.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Intake checks the upload against the ceiling and accepted types, then reads
// its text unless the upload is context-only.
func (s *Service) Intake(ctx context.Context, upload Upload) (Result, error) {
	if upload.Size > s.maxBytes {
		s.logger.Info("upload rejected",
			zap.String("name", upload.Name),
			zap.Int64("size", upload.Size),
			zap.Int64("max_bytes", s.maxBytes))
		return Result{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrOversizeInput, upload.Size, s.maxBytes)
	}
	if strings.TrimSpace(upload.Name) == "" || upload.Open == nil {
		return Result{}, ErrMissingFile
	}

	extension := strings.ToLower(filepath.Ext(upload.Name))
	extract, ok := extractors[extension]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedType, extension)
	}

	mode := upload.Mode
	if mode == "" {
		mode = ModeExtract
	}
	result := Result{
		Name:        filepath.Base(upload.Name),
		Extension:   extension,
		Size:        upload.Size,
		ContentType: contentTypeFor(extension),
		Mode:        mode,
	}
	if mode == ModeContext {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	data, err := s.read(upload)
	if err != nil {
		return Result{}, err
	}
	result.Size = int64(len(data))

	if isImage(extension) {
		if config, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			result.Width, result.Height = config.Width, config.Height
		}
	}
	if extract == nil {
		return result, nil
	}

	text, err := extract(data)
	if err != nil {
		s.logger.Warn("upload extraction failed", zap.String("name", result.Name), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	result.Text = text
	result.Extracted = true
	return result, nil
}

// read loads the file, enforcing the ceiling even when the declared size was wrong.
func (s *Service) read(upload Upload) ([]byte, error) {
	reader, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrOversizeInput, s.maxBytes)
	}
	return data, nil
}

func isImage(extension string) bool {
	switch extension {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	default:
		return false
	}
}

func contentTypeFor(extension string) string {
	switch extension {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if contentType := mime.TypeByExtension(extension); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

func extractPlainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid utf-8")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func extractHTML(data []byte) (string, error) {
	markup, err := extractPlainText(data)
	if err != nil {
		return "", err
	}
	root, err := richtext.Parse(markup)
	if err != nil {
		return "", err
	}
	return richtext.PlainText(root), nil
}
