package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Format identifies an export target.
type Format string

const (
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

const (
	// DefaultFileName is used when the caller supplies no file name.
	DefaultFileName = "Drafted Notice"
	// FallbackNotice opens every fallback document.
	FallbackNotice = "Error generating document. Please try again or use a different format."
	// FallbackIntro precedes the excerpt in fallback documents.
	FallbackIntro = "The original content is included below:"
)

var (
	// ErrConversionFailure signals that the returned data is fallback output.
	ErrConversionFailure = errors.New("export: conversion failure")
	// ErrUnsupportedFormat indicates an unknown export target.
	ErrUnsupportedFormat = errors.New("export: unsupported format")
	// ErrExportPending indicates that an export for the same key has not settled yet.
	ErrExportPending = errors.New("export: export already pending")
	// ErrEmptyDocument indicates that the snapshot has no visible content to render.
	ErrEmptyDocument = errors.New("export: document has no renderable content")
)

// ParseFormat maps a user-facing format name to a Format.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "docx", "word":
		return FormatDOCX, nil
	case "pdf":
		return FormatPDF, nil
	case "txt", "text":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// FileNameFor returns a download name carrying the format extension exactly once.
func FileNameFor(name string, format Format) string {
	trimmed := strings.TrimSpace(strings.NewReplacer("/", "-", "\\", "-", "\"", "'").Replace(name))
	if strings.EqualFold(filepath.Ext(trimmed), format.Extension()) {
		trimmed = strings.TrimSpace(trimmed[:len(trimmed)-len(format.Extension())])
	}
	if trimmed == "" {
		trimmed = DefaultFileName
	}
	return trimmed + format.Extension()
}

// Request describes one export of a snapshot.
type Request struct {
	// Key serializes exports that share it; empty disables serialization.
	Key      string
	Content  string
	Format   Format
	FileName string
}

// Result always carries downloadable data. Err reports whether it is fallback output.
type Result struct {
	FileName    string
	Format      Format
	ContentType string
	Data        []byte
	Fallback    bool
	Err         error
}

type renderFunc func(ctx context.Context, content string) ([]byte, error)

type converter struct {
	render   renderFunc
	fallback func(content string) ([]byte, error)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Rasterizer Rasterizer
	Page       PageSpec
	Logger     *zap.Logger
}

// Pipeline renders snapshots into every supported format.
type Pipeline struct {
	converters map[Format]converter
	guard      *exportGuard
	logger     *zap.Logger
}

func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	page := cfg.Page.withDefaults()
	pdf := &pdfRenderer{rasterizer: cfg.Rasterizer, page: page}

	return &Pipeline{
		converters: map[Format]converter{
			FormatDOCX:     {render: renderDOCX, fallback: fallbackDOCX},
			FormatPDF:      {render: pdf.render, fallback: pdf.fallback},
			FormatText:     {render: renderText, fallback: fallbackText},
			FormatMarkdown: {render: renderMarkdownBytes, fallback: fallbackMarkdown},
		},
		guard:  newExportGuard(),
		logger: logger,
	}
}

// Export renders request.Content. The returned error is non-nil only when the
// request is rejected before rendering; conversion problems surface as fallback
// data with Result.Err set.
func (p *Pipeline) Export(ctx context.Context, request Request) (Result, error) {
	conv, ok := p.converters[request.Format]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, request.Format)
	}
	release, err := p.guard.acquire(request.Key)
	if err != nil {
		return Result{}, err
	}
	defer release()

	result := Result{
		FileName:    FileNameFor(request.FileName, request.Format),
		Format:      request.Format,
		ContentType: request.Format.ContentType(),
	}

	data, renderErr := safeRender(ctx, conv.render, request.Content)
	if renderErr == nil {
		result.Data = data
		return result, nil
	}

	p.logger.Warn("export conversion failed, serving fallback",
		zap.String("format", string(request.Format)),
		zap.String("key", request.Key),
		zap.Error(renderErr))
	result.Fallback = true
	result.Err = fmt.Errorf("%w: %v", ErrConversionFailure, renderErr)

	fallbackData, fallbackErr := safeRender(ctx, func(context.Context, string) ([]byte, error) {
		return conv.fallback(request.Content)
	}, request.Content)
	if fallbackErr != nil {
		p.logger.Error("export fallback failed, serving plain text",
			zap.String("format", string(request.Format)),
			zap.Error(fallbackErr))
		fallbackData, _ = fallbackText(request.Content)
		result.Format = FormatText
		result.FileName = FileNameFor(strings.TrimSuffix(result.FileName, request.Format.Extension()), FormatText)
		result.ContentType = FormatText.ContentType()
	}
	result.Data = fallbackData
	return result, nil
}

func safeRender(ctx context.Context, render renderFunc, content string) (data []byte, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			data = nil
			err = fmt.Errorf("converter panic: %v", recovered)
		}
	}()
	return render(ctx, content)
}

// fallbackLines returns the notice, intro and excerpt shared by all fallback outputs.
func fallbackLines(content string) []string {
	return []string{FallbackNotice, FallbackIntro, richtext.Excerpt(content, richtext.ExcerptLimit)}
}

// exportGuard admits one export per key. Slots are only held while an export
// runs, so a released key leaves nothing behind.
type exportGuard struct {
	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

func newExportGuard() *exportGuard {
	return &exportGuard{slots: make(map[string]*semaphore.Weighted)}
}

func (g *exportGuard) acquire(key string) (func(), error) {
	if key == "" {
		return func() {}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[key]
	if !ok {
		slot = semaphore.NewWeighted(1)
		g.slots[key] = slot
	}
	if !slot.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %s", ErrExportPending, key)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			slot.Release(1)
			if g.slots[key] == slot {
				delete(g.slots, key)
			}
		})
	}, nil
}
