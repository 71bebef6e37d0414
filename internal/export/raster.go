package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrRasterizerUnavailable indicates that no rasterizer is configured for PDF export.
var ErrRasterizerUnavailable = errors.New("export: rasterizer unavailable")

// RasterOptions controls how a print document is captured.
type RasterOptions struct {
	ViewportWidthPx  int
	ViewportHeightPx int
	Scale            float64
}

// Rasterizer renders a standalone HTML document into a full-height PNG image.
type Rasterizer interface {
	Rasterize(ctx context.Context, document string, options RasterOptions) ([]byte, error)
}

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
html, body { margin: 0; padding: 0; background: #FFFFFF; }
.pdf-export { font-family: {{.FontFamily}}; font-size: {{.FontSize}}; line-height: 1.5; padding: 40px; color: #000; }
.pdf-export ul[data-type="taskList"] { list-style: none; }
</style>
</head>
<body><div class="pdf-export">{{.Content}}</div></body>
</html>`))

type printData struct {
	FontFamily template.CSS
	FontSize   template.CSS
	Content    template.HTML
}

// printDocument wraps sanitized snapshot markup in the styled print container.
func printDocument(content string, page PageSpec) (string, error) {
	var buffer bytes.Buffer
	err := printTemplate.Execute(&buffer, printData{
		FontFamily: template.CSS(page.FontFamily),
		FontSize:   template.CSS(page.FontSize),
		Content:    template.HTML(richtext.Sanitize(content)),
	})
	if err != nil {
		return "", fmt.Errorf("render print document: %w", err)
	}
	return buffer.String(), nil
}

// BrowserRasterizerConfig selects the Chrome instance used for captures.
type BrowserRasterizerConfig struct {
	// ControlURL connects to a running browser; empty launches a local headless one.
	ControlURL string
	Logger     *zap.Logger
}

// BrowserRasterizer captures print documents with headless Chrome.
type BrowserRasterizer struct {
	mu       sync.Mutex
	cfg      BrowserRasterizerConfig
	browser  *rod.Browser
	socket   *cdp.WebSocket
	launched *launcher.Launcher
	logger   *zap.Logger
}

func NewBrowserRasterizer(cfg BrowserRasterizerConfig) *BrowserRasterizer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserRasterizer{cfg: cfg, logger: logger}
}

func (r *BrowserRasterizer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.cfg.ControlURL
	var launched *launcher.Launcher
	if controlURL == "" {
		launched = launcher.New().Headless(true)
		launchedURL, err := launched.Launch()
		if err != nil {
			launched.Kill()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = launchedURL
	}

	socket := &cdp.WebSocket{}
	if err := socket.Connect(context.Background(), controlURL, nil); err != nil {
		if launched != nil {
			launched.Kill()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	browser := rod.New().Client(cdp.New().Start(socket))
	if err := browser.Connect(); err != nil {
		_ = socket.Close()
		if launched != nil {
			launched.Kill()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	r.browser = browser
	r.socket = socket
	r.launched = launched
	r.logger.Info("rasterizer browser connected", zap.Bool("launched", launched != nil))
	return browser, nil
}

func (r *BrowserRasterizer) Rasterize(ctx context.Context, document string, options RasterOptions) ([]byte, error) {
	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	target, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			r.logger.Warn("failed to close rasterizer page", zap.Error(closeErr))
		}
	}()
	page := target.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             options.ViewportWidthPx,
		Height:            options.ViewportHeightPx,
		DeviceScaleFactor: options.Scale,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetDocumentContent(document); err != nil {
		return nil, fmt.Errorf("set document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	image, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return image, nil
}

// Close shuts down a browser this rasterizer launched. A browser reached through
// ControlURL is only disconnected and keeps running.
func (r *BrowserRasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil && r.launched != nil {
		err = r.browser.Close()
	}
	if r.socket != nil {
		if closeErr := r.socket.Close(); closeErr != nil && err == nil && r.launched == nil {
			err = closeErr
		}
	}
	if r.launched != nil {
		r.launched.Kill()
	}
	r.browser = nil
	r.socket = nil
	r.launched = nil
	return err
}
