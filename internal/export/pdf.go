package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/richtext"
	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	defaultPageSize        = "A4"
	defaultMarginMM        = 10
	defaultRasterScale     = 3
	defaultViewportWidthPx = 794
	defaultFontFamily      = "Calibri, sans-serif"
	defaultFontSize        = "14px"
	rasterImageName        = "snapshot"
	layoutEpsilon          = 1e-6
)

var (
	// ErrInvalidPageSpec indicates page geometry that leaves no printable area.
	ErrInvalidPageSpec = errors.New("export: invalid page specification")
	// ErrInvalidRaster indicates a rasterizer result with no usable pixels.
	ErrInvalidRaster = errors.New("export: invalid raster image")
)

var pageSizes = map[string][2]float64{
	"A3":     {297, 420},
	"A4":     {210, 297},
	"A5":     {148, 210},
	"LETTER": {215.9, 279.4},
	"LEGAL":  {215.9, 355.6},
}

// PageSpec describes the printed page and the capture that fills it.
type PageSpec struct {
	Size            string
	WidthMM         float64
	HeightMM        float64
	MarginMM        float64
	Scale           float64
	ViewportWidthPx int
	FontFamily      string
	FontSize        string
}

func (p PageSpec) withDefaults() PageSpec {
	if p.Size == "" {
		p.Size = defaultPageSize
	}
	if p.WidthMM <= 0 || p.HeightMM <= 0 {
		dims, ok := pageSizes[strings.ToUpper(p.Size)]
		if !ok {
			dims = pageSizes[defaultPageSize]
		}
		p.WidthMM, p.HeightMM = dims[0], dims[1]
	}
	if p.MarginMM <= 0 {
		p.MarginMM = defaultMarginMM
	}
	if p.Scale <= 0 {
		p.Scale = defaultRasterScale
	}
	if p.ViewportWidthPx <= 0 {
		p.ViewportWidthPx = defaultViewportWidthPx
	}
	if p.FontFamily == "" {
		p.FontFamily = defaultFontFamily
	}
	if p.FontSize == "" {
		p.FontSize = defaultFontSize
	}
	return p
}

// KnownPageSize reports whether name is a supported page size.
func KnownPageSize(name string) bool {
	_, ok := pageSizes[strings.ToUpper(name)]
	return ok
}

// Placement positions the full raster on one page.
type Placement struct {
	Page   int
	ImageY float64
}

// Plan is the page layout for one raster image, in millimetres.
type Plan struct {
	PageWidth     float64
	PageHeight    float64
	Margin        float64
	ImageX        float64
	ImageWidth    float64
	ImageHeight   float64
	ContentHeight float64
	Placements    []Placement
}

// Layout scales the image to the printable width and slices it across as many
// pages as its height needs. Page i shows the image shifted up by i content heights.
func Layout(imageWidthPx, imageHeightPx int, page PageSpec) (Plan, error) {
	if imageWidthPx <= 0 || imageHeightPx <= 0 {
		return Plan{}, fmt.Errorf("%w: %dx%d", ErrInvalidRaster, imageWidthPx, imageHeightPx)
	}
	contentWidth := page.WidthMM - 2*page.MarginMM
	contentHeight := page.HeightMM - 2*page.MarginMM
	if contentWidth <= 0 || contentHeight <= 0 {
		return Plan{}, fmt.Errorf("%w: %.1fx%.1fmm with %.1fmm margin", ErrInvalidPageSpec, page.WidthMM, page.HeightMM, page.MarginMM)
	}

	imageHeight := float64(imageHeightPx) * contentWidth / float64(imageWidthPx)
	pages := int(math.Ceil(imageHeight/contentHeight - layoutEpsilon))
	if pages < 1 {
		pages = 1
	}

	plan := Plan{
		PageWidth:     page.WidthMM,
		PageHeight:    page.HeightMM,
		Margin:        page.MarginMM,
		ImageX:        page.MarginMM,
		ImageWidth:    contentWidth,
		ImageHeight:   imageHeight,
		ContentHeight: contentHeight,
		Placements:    make([]Placement, 0, pages),
	}
	for i := 0; i < pages; i++ {
		plan.Placements = append(plan.Placements, Placement{
			Page:   i + 1,
			ImageY: page.MarginMM - float64(i)*contentHeight,
		})
	}
	return plan, nil
}

type pdfRenderer struct {
	rasterizer Rasterizer
	page       PageSpec
}

func (r *pdfRenderer) newDocument() *fpdf.Fpdf {
	document := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: r.page.WidthMM, Ht: r.page.HeightMM},
	})
	document.SetCreator("lexdraft", true)
	document.SetMargins(r.page.MarginMM, r.page.MarginMM, r.page.MarginMM)
	return document
}

// render rasterizes the styled snapshot and places the image page by page.
func (r *pdfRenderer) render(ctx context.Context, content string) ([]byte, error) {
	root, err := richtext.Parse(content)
	if err != nil {
		return nil, err
	}
	if root.IsBlank() {
		return nil, ErrEmptyDocument
	}
	if r.rasterizer == nil {
		return nil, ErrRasterizerUnavailable
	}

	document, err := printDocument(content, r.page)
	if err != nil {
		return nil, err
	}
	viewportHeight := int(math.Round(float64(r.page.ViewportWidthPx) * r.page.HeightMM / r.page.WidthMM))
	raster, err := r.rasterizer.Rasterize(ctx, document, RasterOptions{
		ViewportWidthPx:  r.page.ViewportWidthPx,
		ViewportHeightPx: viewportHeight,
		Scale:            r.page.Scale,
	})
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}

	imageConfig, err := png.DecodeConfig(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRaster, err)
	}
	plan, err := Layout(imageConfig.Width, imageConfig.Height, r.page)
	if err != nil {
		return nil, err
	}

	pdf := r.newDocument()
	pdf.SetAutoPageBreak(false, 0)
	options := fpdf.ImageOptions{ImageType: "PNG", AllowNegativePosition: true}
	pdf.RegisterImageOptionsReader(rasterImageName, options, bytes.NewReader(raster))
	for _, placement := range plan.Placements {
		pdf.AddPage()
		pdf.ClipRect(plan.ImageX, plan.Margin, plan.ImageWidth, plan.ContentHeight, false)
		pdf.ImageOptions(rasterImageName, plan.ImageX, placement.ImageY, plan.ImageWidth, plan.ImageHeight, false, options, 0, "")
		pdf.ClipEnd()
	}

	data, err := outputPDF(pdf)
	if err != nil {
		return nil, err
	}
	if err := validatePDF(data, len(plan.Placements)); err != nil {
		return nil, err
	}
	return data, nil
}

// fallback writes a text-only document that needs no rasterizer.
func (r *pdfRenderer) fallback(content string) ([]byte, error) {
	lines := fallbackLines(content)
	pdf := r.newDocument()
	pdf.SetAutoPageBreak(true, r.page.MarginMM)
	pdf.AddPage()
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(255, 0, 0)
	pdf.MultiCell(0, 6, translate(lines[0]), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 6, translate(lines[1]), "", "L", false)
	pdf.Ln(2)
	pdf.MultiCell(0, 5, translate(lines[2]), "", "L", false)

	return outputPDF(pdf)
}

func outputPDF(pdf *fpdf.Fpdf) ([]byte, error) {
	var buffer bytes.Buffer
	if err := pdf.Output(&buffer); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buffer.Bytes(), nil
}

// validatePDF re-reads the assembled document and checks its page count.
func validatePDF(data []byte, wantPages int) error {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return fmt.Errorf("validate pdf: %w", err)
	}
	if ctx.PageCount != wantPages {
		return fmt.Errorf("validate pdf: %d pages, want %d", ctx.PageCount, wantPages)
	}
	return nil
}

// PageCount reports the number of pages in a PDF document.
func PageCount(data []byte) (int, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return ctx.PageCount, nil
}
