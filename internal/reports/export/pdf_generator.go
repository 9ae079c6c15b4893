package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFGenerator renders tables as paginated PDF documents
type PDFGenerator struct {
	options PDFOptions
}

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize       string     `json:"page_size"`   // A4, Letter, Legal
	Orientation    string     `json:"orientation"` // portrait, landscape
	Author         string     `json:"author,omitempty"`
	DateFormat     string     `json:"date_format"`
	IncludePageNum bool       `json:"include_page_num"`
	HeaderColor    PDFColor   `json:"header_color"`
	AlternateRows  bool       `json:"alternate_rows"`
	AlternateColor PDFColor   `json:"alternate_color"`
	FontFamily     string     `json:"font_family"`
	FontSize       float64    `json:"font_size"`
	HeaderFontSize float64    `json:"header_font_size"`
	TitleFontSize  float64    `json:"title_font_size"`
	Margins        PDFMargins `json:"margins"`
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// PDFMargins represents page margins
type PDFMargins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		Orientation:    "landscape",
		DateFormat:     "Jan 2, 2006 15:04",
		IncludePageNum: true,
		HeaderColor:    PDFColor{R: 68, G: 114, B: 196},
		AlternateRows:  true,
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		FontFamily:     "Arial",
		FontSize:       9,
		HeaderFontSize: 10,
		TitleFontSize:  16,
		Margins:        PDFMargins{Left: 15, Right: 15, Top: 20, Bottom: 20},
	}
}

// NewPDFGenerator creates a new PDF generator
func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	return &PDFGenerator{options: options}
}

// pdfDoc holds per-document state; gofpdf documents are single use
type pdfDoc struct {
	pdf    *gofpdf.Fpdf
	opts   PDFOptions
	tr     func(string) string
	widths []float64
}

// Export renders t as PDF bytes
func (g *PDFGenerator) Export(t *Table) ([]byte, error) {
	orientation := "P"
	if g.options.Orientation == "landscape" {
		orientation = "L"
	}

	pdf := gofpdf.New(orientation, "mm", g.options.PageSize, "")
	pdf.SetMargins(g.options.Margins.Left, g.options.Margins.Top, g.options.Margins.Right)
	pdf.SetAutoPageBreak(true, g.options.Margins.Bottom)
	pdf.SetTitle(t.Title, true)
	if g.options.Author != "" {
		pdf.SetAuthor(g.options.Author, true)
	}

	d := &pdfDoc{pdf: pdf, opts: g.options, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if g.options.IncludePageNum {
		d.setFooter()
	}

	pdf.AddPage()
	d.addTitle(t.Title, t.GeneratedAt)

	if len(t.Headers) == 0 {
		d.addNote("No columns to display")
	} else {
		d.widths = d.columnWidths(t)
		d.addHeader(t.Headers)
		if len(t.Rows) == 0 {
			d.addNote("No data")
		}
		d.addRows(t)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *pdfDoc) addTitle(title string, generated time.Time) {
	d.pdf.SetFont(d.opts.FontFamily, "B", d.opts.TitleFontSize)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.CellFormat(0, 10, d.tr(title), "", 1, "C", false, 0, "")

	if generated.IsZero() {
		generated = time.Now()
	}
	d.pdf.SetFont(d.opts.FontFamily, "", d.opts.FontSize)
	d.pdf.SetTextColor(128, 128, 128)
	d.pdf.CellFormat(0, 6, "Generated: "+generated.Format(d.opts.DateFormat), "", 1, "R", false, 0, "")
	d.pdf.Ln(6)
}

func (d *pdfDoc) addNote(msg string) {
	d.pdf.SetFont(d.opts.FontFamily, "I", d.opts.FontSize)
	d.pdf.SetTextColor(128, 128, 128)
	d.pdf.CellFormat(0, 8, msg, "", 1, "C", false, 0, "")
}

// columnWidths sizes columns to content and scales them down to fit the page
func (d *pdfDoc) columnWidths(t *Table) []float64 {
	pageWidth, _ := d.pdf.GetPageSize()
	available := pageWidth - d.opts.Margins.Left - d.opts.Margins.Right

	widths := make([]float64, len(t.Headers))
	d.pdf.SetFont(d.opts.FontFamily, "B", d.opts.HeaderFontSize)
	for i, h := range t.Headers {
		widths[i] = d.pdf.GetStringWidth(d.tr(h)) + 4
	}

	// Sample the first 100 rows
	d.pdf.SetFont(d.opts.FontFamily, "", d.opts.FontSize)
	for _, row := range t.Rows[:min(len(t.Rows), 100)] {
		for i := range widths {
			if i >= len(row) {
				break
			}
			if w := d.pdf.GetStringWidth(d.tr(row[i])) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > available {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

func (d *pdfDoc) addHeader(headers []string) {
	c := d.opts.HeaderColor
	d.pdf.SetFont(d.opts.FontFamily, "B", d.opts.HeaderFontSize)
	d.pdf.SetFillColor(c.R, c.G, c.B)
	d.pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		d.pdf.CellFormat(d.widths[i], 8, d.fit(h, d.widths[i]), "1", 0, "C", true, 0, "")
	}
	d.pdf.Ln(-1)
	d.pdf.SetFont(d.opts.FontFamily, "", d.opts.FontSize)
	d.pdf.SetTextColor(0, 0, 0)
}

func (d *pdfDoc) addRows(t *Table) {
	_, pageHeight := d.pdf.GetPageSize()
	for r, row := range t.Rows {
		if d.pdf.GetY()+7 > pageHeight-d.opts.Margins.Bottom {
			d.pdf.AddPage()
			d.addHeader(t.Headers)
		}

		if d.opts.AlternateRows && r%2 == 1 {
			c := d.opts.AlternateColor
			d.pdf.SetFillColor(c.R, c.G, c.B)
		} else {
			d.pdf.SetFillColor(255, 255, 255)
		}

		for i, w := range d.widths {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			d.pdf.CellFormat(w, 7, d.fit(val, w), "1", 0, "L", true, 0, "")
		}
		d.pdf.Ln(-1)
	}
}

// fit truncates s with an ellipsis so it fits in a cell of width w
func (d *pdfDoc) fit(s string, w float64) string {
	s = d.tr(s)
	if d.pdf.GetStringWidth(s)+2 <= w {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && d.pdf.GetStringWidth(string(runes)+"...")+2 > w {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func (d *pdfDoc) setFooter() {
	d.pdf.SetFooterFunc(func() {
		d.pdf.SetY(-15)
		d.pdf.SetFont(d.opts.FontFamily, "", 8)
		d.pdf.SetTextColor(128, 128, 128)
		d.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", d.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}
