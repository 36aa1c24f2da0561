package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/heatmap"
	"github.com/jung-kurt/gofpdf"
)

// ValueHeader labels EEG amplitude columns. It must stay within cp1252 for
// the core fonts.
const ValueHeader = "Value (µV)"

type rgb struct{ r, g, b int }

var (
	navy      = rgb{30, 58, 138}
	accent    = rgb{59, 130, 246}
	bodyText  = rgb{51, 65, 85}
	muted     = rgb{148, 163, 184}
	white     = rgb{255, 255, 255}
	stripe    = rgb{241, 245, 249}
	noteFill  = rgb{255, 251, 235}
	noteEdge  = rgb{251, 191, 36}
	noteText  = rgb{146, 64, 14}
	riskFills = map[domain.RiskLevel]rgb{
		domain.RiskHigh:     {254, 226, 226},
		domain.RiskModerate: {254, 243, 199},
		domain.RiskLow:      {209, 250, 229},
	}
	riskInks = map[domain.RiskLevel]rgb{
		domain.RiskHigh:     {185, 28, 28},
		domain.RiskModerate: {146, 64, 14},
		domain.RiskLow:      {5, 150, 105},
	}
)

// PDFRenderer draws stamped pages with the core Helvetica font
type PDFRenderer struct{}

// NewPDFRenderer creates a PDF renderer
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render writes the document for in to w
func (r *PDFRenderer) Render(w io.Writer, in Input) error {
	pages := Build(in)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(Margin, PageTop, Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(Title, true)
	pdf.SetCreator(Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	d := &drawer{pdf: pdf, tr: tr}
	for _, page := range pages {
		pdf.AddPage()
		for _, pb := range page.Blocks {
			d.block(pb)
		}
		d.footer(page)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return nil
}

// Bytes renders into memory
func (r *PDFRenderer) Bytes(in Input) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type drawer struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func (d *drawer) fill(c rgb) { d.pdf.SetFillColor(c.r, c.g, c.b) }
func (d *drawer) ink(c rgb)  { d.pdf.SetTextColor(c.r, c.g, c.b) }
func (d *drawer) line(c rgb) { d.pdf.SetDrawColor(c.r, c.g, c.b) }

func tint(c heatmap.Color) rgb {
	r, g, b := c.Bytes()
	return rgb{int(r), int(g), int(b)}
}

func (d *drawer) text(x, y, w, h float64, s, align string, filled bool) {
	d.pdf.SetXY(x, y)
	d.pdf.CellFormat(w, h, d.tr(s), "", 0, align, filled, 0, "")
}

func (d *drawer) heading(title string, y float64) {
	d.ink(navy)
	d.pdf.SetFont("Helvetica", "B", 14)
	d.text(Margin, y, PageWidth-2*Margin, 6, title, "L", false)
	d.line(accent)
	d.pdf.SetLineWidth(0.8)
	d.pdf.Line(Margin, y+7, PageWidth-Margin, y+7)
	d.pdf.SetLineWidth(0.2)
}

func (d *drawer) block(pb Placed) {
	switch pb.Kind {
	case BlockHeader:
		d.header(pb.Block)
	case BlockPatient:
		d.heading(pb.Heading, pb.Y)
		d.table(pb.Rows, pb.Y+headingHeight, nil)
	case BlockResult:
		d.result(pb)
	case BlockBreakdown:
		d.heading(pb.Heading, pb.Y)
		d.table(pb.Rows, pb.Y+headingHeight, &[2]string{"Class", "Confidence"})
	case BlockEEG:
		d.eeg(pb)
	case BlockRecommendation:
		d.recommendation(pb)
	case BlockDisclaimer:
		d.disclaimer(pb)
	}
}

func (d *drawer) header(b Block) {
	d.fill(navy)
	d.pdf.Rect(0, 0, PageWidth, HeaderHeight, "F")
	d.ink(white)
	d.pdf.SetFont("Helvetica", "B", 22)
	d.text(0, 12, PageWidth, 10, Title, "C", false)
	d.pdf.SetFont("Helvetica", "", 11)
	d.text(0, 23, PageWidth, 6, Subtitle, "C", false)
	d.pdf.SetFont("Helvetica", "", 9)
	d.text(0, 33, PageWidth, 6, "Report Generated: "+b.GeneratedAt.Format("January 2, 2006 15:04"), "C", false)
}

func (d *drawer) table(rows [][2]string, y float64, head *[2]string) {
	const labelW, valueW = 50.0, 130.0
	d.pdf.SetFont("Helvetica", "", 10)
	if head != nil {
		d.fill(navy)
		d.ink(white)
		d.pdf.SetFont("Helvetica", "B", 10)
		d.text(Margin, y, labelW, rowHeight, head[0], "L", true)
		d.text(Margin+labelW, y, labelW, rowHeight, head[1], "L", true)
		y += rowHeight
	}
	for i, row := range rows {
		valueWidth := valueW
		if head != nil {
			valueWidth = labelW
		}
		filled := head != nil && i%2 == 1
		d.fill(stripe)
		d.ink(navy)
		d.pdf.SetFont("Helvetica", "B", 10)
		d.text(Margin, y, labelW, rowHeight, row[0], "L", filled)
		d.ink(bodyText)
		d.pdf.SetFont("Helvetica", "", 10)
		d.text(Margin+labelW, y, valueWidth, rowHeight, row[1], "L", filled)
		y += rowHeight
	}
}

func (d *drawer) result(pb Placed) {
	d.heading(pb.Heading, pb.Y)
	y := pb.Y + headingHeight

	fillC, ok := riskFills[pb.RiskLevel]
	if !ok {
		fillC = stripe
	}
	inkC, ok := riskInks[pb.RiskLevel]
	if !ok {
		inkC = bodyText
	}
	d.fill(fillC)
	d.pdf.Rect(Margin, y, PageWidth-2*Margin, resultBoxHeight-4, "F")
	d.ink(inkC)
	d.pdf.SetFont("Helvetica", "B", 18)
	d.text(Margin, y+6, PageWidth-2*Margin, 8, "Prediction: "+pb.Prediction, "C", false)
	d.pdf.SetFont("Helvetica", "", 12)
	d.text(Margin, y+18, PageWidth-2*Margin, 6,
		fmt.Sprintf("Risk Level: %s  |  Confidence: %s", pb.RiskLevel.Title(), pb.Confidence), "C", false)

	if len(pb.Bar) == 0 {
		return
	}
	y += resultBoxHeight
	x := Margin
	width := PageWidth - 2*Margin
	d.pdf.SetFont("Helvetica", "B", 7)
	for _, seg := range pb.Bar {
		w := width * seg.Fraction
		d.fill(tint(seg.Color))
		d.pdf.Rect(x, y, w, 6, "F")
		if w > 18 {
			d.ink(white)
			d.text(x, y, w, 6, fmt.Sprintf("%s %.0f%%", seg.Label, seg.Fraction*100), "C", false)
		}
		x += w
	}
}

func (d *drawer) eeg(pb Placed) {
	d.heading(pb.Heading, pb.Y)
	y := pb.Y + headingHeight
	colW := (PageWidth - 2*Margin) / 4

	d.fill(navy)
	d.ink(white)
	d.pdf.SetFont("Helvetica", "B", 9)
	for i, h := range []string{"Channel", ValueHeader, "Channel", ValueHeader} {
		d.text(Margin+float64(i)*colW, y, colW, rowHeight, h, "C", true)
	}
	y += rowHeight

	d.pdf.SetFont("Helvetica", "", 9)
	cell := func(c EEGCell, x float64) {
		d.fill(stripe)
		d.ink(bodyText)
		d.text(x, y, colW, rowHeight, c.Channel, "C", true)
		d.fill(tint(c.Tint))
		d.ink(navy)
		d.text(x+colW, y, colW, rowHeight, c.Value, "C", true)
	}
	for _, row := range pb.EEGRows {
		cell(row.Left, Margin)
		if row.Right != nil {
			cell(*row.Right, Margin+2*colW)
		}
		y += rowHeight
	}
}

func (d *drawer) recommendation(pb Placed) {
	y := pb.Y
	if pb.Heading != "" {
		d.heading(pb.Heading, y)
		y += headingHeight
	}
	d.ink(bodyText)
	d.pdf.SetFont("Helvetica", "", 10)
	for _, l := range pb.Lines {
		d.text(Margin+4, y, PageWidth-2*Margin-4, recLineHeight, l, "L", false)
		y += recLineHeight
	}
}

func (d *drawer) disclaimer(pb Placed) {
	y := pb.Y + blockGap
	h := pb.Height - 2*blockGap
	d.fill(noteFill)
	d.line(noteEdge)
	d.pdf.Rect(Margin, y, PageWidth-2*Margin, h, "FD")
	d.ink(noteText)
	d.pdf.SetFont("Helvetica", "B", 9)
	d.text(Margin+4, y+2, 40, 6, pb.Heading, "L", false)
	d.pdf.SetFont("Helvetica", "", 9)
	ly := y + 8
	for _, l := range pb.Lines {
		d.text(Margin+4, ly, PageWidth-2*Margin-8, noteLineHeight, l, "L", false)
		ly += noteLineHeight
	}
}

func (d *drawer) footer(p Page) {
	d.ink(muted)
	d.pdf.SetFont("Helvetica", "", 8)
	d.text(0, FooterY-3, PageWidth, 6, p.Footer, "C", false)
}
