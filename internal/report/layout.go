// Package report lays out the clinical report and renders it to PDF and HTML.
//
// Layout runs in two passes. Pass one assigns every block a page and a vertical
// offset using estimated heights. Pass two stamps page numbers once the total
// page count is known.
package report

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/heatmap"
)

// A4 geometry in millimetres
const (
	PageWidth     = 210.0
	PageHeight    = 297.0
	Margin        = 14.0
	HeaderHeight  = 45.0
	FirstPageTop  = 55.0
	PageTop       = 20.0
	ContentBottom = 277.0
	FooterY       = PageHeight - 8
)

// Block height estimates in millimetres
const (
	headingHeight   = 11.0
	rowHeight       = 7.0
	blockGap        = 6.0
	resultBoxHeight = 35.0
	barHeight       = 14.0
	recLineHeight   = 5.0
	recItemGap      = 3.0
	noteLineHeight  = 4.5
)

// WrapWidth is the fixed character width for recommendation and disclaimer text
const WrapWidth = 95

// Title and Disclaimer are fixed report text
const (
	Title      = "ADHD Detection System"
	Subtitle   = "AI-Powered Neurodevelopmental Assessment Report"
	FooterText = "ADHD Detection System - Confidential Medical Report"
	Disclaimer = "This report is a screening tool and does not constitute a clinical diagnosis. " +
		"Results should be interpreted by a qualified healthcare professional within the context of " +
		"comprehensive clinical evaluation, patient history, and standardized diagnostic criteria (DSM-5, ICD-11)."
)

// Input is everything the report needs. Optional parts may be nil or empty.
type Input struct {
	UserInfo         domain.UserInfo
	Result           domain.AssessmentResult
	RiskLevel        domain.RiskLevel
	Recommendations  []domain.Recommendation
	Channels         domain.ChannelMap
	ConfidenceScores map[string]float64
	Heatmap          *heatmap.Heatmap
	GeneratedAt      time.Time
}

// BlockKind identifies a report section
type BlockKind int

const (
	BlockHeader BlockKind = iota
	BlockPatient
	BlockResult
	BlockBreakdown
	BlockEEG
	BlockRecommendation
	BlockDisclaimer
)

// String returns the section name
func (k BlockKind) String() string {
	switch k {
	case BlockHeader:
		return "header"
	case BlockPatient:
		return "patient"
	case BlockResult:
		return "result"
	case BlockBreakdown:
		return "breakdown"
	case BlockEEG:
		return "eeg"
	case BlockRecommendation:
		return "recommendation"
	case BlockDisclaimer:
		return "disclaimer"
	}
	return fmt.Sprintf("block(%d)", int(k))
}

// BarSegment is one class's share of the confidence bar
type BarSegment struct {
	Label    string
	Fraction float64
	Color    heatmap.Color
}

// EEGCell is a tinted channel reading
type EEGCell struct {
	Channel string
	Value   string
	Tint    heatmap.Color
}

// EEGRow pairs a left and an optional right reading
type EEGRow struct {
	Left  EEGCell
	Right *EEGCell
}

// Block is one indivisible section of the report
type Block struct {
	Kind    BlockKind
	Heading string
	Height  float64

	// Patient and breakdown tables
	Rows [][2]string

	// Result
	Prediction string
	RiskLevel  domain.RiskLevel
	Confidence string
	Bar        []BarSegment

	// EEG table
	EEGRows []EEGRow

	// Recommendation item and disclaimer text
	Number   int
	Category domain.RecommendationCategory
	Lines    []string

	// Header
	GeneratedAt time.Time
}

// Placed is a block positioned on a page
type Placed struct {
	Block
	Y float64
}

// Page is a laid out page; Number, Total and Footer are set by Stamp
type Page struct {
	Number int
	Total  int
	Footer string
	Blocks []Placed
}

// Blocks builds the section sequence in its fixed order
func Blocks(in Input) []Block {
	blocks := []Block{headerBlock(in), patientBlock(in.UserInfo), resultBlock(in)}
	if len(in.ConfidenceScores) > 0 {
		blocks = append(blocks, breakdownBlock(in.ConfidenceScores))
	}
	if len(in.Channels) > 0 {
		blocks = append(blocks, eegBlock(in.Channels, in.Heatmap))
	}
	blocks = append(blocks, recommendationBlocks(in.Recommendations)...)
	return append(blocks, disclaimerBlock())
}

// Layout is pass one: it places blocks top to bottom, starting a new page
// whenever a block would cross ContentBottom on a page that already has content.
func Layout(in Input) []Page {
	return Paginate(Blocks(in))
}

// Paginate places pre-built blocks. A leading header block occupies the top of page one.
func Paginate(blocks []Block) []Page {
	pages := []Page{{}}
	y := PageTop
	content := 0

	if len(blocks) > 0 && blocks[0].Kind == BlockHeader {
		pages[0].Blocks = append(pages[0].Blocks, Placed{Block: blocks[0], Y: 0})
		blocks = blocks[1:]
		y = FirstPageTop
	}

	for _, b := range blocks {
		if y+b.Height > ContentBottom && content > 0 {
			pages = append(pages, Page{})
			y = PageTop
			content = 0
		}
		cur := &pages[len(pages)-1]
		cur.Blocks = append(cur.Blocks, Placed{Block: b, Y: y})
		y += b.Height
		content++
	}
	return pages
}

// Stamp is pass two: it numbers every page and sets the footer text
func Stamp(pages []Page) []Page {
	total := len(pages)
	for i := range pages {
		pages[i].Number = i + 1
		pages[i].Total = total
		pages[i].Footer = fmt.Sprintf("%s - Page %d of %d", FooterText, i+1, total)
	}
	return pages
}

// Build runs both passes
func Build(in Input) []Page {
	return Stamp(Layout(in))
}

func headerBlock(in Input) Block {
	at := in.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Block{Kind: BlockHeader, Heading: Title, Height: HeaderHeight, GeneratedAt: at}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func patientBlock(u domain.UserInfo) Block {
	age := ""
	if u.Age > 0 {
		age = fmt.Sprintf("%d", u.Age)
	}
	rows := [][2]string{
		{"Patient ID", orNA(strings.TrimSpace(u.PatientID))},
		{"Age", orNA(age)},
		{"Gender", orNA(string(u.Gender))},
		{"Education", orNA(string(u.Education))},
		{"Occupation", orNA(u.Occupation)},
		{"Referring Physician", orNA(u.ReferringPhysician)},
	}
	return Block{
		Kind:    BlockPatient,
		Heading: "Patient Information",
		Rows:    rows,
		Height:  headingHeight + float64(len(rows))*rowHeight + blockGap,
	}
}

// barPalette colors bar segments in label order
var barPalette = []heatmap.Color{
	{R: 30, G: 58, B: 138},
	{R: 59, G: 130, B: 246},
	{R: 16, G: 185, B: 129},
	{R: 245, G: 158, B: 11},
	{R: 239, G: 68, B: 68},
	{R: 139, G: 92, B: 246},
}

func resultBlock(in Input) Block {
	confidence := "N/A"
	if in.Result.Confidence != nil {
		confidence = fmt.Sprintf("%.1f%%", *in.Result.Confidence)
	}
	b := Block{
		Kind:       BlockResult,
		Heading:    "Assessment Result",
		Prediction: in.Result.Prediction,
		RiskLevel:  in.RiskLevel,
		Confidence: confidence,
		Height:     headingHeight + resultBoxHeight + blockGap,
	}

	scores := domain.AssessmentResult{ConfidenceScores: in.ConfidenceScores}.SortedScores()
	var sum float64
	for _, s := range scores {
		if s.Score > 0 {
			sum += s.Score
		}
	}
	if sum > 0 {
		for i, s := range scores {
			if s.Score <= 0 {
				continue
			}
			b.Bar = append(b.Bar, BarSegment{
				Label:    s.Label,
				Fraction: s.Score / sum,
				Color:    barPalette[i%len(barPalette)],
			})
		}
		b.Height += barHeight
	}
	return b
}

func breakdownBlock(scores map[string]float64) Block {
	sorted := domain.AssessmentResult{ConfidenceScores: scores}.SortedScores()
	rows := make([][2]string, 0, len(sorted))
	for _, s := range sorted {
		rows = append(rows, [2]string{s.Label, fmt.Sprintf("%.1f%%", s.Score)})
	}
	return Block{
		Kind:    BlockBreakdown,
		Heading: "Confidence Breakdown",
		Rows:    rows,
		Height:  headingHeight + float64(len(rows)+1)*rowHeight + blockGap,
	}
}

func eegBlock(channels domain.ChannelMap, h *heatmap.Heatmap) Block {
	if h == nil {
		h = heatmap.Build(channels)
	}
	ordered := channels.Ordered()
	cell := func(cv domain.ChannelValue) EEGCell {
		return EEGCell{
			Channel: cv.Channel,
			Value:   fmt.Sprintf("%.0f", math.Round(cv.Value)),
			Tint:    h.ColorFor(cv.Channel),
		}
	}

	half := (len(ordered) + 1) / 2
	rows := make([]EEGRow, half)
	for i := 0; i < half; i++ {
		rows[i].Left = cell(ordered[i])
		if j := i + half; j < len(ordered) {
			right := cell(ordered[j])
			rows[i].Right = &right
		}
	}
	return Block{
		Kind:    BlockEEG,
		Heading: "EEG Channel Data (19-Channel 10-20 System)",
		EEGRows: rows,
		Height:  headingHeight + float64(half+1)*rowHeight + blockGap,
	}
}

func recommendationBlocks(recs []domain.Recommendation) []Block {
	if len(recs) == 0 {
		lines := Wrap("No recommendations available.", WrapWidth)
		return []Block{{
			Kind:    BlockRecommendation,
			Heading: "Clinical Recommendations",
			Lines:   lines,
			Height:  headingHeight + float64(len(lines))*recLineHeight + recItemGap,
		}}
	}

	out := make([]Block, 0, len(recs))
	for i, r := range recs {
		lines := Wrap(fmt.Sprintf("%d. %s", i+1, r.Text()), WrapWidth)
		b := Block{
			Kind:     BlockRecommendation,
			Number:   i + 1,
			Category: r.Category,
			Lines:    lines,
			Height:   float64(len(lines))*recLineHeight + recItemGap,
		}
		// The heading travels with the first item
		if i == 0 {
			b.Heading = "Clinical Recommendations"
			b.Height += headingHeight
		}
		out = append(out, b)
	}
	return out
}

func disclaimerBlock() Block {
	lines := Wrap(Disclaimer, WrapWidth)
	return Block{
		Kind:    BlockDisclaimer,
		Heading: "DISCLAIMER:",
		Lines:   lines,
		Height:  blockGap + 8 + float64(len(lines))*noteLineHeight + blockGap,
	}
}

// Wrap greedily breaks text into lines of at most width characters.
// Words longer than width are split.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = append(cur, w...)
		case len(cur)+1+len(w) <= width:
			cur = append(cur, ' ')
			cur = append(cur, w...)
		default:
			lines = append(lines, string(cur))
			cur = append([]rune(nil), w...)
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename returns ADHD_Report_<id>_<YYYY-MM-DD>.pdf with the id made filesystem safe
func Filename(patientID string, date time.Time) string {
	id := strings.Trim(unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(patientID), "_"), "_")
	if id == "" {
		id = "Unknown"
	}
	return fmt.Sprintf("ADHD_Report_%s_%s.pdf", id, date.Format("2006-01-02"))
}
