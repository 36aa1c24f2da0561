package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const previewStyle = "body{font-family:Helvetica,Arial,sans-serif;color:#334155;max-width:900px;margin:0 auto;padding:1rem;} " +
	"h1{background:#1e3a8a;color:#fff;padding:1rem;text-align:center;margin:0;} " +
	"h2{color:#1e3a8a;border-bottom:2px solid #3b82f6;} h3{color:#1e3a8a;font-size:1rem;} " +
	"table{border-collapse:collapse;} th,td{border:1px solid #cbd5e1;padding:0.3rem 0.6rem;} thead th{background:#1e3a8a;color:#fff;} " +
	".bar{display:flex;height:1.2rem;} .bar span{color:#fff;font-size:0.7rem;text-align:center;overflow:hidden;} " +
	".note{background:#fffbeb;border:1px solid #fbbf24;color:#92400e;padding:0.5rem;} " +
	".footer{color:#94a3b8;font-size:0.75rem;text-align:center;} hr{page-break-after:always;}"

// HTMLRenderer converts the laid out pages to an HTML preview via markdown
type HTMLRenderer struct {
	md goldmark.Markdown
}

// NewHTMLRenderer creates an HTML renderer with GFM tables enabled
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

// Render writes a standalone HTML document for in
func (r *HTMLRenderer) Render(w io.Writer, in Input) error {
	markdown := Markdown(Build(in))

	var content bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &content); err != nil {
		return fmt.Errorf("markdown convert: %w", err)
	}
	_, err := io.WriteString(w, "<!doctype html><html><head><meta charset='utf-8'><title>"+Title+"</title>"+
		"<style>"+previewStyle+"</style></head><body>"+content.String()+"</body></html>")
	return err
}

// Markdown renders stamped pages as markdown. Inline HTML is enabled for
// tinted cells, so user supplied text is escaped for both markdown and HTML.
func Markdown(pages []Page) string {
	var b strings.Builder
	var lastCategory domain.RecommendationCategory
	for pi, page := range pages {
		if pi > 0 {
			b.WriteString("\n<hr>\n\n")
		}
		for _, pb := range page.Blocks {
			switch pb.Kind {
			case BlockHeader:
				fmt.Fprintf(&b, "# %s\n\n*%s*  \nReport Generated: %s\n\n", Title, Subtitle, pb.GeneratedAt.Format("January 2, 2006 15:04"))
			case BlockPatient:
				fmt.Fprintf(&b, "## %s\n\n| Field | Value |\n|---|---|\n", pb.Heading)
				for _, row := range pb.Rows {
					fmt.Fprintf(&b, "| **%s** | %s |\n", row[0], inline(row[1]))
				}
				b.WriteString("\n")
			case BlockResult:
				fmt.Fprintf(&b, "## %s\n\n**Prediction: %s**\n\nRisk Level: %s | Confidence: %s\n\n",
					pb.Heading, inline(pb.Prediction), pb.RiskLevel.Title(), pb.Confidence)
				if len(pb.Bar) > 0 {
					b.WriteString("<div class=\"bar\">")
					for _, seg := range pb.Bar {
						fmt.Fprintf(&b, "<span style=\"width:%.2f%%;background:%s\">%s</span>",
							seg.Fraction*100, seg.Color.Hex(), escape(seg.Label))
					}
					b.WriteString("</div>\n\n")
				}
			case BlockBreakdown:
				fmt.Fprintf(&b, "## %s\n\n| Class | Confidence |\n|---|---|\n", pb.Heading)
				for _, row := range pb.Rows {
					fmt.Fprintf(&b, "| %s | %s |\n", inline(row[0]), row[1])
				}
				b.WriteString("\n")
			case BlockEEG:
				fmt.Fprintf(&b, "## %s\n\n| Channel | %s | Channel | %s |\n|---|---|---|---|\n", pb.Heading, ValueHeader, ValueHeader)
				for _, row := range pb.EEGRows {
					right := "|  |  |"
					if row.Right != nil {
						right = fmt.Sprintf("| %s | %s |", row.Right.Channel, tinted(*row.Right))
					}
					fmt.Fprintf(&b, "| %s | %s %s\n", row.Left.Channel, tinted(row.Left), right)
				}
				b.WriteString("\n")
			case BlockRecommendation:
				if pb.Heading != "" {
					fmt.Fprintf(&b, "## %s\n\n", pb.Heading)
				}
				if pb.Number > 0 && pb.Category != lastCategory {
					fmt.Fprintf(&b, "### %s\n\n", pb.Category.Label())
					lastCategory = pb.Category
				}
				fmt.Fprintf(&b, "%s\n\n", inline(strings.Join(pb.Lines, " ")))
			case BlockDisclaimer:
				fmt.Fprintf(&b, "<div class=\"note\"><strong>%s</strong> %s</div>\n\n", pb.Heading, escape(strings.Join(pb.Lines, " ")))
			}
		}
		fmt.Fprintf(&b, "<p class=\"footer\">%s</p>\n", escape(page.Footer))
	}
	return b.String()
}

func tinted(c EEGCell) string {
	return fmt.Sprintf("<span style=\"background:%s;padding:0 0.4rem\">%s</span>", c.Tint.Hex(), c.Value)
}

// escape is for text inside raw HTML blocks, where markdown is not parsed
func escape(s string) string {
	return html.EscapeString(s)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`, "*", `\*`, "_", `\_`,
	"`", "\\`", "!", `\!`, "|", `\|`, "#", `\#`, "~", `\~`,
)

// inline escapes text placed in markdown paragraphs and table cells. Markdown
// punctuation goes first so the entities added by HTML escaping stay intact.
func inline(s string) string {
	return html.EscapeString(markdownEscaper.Replace(s))
}
