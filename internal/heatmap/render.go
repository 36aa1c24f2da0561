package heatmap

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/fogleman/gg"
)

// Canvas geometry for the scalp map
const (
	CanvasSize  = 400
	headCX      = 200.0
	headCY      = 200.0
	headRX      = 165.0
	headRY      = 180.0
	glowRadius  = 24.0
	discRadius  = 14.0
	legendTop   = 385.0
	legendLeft  = 80.0
	legendWidth = 240.0
)

type point struct{ X, Y float64 }

// electrodePositions places the 10-20 sites on the 400x400 canvas, nose up
var electrodePositions = map[string]point{
	"Fp1": {155, 60}, "Fp2": {245, 60},
	"F7": {85, 130}, "F3": {155, 130}, "Fz": {200, 115}, "F4": {245, 130}, "F8": {315, 130},
	"T7": {60, 200}, "C3": {140, 200}, "Cz": {200, 195}, "C4": {260, 200}, "T8": {340, 200},
	"P7": {85, 275}, "P3": {155, 270}, "Pz": {200, 275}, "P4": {245, 270}, "P8": {315, 275},
	"O1": {165, 340}, "O2": {235, 340},
}

var (
	outlineColor = color.RGBA{0x1e, 0x3a, 0x8a, 0xff}
	labelColor   = color.White
	background   = color.White
)

// RenderPNG draws the scalp map and writes it as PNG
func RenderPNG(w io.Writer, h *Heatmap) error {
	dc := gg.NewContext(CanvasSize, CanvasSize)

	dc.SetColor(background)
	dc.Clear()

	// Head, ears, nose
	dc.SetColor(color.RGBA{0xe0, 0xe7, 0xff, 0x60})
	dc.DrawEllipse(headCX, headCY, headRX, headRY)
	dc.Fill()
	dc.SetColor(outlineColor)
	dc.SetLineWidth(2)
	dc.DrawEllipse(headCX, headCY, headRX, headRY)
	dc.Stroke()
	dc.SetLineWidth(1.5)
	dc.DrawEllipse(32, 200, 12, 30)
	dc.Stroke()
	dc.DrawEllipse(368, 200, 12, 30)
	dc.Stroke()
	dc.MoveTo(185, 22)
	dc.LineTo(200, 4)
	dc.LineTo(215, 22)
	dc.Stroke()

	for _, cell := range h.Cells {
		pos, ok := electrodePositions[cell.Channel]
		if !ok {
			continue
		}
		r, g, b := cell.Color.Bytes()

		dc.SetColor(color.RGBA{r, g, b, 0x55})
		dc.DrawCircle(pos.X, pos.Y, glowRadius)
		dc.Fill()

		dc.SetColor(color.RGBA{r, g, b, 0xff})
		dc.DrawCircle(pos.X, pos.Y, discRadius)
		dc.Fill()
		dc.SetColor(outlineColor)
		dc.SetLineWidth(1)
		dc.DrawCircle(pos.X, pos.Y, discRadius)
		dc.Stroke()

		dc.SetColor(labelColor)
		dc.DrawStringAnchored(cell.Channel, pos.X, pos.Y, 0.5, 0.35)
		dc.SetColor(outlineColor)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", cell.Value), pos.X, pos.Y+discRadius+9, 0.5, 0.5)
	}

	drawLegend(dc, h)

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// PNG renders the scalp map into memory
func PNG(h *Heatmap) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawLegend(dc *gg.Context, h *Heatmap) {
	const steps = 48
	step := legendWidth / steps
	for i := 0; i < steps; i++ {
		c := Ramp(float64(i) / float64(steps-1))
		if h.Degenerate {
			c = Degenerate
		}
		r, g, b := c.Bytes()
		dc.SetColor(color.RGBA{r, g, b, 0xff})
		dc.DrawRectangle(legendLeft+float64(i)*step, legendTop, step+0.5, 8)
		dc.Fill()
	}
	dc.SetColor(outlineColor)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", h.Min), legendLeft-6, legendTop+4, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", h.Max), legendLeft+legendWidth+6, legendTop+4, 0, 0.5)
}
