// Package heatmap maps channel amplitudes onto a color ramp and scalp regions.
package heatmap

import (
	"fmt"
	"math"

	"github.com/adhd-assessment-server/internal/domain"
)

// Color is an RGB triple with float components in [0,255]
type Color struct {
	R, G, B float64
}

// RGBA implements color.Color
func (c Color) RGBA() (r, g, b, a uint32) {
	return channel16(c.R), channel16(c.G), channel16(c.B), 0xffff
}

func channel16(v float64) uint32 {
	return uint32(clamp(math.Round(v), 0, 255)) * 0x101
}

// Bytes returns the rounded 8-bit components
func (c Color) Bytes() (r, g, b uint8) {
	return uint8(clamp(math.Round(c.R), 0, 255)), uint8(clamp(math.Round(c.G), 0, 255)), uint8(clamp(math.Round(c.B), 0, 255))
}

// Hex returns the #rrggbb form
func (c Color) Hex() string {
	r, g, b := c.Bytes()
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// Ramp knots
var (
	Blue   = Color{0, 0, 255}
	Teal   = Color{0, 255, 127}
	Lime   = Color{128, 255, 0}
	Orange = Color{255, 175, 0}
	Red    = Color{255, 0, 0}
	// Degenerate is used for every channel when all values are equal
	Degenerate = Color{255, 255, 0}
)

// Ramp maps t in [0,1] to blue, green, yellow, red. t is clamped.
func Ramp(t float64) Color {
	if math.IsNaN(t) {
		t = 0
	}
	t = clamp(t, 0, 1)
	switch {
	case t < 0.25:
		u := t / 0.25
		return Color{0, 255 * u, 255 - 128*u}
	case t < 0.5:
		u := (t - 0.25) / 0.25
		return Color{128 * u, 255, 127 - 127*u}
	case t < 0.75:
		u := (t - 0.5) / 0.25
		return Color{128 + 127*u, 255 - 80*u, 0}
	default:
		u := (t - 0.75) / 0.25
		return Color{255, 175 - 175*u, 0}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Region is a scalp area grouping electrodes
type Region string

const (
	RegionFrontal   Region = "Frontal"
	RegionCentral   Region = "Central"
	RegionTemporal  Region = "Temporal"
	RegionParietal  Region = "Parietal"
	RegionOccipital Region = "Occipital"
)

// Regions lists the regions front to back
var Regions = []Region{RegionFrontal, RegionCentral, RegionTemporal, RegionParietal, RegionOccipital}

var regionChannels = map[Region][]string{
	RegionFrontal:   {"Fp1", "Fp2", "F7", "F3", "Fz", "F4", "F8"},
	RegionCentral:   {"C3", "Cz", "C4"},
	RegionTemporal:  {"T7", "T8"},
	RegionParietal:  {"P7", "P3", "Pz", "P4", "P8"},
	RegionOccipital: {"O1", "O2"},
}

var channelRegion = func() map[string]Region {
	m := make(map[string]Region, len(domain.Channels))
	for r, chs := range regionChannels {
		for _, ch := range chs {
			m[ch] = r
		}
	}
	return m
}()

// RegionChannels returns the electrodes in a region
func RegionChannels(r Region) []string {
	return append([]string(nil), regionChannels[r]...)
}

// RegionOf returns the region of a channel
func RegionOf(channel string) (Region, bool) {
	r, ok := channelRegion[channel]
	return r, ok
}

// Cell is one electrode's rendered state
type Cell struct {
	Channel    string  `json:"channel"`
	Value      float64 `json:"value"`
	Normalized float64 `json:"normalized"`
	Color      Color   `json:"-"`
	Hex        string  `json:"color"`
	Region     Region  `json:"region"`
}

// RegionAverage is the mean amplitude of a region
type RegionAverage struct {
	Region  Region  `json:"region"`
	Average float64 `json:"average"`
	Color   string  `json:"color"`
}

// Heatmap is the color-mapped channel set
type Heatmap struct {
	Cells      []Cell  `json:"cells"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Degenerate bool    `json:"degenerate"`

	index map[string]int
}

// Build normalizes every value against the map's own min and max
func Build(channels domain.ChannelMap) *Heatmap {
	ordered := channels.Ordered()
	h := &Heatmap{
		Cells: make([]Cell, 0, len(ordered)),
		index: make(map[string]int, len(ordered)),
	}
	if len(ordered) == 0 {
		return h
	}

	h.Min, h.Max = ordered[0].Value, ordered[0].Value
	for _, cv := range ordered[1:] {
		h.Min = math.Min(h.Min, cv.Value)
		h.Max = math.Max(h.Max, cv.Value)
	}
	span := h.Max - h.Min
	h.Degenerate = span == 0

	for _, cv := range ordered {
		cell := Cell{Channel: cv.Channel, Value: cv.Value}
		cell.Region, _ = RegionOf(cv.Channel)
		if h.Degenerate {
			cell.Normalized = 0.5
			cell.Color = Degenerate
		} else {
			cell.Normalized = (cv.Value - h.Min) / span
			cell.Color = Ramp(cell.Normalized)
		}
		cell.Hex = cell.Color.Hex()
		h.index[cv.Channel] = len(h.Cells)
		h.Cells = append(h.Cells, cell)
	}
	return h
}

// Cell returns the cell for a channel
func (h *Heatmap) Cell(channel string) (Cell, bool) {
	i, ok := h.index[channel]
	if !ok {
		return Cell{}, false
	}
	return h.Cells[i], true
}

// ColorFor returns the channel's color, or Degenerate when unknown
func (h *Heatmap) ColorFor(channel string) Color {
	if c, ok := h.Cell(channel); ok {
		return c.Color
	}
	return Degenerate
}

// RegionAverages returns the arithmetic mean per region, colored on the same scale
func (h *Heatmap) RegionAverages() []RegionAverage {
	out := make([]RegionAverage, 0, len(Regions))
	for _, r := range Regions {
		var sum float64
		n := 0
		for _, ch := range regionChannels[r] {
			if c, ok := h.Cell(ch); ok {
				sum += c.Value
				n++
			}
		}
		if n == 0 {
			continue
		}
		avg := sum / float64(n)
		col := Degenerate
		if !h.Degenerate {
			col = Ramp((avg - h.Min) / (h.Max - h.Min))
		}
		out = append(out, RegionAverage{Region: r, Average: avg, Color: col.Hex()})
	}
	return out
}
