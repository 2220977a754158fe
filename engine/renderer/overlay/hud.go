package overlay

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/spaghettifunk/forwardplus/engine/containers"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
)

const (
	// coverage at or above this counts as a lit pixel
	coverageThreshold uint8 = 0x80

	graphSamples = 120
	graphHeight  = 40
	// frame time mapped to the full graph height
	graphScaleMS = 33.3
)

var (
	DefaultTextColor  = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
	DefaultPanelColor = color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xff}
	DefaultGraphColor = color.RGBA{R: 0x40, G: 0xc0, B: 0x60, A: 0xff}
	DefaultSlowColor  = color.RGBA{R: 0xe0, G: 0x50, B: 0x40, A: 0xff}
)

// HUD is a top left text panel with a frame time graph. It is drawn with
// solid rectangles only, so text is scaled up in whole pixels and has no
// antialiasing.
type HUD struct {
	font   Font
	scale  int
	margin int

	TextColor  color.RGBA
	PanelColor color.RGBA
	GraphColor color.RGBA
	SlowColor  color.RGBA

	mu        sync.Mutex
	hidden    bool
	text      string
	textRects []image.Rectangle
	textSize  image.Point
	history   *containers.RingQueue[float64]
	// frame times above this are drawn in SlowColor
	targetMS float64
}

// NewHUD draws text with f at the given integer scale. A nil font falls back
// to the built in face.
func NewHUD(f Font, scale int) *HUD {
	if f == nil {
		f = NewBasicFont()
	}
	return &HUD{
		font:       f,
		scale:      max(scale, 1),
		margin:     8,
		TextColor:  DefaultTextColor,
		PanelColor: DefaultPanelColor,
		GraphColor: DefaultGraphColor,
		SlowColor:  DefaultSlowColor,
		history:    containers.NewRingQueue[float64](graphSamples),
		targetMS:   1000.0 / 60.0,
	}
}

// SetText replaces the HUD lines. The mask is only rebuilt when the text
// actually changes.
func (h *HUD) SetText(lines ...string) {
	text := strings.Join(lines, "\n")
	h.mu.Lock()
	defer h.mu.Unlock()
	if text == h.text && h.textRects != nil {
		return
	}
	h.text = text
	mask := h.font.Rasterize(text)
	h.textRects = coverageRuns(mask, coverageThreshold)
	h.textSize = mask.Bounds().Size()
}

// RecordFrame appends a frame time in milliseconds to the graph.
func (h *HUD) RecordFrame(ms float64) {
	h.mu.Lock()
	h.history.Push(ms)
	h.mu.Unlock()
}

// Toggle shows or hides the HUD. Frame times are still recorded while
// hidden.
func (h *HUD) Toggle() {
	h.mu.Lock()
	h.hidden = !h.hidden
	h.mu.Unlock()
}

// Rects implements vulkan.Overlay.
func (h *HUD) Rects(width, height uint32) []vulkan.OverlayRect {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hidden {
		return nil
	}

	samples := h.history.Items()
	textSize := h.textSize.Mul(h.scale)
	panelW := max(textSize.X, graphSamples*2)
	panelH := textSize.Y
	if len(samples) > 0 {
		panelH += h.margin + graphHeight
	}
	if panelW == 0 || panelH == 0 {
		return nil
	}

	origin := image.Pt(h.margin*2, h.margin*2)
	panel := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(panelW, panelH))}.Inset(-h.margin)
	out := make([]vulkan.OverlayRect, 0, 1+len(h.textRects)+len(samples))
	out = append(out, vulkan.OverlayRect{Rect: panel, Color: h.PanelColor})

	for _, r := range h.textRects {
		scaled := image.Rectangle{Min: r.Min.Mul(h.scale), Max: r.Max.Mul(h.scale)}
		out = append(out, vulkan.OverlayRect{Rect: scaled.Add(origin), Color: h.TextColor})
	}

	if len(samples) > 0 {
		base := origin.Y + panelH
		for i, ms := range samples {
			bar := int(min(ms/graphScaleMS, 1) * graphHeight)
			if bar <= 0 {
				continue
			}
			x := origin.X + i*2
			col := h.GraphColor
			if ms > h.targetMS {
				col = h.SlowColor
			}
			out = append(out, vulkan.OverlayRect{Rect: image.Rect(x, base-bar, x+2, base), Color: col})
		}
	}
	return out
}

// coverageRuns converts a mask into horizontal runs of covered pixels, one
// rectangle per run. Identical runs on consecutive rows are merged.
func coverageRuns(mask *image.Alpha, threshold uint8) []image.Rectangle {
	b := mask.Bounds()
	var out []image.Rectangle
	// runs of the previous row that may still grow downwards, keyed by span
	open := map[[2]int]int{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		next := map[[2]int]int{}
		for x := b.Min.X; x < b.Max.X; {
			if mask.AlphaAt(x, y).A < threshold {
				x++
				continue
			}
			start := x
			for x < b.Max.X && mask.AlphaAt(x, y).A >= threshold {
				x++
			}
			span := [2]int{start, x}
			if i, ok := open[span]; ok {
				out[i].Max.Y = y - b.Min.Y + 1
				next[span] = i
				continue
			}
			next[span] = len(out)
			out = append(out, image.Rect(start-b.Min.X, y-b.Min.Y, x-b.Min.X, y-b.Min.Y+1))
		}
		open = next
	}
	return out
}
