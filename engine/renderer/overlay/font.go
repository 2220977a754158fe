package overlay

import (
	"image"
	"image/draw"
	"strings"

	"github.com/spaghettifunk/forwardplus/engine/assets/loaders"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Font turns a block of text into a coverage mask. Lines are split on '\n'.
type Font interface {
	Rasterize(text string) *image.Alpha
	LineHeight() int
}

// FaceFont draws with any x/image font face.
type FaceFont struct {
	face font.Face
}

// NewBasicFont uses the built in 7x13 face. It is the fallback when no
// bitmap font is configured.
func NewBasicFont() *FaceFont {
	return &FaceFont{face: basicfont.Face7x13}
}

func NewFaceFont(face font.Face) *FaceFont {
	return &FaceFont{face: face}
}

func (f *FaceFont) LineHeight() int {
	return f.face.Metrics().Height.Ceil()
}

func (f *FaceFont) Rasterize(text string) *image.Alpha {
	lines := strings.Split(text, "\n")
	width := 0
	for _, l := range lines {
		width = max(width, font.MeasureString(f.face, l).Ceil())
	}
	lh := f.LineHeight()
	dst := image.NewAlpha(image.Rect(0, 0, width, lh*len(lines)))
	if width == 0 {
		return dst
	}
	ascent := f.face.Metrics().Ascent
	d := &font.Drawer{Dst: dst, Src: image.Opaque, Face: f.face}
	for i, l := range lines {
		d.Dot = fixed.Point26_6{X: 0, Y: fixed.I(i*lh) + ascent}
		d.DrawString(l)
	}
	return dst
}

// BitmapFont draws with an AngelCode font loaded by the asset manager.
// Coverage comes from the alpha channel of the glyph pages.
type BitmapFont struct {
	font *loaders.BitmapFont
}

func NewBitmapFont(f *loaders.BitmapFont) *BitmapFont {
	return &BitmapFont{font: f}
}

func (f *BitmapFont) LineHeight() int {
	return f.font.LineHeight
}

func (f *BitmapFont) lineWidth(line string) int {
	x, width := 0, 0
	prev := rune(-1)
	for _, r := range line {
		g, ok := f.font.Glyphs[r]
		if !ok {
			prev = -1
			continue
		}
		x += f.font.Kernings[loaders.FontKerning{Codepoint0: prev, Codepoint1: r}]
		width = max(width, x+g.XOffset+g.Width)
		x += g.XAdvance
		prev = r
	}
	return max(width, x)
}

func (f *BitmapFont) Rasterize(text string) *image.Alpha {
	lines := strings.Split(text, "\n")
	width := 0
	for _, l := range lines {
		width = max(width, f.lineWidth(l))
	}
	lh := f.LineHeight()
	dst := image.NewAlpha(image.Rect(0, 0, width, lh*len(lines)))
	for i, l := range lines {
		x, y := 0, i*lh
		prev := rune(-1)
		for _, r := range l {
			g, ok := f.font.Glyphs[r]
			if !ok {
				prev = -1
				continue
			}
			x += f.font.Kernings[loaders.FontKerning{Codepoint0: prev, Codepoint1: r}]
			if page := f.font.Pages[g.PageID]; page != nil {
				at := image.Pt(x+g.XOffset, y+g.YOffset)
				draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(image.Pt(g.Width, g.Height))}, page, image.Pt(g.X, g.Y), draw.Over)
			}
			x += g.XAdvance
			prev = r
		}
	}
	return dst
}
