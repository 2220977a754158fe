package loaders

import (
	"image"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fzipp/bmfont"
)

// FontGlyph locates one character in a page of the atlas.
type FontGlyph struct {
	Codepoint rune
	X, Y      int
	Width     int
	Height    int
	XOffset   int
	YOffset   int
	XAdvance  int
	PageID    int
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
}

// BitmapFont is an AngelCode .fnt font with its pages decoded to RGBA.
type BitmapFont struct {
	Face       string
	Size       int
	LineHeight int
	Baseline   int
	Glyphs     map[rune]FontGlyph
	Kernings   map[FontKerning]int
	Pages      map[int]*image.RGBA
}

// BitmapFontLoader reads text format .fnt files. Page images are resolved
// relative to the .fnt file.
type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string) (*Resource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "unable to find bitmap font '%s'", path)
	}
	font, err := fl.importFNTFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		FullPath: path,
		DataSize: uint64(len(font.Glyphs)),
		Data:     font,
	}, nil
}

func (fl *BitmapFontLoader) importFNTFile(fntFileName string) (*BitmapFont, error) {
	font, err := bmfont.Load(fntFileName)
	if err != nil {
		return nil, err
	}
	desc := font.Descriptor

	out := &BitmapFont{
		Face:       desc.Info.Face,
		Size:       int(desc.Info.Size),
		LineHeight: int(desc.Common.LineHeight),
		Baseline:   int(desc.Common.Base),
		Glyphs:     make(map[rune]FontGlyph, len(desc.Chars)),
		Kernings:   make(map[FontKerning]int, len(desc.Kerning)),
		Pages:      make(map[int]*image.RGBA, len(desc.Pages)),
	}

	for _, g := range desc.Chars {
		out.Glyphs[rune(g.ID)] = FontGlyph{
			Codepoint: rune(g.ID),
			X:         int(g.X),
			Y:         int(g.Y),
			Width:     int(g.Width),
			Height:    int(g.Height),
			XOffset:   int(g.XOffset),
			YOffset:   int(g.YOffset),
			XAdvance:  int(g.XAdvance),
			PageID:    int(g.Page),
		}
	}
	for p, k := range desc.Kerning {
		out.Kernings[FontKerning{Codepoint0: rune(p.First), Codepoint1: rune(p.Second)}] = int(k.Amount)
	}

	dir := filepath.Dir(fntFileName)
	tl := &TextureLoader{}
	for _, p := range desc.Pages {
		res, err := tl.Load(filepath.Join(dir, p.File))
		if err != nil {
			return nil, errors.Wrapf(err, "font page %d", p.ID)
		}
		out.Pages[int(p.ID)] = res.Data.(*image.RGBA)
	}
	return out, nil
}
