// metafiliX - watermarking and sanitizing of PDF and image files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fonts

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/vec"
)

// Glyph is the outline of a single character.  All values are in units of
// the em size, the y-axis points up and the origin is on the baseline.
type Glyph struct {
	ID      sfnt.GlyphIndex
	Advance float64
	Outline path.Data
}

// Face is a parsed font.
type Face struct {
	family  Family
	font    *sfnt.Font
	ppem    fixed.Int26_6
	upem    float64
	ascent  float64
	descent float64

	mu     sync.Mutex
	buf    sfnt.Buffer
	glyphs map[rune]*Glyph
}

func parse(f Family, data []byte) (*Face, error) {
	fnt, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}
	upem := fnt.UnitsPerEm()
	face := &Face{
		family: f,
		font:   fnt,
		ppem:   fixed.I(int(upem)),
		upem:   float64(upem),
		glyphs: make(map[rune]*Glyph),
	}
	m, err := fnt.Metrics(&face.buf, face.ppem, font.HintingNone)
	if err != nil {
		return nil, err
	}
	face.ascent = face.em(m.Ascent)
	face.descent = face.em(m.Descent)
	return face, nil
}

// Family returns the font this face was loaded from.
func (f *Face) Family() Family { return f.family }

// Name returns the full font name.
func (f *Face) Name() string { return f.family.String() }

// Ascent returns the ascent in em units.
func (f *Face) Ascent() float64 { return f.ascent }

// Descent returns the descent in em units, as a positive number.
func (f *Face) Descent() float64 { return f.descent }

func (f *Face) em(v fixed.Int26_6) float64 {
	return float64(v) / 64 / f.upem
}

// Glyph returns the glyph for r.  Characters missing from the font get an
// empty outline with the advance width of the missing-glyph box.
func (f *Face) Glyph(r rune) *Glyph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.glyphLocked(r)
}

func (f *Face) glyphLocked(r rune) *Glyph {
	if g, ok := f.glyphs[r]; ok {
		return g
	}

	g := &Glyph{}
	gid, err := f.font.GlyphIndex(&f.buf, r)
	if err == nil {
		g.ID = gid
	}
	if adv, err := f.font.GlyphAdvance(&f.buf, g.ID, f.ppem, font.HintingNone); err == nil {
		g.Advance = f.em(adv)
	}
	if g.ID != 0 {
		segs, err := f.font.LoadGlyph(&f.buf, g.ID, f.ppem, nil)
		if err == nil {
			g.Outline = f.convert(segs)
		}
	}
	f.glyphs[r] = g
	return g
}

// convert turns sfnt segments, which use a downward y-axis, into a
// closed y-up path in em units.
func (f *Face) convert(segs sfnt.Segments) path.Data {
	var p path.Data
	pt := func(q fixed.Point26_6) vec.Vec2 {
		return vec.Vec2{X: f.em(q.X), Y: -f.em(q.Y)}
	}
	for i, seg := range segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			if i > 0 {
				p.Cmds = append(p.Cmds, path.CmdClose)
			}
			p.Cmds = append(p.Cmds, path.CmdMoveTo)
			p.Coords = append(p.Coords, pt(seg.Args[0]))
		case sfnt.SegmentOpLineTo:
			p.Cmds = append(p.Cmds, path.CmdLineTo)
			p.Coords = append(p.Coords, pt(seg.Args[0]))
		case sfnt.SegmentOpQuadTo:
			p.Cmds = append(p.Cmds, path.CmdQuadTo)
			p.Coords = append(p.Coords, pt(seg.Args[0]), pt(seg.Args[1]))
		case sfnt.SegmentOpCubeTo:
			p.Cmds = append(p.Cmds, path.CmdCubeTo)
			p.Coords = append(p.Coords, pt(seg.Args[0]), pt(seg.Args[1]), pt(seg.Args[2]))
		}
	}
	if len(segs) > 0 {
		p.Cmds = append(p.Cmds, path.CmdClose)
	}
	return p
}

// kernLocked returns the kerning adjustment between two glyphs in em units.
func (f *Face) kernLocked(a, b sfnt.GlyphIndex) float64 {
	k, err := f.font.Kern(&f.buf, a, b, f.ppem, font.HintingNone)
	if err != nil {
		return 0
	}
	return f.em(k)
}

// Measure returns the advance width of text, including kerning, for the
// given font size.
func (f *Face) Measure(text string, size float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var w float64
	var prev sfnt.GlyphIndex
	for i, r := range text {
		g := f.glyphLocked(r)
		if i > 0 {
			w += f.kernLocked(prev, g.ID)
		}
		w += g.Advance
		prev = g.ID
	}
	return w * size
}

// Outline returns the outline of text for the given font size, in a
// coordinate system with the y-axis pointing down.  The text is centered
// horizontally on x=0 and vertically on y=0, where the vertical center is
// half way between ascent and descent.
func (f *Face) Outline(text string, size float64) *path.Data {
	width := f.Measure(text, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	res := &path.Data{}
	x := -width / 2
	y := (f.ascent - f.descent) / 2
	var prev sfnt.GlyphIndex
	for i, r := range text {
		g := f.glyphLocked(r)
		if i > 0 {
			x += f.kernLocked(prev, g.ID)
		}
		res.Cmds = append(res.Cmds, g.Outline.Cmds...)
		for _, c := range g.Outline.Coords {
			res.Coords = append(res.Coords, vec.Vec2{
				X: (x + c.X) * size,
				Y: (y - c.Y) * size,
			})
		}
		x += g.Advance
		prev = g.ID
	}
	return res
}
