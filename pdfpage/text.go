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

package pdfpage

import (
	"seehuhn.de/go/geom/matrix"

	"github.com/garnajee/metafiliX/internal/pdf"
	"github.com/garnajee/metafiliX/raster"
)

// moveText starts a new line, offset by (tx, ty) from the start of the
// current line.
func (in *interpreter) moveText(tx, ty float64) {
	in.tlm = matrix.Translate(tx, ty).Mul(in.tlm)
	in.tm = in.tlm
}

// showText draws a string and advances the text matrix.
func (in *interpreter) showText(s pdf.String) {
	gs := &in.gs
	f := gs.font
	if f == nil {
		return
	}
	for _, g := range f.decode(s) {
		in.drawGlyph(f, g)

		tx := g.width/1000*gs.fontSize + gs.charSpace
		if g.space {
			tx += gs.wordSpace
		}
		in.tm = matrix.Translate(tx*gs.hScale, 0).Mul(in.tm)
	}
}

// drawGlyph draws the characters of g, squeezed or stretched horizontally
// to the advance width of the PDF font.
func (in *interpreter) drawGlyph(f *pdfFont, g textGlyph) {
	gs := &in.gs
	mode := gs.renderMode % 4
	doFill := (mode == 0 || mode == 2) && !gs.noFill
	doStroke := (mode == 1 || mode == 2) && !gs.noStroke
	if len(g.text) == 0 || !(doFill || doStroke) || gs.fontSize == 0 {
		return
	}

	var b raster.Builder
	var x float64
	for _, r := range g.text {
		glyph := f.face.Glyph(r)
		if len(glyph.Outline.Cmds) > 0 {
			b.Append(&glyph.Outline, matrix.Translate(x, 0))
		}
		x += glyph.Advance
	}
	if b.Empty() {
		return
	}

	sx := 1.0
	if x > 0 && g.width > 0 {
		sx = g.width / 1000 / x
	}
	trm := matrix.Matrix{gs.fontSize * gs.hScale, 0, 0, gs.fontSize, 0, gs.rise}.
		Mul(in.tm).
		Mul(gs.ctm)
	m := matrix.Scale(sx, 1).Mul(trm)

	if doFill {
		in.prepare(m, gs.fillAlpha)
		in.s.Fill(b.Path(), raster.Solid(gs.fill))
	}
	if doStroke {
		in.prepare(m, gs.strokeAlpha)
		in.s.Stroke(b.Path(), strokeWidth(gs.lineWidth, gs.ctm, m), raster.Solid(gs.stroke))
	}
}
