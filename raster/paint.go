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

package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/vec"
)

// Paint is the source of color for filling and stroking.
type Paint struct {
	Color color.NRGBA

	// Fade, if set, modulates the alpha of Color depending on the position
	// in user space.
	Fade *Fade
}

// Solid returns a paint using the color c everywhere.
func Solid(c color.NRGBA) Paint {
	return Paint{Color: c}
}

// Fade is a linear alpha ramp along the user space segment From → To.
// Points before From use the first stop, points after To the last one.
type Fade struct {
	From, To vec.Vec2

	// Stops must be sorted by offset, offsets range from 0 to 1.
	Stops []Stop
}

// Stop is one control point of a [Fade].
type Stop struct {
	Offset float64
	Alpha  float64
}

func (f *Fade) at(t float64) float64 {
	stops := f.Stops
	if len(stops) == 0 {
		return 1
	}
	if t <= stops[0].Offset {
		return stops[0].Alpha
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].Offset {
			a, b := stops[i-1], stops[i]
			if b.Offset <= a.Offset {
				return b.Alpha
			}
			u := (t - a.Offset) / (b.Offset - a.Offset)
			return a.Alpha + u*(b.Alpha-a.Alpha)
		}
	}
	return stops[len(stops)-1].Alpha
}

// Fill fills the path p with the given paint, using the non-zero winding
// rule.
func (s *Surface) Fill(p *path.Data, paint Paint) {
	r, ok := s.fillMask(p)
	if !ok {
		return
	}
	s.composite(r, paint)
}

// Stroke strokes the path p with a line of the given width in user space
// units.  Line ends are butt caps, corners are rounded.
func (s *Surface) Stroke(p *path.Data, width float64, paint Paint) {
	r, ok := s.strokeMask(p, width)
	if !ok {
		return
	}
	s.composite(r, paint)
}

// Outliner converts text into a glyph outline path.  The path is in user
// space units, for text of the given font size.
type Outliner interface {
	Outline(text string, size float64) *path.Data
}

// FillText fills the outline of text.
func (s *Surface) FillText(f Outliner, text string, size float64, paint Paint) {
	s.Fill(f.Outline(text, size), paint)
}

// StrokeText strokes the outline of text.
func (s *Surface) StrokeText(f Outliner, text string, size, width float64, paint Paint) {
	s.Stroke(f.Outline(text, size), width, paint)
}

// deviceRect returns the integer device rectangle covering the given
// bounds, intersected with the clip region.
func (s *Surface) deviceRect(xMin, yMin, xMax, yMax float64) (image.Rectangle, bool) {
	if math.IsNaN(xMin+yMin+xMax+yMax) {
		return image.Rectangle{}, false
	}
	clip := s.Clip.Intersect(s.img.Rect)
	clamp := func(v float64, lo, hi int) int {
		return int(math.Min(math.Max(v, float64(lo)), float64(hi)))
	}
	r := image.Rect(
		clamp(math.Floor(xMin), clip.Min.X, clip.Max.X),
		clamp(math.Floor(yMin), clip.Min.Y, clip.Max.Y),
		clamp(math.Floor(xMax)+1, clip.Min.X, clip.Max.X),
		clamp(math.Floor(yMax)+1, clip.Min.Y, clip.Max.Y),
	)
	return r, !r.Empty()
}

func (s *Surface) rasterizer(r image.Rectangle) *vector.Rasterizer {
	if s.ras == nil {
		s.ras = vector.NewRasterizer(r.Dx(), r.Dy())
	} else {
		s.ras.Reset(r.Dx(), r.Dy())
	}
	s.ras.DrawOp = draw.Src
	return s.ras
}

// fillMask rasterizes the path into the coverage mask.
func (s *Surface) fillMask(p *path.Data) (image.Rectangle, bool) {
	if p == nil || len(p.Cmds) == 0 {
		return image.Rectangle{}, false
	}
	m := s.CTM
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for _, c := range p.Coords {
		d := Apply(m, c)
		xMin, xMax = min(xMin, d.X), max(xMax, d.X)
		yMin, yMax = min(yMin, d.Y), max(yMax, d.Y)
	}
	r, ok := s.deviceRect(xMin, yMin, xMax, yMax)
	if !ok {
		return r, false
	}

	ras := s.rasterizer(r)
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	pt := func(v vec.Vec2) (float32, float32) {
		d := Apply(m, v)
		return float32(d.X - ox), float32(d.Y - oy)
	}

	open := false
	k := 0
	var start vec.Vec2
	for _, cmd := range p.Cmds {
		switch cmd {
		case path.CmdMoveTo:
			if open {
				ras.ClosePath()
			}
			start = p.Coords[k]
			ras.MoveTo(pt(start))
			open = true
			k++
		case path.CmdLineTo:
			ras.LineTo(pt(p.Coords[k]))
			k++
		case path.CmdQuadTo:
			x1, y1 := pt(p.Coords[k])
			x2, y2 := pt(p.Coords[k+1])
			ras.QuadTo(x1, y1, x2, y2)
			k += 2
		case path.CmdCubeTo:
			x1, y1 := pt(p.Coords[k])
			x2, y2 := pt(p.Coords[k+1])
			x3, y3 := pt(p.Coords[k+2])
			ras.CubeTo(x1, y1, x2, y2, x3, y3)
			k += 3
		case path.CmdClose:
			if open {
				ras.ClosePath()
				ras.MoveTo(pt(start))
			}
		}
	}
	if open {
		ras.ClosePath()
	}

	s.drawMask(r)
	return r, true
}

// strokeMask rasterizes the outline of a stroke into the coverage mask.
//
// Every segment becomes a quadrilateral and every joint a small polygon.
// All pieces have the same orientation, so that overlaps add up instead of
// cancelling.
func (s *Surface) strokeMask(p *path.Data, width float64) (image.Rectangle, bool) {
	if p == nil || len(p.Cmds) == 0 || width <= 0 {
		return image.Rectangle{}, false
	}
	hw := width * scaleOf(s.CTM) / 2
	if hw <= 0 || math.IsNaN(hw) {
		return image.Rectangle{}, false
	}

	var polys [][]vec.Vec2
	var closedFlags []bool
	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	flatten(p, s.CTM, func(poly []vec.Vec2, closed bool) {
		for _, v := range poly {
			xMin, xMax = min(xMin, v.X), max(xMax, v.X)
			yMin, yMax = min(yMin, v.Y), max(yMax, v.Y)
		}
		polys = append(polys, append([]vec.Vec2(nil), poly...))
		closedFlags = append(closedFlags, closed)
	})
	if len(polys) == 0 {
		return image.Rectangle{}, false
	}
	r, ok := s.deviceRect(xMin-hw-1, yMin-hw-1, xMax+hw+1, yMax+hw+1)
	if !ok {
		return r, false
	}

	ras := s.rasterizer(r)
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	polygon := func(pts ...vec.Vec2) {
		ras.MoveTo(float32(pts[0].X-ox), float32(pts[0].Y-oy))
		for _, q := range pts[1:] {
			ras.LineTo(float32(q.X-ox), float32(q.Y-oy))
		}
		ras.ClosePath()
	}

	joins := hw > 0.75
	for i, poly := range polys {
		for j := 1; j < len(poly); j++ {
			a, b := poly[j-1], poly[j]
			dx, dy := b.X-a.X, b.Y-a.Y
			l := math.Hypot(dx, dy)
			if l == 0 {
				continue
			}
			nx, ny := -dy/l*hw, dx/l*hw
			polygon(
				vec.Vec2{X: a.X + nx, Y: a.Y + ny},
				vec.Vec2{X: b.X + nx, Y: b.Y + ny},
				vec.Vec2{X: b.X - nx, Y: b.Y - ny},
				vec.Vec2{X: a.X - nx, Y: a.Y - ny},
			)
		}
		if !joins {
			continue
		}
		first, last := 1, len(poly)-1
		if closedFlags[i] {
			first, last = 0, len(poly)-1
		}
		for j := first; j < last; j++ {
			polygon(joinPolygon(poly[j], hw)...)
		}
	}

	s.drawMask(r)
	return r, true
}

// joinPolygon returns an octagon around c, wound like the segment quads.
func joinPolygon(c vec.Vec2, r float64) []vec.Vec2 {
	pts := make([]vec.Vec2, 8)
	for i := range pts {
		sin, cos := math.Sincos(-float64(i) * math.Pi / 4)
		pts[i] = vec.Vec2{X: c.X + r*cos, Y: c.Y + r*sin}
	}
	return pts
}

// drawMask renders the rasterizer into the mask buffer.
func (s *Surface) drawMask(r image.Rectangle) {
	n := r.Dx() * r.Dy()
	if cap(s.maskBuf) < n {
		s.maskBuf = make([]uint8, n)
	}
	mask := &image.Alpha{
		Pix:    s.maskBuf[:n],
		Stride: r.Dx(),
		Rect:   image.Rect(0, 0, r.Dx(), r.Dy()),
	}
	s.ras.Draw(mask, mask.Rect, image.Opaque, image.Point{})
}

// composite blends the paint into the pixels of r, weighted by the mask.
func (s *Surface) composite(r image.Rectangle, paint Paint) {
	base := s.Alpha * float64(paint.Color.A) / 255
	if base <= 0 {
		return
	}
	cr := float64(paint.Color.R) / 255
	cg := float64(paint.Color.G) / 255
	cb := float64(paint.Color.B) / 255

	var inv matrix.Matrix
	var axis vec.Vec2
	var axisLen2 float64
	fade := paint.Fade
	if fade != nil {
		var ok bool
		inv, ok = Invert(s.CTM)
		axis = vec.Vec2{X: fade.To.X - fade.From.X, Y: fade.To.Y - fade.From.Y}
		axisLen2 = axis.X*axis.X + axis.Y*axis.Y
		if !ok || axisLen2 == 0 {
			fade = nil
		}
	}

	w := r.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := s.maskBuf[(y-r.Min.Y)*w : (y-r.Min.Y+1)*w]
		off := s.img.PixOffset(r.Min.X, y)
		pix := s.img.Pix[off : off+4*w]
		for i, cov := range row {
			if cov == 0 {
				continue
			}
			a := base * float64(cov) / 255
			if fade != nil {
				u := Apply(inv, vec.Vec2{X: float64(r.Min.X+i) + 0.5, Y: float64(y) + 0.5})
				t := ((u.X-fade.From.X)*axis.X + (u.Y-fade.From.Y)*axis.Y) / axisLen2
				a *= fade.at(t)
			}
			if a <= 0 {
				continue
			}
			if a > 1 {
				a = 1
			}
			blendPixel(pix[4*i:4*i+4], cr, cg, cb, a, s.Blend)
		}
	}
}

// blendPixel composites a source color with alpha a onto the premultiplied
// pixel px.
func blendPixel(px []uint8, cr, cg, cb, a float64, mode BlendMode) {
	dr := float64(px[0]) / 255
	dg := float64(px[1]) / 255
	db := float64(px[2]) / 255
	da := float64(px[3]) / 255

	var or, og, ob float64
	switch mode {
	case Multiply:
		// Cs·(1-αb)·αs + αs·αb·(Cb·Cs) + (1-αs)·αb·Cb, with premultiplied
		// backdrop values.
		or = a*cr*(1-da) + dr*(a*cr+1-a)
		og = a*cg*(1-da) + dg*(a*cg+1-a)
		ob = a*cb*(1-da) + db*(a*cb+1-a)
	default:
		or = a*cr + dr*(1-a)
		og = a*cg + dg*(1-a)
		ob = a*cb + db*(1-a)
	}
	oa := a + da*(1-a)

	px[0] = toByte(or)
	px[1] = toByte(og)
	px[2] = toByte(ob)
	px[3] = toByte(oa)
}

func toByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
