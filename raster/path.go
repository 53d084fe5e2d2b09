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
	"math"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/vec"
)

// Builder accumulates a path.  The zero value is an empty path.
type Builder struct {
	data path.Data
}

// MoveTo starts a new subpath at (x, y).
func (b *Builder) MoveTo(x, y float64) *Builder {
	b.data.Cmds = append(b.data.Cmds, path.CmdMoveTo)
	b.data.Coords = append(b.data.Coords, vec.Vec2{X: x, Y: y})
	return b
}

// LineTo appends a straight line segment.
func (b *Builder) LineTo(x, y float64) *Builder {
	b.data.Cmds = append(b.data.Cmds, path.CmdLineTo)
	b.data.Coords = append(b.data.Coords, vec.Vec2{X: x, Y: y})
	return b
}

// QuadTo appends a quadratic Bézier segment.
func (b *Builder) QuadTo(x1, y1, x2, y2 float64) *Builder {
	b.data.Cmds = append(b.data.Cmds, path.CmdQuadTo)
	b.data.Coords = append(b.data.Coords,
		vec.Vec2{X: x1, Y: y1}, vec.Vec2{X: x2, Y: y2})
	return b
}

// CubeTo appends a cubic Bézier segment.
func (b *Builder) CubeTo(x1, y1, x2, y2, x3, y3 float64) *Builder {
	b.data.Cmds = append(b.data.Cmds, path.CmdCubeTo)
	b.data.Coords = append(b.data.Coords,
		vec.Vec2{X: x1, Y: y1}, vec.Vec2{X: x2, Y: y2}, vec.Vec2{X: x3, Y: y3})
	return b
}

// Close closes the current subpath.
func (b *Builder) Close() *Builder {
	b.data.Cmds = append(b.data.Cmds, path.CmdClose)
	return b
}

// Rect appends a closed rectangle.
func (b *Builder) Rect(x, y, w, h float64) *Builder {
	return b.MoveTo(x, y).LineTo(x+w, y).LineTo(x+w, y+h).LineTo(x, y+h).Close()
}

// Append adds all subpaths of p, transformed by m.
func (b *Builder) Append(p *path.Data, m matrix.Matrix) *Builder {
	b.data.Cmds = append(b.data.Cmds, p.Cmds...)
	for _, c := range p.Coords {
		b.data.Coords = append(b.data.Coords, Apply(m, c))
	}
	return b
}

// Empty reports whether no segments have been added.
func (b *Builder) Empty() bool {
	return len(b.data.Cmds) == 0
}

// Reset removes all segments.
func (b *Builder) Reset() {
	b.data.Cmds = b.data.Cmds[:0]
	b.data.Coords = b.data.Coords[:0]
}

// Path returns the accumulated path.  The result shares storage with the
// builder.
func (b *Builder) Path() *path.Data {
	return &b.data
}

// Apply maps the point p through m.
func Apply(m matrix.Matrix, p vec.Vec2) vec.Vec2 {
	return vec.Vec2{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Invert returns the inverse of m.  The boolean is false if m is singular.
func Invert(m matrix.Matrix) (matrix.Matrix, bool) {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return matrix.Matrix{}, false
	}
	return matrix.Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, true
}

// scaleOf returns the geometric mean of the scale factors of m.
func scaleOf(m matrix.Matrix) float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

// flatTolerance is the maximal distance, in device pixels, between a curve
// and its polygonal approximation.
const flatTolerance = 0.2

// flatten converts p into device space polylines.  Closed subpaths repeat
// their first point at the end.
func flatten(p *path.Data, m matrix.Matrix, emit func(poly []vec.Vec2, closed bool)) {
	var poly []vec.Vec2
	var cur, start vec.Vec2
	flush := func(closed bool) {
		if len(poly) > 1 {
			emit(poly, closed)
		}
		poly = poly[:0]
	}

	k := 0
	for _, cmd := range p.Cmds {
		switch cmd {
		case path.CmdMoveTo:
			flush(false)
			cur = Apply(m, p.Coords[k])
			start = cur
			poly = append(poly, cur)
			k++
		case path.CmdLineTo:
			if len(poly) == 0 {
				poly = append(poly, cur)
			}
			cur = Apply(m, p.Coords[k])
			poly = append(poly, cur)
			k++
		case path.CmdQuadTo:
			if len(poly) == 0 {
				poly = append(poly, cur)
			}
			c1 := Apply(m, p.Coords[k])
			c2 := Apply(m, p.Coords[k+1])
			// degree elevation
			q1 := vec.Vec2{X: cur.X + 2*(c1.X-cur.X)/3, Y: cur.Y + 2*(c1.Y-cur.Y)/3}
			q2 := vec.Vec2{X: c2.X + 2*(c1.X-c2.X)/3, Y: c2.Y + 2*(c1.Y-c2.Y)/3}
			poly = flattenCubic(poly, cur, q1, q2, c2)
			cur = c2
			k += 2
		case path.CmdCubeTo:
			if len(poly) == 0 {
				poly = append(poly, cur)
			}
			c1 := Apply(m, p.Coords[k])
			c2 := Apply(m, p.Coords[k+1])
			c3 := Apply(m, p.Coords[k+2])
			poly = flattenCubic(poly, cur, c1, c2, c3)
			cur = c3
			k += 3
		case path.CmdClose:
			if len(poly) > 0 {
				if cur != start {
					poly = append(poly, start)
				}
				flush(true)
			}
			cur = start
		}
	}
	flush(false)
}

// flattenCubic appends points approximating a cubic Bézier curve, using
// Wang's formula for the number of segments.
func flattenCubic(poly []vec.Vec2, p0, p1, p2, p3 vec.Vec2) []vec.Vec2 {
	ddx := math.Max(math.Abs(p0.X-2*p1.X+p2.X), math.Abs(p1.X-2*p2.X+p3.X))
	ddy := math.Max(math.Abs(p0.Y-2*p1.Y+p2.Y), math.Abs(p1.Y-2*p2.Y+p3.Y))
	dd := math.Hypot(ddx, ddy)
	n := int(math.Ceil(math.Sqrt(0.75 * dd / flatTolerance)))
	n = min(max(n, 1), 256)

	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		u := 1 - t
		a := u * u * u
		b := 3 * u * u * t
		c := 3 * u * t * t
		d := t * t * t
		poly = append(poly, vec.Vec2{
			X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
		})
	}
	return poly
}
