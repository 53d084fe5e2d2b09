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

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"seehuhn.de/go/geom/matrix"
)

// DrawImage paints img.  The matrix m maps image pixel coordinates, with
// the origin at the top-left corner of img.Bounds(), to user space.
//
// Images are always painted in normal blend mode; the global alpha and the
// clip rectangle are respected.
func (s *Surface) DrawImage(img image.Image, m matrix.Matrix) {
	b := img.Bounds()
	if b.Empty() || s.Alpha <= 0 {
		return
	}
	d := matrix.Translate(-float64(b.Min.X), -float64(b.Min.Y)).Mul(m).Mul(s.CTM)
	if _, ok := Invert(d); !ok {
		return
	}

	clip := s.Clip.Intersect(s.img.Rect)
	if clip.Empty() {
		return
	}
	dst, ok := s.img.SubImage(clip).(*image.RGBA)
	if !ok {
		return
	}

	// x/image/draw wants the source-to-destination map in row-major order
	s2d := f64.Aff3{d[0], d[2], d[4], d[1], d[3], d[5]}

	var opts *xdraw.Options
	if s.Alpha < 1 {
		opts = &xdraw.Options{
			SrcMask: image.NewUniform(color.Alpha{A: toByte(s.Alpha)}),
		}
	}
	xdraw.BiLinear.Transform(dst, s2d, img, b, draw.Over, opts)
}
