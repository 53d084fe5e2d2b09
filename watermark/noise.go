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

package watermark

import (
	"math"
	"math/rand/v2"

	"seehuhn.de/go/geom/path"

	"github.com/garnajee/metafiliX/raster"
)

// Noise parameters, in tile space units.
const (
	hatchSpacing = 6
	hatchSlant   = 10
	hatchWidth   = 1
	hatchAlpha   = 0.3

	ghostWidth = 0.5
	ghostAlpha = 0.8

	curveWidth = 1
	curveAlpha = 0.8

	grainThreshold = 0.6
	grainIntensity = 10
)

// hatchPath returns slanted lines across the tw × th text box centered on
// the origin.
func hatchPath(tw, th float64) *path.Data {
	b := &raster.Builder{}
	for k := -tw / 2; k < tw/2; k += hatchSpacing {
		b.MoveTo(k, -th/2).LineTo(k-hatchSlant, th/2)
	}
	return b.Path()
}

// Hatch strokes thin diagonal lines over the text box, in normal blend
// mode.
func Hatch(s *raster.Surface, tw, th float64, c Color, opacity float64) {
	s.Do(func() error {
		s.Blend = raster.Normal
		s.Alpha *= opacity * hatchAlpha
		s.Stroke(hatchPath(tw, th), hatchWidth, raster.Solid(c.NRGBA()))
		return nil
	})
}

// GhostStroke strokes the glyph outlines of the text with a hairline.
// The blend mode of the surface is kept.
func GhostStroke(s *raster.Surface, outline *path.Data, c Color, opacity float64) {
	s.Do(func() error {
		s.Alpha *= opacity * ghostAlpha
		s.Stroke(outline, ghostWidth, raster.Solid(c.NRGBA()))
		return nil
	})
}

// interferencePath returns a single cubic curve crossing the text box.
func interferencePath(tw, th, sy, ey float64) *path.Data {
	b := &raster.Builder{}
	b.MoveTo(-tw/1.5, sy).CubeTo(-tw/3, sy-th, tw/3, ey+th, tw/1.5, ey)
	return b.Path()
}

// Interference strokes a curve through the text box, in normal blend mode.
// sy and ey are the vertical offsets of the two ends.
func Interference(s *raster.Surface, tw, th, sy, ey float64, c Color, opacity float64) {
	s.Do(func() error {
		s.Blend = raster.Normal
		s.Alpha *= opacity * curveAlpha
		s.Stroke(interferencePath(tw, th, sy, ey), curveWidth, raster.Solid(c.NRGBA()))
		return nil
	})
}

// Grain perturbs the color of about 40% of all pixels by up to ±5 levels.
// The drawing state of the surface is ignored.
func Grain(s *raster.Surface, rng *rand.Rand) {
	img := s.Image()
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		row := img.Pix[off : off+4*b.Dx()]
		for i := 0; i < len(row); i += 4 {
			if rng.Float64() <= grainThreshold {
				continue
			}
			n := int(math.Round((rng.Float64() - 0.5) * grainIntensity))
			if n == 0 {
				continue
			}
			a := int(row[i+3])
			for c := i; c < i+3; c++ {
				row[c] = uint8(max(0, min(a, int(row[c])+n)))
			}
		}
	}
}
