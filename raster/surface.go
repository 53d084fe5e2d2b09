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

// Package raster implements a pixel surface with vector drawing primitives.
//
// A [Surface] wraps an [image.RGBA] together with a small drawing state
// (transformation matrix, blend mode, global alpha and clip rectangle).
// Paths are given in user space as [path.Data] and are mapped to device
// space by the current transformation matrix.  Device space has its origin
// in the top-left corner, with y pointing down.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
	"seehuhn.de/go/geom/matrix"

	"github.com/garnajee/metafiliX"
)

// MaxPixels is the largest number of pixels a surface may have.
const MaxPixels = 1 << 28

// BlendMode selects how painted colors are combined with the backdrop.
type BlendMode int

// These are the supported blend modes.
const (
	// Normal paints the source color over the backdrop.
	Normal BlendMode = iota

	// Multiply multiplies source and backdrop colors, like ink absorbed
	// by paper.  Painting never makes a pixel lighter.
	Multiply
)

func (b BlendMode) String() string {
	switch b {
	case Normal:
		return "normal"
	case Multiply:
		return "multiply"
	}
	return fmt.Sprintf("BlendMode(%d)", int(b))
}

// State is the part of the drawing state which is saved and restored by
// [Surface.Save] and [Surface.Restore].
type State struct {
	// CTM maps user space to device space.
	CTM matrix.Matrix

	Blend BlendMode

	// Alpha is multiplied into the alpha of everything painted.
	Alpha float64

	// Clip limits all painting to a device space rectangle.
	Clip image.Rectangle
}

// Surface is a drawing target.  A Surface is not safe for concurrent use.
type Surface struct {
	State

	img   *image.RGBA
	stack []State

	ras     *vector.Rasterizer
	maskBuf []uint8
}

// New allocates a transparent surface of the given size.
func New(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 || int64(width)*int64(height) > MaxPixels {
		return nil, &metafilix.Error{
			Kind: metafilix.ErrSurfaceAllocation,
			Err:  fmt.Errorf("invalid surface size %dx%d", width, height),
		}
	}
	return newSurface(image.NewRGBA(image.Rect(0, 0, width, height))), nil
}

// FromImage creates a surface holding a copy of img.
func FromImage(img image.Image) (*Surface, error) {
	b := img.Bounds()
	s, err := New(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	draw.Draw(s.img, s.img.Bounds(), img, b.Min, draw.Src)
	return s, nil
}

func newSurface(img *image.RGBA) *Surface {
	return &Surface{
		State: State{
			CTM:   matrix.Identity,
			Blend: Normal,
			Alpha: 1,
			Clip:  img.Bounds(),
		},
		img: img,
	}
}

// Width returns the width of the surface in pixels.
func (s *Surface) Width() int { return s.img.Rect.Dx() }

// Height returns the height of the surface in pixels.
func (s *Surface) Height() int { return s.img.Rect.Dy() }

// Bounds returns the device space rectangle covered by the surface.
func (s *Surface) Bounds() image.Rectangle { return s.img.Rect }

// Image returns the pixel buffer of the surface.  The buffer is shared,
// changes to it are visible on the surface.
func (s *Surface) Image() *image.RGBA { return s.img }

// Clear sets every pixel, ignoring the drawing state, to c.
func (s *Surface) Clear(c color.Color) {
	draw.Draw(s.img, s.img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// RGBAAt returns the premultiplied color of the pixel at (x, y).
func (s *Surface) RGBAAt(x, y int) color.RGBA {
	return s.img.RGBAAt(x, y)
}

// SetRGBA sets the pixel at (x, y), ignoring the drawing state.
func (s *Surface) SetRGBA(x, y int, c color.RGBA) {
	s.img.SetRGBA(x, y, c)
}

// Save pushes a copy of the drawing state onto the state stack.
func (s *Surface) Save() {
	s.stack = append(s.stack, s.State)
}

// Restore pops the most recently saved drawing state.  Calls without a
// matching Save are ignored.
func (s *Surface) Restore() {
	if len(s.stack) == 0 {
		return
	}
	s.State = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
}

// Do runs fn between Save and Restore.  The state is restored on every
// exit path of fn, including panics.
func (s *Surface) Do(fn func() error) error {
	s.Save()
	defer s.Restore()
	return fn()
}

// Depth returns the number of saved states.
func (s *Surface) Depth() int {
	return len(s.stack)
}

// Transform applies m to user space: m maps the new user space to the old
// one.
func (s *Surface) Transform(m matrix.Matrix) {
	s.CTM = m.Mul(s.CTM)
}

// Translate moves the origin of user space to (x, y).
func (s *Surface) Translate(x, y float64) {
	s.Transform(matrix.Translate(x, y))
}

// Scale scales user space.
func (s *Surface) Scale(sx, sy float64) {
	s.Transform(matrix.Scale(sx, sy))
}

// Rotate rotates user space by phi radians.  In device space, where y points
// down, positive angles turn clockwise.
func (s *Surface) Rotate(phi float64) {
	s.Transform(Rotation(phi))
}

// ClipRect intersects the clip region with the device space rectangle r.
func (s *Surface) ClipRect(r image.Rectangle) {
	s.Clip = s.Clip.Intersect(r)
}

// Rotation returns the matrix which rotates by phi radians.
func Rotation(phi float64) matrix.Matrix {
	sin, cos := math.Sincos(phi)
	return matrix.Matrix{cos, sin, -sin, cos, 0, 0}
}
