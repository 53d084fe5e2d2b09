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
	crand "crypto/rand"
	"math"
	"math/rand/v2"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"

	"github.com/garnajee/metafiliX/fonts"
	"github.com/garnajee/metafiliX/raster"
)

// Layout constants.
const (
	// fontScale relates the font size to the longer side of the surface.
	fontScale = 0.04

	// gridAngle is the rotation of the tile grid.
	gridAngle = -math.Pi / 4

	// gridReach is the extent of the grid, in multiples of the diagonal.
	gridReach = 1.5
)

// Jitter magnitudes for scrambled tiles.
const (
	jitterPos     = 0.3
	jitterAngle   = 0.15
	jitterScale   = 0.15
	jitterOpacity = 0.2

	minTileOpacity = 0.1
)

// Config holds the fixed parameters of a [Compositor].
type Config struct {
	// BaseFont is used to measure the text, and for all tiles when
	// scrambling is off.
	BaseFont fonts.Family

	// Fonts is the list scrambled tiles pick their font from.
	Fonts []fonts.Family

	// NewRand returns the random source for one render.  Renders never
	// share a source.
	NewRand func() *rand.Rand
}

// DefaultConfig returns the production configuration, with random sources
// seeded from crypto/rand.
func DefaultConfig() Config {
	return Config{
		BaseFont: fonts.Default,
		Fonts:    fonts.Safe,
		NewRand:  cryptoRand,
	}
}

func cryptoRand() *rand.Rand {
	var seed [32]byte
	crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// SeededRand returns a NewRand function whose sources all start from the
// same seed.
func SeededRand(seed uint64) func() *rand.Rand {
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// Tile is the placement of one copy of the watermark text.
type Tile struct {
	I, J int

	// X, Y is the unperturbed position in grid space, including the
	// offset of odd rows.
	X, Y float64

	DX, DY   float64
	Rotation float64
	Scale    float64

	Font    fonts.Family
	Opacity float64

	// CurveStart and CurveEnd are the vertical offsets of the ends of
	// the interference curve.
	CurveStart, CurveEnd float64
}

// Matrix maps tile space to grid space.
func (t *Tile) Matrix() matrix.Matrix {
	return matrix.Scale(t.Scale, t.Scale).
		Mul(raster.Rotation(t.Rotation)).
		Mul(matrix.Translate(t.X+t.DX, t.Y+t.DY))
}

// Layout is the tile grid for one surface.
type Layout struct {
	Width, Height int

	FontSize   float64
	TextWidth  float64
	TextHeight float64

	HSpacing, VSpacing float64
	XCount, YCount     int

	Tiles []Tile
}

// Origin maps grid space to device space.
func (l *Layout) Origin() matrix.Matrix {
	return raster.Rotation(gridAngle).
		Mul(matrix.Translate(float64(l.Width)/2, float64(l.Height)/2))
}

// TileMatrix maps the tile space of t to device space.
func (l *Layout) TileMatrix(t *Tile) matrix.Matrix {
	return t.Matrix().Mul(l.Origin())
}

// Covers reports whether the device point (x, y) lies in the footprint of
// some tile.  The footprint of a tile is the HSpacing × VSpacing cell
// centered on its unperturbed position.
func (l *Layout) Covers(x, y float64) bool {
	if len(l.Tiles) == 0 {
		return false
	}
	inv, ok := raster.Invert(l.Origin())
	if !ok {
		return false
	}
	p := raster.Apply(inv, vec.Vec2{X: x, Y: y})

	j := int(math.Round(p.Y / l.VSpacing))
	if j < -l.YCount || j > l.YCount {
		return false
	}
	var off float64
	if j%2 != 0 {
		off = l.HSpacing / 2
	}
	i := int(math.Round((p.X - off) / l.HSpacing))
	return i >= -l.XCount && i <= l.XCount
}

// Engine computes tile layouts.
type Engine struct {
	base  *fonts.Face
	fonts []fonts.Family
	faces map[fonts.Family]*fonts.Face
}

// NewEngine loads the fonts named in cfg.
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		fonts: cfg.Fonts,
		faces: make(map[fonts.Family]*fonts.Face),
	}
	if len(e.fonts) == 0 {
		e.fonts = []fonts.Family{cfg.BaseFont}
	}
	for _, f := range append([]fonts.Family{cfg.BaseFont}, e.fonts...) {
		face, err := fonts.Load(f)
		if err != nil {
			return nil, err
		}
		e.faces[f] = face
	}
	e.base = e.faces[cfg.BaseFont]
	return e, nil
}

// Face returns the loaded face for f, falling back to the base font.
func (e *Engine) Face(f fonts.Family) *fonts.Face {
	if face, ok := e.faces[f]; ok {
		return face
	}
	return e.base
}

// Plan computes the tile grid for a width × height surface.  Random
// choices are taken from rng, in tile order.  If the text has no width,
// the layout has no tiles.
func (e *Engine) Plan(width, height int, s Settings, rng *rand.Rand) *Layout {
	w, h := float64(width), float64(height)
	size := max(w, h) * fontScale * s.Size
	l := &Layout{
		Width:      width,
		Height:     height,
		FontSize:   size,
		TextWidth:  e.base.Measure(s.Text, size),
		TextHeight: size,
	}
	l.HSpacing = 2 * l.TextWidth
	l.VSpacing = 4 * l.TextHeight
	if !(l.HSpacing > 0 && l.VSpacing > 0) {
		return l
	}

	limit := math.Hypot(w, h) * gridReach
	l.XCount = int(math.Ceil(limit / l.HSpacing))
	l.YCount = int(math.Ceil(limit / l.VSpacing))

	scramble := s.Security.Scramble
	jitter := func(m float64) float64 {
		return (rng.Float64() - 0.5) * m
	}

	l.Tiles = make([]Tile, 0, (2*l.XCount+1)*(2*l.YCount+1))
	for j := -l.YCount; j <= l.YCount; j++ {
		var off float64
		if j%2 != 0 {
			off = l.HSpacing / 2
		}
		for i := -l.XCount; i <= l.XCount; i++ {
			t := Tile{
				I:       i,
				J:       j,
				X:       float64(i)*l.HSpacing + off,
				Y:       float64(j) * l.VSpacing,
				Scale:   1,
				Font:    e.base.Family(),
				Opacity: s.Opacity,
			}
			if scramble {
				t.DX = jitter(l.TextWidth * jitterPos)
				t.DY = jitter(l.TextHeight * jitterPos)
				t.Rotation = jitter(jitterAngle)
				t.Scale = 1 + jitter(jitterScale)
				t.Font = e.fonts[rng.IntN(len(e.fonts))]
				t.Opacity = max(minTileOpacity, min(1, s.Opacity+jitter(jitterOpacity)))
			}
			if s.Security.AddNoise {
				t.CurveStart = jitter(l.TextHeight / 3)
				t.CurveEnd = jitter(l.TextHeight / 3)
			}
			l.Tiles = append(l.Tiles, t)
		}
	}
	return l
}
