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
	"context"
	"math/rand/v2"

	"go.uber.org/zap"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/vec"

	"github.com/garnajee/metafiliX/fonts"
	"github.com/garnajee/metafiliX/raster"
)

// midFade is the opacity reduction in the middle of the text.
const midFade = 0.1

// Compositor stamps watermarks onto surfaces.  A Compositor may be used
// by several goroutines at once, as long as every call gets its own
// surface.
type Compositor struct {
	engine  *Engine
	newRand func() *rand.Rand
	log     *zap.Logger
}

// New creates a compositor.  If cfg.Fonts is nil, both font fields are
// taken from [DefaultConfig], and so is a nil NewRand.
func New(cfg Config, log *zap.Logger) (*Compositor, error) {
	def := DefaultConfig()
	if cfg.Fonts == nil {
		cfg.BaseFont, cfg.Fonts = def.BaseFont, def.Fonts
	}
	if cfg.NewRand == nil {
		cfg.NewRand = def.NewRand
	}
	if log == nil {
		log = zap.NewNop()
	}

	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Compositor{engine: e, newRand: cfg.NewRand, log: log}, nil
}

// Engine returns the layout engine used by c.
func (c *Compositor) Engine() *Engine {
	return c.engine
}

// Stamp draws the watermark described by settings onto s.
func (c *Compositor) Stamp(s *raster.Surface, settings Settings) error {
	return c.StampContext(context.Background(), s, settings)
}

// StampContext is like [Compositor.Stamp], but stops between tiles once
// ctx is cancelled.  The drawing state of s is the same before and after
// the call, on every return path.
func (c *Compositor) StampContext(ctx context.Context, s *raster.Surface, settings Settings) error {
	settings, err := settings.Normalize()
	if err != nil {
		return err
	}

	rng := c.newRand()
	layout := c.engine.Plan(s.Width(), s.Height(), settings, rng)
	c.log.Debug("stamping",
		zap.Int("width", layout.Width),
		zap.Int("height", layout.Height),
		zap.Float64("fontSize", layout.FontSize),
		zap.Int("tiles", len(layout.Tiles)))

	outlines := make(map[fonts.Family]*path.Data)
	outline := func(f fonts.Family) *path.Data {
		p, ok := outlines[f]
		if !ok {
			p = c.engine.Face(f).Outline(settings.Text, layout.FontSize)
			outlines[f] = p
		}
		return p
	}

	err = s.Do(func() error {
		s.Transform(layout.Origin())
		s.Blend = raster.Multiply
		for i := range layout.Tiles {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := &layout.Tiles[i]
			s.Do(func() error {
				s.Transform(t.Matrix())
				c.drawTile(s, layout, t, outline(t.Font), settings)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if settings.Security.AddNoise {
		Grain(s, rng)
	}
	return nil
}

// drawTile draws one tile in tile space.
func (c *Compositor) drawTile(s *raster.Surface, l *Layout, t *Tile, outline *path.Data, settings Settings) {
	tw, th := l.TextWidth, l.TextHeight
	op := t.Opacity
	col := settings.Color

	s.Fill(outline, raster.Paint{
		Color: col.NRGBA(),
		Fade: &raster.Fade{
			From: vec.Vec2{X: 0, Y: -th / 2},
			To:   vec.Vec2{X: 0, Y: th / 2},
			Stops: []raster.Stop{
				{Offset: 0, Alpha: op},
				{Offset: 0.5, Alpha: max(0, op-midFade)},
				{Offset: 1, Alpha: op},
			},
		},
	})

	if !settings.Security.AddNoise {
		return
	}
	Hatch(s, tw, th, col, op)
	GhostStroke(s, outline, col, op)
	Interference(s, tw, th, t.CurveStart, t.CurveEnd, col, op)
}
