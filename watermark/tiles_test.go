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
	"testing"

	"github.com/google/go-cmp/cmp"
	"seehuhn.de/go/geom/vec"

	"github.com/garnajee/metafiliX/fonts"
	"github.com/garnajee/metafiliX/raster"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func plain(text string) Settings {
	s := DefaultSettings()
	s.Text = text
	s.Security = Security{Rasterize: true}
	return s
}

func TestCoverage(t *testing.T) {
	e := newEngine(t)
	sizes := []struct{ w, h int }{
		{100, 100}, {600, 400}, {50, 2000}, {4096, 2457}, {1, 1},
	}
	variants := map[string]func(*Settings){
		"plain":    func(s *Settings) {},
		"scramble": func(s *Settings) { s.Security.Scramble = true },
		"small":    func(s *Settings) { s.Size = 0.25 },
		"large":    func(s *Settings) { s.Size = 4; s.Security.Scramble = true },
		"short":    func(s *Settings) { s.Text = "x" },
	}
	rng := SeededRand(1)()
	for name, mod := range variants {
		for _, sz := range sizes {
			s := DefaultSettings()
			s.Security = Security{}
			mod(&s)
			l := e.Plan(sz.w, sz.h, s, rng)
			if len(l.Tiles) == 0 {
				t.Fatalf("%s %dx%d: no tiles", name, sz.w, sz.h)
			}
			const n = 25
			for a := 0; a <= n; a++ {
				for b := 0; b <= n; b++ {
					x := float64(sz.w) * float64(a) / n
					y := float64(sz.h) * float64(b) / n
					if !l.Covers(x, y) {
						t.Errorf("%s %dx%d: point (%g, %g) not covered", name, sz.w, sz.h, x, y)
					}
				}
			}
		}
	}
}

func TestPlanUnscrambled(t *testing.T) {
	e := newEngine(t)
	s := plain("Confidentiel")
	s.Opacity = 0.42
	l := e.Plan(800, 600, s, SeededRand(7)())

	if l.FontSize != 800*0.04 {
		t.Errorf("font size %g", l.FontSize)
	}
	base, _ := fonts.Load(fonts.Default)
	if l.TextWidth != base.Measure("Confidentiel", l.FontSize) {
		t.Errorf("text width %g", l.TextWidth)
	}
	if l.HSpacing != 2*l.TextWidth || l.VSpacing != 4*l.TextHeight {
		t.Errorf("spacing %g × %g", l.HSpacing, l.VSpacing)
	}
	if got, want := len(l.Tiles), (2*l.XCount+1)*(2*l.YCount+1); got != want {
		t.Errorf("%d tiles, want %d", got, want)
	}

	for _, tile := range l.Tiles {
		if tile.DX != 0 || tile.DY != 0 || tile.Rotation != 0 || tile.Scale != 1 {
			t.Fatalf("tile %d,%d is perturbed: %+v", tile.I, tile.J, tile)
		}
		if tile.Font != fonts.Default || tile.Opacity != 0.42 {
			t.Fatalf("tile %d,%d: font %s, opacity %g", tile.I, tile.J, tile.Font, tile.Opacity)
		}
		wantX := float64(tile.I) * l.HSpacing
		if tile.J%2 != 0 {
			wantX += l.HSpacing / 2
		}
		if tile.X != wantX || tile.Y != float64(tile.J)*l.VSpacing {
			t.Fatalf("tile %d,%d at (%g, %g)", tile.I, tile.J, tile.X, tile.Y)
		}
	}
}

func TestTileMatrix(t *testing.T) {
	e := newEngine(t)
	l := e.Plan(400, 200, plain("abc"), SeededRand(1)())

	var center *Tile
	for i := range l.Tiles {
		if l.Tiles[i].I == 0 && l.Tiles[i].J == 0 {
			center = &l.Tiles[i]
		}
	}
	if center == nil {
		t.Fatal("no center tile")
	}
	p := raster.Apply(l.TileMatrix(center), vec.Vec2{})
	if math.Abs(p.X-200) > 1e-9 || math.Abs(p.Y-100) > 1e-9 {
		t.Errorf("center tile at %v", p)
	}

	// the text direction points up and to the right
	q := raster.Apply(l.TileMatrix(center), vec.Vec2{X: 10})
	if !(q.X > p.X && q.Y < p.Y) {
		t.Errorf("unexpected text direction %v -> %v", p, q)
	}
}

func TestSeededScramble(t *testing.T) {
	e := newEngine(t)
	s := DefaultSettings()

	a := e.Plan(640, 480, s, SeededRand(42)())
	b := e.Plan(640, 480, s, SeededRand(42)())
	if d := cmp.Diff(a, b); d != "" {
		t.Errorf("same seed, different layouts (-a +b):\n%s", d)
	}

	c := e.Plan(640, 480, s, SeededRand(43)())
	if cmp.Equal(a, c) {
		t.Error("different seeds gave identical layouts")
	}
}

func TestScrambleRanges(t *testing.T) {
	e := newEngine(t)
	safe := map[fonts.Family]bool{}
	for _, f := range fonts.Safe {
		safe[f] = true
	}

	for _, opacity := range []float64{0.05, 0.3, 1} {
		s := DefaultSettings()
		s.Opacity = opacity
		l := e.Plan(1000, 700, s, SeededRand(uint64(opacity*100))())
		tw, th := l.TextWidth, l.TextHeight
		for _, tile := range l.Tiles {
			if tile.Opacity < 0.1 || tile.Opacity > 1 {
				t.Errorf("opacity %g out of range", tile.Opacity)
			}
			if math.Abs(tile.DX) > 0.15*tw || math.Abs(tile.DY) > 0.15*th {
				t.Errorf("position jitter (%g, %g) too large", tile.DX, tile.DY)
			}
			if math.Abs(tile.Rotation) > 0.075 {
				t.Errorf("rotation jitter %g too large", tile.Rotation)
			}
			if tile.Scale < 0.925 || tile.Scale > 1.075 {
				t.Errorf("scale %g out of range", tile.Scale)
			}
			if !safe[tile.Font] {
				t.Errorf("font %s is not in the safe list", tile.Font)
			}
			if math.Abs(tile.CurveStart) > th/6 || math.Abs(tile.CurveEnd) > th/6 {
				t.Errorf("curve offsets %g, %g too large", tile.CurveStart, tile.CurveEnd)
			}
		}
	}
}

func TestPlanEmptyText(t *testing.T) {
	e := newEngine(t)
	l := e.Plan(300, 300, plain(""), SeededRand(1)())
	if len(l.Tiles) != 0 {
		t.Errorf("%d tiles for empty text", len(l.Tiles))
	}
	if l.Covers(150, 150) {
		t.Error("empty layout covers a point")
	}
}
