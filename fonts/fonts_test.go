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
	"math"
	"sync"
	"testing"
)

func TestLoadAll(t *testing.T) {
	faces, err := LoadAll(All)
	if err != nil {
		t.Fatal(err)
	}
	for i, face := range faces {
		if face.Family() != All[i] {
			t.Errorf("face %d: got %s, want %s", i, face.Family(), All[i])
		}
		if face.Ascent() <= 0 || face.Descent() <= 0 {
			t.Errorf("%s: bad metrics %g %g", face.Name(), face.Ascent(), face.Descent())
		}
	}

	again, err := Load(All[0])
	if err != nil {
		t.Fatal(err)
	}
	if again != faces[0] {
		t.Error("faces are not shared")
	}
}

func TestLoadUnknown(t *testing.T) {
	if _, err := Load(Family(99)); err == nil {
		t.Error("missing error for unknown font")
	}
	if got := Family(99).String(); got != "Family(99)" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestSafe(t *testing.T) {
	if len(Safe) == 0 {
		t.Fatal("empty safe list")
	}
	seen := map[Family]bool{}
	for _, f := range Safe {
		if seen[f] {
			t.Errorf("%s listed twice", f)
		}
		seen[f] = true
		if _, err := Load(f); err != nil {
			t.Error(err)
		}
	}
	if !seen[Default] {
		t.Error("default font is not in the safe list")
	}
}

func TestMeasure(t *testing.T) {
	face, err := Load(Bold)
	if err != nil {
		t.Fatal(err)
	}

	if w := face.Measure("", 100); w != 0 {
		t.Errorf("empty string has width %g", w)
	}
	if face.Measure("iiii", 10) >= face.Measure("WWWW", 10) {
		t.Error("narrow letters are not narrower")
	}

	w1 := face.Measure("Document", 1)
	w7 := face.Measure("Document", 7)
	if math.Abs(w7-7*w1) > 1e-9 {
		t.Errorf("width does not scale: %g vs %g", w7, 7*w1)
	}

	mono, err := Load(Mono)
	if err != nil {
		t.Fatal(err)
	}
	a, b := mono.Measure("iii", 12), mono.Measure("MMM", 12)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("monospace widths differ: %g vs %g", a, b)
	}
}

func TestOutlineCentered(t *testing.T) {
	face, err := Load(Bold)
	if err != nil {
		t.Fatal(err)
	}

	const size = 100
	for _, text := range []string{"H", "HOH", "Document exclusivement destiné à la location"} {
		p := face.Outline(text, size)
		if len(p.Cmds) == 0 {
			t.Fatalf("%q: empty outline", text)
		}
		xMin, yMin := math.Inf(1), math.Inf(1)
		xMax, yMax := math.Inf(-1), math.Inf(-1)
		for _, c := range p.Coords {
			xMin, xMax = min(xMin, c.X), max(xMax, c.X)
			yMin, yMax = min(yMin, c.Y), max(yMax, c.Y)
		}
		w := face.Measure(text, size)
		if xMin < -w/2-1 || xMax > w/2+1 {
			t.Errorf("%q: x range [%g, %g] exceeds advance %g", text, xMin, xMax, w)
		}
		if cx := (xMin + xMax) / 2; math.Abs(cx) > 0.05*size {
			t.Errorf("%q: not centered horizontally, %g", text, cx)
		}
		if cy := (yMin + yMax) / 2; math.Abs(cy) > 0.2*size {
			t.Errorf("%q: not centered vertically, %g", text, cy)
		}
	}
}

func TestGlyphYUp(t *testing.T) {
	face, err := Load(Regular)
	if err != nil {
		t.Fatal(err)
	}
	g := face.Glyph('l')
	if g.ID == 0 {
		t.Fatal("no glyph for 'l'")
	}
	var yMax float64
	for _, c := range g.Outline.Coords {
		yMax = max(yMax, c.Y)
	}
	if yMax < 0.5 {
		t.Errorf("ascender of 'l' at %g, want above the baseline", yMax)
	}

	missing := face.Glyph('\U0010FFFD')
	if missing.ID != 0 || len(missing.Outline.Cmds) != 0 {
		t.Errorf("unexpected glyph for a private use character: %v", missing.ID)
	}
}

func TestConcurrentUse(t *testing.T) {
	face, err := Load(MediumItalic)
	if err != nil {
		t.Fatal(err)
	}
	want := face.Measure("concurrent", 3)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if got := face.Measure("concurrent", 3); got != want {
					t.Errorf("got %g, want %g", got, want)
					return
				}
				face.Outline("concurrent", 3)
			}
		}()
	}
	wg.Wait()
}

func TestSubstitute(t *testing.T) {
	cases := []struct {
		in   string
		want Family
	}{
		{"Helvetica", Regular},
		{"Helvetica-Bold", Bold},
		{"Helvetica-BoldOblique", BoldItalic},
		{"Times-Italic", Italic},
		{"ABCDEF+TimesNewRomanPS-ItalicMT", Italic},
		{"Courier", Mono},
		{"Courier-Bold", MonoBold},
		{"Courier-BoldOblique", MonoBoldItalic},
		{"CourierNew,Italic", MonoItalic},
		{"Arial-Black", Bold},
		{"XYZABC+Minion-SmallCaps", Smallcaps},
		{"", Regular},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := Substitute(tc.in); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}
