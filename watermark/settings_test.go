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
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeHex(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"#000000", "#000000"},
		{"#FF8800", "#ff8800"},
		{"ff8800", "#ff8800"},
		{"#abc", "#aabbcc"},
		{"#ABC", "#aabbcc"},
		{"#12", "#120000"},
		{"#1", "#100000"},
		{"#abcd", "#abcd00"},
		{"#1234567890", "#123456"},
		{"  #12 34 56 ", "#123456"},
		{"#gg11hh22zz33", "#112233"},
		{"rgb(1,2,3)", "#b12300"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeHex(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeHexEmpty(t *testing.T) {
	for _, in := range []string{"", "#", "xyz", "###"} {
		if _, err := NormalizeHex(in); !errors.Is(err, ErrEmptyColor) {
			t.Errorf("%q: got %v", in, err)
		}
		if _, err := ParseColor(in); !errors.Is(err, ErrEmptyColor) {
			t.Errorf("ParseColor(%q): got %v", in, err)
		}
	}
}

var hexForm = regexp.MustCompile(`^#[0-9a-f]{6}$`)

func FuzzNormalizeHex(f *testing.F) {
	f.Add("#000000")
	f.Add("#abc")
	f.Add("hello world")
	f.Add("")
	f.Fuzz(func(t *testing.T, in string) {
		out, err := NormalizeHex(in)
		if err != nil {
			return
		}
		if !hexForm.MatchString(out) {
			t.Fatalf("%q -> %q", in, out)
		}
		again, err := NormalizeHex(out)
		if err != nil || again != out {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, out, again)
		}
		c, err := ParseColor(in)
		if err != nil {
			t.Fatal(err)
		}
		if c.String() != out {
			t.Fatalf("ParseColor(%q) = %s, want %s", in, c, out)
		}
	})
}

func TestClampOpacity(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{1.5, 1},
		{-0.2, 0.05},
		{0, 0.05},
		{0.3, 0.3},
		{1, 1},
		{math.NaN(), 0.05},
		{math.Inf(1), 1},
	}
	for _, tc := range cases {
		if got := ClampOpacity(tc.in); got != tc.want {
			t.Errorf("ClampOpacity(%g) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	s := DefaultSettings()
	s.Text = "De\u0301ja\u0300"
	s.Opacity = 7

	got, err := s.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "D\u00e9j\u00e0" {
		t.Errorf("text not in NFC form: %q", got.Text)
	}
	if got.Opacity != 1 {
		t.Errorf("opacity not clamped: %g", got.Opacity)
	}
	if s.Opacity != 7 {
		t.Error("Normalize modified its receiver")
	}

	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		s := DefaultSettings()
		s.Size = size
		if _, err := s.Normalize(); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("size %g: got %v", size, err)
		}
	}

	s = DefaultSettings()
	s.OutputFormat = "tiff"
	if _, err := s.Normalize(); err == nil {
		t.Error("missing error for unknown output format")
	}
}

func TestSettingsJSON(t *testing.T) {
	body := `{
		"text": "Confidentiel",
		"opacity": 0.5,
		"color": "#F0A",
		"size": 1.5,
		"outputFormat": "pdf",
		"removeMetadata": false,
		"security": {"rasterize": true, "addNoise": false, "scramble": true}
	}`
	var got Settings
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	want := Settings{
		Text:         "Confidentiel",
		Opacity:      0.5,
		Color:        Color{R: 0xff, G: 0x00, B: 0xaa},
		Size:         1.5,
		OutputFormat: FormatPDF,
		Security:     Security{Rasterize: true, Scramble: true},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("unexpected settings (-want +got):\n%s", d)
	}

	out, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`"color":"#ff00aa"`).Match(out) {
		t.Errorf("color not encoded as hex: %s", out)
	}

	if err := json.Unmarshal([]byte(`{"color": "???"}`), &got); err == nil {
		t.Error("missing error for color without digits")
	}
	if err := json.Unmarshal([]byte(`{"outputFormat": "gif"}`), &got); err == nil {
		t.Error("missing error for unknown output format")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Text != DefaultText || s.Opacity != 0.3 || s.Size != 1 {
		t.Errorf("unexpected defaults %+v", s)
	}
	if s.Color.String() != "#000000" {
		t.Errorf("default color %s", s.Color)
	}
	if !s.RemoveMetadata || s.OutputFormat != FormatOriginal {
		t.Errorf("unexpected defaults %+v", s)
	}
	if s.Security != (Security{Rasterize: true, AddNoise: true, Scramble: true}) {
		t.Errorf("unexpected security defaults %+v", s.Security)
	}
}
