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
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is an opaque RGB color.  The zero value is black.
type Color struct {
	R, G, B uint8
}

// ErrEmptyColor is returned when a color string contains no hex digits.
var ErrEmptyColor = errors.New("color has no hex digits")

// NormalizeHex sanitizes a user supplied color into the form "#rrggbb".
//
// All characters other than hex digits are removed and the rest is
// truncated to six digits.  Three digits are expanded ("abc" becomes
// "aabbcc"), other short inputs are padded on the right with zeros.
func NormalizeHex(s string) (string, error) {
	digits := make([]byte, 0, 6)
	for i := 0; i < len(s) && len(digits) < 6; i++ {
		c := s[i]
		switch {
		case '0' <= c && c <= '9', 'a' <= c && c <= 'f':
			digits = append(digits, c)
		case 'A' <= c && c <= 'F':
			digits = append(digits, c+'a'-'A')
		}
	}
	switch len(digits) {
	case 0:
		return "", ErrEmptyColor
	case 3:
		digits = []byte{
			digits[0], digits[0],
			digits[1], digits[1],
			digits[2], digits[2],
		}
	}
	for len(digits) < 6 {
		digits = append(digits, '0')
	}
	return "#" + string(digits), nil
}

// ParseColor sanitizes s using [NormalizeHex] and returns the color.
func ParseColor(s string) (Color, error) {
	hex, err := NormalizeHex(s)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return Color{}, err
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// NRGBA returns c as an opaque [color.NRGBA].
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// MarshalText implements [encoding.TextMarshaler].
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *Color) UnmarshalText(text []byte) error {
	v, err := ParseColor(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
