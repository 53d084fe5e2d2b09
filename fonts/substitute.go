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

import "strings"

// Substitute picks the Go font which best approximates the PDF font with
// the given base font name, for example "Helvetica-BoldOblique" or
// "ABCDEF+TimesNewRomanPS-ItalicMT".
func Substitute(baseFont string) Family {
	name := baseFont
	if i := strings.IndexByte(name, '+'); i == 6 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)

	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}

	mono := has("courier", "mono", "consol", "typewriter")
	bold := has("bold", "black", "heavy", "semibold", "demi")
	italic := has("italic", "oblique", "slanted")

	switch {
	case mono && bold && italic:
		return MonoBoldItalic
	case mono && bold:
		return MonoBold
	case mono && italic:
		return MonoItalic
	case mono:
		return Mono
	case bold && italic:
		return BoldItalic
	case bold:
		return Bold
	case italic:
		return Italic
	case has("smallcap", "caps"):
		return Smallcaps
	}
	return Regular
}
