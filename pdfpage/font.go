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

package pdfpage

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"

	"github.com/garnajee/metafiliX/fonts"
	"github.com/garnajee/metafiliX/internal/pdf"
	"github.com/garnajee/metafiliX/internal/pdf/scanner"
)

// pdfFont is a PDF font, drawn with a substitute Go font.  Advance widths
// come from the PDF font, so that text keeps its layout.
type pdfFont struct {
	face *fonts.Face

	composite bool
	type3     bool

	widths       map[int]float64
	defaultWidth float64
	faceWidths   bool

	encoding  [256]rune
	toUnicode map[int][]rune
}

// textGlyph is one character code of a shown string.
type textGlyph struct {
	code  int
	text  []rune
	width float64 // in thousandths of the font size
	space bool
}

// font loads the font dictionary obj.  Fonts given by reference are
// cached.  If obj is not a font, nil is returned.
func (d *Document) font(obj types.Object) *pdfFont {
	ref, isRef := obj.(types.IndirectRef)
	if isRef {
		if f, ok := d.fonts[int(ref.ObjectNumber)]; ok {
			return f
		}
	}
	dict := d.dict(obj)
	if dict == nil {
		return nil
	}
	f := d.loadFont(dict)
	if isRef {
		d.fonts[int(ref.ObjectNumber)] = f
	}
	return f
}

func (d *Document) loadFont(dict types.Dict) *pdfFont {
	subtype, _ := d.name(dict["Subtype"])
	baseFont, _ := d.name(dict["BaseFont"])

	f := &pdfFont{
		widths: make(map[int]float64),
	}

	switch subtype {
	case "Type0":
		f.composite = true
		f.defaultWidth = 1000
		desc := d.array(dict["DescendantFonts"])
		if len(desc) > 0 {
			cid := d.dict(desc[0])
			if baseFont == "" {
				baseFont, _ = d.name(cid["BaseFont"])
			}
			if dw, ok := d.number(cid["DW"]); ok {
				f.defaultWidth = dw
			}
			d.readCIDWidths(f, d.array(cid["W"]))
		}
	case "Type3":
		f.type3 = true
		scale := 1.0
		if m := d.numbers(dict["FontMatrix"]); len(m) == 6 {
			scale = m[0] * 1000
		}
		d.readSimpleWidths(f, dict, scale)
		f.encoding = d.simpleEncoding(dict["Encoding"])
	default:
		d.readSimpleWidths(f, dict, 1)
		if len(f.widths) == 0 {
			f.faceWidths = true
		}
		if desc := d.dict(dict["FontDescriptor"]); desc != nil {
			if mw, ok := d.number(desc["MissingWidth"]); ok {
				f.defaultWidth = mw
			}
		}
		f.encoding = d.simpleEncoding(dict["Encoding"])
	}

	face, err := fonts.Load(fonts.Substitute(baseFont))
	if err != nil {
		face, _ = fonts.Load(fonts.Regular)
	}
	f.face = face

	if _, data, err := d.stream(dict["ToUnicode"]); err == nil {
		f.toUnicode = parseToUnicode(data)
	}
	return f
}

func (d *Document) readSimpleWidths(f *pdfFont, dict types.Dict, scale float64) {
	first, _ := d.integer(dict["FirstChar"])
	for i, w := range d.array(dict["Widths"]) {
		if v, ok := d.number(w); ok {
			f.widths[first+i] = v * scale
		}
	}
}

// readCIDWidths reads the W array of a CIDFont, which has entries of the
// forms "c [w1 w2 ...]" and "c_first c_last w".
func (d *Document) readCIDWidths(f *pdfFont, w types.Array) {
	for i := 0; i < len(w); {
		c, ok := d.integer(w[i])
		if !ok || i+1 >= len(w) {
			return
		}
		if list := d.array(w[i+1]); list != nil {
			for k, x := range list {
				if v, ok := d.number(x); ok {
					f.widths[c+k] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			return
		}
		last, ok1 := d.integer(w[i+1])
		v, ok2 := d.number(w[i+2])
		if !ok1 || !ok2 || last-c > 0xFFFF {
			return
		}
		for code := c; code <= last; code++ {
			f.widths[code] = v
		}
		i += 3
	}
}

// simpleEncoding builds the code to Unicode table of a simple font.
func (d *Document) simpleEncoding(obj types.Object) [256]rune {
	var enc [256]rune
	base := charmap.Windows1252
	var differences types.Array

	if name, ok := d.name(obj); ok && name == "MacRomanEncoding" {
		base = charmap.Macintosh
	} else if dict := d.dict(obj); dict != nil {
		if name, _ := d.name(dict["BaseEncoding"]); name == "MacRomanEncoding" {
			base = charmap.Macintosh
		}
		differences = d.array(dict["Differences"])
	}

	for i := range enc {
		r := base.DecodeByte(byte(i))
		if r == utf8.RuneError {
			r = 0
		}
		enc[i] = r
	}

	code := -1
	for _, x := range differences {
		if c, ok := d.integer(x); ok {
			code = c
			continue
		}
		name, ok := d.name(x)
		if !ok || code < 0 || code > 255 {
			continue
		}
		if r, ok := glyphRune(name); ok {
			enc[code] = r
		}
		code++
	}
	return enc
}

// decode splits a string into character codes.
func (f *pdfFont) decode(s pdf.String) []textGlyph {
	var res []textGlyph
	if f.composite {
		for i := 0; i+1 < len(s); i += 2 {
			code := int(s[i])<<8 | int(s[i+1])
			g := textGlyph{code: code, text: f.toUnicode[code]}
			g.width = f.defaultWidth
			if w, ok := f.widths[code]; ok {
				g.width = w
			}
			res = append(res, g)
		}
		return res
	}

	for _, c := range s {
		code := int(c)
		g := textGlyph{code: code, space: c == ' '}
		if text, ok := f.toUnicode[code]; ok {
			g.text = text
		} else if r := f.encoding[c]; r != 0 {
			g.text = []rune{r}
		}
		if w, ok := f.widths[code]; ok {
			g.width = w
		} else if f.faceWidths && len(g.text) > 0 {
			for _, r := range g.text {
				g.width += f.face.Glyph(r).Advance * 1000
			}
		} else {
			g.width = f.defaultWidth
		}
		if f.type3 {
			g.text = nil
		}
		res = append(res, g)
	}
	return res
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode
// CMap.
func parseToUnicode(data []byte) map[int][]rune {
	m := make(map[int][]rune)
	sc := scanner.New()
	sc.Scan(data)(func(op string, args []pdf.Object) error {
		switch op {
		case "endbfchar":
			for i := 0; i+1 < len(args); i += 2 {
				src, ok1 := args[i].(pdf.String)
				dst, ok2 := args[i+1].(pdf.String)
				if ok1 && ok2 {
					m[codeOf(src)] = utf16Runes(dst)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(args); i += 3 {
				lo, ok1 := args[i].(pdf.String)
				hi, ok2 := args[i+1].(pdf.String)
				if !ok1 || !ok2 {
					continue
				}
				first, last := codeOf(lo), codeOf(hi)
				if last < first || last-first > 0xFFFF {
					continue
				}
				switch dst := args[i+2].(type) {
				case pdf.String:
					rr := utf16Runes(dst)
					if len(rr) == 0 {
						continue
					}
					for code := first; code <= last; code++ {
						r := append([]rune(nil), rr...)
						r[len(r)-1] += rune(code - first)
						m[code] = r
					}
				case pdf.Array:
					for k, x := range dst {
						if s, ok := x.(pdf.String); ok && first+k <= last {
							m[first+k] = utf16Runes(s)
						}
					}
				}
			}
		}
		return nil
	})
	return m
}

func codeOf(s pdf.String) int {
	code := 0
	for _, b := range s {
		code = code<<8 | int(b)
	}
	return code
}

func utf16Runes(s pdf.String) []rune {
	units := make([]uint16, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		units = append(units, uint16(s[i])<<8|uint16(s[i+1]))
	}
	return utf16.Decode(units)
}

// glyphRune maps a glyph name to a character.
func glyphRune(name string) (rune, bool) {
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		c := name[0]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' {
			return rune(c), true
		}
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		return glyphRune(name[:i])
	}
	if hex, ok := strings.CutPrefix(name, "uni"); ok && len(hex) >= 4 {
		if v, err := strconv.ParseUint(hex[:4], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if hex, ok := strings.CutPrefix(name, "u"); ok && len(hex) >= 4 && len(hex) <= 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#',
	"dollar": '$', "percent": '%', "ampersand": '&', "quotesingle": '\'',
	"quoteright": '’', "parenleft": '(', "parenright": ')', "asterisk": '*',
	"plus": '+', "comma": ',', "hyphen": '-', "period": '.', "slash": '/',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"colon": ':', "semicolon": ';', "less": '<', "equal": '=',
	"greater": '>', "question": '?', "at": '@', "bracketleft": '[',
	"backslash": '\\', "bracketright": ']', "asciicircum": '^',
	"underscore": '_', "grave": '`', "quoteleft": '‘', "braceleft": '{',
	"bar": '|', "braceright": '}', "asciitilde": '~',
	"bullet": '•', "endash": '–', "emdash": '—', "ellipsis": '…',
	"quotedblleft": '“', "quotedblright": '”', "fi": 'ﬁ', "fl": 'ﬂ',
	"Euro": '€', "degree": '°', "section": '§', "copyright": '©',
	"registered": '®', "trademark": '™', "guillemotleft": '«',
	"guillemotright": '»', "minus": '−', "nbspace": ' ',
	"eacute": 'é', "egrave": 'è', "ecircumflex": 'ê', "edieresis": 'ë',
	"agrave": 'à', "acircumflex": 'â', "ccedilla": 'ç', "ocircumflex": 'ô',
	"ugrave": 'ù', "ucircumflex": 'û', "idieresis": 'ï', "icircumflex": 'î',
	"Eacute": 'É', "Egrave": 'È', "Agrave": 'À', "Ccedilla": 'Ç',
	"oe": 'œ', "OE": 'Œ', "germandbls": 'ß', "adieresis": 'ä',
	"odieresis": 'ö', "udieresis": 'ü', "Adieresis": 'Ä', "Odieresis": 'Ö',
	"Udieresis": 'Ü',
}
