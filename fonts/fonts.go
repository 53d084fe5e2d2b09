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

// Package fonts provides the fonts used to draw watermark text and to
// substitute fonts while rendering PDF pages.
//
// All fonts come from the Go font family, which is compiled into the
// binary.  Outlines and advance widths are read with
// [golang.org/x/image/font/sfnt].
package fonts

import (
	"fmt"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/gofont/gosmallcapsitalic"
)

// Family identifies one font of the Go font family.
type Family int

// Constants for the available fonts.
const (
	Regular         Family = iota // Go Regular
	Bold                          // Go Bold
	BoldItalic                    // Go Bold Italic
	Italic                        // Go Italic
	Medium                        // Go Medium
	MediumItalic                  // Go Medium Italic
	Smallcaps                     // Go Smallcaps
	SmallcapsItalic               // Go Smallcaps Italic
	Mono                          // Go Mono
	MonoBold                      // Go Mono Bold
	MonoBoldItalic                // Go Mono Bold Italic
	MonoItalic                    // Go Mono Italic
)

var familyNames = map[Family]string{
	Regular:         "Go Regular",
	Bold:            "Go Bold",
	BoldItalic:      "Go Bold Italic",
	Italic:          "Go Italic",
	Medium:          "Go Medium",
	MediumItalic:    "Go Medium Italic",
	Smallcaps:       "Go Smallcaps",
	SmallcapsItalic: "Go Smallcaps Italic",
	Mono:            "Go Mono",
	MonoBold:        "Go Mono Bold",
	MonoBoldItalic:  "Go Mono Bold Italic",
	MonoItalic:      "Go Mono Italic",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

var ttf = map[Family][]byte{
	Regular:         goregular.TTF,
	Bold:            gobold.TTF,
	BoldItalic:      gobolditalic.TTF,
	Italic:          goitalic.TTF,
	Medium:          gomedium.TTF,
	MediumItalic:    gomediumitalic.TTF,
	Smallcaps:       gosmallcaps.TTF,
	SmallcapsItalic: gosmallcapsitalic.TTF,
	Mono:            gomono.TTF,
	MonoBold:        gomonobold.TTF,
	MonoBoldItalic:  gomonobolditalic.TTF,
	MonoItalic:      gomonoitalic.TTF,
}

// All lists every available font.
var All = []Family{
	Regular, Bold, BoldItalic, Italic,
	Medium, MediumItalic, Smallcaps, SmallcapsItalic,
	Mono, MonoBold, MonoBoldItalic, MonoItalic,
}

// Default is the font used for measuring watermark text and for all tiles
// when scrambling is off.
const Default = Bold

// Safe is the fixed list of heavy fonts from which scrambled watermark
// tiles pick their font.
var Safe = []Family{
	Bold, BoldItalic, Medium, MediumItalic,
	Smallcaps, MonoBold, MonoBoldItalic,
}

var (
	loadMu sync.Mutex
	loaded = map[Family]*Face{}
)

// Load returns the face for f.  Faces are parsed once and shared, they are
// safe for concurrent use.
func Load(f Family) (*Face, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if face, ok := loaded[f]; ok {
		return face, nil
	}
	data, ok := ttf[f]
	if !ok {
		return nil, fmt.Errorf("fonts: unknown font %d", int(f))
	}
	face, err := parse(f, data)
	if err != nil {
		return nil, fmt.Errorf("fonts: %s: %w", f, err)
	}
	loaded[f] = face
	return face, nil
}

// LoadAll returns the faces for the given fonts, in order.
func LoadAll(fams []Family) ([]*Face, error) {
	res := make([]*Face, len(fams))
	for i, f := range fams {
		face, err := Load(f)
		if err != nil {
			return nil, err
		}
		res[i] = face
	}
	return res, nil
}
