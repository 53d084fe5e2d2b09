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
	"image/color"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

type csKind int

const (
	csGray csKind = iota
	csRGB
	csCMYK
	csIndexed
	csTint
	csLab
	csPattern
)

// colorSpace converts color components to sRGB.  ICC profiles and
// calibration data are ignored, tint transforms are approximated by gray
// levels.
type colorSpace struct {
	kind csKind
	n    int

	base   *colorSpace
	hival  int
	lookup []byte
}

var (
	deviceGray = &colorSpace{kind: csGray, n: 1}
	deviceRGB  = &colorSpace{kind: csRGB, n: 3}
	deviceCMYK = &colorSpace{kind: csCMYK, n: 4}
	pattern    = &colorSpace{kind: csPattern}
)

func (cs *colorSpace) components() int {
	return cs.n
}

// initial returns the initial color of the space.
func (cs *colorSpace) initial() color.NRGBA {
	switch cs.kind {
	case csCMYK:
		return cs.color([]float64{0, 0, 0, 1})
	case csTint:
		return cs.color([]float64{1})
	case csIndexed, csGray, csRGB, csLab:
		return cs.color(make([]float64, cs.n))
	}
	return color.NRGBA{A: 255}
}

// color converts the components v.  Components are in the range [0, 1],
// except for indexed spaces where v[0] is the index.
func (cs *colorSpace) color(v []float64) color.NRGBA {
	if len(v) < cs.n {
		return color.NRGBA{A: 255}
	}
	switch cs.kind {
	case csGray:
		g := unit(v[0])
		return color.NRGBA{g, g, g, 255}
	case csRGB:
		return color.NRGBA{unit(v[0]), unit(v[1]), unit(v[2]), 255}
	case csCMYK:
		k := 1 - clamp01(v[3])
		return color.NRGBA{
			unit((1 - clamp01(v[0])) * k),
			unit((1 - clamp01(v[1])) * k),
			unit((1 - clamp01(v[2])) * k),
			255,
		}
	case csTint:
		g := unit(1 - v[0])
		return color.NRGBA{g, g, g, 255}
	case csLab:
		g := unit(v[0] / 100)
		return color.NRGBA{g, g, g, 255}
	case csIndexed:
		idx := max(0, min(cs.hival, int(v[0]+0.5)))
		m := cs.base.n
		if (idx+1)*m > len(cs.lookup) {
			return color.NRGBA{A: 255}
		}
		comp := make([]float64, m)
		for i := range comp {
			comp[i] = float64(cs.lookup[idx*m+i]) / 255
		}
		return cs.base.color(comp)
	}
	return color.NRGBA{A: 255}
}

func unit(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

// colorSpaceByName resolves a color space operand: either a device space
// name or an entry of the ColorSpace resource dictionary.
func (d *Document) colorSpaceByName(name string, res types.Dict) *colorSpace {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return deviceGray
	case "DeviceRGB", "RGB", "CalRGB":
		return deviceRGB
	case "DeviceCMYK", "CMYK":
		return deviceCMYK
	case "Pattern":
		return pattern
	}
	if obj, ok := d.dict(res["ColorSpace"])[name]; ok {
		return d.colorSpace(obj, res, 0)
	}
	return deviceGray
}

// colorSpace resolves a color space object.
func (d *Document) colorSpace(obj types.Object, res types.Dict, depth int) *colorSpace {
	if depth > 4 {
		return deviceGray
	}
	obj = d.resolve(obj)
	if n, ok := obj.(types.Name); ok {
		switch string(n) {
		case "DeviceGray", "G", "CalGray", "DeviceRGB", "RGB", "CalRGB", "DeviceCMYK", "CMYK", "Pattern":
			return d.colorSpaceByName(string(n), nil)
		}
		if depth == 0 {
			if o, ok := d.dict(res["ColorSpace"])[string(n)]; ok {
				return d.colorSpace(o, res, depth+1)
			}
		}
		return deviceGray
	}

	a, ok := obj.(types.Array)
	if !ok || len(a) == 0 {
		return deviceGray
	}
	family, _ := d.name(a[0])
	switch family {
	case "CalGray":
		return deviceGray
	case "CalRGB":
		return deviceRGB
	case "Lab":
		return &colorSpace{kind: csLab, n: 3}
	case "ICCBased":
		if len(a) < 2 {
			break
		}
		dict := d.dict(a[1])
		if alt, ok := dict["Alternate"]; ok {
			return d.colorSpace(alt, res, depth+1)
		}
		switch n, _ := d.integer(dict["N"]); n {
		case 1:
			return deviceGray
		case 4:
			return deviceCMYK
		}
		return deviceRGB
	case "Indexed", "I":
		if len(a) < 4 {
			break
		}
		base := d.colorSpace(a[1], res, depth+1)
		hival, _ := d.integer(a[2])
		cs := &colorSpace{kind: csIndexed, n: 1, base: base, hival: max(0, min(hival, 255))}
		if s, ok := d.str(a[3]); ok {
			cs.lookup = s
		} else if _, data, err := d.stream(a[3]); err == nil {
			cs.lookup = data
		}
		return cs
	case "Separation":
		return &colorSpace{kind: csTint, n: 1}
	case "DeviceN":
		n := 1
		if len(a) > 1 {
			n = max(1, len(d.array(a[1])))
		}
		return &colorSpace{kind: csTint, n: n}
	case "Pattern":
		return pattern
	}
	return deviceGray
}
