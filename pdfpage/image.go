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
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
	"seehuhn.de/go/geom/matrix"

	"github.com/garnajee/metafiliX/internal/pdf"
	"github.com/garnajee/metafiliX/internal/pdf/scanner"
	"github.com/garnajee/metafiliX/raster"
)

// imageInfo describes the samples of an image.
type imageInfo struct {
	width, height int
	bpc           int
	space         *colorSpace
	stencil       bool
	decode        []float64
	jpeg          bool
}

var errImageSize = errors.New("invalid image size")

// decodeImage converts image samples into an image.  Stencil masks are
// painted in the given color.
func decodeImage(info imageInfo, data []byte, paint color.NRGBA) (image.Image, error) {
	if info.jpeg {
		return jpeg.Decode(bytes.NewReader(data))
	}

	w, h := info.width, info.height
	if w <= 0 || h <= 0 || int64(w)*int64(h) > raster.MaxPixels {
		return nil, errImageSize
	}
	bpc := info.bpc
	if info.stencil {
		bpc = 1
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("unsupported BitsPerComponent %d", bpc)
	}
	space := info.space
	if space == nil {
		space = deviceGray
	}
	ncomp := 1
	if !info.stencil {
		ncomp = space.components()
	}

	maxV := float64(int(1)<<bpc - 1)
	decode := info.decode
	if len(decode) != 2*ncomp {
		decode = make([]float64, 2*ncomp)
		for c := range ncomp {
			decode[2*c+1] = 1
			if space.kind == csIndexed && !info.stencil {
				decode[2*c+1] = maxV
			}
		}
	}

	stride := (w*ncomp*bpc + 7) / 8
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	comp := make([]float64, ncomp)
	for y := range h {
		if (y+1)*stride > len(data) {
			break
		}
		row := data[y*stride : (y+1)*stride]
		for x := range w {
			for c := range ncomp {
				v := float64(sample(row, (x*ncomp+c)*bpc, bpc))
				lo, hi := decode[2*c], decode[2*c+1]
				comp[c] = lo + v*(hi-lo)/maxV
			}
			if info.stencil {
				if comp[0] < 0.5 {
					img.SetNRGBA(x, y, paint)
				}
				continue
			}
			img.SetNRGBA(x, y, space.color(comp))
		}
	}
	return img, nil
}

// sample extracts the bpc-bit value starting at the given bit offset.
func sample(row []byte, bit, bpc int) int {
	i := bit / 8
	switch bpc {
	case 8:
		return int(row[i])
	case 16:
		return int(row[i])<<8 | int(row[i+1])
	}
	shift := 8 - bpc - bit%8
	return int(row[i]>>shift) & (1<<bpc - 1)
}

// applySoftMask multiplies the alpha channel of img by the gray levels of
// mask, scaling the mask to the image size.
func applySoftMask(img image.Image, mask image.Image) *image.NRGBA {
	b := img.Bounds()
	res, ok := img.(*image.NRGBA)
	if !ok {
		res = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(res, res.Rect, img, b.Min, draw.Src)
	}
	mb := mask.Bounds()
	w, h := res.Rect.Dx(), res.Rect.Dy()
	for y := range h {
		my := mb.Min.Y + y*mb.Dy()/h
		for x := range w {
			mx := mb.Min.X + x*mb.Dx()/w
			g := color.GrayModel.Convert(mask.At(mx, my)).(color.Gray).Y
			off := res.PixOffset(x, y) + 3
			res.Pix[off] = uint8(uint16(res.Pix[off]) * uint16(g) / 255)
		}
	}
	return res
}

// drawImage paints img into the unit square of user space.
func (in *interpreter) drawImage(img image.Image) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	in.prepare(in.gs.ctm, in.gs.fillAlpha)
	in.s.DrawImage(img, matrix.Scale(1/w, -1/h).Mul(matrix.Translate(0, 1)))
}

func (in *interpreter) drawImageXObject(dict types.Dict, data []byte) {
	d := in.doc
	info := imageInfo{bpc: 8}
	info.width, _ = d.integer(dict["Width"])
	info.height, _ = d.integer(dict["Height"])
	if bpc, ok := d.integer(dict["BitsPerComponent"]); ok {
		info.bpc = bpc
	}
	info.stencil = d.boolean(dict["ImageMask"])
	if !info.stencil {
		info.space = d.colorSpace(dict["ColorSpace"], nil, 0)
	}
	info.decode = d.numbers(dict["Decode"])
	info.jpeg = d.lastFilter(dict["Filter"]) == "DCTDecode"

	img, err := decodeImage(info, data, in.gs.fill)
	if err != nil {
		in.log.Debug("skipping image", zap.Error(err))
		return
	}
	if sm, ok := dict["SMask"]; ok && !info.stencil {
		if mask := in.softMask(sm); mask != nil {
			img = applySoftMask(img, mask)
		}
	}
	in.drawImage(img)
}

func (in *interpreter) softMask(obj types.Object) image.Image {
	d := in.doc
	dict, data, err := d.stream(obj)
	if err != nil {
		return nil
	}
	info := imageInfo{bpc: 8, space: deviceGray}
	info.width, _ = d.integer(dict["Width"])
	info.height, _ = d.integer(dict["Height"])
	if bpc, ok := d.integer(dict["BitsPerComponent"]); ok {
		info.bpc = bpc
	}
	info.decode = d.numbers(dict["Decode"])
	info.jpeg = d.lastFilter(dict["Filter"]) == "DCTDecode"
	mask, err := decodeImage(info, data, color.NRGBA{})
	if err != nil {
		return nil
	}
	return mask
}

func (d *Document) lastFilter(obj types.Object) string {
	if name, ok := d.name(obj); ok {
		return name
	}
	a := d.array(obj)
	if len(a) == 0 {
		return ""
	}
	name, _ := d.name(a[len(a)-1])
	return name
}

// inlineFilters expands the abbreviated filter names of inline images.
var inlineFilters = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

func (in *interpreter) drawInlineImage(img *scanner.InlineImage, res types.Dict) {
	get := func(long, short string) pdf.Object {
		if v, ok := img.Dict[pdf.Name(long)]; ok {
			return v
		}
		return img.Dict[pdf.Name(short)]
	}
	integer := func(long, short string, def int) int {
		if v, ok := pdf.GetNumber(get(long, short)); ok {
			return int(v)
		}
		return def
	}

	info := imageInfo{
		width:  integer("Width", "W", 0),
		height: integer("Height", "H", 0),
		bpc:    integer("BitsPerComponent", "BPC", 8),
	}
	info.stencil = get("ImageMask", "IM") == pdf.Bool(true)
	if !info.stencil {
		switch cs := get("ColorSpace", "CS").(type) {
		case pdf.Name:
			info.space = in.doc.colorSpaceByName(string(cs), res)
		case pdf.Array:
			info.space = in.doc.colorSpace(toTypes(cs), res, 0)
		}
	}
	if a, ok := get("Decode", "D").(pdf.Array); ok {
		for _, x := range a {
			v, _ := pdf.GetNumber(x)
			info.decode = append(info.decode, v)
		}
	}

	var names []pdf.Object
	var parms []pdf.Object
	switch f := get("Filter", "F").(type) {
	case pdf.Name:
		names = []pdf.Object{f}
		parms = []pdf.Object{get("DecodeParms", "DP")}
	case pdf.Array:
		names = f
		parms, _ = get("DecodeParms", "DP").(pdf.Array)
	}

	data := img.Data
	for i, obj := range names {
		name, _ := obj.(pdf.Name)
		full := string(name)
		if long, ok := inlineFilters[full]; ok {
			full = long
		}
		if full == "DCTDecode" {
			info.jpeg = true
			break
		}
		var p pdf.Object
		if i < len(parms) {
			p = parms[i]
		}
		var err error
		data, err = decodeFilter(full, p, data)
		if err != nil {
			in.log.Debug("skipping inline image", zap.Error(err))
			return
		}
	}

	decoded, err := decodeImage(info, data, in.gs.fill)
	if err != nil {
		in.log.Debug("skipping inline image", zap.Error(err))
		return
	}
	in.drawImage(decoded)
}

// decodeFilter applies one stream filter, using the filter implementations
// of pdfcpu.
func decodeFilter(name string, parms pdf.Object, data []byte) ([]byte, error) {
	var p map[string]int
	if dict, ok := parms.(pdf.Dict); ok {
		p = make(map[string]int)
		for k, v := range dict {
			if x, ok := pdf.GetNumber(v); ok {
				p[string(k)] = int(x)
			}
		}
	}
	f, err := filter.NewFilter(name, p)
	if err != nil {
		return nil, err
	}
	r, err := f.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// toTypes converts a content stream operand into a pdfcpu object.
func toTypes(obj pdf.Object) types.Object {
	switch x := obj.(type) {
	case pdf.Name:
		return types.Name(x)
	case pdf.Integer:
		return types.Integer(x)
	case pdf.Real:
		return types.Float(x)
	case pdf.Bool:
		return types.Boolean(x)
	case pdf.String:
		return types.HexLiteral(fmt.Sprintf("%X", []byte(x)))
	case pdf.Array:
		res := make(types.Array, len(x))
		for i, elem := range x {
			res[i] = toTypes(elem)
		}
		return res
	case pdf.Dict:
		res := types.Dict{}
		for k, v := range x {
			res[string(k)] = toTypes(v)
		}
		return res
	}
	return nil
}
