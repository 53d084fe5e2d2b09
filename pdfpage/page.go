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
	"context"
	"fmt"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"seehuhn.de/go/geom/matrix"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/raster"
)

// Page is one page of a [Document].
type Page struct {
	doc    *Document
	number int

	dict      types.Dict
	resources types.Dict

	llx, lly, urx, ury float64
	rotate             int
}

// letter is the page size used when a page has no MediaBox.
var letter = [4]float64{0, 0, 612, 792}

// Page returns page n, counting from 1.
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > d.NumPages() {
		return nil, metafilix.WrapPage(metafilix.ErrDecode, n,
			fmt.Errorf("page %d out of range 1-%d", n, d.NumPages()))
	}
	dict, _, attrs, err := d.ctx.PageDict(n, false)
	if err == nil && dict == nil {
		err = fmt.Errorf("missing page dictionary")
	}
	if err != nil {
		return nil, metafilix.WrapPage(metafilix.ErrDecode, n, err)
	}

	p := &Page{
		doc:    d,
		number: n,
		dict:   dict,
	}
	box := letter
	rotate := 0
	if attrs != nil {
		p.resources = attrs.Resources
		r := attrs.CropBox
		if r == nil {
			r = attrs.MediaBox
		}
		if r != nil && r.Width() != 0 && r.Height() != 0 {
			box = [4]float64{r.LL.X, r.LL.Y, r.UR.X, r.UR.Y}
		}
		rotate = attrs.Rotate
	}
	if p.resources == nil {
		p.resources = d.dict(dict["Resources"])
	}
	p.llx, p.urx = min(box[0], box[2]), max(box[0], box[2])
	p.lly, p.ury = min(box[1], box[3]), max(box[1], box[3])

	rotate %= 360
	if rotate < 0 {
		rotate += 360
	}
	p.rotate = rotate / 90 * 90
	return p, nil
}

// Number returns the page number, counting from 1.
func (p *Page) Number() int {
	return p.number
}

// Size returns the width and height of the visible page area in PDF
// points, after rotation.
func (p *Page) Size() (w, h float64) {
	w, h = p.urx-p.llx, p.ury-p.lly
	if p.rotate == 90 || p.rotate == 270 {
		w, h = h, w
	}
	return w, h
}

// Viewport returns the pixel size of the page rendered at the given scale,
// together with the matrix which maps PDF user space to device space.
func (p *Page) Viewport(scale float64) (width, height int, m matrix.Matrix) {
	w, h := p.Size()
	width = int(math.Floor(w * scale))
	height = int(math.Floor(h * scale))

	s := scale
	switch p.rotate {
	case 90:
		m = matrix.Matrix{0, s, s, 0, -p.lly * s, -p.llx * s}
	case 180:
		m = matrix.Matrix{-s, 0, 0, s, p.urx * s, -p.lly * s}
	case 270:
		m = matrix.Matrix{0, -s, -s, 0, p.ury * s, p.urx * s}
	default:
		m = matrix.Matrix{s, 0, 0, -s, -p.llx * s, p.ury * s}
	}
	return width, height, m
}

// Render draws the page onto s at the given scale.  The surface should
// have the size returned by [Page.Viewport].  Rendering stops with an
// error once ctx is cancelled.
func (p *Page) Render(ctx context.Context, s *raster.Surface, scale float64) error {
	_, _, m := p.Viewport(scale)
	content, err := p.contents()
	if err != nil {
		return metafilix.WrapPage(metafilix.ErrRasterization, p.number, err)
	}

	err = s.Do(func() error {
		in := newInterpreter(ctx, p.doc, s, m)
		return in.run(content, p.resources)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return metafilix.WrapPage(metafilix.ErrRasterization, p.number, err)
	}
	return nil
}

// contents returns the concatenated content streams of the page.
func (p *Page) contents() ([]byte, error) {
	obj, ok := p.dict.Find("Contents")
	if !ok {
		return nil, nil
	}
	parts := []types.Object{obj}
	if a, isArray := p.doc.resolve(obj).(types.Array); isArray {
		parts = a
	}

	var buf bytes.Buffer
	for _, part := range parts {
		_, data, err := p.doc.stream(part)
		if err != nil {
			return nil, fmt.Errorf("content stream: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
