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

// Package pdfpage reads PDF files and renders their pages onto raster
// surfaces.
//
// Parsing of the file structure is done by pdfcpu.  Page content streams
// are interpreted by this package: paths, text (drawn with substitute
// fonts), images and form XObjects are supported.  Shadings, patterns,
// dash patterns, Type 3 glyphs and JPEG 2000 images are skipped.
package pdfpage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/internal/pdf"
)

var disableConfigDir sync.Once

// Document is an open PDF file.  A Document must not be used by more than
// one goroutine at a time.
type Document struct {
	ctx *model.Context
	log *zap.Logger

	fonts map[int]*pdfFont
}

// Open parses the PDF file in data.  Errors are of kind
// [metafilix.ErrDecode].
func Open(data []byte, log *zap.Logger) (*Document, error) {
	return Read(bytes.NewReader(data), log)
}

// Read parses the PDF file read from r.
func Read(r io.ReadSeeker, log *zap.Logger) (*Document, error) {
	disableConfigDir.Do(api.DisableConfigDir)
	if log == nil {
		log = zap.NewNop()
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(r, conf)
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrDecode, fmt.Errorf("reading PDF: %w", err))
	}
	// ReadContext only loads the cross-reference table.  The page count
	// is filled in from the page tree.
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, metafilix.Wrap(metafilix.ErrDecode, fmt.Errorf("reading page tree: %w", err))
	}
	if ctx.PageCount <= 0 {
		return nil, metafilix.Wrap(metafilix.ErrDecode, errors.New("PDF has no pages"))
	}
	return &Document{
		ctx:   ctx,
		log:   log,
		fonts: make(map[int]*pdfFont),
	}, nil
}

// NumPages returns the number of pages.
func (d *Document) NumPages() int {
	return d.ctx.PageCount
}

// Info holds the fields of the document information dictionary.
// Missing dates are zero.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string

	CreationDate time.Time
	ModDate      time.Time
}

// Info returns the document information dictionary.  A missing or broken
// dictionary gives the zero Info.
func (d *Document) Info() Info {
	var info Info
	if d.ctx.Info == nil {
		return info
	}
	dict := d.dict(*d.ctx.Info)
	if dict == nil {
		return info
	}

	text := func(key string) string {
		s, ok := d.str(dict[key])
		if !ok {
			return ""
		}
		return s.AsTextString()
	}
	date := func(key string) time.Time {
		s, ok := d.str(dict[key])
		if !ok {
			return time.Time{}
		}
		t, err := s.AsDate()
		if err != nil {
			return time.Time{}
		}
		return t
	}

	info.Title = text("Title")
	info.Author = text("Author")
	info.Subject = text("Subject")
	info.Keywords = text("Keywords")
	info.Creator = text("Creator")
	info.Producer = text("Producer")
	info.CreationDate = date("CreationDate")
	info.ModDate = date("ModDate")
	return info
}

// resolve follows indirect references.  Broken references give nil.
func (d *Document) resolve(obj types.Object) types.Object {
	for range 32 {
		ref, ok := obj.(types.IndirectRef)
		if !ok {
			return obj
		}
		res, err := d.ctx.Dereference(ref)
		if err != nil {
			return nil
		}
		obj = res
	}
	return nil
}

func (d *Document) dict(obj types.Object) types.Dict {
	switch x := d.resolve(obj).(type) {
	case types.Dict:
		return x
	case types.StreamDict:
		return x.Dict
	}
	return nil
}

func (d *Document) array(obj types.Object) types.Array {
	a, _ := d.resolve(obj).(types.Array)
	return a
}

func (d *Document) name(obj types.Object) (string, bool) {
	n, ok := d.resolve(obj).(types.Name)
	return string(n), ok
}

func (d *Document) number(obj types.Object) (float64, bool) {
	switch x := d.resolve(obj).(type) {
	case types.Integer:
		return float64(x), true
	case types.Float:
		return float64(x), true
	}
	return 0, false
}

func (d *Document) integer(obj types.Object) (int, bool) {
	x, ok := d.number(obj)
	return int(x), ok
}

func (d *Document) boolean(obj types.Object) bool {
	b, _ := d.resolve(obj).(types.Boolean)
	return bool(b)
}

// str returns the bytes of a string object.
func (d *Document) str(obj types.Object) (pdf.String, bool) {
	switch x := d.resolve(obj).(type) {
	case types.StringLiteral:
		b, err := types.Unescape(string(x))
		if err != nil {
			return nil, false
		}
		return pdf.String(b), true
	case types.HexLiteral:
		b, err := x.Bytes()
		if err != nil {
			return nil, false
		}
		return pdf.String(b), true
	}
	return nil, false
}

func (d *Document) numbers(obj types.Object) []float64 {
	a := d.array(obj)
	res := make([]float64, 0, len(a))
	for _, x := range a {
		v, ok := d.number(x)
		if !ok {
			return nil
		}
		res = append(res, v)
	}
	return res
}

// stream returns the dictionary and decoded data of a stream.  Streams
// whose last filter is DCTDecode keep that filter, the data is the JPEG
// file.
func (d *Document) stream(obj types.Object) (types.Dict, []byte, error) {
	sd, _, err := d.ctx.DereferenceStreamDict(obj)
	if err != nil {
		return nil, nil, err
	}
	if sd == nil {
		return nil, nil, errNotStream
	}

	n := len(sd.FilterPipeline)
	if n == 0 && sd.Raw != nil {
		return sd.Dict, sd.Raw, nil
	}
	if n > 0 {
		switch sd.FilterPipeline[n-1].Name {
		case "DCTDecode":
			if n > 1 {
				return nil, nil, errUnsupportedFilter
			}
			return sd.Dict, sd.Raw, nil
		case "JPXDecode", "JBIG2Decode":
			return nil, nil, errUnsupportedFilter
		}
	}
	if sd.Content == nil {
		if err := sd.Decode(); err != nil {
			return nil, nil, err
		}
	}
	return sd.Dict, sd.Content, nil
}

var (
	errNotStream         = errors.New("not a stream")
	errUnsupportedFilter = errors.New("unsupported filter")
)
