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


package reconstruct

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"go.uber.org/zap"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/internal/pdf"
)

// Builder assembles a new PDF file, one full-page image per page.  Each
// page has the pixel dimensions of its image as MediaBox.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	buf bytes.Buffer
	w   *pdf.Writer
	log *zap.Logger

	pagesRef pdf.Reference
	kids     pdf.Array
	done     bool
}

var errFinished = errors.New("document already finished")

// NewBuilder starts a new PDF file.
func NewBuilder(log *zap.Logger) (*Builder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Builder{log: log}
	w, err := pdf.NewWriter(&b.buf)
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, err)
	}
	b.w = w
	b.pagesRef = w.Alloc()
	return b, nil
}

// NumPages returns the number of pages added so far.
func (b *Builder) NumPages() int {
	return len(b.kids)
}

// AddJPEGPage appends a page showing the JPEG image in data.  The image
// data are embedded unchanged.
func (b *Builder) AddJPEGPage(data []byte) error {
	page := len(b.kids) + 1
	if b.done {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, errFinished)
	}

	conf, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, err)
	}
	if conf.Width <= 0 || conf.Height <= 0 {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, fmt.Errorf("invalid image size %dx%d", conf.Width, conf.Height))
	}

	dict := pdf.Dict{
		"Type":             pdf.Name("XObject"),
		"Subtype":          pdf.Name("Image"),
		"Width":            pdf.Integer(conf.Width),
		"Height":           pdf.Integer(conf.Height),
		"BitsPerComponent": pdf.Integer(8),
		"Filter":           pdf.Name("DCTDecode"),
	}
	switch conf.ColorModel {
	case color.GrayModel:
		dict["ColorSpace"] = pdf.Name("DeviceGray")
	case color.CMYKModel:
		dict["ColorSpace"] = pdf.Name("DeviceCMYK")
		dict["Decode"] = pdf.Array{
			pdf.Integer(1), pdf.Integer(0), pdf.Integer(1), pdf.Integer(0),
			pdf.Integer(1), pdf.Integer(0), pdf.Integer(1), pdf.Integer(0),
		}
	default:
		dict["ColorSpace"] = pdf.Name("DeviceRGB")
	}

	imgRef, err := b.w.WriteIndirect(&pdf.Stream{Dict: dict, Data: data})
	if err != nil {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, err)
	}
	return b.addPage(imgRef, conf.Width, conf.Height)
}

// AddImagePage appends a page showing img.  The pixels are stored
// losslessly, with an alpha channel if img is not opaque.
func (b *Builder) AddImagePage(img image.Image) error {
	page := len(b.kids) + 1
	if b.done {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, errFinished)
	}

	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, fmt.Errorf("invalid image size %dx%d", w, h))
	}

	rgb := make([]byte, 0, 3*w*h)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 255 {
				hasAlpha = true
			}
		}
	}

	dict := pdf.Dict{
		"Type":             pdf.Name("XObject"),
		"Subtype":          pdf.Name("Image"),
		"Width":            pdf.Integer(w),
		"Height":           pdf.Integer(h),
		"ColorSpace":       pdf.Name("DeviceRGB"),
		"BitsPerComponent": pdf.Integer(8),
	}
	if hasAlpha {
		maskRef, err := b.writeFlate(pdf.Dict{
			"Type":             pdf.Name("XObject"),
			"Subtype":          pdf.Name("Image"),
			"Width":            pdf.Integer(w),
			"Height":           pdf.Integer(h),
			"ColorSpace":       pdf.Name("DeviceGray"),
			"BitsPerComponent": pdf.Integer(8),
		}, alpha)
		if err != nil {
			return metafilix.WrapPage(metafilix.ErrEmbed, page, err)
		}
		dict["SMask"] = maskRef
	}
	imgRef, err := b.writeFlate(dict, rgb)
	if err != nil {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, err)
	}
	return b.addPage(imgRef, w, h)
}

// writeFlate writes a Flate compressed stream.
func (b *Builder) writeFlate(dict pdf.Dict, data []byte) (pdf.Reference, error) {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(data); err != nil {
		return pdf.Reference{}, err
	}
	if err := zw.Close(); err != nil {
		return pdf.Reference{}, err
	}
	dict["Filter"] = pdf.Name("FlateDecode")
	return b.w.WriteIndirect(&pdf.Stream{Dict: dict, Data: z.Bytes()})
}

// addPage writes a page which shows the image XObject at full size.
func (b *Builder) addPage(img pdf.Reference, w, h int) error {
	page := len(b.kids) + 1

	content := fmt.Sprintf("q %d 0 0 %d 0 0 cm /Im0 Do Q\n", w, h)
	contentRef, err := b.w.WriteIndirect(&pdf.Stream{Data: []byte(content)})
	if err != nil {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, err)
	}

	ref, err := b.w.WriteIndirect(pdf.Dict{
		"Type":     pdf.Name("Page"),
		"Parent":   b.pagesRef,
		"MediaBox": pdf.Array{pdf.Integer(0), pdf.Integer(0), pdf.Integer(w), pdf.Integer(h)},
		"Resources": pdf.Dict{
			"XObject": pdf.Dict{"Im0": img},
		},
		"Contents": contentRef,
	})
	if err != nil {
		return metafilix.WrapPage(metafilix.ErrEmbed, page, err)
	}
	b.kids = append(b.kids, ref)

	b.log.Debug("page embedded",
		zap.Int("page", page),
		zap.Int("width", w),
		zap.Int("height", h))
	return nil
}

// Finish writes the page tree, the document information dictionary and the
// XMP metadata, and returns the complete file.  The Builder cannot be used
// afterwards.
func (b *Builder) Finish(meta Metadata) ([]byte, error) {
	if b.done {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, errFinished)
	}
	if len(b.kids) == 0 {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, errors.New("document has no pages"))
	}
	b.done = true

	err := b.w.Write(b.pagesRef, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  b.kids,
		"Count": pdf.Integer(len(b.kids)),
	})
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, err)
	}

	packet, err := encodeXMP(meta)
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, fmt.Errorf("XMP metadata: %w", err))
	}
	metaRef, err := b.w.WriteIndirect(&pdf.Stream{
		Dict: pdf.Dict{
			"Type":    pdf.Name("Metadata"),
			"Subtype": pdf.Name("XML"),
		},
		Data: packet,
	})
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, err)
	}

	catalog, err := b.w.WriteIndirect(pdf.Dict{
		"Type":     pdf.Name("Catalog"),
		"Pages":    b.pagesRef,
		"Metadata": metaRef,
	})
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, err)
	}

	infoRef, err := b.w.WriteIndirect(infoDict(meta))
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, err)
	}

	if err := b.w.Close(catalog, &infoRef); err != nil {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, err)
	}
	return b.buf.Bytes(), nil
}

// infoDict returns the document information dictionary for meta.  Text
// fields are always present, so that cleared values show up as empty
// strings.
func infoDict(meta Metadata) pdf.Dict {
	info := pdf.Dict{
		"Title":    pdf.TextString(meta.Title),
		"Author":   pdf.TextString(meta.Author),
		"Subject":  pdf.TextString(meta.Subject),
		"Keywords": pdf.TextString(meta.Keywords),
		"Creator":  pdf.TextString(meta.Creator),
		"Producer": pdf.TextString(meta.Producer),
	}
	if !meta.CreationDate.IsZero() {
		info["CreationDate"] = pdf.Date(meta.CreationDate)
	}
	if !meta.ModDate.IsZero() {
		info["ModDate"] = pdf.Date(meta.ModDate)
	}
	return info
}

// ImageToPDF wraps an encoded image into a new single-page PDF file.  JPEG
// data are embedded unchanged, other formats are decoded and stored
// losslessly.
func ImageToPDF(data []byte, mediaType metafilix.MediaType, meta Metadata, log *zap.Logger) ([]byte, error) {
	b, err := NewBuilder(log)
	if err != nil {
		return nil, err
	}

	switch mediaType {
	case metafilix.MediaJPEG:
		err = b.AddJPEGPage(data)
	case metafilix.MediaPNG, metafilix.MediaWEBP:
		var img image.Image
		img, err = decodeImage(data)
		if err != nil {
			return nil, metafilix.Wrap(metafilix.ErrDecode, err)
		}
		err = b.AddImagePage(img)
	default:
		return nil, metafilix.Wrap(metafilix.ErrUnsupportedMediaType, fmt.Errorf("cannot embed %s", mediaType))
	}
	if err != nil {
		return nil, err
	}
	return b.Finish(meta)
}
