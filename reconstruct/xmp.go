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

	"golang.org/x/text/language"
	"seehuhn.de/go/xmp"
)

// xDefault is the language tag of the default entry of a language
// alternative.
var xDefault = language.MustParse("x-default")

// xmpBasic is the XMP basic namespace.
type xmpBasic struct {
	_            xmp.Namespace `xmp:"http://ns.adobe.com/xap/1.0/"`
	_            xmp.Prefix    `xmp:"xmp"`
	CreateDate   xmp.Date
	ModifyDate   xmp.Date
	MetadataDate xmp.Date
	CreatorTool  xmp.Text
}

// xmpPDF is the XMP namespace for PDF metadata.
type xmpPDF struct {
	_        xmp.Namespace `xmp:"http://ns.adobe.com/pdf/1.3/"`
	_        xmp.Prefix    `xmp:"pdf"`
	Keywords xmp.Text
	Producer xmp.Text
}

// xmpPacket converts meta into an XMP packet.  Empty fields are omitted.
func xmpPacket(meta Metadata) (*xmp.Packet, error) {
	dc := &xmp.DublinCore{}
	if meta.Title != "" {
		dc.Title.Set(xDefault, meta.Title)
	}
	if meta.Subject != "" {
		dc.Description.Set(xDefault, meta.Subject)
	}
	if meta.Author != "" {
		dc.Creator.Append(xmp.NewProperName(meta.Author))
	}

	basic := &xmpBasic{}
	if !meta.CreationDate.IsZero() {
		basic.CreateDate = xmp.NewDate(meta.CreationDate)
	}
	if !meta.ModDate.IsZero() {
		basic.ModifyDate = xmp.NewDate(meta.ModDate)
		basic.MetadataDate = xmp.NewDate(meta.ModDate)
	}
	if meta.Creator != "" {
		basic.CreatorTool = xmp.NewText(meta.Creator)
	}

	pdfInfo := &xmpPDF{}
	if meta.Keywords != "" {
		pdfInfo.Keywords = xmp.NewText(meta.Keywords)
	}
	if meta.Producer != "" {
		pdfInfo.Producer = xmp.NewText(meta.Producer)
	}

	packet := xmp.NewPacket()
	if err := packet.Set(dc, basic, pdfInfo); err != nil {
		return nil, err
	}
	return packet, nil
}

// encodeXMP returns the serialized XMP packet for meta.
func encodeXMP(meta Metadata) ([]byte, error) {
	packet, err := xmpPacket(meta)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = packet.Write(&buf, &xmp.PacketOptions{Pretty: true})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
