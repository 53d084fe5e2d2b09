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
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/garnajee/metafiliX"
)

// DefaultQuality is the JPEG quality used for image outputs.
const DefaultQuality = 95

// EncodeImage encodes a watermarked image for delivery.  PNG sources stay
// PNG, all other sources become JPEG files of the given quality, with
// transparent areas flattened onto white.  Only pixel data are written, so
// the result carries no metadata.
func EncodeImage(img image.Image, source metafilix.MediaType, quality int) ([]byte, metafilix.MediaType, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if source == metafilix.MediaPNG {
		err := imaging.Encode(&buf, img, imaging.PNG)
		if err != nil {
			return nil, "", metafilix.Wrap(metafilix.ErrRasterization, err)
		}
		return buf.Bytes(), metafilix.MediaPNG, nil
	}

	err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(quality))
	if err != nil {
		return nil, "", metafilix.Wrap(metafilix.ErrRasterization, err)
	}
	return buf.Bytes(), metafilix.MediaJPEG, nil
}

// flatten composes img onto a white background.
func flatten(img image.Image) image.Image {
	if opaque(img) {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Point{}, 1)
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// decodeImage decodes PNG, JPEG or WEBP data.
func decodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data))
}
