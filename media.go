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

package metafilix

import (
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MediaType is the declared type of a source document or output artifact.
type MediaType string

// These are the media types handled by the pipeline.
const (
	MediaPDF  MediaType = "application/pdf"
	MediaJPEG MediaType = "image/jpeg"
	MediaPNG  MediaType = "image/png"
	MediaWEBP MediaType = "image/webp"
)

// ParseMediaType checks whether s is one of the supported media types.
// Parameters like "; charset=binary" are ignored.
func ParseMediaType(s string) (MediaType, error) {
	base, _, err := mime.ParseMediaType(s)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(s))
	}
	if base == "image/jpg" {
		base = string(MediaJPEG)
	}
	switch t := MediaType(base); t {
	case MediaPDF, MediaJPEG, MediaPNG, MediaWEBP:
		return t, nil
	}
	return "", &Error{Kind: ErrUnsupportedMediaType, Err: mimeError(s)}
}

// DetectMediaType determines the media type of a file from its contents.
// The declared type of an upload is never trusted.
func DetectMediaType(data []byte) (MediaType, error) {
	return ParseMediaType(mimetype.Detect(data).String())
}

type mimeError string

func (e mimeError) Error() string {
	return "media type " + strconv.Quote(string(e))
}

// IsImage reports whether t is one of the raster image types.
func (t MediaType) IsImage() bool {
	return t == MediaJPEG || t == MediaPNG || t == MediaWEBP
}

// Extension returns the usual file name extension for t, without the dot.
func (t MediaType) Extension() string {
	switch t {
	case MediaPDF:
		return "pdf"
	case MediaJPEG:
		return "jpg"
	case MediaPNG:
		return "png"
	case MediaWEBP:
		return "webp"
	}
	return "bin"
}

// OutputName returns the delivery file name for an artifact of type out
// derived from the file originalName: "<prefix>_<base>.<ext>".  The base is
// the original name up to its first dot.  The extension is "pdf" for PDF
// output, and the extension of originalName otherwise.
func OutputName(prefix, originalName string, out MediaType) string {
	name := filepath.Base(filepath.ToSlash(originalName))
	if name == "." || name == "/" {
		name = ""
	}
	base, _, _ := strings.Cut(name, ".")

	var ext string
	if out == MediaPDF {
		ext = "pdf"
	} else if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		ext = name[i+1:]
	} else {
		ext = out.Extension()
	}

	if prefix == "" {
		return base + "." + ext
	}
	return prefix + "_" + base + "." + ext
}
