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

// Package watermark draws tiled, tamper-resistant text watermarks onto
// raster surfaces.
//
// A [Compositor] plans a rotated grid of text tiles covering the whole
// surface (see [Engine.Plan]), draws the text of every tile in multiply
// blend mode, and optionally adds security noise: hatching, ghost strokes,
// an interference curve per tile and a global grain pass.
package watermark

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// OutputFormat selects the container of processed images.
type OutputFormat string

// These are the supported output formats.
const (
	// FormatOriginal keeps images as images.  PDFs are always PDFs.
	FormatOriginal OutputFormat = "original"

	// FormatPDF wraps processed images in a single page PDF.
	FormatPDF OutputFormat = "pdf"
)

// UnmarshalText implements [encoding.TextUnmarshaler].
func (f *OutputFormat) UnmarshalText(text []byte) error {
	switch v := OutputFormat(text); v {
	case FormatOriginal, FormatPDF:
		*f = v
	case "":
		*f = FormatOriginal
	default:
		return fmt.Errorf("unknown output format %q", string(text))
	}
	return nil
}

// Security holds the switches for the protection features.
type Security struct {
	// Rasterize flattens documents into images.  PDF pages are
	// rasterized whether or not this is set.
	Rasterize bool `json:"rasterize"`

	// AddNoise enables hatching, ghost strokes, interference curves and
	// grain.
	AddNoise bool `json:"addNoise"`

	// Scramble randomizes position, rotation, scale, font and opacity of
	// every tile.
	Scramble bool `json:"scramble"`
}

// Settings describes one watermark.  Settings are plain values, a render
// works on its own copy.
type Settings struct {
	Text           string       `json:"text"`
	Opacity        float64      `json:"opacity"`
	Color          Color        `json:"color"`
	Size           float64      `json:"size"`
	OutputFormat   OutputFormat `json:"outputFormat"`
	RemoveMetadata bool         `json:"removeMetadata"`
	Security       Security     `json:"security"`
}

// DefaultText is the watermark text used when nothing else is configured.
const DefaultText = "Document exclusivement destiné à la location"

// Opacity limits.
const (
	MinOpacity = 0.05
	MaxOpacity = 1.0
)

// DefaultSettings returns the settings used for new batches.
func DefaultSettings() Settings {
	return Settings{
		Text:           DefaultText,
		Opacity:        0.30,
		Color:          Color{},
		Size:           1,
		OutputFormat:   FormatOriginal,
		RemoveMetadata: true,
		Security: Security{
			Rasterize: true,
			AddNoise:  true,
			Scramble:  true,
		},
	}
}

// ErrInvalidSize is returned by [Settings.Normalize] for a size multiplier
// which is not a positive number.
var ErrInvalidSize = errors.New("watermark size must be positive")

// Normalize returns a copy of s with the text in Unicode NFC form and the
// opacity clamped to [MinOpacity, MaxOpacity].
func (s Settings) Normalize() (Settings, error) {
	if !(s.Size > 0) || math.IsInf(s.Size, 0) {
		return s, ErrInvalidSize
	}
	switch s.OutputFormat {
	case "":
		s.OutputFormat = FormatOriginal
	case FormatOriginal, FormatPDF:
	default:
		return s, fmt.Errorf("unknown output format %q", string(s.OutputFormat))
	}
	s.Text = norm.NFC.String(s.Text)
	s.Opacity = ClampOpacity(s.Opacity)
	return s, nil
}

// ClampOpacity limits v to the range [MinOpacity, MaxOpacity].
func ClampOpacity(v float64) float64 {
	if math.IsNaN(v) || v < MinOpacity {
		return MinOpacity
	}
	return min(v, MaxOpacity)
}
