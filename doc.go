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

// Package metafilix stamps documents with a removal-resistant watermark and
// strips their identifying metadata.
//
// The work is split over several packages, leaves first:
//
//   - [github.com/garnajee/metafiliX/raster] is a pixel surface with vector
//     drawing primitives and blend modes.
//   - [github.com/garnajee/metafiliX/fonts] provides the glyph outlines of
//     the fonts used for the watermark text.
//   - [github.com/garnajee/metafiliX/watermark] plans the tile grid, draws
//     the text and the anti-removal noise.
//   - [github.com/garnajee/metafiliX/pdfpage] renders pages of a source PDF
//     into raster surfaces.
//   - [github.com/garnajee/metafiliX/reconstruct] builds the output files
//     and applies the metadata policy.
//   - [github.com/garnajee/metafiliX/pipeline] runs one document through
//     all of the above.
//   - [github.com/garnajee/metafiliX/batch] keeps track of a set of
//     documents and re-processes them when the settings change.
//
// This package holds the pieces shared by all of them: the supported media
// types and the error taxonomy.
package metafilix
