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
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/raster"
	"github.com/garnajee/metafiliX/watermark"
)

// Defaults for page rasterization.
const (
	DefaultScale   = 2.0
	DefaultQuality = 95
)

// Rasterizer renders PDF pages to watermarked JPEG images.
type Rasterizer struct {
	compositor *watermark.Compositor
	scale      float64
	quality    int
	log        *zap.Logger
}

// NewRasterizer returns a rasterizer which renders at the given scale and
// JPEG quality.  Zero values select [DefaultScale] and [DefaultQuality].
func NewRasterizer(c *watermark.Compositor, scale float64, quality int, log *zap.Logger) *Rasterizer {
	if scale <= 0 {
		scale = DefaultScale
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Rasterizer{compositor: c, scale: scale, quality: quality, log: log}
}

// Scale returns the number of pixels per PDF point.
func (r *Rasterizer) Scale() float64 {
	return r.scale
}

// Rasterize renders the page onto a white surface, stamps the watermark and
// returns the JPEG encoded result.  Every call allocates its own surface.
func (r *Rasterizer) Rasterize(ctx context.Context, page *Page, settings watermark.Settings) ([]byte, error) {
	start := time.Now()
	n := page.Number()

	w, h, _ := page.Viewport(r.scale)
	surf, err := raster.New(w, h)
	if err != nil {
		return nil, metafilix.WrapPage(metafilix.ErrSurfaceAllocation, n, err)
	}
	surf.Clear(color.White)

	if err := page.Render(ctx, surf, r.scale); err != nil {
		return nil, err
	}
	if err := r.compositor.StampContext(ctx, surf, settings); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, metafilix.WrapPage(metafilix.ErrRasterization, n, err)
	}

	var buf bytes.Buffer
	err = imaging.Encode(&buf, surf.Image(), imaging.JPEG, imaging.JPEGQuality(r.quality))
	if err != nil {
		return nil, metafilix.WrapPage(metafilix.ErrRasterization, n, err)
	}

	r.log.Debug("page rasterized",
		zap.Int("page", n),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Duration("duration", time.Since(start)))
	return buf.Bytes(), nil
}
