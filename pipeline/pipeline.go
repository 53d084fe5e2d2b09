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


// Package pipeline runs the complete transformation of one source document:
// decoding, watermarking, and re-encoding or rebuilding of the output file.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register the WEBP decoder

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/pdfpage"
	"github.com/garnajee/metafiliX/raster"
	"github.com/garnajee/metafiliX/reconstruct"
	"github.com/garnajee/metafiliX/watermark"
)

// Config holds the fixed parameters of a [Pipeline].
type Config struct {
	// MaxDimension is the largest allowed width or height of an image
	// input, in pixels.  Larger images are scaled down.
	MaxDimension int

	// Scale is the number of pixels per PDF point used when rasterizing
	// PDF pages.
	Scale float64

	// Quality is the JPEG quality for all JPEG outputs.
	Quality int

	// Prefix is prepended to the output file names.
	Prefix string

	// Policy governs the metadata of generated PDF files.
	Policy reconstruct.Policy
}

// Default values for [Config].
const (
	DefaultMaxDimension = 4096
	DefaultPrefix       = "filigrane"
)

// DefaultConfig returns the standard pipeline parameters.
func DefaultConfig() Config {
	return Config{
		MaxDimension: DefaultMaxDimension,
		Scale:        pdfpage.DefaultScale,
		Quality:      reconstruct.DefaultQuality,
		Prefix:       DefaultPrefix,
		Policy:       reconstruct.DefaultPolicy(),
	}
}

// Source is an input document.
type Source struct {
	Name      string
	MediaType metafilix.MediaType
	Data      []byte
}

// Artifact is the result of processing a [Source].  The caller owns Data.
type Artifact struct {
	Name      string
	MediaType metafilix.MediaType
	Data      []byte

	// Pages is the number of pages of a PDF output, or 1 for images.
	Pages int
}

// Progress is called after each page of a PDF input has been completed.
type Progress func(done, total int)

// Pipeline processes documents.  A Pipeline may be used by several
// goroutines at once; every run uses its own surfaces and random source.
type Pipeline struct {
	cfg        Config
	compositor *watermark.Compositor
	rasterizer *pdfpage.Rasterizer
	log        *zap.Logger
}

// New creates a pipeline which stamps with the given compositor.
func New(cfg Config, c *watermark.Compositor, log *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if cfg.Policy.Producer == "" {
		cfg.Policy = def.Policy
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		compositor: c,
		rasterizer: pdfpage.NewRasterizer(c, cfg.Scale, cfg.Quality, log),
		log:        log,
	}
}

// Config returns the parameters of the pipeline.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process transforms src using a snapshot of settings.
func (p *Pipeline) Process(ctx context.Context, src Source, settings watermark.Settings) (*Artifact, error) {
	return p.ProcessProgress(ctx, src, settings, nil)
}

// ProcessProgress is like [Pipeline.Process], but reports the progress of
// PDF inputs page by page.
func (p *Pipeline) ProcessProgress(ctx context.Context, src Source, settings watermark.Settings, progress Progress) (*Artifact, error) {
	start := time.Now()
	settings, err := settings.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	var res *Artifact
	switch {
	case src.MediaType == metafilix.MediaPDF:
		res, err = p.processPDF(ctx, src, settings, progress)
	case src.MediaType.IsImage():
		res, err = p.processImage(ctx, src, settings)
	default:
		err = metafilix.Wrap(metafilix.ErrUnsupportedMediaType, fmt.Errorf("%q", src.MediaType))
	}
	if err != nil {
		p.log.Warn("processing failed",
			zap.String("name", src.Name),
			zap.String("mediaType", string(src.MediaType)),
			zap.Error(err))
		return nil, err
	}

	res.Name = metafilix.OutputName(p.cfg.Prefix, src.Name, res.MediaType)
	p.log.Info("document processed",
		zap.String("name", src.Name),
		zap.String("mediaType", string(src.MediaType)),
		zap.String("output", res.Name),
		zap.Int("pages", res.Pages),
		zap.Int("bytes", len(res.Data)),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func (p *Pipeline) processImage(ctx context.Context, src Source, settings watermark.Settings) (*Artifact, error) {
	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrDecode, err)
	}
	img = p.limit(img)

	surf, err := raster.FromImage(img)
	if err != nil {
		return nil, metafilix.Wrap(metafilix.ErrSurfaceAllocation, err)
	}
	if err := p.compositor.StampContext(ctx, surf, settings); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, metafilix.Wrap(metafilix.ErrRasterization, err)
	}

	data, mediaType, err := reconstruct.EncodeImage(surf.Image(), src.MediaType, p.cfg.Quality)
	if err != nil {
		return nil, err
	}
	if settings.OutputFormat != watermark.FormatPDF {
		return &Artifact{MediaType: mediaType, Data: data, Pages: 1}, nil
	}

	meta := p.cfg.Policy.Apply(reconstruct.Metadata{}, settings.RemoveMetadata)
	data, err = reconstruct.ImageToPDF(data, mediaType, meta, p.log)
	if err != nil {
		return nil, err
	}
	return &Artifact{MediaType: metafilix.MediaPDF, Data: data, Pages: 1}, nil
}

// limit scales img down so that neither side exceeds the maximum
// dimension.
func (p *Pipeline) limit(img image.Image) image.Image {
	b := img.Bounds()
	maxDim := p.cfg.MaxDimension
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	res := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	p.log.Debug("image downscaled",
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("newWidth", res.Bounds().Dx()),
		zap.Int("newHeight", res.Bounds().Dy()))
	return res
}

func (p *Pipeline) processPDF(ctx context.Context, src Source, settings watermark.Settings, progress Progress) (*Artifact, error) {
	doc, err := pdfpage.Open(src.Data, p.log)
	if err != nil {
		return nil, err
	}
	b, err := reconstruct.NewBuilder(p.log)
	if err != nil {
		return nil, err
	}

	total := doc.NumPages()
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := doc.Page(n)
		if err != nil {
			return nil, err
		}
		data, err := p.rasterizer.Rasterize(ctx, page, settings)
		if err != nil {
			return nil, err
		}
		if err := b.AddJPEGPage(data); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(n, total)
		}
	}

	if b.NumPages() != total {
		return nil, metafilix.Wrap(metafilix.ErrEmbed, errors.New("page count mismatch"))
	}
	meta := p.cfg.Policy.Apply(sourceMetadata(doc.Info()), settings.RemoveMetadata)
	data, err := b.Finish(meta)
	if err != nil {
		return nil, err
	}
	return &Artifact{MediaType: metafilix.MediaPDF, Data: data, Pages: total}, nil
}

func sourceMetadata(info pdfpage.Info) reconstruct.Metadata {
	return reconstruct.Metadata{
		Title:        info.Title,
		Author:       info.Author,
		Subject:      info.Subject,
		Keywords:     info.Keywords,
		Creator:      info.Creator,
		Producer:     info.Producer,
		CreationDate: info.CreationDate,
		ModDate:      info.ModDate,
	}
}
