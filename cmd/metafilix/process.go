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


package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/internal/config"
	"github.com/garnajee/metafiliX/internal/logging"
	"github.com/garnajee/metafiliX/pipeline"
	"github.com/garnajee/metafiliX/watermark"
)

var errNoFiles = errors.New("no input files")

func process(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("metafilix", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("o", ".", "output `directory`")
	configPath := fs.String("config", "", "configuration `file` (JSON)")
	text := fs.String("text", watermark.DefaultText, "watermark text")
	opacity := fs.Float64("opacity", 0.30, "watermark opacity, between 0.05 and 1")
	colorArg := fs.String("color", "#000000", "watermark color as hex digits")
	size := fs.Float64("size", 1, "watermark size multiplier")
	format := fs.String("format", string(watermark.FormatOriginal), "output format for images: original or pdf")
	keepMeta := fs.Bool("keep-metadata", false, "keep the document information of PDF files")
	noNoise := fs.Bool("no-noise", false, "disable hatching, interference lines and grain")
	noScramble := fs.Bool("no-scramble", false, "draw a regular grid of tiles")
	seed := fs.Uint64("seed", 0, "random seed for reproducible output (0 picks a random seed)")
	verbose := fs.Bool("v", false, "log every processing step")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: metafilix [flags] FILE...\n       metafilix serve [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errNoFiles
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags given on the command line override the configured settings.
	settings := cfg.Settings
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "text":
			settings.Text = *text
		case "opacity":
			settings.Opacity = *opacity
		case "color":
			c, err := watermark.ParseColor(*colorArg)
			if err != nil {
				flagErr = errors.Join(flagErr, err)
			}
			settings.Color = c
		case "size":
			settings.Size = *size
		case "format":
			if err := settings.OutputFormat.UnmarshalText([]byte(*format)); err != nil {
				flagErr = errors.Join(flagErr, err)
			}
		case "keep-metadata":
			settings.RemoveMetadata = !*keepMeta
		case "no-noise":
			settings.Security.AddNoise = !*noNoise
		case "no-scramble":
			settings.Security.Scramble = !*noScramble
		}
	})
	if flagErr != nil {
		return flagErr
	}
	settings, err = settings.Normalize()
	if err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logging.New(level, true)
	if err != nil {
		return err
	}
	defer log.Sync()

	wcfg := watermark.DefaultConfig()
	if *seed != 0 {
		wcfg.NewRand = watermark.SeededRand(*seed)
	}
	c, err := watermark.New(wcfg, log)
	if err != nil {
		return err
	}
	p := pipeline.New(cfg.PipelineConfig(), c, log)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	tty := isTerminal(stderr)
	failed := 0
	for _, name := range fs.Args() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var progress pipeline.Progress
		if tty {
			progress = func(done, total int) {
				fmt.Fprintf(stderr, "\r%s: page %d/%d", name, done, total)
				if done == total {
					fmt.Fprintln(stderr)
				}
			}
		}
		out, err := processFile(ctx, p, name, *outDir, settings, progress)
		if err != nil {
			failed++
			log.Debug("processing failed", zap.String("file", name), zap.Error(err))
			fmt.Fprintf(stderr, "%s: %s\n", name, metafilix.UserMessage(err))
			continue
		}
		fmt.Fprintf(stdout, "%s -> %s\n", name, out)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, fs.NArg())
	}
	return nil
}

// processFile processes one input file and returns the path of the result.
func processFile(ctx context.Context, p *pipeline.Pipeline, name, outDir string, settings watermark.Settings, progress pipeline.Progress) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	mediaType, err := metafilix.DetectMediaType(data)
	if err != nil {
		return "", err
	}

	src := pipeline.Source{
		Name:      filepath.Base(name),
		MediaType: mediaType,
		Data:      data,
	}
	art, err := p.ProcessProgress(ctx, src, settings, progress)
	if err != nil {
		return "", err
	}

	out := filepath.Join(outDir, art.Name)
	if err := os.WriteFile(out, art.Data, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
