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
	"flag"
	"io"

	"go.uber.org/zap"

	"github.com/garnajee/metafiliX/batch"
	"github.com/garnajee/metafiliX/internal/config"
	"github.com/garnajee/metafiliX/internal/logging"
	"github.com/garnajee/metafiliX/pipeline"
	"github.com/garnajee/metafiliX/server"
	"github.com/garnajee/metafiliX/watermark"
)

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration `file` (JSON)")
	addr := fs.String("addr", "", "listen `address`, overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	c, err := watermark.New(watermark.DefaultConfig(), log)
	if err != nil {
		return err
	}
	p := pipeline.New(cfg.PipelineConfig(), c, log)

	orch := batch.New(p, batch.Options{
		Settings: cfg.Settings,
		Debounce: cfg.Batch.Debounce.Duration,
		Log:      log,
	})
	defer orch.Close()

	srv, err := server.New(orch, server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		ResultTTL:      cfg.Server.ResultTTL.Duration,
		EvictSchedule:  cfg.Server.EvictSchedule,
		Log:            log,
	})
	if err != nil {
		return err
	}

	log.Info("starting",
		zap.String("addr", cfg.Server.Addr),
		zap.Int("max_upload_mb", cfg.Server.MaxUploadMB),
		zap.Duration("result_ttl", cfg.Server.ResultTTL.Duration))
	return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout.Duration)
}
