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


// Package server implements the HTTP interface for uploading documents,
// changing the watermark settings and downloading the results.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garnajee/metafiliX/batch"
)

// Options configure a [Server].
type Options struct {
	// MaxUploadBytes is the size limit for a single uploaded file.
	MaxUploadBytes int64

	// ResultTTL is the time after which finished documents are removed.
	ResultTTL time.Duration

	// EvictSchedule is the cron spec for the eviction job.
	EvictSchedule string

	Log *zap.Logger
}

// Defaults for [Options].
const (
	DefaultMaxUploadBytes = 50 << 20
	DefaultResultTTL      = time.Hour
	DefaultEvictSchedule  = "@every 1m"
)

// Server serves the HTTP API of an [batch.Orchestrator].
type Server struct {
	orch   *batch.Orchestrator
	opts   Options
	log    *zap.Logger
	router *gin.Engine
	cron   *cron.Cron
}

// New creates a server for the documents managed by orch.
func New(orch *batch.Orchestrator, opts Options) (*Server, error) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if opts.EvictSchedule == "" {
		opts.EvictSchedule = DefaultEvictSchedule
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	s := &Server{
		orch: orch,
		opts: opts,
		log:  opts.Log,
		cron: cron.New(),
	}
	if _, err := s.cron.AddFunc(opts.EvictSchedule, func() { s.Evict() }); err != nil {
		return nil, err
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.log), gin.Recovery())
	r.MaxMultipartMemory = s.opts.MaxUploadBytes

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/documents", s.handleUpload)
		api.GET("/documents", s.handleList)
		api.GET("/documents/:id", s.handleGet)
		api.GET("/documents/:id/download", s.handleDownload)
		api.DELETE("/documents/:id", s.handleDelete)
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handlePutSettings)
	}
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Evict removes finished documents which are older than the result TTL.
func (s *Server) Evict() int {
	return s.orch.EvictBefore(time.Now().Add(-s.opts.ResultTTL))
}

// Run serves HTTP requests on addr until ctx is cancelled, and then shuts
// down gracefully, waiting at most shutdownTimeout for open requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
	}()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.log.Info("server started", zap.String("addr", addr))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
