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


package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/batch"
)

type uploadError struct {
	Name  string `json:"name"`
	Error string `json:"error"`

	err error
}

func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	docs := []batch.Document{}
	var failed []uploadError
	for _, fh := range files {
		doc, err := s.addFile(fh)
		if err != nil {
			s.log.Info("upload rejected", zap.String("name", fh.Filename), zap.Error(err))
			failed = append(failed, uploadError{
				Name:  fh.Filename,
				Error: metafilix.UserMessage(err),
				err:   err,
			})
			continue
		}
		docs = append(docs, *doc)
	}

	if len(docs) == 0 {
		c.JSON(uploadStatus(failed[0].err), gin.H{
			"error":  failed[0].Error,
			"errors": failed,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"documents": docs,
		"errors":    failed,
	})
}

func (s *Server) addFile(fh *multipart.FileHeader) (*batch.Document, error) {
	limit := s.opts.MaxUploadBytes
	if fh.Size > limit {
		return nil, metafilix.Wrap(metafilix.ErrTooLarge, fmt.Errorf("%d bytes", fh.Size))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, metafilix.Wrap(metafilix.ErrTooLarge, fmt.Errorf("more than %d bytes", limit))
	}

	mediaType, err := metafilix.DetectMediaType(data)
	if err != nil {
		return nil, err
	}
	return s.orch.Add(fh.Filename, mediaType, data)
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, metafilix.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, metafilix.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, batch.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": s.orch.List()})
}

func (s *Server) handleGet(c *gin.Context) {
	doc, ok := s.orch.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDownload(c *gin.Context) {
	doc, ok := s.orch.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	if doc.Status != batch.StatusDone || doc.Output == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "document not ready",
			"status": doc.Status,
		})
		return
	}

	out := doc.Output
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": out.Name})
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, string(out.MediaType), out.Data)
}

func (s *Server) handleDelete(c *gin.Context) {
	err := s.orch.Remove(c.Param("id"))
	if errors.Is(err, batch.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Settings())
}

// handlePutSettings updates the settings.  Fields missing from the request
// keep their current values.
func (s *Server) handlePutSettings(c *gin.Context) {
	settings := s.orch.Settings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := s.orch.SetSettings(settings)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, batch.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, settings)
}
