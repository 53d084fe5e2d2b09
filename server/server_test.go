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
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnajee/metafiliX/batch"
	"github.com/garnajee/metafiliX/pipeline"
	"github.com/garnajee/metafiliX/watermark"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type file struct {
	name string
	data []byte
}

func newServer(t *testing.T, proc batch.Processor, opts Options) (*Server, *batch.Orchestrator) {
	t.Helper()
	if proc == nil {
		wcfg := watermark.DefaultConfig()
		wcfg.NewRand = watermark.SeededRand(1)
		c, err := watermark.New(wcfg, nil)
		require.NoError(t, err)
		proc = pipeline.New(pipeline.DefaultConfig(), c, nil)
	}
	orch := batch.New(proc, batch.Options{Debounce: -1})
	t.Cleanup(func() { orch.Close() })

	s, err := New(orch, opts)
	require.NoError(t, err)
	return s, orch
}

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 220
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, s *Server, files ...file) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type uploadResponse struct {
	Documents []batch.Document `json:"documents"`
	Errors    []struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	} `json:"errors"`
	Error string `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func waitIdle(t *testing.T, orch *batch.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, orch.Wait(ctx))
}

func TestHealthz(t *testing.T) {
	s, _ := newServer(t, nil, Options{})
	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUploadDownload(t *testing.T) {
	s, orch := newServer(t, nil, Options{})

	rec := upload(t, s, file{"scan.recto.png", pngData(t, 64, 48)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[uploadResponse](t, rec)
	require.Len(t, res.Documents, 1)
	id := res.Documents[0].ID
	assert.Equal(t, "scan.recto.png", res.Documents[0].Name)
	assert.Equal(t, "image/png", string(res.Documents[0].MediaType))

	waitIdle(t, orch)

	rec = do(s, http.MethodGet, "/api/documents/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[batch.Document](t, rec)
	assert.Equal(t, batch.StatusDone, doc.Status)
	assert.Equal(t, "filigrane_scan.png", doc.OutputName)

	rec = do(s, http.MethodGet, "/api/documents/"+id+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=filigrane_scan.png`, rec.Header().Get("Content-Disposition"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

	rec = do(s, http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[uploadResponse](t, rec)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, id, list.Documents[0].ID)
}

func TestUploadRejected(t *testing.T) {
	s, orch := newServer(t, nil, Options{MaxUploadBytes: 1000})

	rec := upload(t, s, file{"notes.txt", []byte("just some text\n")})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = upload(t, s, file{"big.pdf", append([]byte("%PDF-1.7\n"), make([]byte, 2000)...)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "file too large", decode[uploadResponse](t, rec).Error)

	rec = upload(t, s)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, s,
		file{"ok.png", pngData(t, 8, 8)},
		file{"notes.txt", []byte("text")})
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[uploadResponse](t, rec)
	assert.Len(t, res.Documents, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "notes.txt", res.Errors[0].Name)

	waitIdle(t, orch)
	assert.Len(t, orch.List(), 1)
}

// blockingProcessor never finishes a run before its context is cancelled.
type blockingProcessor struct{}

func (blockingProcessor) Process(ctx context.Context, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDownloadNotReady(t *testing.T) {
	s, _ := newServer(t, blockingProcessor{}, Options{})

	rec := upload(t, s, file{"a.png", pngData(t, 8, 8)})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[uploadResponse](t, rec).Documents[0].ID

	rec = do(s, http.MethodGet, "/api/documents/"+id+"/download", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(s, http.MethodDelete, "/api/documents/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(s, http.MethodGet, "/api/documents/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(s, http.MethodDelete, "/api/documents/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(s, http.MethodGet, "/api/documents/"+id+"/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	s, orch := newServer(t, nil, Options{})

	rec := do(s, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[watermark.Settings](t, rec)
	assert.Equal(t, watermark.DefaultSettings(), got)

	rec = do(s, http.MethodPut, "/api/settings", `{"color": "#abc", "opacity": 2, "text": "COPIE"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	got = decode[watermark.Settings](t, rec)
	assert.Equal(t, "#aabbcc", got.Color.String())
	assert.Equal(t, 1.0, got.Opacity)
	assert.Equal(t, "COPIE", got.Text)
	assert.Equal(t, 1.0, got.Size)
	assert.Equal(t, got, orch.Settings())

	rec = do(s, http.MethodPut, "/api/settings", `{"size": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(s, http.MethodPut, "/api/settings", `{"color": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(s, http.MethodPut, "/api/settings", `{"outputFormat": "tiff"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(s, http.MethodPut, "/api/settings", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, "COPIE", orch.Settings().Text)
}

func TestEvict(t *testing.T) {
	s, orch := newServer(t, nil, Options{ResultTTL: time.Nanosecond})

	rec := upload(t, s, file{"a.png", pngData(t, 8, 8)})
	require.Equal(t, http.StatusCreated, rec.Code)
	waitIdle(t, orch)

	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, s.Evict())
	assert.Empty(t, orch.List())
}

func TestBadEvictSchedule(t *testing.T) {
	orch := batch.New(blockingProcessor{}, batch.Options{})
	defer orch.Close()
	_, err := New(orch, Options{EvictSchedule: "every now and then"})
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	s, _ := newServer(t, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "127.0.0.1:0", time.Second)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
