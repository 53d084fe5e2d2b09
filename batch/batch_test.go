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


package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/pipeline"
	"github.com/garnajee/metafiliX/watermark"
)

// MockProcessor is a mock implementation of the Processor interface.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
	args := m.Called(ctx, src, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Artifact), args.Error(1)
}

// funcProcessor records the settings of every call and delegates to fn.
type funcProcessor struct {
	mu    sync.Mutex
	calls []watermark.Settings
	fn    func(ctx context.Context, call int, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error)
}

func (p *funcProcessor) Process(ctx context.Context, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
	p.mu.Lock()
	p.calls = append(p.calls, s)
	call := len(p.calls)
	p.mu.Unlock()
	return p.fn(ctx, call, src, s)
}

func (p *funcProcessor) Calls() []watermark.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]watermark.Settings(nil), p.calls...)
}

func echo(ctx context.Context, call int, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
	return &pipeline.Artifact{
		Name:      "filigrane_" + src.Name,
		MediaType: src.MediaType,
		Data:      []byte(s.Text),
		Pages:     1,
	}, nil
}

func wait(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func TestAddProcess(t *testing.T) {
	proc := &MockProcessor{}
	artifact := &pipeline.Artifact{Name: "filigrane_a.png", MediaType: metafilix.MediaPNG, Data: []byte{1, 2, 3}, Pages: 1}
	proc.On("Process", mock.Anything, mock.MatchedBy(func(src pipeline.Source) bool {
		return src.Name == "a.png" && src.MediaType == metafilix.MediaPNG
	}), mock.Anything).Return(artifact, nil).Once()

	o := New(proc, Options{})
	defer o.Close()

	doc, err := o.Add("a.png", metafilix.MediaPNG, []byte("data"))
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, StatusProcessing, doc.Status)
	assert.Equal(t, uint64(1), doc.Generation)

	wait(t, o)
	got, ok := o.Get(doc.ID)
	require.True(t, ok)
	assert.Equal(t, StatusDone, got.Status)
	assert.Same(t, artifact, got.Output)
	assert.Equal(t, "filigrane_a.png", got.OutputName)
	assert.Equal(t, 4, got.Size)
	proc.AssertExpectations(t)
}

func TestAddUnsupported(t *testing.T) {
	o := New(&MockProcessor{}, Options{})
	defer o.Close()

	_, err := o.Add("notes.txt", "text/plain", []byte("hello"))
	require.ErrorIs(t, err, metafilix.ErrUnsupportedMediaType)
	assert.Empty(t, o.List())
}

func TestProcessError(t *testing.T) {
	proc := &MockProcessor{}
	proc.On("Process", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, metafilix.Wrap(metafilix.ErrDecode, errors.New("bad xref"))).Once()

	o := New(proc, Options{})
	defer o.Close()

	doc, err := o.Add("a.pdf", metafilix.MediaPDF, []byte("%PDF"))
	require.NoError(t, err)
	wait(t, o)

	got, _ := o.Get(doc.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.ErrorIs(t, got.Err, metafilix.ErrDecode)
	assert.Equal(t, "the file could not be read", got.Error)
	assert.Nil(t, got.Output)
}

func TestDebounce(t *testing.T) {
	proc := &funcProcessor{fn: echo}
	o := New(proc, Options{Debounce: 20 * time.Millisecond})
	defer o.Close()

	a, err := o.Add("a.jpg", metafilix.MediaJPEG, []byte("a"))
	require.NoError(t, err)
	b, err := o.Add("b.png", metafilix.MediaPNG, []byte("b"))
	require.NoError(t, err)
	wait(t, o)
	require.Len(t, proc.Calls(), 2)

	for _, text := range []string{"C", "CO", "CONFIDENTIEL"} {
		s := o.Settings()
		s.Text = text
		_, err := o.SetSettings(s)
		require.NoError(t, err)
	}
	wait(t, o)

	calls := proc.Calls()
	require.Len(t, calls, 4)
	for _, s := range calls[2:] {
		assert.Equal(t, "CONFIDENTIEL", s.Text)
	}
	for _, id := range []string{a.ID, b.ID} {
		doc, _ := o.Get(id)
		assert.Equal(t, StatusDone, doc.Status)
		assert.Equal(t, "CONFIDENTIEL", string(doc.Output.Data))
		assert.Equal(t, uint64(2), doc.Generation)
	}
}

func TestSetSettingsInvalid(t *testing.T) {
	o := New(&funcProcessor{fn: echo}, Options{})
	defer o.Close()

	s := o.Settings()
	s.Size = -1
	_, err := o.SetSettings(s)
	require.ErrorIs(t, err, watermark.ErrInvalidSize)
	assert.Equal(t, 1.0, o.Settings().Size)

	s.Size = 2
	s.Opacity = 7
	got, err := o.SetSettings(s)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Opacity)
	wait(t, o)
}

func TestBlankTextKeepsResults(t *testing.T) {
	proc := &funcProcessor{fn: echo}
	settings := watermark.DefaultSettings()
	settings.Text = "  "
	o := New(proc, Options{Settings: settings, Debounce: -1})
	defer o.Close()

	doc, err := o.Add("a.jpg", metafilix.MediaJPEG, []byte("a"))
	require.NoError(t, err)
	wait(t, o)
	got, _ := o.Get(doc.ID)
	assert.Equal(t, StatusDone, got.Status)
	require.Len(t, proc.Calls(), 1)

	// A settings change with blank text keeps the earlier result.
	settings.Text = ""
	_, err = o.SetSettings(settings)
	require.NoError(t, err)
	wait(t, o)
	got, _ = o.Get(doc.ID)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, uint64(1), got.Generation)
	assert.Len(t, proc.Calls(), 1)

	settings.Text = "VISIBLE"
	_, err = o.SetSettings(settings)
	require.NoError(t, err)
	wait(t, o)
	got, _ = o.Get(doc.ID)
	assert.Equal(t, StatusDone, got.Status)
	assert.Len(t, proc.Calls(), 2)
}

func TestStaleResultDropped(t *testing.T) {
	release := make(chan struct{})
	proc := &funcProcessor{
		fn: func(ctx context.Context, call int, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
			if s.Text != "NEW" {
				// Ignore cancellation and finish after the newer run.
				<-release
			}
			return echo(ctx, call, src, s)
		},
	}
	o := New(proc, Options{Debounce: -1})
	defer o.Close()

	doc, err := o.Add("a.jpg", metafilix.MediaJPEG, []byte("a"))
	require.NoError(t, err)

	s := o.Settings()
	s.Text = "NEW"
	_, err = o.SetSettings(s)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		d, _ := o.Get(doc.ID)
		return d.Status == StatusDone
	}, 5*time.Second, time.Millisecond)
	close(release)
	wait(t, o)

	got, _ := o.Get(doc.ID)
	assert.Equal(t, "NEW", string(got.Output.Data))
	assert.Equal(t, uint64(2), got.Generation)
}

func TestSupersededRunCancelled(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	proc := &funcProcessor{
		fn: func(ctx context.Context, call int, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
			if s.Text == "first" {
				close(started)
				<-ctx.Done()
				close(cancelled)
				return nil, ctx.Err()
			}
			return echo(ctx, call, src, s)
		},
	}
	settings := watermark.DefaultSettings()
	settings.Text = "first"
	o := New(proc, Options{Settings: settings, Debounce: -1})
	defer o.Close()

	doc, err := o.Add("a.jpg", metafilix.MediaJPEG, []byte("a"))
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run not started")
	}

	settings.Text = "second"
	_, err = o.SetSettings(settings)
	require.NoError(t, err)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("first run not cancelled")
	}
	wait(t, o)
	got, _ := o.Get(doc.ID)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, uint64(2), got.Generation)
	assert.Equal(t, "second", proc.Calls()[1].Text)
}

func TestRemove(t *testing.T) {
	started := make(chan struct{})
	proc := &funcProcessor{
		fn: func(ctx context.Context, call int, src pipeline.Source, s watermark.Settings) (*pipeline.Artifact, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := New(proc, Options{})
	defer o.Close()

	doc, err := o.Add("a.pdf", metafilix.MediaPDF, []byte("%PDF"))
	require.NoError(t, err)
	<-started

	require.NoError(t, o.Remove(doc.ID))
	wait(t, o)
	_, ok := o.Get(doc.ID)
	assert.False(t, ok)
	assert.Empty(t, o.List())
	assert.ErrorIs(t, o.Remove(doc.ID), ErrNotFound)
}

func TestEvictBefore(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	o := New(&funcProcessor{fn: echo}, Options{Now: clock})
	defer o.Close()

	old, err := o.Add("old.jpg", metafilix.MediaJPEG, []byte("a"))
	require.NoError(t, err)
	wait(t, o)

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	recent, err := o.Add("recent.jpg", metafilix.MediaJPEG, []byte("b"))
	require.NoError(t, err)
	wait(t, o)

	n := o.EvictBefore(now.Add(-30 * time.Minute))
	assert.Equal(t, 1, n)
	_, ok := o.Get(old.ID)
	assert.False(t, ok)
	list := o.List()
	require.Len(t, list, 1)
	assert.Equal(t, recent.ID, list[0].ID)
}

func TestOnChange(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	o := New(&funcProcessor{fn: echo}, Options{
		OnChange: func(d Document) {
			mu.Lock()
			seen = append(seen, d.Status)
			mu.Unlock()
		},
	})
	defer o.Close()

	_, err := o.Add("a.jpg", metafilix.MediaJPEG, []byte("a"))
	require.NoError(t, err)
	wait(t, o)

	// The run may report completion before Add has delivered its own
	// events.
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []Status{StatusPending, StatusProcessing, StatusDone}, seen)
}

func TestClose(t *testing.T) {
	o := New(&funcProcessor{fn: echo}, Options{})
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	_, err := o.Add("a.jpg", metafilix.MediaJPEG, []byte("a"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = o.SetSettings(watermark.DefaultSettings())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusDone, false},
		{StatusPending, StatusError, false},
		{StatusProcessing, StatusDone, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusPending, false},
		{StatusDone, StatusProcessing, true},
		{StatusDone, StatusError, false},
		{StatusError, StatusProcessing, true},
		{StatusError, StatusPending, false},
	}
	for _, test := range cases {
		assert.Equal(t, test.ok, CanTransition(test.from, test.to), "%s -> %s", test.from, test.to)
	}
}
