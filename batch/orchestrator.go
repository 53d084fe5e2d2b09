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


// Package batch keeps track of the documents of an interactive session and
// re-processes them whenever the watermark settings change.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garnajee/metafiliX"
	"github.com/garnajee/metafiliX/pipeline"
	"github.com/garnajee/metafiliX/watermark"
)

// DefaultDebounce is the delay between the last settings change and the
// start of re-processing.
const DefaultDebounce = 800 * time.Millisecond

// ErrClosed is returned by an [Orchestrator] after [Orchestrator.Close].
var ErrClosed = errors.New("batch: orchestrator closed")

// ErrNotFound is returned for unknown document IDs.
var ErrNotFound = errors.New("batch: no such document")

// Processor runs the pipeline for one document.  [*pipeline.Pipeline]
// implements this interface.
type Processor interface {
	Process(ctx context.Context, src pipeline.Source, settings watermark.Settings) (*pipeline.Artifact, error)
}

// Document is a snapshot of the state of one document.
type Document struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	MediaType metafilix.MediaType `json:"mediaType"`
	Size      int                 `json:"size"`
	Status    Status              `json:"status"`

	// Error is a short description of the failure, if Status is
	// StatusError.
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	// Output is the result of the last successful run.
	Output     *pipeline.Artifact `json:"-"`
	OutputName string             `json:"outputName,omitempty"`
	Pages      int                `json:"pages,omitempty"`

	// Generation counts the runs started for this document.
	Generation uint64 `json:"generation"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Options configure an [Orchestrator].
type Options struct {
	// Settings are the initial watermark settings.  The zero value selects
	// [watermark.DefaultSettings].
	Settings watermark.Settings

	// Debounce is the delay used by [Orchestrator.SetSettings].  Zero
	// selects DefaultDebounce, a negative value disables debouncing.
	Debounce time.Duration

	// OnChange, if set, is called after every state change of a document.
	// Calls are made without holding internal locks.
	OnChange func(Document)

	Log *zap.Logger
	Now func() time.Time
}

type entry struct {
	doc    Document
	data   []byte
	cancel context.CancelFunc
}

// Orchestrator owns the in-flight documents of a session.  Each
// (re)submission of a document starts a new run and cancels the previous
// one; only the result of the most recent run is kept.
type Orchestrator struct {
	proc     Processor
	debounce time.Duration
	onChange func(Document)
	log      *zap.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	settings watermark.Settings
	docs     map[string]*entry
	order    []string
	active   int
	timer    *time.Timer
	timerSeq uint64
	changed  chan struct{}
	closed   bool
}

// New creates an orchestrator which uses proc to process documents.
func New(proc Processor, opts Options) *Orchestrator {
	settings := opts.Settings
	if normalized, err := settings.Normalize(); err == nil {
		settings = normalized
	} else {
		settings = watermark.DefaultSettings()
	}
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		proc:     proc,
		debounce: debounce,
		onChange: opts.OnChange,
		log:      log,
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
		settings: settings,
		docs:     make(map[string]*entry),
		changed:  make(chan struct{}),
	}
}

// Add registers a new document and starts processing it.  The media type
// must be one of the supported types.
func (o *Orchestrator) Add(name string, mediaType metafilix.MediaType, data []byte) (*Document, error) {
	if _, err := metafilix.ParseMediaType(string(mediaType)); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	t := o.now()
	e := &entry{
		doc: Document{
			ID:        uuid.NewString(),
			Name:      name,
			MediaType: mediaType,
			Size:      len(data),
			Status:    StatusPending,
			Created:   t,
			Updated:   t,
		},
		data: data,
	}
	o.docs[e.doc.ID] = e
	o.order = append(o.order, e.doc.ID)
	events := []Document{e.doc}
	events = o.start(e, events)
	doc := e.doc
	o.mu.Unlock()

	o.log.Info("document added",
		zap.String("id", doc.ID),
		zap.String("name", name),
		zap.String("mediaType", string(mediaType)),
		zap.Int("size", len(data)))
	o.emit(events)
	return &doc, nil
}

// Remove forgets a document, cancelling its run if one is in progress.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	e, ok := o.docs[id]
	if !ok {
		o.mu.Unlock()
		return ErrNotFound
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(o.docs, id)
	for i, x := range o.order {
		if x == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	o.notify()
	o.mu.Unlock()

	o.log.Info("document removed", zap.String("id", id))
	return nil
}

// Get returns a snapshot of the document with the given ID.
func (o *Orchestrator) Get(id string) (Document, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.docs[id]
	if !ok {
		return Document{}, false
	}
	return e.doc, true
}

// List returns snapshots of all documents, in the order they were added.
func (o *Orchestrator) List() []Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := make([]Document, 0, len(o.order))
	for _, id := range o.order {
		res = append(res, o.docs[id].doc)
	}
	return res
}

// Settings returns the current watermark settings.
func (o *Orchestrator) Settings() watermark.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// SetSettings replaces the watermark settings.  Once no further change has
// been made for the debounce delay, all documents are processed again with
// the new settings.  Invalid settings are rejected.
func (o *Orchestrator) SetSettings(s watermark.Settings) (watermark.Settings, error) {
	s, err := s.Normalize()
	if err != nil {
		return s, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return s, ErrClosed
	}
	o.settings = s
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerSeq++
	seq := o.timerSeq

	if o.debounce < 0 {
		events := o.restartAll()
		o.mu.Unlock()
		o.emit(events)
		return s, nil
	}
	o.timer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		if o.closed || seq != o.timerSeq {
			o.mu.Unlock()
			return
		}
		o.timer = nil
		events := o.restartAll()
		o.notify()
		o.mu.Unlock()
		o.emit(events)
	})
	o.notify()
	o.mu.Unlock()

	o.log.Debug("settings changed", zap.Duration("debounce", o.debounce))
	return s, nil
}

// restartAll starts a new run for every document.  Nothing is restarted
// while the watermark text is blank, the previous results are kept.  The
// caller must hold o.mu.
func (o *Orchestrator) restartAll() []Document {
	var events []Document
	if strings.TrimSpace(o.settings.Text) == "" {
		o.log.Debug("blank watermark text, re-run skipped")
		return events
	}
	for _, id := range o.order {
		events = o.start(o.docs[id], events)
	}
	return events
}

// start begins a new run for e, superseding any earlier run.  The caller
// must hold o.mu.
func (o *Orchestrator) start(e *entry, events []Document) []Document {
	settings := o.settings
	if !o.setStatus(e, StatusProcessing) {
		return events
	}

	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	e.cancel = cancel
	e.doc.Generation++
	gen := e.doc.Generation
	src := pipeline.Source{
		Name:      e.doc.Name,
		MediaType: e.doc.MediaType,
		Data:      e.data,
	}

	o.active++
	o.wg.Add(1)
	go o.run(ctx, e.doc.ID, gen, src, settings)
	return append(events, e.doc)
}

func (o *Orchestrator) run(ctx context.Context, id string, gen uint64, src pipeline.Source, settings watermark.Settings) {
	defer o.wg.Done()

	start := o.now()
	res, err := o.proc.Process(ctx, src, settings)

	o.mu.Lock()
	o.active--
	o.notify()
	e, ok := o.docs[id]
	if !ok || e.doc.Generation != gen {
		o.mu.Unlock()
		o.log.Debug("stale result dropped",
			zap.String("id", id),
			zap.Uint64("generation", gen))
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	if err != nil {
		o.setStatus(e, StatusError)
		e.doc.Err = err
		e.doc.Error = metafilix.UserMessage(err)
	} else {
		o.setStatus(e, StatusDone)
		e.doc.Err = nil
		e.doc.Error = ""
		e.doc.Output = res
		e.doc.OutputName = res.Name
		e.doc.Pages = res.Pages
	}
	doc := e.doc
	o.mu.Unlock()

	if err != nil {
		o.log.Warn("document failed",
			zap.String("id", id),
			zap.String("name", src.Name),
			zap.Error(err))
	} else {
		o.log.Info("document done",
			zap.String("id", id),
			zap.String("name", src.Name),
			zap.Int("pages", res.Pages),
			zap.Duration("duration", o.now().Sub(start)))
	}
	o.emit([]Document{doc})
}

// setStatus performs a state transition.  The caller must hold o.mu.
func (o *Orchestrator) setStatus(e *entry, to Status) bool {
	from := e.doc.Status
	if !CanTransition(from, to) {
		o.log.Error("invalid status transition",
			zap.String("id", e.doc.ID),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		return false
	}
	e.doc.Status = to
	e.doc.Updated = o.now()
	return true
}

// EvictBefore removes all finished documents which were last updated
// before t, and returns their number.
func (o *Orchestrator) EvictBefore(t time.Time) int {
	o.mu.Lock()
	var keep []string
	n := 0
	for _, id := range o.order {
		e := o.docs[id]
		if e.doc.Status.Finished() && e.doc.Updated.Before(t) {
			delete(o.docs, id)
			n++
			continue
		}
		keep = append(keep, id)
	}
	o.order = keep
	if n > 0 {
		o.notify()
	}
	o.mu.Unlock()

	if n > 0 {
		o.log.Info("documents evicted", zap.Int("count", n))
	}
	return n
}

// Wait blocks until no run is in progress and no settings change is
// pending, or until ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	for {
		o.mu.Lock()
		if o.active == 0 && o.timer == nil {
			o.mu.Unlock()
			return nil
		}
		ch := o.changed
		o.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels all runs and waits for them to finish.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.notify()
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	return nil
}

// notify wakes up all goroutines blocked in Wait.  The caller must hold
// o.mu.
func (o *Orchestrator) notify() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) emit(events []Document) {
	if o.onChange == nil {
		return
	}
	for _, doc := range events {
		o.onChange(doc)
	}
}

func (d Document) String() string {
	return fmt.Sprintf("%s %q [%s]", d.ID, d.Name, d.Status)
}
