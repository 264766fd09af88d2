/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thumbs

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
	"scanstrip/internal/strip"
)

// Options configure a Loader.
type Options struct {
	MaxSize   geom.Size
	Workers   int // defaults to 4
	QueueSize int // requests served newest first, defaults to 100
	// OnReady is called from a worker goroutine once a thumbnail is cached.
	// Front-ends hand it over to their UI goroutine before touching the strip.
	OnReady func(domain.PageID)
	// Disk, when set, keeps encoded thumbnails across runs.
	Disk   DiskCache
	Logger *slog.Logger
}

// DiskCache stores encoded thumbnails keyed by page, target size and the
// modification time of the source file. storage.ThumbCache implements it.
type DiskCache interface {
	Get(ctx context.Context, id domain.PageID, w, h int, sourceMod time.Time) ([]byte, error)
	Put(ctx context.Context, id domain.PageID, w, h int, sourceMod time.Time, blob []byte) error
}

type request struct {
	info domain.PageInfo
	gen  uint64
}

// Loader is a strip.ThumbnailFactory backed by an in-memory cache. A miss
// queues the page for rendering and reports nothing, so the strip shows a
// placeholder until OnReady fires.
type Loader struct {
	opts  Options
	log   *slog.Logger
	cache sync.Map // domain.PageID -> *Bitmap

	mu       sync.Mutex
	cond     *sync.Cond
	requests []request
	// overflow holds requests pushed out of a full stack. They are served
	// once the stack drains.
	overflow []request
	pending  map[domain.PageID]bool
	gen      map[domain.PageID]uint64
	failed   map[domain.PageID]bool
	closed   bool
	wg       sync.WaitGroup
}

var _ strip.ThumbnailFactory = (*Loader)(nil)

// NewLoader starts the worker pool. Close stops it.
func NewLoader(opts Options) *Loader {
	l := newLoader(opts)
	for range l.opts.Workers {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

func newLoader(opts Options) *Loader {
	if opts.MaxSize.IsZero() {
		opts.MaxSize = geom.S(160, 160)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("thumbs")
	}
	l := &Loader{
		opts:     opts,
		log:      opts.Logger,
		requests: make([]request, 0, opts.QueueSize),
		pending:  map[domain.PageID]bool{},
		gen:      map[domain.PageID]uint64{},
		failed:   map[domain.PageID]bool{},
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Thumbnail implements strip.ThumbnailFactory.
func (l *Loader) Thumbnail(info domain.PageInfo, _ int) strip.Thumbnail {
	if b, ok := l.cache.Load(info.ID); ok {
		return b.(*Bitmap)
	}
	l.enqueue(info)
	return nil
}

// Cached returns the cached bitmap of a page.
func (l *Loader) Cached(id domain.PageID) (*Bitmap, bool) {
	b, ok := l.cache.Load(id)
	if !ok {
		return nil, false
	}
	return b.(*Bitmap), true
}

// Forget drops a page from the cache so that it is rendered again on the next
// request. A render already running for it is discarded when it finishes.
func (l *Loader) Forget(id domain.PageID) {
	l.mu.Lock()
	l.cache.Delete(id)
	l.gen[id]++
	delete(l.pending, id)
	delete(l.failed, id)
	l.mu.Unlock()
}

func (l *Loader) enqueue(info domain.PageInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.pending[info.ID] || l.failed[info.ID] {
		return
	}
	// LIFO: the most recent requests are the visible ones. When full, the
	// oldest waits in overflow.
	if len(l.requests) >= l.opts.QueueSize {
		l.overflow = append(l.overflow, l.requests[0])
		l.requests = l.requests[1:]
	}
	l.requests = append(l.requests, request{info: info, gen: l.gen[info.ID]})
	l.pending[info.ID] = true
	l.cond.Signal()
}

func (l *Loader) next() (request, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.requests) == 0 && len(l.overflow) == 0 && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		return request{}, false
	}
	if len(l.requests) == 0 {
		n := min(len(l.overflow), l.opts.QueueSize)
		from := len(l.overflow) - n
		l.requests = append(l.requests, l.overflow[from:]...)
		l.overflow = l.overflow[:from]
	}
	last := len(l.requests) - 1
	req := l.requests[last]
	l.requests = l.requests[:last]
	return req, true
}

func (l *Loader) worker() {
	defer l.wg.Done()
	for {
		req, ok := l.next()
		if !ok {
			return
		}
		l.process(req)
	}
}

func (l *Loader) process(req request) {
	id := req.info.ID
	b, err := l.render(req.info)
	l.mu.Lock()
	if req.gen != l.gen[id] {
		l.mu.Unlock()
		l.log.Debug("stale thumbnail discarded", slog.String("page", id.String()))
		return
	}
	delete(l.pending, id)
	if err != nil {
		l.failed[id] = true
	} else {
		l.cache.Store(id, b)
	}
	l.mu.Unlock()
	if err != nil {
		l.log.Warn("thumbnail failed", slog.String("page", id.String()), slog.Any("err", err))
		return
	}
	if l.opts.OnReady != nil {
		l.opts.OnReady(id)
	}
}

func (l *Loader) render(info domain.PageInfo) (*Bitmap, error) {
	if l.opts.Disk == nil {
		return Render(info, l.opts.MaxSize)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w, h := int(l.opts.MaxSize.W), int(l.opts.MaxSize.H)
	fi, statErr := os.Stat(info.ImageID().Path)
	if statErr == nil {
		if blob, err := l.opts.Disk.Get(ctx, info.ID, w, h, fi.ModTime()); err != nil {
			l.log.Debug("disk cache read failed", slog.Any("err", err))
		} else if blob != nil {
			if b, err := DecodePNG(blob); err == nil {
				return b, nil
			}
		}
	}
	b, err := Render(info, l.opts.MaxSize)
	if err != nil || statErr != nil {
		return b, err
	}
	if blob, err := b.EncodePNG(); err == nil {
		if err := l.opts.Disk.Put(ctx, info.ID, w, h, fi.ModTime(), blob); err != nil {
			l.log.Debug("disk cache write failed", slog.Any("err", err))
		}
	}
	return b, nil
}

// Close stops the workers and drops pending requests.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	l.requests = nil
	l.overflow = nil
	l.cond.Broadcast()
	l.mu.Unlock()
	l.wg.Wait()
}
