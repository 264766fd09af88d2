/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thumbs

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scanstrip/internal/domain"
	applog "scanstrip/internal/log"
)

// DefaultSettle is how long a scan must stay quiet before it is reported.
// Scanners and editors write files in several chunks.
const DefaultSettle = 250 * time.Millisecond

// Watcher reports pages whose image file was rewritten on disk.
type Watcher struct {
	fw       *fsnotify.Watcher
	onChange func(domain.PageID)
	settle   time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	images map[string][]domain.PageID // cleaned path -> pages
	dirs   map[string]bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher starts watching. onChange runs on the watcher goroutine, once
// per page of a changed file. A zero settle uses DefaultSettle.
func NewWatcher(onChange func(domain.PageID), settle time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch scans: %w", err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	w := &Watcher{
		fw:       fw,
		onChange: onChange,
		settle:   settle,
		log:      applog.WithComponent("thumbs"),
		images:   map[string][]domain.PageID{},
		dirs:     map[string]bool{},
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Track replaces the set of watched pages. Directories are added as needed
// and never removed while the watcher runs.
func (w *Watcher) Track(pages []domain.PageInfo) error {
	images := make(map[string][]domain.PageID, len(pages))
	for _, p := range pages {
		path := filepath.Clean(p.ImageID().Path)
		images[path] = append(images[path], p.ID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images = images
	var firstErr error
	for path := range images {
		dir := filepath.Dir(path)
		if w.dirs[dir] {
			continue
		}
		if err := w.fw.Add(dir); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("watch %s: %w", dir, err)
			}
			continue
		}
		w.dirs[dir] = true
	}
	return firstErr
}

func (w *Watcher) pagesOf(path string) []domain.PageID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.images[path]
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	pending := map[string]bool{}
	timer := time.NewTimer(w.settle)
	timer.Stop()
	for {
		select {
		case <-w.done:
			timer.Stop()
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if len(w.pagesOf(path)) == 0 {
				continue
			}
			pending[path] = true
			timer.Reset(w.settle)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("scan watcher error", slog.Any("err", err))
		case <-timer.C:
			for path := range pending {
				ids := w.pagesOf(path)
				w.log.Debug("scan changed", slog.String("path", path), slog.Int("pages", len(ids)))
				for _, id := range ids {
					w.onChange(id)
				}
			}
			clear(pending)
		}
	}
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		_ = w.fw.Close()
	})
}
