/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session opens a project the way every front-end needs it: the
// workspace, the on-disk thumbnail cache, the loader and a strip filled from
// the stored page sequence. Mutations go to the workspace first and reach the
// strip only when they were persisted.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scanstrip/internal/config"
	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
	"scanstrip/internal/storage"
	"scanstrip/internal/strip"
	"scanstrip/internal/textlayout"
	"scanstrip/internal/thumbs"
)

// Options configure Open.
type Options struct {
	Root     string
	Config   config.AppConfig
	Password string
	// OnReady is handed to the thumbnail loader. It runs on a worker goroutine.
	OnReady func(domain.PageID)
	// NoThumbnails leaves the strip on placeholders. Used by batch commands.
	NoThumbnails bool
	// Watch rebuilds thumbnails of scans rewritten on disk while the
	// project is open. Changed pages are reported through OnReady.
	Watch  bool
	Logger *slog.Logger
}

// Session is an open project bound to a strip.
type Session struct {
	Workspace *storage.Workspace
	Strip     *strip.Strip
	Loader    *thumbs.Loader
	// Base is the ordering the strip falls back to when reverse order is off.
	Base domain.OrderProvider

	cache   *storage.ThumbCache
	watcher *thumbs.Watcher
	onReady func(domain.PageID)
	log     *slog.Logger
}

// Open opens the project at opts.Root and fills a new strip from it.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("session")
	}
	cfg := opts.Config
	ws, err := storage.OpenWorkspace(ctx, opts.Root, storage.StoreConfig{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		Password: opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	s := &Session{Workspace: ws, Base: domain.NaturalOrder{}, log: opts.Logger}

	labels, err := textlayout.LabelProvider(cfg.Strip.LabelFont)
	if err != nil {
		s.log.Warn("label font not loaded, using the basic face", slog.String("path", cfg.Strip.LabelFont), slog.Any("err", err))
	}
	maxSize := geom.S(float32(cfg.Strip.MaxThumbWidth), float32(cfg.Strip.MaxThumbHeight))
	s.Strip = strip.New(strip.Options{
		MaxThumbSize: maxSize,
		Spacing:      float32(cfg.Strip.Spacing),
		Labels:       labels,
	})

	if !opts.NoThumbnails {
		cache, err := storage.OpenThumbCache(ctx, storage.ThumbCachePath(opts.Root), storage.MaxThumbCacheBytesFromEnv())
		if err != nil {
			// Thumbnails still render, they are just not kept across runs.
			s.log.Warn("thumbnail cache unavailable", slog.Any("err", err))
		}
		lo := thumbs.Options{MaxSize: maxSize, Workers: cfg.Strip.Workers, OnReady: opts.OnReady}
		if cache != nil {
			s.cache = cache
			lo.Disk = cache
		}
		s.Loader = thumbs.NewLoader(lo)
		s.Strip.SetThumbnailFactory(s.Loader)
		if opts.Watch {
			s.onReady = opts.OnReady
			w, err := thumbs.NewWatcher(s.rescanned, 0)
			if err != nil {
				s.log.Warn("scans are not watched", slog.Any("err", err))
			} else {
				s.watcher = w
			}
		}
	}

	if err := s.Reload(ctx, strip.ResetSelection, s.order(cfg.Strip.ReverseOrder)); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) order(reversed bool) domain.OrderProvider {
	if reversed {
		return domain.Reversed{Of: s.Base}
	}
	return nil
}

// Reload resets the strip from the stored page sequence.
func (s *Session) Reload(ctx context.Context, action strip.SelectionAction, order domain.OrderProvider) error {
	snap, err := s.Workspace.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	s.Strip.Reset(snap, action, order)
	s.track()
	s.log.Debug("strip loaded", slog.Int("pages", snap.NumPages()))
	return nil
}

// Insert stores a page next to image and adds it to the strip.
func (s *Session) Insert(ctx context.Context, info domain.PageInfo, where domain.BeforeOrAfter, image domain.ImageID) error {
	if err := s.Workspace.Insert(ctx, info, where, image); err != nil {
		return err
	}
	s.Strip.Insert(info, where, image)
	s.track()
	return nil
}

// Remove deletes pages from the project and the strip.
func (s *Session) Remove(ctx context.Context, ids []domain.PageID) error {
	if err := s.Workspace.Remove(ctx, ids); err != nil {
		return err
	}
	s.Strip.RemovePages(ids)
	s.track()
	return nil
}

// Split stores image as two halves and reloads the strip, keeping the selection.
func (s *Session) Split(ctx context.Context, image domain.ImageID) error {
	if err := s.Workspace.Split(ctx, image); err != nil {
		return err
	}
	return s.Reload(ctx, strip.KeepSelection, s.Strip.OrderProvider())
}

// Select makes id the current page of the project and the only selected page.
func (s *Session) Select(ctx context.Context, id domain.PageID) error {
	if err := s.Workspace.SetCurrent(ctx, id); err != nil {
		return err
	}
	s.Strip.SetSelection(id)
	return nil
}

// Follow records the page a user clicked as the current page. Pass it leader
// notifications; programmatic and redundant ones are ignored.
func (s *Session) Follow(ctx context.Context, ev strip.LeaderChange) {
	if ev.Flags&strip.SelectedByUser == 0 || ev.Flags&strip.Redundant != 0 {
		return
	}
	if err := s.Workspace.SetCurrent(ctx, ev.Page.ID); err != nil {
		s.log.Warn("current page not saved", slog.String("page", ev.Page.ID.String()), slog.Any("err", err))
	}
}

func (s *Session) track() {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Track(s.Strip.Pages()); err != nil {
		s.log.Warn("scan watch incomplete", slog.Any("err", err))
	}
}

// rescanned drops the stale bitmap and lets the front-end invalidate the
// page, which queues a fresh render.
func (s *Session) rescanned(id domain.PageID) {
	s.Loader.Forget(id)
	if s.onReady != nil {
		s.onReady(id)
	}
}

// Close stops the loader and releases the stores.
func (s *Session) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.Loader != nil {
		s.Loader.Close()
	}
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.Workspace.Close())
	return errors.Join(errs...)
}
