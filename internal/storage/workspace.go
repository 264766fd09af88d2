/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"scanstrip/internal/domain"
	applog "scanstrip/internal/log"
)

// Workspace pairs a project manifest with its page store. The store is the
// working copy; every mutation is mirrored into the manifest.
type Workspace struct {
	Project *ProjectHandle
	Store   *PageStore
}

// OpenWorkspace opens the project at root and its page store. An empty store
// is seeded from the manifest so a deleted or fresh database is rebuilt.
func OpenWorkspace(ctx context.Context, root string, cfg StoreConfig) (*Workspace, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "workspace_open").With(slog.String("root", root))
	ph, err := OpenProject(root)
	if err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = root
	}
	if cfg.Project == "" {
		cfg.Project = ph.Manifest.Name
	}
	ps, err := OpenPageStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	w := &Workspace{Project: ph, Store: ps}
	stored, err := ps.Snapshot(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	if len(stored.Pages) == 0 && len(ph.Manifest.Pages) > 0 {
		snap, err := ph.Snapshot()
		if err != nil {
			_ = ps.Close()
			return nil, err
		}
		if err := ps.Replace(ctx, snap.Pages); err != nil {
			_ = ps.Close()
			return nil, err
		}
		if err := ps.SetCurrent(ctx, snap.Current); err != nil {
			_ = ps.Close()
			return nil, err
		}
		l.Info("page store rebuilt from manifest", slog.Int("pages", len(snap.Pages)))
	}
	return w, nil
}

// Close releases the page store.
func (w *Workspace) Close() error { return w.Store.Close() }

// Snapshot returns the current page sequence.
func (w *Workspace) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return w.Store.Snapshot(ctx)
}

// Insert adds a page relative to image and saves the manifest.
func (w *Workspace) Insert(ctx context.Context, info domain.PageInfo, where domain.BeforeOrAfter, image domain.ImageID) error {
	if err := w.Store.Insert(ctx, info, where, image); err != nil {
		return err
	}
	return w.sync(ctx)
}

// Remove deletes pages and saves the manifest. A removed current page is cleared.
func (w *Workspace) Remove(ctx context.Context, ids []domain.PageID) error {
	if err := w.Store.Remove(ctx, ids); err != nil {
		return err
	}
	snap, err := w.Store.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.Current.IsNull() && !Contains(snap.Pages, snap.Current) {
		if err := w.Store.SetCurrent(ctx, domain.PageID{}); err != nil {
			return err
		}
	}
	return w.sync(ctx)
}

// Split turns a single page into left and right halves and saves the manifest.
func (w *Workspace) Split(ctx context.Context, image domain.ImageID) error {
	if err := w.Store.Split(ctx, image); err != nil {
		return err
	}
	return w.sync(ctx)
}

// SetCurrent records the current page. The page must be part of the sequence.
func (w *Workspace) SetCurrent(ctx context.Context, id domain.PageID) error {
	if !id.IsNull() {
		snap, err := w.Store.Snapshot(ctx)
		if err != nil {
			return err
		}
		if !Contains(snap.Pages, id) {
			return fmt.Errorf("set current %s: %w", id, ErrPageNotFound)
		}
	}
	if err := w.Store.SetCurrent(ctx, id); err != nil {
		return err
	}
	return w.sync(ctx)
}

func (w *Workspace) sync(ctx context.Context) error {
	snap, err := w.Store.Snapshot(ctx)
	if err != nil {
		return err
	}
	w.Project.SetSnapshot(snap)
	return Save(w.Project)
}
