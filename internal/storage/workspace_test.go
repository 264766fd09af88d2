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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scanstrip/internal/domain"
)

func TestWorkspaceSeedsStoreAndSavesManifest(t *testing.T) {
	root := t.TempDir()
	if _, err := InitProject(root, sampleManifest()); err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	ctx := context.Background()
	w, err := OpenWorkspace(ctx, root, StoreConfig{})
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	defer func() { _ = w.Close() }()

	s, err := w.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.NumPages() != 4 {
		t.Fatalf("seeded pages = %d", s.NumPages())
	}
	a := domain.ImageID{Path: filepath.Join(root, "scans", "a.png")}
	if err := w.Split(ctx, a); err != nil {
		t.Fatalf("Split: %v", err)
	}
	reopened, err := OpenProject(root)
	if err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	if len(reopened.Manifest.Pages) != 5 || reopened.Manifest.Pages[0].Sub != "left" || reopened.Manifest.Pages[1].Sub != "right" {
		t.Fatalf("manifest after split = %+v", reopened.Manifest.Pages)
	}
}

func TestWorkspaceRemoveClearsCurrent(t *testing.T) {
	root := t.TempDir()
	if _, err := InitProject(root, sampleManifest()); err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	ctx := context.Background()
	w, err := OpenWorkspace(ctx, root, StoreConfig{})
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	defer func() { _ = w.Close() }()

	c := filepath.Join(root, "scans", "c.png")
	right := domain.NewPageID(c, 0, domain.RightPage)
	if err := w.Remove(ctx, []domain.PageID{right}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	s, _ := w.Snapshot(ctx)
	if !s.Current.IsNull() {
		t.Fatalf("current should be cleared, got %v", s.Current)
	}
	last := s.Pages[len(s.Pages)-1].ID
	if last != domain.NewPageID(c, 0, domain.SinglePage) {
		t.Fatalf("remaining half should become single, got %v", last)
	}
	if w.Project.Manifest.Current != nil {
		t.Fatalf("manifest current = %+v", w.Project.Manifest.Current)
	}
}

func TestWorkspaceSetCurrentRejectsUnknownPage(t *testing.T) {
	root := t.TempDir()
	if _, err := InitProject(root, sampleManifest()); err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	ctx := context.Background()
	w, err := OpenWorkspace(ctx, root, StoreConfig{})
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	defer func() { _ = w.Close() }()
	err = w.SetCurrent(ctx, domain.NewPageID("/nowhere.png", 0, domain.SinglePage))
	if !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("SetCurrent err = %v", err)
	}
	a := domain.NewPageID(filepath.Join(root, "scans", "a.png"), 0, domain.SinglePage)
	if err := w.SetCurrent(ctx, a); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if w.Project.Manifest.Current == nil || w.Project.Manifest.Current.Image != "scans/a.png" {
		t.Fatalf("manifest current = %+v", w.Project.Manifest.Current)
	}
}

func TestWorkspaceRebuildsDeletedStore(t *testing.T) {
	root := t.TempDir()
	if _, err := InitProject(root, sampleManifest()); err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	ctx := context.Background()
	w, err := OpenWorkspace(ctx, root, StoreConfig{})
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	_ = w.Close()
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(PageStorePath(root) + suffix)
	}
	w, err = OpenWorkspace(ctx, root, StoreConfig{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = w.Close() }()
	s, _ := w.Snapshot(ctx)
	if s.NumPages() != 4 || s.Current.IsNull() {
		t.Fatalf("rebuilt snapshot = %+v", s)
	}
}
