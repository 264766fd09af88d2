/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scanstrip/internal/domain"
)

func sampleManifest() Manifest {
	return Manifest{
		Name: "Test Project",
		Pages: []PageEntry{
			{PageRef: PageRef{Image: "scans/a.png"}},
			{PageRef: PageRef{Image: "scans/b.tif", Page: 1}, MultiPageFile: true},
			{PageRef: PageRef{Image: "scans/c.png", Sub: "left"}},
			{PageRef: PageRef{Image: "scans/c.png", Sub: "right"}},
		},
		Current: &PageRef{Image: "scans/c.png", Sub: "right"},
	}
}

func TestInitProjectCreatesStructureAndManifest(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleManifest())
	if err != nil {
		t.Fatalf("InitProject error: %v", err)
	}
	if ph.ManifestPath != filepath.Join(root, ManifestFileName) {
		t.Fatalf("ManifestPath = %q", ph.ManifestPath)
	}
	b, err := os.ReadFile(ph.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var got Manifest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if got.Name != "Test Project" || len(got.Pages) != 4 {
		t.Fatalf("manifest mismatch: %+v", got)
	}
	for _, d := range []string{BackupsDirName, StateDirName} {
		if fi, err := os.Stat(filepath.Join(root, d)); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s to exist", d)
		}
	}
}

func TestInitProjectRequiresRoot(t *testing.T) {
	if _, err := InitProject("  ", Manifest{Name: "x"}); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestSnapshotResolvesPathsAgainstRoot(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleManifest())
	if err != nil {
		t.Fatalf("InitProject error: %v", err)
	}
	s, err := ph.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.NumPages() != 4 {
		t.Fatalf("pages = %d", s.NumPages())
	}
	want := domain.NewPageID(filepath.Join(root, "scans", "b.tif"), 1, domain.SinglePage)
	if s.Pages[1].ID != want || !s.Pages[1].MultiPageFile {
		t.Fatalf("page 1 = %+v", s.Pages[1])
	}
	if s.Current != domain.NewPageID(filepath.Join(root, "scans", "c.png"), 0, domain.RightPage) {
		t.Fatalf("current = %v", s.Current)
	}

	// Writing the snapshot back keeps paths relative.
	ph.SetSnapshot(s)
	if ph.Manifest.Pages[0].Image != "scans/a.png" || ph.Manifest.Pages[2].Sub != "left" {
		t.Fatalf("SetSnapshot refs = %+v", ph.Manifest.Pages)
	}
	if ph.Manifest.Current == nil || ph.Manifest.Current.Sub != "right" {
		t.Fatalf("SetSnapshot current = %+v", ph.Manifest.Current)
	}
}

func TestSetSnapshotKeepsPathsOutsideRootAbsolute(t *testing.T) {
	root := t.TempDir()
	ph := &ProjectHandle{Root: root}
	outside := filepath.Join(filepath.Dir(root), "elsewhere", "x.png")
	ph.SetSnapshot(domain.Snapshot{Pages: []domain.PageInfo{{ID: domain.NewPageID(outside, 0, domain.SinglePage)}}})
	if ph.Manifest.Pages[0].Image != outside {
		t.Fatalf("image = %q want %q", ph.Manifest.Pages[0].Image, outside)
	}
	if ph.Manifest.Current != nil {
		t.Fatalf("expected no current page")
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleManifest())
	if err != nil {
		t.Fatalf("InitProject error: %v", err)
	}
	ph.Manifest.Name = "changed"
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	ents, err := os.ReadDir(filepath.Join(root, BackupsDirName))
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	var bakCount int
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			bakCount++
		}
	}
	if bakCount == 0 {
		t.Fatalf("expected at least one backup file, found 0")
	}
}

func TestSaveRejectsInvalidManifest(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleManifest())
	if err != nil {
		t.Fatalf("InitProject error: %v", err)
	}
	ph.Manifest.Pages = append(ph.Manifest.Pages, PageEntry{PageRef: PageRef{Image: "d.png", Sub: "top"}})
	if err := Save(ph); !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("Save err = %v, want ErrInvalidManifest", err)
	}
}

func TestOpenFallsBackToLatestBackupOnCorruption(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleManifest())
	if err != nil {
		t.Fatalf("InitProject error: %v", err)
	}
	// Force a backup to exist by saving
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := os.WriteFile(ph.ManifestPath, []byte("{ this is not json"), 0o644); err != nil {
		t.Fatalf("corrupt manifest: %v", err)
	}
	opened, err := OpenProject(root)
	if err != nil {
		t.Fatalf("OpenProject error: %v", err)
	}
	if opened.Manifest.Name != "Test Project" || len(opened.Manifest.Pages) != 4 {
		t.Fatalf("opened manifest mismatch: %+v", opened.Manifest)
	}
}

func TestOpenWithoutManifestOrBackupFails(t *testing.T) {
	if _, err := OpenProject(t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleManifest())
	if err != nil {
		t.Fatalf("InitProject error: %v", err)
	}
	path, err := AutosaveCrashSnapshot(ph)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var got Manifest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if got.Name != "Test Project" {
		t.Fatalf("snapshot content mismatch: %q", got.Name)
	}
	// Crash snapshots are not picked up as backups.
	if strings.HasSuffix(path, ".bak") {
		t.Fatalf("crash snapshot must not look like a backup: %s", path)
	}
}
