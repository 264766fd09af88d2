/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scanstrip/internal/storage"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "ScanStrip Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") || !strings.Contains(s, "ID: ") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportIncludesProjectSummary(t *testing.T) {
	root := t.TempDir()
	ph := &storage.ProjectHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, storage.ManifestFileName),
		Manifest: storage.Manifest{
			Name:    "p",
			Pages:   []storage.PageEntry{{PageRef: storage.PageRef{Image: "a.png"}}, {PageRef: storage.PageRef{Image: "b.png"}}},
			Current: &storage.PageRef{Image: "b.png"},
		},
	}
	path, err := writeReport(ph, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(root, storage.BackupsDirName) {
		t.Fatalf("expected crash report under backups dir, got %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(b), "Pages: 2") || !strings.Contains(string(b), "Current: b.png page 0") {
		t.Fatalf("project summary missing: %s", b)
	}
}
