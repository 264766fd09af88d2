/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"scanstrip/internal/domain"
)

const (
	ManifestFileName = "scanstrip.json"
	BackupsDirName   = "backups"
	StateDirName     = ".scanstrip"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// PageRef references a page in the manifest. Image paths are relative to the
// project root unless they are absolute.
type PageRef struct {
	Image string `json:"image"`
	Page  int    `json:"page,omitempty"`
	Sub   string `json:"sub,omitempty"`
}

// PageEntry is one page of the manifest.
type PageEntry struct {
	PageRef
	MultiPageFile bool `json:"multi_page_file,omitempty"`
}

// Manifest is the on-disk form of a project.
type Manifest struct {
	Name    string      `json:"name"`
	Pages   []PageEntry `json:"pages"`
	Current *PageRef    `json:"current,omitempty"`
}

// ProjectHandle keeps track of the project state loaded/saved from disk.
// Root is the project directory containing scanstrip.json.
type ProjectHandle struct {
	Root         string
	ManifestPath string
	Manifest     Manifest
}

// InitProject creates a project directory at root and writes the manifest.
func InitProject(root string, m Manifest) (*ProjectHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	for _, d := range []string{root, filepath.Join(root, BackupsDirName), filepath.Join(root, StateDirName)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	if m.Pages == nil {
		m.Pages = []PageEntry{}
	}
	ph := &ProjectHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, ManifestFileName),
		Manifest:     m,
	}
	if err := Save(ph); err != nil {
		return nil, err
	}
	return ph, nil
}

// OpenProject loads an existing project from the given root directory. If the
// manifest cannot be read, parsed or validated, the latest backup is used.
func OpenProject(root string) (*ProjectHandle, error) {
	mpath := filepath.Join(root, ManifestFileName)
	m, err := readManifest(mpath)
	if err != nil {
		bm, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		m = bm
	}
	return &ProjectHandle{Root: root, ManifestPath: mpath, Manifest: *m}, nil
}

func readManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateManifest(b); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// ValidateManifest checks raw manifest JSON against the embedded schema.
func ValidateManifest(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(manifestSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(msgs, "; "))
	}
	return nil
}

// Save writes the manifest with transactional semantics and a timestamped
// backup of the previous manifest (if present).
func Save(ph *ProjectHandle) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	if ph.Root == "" || ph.ManifestPath == "" {
		return errors.New("invalid ProjectHandle: missing paths")
	}
	data, err := json.MarshalIndent(ph.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := ValidateManifest(data); err != nil {
		return err
	}

	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(ph.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp))
		if cerr := copyFile(ph.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}

	// Write to a temp file in the same directory, then rename over the target.
	temp := filepath.Join(filepath.Dir(ph.ManifestPath), fmt.Sprintf(".%s.tmp-%d-%d", ManifestFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(ph.ManifestPath); err == nil {
		_ = os.Remove(ph.ManifestPath)
	}
	if rerr := os.Rename(temp, ph.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// Snapshot converts the manifest into the page sequence, resolving image paths against Root.
func (ph *ProjectHandle) Snapshot() (domain.Snapshot, error) {
	s := domain.Snapshot{Pages: make([]domain.PageInfo, 0, len(ph.Manifest.Pages))}
	for _, e := range ph.Manifest.Pages {
		id, err := ph.pageID(e.PageRef)
		if err != nil {
			return domain.Snapshot{}, err
		}
		s.Pages = append(s.Pages, domain.PageInfo{ID: id, MultiPageFile: e.MultiPageFile})
	}
	if ph.Manifest.Current != nil {
		id, err := ph.pageID(*ph.Manifest.Current)
		if err != nil {
			return domain.Snapshot{}, err
		}
		s.Current = id
	}
	return s, nil
}

// SetSnapshot replaces the manifest pages. Image paths inside Root are stored relative.
func (ph *ProjectHandle) SetSnapshot(s domain.Snapshot) {
	ph.Manifest.Pages = make([]PageEntry, 0, len(s.Pages))
	for _, p := range s.Pages {
		ph.Manifest.Pages = append(ph.Manifest.Pages, PageEntry{PageRef: ph.ref(p.ID), MultiPageFile: p.MultiPageFile})
	}
	ph.Manifest.Current = nil
	if !s.Current.IsNull() {
		ref := ph.ref(s.Current)
		ph.Manifest.Current = &ref
	}
}

func (ph *ProjectHandle) pageID(r PageRef) (domain.PageID, error) {
	sub, err := domain.ParseSubPage(r.Sub)
	if err != nil {
		return domain.PageID{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	path := r.Image
	if !filepath.IsAbs(path) {
		path = filepath.Join(ph.Root, filepath.FromSlash(path))
	}
	return domain.NewPageID(path, r.Page, sub), nil
}

func (ph *ProjectHandle) ref(id domain.PageID) PageRef {
	path := id.Image.Path
	if rel, err := filepath.Rel(ph.Root, path); err == nil && !strings.HasPrefix(rel, "..") && filepath.IsAbs(path) == filepath.IsAbs(ph.Root) {
		path = filepath.ToSlash(rel)
	}
	r := PageRef{Image: path, Page: id.Image.Page}
	if id.Sub != domain.SinglePage {
		r.Sub = id.Sub.String()
	}
	return r
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// openFromLatestBackup tries the backups newest first.
func openFromLatestBackup(root string) (*Manifest, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	sort.Sort(sort.Reverse(sort.StringSlice(candidates))) // timestamp in name yields lexicographic order
	var lastErr error
	for _, c := range candidates {
		m, err := readManifest(c)
		if err == nil {
			return m, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable backup: %w", lastErr)
}

// AutosaveCrashSnapshot writes the in-memory manifest next to the backups
// without touching scanstrip.json. Used when the process is about to die.
func AutosaveCrashSnapshot(ph *ProjectHandle) (string, error) {
	if ph == nil || ph.Root == "" {
		return "", errors.New("invalid ProjectHandle: missing root")
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	data, err := json.MarshalIndent(ph.Manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.json", ManifestFileName, time.Now().Format("20060102-150405.000")))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}
