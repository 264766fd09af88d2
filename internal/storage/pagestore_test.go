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
	"time"

	"scanstrip/internal/domain"
)

func openTestStore(t *testing.T, cfg StoreConfig) *PageStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ps, err := OpenPageStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenPageStore: %v", err)
	}
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func exercisePageStore(t *testing.T, ps *PageStore) {
	t.Helper()
	ctx := context.Background()
	a, b, c := page("/s/a.png", domain.SinglePage), page("/s/b.png", domain.SinglePage), page("/s/c.png", domain.SinglePage)

	if err := ps.Replace(ctx, []domain.PageInfo{a, c}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := ps.Insert(ctx, b, domain.Before, c.ImageID()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s, err := ps.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	equalIDs(t, s.Pages, a, b, c)

	if err := ps.Insert(ctx, b, domain.After, a.ImageID()); !errors.Is(err, ErrDuplicatePage) {
		t.Fatalf("duplicate insert err = %v", err)
	}
	if err := ps.Split(ctx, b.ImageID()); err != nil {
		t.Fatalf("Split: %v", err)
	}
	bl, br := page("/s/b.png", domain.LeftPage), page("/s/b.png", domain.RightPage)
	s, _ = ps.Snapshot(ctx)
	equalIDs(t, s.Pages, a, bl, br, c)

	if err := ps.SetCurrent(ctx, br.ID); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := ps.Remove(ctx, []domain.PageID{bl.ID, c.ID}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	s, _ = ps.Snapshot(ctx)
	equalIDs(t, s.Pages, a, b)
	// The store keeps whatever current page it was given.
	if s.Current != br.ID {
		t.Fatalf("current = %v", s.Current)
	}
	if err := ps.SetCurrent(ctx, domain.PageID{}); err != nil {
		t.Fatalf("clear current: %v", err)
	}
	s, _ = ps.Snapshot(ctx)
	if !s.Current.IsNull() {
		t.Fatalf("current not cleared: %v", s.Current)
	}
	if err := ps.Split(ctx, domain.ImageID{Path: "/s/none.png"}); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("split missing err = %v", err)
	}
}

func TestSQLitePageStore(t *testing.T) {
	root := t.TempDir()
	ps := openTestStore(t, StoreConfig{Root: root, Project: "p"})
	exercisePageStore(t, ps)
	if _, err := os.Stat(PageStorePath(root)); err != nil {
		t.Fatalf("store file missing: %v", err)
	}
}

func TestSQLitePageStoreSeparatesProjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.sqlite")
	one := openTestStore(t, StoreConfig{Path: path, Project: "one"})
	ctx := context.Background()
	if err := one.Replace(ctx, []domain.PageInfo{page("/s/a.png", domain.SinglePage)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	_ = one.Close()
	two := openTestStore(t, StoreConfig{Path: path, Project: "two"})
	s, err := two.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.NumPages() != 0 {
		t.Fatalf("project two sees %d pages", s.NumPages())
	}
}

func TestSQLitePageStorePersists(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	ps := openTestStore(t, StoreConfig{Root: root, Project: "p"})
	multi := domain.PageInfo{ID: domain.NewPageID("/s/m.tif", 2, domain.SinglePage), MultiPageFile: true}
	if err := ps.Replace(ctx, []domain.PageInfo{multi}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	_ = ps.Close()
	again := openTestStore(t, StoreConfig{Root: root, Project: "p"})
	s, err := again.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.NumPages() != 1 || s.Pages[0] != multi {
		t.Fatalf("pages = %+v", s.Pages)
	}
}

func TestOpenPageStoreErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenPageStore(ctx, StoreConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := OpenPageStore(ctx, StoreConfig{}); err == nil {
		t.Fatalf("expected error without path or root")
	}
	if _, err := OpenPageStore(ctx, StoreConfig{Driver: DriverPostgres}); err == nil {
		t.Fatalf("expected error without dsn")
	}
}

func TestRebindPlaceholders(t *testing.T) {
	pg := &PageStore{driver: DriverPostgres}
	if got := pg.q(`SELECT a FROM t WHERE x=? AND y=?`); got != `SELECT a FROM t WHERE x=$1 AND y=$2` {
		t.Fatalf("rebind = %q", got)
	}
	lite := &PageStore{driver: DriverSQLite}
	if got := lite.q(`x=?`); got != `x=?` {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
}

// Runs against a real server when SCS_PG_DSN is set.
func TestPostgresPageStore(t *testing.T) {
	dsn := os.Getenv("SCS_PG_DSN")
	if dsn == "" {
		t.Skip("SCS_PG_DSN not set")
	}
	project := "test-" + time.Now().Format("150405.000000")
	ps := openTestStore(t, StoreConfig{Driver: DriverPostgres, DSN: dsn, Password: os.Getenv("SCS_PG_PASSWORD"), Project: project})
	t.Cleanup(func() { _ = ps.Replace(context.Background(), nil) })
	exercisePageStore(t, ps)
}
