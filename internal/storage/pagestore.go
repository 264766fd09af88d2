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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"scanstrip/internal/domain"
	applog "scanstrip/internal/log"
	"scanstrip/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	PageStoreFileName = "pages.sqlite"

	// storeSchemaVersion tracks the page store schema. Bump it with a migration step.
	storeSchemaVersion = 1
)

// StoreConfig selects the page store backend. For sqlite, Path defaults to
// <Root>/.scanstrip/pages.sqlite. For postgres, DSN is parsed by pgx and
// Password (usually from the keyring) overrides the DSN password.
type StoreConfig struct {
	Driver   string
	DSN      string
	Password string
	Path     string
	Root     string
	Project  string
}

// PageStorePath returns the default sqlite location for a project root.
func PageStorePath(projectRoot string) string {
	return filepath.Join(projectRoot, StateDirName, PageStoreFileName)
}

// PageStore keeps the page sequence and the current page of one project in SQL.
// Mutations run in a transaction and apply the same rules as the manifest.
type PageStore struct {
	db      *sql.DB
	driver  string
	project string
	log     *slog.Logger
}

// OpenPageStore opens (and creates if needed) the page store described by cfg.
func OpenPageStore(ctx context.Context, cfg StoreConfig) (*PageStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "pagestore_open").With(
		slog.String("driver", cfg.Driver),
		slog.String("project", cfg.Project),
	)
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(ctx, cfg)
	case DriverPostgres:
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, err
	}
	ps := &PageStore{db: db, driver: driver, project: cfg.Project, log: applog.WithComponent("storage")}
	if err := ps.ensureSchema(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("page store ready")
	return ps, nil
}

func openSQLite(ctx context.Context, cfg StoreConfig) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		if strings.TrimSpace(cfg.Root) == "" {
			return nil, errors.New("sqlite store needs a path or project root")
		}
		path = PageStorePath(cfg.Root)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, cfg StoreConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres store needs a DSN")
	}
	cc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.Password != "" {
		cc.Password = cfg.Password
	}
	db := stdlib.OpenDB(*cc)
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Close releases the database handle.
func (ps *PageStore) Close() error {
	if ps == nil || ps.db == nil {
		return nil
	}
	return ps.db.Close()
}

// q rebinds '?' placeholders for postgres.
func (ps *PageStore) q(query string) string {
	if ps.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (ps *PageStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS store_version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			project          TEXT NOT NULL,
			position         INTEGER NOT NULL,
			image            TEXT NOT NULL,
			page             INTEGER NOT NULL,
			sub              INTEGER NOT NULL,
			multi_page_file  INTEGER NOT NULL,
			PRIMARY KEY (project, image, page, sub)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_position ON pages(project, position)`,
		`CREATE TABLE IF NOT EXISTS page_meta (
			project  TEXT NOT NULL,
			key      TEXT NOT NULL,
			value    TEXT NOT NULL,
			PRIMARY KEY (project, key)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := ps.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := ps.db.QueryRowContext(ctx, `SELECT schema FROM store_version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = ps.db.ExecContext(ctx, ps.q(`INSERT INTO store_version (id, schema, app, updated_at) VALUES(1, ?, ?, ?)`), storeSchemaVersion, version.String(), now)
	case err != nil:
		return fmt.Errorf("read store version: %w", err)
	case cur > storeSchemaVersion:
		return fmt.Errorf("store schema %d is newer than supported %d", cur, storeSchemaVersion)
	default:
		_, err = ps.db.ExecContext(ctx, ps.q(`UPDATE store_version SET app=?, updated_at=? WHERE id=1`), version.String(), now)
	}
	if err != nil {
		return fmt.Errorf("write store version: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Snapshot returns the page sequence in position order and the current page.
func (ps *PageStore) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return ps.snapshot(ctx, ps.db)
}

func (ps *PageStore) snapshot(ctx context.Context, db queryer) (domain.Snapshot, error) {
	rows, err := db.QueryContext(ctx, ps.q(`SELECT image, page, sub, multi_page_file FROM pages WHERE project=? ORDER BY position`), ps.project)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var s domain.Snapshot
	for rows.Next() {
		var (
			image     string
			page, sub int
			multi     int
		)
		if err := rows.Scan(&image, &page, &sub, &multi); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan page: %w", err)
		}
		s.Pages = append(s.Pages, domain.PageInfo{
			ID:            domain.NewPageID(image, page, domain.SubPage(sub)),
			MultiPageFile: multi != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate pages: %w", err)
	}
	var raw string
	err = db.QueryRowContext(ctx, ps.q(`SELECT value FROM page_meta WHERE project=? AND key='current'`), ps.project).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.Snapshot{}, fmt.Errorf("read current page: %w", err)
	default:
		var ref storedRef
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode current page: %w", err)
		}
		s.Current = domain.NewPageID(ref.Image, ref.Page, domain.SubPage(ref.Sub))
	}
	return s, nil
}

type storedRef struct {
	Image string `json:"image"`
	Page  int    `json:"page"`
	Sub   int    `json:"sub"`
}

// Replace overwrites the stored sequence with pages. The current page is kept.
func (ps *PageStore) Replace(ctx context.Context, pages []domain.PageInfo) error {
	return ps.update(ctx, "replace", func([]domain.PageInfo) ([]domain.PageInfo, error) { return pages, nil })
}

// Insert adds info before or after the pages of image (see InsertPage).
func (ps *PageStore) Insert(ctx context.Context, info domain.PageInfo, where domain.BeforeOrAfter, image domain.ImageID) error {
	return ps.update(ctx, "insert", func(cur []domain.PageInfo) ([]domain.PageInfo, error) {
		return InsertPage(cur, info, where, image)
	})
}

// Remove drops ids; a remaining half of a split image becomes a single page.
func (ps *PageStore) Remove(ctx context.Context, ids []domain.PageID) error {
	return ps.update(ctx, "remove", func(cur []domain.PageInfo) ([]domain.PageInfo, error) {
		return RemovePages(cur, ids), nil
	})
}

// Split replaces the single page of image by its two halves.
func (ps *PageStore) Split(ctx context.Context, image domain.ImageID) error {
	return ps.update(ctx, "split", func(cur []domain.PageInfo) ([]domain.PageInfo, error) {
		return SplitPage(cur, image)
	})
}

// SetCurrent records the current page. A null id clears it.
func (ps *PageStore) SetCurrent(ctx context.Context, id domain.PageID) error {
	if id.IsNull() {
		_, err := ps.db.ExecContext(ctx, ps.q(`DELETE FROM page_meta WHERE project=? AND key='current'`), ps.project)
		if err != nil {
			return fmt.Errorf("clear current page: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(storedRef{Image: id.Image.Path, Page: id.Image.Page, Sub: int(id.Sub)})
	if err != nil {
		return fmt.Errorf("encode current page: %w", err)
	}
	_, err = ps.db.ExecContext(ctx, ps.q(`INSERT INTO page_meta (project, key, value) VALUES(?, 'current', ?)
		ON CONFLICT(project, key) DO UPDATE SET value=excluded.value`), ps.project, string(raw))
	if err != nil {
		return fmt.Errorf("write current page: %w", err)
	}
	return nil
}

func (ps *PageStore) update(ctx context.Context, op string, apply func([]domain.PageInfo) ([]domain.PageInfo, error)) error {
	l := applog.WithOperation(ps.log, op)
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	cur, err := ps.snapshot(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	next, err := apply(cur.Pages)
	if err != nil {
		_ = tx.Rollback()
		l.Warn("rejected", slog.Any("err", err))
		return err
	}
	if _, err := tx.ExecContext(ctx, ps.q(`DELETE FROM pages WHERE project=?`), ps.project); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: clear pages: %w", op, err)
	}
	ins := ps.q(`INSERT INTO pages (project, position, image, page, sub, multi_page_file) VALUES(?, ?, ?, ?, ?, ?)`)
	for i, p := range next {
		multi := 0
		if p.MultiPageFile {
			multi = 1
		}
		if _, err := tx.ExecContext(ctx, ins, ps.project, i, p.ID.Image.Path, p.ID.Image.Page, int(p.ID.Sub), multi); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: write page %s: %w", op, p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	l.Debug("pages stored", slog.Int("count", len(next)))
	return nil
}
