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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scanstrip/internal/domain"
)

const (
	ThumbCacheFileName = "thumbs.sqlite"

	defaultThumbCacheBytes = 64 * 1024 * 1024

	// fixed width so that last_access sorts lexicographically
	accessLayout = "2006-01-02T15:04:05.000000000Z"
)

// ThumbCache keeps encoded thumbnails on disk so that reopening a project does
// not decode every scan again. Rows are keyed by page and target size and are
// stale once the source file is modified. Total size is capped with LRU eviction.
type ThumbCache struct {
	db       *sql.DB
	capBytes int64
}

// ThumbCachePath returns the cache location for a project root.
func ThumbCachePath(projectRoot string) string {
	return filepath.Join(projectRoot, StateDirName, ThumbCacheFileName)
}

// OpenThumbCache opens or creates the cache at path. capBytes <= 0 uses
// MaxThumbCacheBytesFromEnv.
func OpenThumbCache(ctx context.Context, path string, capBytes int64) (*ThumbCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
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
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS thumbs (
		id           INTEGER PRIMARY KEY,
		image        TEXT    NOT NULL,
		page         INTEGER NOT NULL,
		sub          INTEGER NOT NULL,
		w            INTEGER NOT NULL,
		h            INTEGER NOT NULL,
		source_mtime INTEGER NOT NULL,
		blob         BLOB    NOT NULL,
		size         INTEGER NOT NULL,
		last_access  TEXT    NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure thumbs table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_thumbs_variant ON thumbs(image, page, sub, w, h)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create variant index: %w", err)
	}
	_, _ = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_thumbs_access ON thumbs(last_access)`)
	if capBytes <= 0 {
		capBytes = MaxThumbCacheBytesFromEnv()
	}
	return &ThumbCache{db: db, capBytes: capBytes}, nil
}

// Close releases the database.
func (c *ThumbCache) Close() error { return c.db.Close() }

// Get returns the cached blob for id at w×h, or nil when missing or older than sourceMod.
func (c *ThumbCache) Get(ctx context.Context, id domain.PageID, w, h int, sourceMod time.Time) ([]byte, error) {
	var (
		blob  []byte
		mtime int64
	)
	err := c.db.QueryRowContext(ctx, `SELECT blob, source_mtime FROM thumbs WHERE image=? AND page=? AND sub=? AND w=? AND h=?`,
		id.Image.Path, id.Image.Page, int(id.Sub), w, h).Scan(&blob, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query thumb: %w", err)
	}
	if mtime != sourceMod.UnixNano() {
		return nil, nil
	}
	// touch
	now := time.Now().UTC().Format(accessLayout)
	_, _ = c.db.ExecContext(ctx, `UPDATE thumbs SET last_access=? WHERE image=? AND page=? AND sub=? AND w=? AND h=?`,
		now, id.Image.Path, id.Image.Page, int(id.Sub), w, h)
	return blob, nil
}

// Put upserts a blob and evicts least recently used rows beyond the cap.
func (c *ThumbCache) Put(ctx context.Context, id domain.PageID, w, h int, sourceMod time.Time, blob []byte) error {
	now := time.Now().UTC().Format(accessLayout)
	_, err := c.db.ExecContext(ctx, `INSERT INTO thumbs(image,page,sub,w,h,source_mtime,blob,size,last_access)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(image,page,sub,w,h) DO UPDATE SET source_mtime=excluded.source_mtime, blob=excluded.blob, size=excluded.size, last_access=excluded.last_access`,
		id.Image.Path, id.Image.Page, int(id.Sub), w, h, sourceMod.UnixNano(), blob, len(blob), now)
	if err != nil {
		return fmt.Errorf("upsert thumb: %w", err)
	}
	return c.evictToFit(ctx)
}

// TotalBytes returns the size of all cached blobs.
func (c *ThumbCache) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM thumbs`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (c *ThumbCache) evictToFit(ctx context.Context) error {
	total, err := c.TotalBytes(ctx)
	if err != nil {
		return fmt.Errorf("sum thumbs size: %w", err)
	}
	if total <= c.capBytes {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, size FROM thumbs ORDER BY last_access ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	var victims []any
	for rows.Next() && total > c.capBytes {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, id)
		total -= sz
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// Close the cursor before writing.
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM thumbs WHERE id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",") + `)`
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// MaxThumbCacheBytesFromEnv reads SCS_THUMB_CACHE_MAX_BYTES, defaulting to 64MB.
func MaxThumbCacheBytesFromEnv() int64 {
	v := os.Getenv("SCS_THUMB_CACHE_MAX_BYTES")
	if v == "" {
		return defaultThumbCacheBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return defaultThumbCacheBytes
	}
	return n
}
