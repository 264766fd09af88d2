/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"scanstrip/internal/domain"
)

func TestThumbCacheGetPut(t *testing.T) {
	ctx := context.Background()
	c, err := OpenThumbCache(ctx, ThumbCachePath(t.TempDir()), 0)
	if err != nil {
		t.Fatalf("OpenThumbCache: %v", err)
	}
	defer func() { _ = c.Close() }()

	id := domain.NewPageID("/s/a.png", 0, domain.LeftPage)
	mod := time.Unix(1700000000, 0)
	if b, err := c.Get(ctx, id, 80, 100, mod); err != nil || b != nil {
		t.Fatalf("expected miss, got %v err=%v", b, err)
	}
	blob := []byte{1, 2, 3}
	if err := c.Put(ctx, id, 80, 100, mod, blob); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := c.Get(ctx, id, 80, 100, mod)
	if err != nil || !bytes.Equal(b, blob) {
		t.Fatalf("Get = %v err=%v", b, err)
	}
	// Different size or newer source is a miss.
	if b, _ := c.Get(ctx, id, 40, 50, mod); b != nil {
		t.Fatalf("expected miss for other size")
	}
	if b, _ := c.Get(ctx, id, 80, 100, mod.Add(time.Second)); b != nil {
		t.Fatalf("expected miss for modified source")
	}
	if b, _ := c.Get(ctx, domain.NewPageID("/s/a.png", 0, domain.RightPage), 80, 100, mod); b != nil {
		t.Fatalf("expected miss for other half")
	}
}

func TestThumbCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, err := OpenThumbCache(ctx, filepath.Join(t.TempDir(), "t.sqlite"), 10)
	if err != nil {
		t.Fatalf("OpenThumbCache: %v", err)
	}
	defer func() { _ = c.Close() }()
	mod := time.Unix(1, 0)
	a := domain.NewPageID("/a.png", 0, domain.SinglePage)
	b := domain.NewPageID("/b.png", 0, domain.SinglePage)
	if err := c.Put(ctx, a, 1, 1, mod, make([]byte, 6)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := c.Put(ctx, b, 1, 1, mod, make([]byte, 6)); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	total, err := c.TotalBytes(ctx)
	if err != nil || total != 6 {
		t.Fatalf("total = %d err=%v", total, err)
	}
	if got, _ := c.Get(ctx, a, 1, 1, mod); got != nil {
		t.Fatalf("oldest entry should be evicted")
	}
	if got, _ := c.Get(ctx, b, 1, 1, mod); got == nil {
		t.Fatalf("newest entry should survive")
	}
}

func TestMaxThumbCacheBytesFromEnv(t *testing.T) {
	t.Setenv("SCS_THUMB_CACHE_MAX_BYTES", "1234")
	if got := MaxThumbCacheBytesFromEnv(); got != 1234 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("SCS_THUMB_CACHE_MAX_BYTES", "nope")
	if got := MaxThumbCacheBytesFromEnv(); got != defaultThumbCacheBytes {
		t.Fatalf("got %d", got)
	}
}
