/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thumbs

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
	"scanstrip/internal/strip"
)

// writeScan writes a w x h PNG whose left half is red and right half is blue.
func writeScan(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	p := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return p
}

func TestRender_FitsAndKeepsAspect(t *testing.T) {
	p := writeScan(t, 400, 200)
	b, err := Render(domain.PageInfo{ID: domain.NewPageID(p, 0, domain.SinglePage)}, geom.S(100, 100))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b.Size() != geom.S(100, 50) {
		t.Fatalf("size = %v", b.Size())
	}
	if got := b.Image().Bounds(); got.Dx() != 100 || got.Dy() != 50 {
		t.Fatalf("bitmap bounds = %v", got)
	}
	var _ strip.ImageThumbnail = b
}

func TestRender_CropsHalves(t *testing.T) {
	p := writeScan(t, 400, 200)
	left, err := Render(domain.PageInfo{ID: domain.NewPageID(p, 0, domain.LeftPage)}, geom.S(100, 100))
	if err != nil {
		t.Fatalf("Render left: %v", err)
	}
	if left.Size() != geom.S(100, 100) {
		t.Fatalf("left size = %v", left.Size())
	}
	if r, _, b, _ := left.Image().At(50, 50).RGBA(); r == 0 || b != 0 {
		t.Fatalf("left half should be red")
	}
	right, err := Render(domain.PageInfo{ID: domain.NewPageID(p, 0, domain.RightPage)}, geom.S(100, 100))
	if err != nil {
		t.Fatalf("Render right: %v", err)
	}
	if r, _, b, _ := right.Image().At(50, 50).RGBA(); r != 0 || b == 0 {
		t.Fatalf("right half should be blue")
	}
}

func TestRender_NeverEnlarges(t *testing.T) {
	p := writeScan(t, 20, 10)
	b, err := Render(domain.PageInfo{ID: domain.NewPageID(p, 0, domain.SinglePage)}, geom.S(100, 100))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b.Size() != geom.S(20, 10) {
		t.Fatalf("size = %v", b.Size())
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(domain.PageInfo{ID: domain.NewPageID(filepath.Join(t.TempDir(), "none.png"), 0, domain.SinglePage)}, geom.S(10, 10)); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
	p := writeScan(t, 4, 4)
	if _, err := Render(domain.PageInfo{ID: domain.NewPageID(p, 1, domain.SinglePage)}, geom.S(10, 10)); !errors.Is(err, ErrUnsupportedPage) {
		t.Fatalf("expected ErrUnsupportedPage, got %v", err)
	}
}

func TestLoader_MissThenReady(t *testing.T) {
	p := writeScan(t, 40, 40)
	info := domain.PageInfo{ID: domain.NewPageID(p, 0, domain.SinglePage)}
	ready := make(chan domain.PageID, 1)
	l := NewLoader(Options{MaxSize: geom.S(20, 20), Workers: 1, Logger: applog.Nop(), OnReady: func(id domain.PageID) { ready <- id }})
	t.Cleanup(l.Close)

	if th := l.Thumbnail(info, 0); th != nil {
		t.Fatalf("first request must miss")
	}
	select {
	case id := <-ready:
		if id != info.ID {
			t.Fatalf("ready for %v", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("thumbnail never became ready")
	}
	th := l.Thumbnail(info, 0)
	if th == nil || th.Size() != geom.S(20, 20) {
		t.Fatalf("expected a cached 20x20 bitmap, got %v", th)
	}

	l.Forget(info.ID)
	if _, ok := l.Cached(info.ID); ok {
		t.Fatalf("Forget kept the bitmap")
	}
}

func TestLoader_QueueOverflowIsServedLater(t *testing.T) {
	l := newLoader(Options{QueueSize: 2, Logger: applog.Nop()})
	for i := 0; i < 5; i++ {
		l.enqueue(domain.PageInfo{ID: domain.NewPageID("/x.png", i, domain.SinglePage)})
	}
	if len(l.requests) != 2 || len(l.overflow) != 3 {
		t.Fatalf("stack = %d, overflow = %d", len(l.requests), len(l.overflow))
	}
	if !l.pending[domain.NewPageID("/x.png", 0, domain.SinglePage)] {
		t.Fatalf("overflowed request lost its pending mark")
	}
	// Duplicates are not queued twice.
	l.enqueue(domain.PageInfo{ID: domain.NewPageID("/x.png", 4, domain.SinglePage)})
	l.enqueue(domain.PageInfo{ID: domain.NewPageID("/x.png", 0, domain.SinglePage)})
	if len(l.requests) != 2 || len(l.overflow) != 3 {
		t.Fatalf("duplicate request queued")
	}

	var order []int
	for i := 0; i < 5; i++ {
		req, ok := l.next()
		if !ok {
			t.Fatalf("next ended early")
		}
		order = append(order, req.info.ID.Image.Page)
	}
	want := []int{4, 3, 2, 1, 0}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLoader_MorePagesThanQueue(t *testing.T) {
	dir := t.TempDir()
	src := writeScan(t, 8, 8)
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var infos []domain.PageInfo
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		infos = append(infos, domain.PageInfo{ID: domain.NewPageID(p, 0, domain.SinglePage)})
	}

	ready := make(chan domain.PageID, len(infos))
	l := newLoader(Options{MaxSize: geom.S(4, 4), Workers: 1, QueueSize: 2, Logger: applog.Nop(),
		OnReady: func(id domain.PageID) { ready <- id }})
	for _, info := range infos {
		if l.Thumbnail(info, 0) != nil {
			t.Fatalf("first request must miss")
		}
	}
	l.wg.Add(1)
	go l.worker()
	t.Cleanup(l.Close)

	deadline := time.After(5 * time.Second)
	for range infos {
		select {
		case <-ready:
		case <-deadline:
			t.Fatalf("not every page was rendered")
		}
	}
	for _, info := range infos {
		if _, ok := l.Cached(info.ID); !ok {
			t.Fatalf("%s has no thumbnail", info.ID)
		}
	}
}

func TestLoader_ForgetDiscardsRunningRender(t *testing.T) {
	p := writeScan(t, 8, 8)
	info := domain.PageInfo{ID: domain.NewPageID(p, 0, domain.SinglePage)}
	var readies int
	l := newLoader(Options{MaxSize: geom.S(4, 4), Logger: applog.Nop(), OnReady: func(domain.PageID) { readies++ }})

	l.enqueue(info)
	running, _ := l.next()
	// The file changes while the old render is in flight.
	l.Forget(info.ID)
	if l.pending[info.ID] {
		t.Fatalf("Forget kept the page pending")
	}
	if l.Thumbnail(info, 0) != nil {
		t.Fatalf("forgotten page must miss")
	}
	fresh, _ := l.next()

	l.process(running)
	if _, ok := l.Cached(info.ID); ok || readies != 0 {
		t.Fatalf("stale render was kept")
	}
	l.process(fresh)
	if _, ok := l.Cached(info.ID); !ok || readies != 1 {
		t.Fatalf("fresh render missing, readies = %d", readies)
	}
}

func TestLoader_FailedPagesAreNotRetried(t *testing.T) {
	l := newLoader(Options{Logger: applog.Nop()})
	info := domain.PageInfo{ID: domain.NewPageID(filepath.Join(t.TempDir(), "none.png"), 0, domain.SinglePage)}
	l.enqueue(info)
	req, _ := l.next()
	l.process(req)
	l.enqueue(info)
	if len(l.requests) != 0 {
		t.Fatalf("failed page re-queued")
	}
	l.Forget(info.ID)
	l.enqueue(info)
	if len(l.requests) != 1 {
		t.Fatalf("Forget must allow a retry")
	}
}

type mapDisk struct {
	blobs map[domain.PageID][]byte
	gets  int
}

func (m *mapDisk) Get(_ context.Context, id domain.PageID, _, _ int, _ time.Time) ([]byte, error) {
	m.gets++
	return m.blobs[id], nil
}

func (m *mapDisk) Put(_ context.Context, id domain.PageID, _, _ int, _ time.Time, blob []byte) error {
	m.blobs[id] = blob
	return nil
}

func TestLoader_DiskCacheRoundTrip(t *testing.T) {
	p := writeScan(t, 40, 20)
	info := domain.PageInfo{ID: domain.NewPageID(p, 0, domain.RightPage)}
	disk := &mapDisk{blobs: map[domain.PageID][]byte{}}
	l := newLoader(Options{MaxSize: geom.S(10, 10), Disk: disk, Logger: applog.Nop()})

	l.enqueue(info)
	req, _ := l.next()
	l.process(req)
	if disk.blobs[info.ID] == nil {
		t.Fatalf("rendered thumbnail was not written to disk")
	}

	// Dropping the memory copy makes the next request consult the disk cache.
	l.Forget(info.ID)
	l.enqueue(info)
	req, _ = l.next()
	l.process(req)
	b, ok := l.Cached(info.ID)
	if !ok || b.Size() != geom.S(10, 10) {
		t.Fatalf("expected 10x10 bitmap from disk, got %v ok=%v", b, ok)
	}
	if disk.gets != 2 {
		t.Fatalf("disk gets = %d", disk.gets)
	}
	if c := b.Image().At(5, 5); c != (color.RGBA{B: 255, A: 255}) {
		t.Fatalf("right half should be blue, got %v", c)
	}
}
