/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package strip

import (
	"fmt"
	"testing"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
)

type recordingCanvas struct {
	attached  map[*Composite]bool
	attaches  int
	detaches  int
	refreshes int
	rects     []geom.Rect
}

func newRecordingCanvas() *recordingCanvas {
	return &recordingCanvas{attached: map[*Composite]bool{}}
}

func (c *recordingCanvas) Attach(x *Composite) {
	if c.attached[x] {
		panic("composite attached twice")
	}
	c.attached[x] = true
	c.attaches++
}

func (c *recordingCanvas) Detach(x *Composite) {
	if !c.attached[x] {
		panic("detaching unknown composite")
	}
	delete(c.attached, x)
	c.detaches++
}

func (c *recordingCanvas) Refresh(*Composite)       { c.refreshes++ }
func (c *recordingCanvas) SetSceneRect(r geom.Rect) { c.rects = append(c.rects, r) }

func (c *recordingCanvas) lastRect() geom.Rect {
	if len(c.rects) == 0 {
		return geom.Rect{}
	}
	return c.rects[len(c.rects)-1]
}

type recordingListener struct {
	leaders  []LeaderChange
	menus    []ContextMenuRequest
	pastLast []geom.Pt
}

func (l *recordingListener) events() Events {
	return Events{
		LeaderChanged:           func(c LeaderChange) { l.leaders = append(l.leaders, c) },
		PageContextMenu:         func(r ContextMenuRequest) { l.menus = append(l.menus, r) },
		PastLastPageContextMenu: func(p geom.Pt) { l.pastLast = append(l.pastLast, p) },
	}
}

func (l *recordingListener) last(t *testing.T) LeaderChange {
	t.Helper()
	if len(l.leaders) == 0 {
		t.Fatalf("no leader notification recorded")
	}
	return l.leaders[len(l.leaders)-1]
}

type sizedThumb geom.Size

func (s sizedThumb) Size() geom.Size { return geom.Size(s) }

// sizeFactory returns a thumbnail of the configured size, or nothing.
type sizeFactory struct {
	sizes map[domain.PageID]geom.Size
	calls int
}

func (f *sizeFactory) Thumbnail(info domain.PageInfo, _ int) Thumbnail {
	f.calls++
	if sz, ok := f.sizes[info.ID]; ok {
		return sizedThumb(sz)
	}
	return nil
}

func pid(n int) domain.PageID {
	return domain.NewPageID(fmt.Sprintf("/scans/p%d.png", n), 0, domain.SinglePage)
}

func pageInfos(n int) []domain.PageInfo {
	out := make([]domain.PageInfo, n)
	for i := range out {
		out[i] = domain.PageInfo{ID: pid(i + 1)}
	}
	return out
}

type fixture struct {
	s       *Strip
	canvas  *recordingCanvas
	events  *recordingListener
	factory *sizeFactory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		canvas:  newRecordingCanvas(),
		events:  &recordingListener{},
		factory: &sizeFactory{sizes: map[domain.PageID]geom.Size{}},
	}
	f.s = New(Options{MaxThumbSize: geom.S(100, 100), Logger: applog.Nop(), CheckInvariants: true})
	f.s.SetThumbnailFactory(f.factory)
	f.s.AttachCanvas(f.canvas)
	f.s.SetEvents(f.events.events())
	return f
}

func (f *fixture) reset(t *testing.T, pages []domain.PageInfo, current domain.PageID) {
	t.Helper()
	f.s.Reset(domain.Snapshot{Pages: pages, Current: current}, ResetSelection, nil)
	f.mustVerify(t)
}

func (f *fixture) click(t *testing.T, id domain.PageID, mods Modifiers) {
	t.Helper()
	c := f.s.Composite(id)
	if c == nil {
		t.Fatalf("no composite for %v", id)
	}
	c.Press(mods)
	f.mustVerify(t)
}

func (f *fixture) mustVerify(t *testing.T) {
	t.Helper()
	if err := f.s.st.verify(f.s.leader); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}
	if len(f.canvas.attached) != f.s.Len() {
		t.Fatalf("canvas holds %d visuals, strip has %d", len(f.canvas.attached), f.s.Len())
	}
	for _, c := range f.s.Composites() {
		if !f.canvas.attached[c] {
			t.Fatalf("visual of %v is not attached", c.Page().ID)
		}
	}
}

func (f *fixture) leaderID(t *testing.T) domain.PageID {
	t.Helper()
	info, ok := f.s.SelectionLeader()
	if !ok {
		t.Fatalf("expected a selection leader")
	}
	return info.ID
}

func (f *fixture) order() []domain.PageID {
	var out []domain.PageID
	for _, p := range f.s.Pages() {
		out = append(out, p.ID)
	}
	return out
}

func sameIDs(a, b []domain.PageID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// assertStacked checks that visuals are stacked top-down with the given spacing.
func assertStacked(t *testing.T, s *Strip) {
	t.Helper()
	var want float32
	for _, c := range s.Composites() {
		if c.Pos().X != 0 || c.Pos().Y != want {
			t.Fatalf("visual of %v at %+v, want y=%v", c.Page().ID, c.Pos(), want)
		}
		want += c.BoundingRect().H + s.spacing
	}
}
