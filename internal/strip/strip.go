/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package strip implements the thumbnail strip: an ordered, selectable column
// of page visuals with a single selection leader that drives the main view.
//
// A Strip is not safe for concurrent use. All calls, including the ones made
// by front-ends on user input, must happen on the goroutine owning the canvas.
package strip

import (
	"fmt"
	"log/slog"
	"slices"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
	"scanstrip/internal/textlayout"
)

// DefaultSpacing is the vertical gap between two visuals.
const DefaultSpacing = 10

// Options configure a Strip.
type Options struct {
	MaxThumbSize geom.Size // placeholder size, defaults to 160x160
	Spacing      float32   // defaults to DefaultSpacing
	Labels       textlayout.Provider
	Logger       *slog.Logger
	// CheckInvariants verifies the store after every mutating call and panics
	// on a violation.
	CheckInvariants bool
}

// Strip is the thumbnail strip controller.
type Strip struct {
	log     *slog.Logger
	maxSize geom.Size
	spacing float32
	labels  textlayout.Provider
	checks  bool

	factory ThumbnailFactory
	order   domain.OrderProvider
	canvas  Canvas
	events  Events

	st        *store
	leader    *item
	sceneRect geom.Rect
	busy      string
}

// New creates an empty strip.
func New(opts Options) *Strip {
	if opts.MaxThumbSize.IsZero() {
		opts.MaxThumbSize = geom.S(160, 160)
	}
	if opts.Spacing <= 0 {
		opts.Spacing = DefaultSpacing
	}
	if opts.Labels == nil {
		opts.Labels = textlayout.BasicProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("strip")
	}
	return &Strip{
		log:     opts.Logger,
		maxSize: opts.MaxThumbSize,
		spacing: opts.Spacing,
		labels:  opts.Labels,
		checks:  opts.CheckInvariants,
		canvas:  nopCanvas{},
		st:      newStore(),
	}
}

// SetThumbnailFactory sets the thumbnail source used for visuals created from now on.
func (s *Strip) SetThumbnailFactory(f ThumbnailFactory) { s.factory = f }

// SetEvents replaces the outward notification callbacks.
func (s *Strip) SetEvents(ev Events) { s.events = ev }

// SetOrderProvider changes the custom ordering without resorting. Call
// InvalidateAll afterwards to apply it. A nil provider keeps display order as is.
func (s *Strip) SetOrderProvider(p domain.OrderProvider) { s.order = p }

// OrderProvider returns the active custom ordering, if any.
func (s *Strip) OrderProvider() domain.OrderProvider { return s.order }

// AttachCanvas moves all visuals onto c. A nil canvas detaches.
func (s *Strip) AttachCanvas(c Canvas) {
	for it := s.st.begin(); it != s.st.end(); it = it.next {
		s.canvas.Detach(it.composite)
	}
	if c == nil {
		c = nopCanvas{}
	}
	s.canvas = c
	for it := s.st.begin(); it != s.st.end(); it = it.next {
		c.Attach(it.composite)
	}
	s.commitSceneRect()
}

// enter marks the start of a mutating call; the returned func ends it.
func (s *Strip) enter(op string) func() {
	if s.busy != "" {
		panic(fmt.Sprintf("strip: %s called while %s is in progress", op, s.busy))
	}
	s.busy = op
	return func() {
		s.busy = ""
		if s.checks {
			if err := s.st.verify(s.leader); err != nil {
				panic(fmt.Sprintf("strip: after %s: %v", op, err))
			}
		}
	}
}

// Reset rebuilds the strip from pages. The order provider, if any, becomes the
// active custom ordering. With KeepSelection the selected pages and the leader
// that still exist are carried over. The leader falls back to some selected
// page, then to the snapshot's current page.
func (s *Strip) Reset(pages domain.Snapshot, action SelectionAction, order domain.OrderProvider) {
	defer s.enter("reset")()
	s.order = order

	var selected map[domain.PageID]bool
	var prevLeader domain.PageID
	if action == KeepSelection {
		selected = make(map[domain.PageID]bool)
		for _, it := range s.st.selectedItems() {
			selected[it.id()] = true
		}
		if s.leader != nil {
			prevLeader = s.leader.id()
		}
	}

	s.clear()
	s.log.Debug("reset", slog.Int("pages", len(pages.Pages)), slog.Int("kept_selected", len(selected)))
	if len(pages.Pages) == 0 {
		return
	}

	sorted := slices.Clone(pages.Pages)
	if s.order != nil {
		cmp := domain.Compare(s.order)
		slices.SortStableFunc(sorted, func(a, b domain.PageInfo) int { return cmp(a.ID, b.ID) })
	}

	var someSelected *item
	var offset float32
	for i, info := range sorted {
		it := &item{info: info, pageNum: i}
		if !s.st.pushBack(it) {
			s.log.Warn("duplicate page in snapshot", slog.String("page", info.ID.String()))
			continue
		}
		c := s.newComposite(it)
		c.setPos(geom.P(0, offset))
		s.sceneRect = s.sceneRect.Union(c.sceneContribution())
		offset += c.height() + s.spacing
		s.canvas.Attach(c)

		if selected[info.ID] {
			s.setSelected(it, true)
			s.st.moveToSelected(it)
			someSelected = it
		}
		if !prevLeader.IsNull() && info.ID == prevLeader {
			s.leader = it
		}
	}
	s.commitSceneRect()

	if s.leader == nil {
		if someSelected != nil {
			s.leader = someSelected
		} else if it := s.st.findByID(pages.Current); it != nil {
			s.leader = it
			s.st.moveToSelected(it)
		}
	}
	if s.leader != nil {
		s.setLeader(s.leader, true)
		s.emitLeader(s.leader, DefaultSelection)
	}
}

// InvalidateThumbnail rebuilds the visual of one page, typically because its
// thumbnail became available. Selection state is preserved. Only the visuals
// whose position can change are moved.
func (s *Strip) InvalidateThumbnail(id domain.PageID) {
	defer s.enter("invalidate")()
	it := s.st.findByID(id)
	if it == nil {
		return
	}

	old := it.composite
	oldSize := old.BoundingRect().Size()
	oldPos := old.Pos()
	c := s.newComposite(it)
	newSize := c.BoundingRect().Size()
	c.setPos(oldPos)
	c.updateAppearance(it.selected, it.leader)
	s.canvas.Detach(old)
	s.canvas.Attach(c)

	// Take the item out of the range searched for its new position.
	afterOld := it.next
	s.st.relocate(s.st.begin(), it)
	afterNew, dist := s.itemInsertPosition(it.next, s.st.end(), id, afterOld)
	s.st.relocate(afterNew, it)

	// [from, to) spans everything between the old and new positions, the item included.
	var from, to *item
	if dist <= 0 {
		from, to = it, afterOld
	} else {
		from, to = afterOld, afterNew
	}
	var offset float32
	if from != s.st.begin() {
		prev := from.prev.composite
		offset = prev.Pos().Y + prev.height() + s.spacing
	}
	for ; from != to; from = from.next {
		from.composite.setPos(geom.P(0, offset))
		offset += from.composite.height() + s.spacing
	}
	if oldSize != newSize {
		for ; from != s.st.end(); from = from.next {
			from.composite.setPos(geom.P(0, offset))
			offset += from.composite.height() + s.spacing
		}
	}

	// Keep the horizontal extent, recompute the vertical one from the ends.
	s.sceneRect = s.sceneRect.WithTop(s.sceneRect.Bottom()).Union(s.st.front().composite.sceneContribution())
	s.sceneRect = s.sceneRect.WithBottom(s.sceneRect.Top()).Union(s.st.back().composite.sceneContribution())
	s.sceneRect = s.sceneRect.Union(c.sceneContribution())
	s.commitSceneRect()

	s.log.Debug("thumbnail invalidated", slog.String("page", id.String()), slog.Int("moved_by", dist))
	if s.leader == it && (oldSize != newSize || oldPos != c.Pos()) {
		s.emitLeader(it, Redundant)
	}
}

// InvalidateAll resorts the strip by the active ordering (stable) and rebuilds every visual.
func (s *Strip) InvalidateAll() {
	defer s.enter("invalidate_all")()
	s.sceneRect = geom.Rect{}

	items := s.st.inOrder()
	if s.order != nil {
		cmp := domain.Compare(s.order)
		slices.SortStableFunc(items, func(a, b *item) int { return cmp(a.id(), b.id()) })
		s.st.relink(items)
	}

	var offset float32
	for _, it := range items {
		old := it.composite
		c := s.newComposite(it)
		c.setPos(geom.P(0, offset))
		s.sceneRect = s.sceneRect.Union(c.sceneContribution())
		c.updateAppearance(it.selected, it.leader)
		offset += c.height() + s.spacing
		s.canvas.Detach(old)
		s.canvas.Attach(c)
	}
	s.commitSceneRect()
	s.log.Debug("all thumbnails invalidated", slog.Int("pages", len(items)), slog.Bool("custom_order", s.order != nil))
}

// SetSelection makes id the only selected page and the leader.
func (s *Strip) SetSelection(id domain.PageID) {
	defer s.enter("set_selection")()
	target := s.st.findByID(id)
	if target == nil {
		return
	}
	wasLeader := target == s.leader

	for it := s.st.sel.snext; it != s.st.selEnd() && it.selected; {
		next := it.snext
		if it != target {
			s.setSelected(it, false)
			s.st.moveToUnselected(it)
			if s.leader == it {
				s.leader = nil
			}
		}
		it = next
	}

	flags := DefaultSelection
	if wasLeader {
		flags |= Redundant
	} else {
		s.leader = target
		s.setLeader(target, true)
		s.st.moveToSelected(target)
	}
	s.emitLeader(target, flags)
}

// Insert adds a page before or after the pages of image. Before with a null
// image appends. With a custom ordering the position is corrected to respect it.
func (s *Strip) Insert(info domain.PageInfo, where domain.BeforeOrAfter, image domain.ImageID) {
	defer s.enter("insert")()
	l := s.log.With(slog.String("page", info.ID.String()), slog.String("where", where.String()), slog.String("image", image.Path))
	if s.st.findByID(info.ID) != nil {
		l.Warn("insert rejected, page already present")
		return
	}

	var pos *item
	if where == domain.Before && image.IsNull() {
		pos = s.st.end()
	} else {
		ref := s.st.findByImage(image)
		if ref == nil {
			l.Warn("insert aborted, reference image not found")
			return
		}
		pos = ref
		if where == domain.After {
			pos = pos.next
			if s.order == nil {
				// Skip the other half of the reference image too.
				for pos != s.st.end() && pos.info.ImageID() == image {
					pos = pos.next
				}
			}
		}
	}
	pos, _ = s.itemInsertPosition(s.st.begin(), s.st.end(), info.ID, pos)

	// Sequence numbers continue from the last page in display order. Under a
	// custom ordering this can disagree with the page's actual position.
	pageNum := 0
	var offset float32
	if !s.st.empty() {
		pageNum = s.st.back().pageNum + 1
		if pos != s.st.end() {
			offset = pos.composite.Pos().Y
		} else {
			last := s.st.back().composite
			offset = last.Pos().Y + last.height() + s.spacing
		}
	}

	it := &item{info: info, pageNum: pageNum}
	s.st.insert(pos, it)
	c := s.newComposite(it)
	c.setPos(geom.P(0, offset))
	s.sceneRect = s.sceneRect.Union(c.sceneContribution())
	s.canvas.Attach(c)

	delta := geom.P(0, c.height()+s.spacing)
	for ; pos != s.st.end(); pos = pos.next {
		pos.composite.setPos(pos.composite.Pos().Add(delta))
		s.sceneRect = s.sceneRect.Union(pos.composite.sceneContribution())
	}
	s.commitSceneRect()
	l.Debug("page inserted", slog.Int("page_num", pageNum))
}

// RemovePages removes the given pages. When one half of a split image is
// removed, the remaining half becomes a single page. A removed leader is not
// replaced.
func (s *Strip) RemovePages(ids []domain.PageID) {
	defer s.enter("remove")()
	toRemove := make(map[domain.PageID]bool, len(ids))
	for _, id := range ids {
		toRemove[id] = true
	}

	s.sceneRect = geom.Rect{}
	var singularize []domain.ImageID
	var delta geom.Pt
	removed := 0
	for it := s.st.begin(); it != s.st.end(); {
		next := it.next
		if !toRemove[it.id()] {
			if delta != (geom.Pt{}) {
				it.composite.setPos(it.composite.Pos().Add(delta))
			}
			s.sceneRect = s.sceneRect.Union(it.composite.sceneContribution())
			it = next
			continue
		}
		if s.leader == it {
			s.leader = nil
		}
		if it.id().Sub.IsHalf() {
			singularize = append(singularize, it.info.ImageID())
		}
		delta.Y -= it.composite.height() + s.spacing
		s.canvas.Detach(it.composite)
		it.composite.page = nil
		s.st.erase(it)
		removed++
		it = next
	}

	for _, img := range singularize {
		for _, sub := range []domain.SubPage{domain.LeftPage, domain.RightPage} {
			it := s.st.findByID(domain.PageID{Image: img, Sub: sub})
			if it == nil {
				continue
			}
			if !s.st.rekey(it, domain.PageID{Image: img, Sub: domain.SinglePage}) {
				s.log.Warn("cannot turn remaining half into a single page", slog.String("page", it.id().String()))
			}
		}
	}
	s.commitSceneRect()
	s.log.Debug("pages removed", slog.Int("requested", len(ids)), slog.Int("removed", removed))
}

// SelectionLeaderSceneRect is the leader's hit area, or the null rect without a leader.
func (s *Strip) SelectionLeaderSceneRect() geom.Rect {
	if s.leader == nil {
		return geom.Rect{}
	}
	return s.leader.composite.SceneRect()
}

// SelectionLeader returns the leader page.
func (s *Strip) SelectionLeader() (domain.PageInfo, bool) {
	if s.leader == nil {
		return domain.PageInfo{}, false
	}
	return s.leader.info, true
}

// SelectedItems returns the selected pages ordered by page id.
func (s *Strip) SelectedItems() []domain.PageID {
	sel := s.st.selectedItems()
	out := make([]domain.PageID, 0, len(sel))
	for _, it := range sel {
		out = append(out, it.id())
	}
	slices.SortFunc(out, domain.Compare(domain.ByID{}))
	return out
}

// SelectedRanges returns the maximal runs of selected pages in display order.
func (s *Strip) SelectedRanges() []domain.PageRange {
	var ranges []domain.PageRange
	idx := 0
	it := s.st.begin()
	for {
		for ; it != s.st.end() && !it.selected; it = it.next {
			idx++
		}
		if it == s.st.end() {
			return ranges
		}
		r := domain.PageRange{FirstIndex: idx}
		for ; it != s.st.end() && it.selected; it = it.next {
			r.Pages = append(r.Pages, it.id())
			idx++
		}
		ranges = append(ranges, r)
	}
}

// Len returns the number of pages.
func (s *Strip) Len() int { return s.st.len() }

// Pages returns the pages in display order.
func (s *Strip) Pages() []domain.PageInfo {
	out := make([]domain.PageInfo, 0, s.st.len())
	for it := s.st.begin(); it != s.st.end(); it = it.next {
		out = append(out, it.info)
	}
	return out
}

// Composites returns the visuals in display order.
func (s *Strip) Composites() []*Composite {
	out := make([]*Composite, 0, s.st.len())
	for it := s.st.begin(); it != s.st.end(); it = it.next {
		out = append(out, it.composite)
	}
	return out
}

// Composite returns the visual of a page.
func (s *Strip) Composite(id domain.PageID) *Composite {
	if it := s.st.findByID(id); it != nil {
		return it.composite
	}
	return nil
}

// SceneRect is the last committed scene rect.
func (s *Strip) SceneRect() geom.Rect { return s.committedRect() }

// HitTest returns the visual whose hit area contains p.
func (s *Strip) HitTest(p geom.Pt) *Composite {
	for it := s.st.begin(); it != s.st.end(); it = it.next {
		if it.composite.SceneRect().Contains(p) {
			return it.composite
		}
	}
	return nil
}

// SceneContextMenu handles a context menu request that did not land on a
// visual. Requests below the last visual, or on an empty strip, are published
// as past-last-page requests.
func (s *Strip) SceneContextMenu(scenePos, screenPos geom.Pt) {
	if !s.st.empty() {
		if scenePos.Y <= s.st.back().composite.SceneRect().Bottom() {
			return
		}
	}
	if s.events.PastLastPageContextMenu != nil {
		s.events.PastLastPageContextMenu(screenPos)
	}
}

func (s *Strip) contextMenuRequested(it *item, screenPos geom.Pt) {
	if s.events.PageContextMenu != nil {
		s.events.PageContextMenu(ContextMenuRequest{Page: it.info, ScreenPos: screenPos, Selected: it.selected})
	}
}

func (s *Strip) clear() {
	s.leader = nil
	for it := s.st.begin(); it != s.st.end(); it = it.next {
		s.canvas.Detach(it.composite)
		it.composite.page = nil
	}
	s.st.clear()
	s.sceneRect = geom.Rect{}
	s.commitSceneRect()
}

func (s *Strip) thumbnail(it *item) Thumbnail {
	if s.factory != nil {
		if th := s.factory.Thumbnail(it.info, it.pageNum); th != nil {
			return th
		}
	}
	return Placeholder{size: s.maxSize}
}

// newComposite creates and links a fresh visual for it.
func (s *Strip) newComposite(it *item) *Composite {
	c := newComposite(s, s.thumbnail(it), newLabelGroup(it.info, s.labels))
	if it.composite != nil {
		it.composite.page = nil
	}
	c.page = it
	it.composite = c
	return c
}

func (s *Strip) committedRect() geom.Rect {
	if s.sceneRect.IsNull() {
		return geom.R(0, 0, 1, 1)
	}
	return s.sceneRect
}

func (s *Strip) commitSceneRect() { s.canvas.SetSceneRect(s.committedRect()) }

func (s *Strip) emitLeader(it *item, flags SelectionFlags) {
	s.log.Debug("selection leader", slog.String("page", it.id().String()), slog.String("flags", flags.String()))
	if s.events.LeaderChanged != nil {
		s.events.LeaderChanged(LeaderChange{Page: it.info, Rect: it.composite.SceneRect(), Flags: flags})
	}
}
