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

	"scanstrip/internal/domain"
)

// item is one page of the strip. It is linked into two intrusive lists owned by
// the store: the display order and the selected-then-unselected partition.
// Pointers to items stay valid until the item is erased.
type item struct {
	info      domain.PageInfo
	pageNum   int
	composite *Composite

	selected bool
	leader   bool

	prev, next   *item
	sprev, snext *item
}

func (it *item) id() domain.PageID { return it.info.ID }

// store keeps one set of items reachable by identity, by display order and by
// selection state.
type store struct {
	byID  map[domain.PageID]*item
	order item // sentinel of the display order list
	sel   item // sentinel of the selection partition
	n     int
}

func newStore() *store {
	s := &store{byID: make(map[domain.PageID]*item)}
	s.order.prev, s.order.next = &s.order, &s.order
	s.sel.sprev, s.sel.snext = &s.sel, &s.sel
	return s
}

func (s *store) len() int      { return s.n }
func (s *store) empty() bool   { return s.n == 0 }
func (s *store) begin() *item  { return s.order.next }
func (s *store) end() *item    { return &s.order }
func (s *store) front() *item  { return s.order.next }
func (s *store) back() *item   { return s.order.prev }
func (s *store) selEnd() *item { return &s.sel }

func (s *store) findByID(id domain.PageID) *item { return s.byID[id] }

// findByImage returns the item with the lowest page id referencing img.
func (s *store) findByImage(img domain.ImageID) *item {
	for _, sub := range []domain.SubPage{domain.SinglePage, domain.LeftPage, domain.RightPage} {
		if it := s.byID[domain.PageID{Image: img, Sub: sub}]; it != nil {
			return it
		}
	}
	return nil
}

// insert links it before pos in display order and at the back of the selection
// partition. It reports false if the identity is already present.
func (s *store) insert(pos, it *item) bool {
	if _, dup := s.byID[it.id()]; dup {
		return false
	}
	s.byID[it.id()] = it
	linkBefore(pos, it)
	it.sprev, it.snext = s.sel.sprev, &s.sel
	s.sel.sprev.snext = it
	s.sel.sprev = it
	s.n++
	if it.selected {
		s.moveToSelected(it)
	}
	return true
}

func (s *store) pushBack(it *item) bool { return s.insert(s.end(), it) }

func (s *store) erase(it *item) {
	delete(s.byID, it.id())
	unlink(it)
	it.sprev.snext, it.snext.sprev = it.snext, it.sprev
	it.sprev, it.snext = nil, nil
	s.n--
}

// relocate moves it before pos in display order.
func (s *store) relocate(pos, it *item) {
	if pos == it {
		return
	}
	unlink(it)
	linkBefore(pos, it)
}

func (s *store) moveToSelected(it *item) {
	s.selRelocate(s.sel.snext, it)
}

func (s *store) moveToUnselected(it *item) {
	s.selRelocate(&s.sel, it)
}

func (s *store) selRelocate(pos, it *item) {
	if pos == it {
		return
	}
	it.sprev.snext, it.snext.sprev = it.snext, it.sprev
	it.sprev, it.snext = pos.sprev, pos
	pos.sprev.snext = it
	pos.sprev = it
}

// rekey changes the identity of it. It fails when the new identity is taken.
func (s *store) rekey(it *item, id domain.PageID) bool {
	if id == it.id() {
		return true
	}
	if _, taken := s.byID[id]; taken {
		return false
	}
	delete(s.byID, it.id())
	it.info.ID = id
	s.byID[id] = it
	return true
}

func (s *store) clear() {
	for it := s.begin(); it != s.end(); {
		next := it.next
		it.prev, it.next, it.sprev, it.snext = nil, nil, nil, nil
		it = next
	}
	clear(s.byID)
	s.order.prev, s.order.next = &s.order, &s.order
	s.sel.sprev, s.sel.snext = &s.sel, &s.sel
	s.n = 0
}

// inOrder returns the items in display order.
func (s *store) inOrder() []*item {
	out := make([]*item, 0, s.n)
	for it := s.begin(); it != s.end(); it = it.next {
		out = append(out, it)
	}
	return out
}

// relink rebuilds the display order from items, which must hold every item exactly once.
func (s *store) relink(items []*item) {
	s.order.prev, s.order.next = &s.order, &s.order
	for _, it := range items {
		linkBefore(&s.order, it)
	}
}

// selectedItems walks the selected prefix of the partition.
func (s *store) selectedItems() []*item {
	var out []*item
	for it := s.sel.snext; it != &s.sel && it.selected; it = it.snext {
		out = append(out, it)
	}
	return out
}

// multipleSelected reports whether at least two items are selected.
func (s *store) multipleSelected() bool {
	first := s.sel.snext
	if first == &s.sel || !first.selected {
		return false
	}
	second := first.snext
	return second != &s.sel && second.selected
}

// verify checks the cross-index invariants.
func (s *store) verify(leader *item) error {
	seen := make(map[*item]bool, s.n)
	count := 0
	for it := s.begin(); it != s.end(); it = it.next {
		if it.next.prev != it {
			return fmt.Errorf("order list broken at %v", it.id())
		}
		if s.byID[it.id()] != it {
			return fmt.Errorf("order item %v missing from identity index", it.id())
		}
		seen[it] = true
		count++
	}
	if count != s.n || len(s.byID) != s.n {
		return fmt.Errorf("index sizes differ: order=%d identity=%d expected=%d", count, len(s.byID), s.n)
	}
	count = 0
	unselectedSeen := false
	for it := s.sel.snext; it != &s.sel; it = it.snext {
		if it.snext.sprev != it {
			return fmt.Errorf("selection list broken at %v", it.id())
		}
		if !seen[it] {
			return fmt.Errorf("selection item %v missing from order index", it.id())
		}
		if it.selected && unselectedSeen {
			return fmt.Errorf("selected item %v follows an unselected one", it.id())
		}
		if !it.selected {
			unselectedSeen = true
		}
		if it.leader && it != leader {
			return fmt.Errorf("item %v flagged as leader but is not the leader", it.id())
		}
		count++
	}
	if count != s.n {
		return fmt.Errorf("selection index holds %d items, expected %d", count, s.n)
	}
	if leader != nil {
		if !seen[leader] {
			return fmt.Errorf("leader %v is not in the store", leader.id())
		}
		if !leader.selected || !leader.leader {
			return fmt.Errorf("leader %v is not selected", leader.id())
		}
	}
	return nil
}

func linkBefore(pos, it *item) {
	it.prev, it.next = pos.prev, pos
	pos.prev.next = it
	pos.prev = it
}

func unlink(it *item) {
	it.prev.next, it.next.prev = it.next, it.prev
	it.prev, it.next = nil, nil
}
