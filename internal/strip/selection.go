/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package strip

import (
	"log/slog"

	"scanstrip/internal/domain"
)

// itemInsertPosition returns where id belongs within [begin, end) and how many
// steps that is from hint (negative means before it). Without a custom
// ordering hint is returned unchanged. Otherwise the search walks back from
// hint while id precedes the element, then forward until it does, so only
// pairwise comparisons are needed.
func (s *Strip) itemInsertPosition(begin, end *item, id domain.PageID, hint *item) (*item, int) {
	if s.order == nil {
		return hint, 0
	}
	pos, dist := hint, 0
	if pos != begin {
		if pos == end {
			pos = pos.prev
			dist--
		}
		for pos != begin && s.order.Precedes(id, pos.id()) {
			pos = pos.prev
			dist--
		}
	}
	for pos != end && !s.order.Precedes(id, pos.id()) {
		pos = pos.next
		dist++
	}
	return pos, dist
}

func (s *Strip) setSelected(it *item, selected bool) {
	it.selected = selected
	it.leader = it.leader && selected
	s.syncAppearance(it)
}

func (s *Strip) setLeader(it *item, leader bool) {
	it.selected = it.selected || leader
	it.leader = leader
	s.syncAppearance(it)
}

func (s *Strip) syncAppearance(it *item) {
	if it.composite.updateAppearance(it.selected, it.leader) {
		s.canvas.Refresh(it.composite)
	}
}

// itemSelectedByUser applies a click. Control wins over shift.
func (s *Strip) itemSelectedByUser(it *item, mods Modifiers) {
	defer s.enter("click")()
	s.log.Debug("click", slog.String("page", it.id().String()), slog.Int("mods", int(mods)))
	switch {
	case mods&ModControl != 0 && s.leader != nil:
		s.selectWithControl(it)
	case mods&ModShift != 0 && s.leader != nil:
		s.selectWithShift(it)
	default:
		s.selectNoModifiers(it)
	}
}

func (s *Strip) selectWithControl(it *item) {
	flags := SelectedByUser

	if !it.selected {
		s.setLeader(s.leader, false)
		s.leader = it
		s.setLeader(it, true)
		s.st.moveToSelected(it)
		s.emitLeader(it, flags)
		return
	}

	if !s.st.multipleSelected() {
		// The only selected page was clicked.
		s.emitLeader(s.leader, flags|Redundant)
		return
	}

	s.setSelected(it, false)
	s.st.moveToUnselected(it)
	if s.leader != it {
		return
	}

	// Hand leadership to the nearest selected page, looking back first.
	s.leader = nil
	back, fwd := it, it
	for s.leader == nil {
		moved := false
		if back != s.st.begin() {
			back = back.prev
			moved = true
			if back.selected {
				s.leader = back
				break
			}
		}
		if fwd != s.st.end() {
			fwd = fwd.next
			moved = true
			if fwd != s.st.end() && fwd.selected {
				s.leader = fwd
				break
			}
		}
		if !moved {
			panic("strip: no selection leader found among selected pages")
		}
	}
	s.setLeader(s.leader, true)
	s.emitLeader(s.leader, flags|AvoidScrolling)
}

func (s *Strip) selectWithShift(it *item) {
	flags := SelectedByUser
	if s.leader == it {
		s.emitLeader(it, flags|Redundant)
		return
	}

	// Find which endpoint comes first by walking out of the leader both ways.
	first, last := s.leader, it
	back, fwd := s.leader, s.leader
	for {
		moved := false
		if back != s.st.begin() {
			back = back.prev
			moved = true
			if back == it {
				first, last = it, s.leader
				break
			}
		}
		if fwd != s.st.end() {
			fwd = fwd.next
			moved = true
			if fwd == it {
				break
			}
		}
		if !moved {
			panic("strip: clicked page is not in display order")
		}
	}

	for p := first; ; p = p.next {
		s.setSelected(p, true)
		s.st.moveToSelected(p)
		if p == last {
			break
		}
	}

	s.setLeader(s.leader, false)
	s.leader = it
	s.setLeader(it, true)
	s.emitLeader(it, flags)
}

func (s *Strip) selectNoModifiers(it *item) {
	flags := SelectedByUser
	if s.leader == it && !s.st.multipleSelected() {
		flags |= Redundant
	}

	for _, sel := range s.st.selectedItems() {
		if sel != it {
			s.setSelected(sel, false)
		}
	}
	s.leader = it
	s.setLeader(it, true)
	s.st.moveToSelected(it)
	s.emitLeader(it, flags)
}
