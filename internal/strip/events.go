/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package strip

import (
	"strings"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
)

// Modifiers is the set of keyboard modifiers held during a press.
type Modifiers uint8

const (
	ModControl Modifiers = 1 << iota
	ModShift
)

// SelectionFlags qualify a selection leader change.
type SelectionFlags uint8

// DefaultSelection marks a programmatic change.
const DefaultSelection SelectionFlags = 0

const (
	// SelectedByUser marks a change caused by a click.
	SelectedByUser SelectionFlags = 1 << iota
	// Redundant marks a notification for a leader that did not change.
	Redundant
	// AvoidScrolling asks the view not to scroll to the new leader.
	AvoidScrolling
)

func (f SelectionFlags) String() string {
	if f == DefaultSelection {
		return "default"
	}
	var parts []string
	if f&SelectedByUser != 0 {
		parts = append(parts, "user")
	}
	if f&Redundant != 0 {
		parts = append(parts, "redundant")
	}
	if f&AvoidScrolling != 0 {
		parts = append(parts, "avoid-scroll")
	}
	return strings.Join(parts, "|")
}

// SelectionAction tells Reset what to do with the current selection.
type SelectionAction int

const (
	KeepSelection SelectionAction = iota
	ResetSelection
)

// LeaderChange is published whenever the selection leader is (re)established.
// Rect is the leader's hit area in scene coordinates.
type LeaderChange struct {
	Page  domain.PageInfo
	Rect  geom.Rect
	Flags SelectionFlags
}

// ContextMenuRequest is published when a context menu is requested on a page.
type ContextMenuRequest struct {
	Page      domain.PageInfo
	ScreenPos geom.Pt
	Selected  bool
}

// Events are the outward notifications of a strip. Nil callbacks are skipped.
// Callbacks run synchronously and must not call back into the strip's
// mutating operations.
type Events struct {
	LeaderChanged           func(LeaderChange)
	PageContextMenu         func(ContextMenuRequest)
	PastLastPageContextMenu func(screenPos geom.Pt)
}

// Canvas is the rendering surface a strip places its visuals on.
type Canvas interface {
	Attach(c *Composite)
	Detach(c *Composite)
	// Refresh is called when the appearance of an attached visual changes.
	Refresh(c *Composite)
	// SetSceneRect is called at the end of every layout change.
	SetSceneRect(r geom.Rect)
}

type nopCanvas struct{}

func (nopCanvas) Attach(*Composite)      {}
func (nopCanvas) Detach(*Composite)      {}
func (nopCanvas) Refresh(*Composite)     {}
func (nopCanvas) SetSceneRect(geom.Rect) {}
