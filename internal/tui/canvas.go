/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package tui

import (
	"scanstrip/internal/geom"
	"scanstrip/internal/strip"
)

// textCanvas is the strip canvas of the terminal view. Rows are drawn from the
// strip's display order on every View, so the canvas only tracks what is
// attached and how often something asked for a redraw.
type textCanvas struct {
	attached  map[*strip.Composite]bool
	refreshes int
	scene     geom.Rect
}

func newTextCanvas() *textCanvas {
	return &textCanvas{attached: map[*strip.Composite]bool{}}
}

func (t *textCanvas) Attach(c *strip.Composite)  { t.attached[c] = true }
func (t *textCanvas) Detach(c *strip.Composite)  { delete(t.attached, c) }
func (t *textCanvas) Refresh(c *strip.Composite) { t.refreshes++ }
func (t *textCanvas) SetSceneRect(r geom.Rect)   { t.scene = r }
