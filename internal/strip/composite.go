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
	"image"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	"scanstrip/internal/textlayout"
)

// Thumbnail is the graphic shown for a page. Size is in logical scene units.
type Thumbnail interface {
	Size() geom.Size
}

// ImageThumbnail is a thumbnail backed by a decoded bitmap.
type ImageThumbnail interface {
	Thumbnail
	Image() image.Image
}

// ThumbnailFactory supplies thumbnails. Returning nil means nothing is
// available yet and a placeholder is shown instead.
type ThumbnailFactory interface {
	Thumbnail(info domain.PageInfo, pageNum int) Thumbnail
}

// Placeholder stands in for a thumbnail that is not available. Front-ends
// draw a question mark inside it.
type Placeholder struct{ size geom.Size }

func (p Placeholder) Size() geom.Size { return p.size }

const (
	thumbLabelSpacing = 1
	labelIconSpacing  = 5
)

// LabelIconSize is the size of the left/right page marker.
var LabelIconSize = geom.S(12, 12)

// LabelGroup is the caption under a thumbnail. It holds a plain and a bold
// rendition of the same text, of which only one is visible at a time.
type LabelGroup struct {
	Text string
	Sub  domain.SubPage

	// Rects are relative to the group origin.
	NormalRect geom.Rect
	BoldRect   geom.Rect
	IconRect   geom.Rect // null unless Sub is a half

	normalVisible bool
	highlighted   bool
}

// CaptionText returns the caption for a page: the file name, with the
// one-based page number appended for multi-page files.
func CaptionText(info domain.PageInfo) string {
	img := info.ImageID()
	name := img.FileName()
	if info.MultiPageFile || img.Page > 0 {
		return fmt.Sprintf("%s (page %d)", name, img.Page+1)
	}
	return name
}

func newLabelGroup(info domain.PageInfo, fonts textlayout.Provider) *LabelGroup {
	text := CaptionText(info)
	bold := geom.RectFromSize(textlayout.MeasureLine(fonts, textlayout.FontSpec{Bold: true}, text))
	normal := geom.RectFromSize(textlayout.MeasureLine(fonts, textlayout.FontSpec{}, text))
	normal = normal.MoveCenter(bold.Center())
	normal.X = bold.Right() - normal.W

	lg := &LabelGroup{Text: text, Sub: info.ID.Sub, NormalRect: normal, BoldRect: bold, normalVisible: true}
	if info.ID.Sub.IsHalf() {
		icon := geom.RectFromSize(LabelIconSize).MoveCenter(bold.Center())
		icon.X = bold.Right() + labelIconSpacing
		lg.IconRect = icon
	}
	return lg
}

// Bounds is the union of all parts, visible or not.
func (l *LabelGroup) Bounds() geom.Rect {
	return l.NormalRect.Union(l.BoldRect).Union(l.IconRect)
}

// BoldVisible reports whether the bold caption is shown. Exactly one caption is visible.
func (l *LabelGroup) BoldVisible() bool { return !l.normalVisible }

// Highlighted reports whether the plain caption uses the highlighted text colour.
func (l *LabelGroup) Highlighted() bool { return l.highlighted }

func (l *LabelGroup) updateAppearance(selected, leader bool) {
	l.normalVisible = !leader
	l.highlighted = selected && !leader
}

// Composite is the visual of one page: a thumbnail with its caption below.
// The origin is the horizontal centre of the thumbnail's top edge.
type Composite struct {
	owner *Strip
	page  *item

	thumb    Thumbnail
	thumbPos geom.Pt
	label    *LabelGroup
	labelPos geom.Pt
	bounds   geom.Rect

	pos      geom.Pt
	selected bool
	leader   bool
	changes  int
}

func newComposite(owner *Strip, thumb Thumbnail, label *LabelGroup) *Composite {
	c := &Composite{owner: owner, thumb: thumb, label: label}
	ts := thumb.Size()
	lb := label.Bounds()
	c.thumbPos = geom.P(-0.5*ts.W, 0)
	c.labelPos = geom.P(c.thumbPos.X+ts.W-lb.W, ts.H+thumbLabelSpacing)
	children := geom.RectFromSize(ts).Translate(c.thumbPos).Union(lb.Translate(c.labelPos))
	c.bounds = children.Adjust(-100, -5, 100, 3)
	return c
}

// Page is the page this visual belongs to.
func (c *Composite) Page() domain.PageInfo {
	if c.page == nil {
		return domain.PageInfo{}
	}
	return c.page.info
}

// PageNum is the sequence number the visual was created with.
func (c *Composite) PageNum() int {
	if c.page == nil {
		return 0
	}
	return c.page.pageNum
}

func (c *Composite) Thumbnail() Thumbnail { return c.thumb }
func (c *Composite) Label() *LabelGroup   { return c.label }
func (c *Composite) Pos() geom.Pt         { return c.pos }
func (c *Composite) Selected() bool       { return c.selected }
func (c *Composite) Leader() bool         { return c.leader }

// AppearanceChanges counts effective appearance updates.
func (c *Composite) AppearanceChanges() int { return c.changes }

// BoundingRect is the hit area in local coordinates. It extends well beyond the
// thumbnail so that the whole row is clickable.
func (c *Composite) BoundingRect() geom.Rect { return c.bounds }

// SceneRect is the hit area in scene coordinates.
func (c *Composite) SceneRect() geom.Rect { return c.bounds.Translate(c.pos) }

// ThumbRect is the thumbnail area in scene coordinates.
func (c *Composite) ThumbRect() geom.Rect {
	return geom.RectFromSize(c.thumb.Size()).Translate(c.thumbPos).Translate(c.pos)
}

// LabelOrigin is the caption group origin in scene coordinates.
func (c *Composite) LabelOrigin() geom.Pt { return c.labelPos.Add(c.pos) }

func (c *Composite) setPos(p geom.Pt) { c.pos = p }

func (c *Composite) height() float32 { return c.bounds.H }

// sceneContribution is the part of the scene this visual needs: the thumbnail's
// horizontal extent and the hit area's vertical extent.
func (c *Composite) sceneContribution() geom.Rect {
	r := c.ThumbRect()
	b := c.SceneRect()
	r.Y, r.H = b.Y, b.H
	return r
}

// updateAppearance reports whether anything changed.
func (c *Composite) updateAppearance(selected, leader bool) bool {
	if c.selected == selected && c.leader == leader {
		return false
	}
	c.selected, c.leader = selected, leader
	c.label.updateAppearance(selected, leader)
	c.changes++
	return true
}

// Press handles a primary button press on the visual.
func (c *Composite) Press(mods Modifiers) {
	if c.owner == nil || c.page == nil || c.page.composite != c {
		return
	}
	c.owner.itemSelectedByUser(c.page, mods)
}

// ContextMenu handles a context menu request on the visual.
func (c *Composite) ContextMenu(screenPos geom.Pt) {
	if c.owner == nil || c.page == nil || c.page.composite != c {
		return
	}
	c.owner.contextMenuRequested(c.page, screenPos)
}
