//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	"scanstrip/internal/strip"
)

// captionTextSize matches the height of the basic caption face.
const captionTextSize = 11

// StripView draws a strip and turns mouse presses into composite presses.
// Visuals are attached and detached by the strip, the view only positions
// them. Wrap it with Scroller.
type StripView struct {
	widget.BaseWidget

	strip   *strip.Strip
	visuals []*visual
	byComp  map[*strip.Composite]*visual
	scene   geom.Rect
	scroll  *container.Scroll

	// OnLeader is told about every leader change.
	OnLeader func(strip.LeaderChange)
	// OnPageMenu and OnAppendMenu receive context menu requests with the
	// press position in absolute canvas coordinates.
	OnPageMenu   func(req strip.ContextMenuRequest)
	OnAppendMenu func(pos fyne.Position)
}

var (
	_ fyne.Widget       = (*StripView)(nil)
	_ desktop.Mouseable = (*StripView)(nil)
	_ strip.Canvas      = (*viewCanvas)(nil)
)

// NewStripView attaches a new view to s and subscribes to its notifications.
func NewStripView(s *strip.Strip) *StripView {
	v := &StripView{strip: s, byComp: map[*strip.Composite]*visual{}, scene: geom.R(0, 0, 1, 1)}
	v.ExtendBaseWidget(v)
	s.SetEvents(strip.Events{
		LeaderChanged: v.leaderChanged,
		PageContextMenu: func(req strip.ContextMenuRequest) {
			if v.OnPageMenu != nil {
				v.OnPageMenu(req)
			}
		},
		PastLastPageContextMenu: func(p geom.Pt) {
			if v.OnAppendMenu != nil {
				v.OnAppendMenu(fyne.NewPos(p.X, p.Y))
			}
		},
	})
	s.AttachCanvas(&viewCanvas{v: v})
	return v
}

// Scroller returns the scroll container hosting the view.
func (v *StripView) Scroller() *container.Scroll {
	if v.scroll == nil {
		v.scroll = container.NewVScroll(v)
	}
	return v.scroll
}

// viewCanvas is the strip's canvas. Positions only change together with the
// scene rect, so SetSceneRect is where the view is laid out again.
type viewCanvas struct{ v *StripView }

func (vc *viewCanvas) Attach(c *strip.Composite) {
	vis := newVisual(c)
	vc.v.visuals = append(vc.v.visuals, vis)
	vc.v.byComp[c] = vis
}

func (vc *viewCanvas) Detach(c *strip.Composite) {
	v := vc.v
	if _, ok := v.byComp[c]; !ok {
		return
	}
	delete(v.byComp, c)
	for i, vis := range v.visuals {
		if vis.c == c {
			v.visuals = append(v.visuals[:i], v.visuals[i+1:]...)
			break
		}
	}
}

func (vc *viewCanvas) Refresh(c *strip.Composite) {
	if vis, ok := vc.v.byComp[c]; ok {
		vis.update()
	}
	vc.v.Refresh()
}

func (vc *viewCanvas) SetSceneRect(r geom.Rect) {
	vc.v.scene = r
	vc.v.Refresh()
	if vc.v.scroll != nil {
		vc.v.scroll.Refresh()
	}
}

// origin is the widget position of the scene point (0, 0). The scene is
// centred horizontally when the widget is wider.
func (v *StripView) origin() fyne.Position {
	size := v.Size()
	pad := float32(0)
	if size.Width > v.scene.W {
		pad = (size.Width - v.scene.W) / 2
	}
	return fyne.NewPos(pad-v.scene.X, -v.scene.Y)
}

func (v *StripView) toScene(p fyne.Position) geom.Pt {
	o := v.origin()
	return geom.P(p.X-o.X, p.Y-o.Y)
}

func (v *StripView) toWidget(r geom.Rect) (fyne.Position, fyne.Size) {
	o := v.origin()
	return fyne.NewPos(r.X+o.X, r.Y+o.Y), fyne.NewSize(r.W, r.H)
}

func modifiers(m fyne.KeyModifier) strip.Modifiers {
	var out strip.Modifiers
	if m&(fyne.KeyModifierControl|fyne.KeyModifierSuper) != 0 {
		out |= strip.ModControl
	}
	if m&fyne.KeyModifierShift != 0 {
		out |= strip.ModShift
	}
	return out
}

// MouseDown maps primary presses to selection and secondary presses to context menus.
func (v *StripView) MouseDown(e *desktop.MouseEvent) {
	p := v.toScene(e.Position)
	hit := v.strip.HitTest(p)
	switch e.Button {
	case desktop.MouseButtonPrimary:
		if hit != nil {
			hit.Press(modifiers(e.Modifier))
		}
	case desktop.MouseButtonSecondary:
		screen := geom.P(e.AbsolutePosition.X, e.AbsolutePosition.Y)
		if hit != nil {
			hit.ContextMenu(screen)
		} else {
			v.strip.SceneContextMenu(p, screen)
		}
	}
}

func (v *StripView) MouseUp(*desktop.MouseEvent) {}

func (v *StripView) leaderChanged(ev strip.LeaderChange) {
	if v.OnLeader != nil {
		v.OnLeader(ev)
	}
	if ev.Flags&strip.AvoidScrolling == 0 {
		v.ScrollTo(ev.Rect)
	}
}

// ScrollTo scrolls the least amount needed to show r, given in scene coordinates.
func (v *StripView) ScrollTo(r geom.Rect) {
	if v.scroll == nil || r.IsNull() {
		return
	}
	pos, size := v.toWidget(r)
	view := v.scroll.Size().Height
	off := v.scroll.Offset.Y
	switch {
	case pos.Y < off:
		off = pos.Y
	case pos.Y+size.Height > off+view:
		off = pos.Y + size.Height - view
	}
	if off < 0 {
		off = 0
	}
	if off != v.scroll.Offset.Y {
		v.scroll.Offset.Y = off
		v.scroll.Refresh()
	}
}

// CreateRenderer lays out the attached visuals in scene order.
func (v *StripView) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(theme.Color(theme.ColorNameBackground))
	r := &stripRenderer{v: v, bg: bg}
	r.rebuild()
	return r
}

// visual is the set of canvas objects drawing one composite.
type visual struct {
	c         *strip.Composite
	highlight *canvas.Rectangle
	thumb     fyne.CanvasObject
	mark      *canvas.Text // "?" on placeholders
	normal    *canvas.Text
	bold      *canvas.Text
	icon      *canvas.Rectangle
	iconText  *canvas.Text
}

func newVisual(c *strip.Composite) *visual {
	vis := &visual{c: c}
	vis.highlight = canvas.NewRectangle(theme.Color(theme.ColorNameSelection))

	switch th := c.Thumbnail().(type) {
	case strip.ImageThumbnail:
		img := canvas.NewImageFromImage(th.Image())
		img.FillMode = canvas.ImageFillStretch
		img.ScaleMode = canvas.ImageScaleSmooth
		vis.thumb = img
	default:
		box := canvas.NewRectangle(color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x30})
		box.StrokeColor = theme.Color(theme.ColorNameDisabled)
		box.StrokeWidth = 1
		vis.thumb = box
		vis.mark = canvas.NewText("?", theme.Color(theme.ColorNameDisabled))
		vis.mark.TextSize = 32
		vis.mark.Alignment = fyne.TextAlignCenter
	}

	lg := c.Label()
	vis.normal = canvas.NewText(lg.Text, theme.Color(theme.ColorNameForeground))
	vis.normal.TextSize = captionTextSize
	vis.normal.Alignment = fyne.TextAlignTrailing
	vis.bold = canvas.NewText(lg.Text, theme.Color(theme.ColorNameForeground))
	vis.bold.TextSize = captionTextSize
	vis.bold.TextStyle = fyne.TextStyle{Bold: true}
	vis.bold.Alignment = fyne.TextAlignTrailing
	if lg.Sub.IsHalf() {
		vis.icon = canvas.NewRectangle(color.Transparent)
		vis.icon.StrokeColor = theme.Color(theme.ColorNameForeground)
		vis.icon.StrokeWidth = 1
		letter := "L"
		if lg.Sub == domain.RightPage {
			letter = "R"
		}
		vis.iconText = canvas.NewText(letter, theme.Color(theme.ColorNameForeground))
		vis.iconText.TextSize = 9
		vis.iconText.Alignment = fyne.TextAlignCenter
	}
	vis.update()
	return vis
}

// update applies the composite's selection appearance.
func (vis *visual) update() {
	lg := vis.c.Label()
	vis.highlight.Hidden = !vis.c.Selected()
	vis.bold.Hidden = !lg.BoldVisible()
	vis.normal.Hidden = lg.BoldVisible()
	if lg.Highlighted() {
		vis.normal.Color = theme.Color(theme.ColorNamePrimary)
	} else {
		vis.normal.Color = theme.Color(theme.ColorNameForeground)
	}
}

func (vis *visual) objects() []fyne.CanvasObject {
	objs := []fyne.CanvasObject{vis.highlight, vis.thumb}
	if vis.mark != nil {
		objs = append(objs, vis.mark)
	}
	objs = append(objs, vis.normal, vis.bold)
	if vis.icon != nil {
		objs = append(objs, vis.icon, vis.iconText)
	}
	return objs
}

func place(o fyne.CanvasObject, v *StripView, r geom.Rect) {
	pos, size := v.toWidget(r)
	o.Move(pos)
	o.Resize(size)
}

func (vis *visual) layout(v *StripView) {
	c := vis.c
	place(vis.highlight, v, c.SceneRect())
	place(vis.thumb, v, c.ThumbRect())
	if vis.mark != nil {
		place(vis.mark, v, c.ThumbRect())
	}
	lg := c.Label()
	origin := c.LabelOrigin()
	place(vis.normal, v, lg.NormalRect.Translate(origin))
	place(vis.bold, v, lg.BoldRect.Translate(origin))
	if vis.icon != nil {
		place(vis.icon, v, lg.IconRect.Translate(origin))
		place(vis.iconText, v, lg.IconRect.Translate(origin))
	}
}

type stripRenderer struct {
	v       *StripView
	bg      *canvas.Rectangle
	objects []fyne.CanvasObject
}

func (r *stripRenderer) rebuild() {
	objs := []fyne.CanvasObject{r.bg}
	for _, vis := range r.v.visuals {
		objs = append(objs, vis.objects()...)
	}
	r.objects = objs
}

func (r *stripRenderer) Destroy()                     {}
func (r *stripRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *stripRenderer) MinSize() fyne.Size           { return fyne.NewSize(r.v.scene.W, r.v.scene.H) }

func (r *stripRenderer) Refresh() {
	r.rebuild()
	r.Layout(r.v.Size())
	canvas.Refresh(r.v)
}

func (r *stripRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	for _, vis := range r.v.visuals {
		vis.layout(r.v)
	}
}
