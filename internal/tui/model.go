/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package tui is a terminal front-end for the strip. Each visual becomes one
// row; key presses are turned into the same presses a mouse would produce.
package tui

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
	"scanstrip/internal/strip"
)

// ThumbReadyMsg tells the model that the thumbnail of a page became available.
// Send it through tea.Program.Send from the loader's callback.
type ThumbReadyMsg struct{ ID domain.PageID }

// Remover persists a removal before the strip drops the pages.
type Remover func(ids []domain.PageID) error

// Options configure a Model.
type Options struct {
	Strip  *strip.Strip
	Remove Remover
	// Order is the ordering reversed when reverse order is toggled on.
	// Defaults to domain.ByID.
	Order domain.OrderProvider
	// Reload resets the strip from the stored sequence with the given custom
	// ordering, keeping the selection. Toggling reverse order off calls it
	// with nil. Without it the sequence seen when reversing is restored.
	Reload func(order domain.OrderProvider) error
	// OnLeader is told about every leader change before the view reacts to it.
	OnLeader func(strip.LeaderChange)
	Logger   *slog.Logger
}

// Model is the bubbletea model of the strip view.
type Model struct {
	strip  *strip.Strip
	canvas *textCanvas
	remove Remover
	order  domain.OrderProvider
	reload func(domain.OrderProvider) error
	// document is the display order before reversing, used without reload.
	document []domain.PageInfo
	follow func(strip.LeaderChange)
	log    *slog.Logger

	reversed bool
	cursor   int
	top      int
	height   int
	status   string
}

var _ tea.Model = (*Model)(nil)

// New wires the model to the strip: it becomes the strip's canvas and listener.
func New(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("tui")
	}
	m := &Model{
		strip:  opts.Strip,
		canvas: newTextCanvas(),
		remove: opts.Remove,
		order:  opts.Order,
		reload: opts.Reload,
		// the strip may have been opened reversed
		reversed: opts.Strip.OrderProvider() != nil,
		follow: opts.OnLeader,
		log:    opts.Logger,
		height: 20,
	}
	m.strip.AttachCanvas(m.canvas)
	m.strip.SetEvents(strip.Events{
		LeaderChanged:           m.leaderChanged,
		PageContextMenu:         m.pageMenu,
		PastLastPageContextMenu: func(geom.Pt) { m.status = "menu: append page" },
	})
	if leader, ok := m.strip.SelectionLeader(); ok {
		m.cursor = m.indexOf(leader.ID)
	}
	return m
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// header and footer take three lines
		m.height = max(1, msg.Height-3)
		m.scrollTo(m.cursor)
	case ThumbReadyMsg:
		m.strip.InvalidateThumbnail(msg.ID)
	case tea.KeyMsg:
		return m, m.key(msg)
	}
	return m, nil
}

func (m *Model) key(msg tea.KeyMsg) tea.Cmd {
	m.status = ""
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "home", "g":
		m.move(-m.cursor)
	case "end", "G":
		m.move(m.strip.Len())
	case "enter":
		m.press(0)
	case " ", "space":
		m.press(strip.ModControl)
	case "shift+up":
		m.move(-1)
		m.press(strip.ModShift)
	case "shift+down":
		m.move(1)
		m.press(strip.ModShift)
	case "m":
		screen := geom.P(0, float32(m.cursor-m.top+1))
		if c := m.current(); c != nil {
			c.ContextMenu(screen)
		} else {
			m.strip.SceneContextMenu(geom.P(0, m.strip.SceneRect().Bottom()+1), screen)
		}
	case "d":
		m.removeSelected()
	case "o":
		m.toggleOrder()
	}
	return nil
}

func (m *Model) current() *strip.Composite {
	cs := m.strip.Composites()
	if m.cursor < 0 || m.cursor >= len(cs) {
		return nil
	}
	return cs[m.cursor]
}

func (m *Model) move(delta int) {
	n := m.strip.Len()
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.scrollTo(m.cursor)
}

func (m *Model) press(mods strip.Modifiers) {
	if c := m.current(); c != nil {
		c.Press(mods)
	}
}

func (m *Model) removeSelected() {
	ids := m.strip.SelectedItems()
	if len(ids) == 0 {
		m.status = "nothing selected"
		return
	}
	if m.remove != nil {
		if err := m.remove(ids); err != nil {
			m.log.Error("remove failed", slog.Any("err", err))
			m.status = "remove failed: " + err.Error()
			return
		}
	}
	m.strip.RemovePages(ids)
	m.move(0)
	m.status = fmt.Sprintf("removed %d page(s)", len(ids))
}

func (m *Model) toggleOrder() {
	m.reversed = !m.reversed
	base := m.order
	if base == nil {
		base = domain.ByID{}
	}
	if m.reversed {
		if m.strip.OrderProvider() == nil {
			m.document = m.strip.Pages()
		}
		m.strip.SetOrderProvider(domain.Reversed{Of: base})
		m.strip.InvalidateAll()
		m.status = "order: reversed"
	} else {
		m.status = "order: document"
		if err := m.restoreDocumentOrder(); err != nil {
			m.status = "reload failed: " + err.Error()
		}
	}
	if leader, ok := m.strip.SelectionLeader(); ok {
		m.cursor = m.indexOf(leader.ID)
		m.scrollTo(m.cursor)
	}
}

func (m *Model) restoreDocumentOrder() error {
	if m.reload != nil {
		return m.reload(nil)
	}
	if m.document == nil {
		m.strip.SetOrderProvider(nil)
		return nil
	}
	var snap domain.Snapshot
	for _, p := range m.document {
		if m.strip.Composite(p.ID) != nil {
			snap.Pages = append(snap.Pages, p)
		}
	}
	m.document = nil
	m.strip.Reset(snap, strip.KeepSelection, nil)
	return nil
}

func (m *Model) leaderChanged(ev strip.LeaderChange) {
	if m.follow != nil {
		m.follow(ev)
	}
	if ev.Flags&strip.AvoidScrolling != 0 {
		return
	}
	m.cursor = m.indexOf(ev.Page.ID)
	m.scrollTo(m.cursor)
}

func (m *Model) pageMenu(req strip.ContextMenuRequest) {
	what := "page"
	if req.Selected {
		what = "selection"
	}
	m.status = fmt.Sprintf("menu: %s %s", what, strip.CaptionText(req.Page))
}

func (m *Model) indexOf(id domain.PageID) int {
	for i, p := range m.strip.Pages() {
		if p.ID == id {
			return i
		}
	}
	return m.cursor
}

func (m *Model) scrollTo(row int) {
	if row < m.top {
		m.top = row
	}
	if row >= m.top+m.height {
		m.top = row - m.height + 1
	}
	m.top = max(m.top, 0)
}

// Cursor returns the row under the cursor.
func (m *Model) Cursor() int { return m.cursor }

// Status returns the last status line.
func (m *Model) Status() string { return m.status }

func (m *Model) View() string {
	var b strings.Builder
	cs := m.strip.Composites()
	sel := len(m.strip.SelectedItems())
	b.WriteString(styleHeader.Render(fmt.Sprintf("scanstrip  %d pages  %d selected", len(cs), sel)))
	b.WriteByte('\n')
	end := min(m.top+m.height, len(cs))
	for i := m.top; i < end; i++ {
		b.WriteString(m.row(i, cs[i]))
		b.WriteByte('\n')
	}
	if len(cs) == 0 {
		b.WriteString(stylePlaceholder.Render("  (no pages)"))
		b.WriteByte('\n')
	}
	b.WriteString(styleStatus.Render(m.status))
	b.WriteByte('\n')
	b.WriteString(styleHelp.Render("↑/↓ move  enter select  space toggle  shift+↑/↓ extend  m menu  d remove  o order  q quit"))
	return b.String()
}

func (m *Model) row(i int, c *strip.Composite) string {
	cursor := "  "
	if i == m.cursor {
		cursor = styleCursor.Render("> ")
	}
	thumb := stylePlaceholder.Render("[  ?  ]")
	if _, placeholder := c.Thumbnail().(strip.Placeholder); !placeholder {
		sz := c.Thumbnail().Size()
		thumb = fmt.Sprintf("[%dx%d]", int(sz.W), int(sz.H))
	}
	label := c.Label()
	text := label.Text
	switch label.Sub {
	case domain.LeftPage:
		text += " ◧"
	case domain.RightPage:
		text += " ◨"
	}
	caption := fmt.Sprintf("%3d %s %s", c.PageNum()+1, thumb, text)
	switch {
	case label.BoldVisible():
		caption = styleLeader.Render(caption)
	case c.Selected():
		caption = styleSelected.Render(caption)
	default:
		caption = styleRow.Render(caption)
	}
	return cursor + caption
}
