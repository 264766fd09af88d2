//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"scanstrip/internal/config"
	"scanstrip/internal/crash"
	"scanstrip/internal/domain"
	"scanstrip/internal/export"
	applog "scanstrip/internal/log"
	"scanstrip/internal/session"
	"scanstrip/internal/storage"
	"scanstrip/internal/strip"
	"scanstrip/internal/telemetry"
)

// Run starts the desktop strip view. Without a project directory a folder
// dialog asks for one.
func Run(projectDir string) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	cfg, password, err := config.Load()
	if err != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}

	var sess *session.Session
	defer func() {
		var ph *storage.ProjectHandle
		if sess != nil {
			ph = sess.Workspace.Project
		}
		crash.Recover(ph)
	}()

	fyneApp := app.NewWithID("scanstrip")
	w := fyneApp.NewWindow("ScanStrip")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 360)
	winH := prefs.IntWithFallback("window.height", 800)
	w.Resize(fyne.NewSize(float32(max(winW, 240)), float32(max(winH, 320))))

	status := widget.NewLabel("No project")
	body := container.NewStack(widget.NewLabel("Open a project folder to start."))
	reverse := widget.NewCheck("Reverse order", nil)
	ctx := context.Background()

	report := func(op string, err error) {
		l.Error(op+" failed", slog.Any("err", err))
		status.SetText(op + " failed")
		dialog.ShowError(err, w)
	}

	var openProject func(dir string)
	showPageMenu := func(req strip.ContextMenuRequest) {
		page := req.Page
		items := []*fyne.MenuItem{
			fyne.NewMenuItem("Make current", func() {
				if err := sess.Select(ctx, page.ID); err != nil {
					report("select", err)
				}
			}),
		}
		if !page.ID.Sub.IsHalf() {
			items = append(items, fyne.NewMenuItem("Split into halves", func() {
				if err := sess.Split(ctx, page.ImageID()); err != nil {
					report("split", err)
					return
				}
				status.SetText("Split " + strip.CaptionText(page))
			}))
		}
		remove := []domain.PageID{page.ID}
		label := "Remove page"
		if req.Selected {
			remove = sess.Strip.SelectedItems()
			label = fmt.Sprintf("Remove %d selected page(s)", len(remove))
		}
		items = append(items, fyne.NewMenuItemSeparator(), fyne.NewMenuItem(label, func() {
			if err := sess.Remove(ctx, remove); err != nil {
				report("remove", err)
				return
			}
			status.SetText(fmt.Sprintf("Removed %d page(s)", len(remove)))
		}))
		pos := fyne.NewPos(req.ScreenPos.X, req.ScreenPos.Y)
		widget.ShowPopUpMenuAtPosition(fyne.NewMenu("", items...), w.Canvas(), pos)
	}
	showAppendMenu := func(pos fyne.Position) {
		appendItem := fyne.NewMenuItem("Append page…", func() {
			dialog.ShowFileOpen(func(rc fyne.URIReadCloser, err error) {
				if err != nil || rc == nil {
					return
				}
				path := rc.URI().Path()
				_ = rc.Close()
				info := domain.PageInfo{ID: domain.NewPageID(path, 0, domain.SinglePage)}
				if err := sess.Insert(ctx, info, domain.Before, domain.ImageID{}); err != nil {
					report("insert", err)
				}
			}, w)
		})
		widget.ShowPopUpMenuAtPosition(fyne.NewMenu("", appendItem), w.Canvas(), pos)
	}

	openProject = func(dir string) {
		if sess != nil {
			_ = sess.Close()
			sess = nil
		}
		start := time.Now()
		s, err := session.Open(ctx, session.Options{
			Root:     dir,
			Config:   cfg,
			Password: password,
			Watch:    true,
			OnReady: func(id domain.PageID) {
				fyne.Do(func() {
					if sess != nil {
						sess.Strip.InvalidateThumbnail(id)
					}
				})
			},
		})
		if err != nil {
			report("open", err)
			return
		}
		sess = s
		view := NewStripView(s.Strip)
		view.OnLeader = func(ev strip.LeaderChange) { sess.Follow(ctx, ev) }
		view.OnPageMenu = showPageMenu
		view.OnAppendMenu = showAppendMenu
		body.Objects = []fyne.CanvasObject{view.Scroller()}
		body.Refresh()
		if r := s.Strip.SelectionLeaderSceneRect(); !r.IsNull() {
			view.ScrollTo(r)
		}
		reverse.SetChecked(cfg.Strip.ReverseOrder)
		w.SetTitle("ScanStrip - " + s.Workspace.Project.Manifest.Name)
		status.SetText(fmt.Sprintf("%d pages", s.Strip.Len()))
		telemetry.Command("ui_open", s.Strip.Len(), time.Since(start))
	}

	reverse.OnChanged = func(on bool) {
		if sess == nil {
			return
		}
		if on {
			sess.Strip.SetOrderProvider(domain.Reversed{Of: sess.Base})
			sess.Strip.InvalidateAll()
			return
		}
		if err := sess.Reload(context.Background(), strip.KeepSelection, nil); err != nil {
			status.SetText("Reload failed: " + err.Error())
		}
	}

	exportPDF := func() {
		if sess == nil {
			return
		}
		save := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			defer func() { _ = wc.Close() }()
			opt := export.PDFOptions{Title: sess.Workspace.Project.Manifest.Name}
			if err := export.WriteStripPDF(sess.Strip, wc, opt); err != nil {
				report("export", err)
				return
			}
			status.SetText("Exported " + wc.URI().Name())
		}, w)
		save.SetFileName("strip.pdf")
		save.Show()
	}

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.FolderOpenIcon(), func() {
			dialog.ShowFolderOpen(func(lu fyne.ListableURI, err error) {
				if err == nil && lu != nil {
					openProject(lu.Path())
				}
			}, w)
		}),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), exportPDF),
	)

	w.SetContent(container.NewBorder(container.NewHBox(toolbar, reverse), status, nil, nil, body))
	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		if sess != nil {
			_ = sess.Close()
		}
		telemetry.Flush(context.Background())
	})
	if projectDir != "" {
		// Open once the event loop runs so loader callbacks find the session.
		fyneApp.Lifecycle().SetOnStarted(func() { openProject(projectDir) })
	}
	w.ShowAndRun()
	return nil
}
