/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scanstrip/internal/config"
	"scanstrip/internal/crash"
	"scanstrip/internal/domain"
	"scanstrip/internal/export"
	"scanstrip/internal/geom"
	applog "scanstrip/internal/log"
	"scanstrip/internal/session"
	"scanstrip/internal/storage"
	"scanstrip/internal/strip"
	"scanstrip/internal/telemetry"
	"scanstrip/internal/thumbs"
	"scanstrip/internal/tui"
	"scanstrip/internal/ui"
	"scanstrip/internal/version"
)

func usage() {
	fmt.Println("ScanStrip - page strip for scanned books")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  scanstrip version|-v|--version                  Show version")
	fmt.Println("  scanstrip init <dir> <name> [image...]          Create a project with the given scans as pages")
	fmt.Println("  scanstrip list <dir> [--reverse]                 Print the page strip")
	fmt.Println("  scanstrip split <dir> <image>                    Split a scan into left and right pages")
	fmt.Println("  scanstrip remove <dir> <page>...                 Remove pages")
	fmt.Println("  scanstrip insert <dir> <image> [before|after <image>]  Insert a scan, appended by default")
	fmt.Println("  scanstrip select <dir> <page>                    Make a page the current page")
	fmt.Println("  scanstrip export-pdf <dir> <out.pdf> [--selected] Write the strip as a PDF contact sheet")
	fmt.Println("  scanstrip tui <dir>                              Browse the strip in the terminal")
	fmt.Println("  scanstrip ui [<dir>]                             Launch desktop UI (build with -tags fyne for full UI)")
	fmt.Println()
	fmt.Println("A <page> is an image path, optionally followed by @N for the N-th image of a")
	fmt.Println("multi-page file (zero-based) and :left or :right for one half of a split scan.")
}

func logOptions(cfg config.AppConfig) applog.Options {
	return applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
}

func main() {
	cfg, password, cfgErr := config.Load()
	applog.Init(logOptions(cfg))
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
		cfg = config.Defaults()
	}
	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)

	var ph *storage.ProjectHandle
	defer func() { crash.Recover(ph) }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	ctx := context.Background()
	start := time.Now()
	cmd := args[1]

	// openSession opens the project at args[2] and records it for crash reports.
	openSession := func(noThumbs bool) *session.Session {
		if len(args) < 3 {
			fmt.Printf("%s requires <dir>\n", cmd)
			usage()
			os.Exit(2)
		}
		root, _ := filepath.Abs(args[2])
		l.Info("open project", slog.String("root", root), slog.String("cmd", cmd))
		s, err := session.Open(ctx, session.Options{Root: root, Config: cfg, Password: password, NoThumbnails: noThumbs})
		if err != nil {
			fail(l, "open", err)
		}
		ph = s.Workspace.Project
		return s
	}
	done := func(s *session.Session) {
		telemetry.Command(cmd, s.Strip.Len(), time.Since(start))
		if err := s.Close(); err != nil {
			l.Warn("close failed", slog.Any("err", err))
		}
		telemetry.Flush(ctx)
	}

	switch cmd {
	case "version", "--version", "-v":
		fmt.Println("ScanStrip")
		fmt.Println(version.String())
	case "init":
		if len(args) < 4 {
			fmt.Println("init requires <dir> and <name>")
			usage()
			os.Exit(2)
		}
		root, _ := filepath.Abs(args[2])
		m := storage.Manifest{Name: args[3], Pages: []storage.PageEntry{}}
		h := &storage.ProjectHandle{Root: root, Manifest: m}
		var snap domain.Snapshot
		for _, a := range args[4:] {
			id, err := parsePage(a)
			if err != nil {
				fail(l, "init", err)
			}
			snap.Pages = append(snap.Pages, domain.PageInfo{ID: id})
		}
		h.SetSnapshot(snap)
		l.Info("init project", slog.String("root", root), slog.String("name", m.Name), slog.Int("pages", len(snap.Pages)))
		created, err := storage.InitProject(root, h.Manifest)
		if err != nil {
			fail(l, "init", err)
		}
		ph = created
		fmt.Println("Created project at", root)
	case "list":
		s := openSession(true)
		if hasFlag(args[3:], "--reverse") {
			s.Strip.SetOrderProvider(domain.Reversed{Of: s.Base})
			s.Strip.InvalidateAll()
		}
		fmt.Printf("Project: %s\n", s.Workspace.Project.Manifest.Name)
		printStrip(s.Strip)
		done(s)
	case "split":
		s := openSession(true)
		if len(args) < 4 {
			fmt.Println("split requires <image>")
			os.Exit(2)
		}
		id, err := parsePage(args[3])
		if err != nil {
			fail(l, "split", err)
		}
		if err := s.Split(ctx, id.Image); err != nil {
			fail(l, "split", err)
		}
		printStrip(s.Strip)
		done(s)
	case "remove":
		s := openSession(true)
		var ids []domain.PageID
		for _, a := range args[3:] {
			id, err := parsePage(a)
			if err != nil {
				fail(l, "remove", err)
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			fmt.Println("remove requires at least one <page>")
			os.Exit(2)
		}
		if err := s.Remove(ctx, ids); err != nil {
			fail(l, "remove", err)
		}
		printStrip(s.Strip)
		done(s)
	case "insert":
		s := openSession(true)
		if len(args) < 4 {
			fmt.Println("insert requires <image>")
			os.Exit(2)
		}
		id, err := parsePage(args[3])
		if err != nil {
			fail(l, "insert", err)
		}
		where, ref := domain.Before, domain.ImageID{}
		if len(args) >= 6 {
			switch args[4] {
			case "before":
			case "after":
				where = domain.After
			default:
				fmt.Println("insert expects before or after, got", args[4])
				os.Exit(2)
			}
			r, err := parsePage(args[5])
			if err != nil {
				fail(l, "insert", err)
			}
			ref = r.Image
		}
		info := domain.PageInfo{ID: id, MultiPageFile: id.Image.Page > 0}
		if err := s.Insert(ctx, info, where, ref); err != nil {
			fail(l, "insert", err)
		}
		printStrip(s.Strip)
		done(s)
	case "select":
		s := openSession(true)
		if len(args) < 4 {
			fmt.Println("select requires <page>")
			os.Exit(2)
		}
		id, err := parsePage(args[3])
		if err != nil {
			fail(l, "select", err)
		}
		if err := s.Select(ctx, id); err != nil {
			fail(l, "select", err)
		}
		printStrip(s.Strip)
		done(s)
	case "export-pdf":
		s := openSession(true)
		if len(args) < 4 {
			fmt.Println("export-pdf requires <out.pdf>")
			os.Exit(2)
		}
		out, _ := filepath.Abs(args[3])
		// Batch export renders every thumbnail up front instead of waiting for the loader.
		s.Strip.SetThumbnailFactory(renderNow{max: geom.S(float32(cfg.Strip.MaxThumbWidth), float32(cfg.Strip.MaxThumbHeight))})
		s.Strip.InvalidateAll()
		opt := export.PDFOptions{Title: s.Workspace.Project.Manifest.Name, SelectedOnly: hasFlag(args[4:], "--selected")}
		if err := export.StripPDF(s.Strip, out, opt); err != nil {
			fail(l, "export", err)
		}
		fmt.Println("Wrote", out)
		done(s)
	case "tui":
		runTUI(ctx, args, cfg, password, l, &ph)
	case "ui":
		var dir string
		if len(args) >= 3 {
			dir = args[2]
		}
		if err := ui.Run(dir); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func runTUI(ctx context.Context, args []string, cfg config.AppConfig, password string, l *slog.Logger, ph **storage.ProjectHandle) {
	if len(args) < 3 {
		fmt.Println("tui requires <dir>")
		os.Exit(2)
	}
	root, _ := filepath.Abs(args[2])
	ready := make(chan domain.PageID, 256)
	s, err := session.Open(ctx, session.Options{
		Root:     root,
		Config:   cfg,
		Password: password,
		OnReady:  func(id domain.PageID) { ready <- id },
		Watch:    true,
	})
	if err != nil {
		fail(l, "open", err)
	}
	*ph = s.Workspace.Project
	m := tui.New(tui.Options{
		Strip:    s.Strip,
		Remove:   func(ids []domain.PageID) error { return s.Workspace.Remove(ctx, ids) },
		Order:    s.Base,
		Reload:   func(order domain.OrderProvider) error { return s.Reload(ctx, strip.KeepSelection, order) },
		OnLeader: func(ev strip.LeaderChange) { s.Follow(ctx, ev) },
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	crash.Go(s.Workspace.Project, func() {
		for id := range ready {
			p.Send(tui.ThumbReadyMsg{ID: id})
		}
	})
	start := time.Now()
	_, runErr := p.Run()
	telemetry.Command("tui", s.Strip.Len(), time.Since(start))
	if err := s.Close(); err != nil {
		l.Warn("close failed", slog.Any("err", err))
	}
	telemetry.Flush(ctx)
	if runErr != nil {
		fail(l, "tui", runErr)
	}
}

func fail(l *slog.Logger, op string, err error) {
	l.Error(op+" failed", slog.Any("err", err))
	fmt.Println("Error:", err)
	if errors.Is(err, storage.ErrPageNotFound) {
		os.Exit(3)
	}
	os.Exit(1)
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

// parsePage reads "path[@N][:left|:right]". Relative paths are taken from the
// working directory.
func parsePage(arg string) (domain.PageID, error) {
	path, sub := arg, domain.SinglePage
	if i := strings.LastIndex(path, ":"); i > 0 {
		if s, err := domain.ParseSubPage(path[i+1:]); err == nil {
			path, sub = path[:i], s
		}
	}
	page := 0
	if i := strings.LastIndex(path, "@"); i > 0 {
		n, err := strconv.Atoi(path[i+1:])
		if err != nil || n < 0 {
			return domain.PageID{}, fmt.Errorf("bad page index in %q", arg)
		}
		path, page = path[:i], n
	}
	if path == "" {
		return domain.PageID{}, fmt.Errorf("empty page %q", arg)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.PageID{}, err
	}
	return domain.NewPageID(abs, page, sub), nil
}

func printStrip(s *strip.Strip) {
	current, hasCurrent := s.SelectionLeader()
	for i, c := range s.Composites() {
		mark := " "
		if hasCurrent && c.Page().ID == current.ID {
			mark = "*"
		}
		fmt.Printf("%s %3d  %s\n", mark, i+1, pageLine(c.Page()))
	}
	if s.Len() == 0 {
		fmt.Println("(no pages)")
	}
}

func pageLine(p domain.PageInfo) string {
	text := strip.CaptionText(p)
	if p.ID.Sub.IsHalf() {
		text += " [" + p.ID.Sub.String() + "]"
	}
	return text
}

// renderNow is a thumbnail factory that decodes synchronously. Pages that
// fail to decode keep their placeholder.
type renderNow struct{ max geom.Size }

func (r renderNow) Thumbnail(info domain.PageInfo, _ int) strip.Thumbnail {
	b, err := thumbs.Render(info, r.max)
	if err != nil {
		applog.WithComponent("cli").Debug("thumbnail skipped", slog.String("page", info.ID.String()), slog.Any("err", err))
		return nil
	}
	return b
}
