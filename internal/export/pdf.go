/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders the strip scene to a PDF contact sheet.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
	"scanstrip/internal/strip"
	"scanstrip/internal/version"
)

// ErrNothingToExport is returned when the strip (or its selection) is empty.
var ErrNothingToExport = errors.New("nothing to export")

// PDFOptions controls PDF export behavior.
// One scene unit maps to one point and the whole strip goes onto a single
// tall page, so positions in the PDF match the scene.
type PDFOptions struct {
	Title string
	// SelectedOnly exports the selected ranges only, stacked without gaps.
	SelectedOnly bool
	Margin       float64 // defaults to 18pt
	Highlight    color.RGBA
	// NoCompression leaves page streams readable, for debugging.
	NoCompression bool
}

// sheetItem is one visual placed on the sheet. Shift moves it from its scene position.
type sheetItem struct {
	c     *strip.Composite
	shift geom.Pt
}

// sheetLayout picks the visuals to export and returns them with the bounds of
// the exported area in scene coordinates (after shifting).
func sheetLayout(s *strip.Strip, selectedOnly bool, spacing float32) ([]sheetItem, geom.Rect) {
	var items []sheetItem
	var bounds geom.Rect
	add := func(c *strip.Composite, shift geom.Pt) {
		items = append(items, sheetItem{c: c, shift: shift})
		bounds = bounds.Union(c.SceneRect().Translate(shift))
	}
	if !selectedOnly {
		for _, c := range s.Composites() {
			add(c, geom.Pt{})
		}
		return items, bounds
	}
	var cursor float32
	first := true
	for _, r := range s.SelectedRanges() {
		for _, id := range r.Pages {
			c := s.Composite(id)
			if c == nil {
				continue
			}
			sr := c.SceneRect()
			if first {
				cursor, first = sr.Top(), false
			}
			add(c, geom.P(0, cursor-sr.Top()))
			cursor += sr.H + spacing
		}
	}
	return items, bounds
}

// StripPDF writes the strip to outPath, creating the directory if needed.
func StripPDF(s *strip.Strip, outPath string, opt PDFOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WriteStripPDF(s, f, opt); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WriteStripPDF renders the strip into w.
func WriteStripPDF(s *strip.Strip, w io.Writer, opt PDFOptions) error {
	if s == nil {
		return errors.New("strip is nil")
	}
	margin := opt.Margin
	if margin <= 0 {
		margin = 18
	}
	hl := opt.Highlight
	if hl == (color.RGBA{}) {
		hl = color.RGBA{R: 204, G: 228, B: 247, A: 255}
	}
	items, bounds := sheetLayout(s, opt.SelectedOnly, strip.DefaultSpacing)
	if len(items) == 0 {
		return ErrNothingToExport
	}

	pageW := float64(bounds.W) + 2*margin
	pageH := float64(bounds.H) + 2*margin
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetCompression(!opt.NoCompression)
	pdf.SetAutoPageBreak(false, 0)
	if opt.Title != "" {
		pdf.SetTitle(opt.Title, true)
	}
	pdf.SetCreator("scanstrip "+version.String(), true)
	pdf.AddPage()

	// scene -> page
	origin := geom.P(float32(margin)-bounds.X, float32(margin)-bounds.Y)
	toPage := func(r geom.Rect, shift geom.Pt) (x, y, w, h float64) {
		r = r.Translate(shift).Translate(origin)
		return float64(r.X), float64(r.Y), float64(r.W), float64(r.H)
	}

	for i, it := range items {
		c := it.c
		if c.Selected() {
			pdf.SetFillColor(int(hl.R), int(hl.G), int(hl.B))
			x, y, w, h := toPage(c.SceneRect(), it.shift)
			pdf.Rect(x, y, w, h, "F")
		}
		x, y, w, h := toPage(c.ThumbRect(), it.shift)
		if err := drawThumbnail(pdf, fmt.Sprintf("thumb-%d", i), c, x, y, w, h); err != nil {
			return err
		}
		drawLabel(pdf, c, it.shift.Add(origin))
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawThumbnail(pdf *gofpdf.Fpdf, name string, c *strip.Composite, x, y, w, h float64) error {
	if it, ok := c.Thumbnail().(strip.ImageThumbnail); ok {
		var buf bytes.Buffer
		if err := png.Encode(&buf, it.Image()); err != nil {
			return fmt.Errorf("encode thumbnail: %w", err)
		}
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opt, &buf)
		pdf.ImageOptions(name, x, y, w, h, false, opt, 0, "")
		return pdf.Error()
	}
	// placeholder
	pdf.SetDrawColor(160, 160, 160)
	pdf.SetLineWidth(1)
	pdf.Rect(x, y, w, h, "D")
	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetTextColor(160, 160, 160)
	q := "?"
	pdf.Text(x+(w-pdf.GetStringWidth(q))/2, y+h/2+11, q)
	return nil
}

func drawLabel(pdf *gofpdf.Fpdf, c *strip.Composite, offset geom.Pt) {
	lg := c.Label()
	org := c.LabelOrigin().Add(offset)
	r := lg.NormalRect
	style := ""
	switch {
	case lg.BoldVisible():
		r, style = lg.BoldRect, "B"
		pdf.SetTextColor(0, 0, 0)
	case lg.Highlighted():
		pdf.SetTextColor(0, 84, 166)
	default:
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.SetFont("Helvetica", style, 9)
	r = r.Translate(org)
	// right-aligned to the measured rect, baseline near its bottom
	tw := pdf.GetStringWidth(lg.Text)
	pdf.Text(float64(r.Right())-tw, float64(r.Bottom())-3, lg.Text)

	if lg.IconRect.IsNull() {
		return
	}
	ir := lg.IconRect.Translate(org)
	pdf.SetDrawColor(90, 90, 90)
	pdf.SetLineWidth(0.5)
	pdf.Rect(float64(ir.X), float64(ir.Y), float64(ir.W), float64(ir.H), "D")
	mark := "L"
	if lg.Sub == domain.RightPage {
		mark = "R"
	}
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(90, 90, 90)
	pdf.Text(float64(ir.X)+(float64(ir.W)-pdf.GetStringWidth(mark))/2, float64(ir.Bottom())-3, mark)
}
