/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Caption measurement for the thumbnail strip. Labels are single lines, so
// measurement is all the strip needs; painting is left to the front-ends.

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"scanstrip/internal/geom"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name, empty selects the default face
	SizePt float32
	Bold   bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// Height is the line height without the gap.
func (m Metrics) Height() float32 { return m.Ascent + m.Descent }

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
// Bold is synthesized by widening every advance by one pixel.
type BasicProvider struct{}

func (BasicProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	var f font.Face = basicfont.Face7x13
	if spec.Bold {
		f = emboldened{Face: f}
	}
	return f, metricsOf(f)
}

type emboldened struct{ font.Face }

func (e emboldened) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	a, ok := e.Face.GlyphAdvance(r)
	return a + fixed.I(1), ok
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s).Ceil())
}

// MeasureLine returns the size of a single line of text.
func MeasureLine(provider Provider, spec FontSpec, text string) geom.Size {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	d := &font.Drawer{Face: face}
	return geom.S(advance(d, text), met.Height())
}
