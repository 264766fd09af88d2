/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// FontLibrary stores loaded OpenType fonts mapped by family and boldness.
type FontLibrary struct {
	fonts map[fontKey]*opentype.Font
}

type fontKey struct {
	family string
	bold   bool
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[fontKey]*opentype.Font)} }

// LoadTTF loads a font file into the library under the given family.
func (fl *FontLibrary) LoadTTF(family string, bold bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.Add(family, bold, data)
}

// Add parses raw font data into the library.
func (fl *FontLibrary) Add(family string, bold bool, data []byte) error {
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	fl.fonts[fontKey{family: family, bold: bold}] = f
	return nil
}

// find returns the exact match, or the other weight of the same family with
// emboldening requested.
func (fl *FontLibrary) find(spec FontSpec) (*opentype.Font, bool) {
	if fl == nil || fl.fonts == nil {
		return nil, false
	}
	if f, ok := fl.fonts[fontKey{family: spec.Family, bold: spec.Bold}]; ok {
		return f, false
	}
	if spec.Bold {
		if f, ok := fl.fonts[fontKey{family: spec.Family}]; ok {
			return f, true
		}
	}
	return nil, false
}

// OTProvider resolves FontSpec using a FontLibrary and falls back to another Provider.
type OTProvider struct {
	Lib      *FontLibrary
	DPI      float64 // default 72 if zero
	Fallback Provider
}

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePt <= 0 {
		spec.SizePt = 10
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	if f, synth := p.Lib.find(spec); f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: float64(spec.SizePt), DPI: dpi, Hinting: font.HintingFull})
		if err == nil {
			var out font.Face = face
			if synth {
				out = emboldened{Face: face}
			}
			return out, metricsOf(face)
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

// LabelProvider returns the provider for strip captions: the TTF at path when
// given, the basic bitmap face otherwise.
func LabelProvider(path string) (Provider, error) {
	if path == "" {
		return BasicProvider{}, nil
	}
	lib := NewFontLibrary()
	if err := lib.LoadTTF("", false, path); err != nil {
		return BasicProvider{}, err
	}
	return OTProvider{Lib: lib}, nil
}
