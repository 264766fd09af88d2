/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the page vocabulary shared by the strip, the page store and
// the front-ends. A page is identified by the image it was scanned into plus the
// half of that image it covers.

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SubPage designates which part of an image a page covers.
// The numeric order matters: it is the tie-break of PageID ordering.
type SubPage int

const (
	SinglePage SubPage = iota
	LeftPage
	RightPage
)

func (s SubPage) String() string {
	switch s {
	case LeftPage:
		return "left"
	case RightPage:
		return "right"
	default:
		return "single"
	}
}

// IsHalf reports whether the page is one half of a two-sided scan.
func (s SubPage) IsHalf() bool { return s == LeftPage || s == RightPage }

// ParseSubPage accepts "single", "left" or "right" (case-insensitive, empty means single).
func ParseSubPage(s string) (SubPage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return SinglePage, nil
	case "left":
		return LeftPage, nil
	case "right":
		return RightPage, nil
	}
	return SinglePage, fmt.Errorf("unknown sub page %q", s)
}

// ImageID references one image inside an image file. Page is the zero-based
// index of the image inside multi-page containers such as TIFF.
type ImageID struct {
	Path string `json:"image"`
	Page int    `json:"page,omitempty"`
}

// IsNull reports an unset image reference.
func (i ImageID) IsNull() bool { return i.Path == "" }

// Less orders images by path, then by page index.
func (i ImageID) Less(o ImageID) bool {
	if i.Path != o.Path {
		return i.Path < o.Path
	}
	return i.Page < o.Page
}

// FileName is the base name of the image file.
func (i ImageID) FileName() string { return filepath.Base(i.Path) }

// PageID is the stable identity of a page.
type PageID struct {
	Image ImageID
	Sub   SubPage
}

// NewPageID builds a page id.
func NewPageID(path string, page int, sub SubPage) PageID {
	return PageID{Image: ImageID{Path: path, Page: page}, Sub: sub}
}

// IsNull reports an unset page id.
func (p PageID) IsNull() bool { return p.Image.IsNull() }

// Less orders by image first and sub page second, so all halves of one image are adjacent
// and the single-page designation sorts before the halves.
func (p PageID) Less(o PageID) bool {
	if p.Image != o.Image {
		return p.Image.Less(o.Image)
	}
	return p.Sub < o.Sub
}

func (p PageID) String() string {
	if p.Image.Page > 0 {
		return fmt.Sprintf("%s#%d/%s", p.Image.Path, p.Image.Page, p.Sub)
	}
	return fmt.Sprintf("%s/%s", p.Image.Path, p.Sub)
}

// PageInfo is a page as published by the document model.
type PageInfo struct {
	ID            PageID
	MultiPageFile bool
}

// ImageID is shorthand for p.ID.Image.
func (p PageInfo) ImageID() ImageID { return p.ID.Image }

// Snapshot is an immutable view of the document page sequence.
type Snapshot struct {
	Pages   []PageInfo
	Current PageID
}

// NumPages returns the number of pages in the snapshot.
func (s Snapshot) NumPages() int { return len(s.Pages) }

// CurrentPage returns the page designated as current, if it is part of the snapshot.
func (s Snapshot) CurrentPage() (PageInfo, bool) {
	if s.Current.IsNull() {
		return PageInfo{}, false
	}
	for _, p := range s.Pages {
		if p.ID == s.Current {
			return p, true
		}
	}
	return PageInfo{}, false
}

// PageRange is a run of consecutive pages in display order.
type PageRange struct {
	FirstIndex int
	Pages      []PageID
}

// LastIndex is the display index of the final page of the range.
func (r PageRange) LastIndex() int { return r.FirstIndex + len(r.Pages) - 1 }

// BeforeOrAfter positions an inserted page relative to a reference image.
type BeforeOrAfter int

const (
	Before BeforeOrAfter = iota
	After
)

func (b BeforeOrAfter) String() string {
	if b == After {
		return "after"
	}
	return "before"
}
