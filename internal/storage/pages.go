/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"slices"

	"scanstrip/internal/domain"
)

var (
	// ErrPageNotFound is returned when a referenced page or image is not part of the document.
	ErrPageNotFound = errors.New("page not found")
	// ErrDuplicatePage is returned when a page is added twice.
	ErrDuplicatePage = errors.New("page already present")
	// ErrInvalidManifest is returned when a manifest fails schema validation.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// The functions below are the document rules shared by the manifest and the
// SQL page store. They never modify their input.

// InsertPage places info before or after the pages of image. Before with a
// null image appends. After skips every page of the reference image.
func InsertPage(pages []domain.PageInfo, info domain.PageInfo, where domain.BeforeOrAfter, image domain.ImageID) ([]domain.PageInfo, error) {
	if indexOf(pages, info.ID) >= 0 {
		return nil, fmt.Errorf("insert %s: %w", info.ID, ErrDuplicatePage)
	}
	at := len(pages)
	if !(where == domain.Before && image.IsNull()) {
		at = slices.IndexFunc(pages, func(p domain.PageInfo) bool { return p.ImageID() == image })
		if at < 0 {
			return nil, fmt.Errorf("insert relative to %s: %w", image.Path, ErrPageNotFound)
		}
		if where == domain.After {
			for at < len(pages) && pages[at].ImageID() == image {
				at++
			}
		}
	}
	return slices.Insert(slices.Clone(pages), at, info), nil
}

// RemovePages drops ids. A half whose sibling is removed becomes a single page.
func RemovePages(pages []domain.PageInfo, ids []domain.PageID) []domain.PageInfo {
	drop := make(map[domain.PageID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	singularize := map[domain.ImageID]bool{}
	out := make([]domain.PageInfo, 0, len(pages))
	for _, p := range pages {
		if drop[p.ID] {
			if p.ID.Sub.IsHalf() {
				singularize[p.ImageID()] = true
			}
			continue
		}
		out = append(out, p)
	}
	for i, p := range out {
		if singularize[p.ImageID()] && p.ID.Sub.IsHalf() && indexOf(out, domain.PageID{Image: p.ImageID()}) < 0 {
			out[i].ID.Sub = domain.SinglePage
		}
	}
	return out
}

// SplitPage replaces the single page of image by its left and right halves.
func SplitPage(pages []domain.PageInfo, image domain.ImageID) ([]domain.PageInfo, error) {
	i := indexOf(pages, domain.PageID{Image: image, Sub: domain.SinglePage})
	if i < 0 {
		return nil, fmt.Errorf("split %s: %w", image.Path, ErrPageNotFound)
	}
	left, right := pages[i], pages[i]
	left.ID.Sub = domain.LeftPage
	right.ID.Sub = domain.RightPage
	out := slices.Clone(pages)
	out[i] = left
	return slices.Insert(out, i+1, right), nil
}

func indexOf(pages []domain.PageInfo, id domain.PageID) int {
	return slices.IndexFunc(pages, func(p domain.PageInfo) bool { return p.ID == id })
}

// Contains reports whether id is one of pages.
func Contains(pages []domain.PageInfo, id domain.PageID) bool { return indexOf(pages, id) >= 0 }
