/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"path/filepath"
	"strings"

	"github.com/maruel/natural"
)

// OrderProvider supplies a strict weak ordering of pages used when a custom
// sort order is active. Providers may only be local comparators: nothing but
// pairwise Precedes calls is assumed.
type OrderProvider interface {
	Precedes(a, b PageID) bool
}

// Compare adapts an OrderProvider to the three-way comparator expected by
// slices.SortStableFunc. Pages that do not precede each other compare equal.
func Compare(p OrderProvider) func(a, b PageID) int {
	return func(a, b PageID) int {
		switch {
		case p.Precedes(a, b):
			return -1
		case p.Precedes(b, a):
			return 1
		default:
			return 0
		}
	}
}

// ByID orders pages by their identity.
type ByID struct{}

func (ByID) Precedes(a, b PageID) bool { return a.Less(b) }

// Reversed inverts another provider.
type Reversed struct{ Of OrderProvider }

func (r Reversed) Precedes(a, b PageID) bool { return r.Of.Precedes(b, a) }

// NaturalOrder sorts by file name using natural ordering ("p2" < "p10"),
// keeping the halves of an image together.
type NaturalOrder struct{}

func (NaturalOrder) Precedes(a, b PageID) bool {
	na := strings.ToLower(filepath.Base(a.Image.Path))
	nb := strings.ToLower(filepath.Base(b.Image.Path))
	if na != nb {
		switch {
		case natural.Less(na, nb):
			return true
		case natural.Less(nb, na):
			return false
		}
		// "p02" and "p2" are equal by value
		return na < nb
	}
	if a.Image.Page != b.Image.Page {
		return a.Image.Page < b.Image.Page
	}
	if a.Image.Path != b.Image.Path {
		return a.Image.Path < b.Image.Path
	}
	return a.Sub < b.Sub
}
