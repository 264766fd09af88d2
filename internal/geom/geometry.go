/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package geom holds the small float32 geometry vocabulary shared by the strip
// core and its canvas adapters. The y axis grows downwards, like every UI toolkit
// the strip is rendered with.
package geom

// Pt is a 2D point.
type Pt struct{ X, Y float32 }

// P is shorthand for Pt{X: x, Y: y}.
func P(x, y float32) Pt { return Pt{X: x, Y: y} }

// Add returns p translated by o.
func (p Pt) Add(o Pt) Pt { return Pt{X: p.X + o.X, Y: p.Y + o.Y} }

// Sub returns p - o.
func (p Pt) Sub(o Pt) Pt { return Pt{X: p.X - o.X, Y: p.Y - o.Y} }

// Size is a width/height pair.
type Size struct{ W, H float32 }

// S is shorthand for Size{W: w, H: h}.
func S(w, h float32) Size { return Size{W: w, H: h} }

// IsZero reports whether both extents are zero.
func (s Size) IsZero() bool { return s.W == 0 && s.H == 0 }

// Rect is an axis-aligned rectangle defined by its top-left corner and size.
type Rect struct {
	X, Y float32
	W, H float32
}

// R builds a rect from position and size.
func R(x, y, w, h float32) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// RectFromSize places a size at the origin.
func RectFromSize(s Size) Rect { return Rect{W: s.W, H: s.H} }

func (r Rect) Left() float32   { return r.X }
func (r Rect) Top() float32    { return r.Y }
func (r Rect) Right() float32  { return r.X + r.W }
func (r Rect) Bottom() float32 { return r.Y + r.H }
func (r Rect) Min() Pt         { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt         { return Pt{r.X + r.W, r.Y + r.H} }
func (r Rect) Size() Size      { return Size{r.W, r.H} }
func (r Rect) Center() Pt      { return Pt{r.X + r.W/2, r.Y + r.H/2} }

// IsNull reports a rect with zero width and zero height. Null rects are ignored by Union.
func (r Rect) IsNull() bool { return r.W == 0 && r.H == 0 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Translate moves the rect by d.
func (r Rect) Translate(d Pt) Rect {
	r.X += d.X
	r.Y += d.Y
	return r
}

// Adjust moves the left/top edges by dx1/dy1 and the right/bottom edges by dx2/dy2.
func (r Rect) Adjust(dx1, dy1, dx2, dy2 float32) Rect {
	return Rect{X: r.X + dx1, Y: r.Y + dy1, W: r.W - dx1 + dx2, H: r.H - dy1 + dy2}
}

// Inset returns a rectangle inset by dx,dy on all sides (negative grows).
func (r Rect) Inset(dx, dy float32) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// WithTop moves the top edge to y, keeping the bottom edge.
func (r Rect) WithTop(y float32) Rect {
	b := r.Bottom()
	r.Y = y
	r.H = b - y
	return r
}

// WithBottom moves the bottom edge to y, keeping the top edge.
func (r Rect) WithBottom(y float32) Rect {
	r.H = y - r.Y
	return r
}

// MoveCenter keeps the size and centres the rect on c.
func (r Rect) MoveCenter(c Pt) Rect {
	r.X = c.X - r.W/2
	r.Y = c.Y - r.H/2
	return r
}

// Union returns the minimal rect containing both. A null operand yields the other one.
func (r Rect) Union(o Rect) Rect {
	if r.IsNull() {
		return o
	}
	if o.IsNull() {
		return r
	}
	minX := min(r.X, o.X)
	minY := min(r.Y, o.Y)
	maxX := max(r.X+r.W, o.X+o.W)
	maxY := max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
