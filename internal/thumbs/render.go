/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package thumbs produces page thumbnails for the strip. Decoding and scaling
// happen on a small worker pool; the strip only ever sees finished bitmaps.
package thumbs

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"scanstrip/internal/domain"
	"scanstrip/internal/geom"
)

// ErrUnsupportedPage is returned for images beyond the first one of a multi-page file.
var ErrUnsupportedPage = errors.New("only the first image of a multi-page file can be decoded")

// Bitmap is a scaled thumbnail. It satisfies strip.ImageThumbnail.
type Bitmap struct {
	img  *image.RGBA
	size geom.Size
}

func (b *Bitmap) Size() geom.Size    { return b.size }
func (b *Bitmap) Image() image.Image { return b.img }

// Render decodes the image of a page, keeps the half the page covers and
// scales it to fit into maxSize. Images are never enlarged.
func Render(info domain.PageInfo, maxSize geom.Size) (*Bitmap, error) {
	img := info.ImageID()
	if img.Page > 0 {
		return nil, fmt.Errorf("%s page %d: %w", img.Path, img.Page, ErrUnsupportedPage)
	}
	src, err := loadImage(img.Path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", img.Path, err)
	}
	return scale(cropHalf(src, info.ID.Sub), maxSize)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func cropHalf(src image.Image, sub domain.SubPage) image.Image {
	b := src.Bounds()
	mid := b.Min.X + b.Dx()/2
	var r image.Rectangle
	switch sub {
	case domain.LeftPage:
		r = image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y)
	case domain.RightPage:
		r = image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y)
	default:
		return src
	}
	if si, ok := src.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

func scale(src image.Image, maxSize geom.Size) (*Bitmap, error) {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, errors.New("empty image")
	}
	ratio := math.Min(float64(maxSize.W)/float64(srcW), float64(maxSize.H)/float64(srcH))
	if ratio > 1 || ratio <= 0 {
		ratio = 1
	}
	w := int(math.Max(1, math.Round(float64(srcW)*ratio)))
	h := int(math.Max(1, math.Round(float64(srcH)*ratio)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// ApproxBiLinear is plenty for thumbnails and much faster than CatmullRom.
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return &Bitmap{img: dst, size: geom.S(float32(w), float32(h))}, nil
}

// EncodePNG serializes the bitmap for the disk cache.
func (b *Bitmap) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePNG restores a bitmap written by EncodePNG.
func DecodePNG(data []byte) (*Bitmap, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	sb := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
	return &Bitmap{img: dst, size: geom.S(float32(sb.Dx()), float32(sb.Dy()))}, nil
}
