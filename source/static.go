// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/gogpu/globe"
	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
)

// StaticImage serves tiles cut from a single in-memory image draped over
// a fixed sector — the classic "surface image" overlay. Tiles outside
// the image's sector report ErrNotFound so consumers fall back to the
// layers underneath.
//
// Safe for concurrent use; the image is read-only after construction.
type StaticImage struct {
	name   string
	img    image.Image
	sector globe.Sector
	levels *pyramid.LevelSet
}

// NewStaticImage creates a static overlay source. The name must be
// unique among the static overlays of one globe; it namespaces the keys.
func NewStaticImage(levels *pyramid.LevelSet, name string, img image.Image, sector globe.Sector) *StaticImage {
	return &StaticImage{
		name:   "static/" + name,
		img:    img,
		sector: sector,
		levels: levels,
	}
}

// Name returns the source's namespace discriminator.
func (s *StaticImage) Name() string { return s.name }

// Sector returns the geographic region the image covers.
func (s *StaticImage) Sector() globe.Sector { return s.sector }

// Key returns the deterministic cache key for the address.
func (s *StaticImage) Key(a pyramid.Address) resource.Key {
	return resource.Key(fmt.Sprintf("%s/%s", s.name, a))
}

// Fetch cuts the tile's portion out of the image, rescaled to the tile
// size, and returns it PNG-encoded for the uniform decode stage.
func (s *StaticImage) Fetch(ctx context.Context, a pyramid.Address) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, classifyTransport(err)
	}
	if !s.levels.Valid(a) {
		return Payload{}, fmt.Errorf("%w: %v outside pyramid", ErrNotFound, a)
	}

	tileSector := s.levels.SectorFor(a)
	overlap := tileSector.Intersection(s.sector)
	if overlap.IsEmpty() {
		return Payload{}, fmt.Errorf("%w: %v outside overlay sector", ErrNotFound, a)
	}

	size := s.levels.TileSize()
	tile := image.NewNRGBA(image.Rect(0, 0, size, size))

	// Map the overlap into source pixels (image row 0 is the north
	// edge) and into tile pixels, then rescale the crop into place.
	srcB := s.img.Bounds()
	sw, sh := float64(srcB.Dx()), float64(srcB.Dy())

	srcX0 := srcB.Min.X + int((overlap.MinLon-s.sector.MinLon)/s.sector.DeltaLon()*sw)
	srcX1 := srcB.Min.X + int((overlap.MaxLon-s.sector.MinLon)/s.sector.DeltaLon()*sw)
	srcY0 := srcB.Min.Y + int((s.sector.MaxLat-overlap.MaxLat)/s.sector.DeltaLat()*sh)
	srcY1 := srcB.Min.Y + int((s.sector.MaxLat-overlap.MinLat)/s.sector.DeltaLat()*sh)

	dstX0 := int((overlap.MinLon - tileSector.MinLon) / tileSector.DeltaLon() * float64(size))
	dstX1 := int((overlap.MaxLon - tileSector.MinLon) / tileSector.DeltaLon() * float64(size))
	dstY0 := int((tileSector.MaxLat - overlap.MaxLat) / tileSector.DeltaLat() * float64(size))
	dstY1 := int((tileSector.MaxLat - overlap.MinLat) / tileSector.DeltaLat() * float64(size))

	draw.CatmullRom.Scale(tile,
		image.Rect(dstX0, dstY0, dstX1, dstY1),
		s.img,
		image.Rect(srcX0, srcY0, srcX1, srcY1),
		draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Payload{Bytes: buf.Bytes(), Kind: KindImage}, nil
}
