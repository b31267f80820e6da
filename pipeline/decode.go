// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"math"

	// Tile imagery arrives as PNG or JPEG.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/gogpu/globe/source"
)

// Elevation is a decoded elevation grid awaiting upload, row-major with
// row 0 at the south edge.
type Elevation struct {
	Width  int
	Height int
	Values []float32
}

// decodeImage decodes encoded image bytes into a tightly packed NRGBA
// pixmap scaled to tileSize x tileSize. Runs on a worker; touches no GPU
// state.
func decodeImage(data []byte, tileSize int) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrDecode, err)
	}

	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && b.Dx() == tileSize && b.Dy() == tileSize {
		return nrgba, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// decodeElevation decodes a raw big-endian elevation grid. The grid must
// be square; anything else is a permanent decode failure.
func decodeElevation(data []byte, kind source.Kind) (*Elevation, error) {
	var bps int
	switch kind {
	case source.KindElevationInt16:
		bps = 2
	case source.KindElevationFloat32:
		bps = 4
	default:
		return nil, fmt.Errorf("%w: kind %v is not an elevation kind", source.ErrDecode, kind)
	}

	if len(data) == 0 || len(data)%bps != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a %d-byte sample grid", source.ErrDecode, len(data), bps)
	}

	count := len(data) / bps
	size := int(math.Sqrt(float64(count)))
	if size*size != count {
		return nil, fmt.Errorf("%w: %d samples is not a square grid", source.ErrDecode, count)
	}

	values := make([]float32, count)
	switch kind {
	case source.KindElevationInt16:
		for i := range values {
			v := int16(binary.BigEndian.Uint16(data[i*2:])) //nolint:gosec // G115: intentional sign reinterpretation
			values[i] = float32(v)
		}
	case source.KindElevationFloat32:
		for i := range values {
			values[i] = math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
		}
	}

	return &Elevation{Width: size, Height: size, Values: values}, nil
}
