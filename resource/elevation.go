// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrRasterSize is returned when raster dimensions don't match the data.
var ErrRasterSize = errors.New("resource: raster dimensions do not match value count")

// ElevationRaster is a grid of elevation samples (meters) covering one
// tile, kept CPU-side for terrain queries and uploaded to the GPU by the
// terrain renderer. It implements [Resource]; cache accounting covers the
// float32 grid.
//
// Sample values are stored row-major with row 0 at the south edge,
// matching tile sector orientation.
type ElevationRaster struct {
	width    int
	height   int
	values   []float32
	released atomic.Bool
}

// NewElevationRaster creates a raster from row-major sample values.
func NewElevationRaster(width, height int, values []float32) (*ElevationRaster, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("%w: %dx%d grid, %d values", ErrRasterSize, width, height, len(values))
	}
	return &ElevationRaster{width: width, height: height, values: values}, nil
}

// Width returns the number of samples per row.
func (r *ElevationRaster) Width() int { return r.width }

// Height returns the number of rows.
func (r *ElevationRaster) Height() int { return r.height }

// Values returns the raw sample grid. The returned slice must not be
// modified.
func (r *ElevationRaster) Values() []float32 { return r.values }

// SizeBytes returns the resident size of the sample grid.
func (r *ElevationRaster) SizeBytes() uint64 {
	return uint64(len(r.values)) * 4
}

// Sample returns the bilinearly interpolated elevation at fractional
// grid coordinates (s, t) in [0, 1], where s runs west to east and t
// south to north. Out-of-range coordinates are clamped.
func (r *ElevationRaster) Sample(s, t float64) float32 {
	if r.released.Load() || len(r.values) == 0 {
		return 0
	}

	s = math.Min(math.Max(s, 0), 1)
	t = math.Min(math.Max(t, 0), 1)

	x := s * float64(r.width-1)
	y := t * float64(r.height-1)

	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, r.width-1), min(y0+1, r.height-1)
	fx, fy := float32(x-float64(x0)), float32(y-float64(y0))

	v00 := r.values[y0*r.width+x0]
	v10 := r.values[y0*r.width+x1]
	v01 := r.values[y1*r.width+x0]
	v11 := r.values[y1*r.width+x1]

	top := v00 + (v10-v00)*fx
	bot := v01 + (v11-v01)*fx
	return top + (bot-top)*fy
}

// IsReleased returns true if the raster has been released.
func (r *ElevationRaster) IsReleased() bool { return r.released.Load() }

// Release frees the sample grid. Idempotent.
func (r *ElevationRaster) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	r.values = nil
}
