// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layer

import (
	"github.com/gogpu/globe"
	"github.com/gogpu/globe/cache"
	"github.com/gogpu/globe/pipeline"
	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
	"github.com/gogpu/globe/source"
)

// RasterTile is one entry of a frame's elevation set: the tile geometry
// and the resident raster (possibly an ancestor's) covering it.
type RasterTile struct {
	Tile *pyramid.Tile

	// Raster is the resident elevation grid. Borrowed from the cache;
	// valid for this frame only.
	Raster *resource.ElevationRaster

	// FromAncestor is true when Raster belongs to a coarser ancestor.
	FromAncestor bool
}

// ElevationLayer streams an elevation source through the shared cache
// and pipeline for terrain rendering and height queries.
//
// Render-thread only.
type ElevationLayer struct {
	name   string
	levels *pyramid.LevelSet
	cache  *cache.Cache
	pipe   *pipeline.Pipeline
	src    source.TileSource

	states map[pyramid.Address]*tileState
	frame  uint64
}

func newElevationLayer(levels *pyramid.LevelSet, c *cache.Cache, p *pipeline.Pipeline, src source.TileSource) *ElevationLayer {
	return &ElevationLayer{
		name:   src.Name(),
		levels: levels,
		cache:  c,
		pipe:   p,
		src:    src,
		states: make(map[pyramid.Address]*tileState),
	}
}

// Name returns the layer name (the source's namespace).
func (l *ElevationLayer) Name() string { return l.name }

func (l *ElevationLayer) beginFrame(frame uint64) {
	l.frame = frame
	pruneStates(l.states, frame)
}

// handleCompletion uploads one drained elevation grid into the cache.
func (l *ElevationLayer) handleCompletion(c pipeline.Completion) {
	st := l.stateFor(c.Address)
	if c.Err != nil || c.Elevation == nil {
		st.state = StateDirty
		return
	}

	raster, err := resource.NewElevationRaster(c.Elevation.Width, c.Elevation.Height, c.Elevation.Values)
	if err != nil {
		st.state = StateDirty
		return
	}
	if err := l.cache.Put(c.Key, raster, raster.SizeBytes()); err != nil {
		raster.Release()
		st.state = StateDirty
		globe.Logger().Warn("layer: upload rejected", "layer", l.name, "key", c.Key, "err", err)
		return
	}
	st.state = StateClean
}

// Pick returns the elevation tile set for the view, requesting absent
// rasters and falling back to resident ancestors like the imagery
// layer. Tiles with nothing resident are omitted; terrain under them
// renders at zero height until data arrives.
func (l *ElevationLayer) Pick(view globe.Sector, targetResolution float64) []RasterTile {
	addrs := l.levels.TilesForSector(view, targetResolution)
	if len(addrs) == 0 {
		return nil
	}

	out := make([]RasterTile, 0, len(addrs))
	for _, a := range addrs {
		if rt, ok := l.rasterFor(a); ok {
			out = append(out, rt)
		}
	}
	return out
}

func (l *ElevationLayer) rasterFor(a pyramid.Address) (RasterTile, bool) {
	tile := l.levels.Tile(a)
	st := l.stateFor(a)

	if res, ok := l.cache.Get(l.src.Key(a)); ok {
		if raster, ok := res.(*resource.ElevationRaster); ok {
			st.state = StateClean
			return RasterTile{Tile: tile, Raster: raster}, true
		}
	}

	switch l.pipe.Request(a, l.src) {
	case pipeline.StateFailed:
		st.state = StateDirty
	default:
		st.state = StatePending
	}

	for level := a.Level - 1; level >= 0; level-- {
		res, ok := l.cache.Get(l.src.Key(a.Ancestor(level)))
		if !ok {
			continue
		}
		raster, ok := res.(*resource.ElevationRaster)
		if !ok {
			continue
		}
		return RasterTile{Tile: l.levels.Tile(a), Raster: raster, FromAncestor: true}, true
	}
	return RasterTile{}, false
}

// ElevationAt returns the elevation in meters at the given point from
// the finest resident raster covering it. Returns (0, false) when no
// raster is resident. Resident lookups touch cache recency like any
// other read.
func (l *ElevationLayer) ElevationAt(lat, lon float64) (float32, bool) {
	for level := l.levels.NumLevels() - 1; level >= 0; level-- {
		a, ok := l.levels.AddressAt(level, lat, lon)
		if !ok {
			return 0, false
		}
		res, ok := l.cache.Get(l.src.Key(a))
		if !ok {
			continue
		}
		raster, ok := res.(*resource.ElevationRaster)
		if !ok {
			continue
		}

		sector := l.levels.SectorFor(a)
		s := (lon - sector.MinLon) / sector.DeltaLon()
		t := (lat - sector.MinLat) / sector.DeltaLat()
		return raster.Sample(s, t), true
	}
	return 0, false
}

// State returns the entity state of the addressed tile.
func (l *ElevationLayer) State(a pyramid.Address) EntityState {
	if st, ok := l.states[a]; ok {
		return st.state
	}
	return StateDirty
}

func (l *ElevationLayer) stateFor(a pyramid.Address) *tileState {
	st, ok := l.states[a]
	if !ok {
		st = &tileState{}
		l.states[a] = st
	}
	st.lastVisited = l.frame
	return st
}
