// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package layer provides the frame-driven consumers of the tile core:
// imagery and elevation layers that pick a renderable tile set each
// frame, falling back to coarser ancestor tiles while finer data loads,
// and the Globe facade that owns the cache and pipeline lifecycle.
//
// Everything in this package runs on the render thread. A layer never
// blocks on retrieval: a missing tile is requested and the nearest
// resident ancestor is drawn instead; if none is resident, the tile is
// simply skipped this frame.
package layer

import (
	"github.com/gogpu/globe"
	"github.com/gogpu/globe/cache"
	"github.com/gogpu/globe/pipeline"
	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
	"github.com/gogpu/globe/source"
)

// EntityState is the explicit per-tile lifecycle replacing scattered
// dirty flags: a tile entity is Clean while its resource is resident,
// Pending while retrieval is under way, and Dirty when its data is
// absent and not awaited (never visited, evicted, or permanently
// failed). Transitions are driven by frame-number comparison during
// Pick, not by ad hoc booleans.
type EntityState uint8

const (
	// StateDirty means the tile's resource is absent and not awaited.
	StateDirty EntityState = iota

	// StatePending means retrieval is queued or in flight.
	StatePending

	// StateClean means the tile's resource is resident.
	StateClean
)

// String returns the state name.
func (s EntityState) String() string {
	switch s {
	case StateDirty:
		return "Dirty"
	case StatePending:
		return "Pending"
	case StateClean:
		return "Clean"
	default:
		return "Unknown"
	}
}

// tileState tracks one visited tile entity. lastVisited lets stale
// entries age out; render-thread only, so no locking.
type tileState struct {
	state       EntityState
	lastVisited uint64
}

// stateRetainFrames is how many frames an unvisited tile keeps its
// state entry before beginFrame prunes it. Long enough to outlive the
// pipeline's stale-request sweep.
const stateRetainFrames = 120

// pruneStates drops entries not visited within stateRetainFrames, so a
// long session does not accumulate state for every tile ever viewed.
func pruneStates(states map[pyramid.Address]*tileState, frame uint64) {
	if frame <= stateRetainFrames {
		return
	}
	cutoff := frame - stateRetainFrames
	for a, st := range states {
		if st.lastVisited < cutoff {
			delete(states, a)
		}
	}
}

// TexRect is the sub-rectangle of a texture to sample, in normalized
// coordinates with T running north to south (image convention).
// The full texture is {0, 0, 1, 1}; an ancestor fallback samples the
// quadrant stack covering the descendant tile.
type TexRect struct {
	S0, T0 float64
	S1, T1 float64
}

// FullTexRect samples the entire texture.
var FullTexRect = TexRect{S0: 0, T0: 0, S1: 1, T1: 1}

// Drawable is one entry of a frame's renderable tile set: the tile
// geometry to cover and the resident texture (possibly an ancestor's)
// to sample.
type Drawable struct {
	// Tile is the tile whose sector is being covered.
	Tile *pyramid.Tile

	// Texture is the resident texture to sample. Borrowed from the
	// cache; valid for this frame only.
	Texture *resource.Texture

	// TexCoords selects the texture sub-rectangle covering the tile.
	TexCoords TexRect

	// FromAncestor is true when Texture belongs to a coarser ancestor
	// still standing in for the tile's own data.
	FromAncestor bool
}

// ImageLayer streams one imagery source through the shared cache and
// pipeline and picks a renderable tile set each frame.
//
// Render-thread only, like every consumer of the cache.
type ImageLayer struct {
	name   string
	levels *pyramid.LevelSet
	cache  *cache.Cache
	pipe   *pipeline.Pipeline
	src    source.TileSource

	states map[pyramid.Address]*tileState
	frame  uint64
}

func newImageLayer(levels *pyramid.LevelSet, c *cache.Cache, p *pipeline.Pipeline, src source.TileSource) *ImageLayer {
	return &ImageLayer{
		name:   src.Name(),
		levels: levels,
		cache:  c,
		pipe:   p,
		src:    src,
		states: make(map[pyramid.Address]*tileState),
	}
}

// Name returns the layer name (the source's namespace).
func (l *ImageLayer) Name() string { return l.name }

// Source returns the layer's tile source.
func (l *ImageLayer) Source() source.TileSource { return l.src }

// beginFrame advances the layer's frame counter and ages out tile
// state not visited recently.
func (l *ImageLayer) beginFrame(frame uint64) {
	l.frame = frame
	pruneStates(l.states, frame)
}

// handleCompletion uploads one drained retrieval result into the cache.
// Called by Globe.BeginFrame on the render thread.
func (l *ImageLayer) handleCompletion(c pipeline.Completion) {
	st := l.stateFor(c.Address)
	if c.Err != nil || c.Image == nil {
		// Permanent failure: the tile stays dirty and consumers keep
		// falling back to an ancestor indefinitely.
		st.state = StateDirty
		return
	}

	tex, err := resource.NewTextureFromImage(c.Image, string(c.Key))
	if err != nil {
		st.state = StateDirty
		return
	}
	if err := l.cache.Put(c.Key, tex, tex.SizeBytes()); err != nil {
		// Cache overflow: render without this resource.
		tex.Release()
		st.state = StateDirty
		globe.Logger().Warn("layer: upload rejected", "layer", l.name, "key", c.Key, "err", err)
		return
	}
	st.state = StateClean
}

// Pick returns the renderable tile set for the view: one Drawable per
// tile covering the sector at the target resolution, each backed by the
// tile's own texture or its nearest resident ancestor. Missing tiles
// are requested from the pipeline; tiles with nothing resident at all
// are omitted.
func (l *ImageLayer) Pick(view globe.Sector, targetResolution float64) []Drawable {
	addrs := l.levels.TilesForSector(view, targetResolution)
	if len(addrs) == 0 {
		return nil
	}

	out := make([]Drawable, 0, len(addrs))
	for _, a := range addrs {
		if d, ok := l.drawableFor(a); ok {
			out = append(out, d)
		}
	}
	return out
}

// drawableFor resolves one address against the cache, requesting absent
// tiles and falling back to the nearest resident ancestor.
func (l *ImageLayer) drawableFor(a pyramid.Address) (Drawable, bool) {
	tile := l.levels.Tile(a)
	st := l.stateFor(a)

	if res, ok := l.cache.Get(l.src.Key(a)); ok {
		if tex, ok := res.(*resource.Texture); ok {
			st.state = StateClean
			return Drawable{Tile: tile, Texture: tex, TexCoords: FullTexRect}, true
		}
	}

	// Absent: request unless permanently failed, then fall back.
	switch l.pipe.Request(a, l.src) {
	case pipeline.StateFailed:
		st.state = StateDirty
	default:
		st.state = StatePending
	}

	for level := a.Level - 1; level >= 0; level-- {
		anc := a.Ancestor(level)
		res, ok := l.cache.Get(l.src.Key(anc))
		if !ok {
			continue
		}
		tex, ok := res.(*resource.Texture)
		if !ok {
			continue
		}
		return Drawable{
			Tile:         tile,
			Texture:      tex,
			TexCoords:    texRectWithin(a, anc),
			FromAncestor: true,
		}, true
	}
	return Drawable{}, false
}

// State returns the entity state of the addressed tile.
// Tiles never visited are Dirty.
func (l *ImageLayer) State(a pyramid.Address) EntityState {
	if st, ok := l.states[a]; ok {
		return st.state
	}
	return StateDirty
}

// stateFor returns the tile's state entry, creating it on first visit.
func (l *ImageLayer) stateFor(a pyramid.Address) *tileState {
	st, ok := l.states[a]
	if !ok {
		st = &tileState{}
		l.states[a] = st
	}
	st.lastVisited = l.frame
	return st
}

// texRectWithin returns the sub-rectangle of the ancestor's texture
// covering the descendant tile. T runs north to south, so the texture
// row containing the descendant counts from the ancestor's north edge.
func texRectWithin(a, anc pyramid.Address) TexRect {
	shift := uint(a.Level - anc.Level)
	n := 1 << shift

	subCol := a.Column - anc.Column<<shift
	subRow := a.Row - anc.Row<<shift
	rowFromNorth := n - 1 - subRow

	return TexRect{
		S0: float64(subCol) / float64(n),
		T0: float64(rowFromNorth) / float64(n),
		S1: float64(subCol+1) / float64(n),
		T1: float64(rowFromNorth+1) / float64(n),
	}
}
