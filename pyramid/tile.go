package pyramid

import (
	"github.com/gogpu/globe"
	"github.com/gogpu/globe/internal/lru"
)

// Tile pairs an address with the geometry derived from it: the sector it
// covers and the ground resolution of its level. Tiles are created lazily
// when a traversal first visits an address and memoized per level, so
// repeated visits avoid recomputation.
//
// Tile is immutable after creation.
type Tile struct {
	Address    Address
	Sector     globe.Sector
	Resolution float64 // degrees of latitude per pixel
}

// tileMemo is the per-level memoization cache for Tile values.
type tileMemo struct {
	memo *lru.Memo[Address, *Tile]
}

func newTileMemo(softLimit int) *tileMemo {
	return &tileMemo{memo: lru.NewMemo[Address, *Tile](softLimit)}
}

func (m *tileMemo) Clear() { m.memo.Clear() }

// Tile returns the memoized Tile for the address, creating it on first
// visit. Returns nil for addresses outside the pyramid.
func (ls *LevelSet) Tile(a Address) *Tile {
	if !ls.Valid(a) {
		return nil
	}
	return ls.tiles[a.Level].memo.GetOrCreate(a, func() *Tile {
		return &Tile{
			Address:    a,
			Sector:     ls.SectorFor(a),
			Resolution: ls.Resolution(a.Level),
		}
	})
}
