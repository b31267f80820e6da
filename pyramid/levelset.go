package pyramid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gogpu/globe"
)

// LevelSet errors.
var (
	// ErrInvalidConfig is returned when a LevelSetConfig cannot describe
	// a pyramid.
	ErrInvalidConfig = errors.New("pyramid: invalid level set configuration")

	// ErrAddressOutOfRange is returned for addresses outside the pyramid.
	ErrAddressOutOfRange = errors.New("pyramid: address out of range")
)

// Default pyramid parameters. The defaults describe the classic global
// equirectangular pyramid: level 0 divides the full sphere into 90-degree
// tiles (2 rows by 4 columns of 256 px).
const (
	// DefaultTileSize is the default tile edge length in pixels.
	DefaultTileSize = 256

	// DefaultLevel0Rows is the default number of rows at level 0.
	DefaultLevel0Rows = 2

	// DefaultLevel0Columns is the default number of columns at level 0.
	DefaultLevel0Columns = 4

	// DefaultNumLevels is the default number of pyramid levels.
	DefaultNumLevels = 16

	// DefaultTileMemoSize is the soft limit of the per-level tile
	// memoization cache.
	DefaultTileMemoSize = 512
)

// LevelSetConfig describes the geometry of a tile pyramid.
// Zero fields fall back to the package defaults.
type LevelSetConfig struct {
	// Extent is the geographic region covered by every level.
	// Defaults to globe.FullSphere. Must be an ordinary (non
	// antimeridian-crossing) sector with positive area.
	Extent globe.Sector

	// TileSize is the tile edge length in pixels.
	TileSize int

	// Level0Rows and Level0Columns divide the extent at the coarsest
	// level. Each subsequent level doubles both counts.
	Level0Rows    int
	Level0Columns int

	// NumLevels is the number of levels in the pyramid.
	NumLevels int

	// TileMemoSize is the soft limit of each level's tile memoization
	// cache. Defaults to DefaultTileMemoSize.
	TileMemoSize int
}

// LevelSet describes a tile pyramid: number of levels, tile pixel size,
// geographic extent and per-level resolution. It computes which tiles
// intersect a viewing sector at a given target resolution, and memoizes
// Tile values in a small per-level LRU so repeated traversals avoid
// recomputation.
//
// LevelSet is safe for concurrent use; all geometry methods are pure and
// the tile memos are internally synchronized.
type LevelSet struct {
	extent    globe.Sector
	tileSize  int
	rows0     int
	cols0     int
	numLevels int

	tiles []*tileMemo // one memo per level
}

// NewLevelSet creates a pyramid description from the given configuration.
func NewLevelSet(cfg LevelSetConfig) (*LevelSet, error) {
	if cfg.Extent == (globe.Sector{}) {
		cfg.Extent = globe.FullSphere
	}
	if cfg.TileSize == 0 {
		cfg.TileSize = DefaultTileSize
	}
	if cfg.Level0Rows == 0 {
		cfg.Level0Rows = DefaultLevel0Rows
	}
	if cfg.Level0Columns == 0 {
		cfg.Level0Columns = DefaultLevel0Columns
	}
	if cfg.NumLevels == 0 {
		cfg.NumLevels = DefaultNumLevels
	}
	if cfg.TileMemoSize == 0 {
		cfg.TileMemoSize = DefaultTileMemoSize
	}

	switch {
	case cfg.Extent.CrossesAntimeridian():
		return nil, fmt.Errorf("%w: extent must not cross the antimeridian", ErrInvalidConfig)
	case cfg.Extent.IsEmpty():
		return nil, fmt.Errorf("%w: extent has zero area", ErrInvalidConfig)
	case cfg.TileSize < 0:
		return nil, fmt.Errorf("%w: tile size %d", ErrInvalidConfig, cfg.TileSize)
	case cfg.Level0Rows < 0 || cfg.Level0Columns < 0:
		return nil, fmt.Errorf("%w: level-0 division %dx%d", ErrInvalidConfig, cfg.Level0Rows, cfg.Level0Columns)
	case cfg.NumLevels < 0 || cfg.NumLevels > 30:
		return nil, fmt.Errorf("%w: %d levels", ErrInvalidConfig, cfg.NumLevels)
	}

	ls := &LevelSet{
		extent:    cfg.Extent,
		tileSize:  cfg.TileSize,
		rows0:     cfg.Level0Rows,
		cols0:     cfg.Level0Columns,
		numLevels: cfg.NumLevels,
		tiles:     make([]*tileMemo, cfg.NumLevels),
	}
	for i := range ls.tiles {
		ls.tiles[i] = newTileMemo(cfg.TileMemoSize)
	}
	return ls, nil
}

// Extent returns the geographic region covered by the pyramid.
func (ls *LevelSet) Extent() globe.Sector { return ls.extent }

// TileSize returns the tile edge length in pixels.
func (ls *LevelSet) TileSize() int { return ls.tileSize }

// NumLevels returns the number of levels in the pyramid.
func (ls *LevelSet) NumLevels() int { return ls.numLevels }

// RowCount returns the number of tile rows at the given level.
func (ls *LevelSet) RowCount(level int) int { return ls.rows0 << uint(level) }

// ColumnCount returns the number of tile columns at the given level.
func (ls *LevelSet) ColumnCount(level int) int { return ls.cols0 << uint(level) }

// TileDeltaLat returns the latitudinal extent of one tile at the given
// level, in degrees.
func (ls *LevelSet) TileDeltaLat(level int) float64 {
	return ls.extent.DeltaLat() / float64(ls.RowCount(level))
}

// TileDeltaLon returns the longitudinal extent of one tile at the given
// level, in degrees.
func (ls *LevelSet) TileDeltaLon(level int) float64 {
	return ls.extent.DeltaLon() / float64(ls.ColumnCount(level))
}

// Resolution returns the ground resolution of the given level in degrees
// of latitude per pixel.
func (ls *LevelSet) Resolution(level int) float64 {
	return ls.TileDeltaLat(level) / float64(ls.tileSize)
}

// LevelForResolution returns the coarsest level whose resolution is less
// than or equal to target (never finer than required, to avoid
// over-fetching). If even the finest level is coarser than target, the
// finest level is returned. A target <= 0 selects the finest level.
func (ls *LevelSet) LevelForResolution(target float64) int {
	if target <= 0 {
		return ls.numLevels - 1
	}
	for level := 0; level < ls.numLevels; level++ {
		if ls.Resolution(level) <= target {
			return level
		}
	}
	return ls.numLevels - 1
}

// Valid reports whether the address lies inside the pyramid.
func (ls *LevelSet) Valid(a Address) bool {
	return a.Level >= 0 && a.Level < ls.numLevels &&
		a.Row >= 0 && a.Row < ls.RowCount(a.Level) &&
		a.Column >= 0 && a.Column < ls.ColumnCount(a.Level)
}

// SectorFor returns the geographic sector covered by the addressed tile.
// The result is undefined for addresses outside the pyramid; use Valid
// to check first.
func (ls *LevelSet) SectorFor(a Address) globe.Sector {
	dLat := ls.TileDeltaLat(a.Level)
	dLon := ls.TileDeltaLon(a.Level)
	return globe.Sector{
		MinLat: ls.extent.MinLat + float64(a.Row)*dLat,
		MaxLat: ls.extent.MinLat + float64(a.Row+1)*dLat,
		MinLon: ls.extent.MinLon + float64(a.Column)*dLon,
		MaxLon: ls.extent.MinLon + float64(a.Column+1)*dLon,
	}
}

// TilesForSector returns the addresses of the tiles needed to cover the
// sector at the given target resolution (degrees of latitude per pixel).
// The level chosen is the coarsest one whose resolution satisfies the
// target; the result is ordered row-major within the level, so identical
// inputs always produce identical output.
//
// A sector spanning the antimeridian is split into two coverage queries
// and the results merged. A sector exceeding the pyramid's extent is
// clipped to it. An empty or fully outside sector yields no tiles.
func (ls *LevelSet) TilesForSector(sector globe.Sector, targetResolution float64) []Address {
	level := ls.LevelForResolution(targetResolution)

	var out []Address
	seen := make(map[Address]struct{})
	for _, part := range sector.Split() {
		clipped := part.Intersection(ls.extent)
		if clipped.IsEmpty() {
			continue
		}
		for _, a := range ls.tileRange(level, clipped) {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}

	// Row-major canonical order. The per-part ranges are already
	// row-major; sorting keeps the merged antimeridian case canonical.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// tileRange enumerates the addresses of one level intersecting an
// ordinary sector already clipped to the extent, in row-major order.
func (ls *LevelSet) tileRange(level int, s globe.Sector) []Address {
	dLat := ls.TileDeltaLat(level)
	dLon := ls.TileDeltaLon(level)

	firstRow := int(math.Floor((s.MinLat - ls.extent.MinLat) / dLat))
	lastRow := int(math.Ceil((s.MaxLat-ls.extent.MinLat)/dLat)) - 1
	firstCol := int(math.Floor((s.MinLon - ls.extent.MinLon) / dLon))
	lastCol := int(math.Ceil((s.MaxLon-ls.extent.MinLon)/dLon)) - 1

	firstRow = max(firstRow, 0)
	firstCol = max(firstCol, 0)
	lastRow = min(lastRow, ls.RowCount(level)-1)
	lastCol = min(lastCol, ls.ColumnCount(level)-1)

	if firstRow > lastRow || firstCol > lastCol {
		return nil
	}

	out := make([]Address, 0, (lastRow-firstRow+1)*(lastCol-firstCol+1))
	for row := firstRow; row <= lastRow; row++ {
		for col := firstCol; col <= lastCol; col++ {
			out = append(out, Address{Level: level, Row: row, Column: col})
		}
	}
	return out
}

// AddressAt returns the address of the tile containing the given point
// at the given level. Returns false if the point lies outside the
// pyramid's extent or the level is out of range.
func (ls *LevelSet) AddressAt(level int, lat, lon float64) (Address, bool) {
	if level < 0 || level >= ls.numLevels || !ls.extent.Contains(lat, lon) {
		return Address{}, false
	}
	row := int((lat - ls.extent.MinLat) / ls.TileDeltaLat(level))
	col := int((lon - ls.extent.MinLon) / ls.TileDeltaLon(level))
	// Points on the north/east extent edge land in the last tile.
	row = min(row, ls.RowCount(level)-1)
	col = min(col, ls.ColumnCount(level)-1)
	return Address{Level: level, Row: row, Column: col}, true
}

// Ancestor returns the ancestor address of a at the given coarser level,
// validating both against the pyramid.
func (ls *LevelSet) Ancestor(a Address, level int) (Address, error) {
	if !ls.Valid(a) || level < 0 || level > a.Level {
		return Address{}, fmt.Errorf("%w: ancestor of %v at level %d", ErrAddressOutOfRange, a, level)
	}
	return a.Ancestor(level), nil
}

// Reset drops all memoized tiles. Used on pyramid reset together with a
// cache clear; subsequent traversals rebuild tiles lazily.
func (ls *LevelSet) Reset() {
	for _, m := range ls.tiles {
		m.Clear()
	}
}
