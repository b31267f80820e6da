package globe

import (
	"fmt"
	"math"
)

// Sector is a geographic rectangle bounded by minimum and maximum latitude
// and longitude, in degrees. Sector is an immutable value type; operations
// return new sectors rather than mutating the receiver.
//
// For ordinary sectors MinLat <= MaxLat and MinLon <= MaxLon. A sector that
// spans the antimeridian is expressed with MinLon > MaxLon (for example
// MinLon=170, MaxLon=-170 covers 20 degrees of longitude); use
// [Sector.Split] to normalize such a sector into two ordinary ones before
// geometric queries.
type Sector struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// FullSphere covers the entire globe.
var FullSphere = Sector{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// NewSector creates a sector from latitude and longitude bounds in degrees.
// Latitudes are clamped to [-90, 90], longitudes to [-180, 180].
func NewSector(minLat, maxLat, minLon, maxLon float64) Sector {
	return Sector{
		MinLat: clamp(minLat, -90, 90),
		MaxLat: clamp(maxLat, -90, 90),
		MinLon: clamp(minLon, -180, 180),
		MaxLon: clamp(maxLon, -180, 180),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// DeltaLat returns the latitudinal extent in degrees.
func (s Sector) DeltaLat() float64 { return s.MaxLat - s.MinLat }

// DeltaLon returns the longitudinal extent in degrees.
// For an antimeridian-crossing sector this is the length of the span
// going eastward from MinLon across the antimeridian to MaxLon.
func (s Sector) DeltaLon() float64 {
	if s.CrossesAntimeridian() {
		return 360 - (s.MinLon - s.MaxLon)
	}
	return s.MaxLon - s.MinLon
}

// IsEmpty reports whether the sector has zero area.
func (s Sector) IsEmpty() bool {
	return s.DeltaLat() <= 0 || s.DeltaLon() <= 0
}

// CrossesAntimeridian reports whether the sector spans the antimeridian.
func (s Sector) CrossesAntimeridian() bool {
	return s.MinLon > s.MaxLon
}

// Split normalizes the sector into ordinary (non-crossing) sectors.
// An ordinary sector is returned unchanged as a single-element slice;
// an antimeridian-crossing sector is split into its western and eastern
// halves.
func (s Sector) Split() []Sector {
	if !s.CrossesAntimeridian() {
		return []Sector{s}
	}
	return []Sector{
		{MinLat: s.MinLat, MaxLat: s.MaxLat, MinLon: s.MinLon, MaxLon: 180},
		{MinLat: s.MinLat, MaxLat: s.MaxLat, MinLon: -180, MaxLon: s.MaxLon},
	}
}

// Contains reports whether the given point lies within the sector,
// boundaries included. Works for antimeridian-crossing sectors.
func (s Sector) Contains(lat, lon float64) bool {
	if lat < s.MinLat || lat > s.MaxLat {
		return false
	}
	if s.CrossesAntimeridian() {
		return lon >= s.MinLon || lon <= s.MaxLon
	}
	return lon >= s.MinLon && lon <= s.MaxLon
}

// ContainsSector reports whether other lies entirely within s.
// Both sectors must be ordinary (non-crossing).
func (s Sector) ContainsSector(other Sector) bool {
	return other.MinLat >= s.MinLat && other.MaxLat <= s.MaxLat &&
		other.MinLon >= s.MinLon && other.MaxLon <= s.MaxLon
}

// Intersects reports whether the two sectors overlap with positive area.
// Both sectors must be ordinary (non-crossing); split crossing sectors
// first.
func (s Sector) Intersects(other Sector) bool {
	return s.MinLat < other.MaxLat && s.MaxLat > other.MinLat &&
		s.MinLon < other.MaxLon && s.MaxLon > other.MinLon
}

// Intersection returns the overlapping region of two ordinary sectors.
// Returns the zero Sector if they do not overlap.
func (s Sector) Intersection(other Sector) Sector {
	r := Sector{
		MinLat: math.Max(s.MinLat, other.MinLat),
		MaxLat: math.Min(s.MaxLat, other.MaxLat),
		MinLon: math.Max(s.MinLon, other.MinLon),
		MaxLon: math.Min(s.MaxLon, other.MaxLon),
	}
	if r.MinLat >= r.MaxLat || r.MinLon >= r.MaxLon {
		return Sector{}
	}
	return r
}

// Union returns the smallest ordinary sector containing both sectors.
func (s Sector) Union(other Sector) Sector {
	if s.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return s
	}
	return Sector{
		MinLat: math.Min(s.MinLat, other.MinLat),
		MaxLat: math.Max(s.MaxLat, other.MaxLat),
		MinLon: math.Min(s.MinLon, other.MinLon),
		MaxLon: math.Max(s.MaxLon, other.MaxLon),
	}
}

// CentroidLat returns the latitude of the sector's center.
func (s Sector) CentroidLat() float64 { return (s.MinLat + s.MaxLat) / 2 }

// CentroidLon returns the longitude of the sector's center.
// Handles antimeridian-crossing sectors.
func (s Sector) CentroidLon() float64 {
	c := s.MinLon + s.DeltaLon()/2
	if c > 180 {
		c -= 360
	}
	return c
}

// String returns a human-readable representation.
func (s Sector) String() string {
	return fmt.Sprintf("Sector[lat %.4f..%.4f, lon %.4f..%.4f]",
		s.MinLat, s.MaxLat, s.MinLon, s.MaxLon)
}
