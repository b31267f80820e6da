// Package pyramid implements quad-tree tile addressing over a fixed
// geographic extent: a hierarchy of progressively finer grids indexed by
// level, row and column, and the level-selection logic that maps a viewing
// sector at a target resolution to the set of tiles covering it.
package pyramid

import "fmt"

// Address identifies one tile inside the pyramid: a level index and a
// row/column position within that level's grid. Address is an immutable
// value type; two addresses are equal iff all three fields match, so it
// can be used directly as a map key.
//
// Row 0 is the southernmost row, column 0 the westernmost column.
type Address struct {
	Level  int
	Row    int
	Column int
}

// Ancestor returns the address of the tile at the given coarser level
// whose sector contains this tile. Ancestor is a pure function of the
// address; it does not consult the pyramid geometry.
//
// The result is the address itself when level equals a.Level. Callers
// must not pass a level greater than a.Level or negative.
func (a Address) Ancestor(level int) Address {
	shift := uint(a.Level - level)
	return Address{
		Level:  level,
		Row:    a.Row >> shift,
		Column: a.Column >> shift,
	}
}

// Parent returns the address of the tile's immediate ancestor.
// Calling Parent on a level-0 address returns the address itself.
func (a Address) Parent() Address {
	if a.Level == 0 {
		return a
	}
	return a.Ancestor(a.Level - 1)
}

// String returns a compact "level/row/column" form, used in resource keys
// and log output.
func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Level, a.Row, a.Column)
}
