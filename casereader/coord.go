package casereader

import (
	"regexp"
	"strings"
)

// coordSplitRe splits an iteration coordinate on "pipe + digits + optional
// trailing pipes", leaving only the driver/solver/system identifier segments.
// Splitting "rank0:SLSQP|0" yields ["rank0:SLSQP", ""], so the base driver
// coordinate depth is 2.
var coordSplitRe = regexp.MustCompile(`\|\d+\|*`)

// baseDriverDepth is the segment count of a split driver coordinate and the
// conventional depth assigned to the implicit root.
const baseDriverDepth = 2

// solveSuffix is the trailing marker on system identifier segments.
const solveSuffix = "._solve_nonlinear"

// Coordinate is a parsed iteration coordinate. The segment split is computed
// once at construction because the hierarchy resolver re-examines coordinates
// repeatedly during recursive descent.
//
// Coordinates are ordered by the write order of the backing store, never by
// string comparison: once iteration indices exceed one digit the delimited
// form no longer sorts consistently with iteration order.
type Coordinate struct {
	raw      string
	segments []string
}

// ParseCoordinate splits raw into its segment sequence. An empty string
// parses to the implicit root coordinate.
func ParseCoordinate(raw string) Coordinate {
	if raw == "" {
		return Coordinate{}
	}
	return Coordinate{raw: raw, segments: coordSplitRe.Split(raw, -1)}
}

// String returns the original delimited form.
func (c Coordinate) String() string { return c.raw }

// IsRoot reports whether c is the implicit root (empty) coordinate.
func (c Coordinate) IsRoot() bool { return c.raw == "" }

// Depth is the number of split segments. The root reports baseDriverDepth,
// matching the conventional length used by the hierarchy resolver.
func (c Coordinate) Depth() int {
	if c.IsRoot() {
		return baseDriverDepth
	}
	return len(c.segments)
}

// Segments returns the split segment sequence. Callers must not mutate it.
func (c Coordinate) Segments() []string { return c.segments }

// HasAncestor reports whether parent's literal string is a prefix of c.
// A true result does not by itself make c a direct child; the resolver also
// requires the expected next tracked depth.
func (c Coordinate) HasAncestor(parent Coordinate) bool {
	if parent.IsRoot() {
		return !c.IsRoot()
	}
	return strings.HasPrefix(c.raw, parent.raw)
}

// lastName returns the last non-empty segment, or "".
func (c Coordinate) lastName() string {
	for i := len(c.segments) - 1; i >= 0; i-- {
		if c.segments[i] != "" {
			return c.segments[i]
		}
	}
	return ""
}

// penultimateName returns the non-empty segment before lastName, or "".
func (c Coordinate) penultimateName() string {
	seen := false
	for i := len(c.segments) - 1; i >= 0; i-- {
		if c.segments[i] == "" {
			continue
		}
		if seen {
			return c.segments[i]
		}
		seen = true
	}
	return ""
}

// systemSource derives the hierarchy-location source name for a system
// iteration coordinate: the system path segment with its solve marker
// stripped, e.g. "...|root.d1._solve_nonlinear|2" -> "root.d1".
func (c Coordinate) systemSource() string {
	return strings.TrimSuffix(c.lastName(), solveSuffix)
}

// solverSource derives the hierarchy-location source name for a solver
// iteration coordinate: the owning system path joined with the solver
// segment, e.g. "...|root._solve_nonlinear|0|NLRunOnce|0" -> "root.NLRunOnce".
func (c Coordinate) solverSource() string {
	owner := strings.TrimSuffix(c.penultimateName(), solveSuffix)
	name := c.lastName()
	if owner == "" {
		return name
	}
	return owner + "." + name
}
