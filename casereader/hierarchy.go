package casereader

import "sort"

// childRef identifies one discovered child: the category that recorded it
// and its parsed coordinate.
type childRef struct {
	category Category
	coord    Coordinate
}

// categoryOrder is the fixed priority when segment counts tie across
// categories at the same depth.
var categoryOrder = [...]Category{CategoryDriver, CategorySolver, CategorySystem}

// hierarchy infers parent/child relations between iteration coordinates.
// Nothing in the store records parent pointers; descent is reconstructed
// from two facts: a descendant carries its ancestor's literal string as a
// prefix, and a direct child's segment count is the next tracked depth
// after the parent's. Prefix alone is not enough, since a deeper descendant
// is also prefixed by every ancestor on its path.
type hierarchy struct {
	driver *CategoryStore
	deriv  *CategoryStore
	system *CategoryStore
	solver *CategoryStore
}

func (h *hierarchy) store(cat Category) *CategoryStore {
	switch cat {
	case CategoryDriver:
		return h.driver
	case CategoryDerivative:
		return h.deriv
	case CategorySystem:
		return h.system
	case CategorySolver:
		return h.solver
	}
	return nil
}

// coordLengths returns the sorted distinct segment counts observed across
// every coordinate-keyed category, always including the base driver depth.
func (h *hierarchy) coordLengths() []int {
	seen := map[int]bool{baseDriverDepth: true}
	for _, s := range []*CategoryStore{h.driver, h.deriv, h.system, h.solver} {
		for _, c := range s.coords {
			seen[c.Depth()] = true
		}
	}
	lengths := make([]int, 0, len(seen))
	for n := range seen {
		lengths = append(lengths, n)
	}
	sort.Ints(lengths)
	return lengths
}

// expectedChildLength returns the next tracked depth after parentLen, or 0
// when parentLen is already the deepest tracked depth.
func expectedChildLength(lengths []int, parentLen int) int {
	for _, n := range lengths {
		if n > parentLen {
			return n
		}
	}
	return 0
}

// directChildren returns parent's immediate children in discovery order:
// categories in priority order, coordinates within a category in store
// write order. The root is special: every driver iteration hangs off it
// when any were recorded; in driver-less runs the shallowest solver
// iterations take that place instead. Systems never attach to the root.
func (h *hierarchy) directChildren(parent Coordinate, lengths []int) []childRef {
	expected := expectedChildLength(lengths, parent.Depth())

	var out []childRef
	if parent.IsRoot() {
		switch {
		case h.driver.Len() > 0:
			for _, c := range h.driver.coords {
				out = append(out, childRef{CategoryDriver, c})
			}
		case expected != 0:
			for _, c := range h.solver.coords {
				if c.Depth() == expected {
					out = append(out, childRef{CategorySolver, c})
				}
			}
		}
		return out
	}

	if expected == 0 {
		return nil
	}
	for _, cat := range categoryOrder {
		for _, c := range h.store(cat).coords {
			if c.Depth() == expected && c.HasAncestor(parent) {
				out = append(out, childRef{cat, c})
			}
		}
	}
	return out
}

// findChildren resolves parent's children, and with recursive the full
// descendant set in parent-first depth-first order.
func (h *hierarchy) findChildren(parent Coordinate, recursive bool) []childRef {
	lengths := h.coordLengths()
	var out []childRef
	h.descend(&out, parent, lengths, recursive)
	return out
}

func (h *hierarchy) descend(out *[]childRef, parent Coordinate, lengths []int, recursive bool) {
	for _, ref := range h.directChildren(parent, lengths) {
		*out = append(*out, ref)
		if recursive {
			h.descend(out, ref.coord, lengths, true)
		}
	}
}

// CoordNode is one node of a nested case listing: a coordinate (or, at the
// tree root, a source name) and its direct children in discovery order.
type CoordNode struct {
	Coord    string
	Children []*CoordNode
}

// CaseNode is one node of a nested materialized-case tree.
type CaseNode struct {
	Case     *Case
	Children []*CaseNode
}

// coordSubtree builds the nested coordinate tree under parent.
func (h *hierarchy) coordSubtree(parent Coordinate, lengths []int) []*CoordNode {
	var nodes []*CoordNode
	for _, ref := range h.directChildren(parent, lengths) {
		nodes = append(nodes, &CoordNode{
			Coord:    ref.coord.String(),
			Children: h.coordSubtree(ref.coord, lengths),
		})
	}
	return nodes
}
