package casereader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func storeWith(cat Category, coords ...string) *CategoryStore {
	s := newCategoryStore(nil, cat, 4, nil)
	for _, c := range coords {
		s.index[c] = len(s.keys)
		s.keys = append(s.keys, c)
		s.coords = append(s.coords, ParseCoordinate(c))
	}
	return s
}

func coordsOf(refs []childRef) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.coord.String()
	}
	return out
}

func TestRootChildrenDriverWins(t *testing.T) {
	h := &hierarchy{
		driver: storeWith(CategoryDriver, "rank0:SLSQP|0", "rank0:SLSQP|1"),
		deriv:  storeWith(CategoryDerivative),
		system: storeWith(CategorySystem),
		solver: storeWith(CategorySolver,
			"rank0:SLSQP|0|root._solve_nonlinear|0|NLRunOnce|0"),
	}

	got := coordsOf(h.findChildren(ParseCoordinate(""), false))
	assert.Equal(t, []string{"rank0:SLSQP|0", "rank0:SLSQP|1"}, got)
}

func TestRootChildrenDriverlessSolver(t *testing.T) {
	// Runs without a driver hang their top-level solver iterations off the
	// root directly.
	h := &hierarchy{
		driver: storeWith(CategoryDriver),
		deriv:  storeWith(CategoryDerivative),
		system: storeWith(CategorySystem),
		solver: storeWith(CategorySolver,
			"rank0:root._solve_nonlinear|0|NLRunOnce|0",
			"rank0:root._solve_nonlinear|0|NLRunOnce|1",
		),
	}

	got := coordsOf(h.findChildren(ParseCoordinate(""), false))
	assert.Len(t, got, 2)

	// Root with nothing recorded yields no children, not an error.
	empty := &hierarchy{
		driver: storeWith(CategoryDriver),
		deriv:  storeWith(CategoryDerivative),
		system: storeWith(CategorySystem),
		solver: storeWith(CategorySolver),
	}
	assert.Empty(t, empty.findChildren(ParseCoordinate(""), true))
}

func TestNonDirectDescendantExcluded(t *testing.T) {
	parent := "rank0:SLSQP|3"
	child := "rank0:SLSQP|3|root._solve_nonlinear|3|NLRunOnce|0"
	grand := "rank0:SLSQP|3|root._solve_nonlinear|3|NLRunOnce|0|d1._solve_nonlinear|0"

	h := &hierarchy{
		driver: storeWith(CategoryDriver, parent),
		deriv:  storeWith(CategoryDerivative),
		system: storeWith(CategorySystem, grand),
		solver: storeWith(CategorySolver, child),
	}

	// grand is literal-prefixed by parent but two tracked depths down; it
	// must not appear as a direct child.
	direct := coordsOf(h.findChildren(ParseCoordinate(parent), false))
	assert.Equal(t, []string{child}, direct)

	// It is still reachable through the intermediate node's recursion, in
	// parent-first depth-first order.
	all := coordsOf(h.findChildren(ParseCoordinate(parent), true))
	assert.Equal(t, []string{child, grand}, all)
}

func TestMultiDigitPrefixOverlap(t *testing.T) {
	// Ancestry is a literal string-prefix check, so "rank0:SLSQP|3" also
	// prefixes iteration 30's coordinates. Pin that down: iteration 30's
	// solver child shows up under both parents.
	child := "rank0:SLSQP|30|root._solve_nonlinear|30|NLRunOnce|0"
	h := &hierarchy{
		driver: storeWith(CategoryDriver, "rank0:SLSQP|3", "rank0:SLSQP|30"),
		deriv:  storeWith(CategoryDerivative),
		system: storeWith(CategorySystem),
		solver: storeWith(CategorySolver, child),
	}

	assert.Equal(t, []string{child},
		coordsOf(h.findChildren(ParseCoordinate("rank0:SLSQP|30"), false)))
	assert.Equal(t, []string{child},
		coordsOf(h.findChildren(ParseCoordinate("rank0:SLSQP|3"), false)))
}

func TestCategoryTieBreakOrder(t *testing.T) {
	parent := "rank0:SLSQP|0"
	solverChild := "rank0:SLSQP|0|root._solve_nonlinear|0|NLRunOnce|0"
	systemChild := "rank0:SLSQP|0|root._solve_nonlinear|0|d1._solve_nonlinear|0"

	h := &hierarchy{
		driver: storeWith(CategoryDriver, parent),
		deriv:  storeWith(CategoryDerivative),
		system: storeWith(CategorySystem, systemChild),
		solver: storeWith(CategorySolver, solverChild),
	}

	// Both children sit at depth 4; solver enumerates before system.
	got := h.findChildren(ParseCoordinate(parent), false)
	assert.Equal(t, []string{solverChild, systemChild}, coordsOf(got))
	assert.Equal(t, CategorySolver, got[0].category)
	assert.Equal(t, CategorySystem, got[1].category)
}
