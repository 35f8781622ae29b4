package casereader

import "testing"

func TestParseCoordinateDepth(t *testing.T) {
	tests := []struct {
		raw   string
		depth int
	}{
		{"", baseDriverDepth},
		{"rank0:SLSQP|0", 2},
		{"rank0:SLSQP|12", 2},
		{"rank0:SLSQP|0|root._solve_nonlinear|0", 3},
		{"rank0:SLSQP|3|root._solve_nonlinear|3|NLRunOnce|0", 4},
		{"rank0:SLSQP|3|root._solve_nonlinear|3|NLRunOnce|2|d1._solve_nonlinear|0", 5},
	}
	for _, tt := range tests {
		c := ParseCoordinate(tt.raw)
		if got := c.Depth(); got != tt.depth {
			t.Errorf("Depth(%q) = %d, want %d", tt.raw, got, tt.depth)
		}
		if c.String() != tt.raw {
			t.Errorf("String(%q) = %q", tt.raw, c.String())
		}
	}
}

func TestHasAncestor(t *testing.T) {
	root := ParseCoordinate("")
	driver := ParseCoordinate("rank0:SLSQP|3")
	solver := ParseCoordinate("rank0:SLSQP|3|root._solve_nonlinear|3|NLRunOnce|0")
	other := ParseCoordinate("rank0:SLSQP|30")

	if !driver.HasAncestor(root) {
		t.Error("driver coordinate should descend from root")
	}
	if !solver.HasAncestor(driver) {
		t.Error("solver coordinate should descend from its driver iteration")
	}
	if driver.HasAncestor(solver) {
		t.Error("ancestor relation must not be symmetric")
	}
	if root.HasAncestor(root) {
		t.Error("root is not its own descendant")
	}

	// "rank0:SLSQP|3" is a string prefix of "rank0:SLSQP|30"; the prefix
	// test alone accepts it, which is why the resolver also checks depth.
	if !other.HasAncestor(driver) {
		t.Error("prefix test is literal, including index collisions")
	}
}

func TestSourceDerivation(t *testing.T) {
	sys := ParseCoordinate("rank0:SLSQP|1|root._solve_nonlinear|1")
	if got := sys.systemSource(); got != "root" {
		t.Errorf("systemSource = %q, want root", got)
	}

	deep := ParseCoordinate("rank0:SLSQP|1|root._solve_nonlinear|1|NLRunOnce|0|d1._solve_nonlinear|0")
	if got := deep.systemSource(); got != "d1" {
		t.Errorf("systemSource = %q, want d1", got)
	}

	sol := ParseCoordinate("rank0:SLSQP|1|root._solve_nonlinear|1|NLRunOnce|0")
	if got := sol.solverSource(); got != "root.NLRunOnce" {
		t.Errorf("solverSource = %q, want root.NLRunOnce", got)
	}
}

func TestExpectedChildLength(t *testing.T) {
	lengths := []int{2, 4, 5}
	if got := expectedChildLength(lengths, 2); got != 4 {
		t.Errorf("expectedChildLength(2) = %d, want 4", got)
	}
	if got := expectedChildLength(lengths, 4); got != 5 {
		t.Errorf("expectedChildLength(4) = %d, want 5", got)
	}
	if got := expectedChildLength(lengths, 5); got != 0 {
		t.Errorf("expectedChildLength(5) = %d, want 0", got)
	}
}
