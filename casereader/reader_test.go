package casereader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/JustinSGray/OpenMDAO/internal/testutil"
)

func openFixture(t *testing.T, version int, opts testutil.FixtureOptions) *Reader {
	t.Helper()
	r, err := Open(testutil.TempStore(t, version, opts))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpenInvalidStore(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.sql"))
	if !errors.Is(err, ErrInvalidStore) {
		t.Fatalf("missing file: got %v, want ErrInvalidStore", err)
	}

	path := filepath.Join(t.TempDir(), "not_a_store.sql")
	if err := os.WriteFile(path, []byte("this is not a SQLite container at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = Open(path)
	if !errors.Is(err, ErrInvalidStore) {
		t.Fatalf("foreign file: got %v, want ErrInvalidStore", err)
	}
}

func TestOpenUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.sql")
	require.NoError(t, testutil.BuildSellarStore(path, 99, testutil.FixtureOptions{Iterations: 1}))

	_, err := Open(path)
	var ue *UnsupportedFormatVersionError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 99, ue.Version)
}

func TestListSources(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})
	assert.Equal(t, []string{"driver"}, r.ListSources())

	full := openFixture(t, 4, testutil.FixtureOptions{
		WithSystems: true, WithSolver: true, WithProblem: true,
	})
	assert.Equal(t, []string{"driver", "problem", "root", "root.NLRunOnce"}, full.ListSources())
}

func TestEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sql")
	require.NoError(t, testutil.BuildEmptyStore(path, 4))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Empty(t, r.ListSources())
	cases, err := r.ListCases("driver", false)
	require.NoError(t, err)
	assert.Empty(t, cases)
	cases, err = r.ListCases("problem", true)
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestSourceNotFound(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})
	_, err := r.ListCases("root.bogus_solver", false)
	assert.ErrorIs(t, err, ErrSourceNotFound)
	_, err = r.GetCases(context.Background(), "nope", true)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestCaseNotFound(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})
	_, err := r.GetCase(context.Background(), "rank0:SLSQP|99", false)
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestListCasesRecursive(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithSystems: true, WithSolver: true})

	flat, err := r.ListCases("driver", true)
	require.NoError(t, err)
	// Each driver iteration is followed by its system execution, then the
	// solver iteration nested under that system.
	require.Len(t, flat, 21)
	for i := 0; i < 7; i++ {
		assert.Equal(t, testutil.DriverCoord(i), flat[3*i])
		assert.Equal(t, testutil.SystemCoord(i), flat[3*i+1])
		assert.Equal(t, testutil.SolverCoord(i), flat[3*i+2])
	}

	// Every descendant is literal-prefixed by its ancestor and sits at the
	// immediate next tracked depth.
	for i := 0; i < 7; i++ {
		parent := ParseCoordinate(flat[3*i])
		child := ParseCoordinate(flat[3*i+1])
		grand := ParseCoordinate(flat[3*i+2])
		assert.True(t, child.HasAncestor(parent))
		assert.Equal(t, parent.Depth()+1, child.Depth())
		assert.True(t, grand.HasAncestor(child))
		assert.Equal(t, child.Depth()+1, grand.Depth())
	}
}

func TestListCasesSolverOnlyDescendants(t *testing.T) {
	// Without system recording the tracked depths are {2, 4}; the solver
	// iteration becomes the driver iteration's direct child.
	r := openFixture(t, 4, testutil.FixtureOptions{WithSolver: true})

	flat, err := r.ListCases("driver", true)
	require.NoError(t, err)
	require.Len(t, flat, 14)
	for i := 0; i < 7; i++ {
		assert.Equal(t, testutil.DriverCoord(i), flat[2*i])
		assert.Equal(t, testutil.SolverCoord(i), flat[2*i+1])
	}
}

func TestGetCaseRoundTrip(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithSystems: true, WithSolver: true})
	ctx := context.Background()

	flat, err := r.ListCases("driver", true)
	require.NoError(t, err)
	for _, coord := range flat {
		c, err := r.GetCase(ctx, coord, false)
		require.NoError(t, err, "coordinate %s", coord)
		assert.Equal(t, coord, c.ID)
		assert.True(t, c.Success)
	}
}

func TestCounterOrdering(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{
		WithSystems: true, WithSolver: true, WithDerivs: true,
	})

	seq, err := r.GetCases(context.Background(), "driver", true)
	require.NoError(t, err)

	last := int64(0)
	n := 0
	for seq.Next() {
		c := seq.Case()
		require.Greater(t, c.Counter, last, "counters must increase along the traversal")
		last = c.Counter
		n++
	}
	require.NoError(t, seq.Err())
	assert.Equal(t, 21, n)
}

func TestGetCasesRestartable(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})
	ctx := context.Background()

	for round := 0; round < 2; round++ {
		seq, err := r.GetCases(ctx, "driver", false)
		require.NoError(t, err)
		n := 0
		for seq.Next() {
			n++
		}
		require.NoError(t, seq.Err())
		assert.Equal(t, 7, n)
	}
}

func TestGetCaseCaching(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})
	ctx := context.Background()
	coord := testutil.DriverCoord(2)

	a, err := r.GetCase(ctx, coord, true)
	require.NoError(t, err)
	b, err := r.GetCase(ctx, coord, true)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := r.GetCase(ctx, coord, false)
	require.NoError(t, err)
	d, err := r.GetCase(ctx, coord, false)
	require.NoError(t, err)
	assert.NotSame(t, c, d)
	assert.Equal(t, c.ID, d.ID)
	assert.Equal(t, c.Counter, d.Counter)

	cz, err := c.Outputs.Get("z")
	require.NoError(t, err)
	dz, err := d.Outputs.Get("z")
	require.NoError(t, err)
	assert.Equal(t, cz.Data, dz.Data)
}

func TestFormatVersionCompatibility(t *testing.T) {
	// The same run recorded in every supported format yields the same
	// numbers back.
	want := []float64{5.0 - 0.5*5, 2.0 - 0.2*5}
	for version := 1; version <= 4; version++ {
		r := openFixture(t, version, testutil.FixtureOptions{})
		assert.Equal(t, version, r.FormatVersion())

		c, err := r.GetCase(context.Background(), "rank0:SLSQP|5", false)
		require.NoError(t, err, "version %d", version)

		z, err := c.Outputs.Get("z")
		require.NoError(t, err, "version %d", version)
		assert.True(t, floats.EqualApprox(want, z.Data, 1e-12),
			"version %d: z = %v", version, z.Data)
	}
}

func TestProblemCases(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithProblem: true})

	names, err := r.ListCases("problem", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"initial", "final"}, names)

	c, err := r.GetCase(context.Background(), "final", false)
	require.NoError(t, err)
	assert.Equal(t, "problem", c.Source)
	assert.Equal(t, "final", c.ID)
	assert.Nil(t, c.Inputs)

	obj, err := c.Outputs.Get("obj")
	require.NoError(t, err)
	assert.InDelta(t, 28.0-3.0*6, obj.Data[0], 1e-12)
}

func TestSolverSource(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithSolver: true})

	coords, err := r.ListCases("root.NLRunOnce", false)
	require.NoError(t, err)
	require.Len(t, coords, 7)

	c, err := r.GetCase(context.Background(), coords[0], false)
	require.NoError(t, err)
	assert.Equal(t, "root.NLRunOnce", c.Source)
	require.NotNil(t, c.AbsErr)
	assert.InDelta(t, 0.001, *c.AbsErr, 1e-12)
	require.NotNil(t, c.RelErr)
	require.NotNil(t, c.Residuals)
}

func TestSystemSource(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithSystems: true})

	coords, err := r.ListCases("root", false)
	require.NoError(t, err)
	require.Len(t, coords, 7)

	c, err := r.GetCase(context.Background(), coords[3], false)
	require.NoError(t, err)
	assert.Equal(t, "root", c.Source)
	require.NotNil(t, c.Residuals)
}

func TestJacobianAttachment(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithDerivs: true})

	c, err := r.GetCase(context.Background(), testutil.DriverCoord(3), false)
	require.NoError(t, err)
	require.NotNil(t, c.Jacobian)

	v, err := c.Jacobian.Get("obj", "z")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v.Shape)
	assert.True(t, floats.EqualApprox(testutil.SellarDerivatives(3)["obj_cmp.obj!pz.z"], v.Data, 1e-12))

	// Driver desvar/objective/constraint views resolve through the
	// catalog's kind tags.
	dv := c.DesignVariables()
	assert.Len(t, dv, 2)
	assert.Contains(t, dv, "x")
	assert.Contains(t, dv, "z")
	assert.Len(t, c.Objectives(), 1)
	assert.Len(t, c.Constraints(), 2)
	assert.Len(t, c.Responses(), 3)
}

func TestCaseTrees(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithSystems: true, WithSolver: true})

	tree, err := r.ListCaseTree("driver")
	require.NoError(t, err)
	assert.Equal(t, "driver", tree.Coord)
	require.Len(t, tree.Children, 7)
	for i, node := range tree.Children {
		assert.Equal(t, testutil.DriverCoord(i), node.Coord)
		require.Len(t, node.Children, 1)
		assert.Equal(t, testutil.SystemCoord(i), node.Children[0].Coord)
		require.Len(t, node.Children[0].Children, 1)
		assert.Equal(t, testutil.SolverCoord(i), node.Children[0].Children[0].Coord)
	}

	cases, err := r.GetCaseTree(context.Background(), "driver")
	require.NoError(t, err)
	assert.Nil(t, cases.Case)
	require.Len(t, cases.Children, 7)
	for i, node := range cases.Children {
		assert.Equal(t, testutil.DriverCoord(i), node.Case.ID)
		require.Len(t, node.Children, 1)
		assert.Equal(t, "root", node.Children[0].Case.Source)
	}
}

func TestListSourceVars(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})

	inputs, outputs, err := r.ListSourceVars("driver")
	require.NoError(t, err)
	assert.Contains(t, inputs, "y2")
	assert.Contains(t, outputs, "obj")
	assert.Len(t, outputs, 7)

	_, _, err = r.ListSourceVars("no.such.source")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestLoadCases(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithSystems: true, WithSolver: true})
	require.NoError(t, r.LoadCases(context.Background()))

	assert.Len(t, r.driver.cache, 7)
	assert.Len(t, r.system.cache, 7)
	assert.Len(t, r.solver.cache, 7)

	cached, err := r.GetCase(context.Background(), testutil.DriverCoord(0), true)
	require.NoError(t, err)
	again, err := r.GetCase(context.Background(), testutil.DriverCoord(0), true)
	require.NoError(t, err)
	assert.Same(t, cached, again)
}

func TestAuxMetadata(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{WithMetadata: true})

	dm := r.DriverMetadata()
	require.NotNil(t, dm)
	runID, ok := dm["run_id"].(string)
	require.True(t, ok)
	assert.True(t, strings.Count(runID, "-") == 4, "run_id should be a UUID")

	sm, ok := r.SystemMetadata()["d1"]
	require.True(t, ok)
	assert.Equal(t, false, sm.Options["distributed"])

	sv, ok := r.SolverMetadata()["root.NLRunOnce"]
	require.True(t, ok)
	assert.Equal(t, "NonlinearRunOnce", sv.SolverClass)
}

func TestCatalogLookups(t *testing.T) {
	r := openFixture(t, 4, testutil.FixtureOptions{})
	cat := r.Catalog()

	z, err := cat.OutputMeta("z")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, z.Shape)
	require.NotNil(t, z.Lower)
	assert.Equal(t, []float64{-10, 0}, z.Lower.Data)
	// The scalar upper bound broadcasts to the variable's shape.
	require.NotNil(t, z.Upper)
	assert.Equal(t, []float64{10, 10}, z.Upper.Data)

	// "z" names two different absolute inputs.
	_, err = cat.InputMeta("z")
	assert.ErrorIs(t, err, ErrUnknownVariable)

	x, err := cat.InputMeta("x")
	require.NoError(t, err)
	assert.Equal(t, "m", x.Units)

	_, err = cat.Meta("does.not.exist")
	assert.ErrorIs(t, err, ErrUnknownVariable)

	// Driver variable settings exist from format 4 on.
	assert.NotNil(t, cat.Settings("px.x"))
}
