package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// The canned run is a small Sellar-like optimization: seven driver
// iterations of a two-discipline model under an SLSQP-style driver, with
// optional system, solver, problem and derivative recording layered on.
// Recording order is parent-first within an iteration, so counters increase
// along any depth-first walk of the hierarchy.

// DriverCoord returns the driver coordinate of iteration i.
func DriverCoord(i int) string {
	return fmt.Sprintf("rank0:SLSQP|%d", i)
}

// SystemCoord returns the root system coordinate under driver iteration i.
func SystemCoord(i int) string {
	return fmt.Sprintf("%s|root._solve_nonlinear|%d", DriverCoord(i), i)
}

// SolverCoord returns the root nonlinear-solver coordinate under driver
// iteration i.
func SolverCoord(i int) string {
	return fmt.Sprintf("%s|NLRunOnce|0", SystemCoord(i))
}

// SellarVars declares the canned model's variables. The promoted input "z"
// is deliberately ambiguous (d1.z and d2.z) to exercise promoted-name
// resolution failures.
func SellarVars() []Var {
	return []Var{
		{Abs: "px.x", Prom: "x", Output: true, Explicit: true,
			Lower: []float64{0}, Upper: []float64{10},
			Ref: 1, ResRef: 1, Tags: []string{"desvar"}},
		{Abs: "pz.z", Prom: "z", Output: true, Explicit: true, Shape: []int{2},
			Lower: []float64{-10, 0}, Upper: []float64{10},
			Ref: 1, ResRef: 1, Tags: []string{"desvar"}},
		{Abs: "d1.y1", Prom: "y1", Output: true, Explicit: true, Ref: 1, ResRef: 1},
		{Abs: "d2.y2", Prom: "y2", Output: true, Explicit: true, Ref: 1, ResRef: 1},
		{Abs: "obj_cmp.obj", Prom: "obj", Output: true, Explicit: true,
			Ref: 1, ResRef: 1, Tags: []string{"objective"}},
		{Abs: "con_cmp1.con1", Prom: "con1", Output: true, Explicit: true,
			Upper: []float64{0}, Ref: 1, ResRef: 1, Tags: []string{"constraint"}},
		{Abs: "con_cmp2.con2", Prom: "con2", Output: true, Explicit: true,
			Upper: []float64{0}, Ref: 1, ResRef: 1, Tags: []string{"constraint"}},

		{Abs: "d1.x", Prom: "x", Units: "m", Explicit: true},
		{Abs: "d1.z", Prom: "z", Shape: []int{2}, Explicit: true},
		{Abs: "d2.z", Prom: "z", Shape: []int{2}, Explicit: true},
		{Abs: "d1.y2", Prom: "y2", Explicit: true},
		{Abs: "d2.y1", Prom: "y1", Explicit: true},
	}
}

// SellarInputs returns the recorded input values at driver iteration i.
func SellarInputs(i int) map[string][]float64 {
	x := 1.0 - 0.1*float64(i)
	z := []float64{5.0 - 0.5*float64(i), 2.0 - 0.2*float64(i)}
	return map[string][]float64{
		"d1.x":  {x},
		"d1.z":  z,
		"d2.z":  z,
		"d1.y2": {12.0 - float64(i)},
		"d2.y1": {25.0 - 2.0*float64(i)},
	}
}

// SellarOutputs returns the recorded output values at driver iteration i.
func SellarOutputs(i int) map[string][]float64 {
	fi := float64(i)
	return map[string][]float64{
		"px.x":          {1.0 - 0.1*fi},
		"pz.z":          {5.0 - 0.5*fi, 2.0 - 0.2*fi},
		"d1.y1":         {25.0 - 2.0*fi},
		"d2.y2":         {12.0 - fi},
		"obj_cmp.obj":   {28.0 - 3.0*fi},
		"con_cmp1.con1": {3.16 - (25.0 - 2.0*fi)},
		"con_cmp2.con2": {(12.0 - fi) - 24.0},
	}
}

// SellarResiduals returns per-output residuals at driver iteration i; the
// y1 residual shrinks with i but stays well above the others, giving
// tolerance filters something to separate.
func SellarResiduals(i int) map[string][]float64 {
	res := make(map[string][]float64)
	for name, v := range SellarOutputs(i) {
		zero := make([]float64, len(v))
		for k := range zero {
			zero[k] = 1e-12
		}
		res[name] = zero
	}
	res["d1.y1"] = []float64{0.01 / float64(i+1)}
	return res
}

// SellarDerivatives returns the total-derivative blocks recorded at driver
// iteration i, keyed "of!wrt".
func SellarDerivatives(i int) map[string][]float64 {
	fi := float64(i)
	return map[string][]float64{
		"obj_cmp.obj!px.x":   {2.0 + 0.1*fi},
		"obj_cmp.obj!pz.z":   {3.0 + 0.1*fi, 1.5 - 0.1*fi},
		"con_cmp1.con1!px.x": {-2.0},
	}
}

// FixtureOptions selects what the canned run records beyond driver
// iterations.
type FixtureOptions struct {
	Iterations   int // driver iterations; 0 means 7
	WithSystems  bool
	WithSolver   bool
	WithProblem  bool
	WithDerivs   bool
	WithMetadata bool // driver/system/solver option tables
}

// BuildSellarStore writes the canned run to path in the given format
// version.
func BuildSellarStore(path string, version int, opts FixtureOptions) error {
	rec, err := NewRecorder(path, version)
	if err != nil {
		return err
	}
	defer rec.Close()

	if err := rec.WriteMetadata(SellarVars()); err != nil {
		return err
	}

	n := opts.Iterations
	if n == 0 {
		n = 7
	}

	for i := 0; i < n; i++ {
		ts := 1e9 + float64(i)
		if err := rec.RecordDriverIteration(DriverCoord(i), ts, SellarInputs(i), SellarOutputs(i)); err != nil {
			return err
		}
		if opts.WithDerivs && version >= 2 {
			if err := rec.RecordDerivatives(DriverCoord(i), ts+0.1, SellarDerivatives(i)); err != nil {
				return err
			}
		}
		if opts.WithSystems {
			if err := rec.RecordSystemIteration(SystemCoord(i), ts+0.2,
				SellarInputs(i), SellarOutputs(i), SellarResiduals(i)); err != nil {
				return err
			}
		}
		if opts.WithSolver {
			if err := rec.RecordSolverIteration(SolverCoord(i), ts+0.3,
				0.001/float64(i+1), 1e-5,
				SellarInputs(i), SellarOutputs(i), SellarResiduals(i)); err != nil {
				return err
			}
		}
	}

	if opts.WithProblem && version >= 2 {
		if err := rec.RecordProblemCase("initial", 1e9-1, SellarOutputs(0)); err != nil {
			return err
		}
		if err := rec.RecordProblemCase("final", 1e9+float64(n), SellarOutputs(n-1)); err != nil {
			return err
		}
	}

	if opts.WithMetadata {
		if err := rec.WriteDriverMetadata(map[string]any{
			"run_id": uuid.NewString(),
			"tree":   map[string]any{"name": "root"},
		}); err != nil {
			return err
		}
		if err := rec.WriteSystemMetadata("d1", map[string]any{"output": 1.0},
			map[string]any{"distributed": false}); err != nil {
			return err
		}
		if err := rec.WriteSolverMetadata("root.NLRunOnce", "NonlinearRunOnce",
			map[string]any{"maxiter": 1.0}); err != nil {
			return err
		}
	}
	return nil
}

// BuildEmptyStore writes a store with a metadata row and no recorded cases.
func BuildEmptyStore(path string, version int) error {
	rec, err := NewRecorder(path, version)
	if err != nil {
		return err
	}
	defer rec.Close()
	return rec.WriteMetadata(SellarVars())
}

// TempStore builds the canned run in a fresh temp directory and returns the
// store path.
func TempStore(t testing.TB, version int, opts FixtureOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.sql")
	if err := BuildSellarStore(path, version, opts); err != nil {
		t.Fatalf("build fixture store: %v", err)
	}
	return path
}
