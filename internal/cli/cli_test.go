package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinSGray/OpenMDAO/internal/testutil"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSourcesCommand(t *testing.T) {
	store := testutil.TempStore(t, 4, testutil.FixtureOptions{WithSolver: true})

	out, err := runCommand(t, "sources", store)
	require.NoError(t, err)
	assert.Equal(t, "driver\nroot.NLRunOnce\n", out)
}

func TestCasesCommandRecurse(t *testing.T) {
	store := testutil.TempStore(t, 4, testutil.FixtureOptions{WithSolver: true})

	out, err := runCommand(t, "cases", store, "--source", "driver", "--recurse")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 14)
	assert.Equal(t, testutil.DriverCoord(0), lines[0])
	assert.Equal(t, testutil.SolverCoord(0), lines[1])
}

func TestCasesCommandTree(t *testing.T) {
	store := testutil.TempStore(t, 4, testutil.FixtureOptions{WithSolver: true})

	out, err := runCommand(t, "cases", store, "--tree")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "driver\n"))
	assert.Contains(t, out, "  "+testutil.DriverCoord(0)+"\n")
	assert.Contains(t, out, "    "+testutil.SolverCoord(0)+"\n")
}

func TestVarsCommandJSON(t *testing.T) {
	store := testutil.TempStore(t, 4, testutil.FixtureOptions{})

	out, err := runCommand(t, "vars", store, "--format", "json")
	require.NoError(t, err)

	var doc map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc["outputs"], "obj")
	assert.Contains(t, doc["inputs"], "y2")
}

func TestShowCommand(t *testing.T) {
	store := testutil.TempStore(t, 4, testutil.FixtureOptions{})

	out, err := runCommand(t, "show", store, testutil.DriverCoord(0))
	require.NoError(t, err)
	assert.Contains(t, out, "case rank0:SLSQP|0 (source driver, counter 1)")
	assert.Contains(t, out, "pz.z = [5 2]")

	_, err = runCommand(t, "show", store, "rank0:SLSQP|99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOpenFailureExitCode(t *testing.T) {
	_, err := runCommand(t, "sources", "/no/such/store.sql")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormatFlag(t *testing.T) {
	store := testutil.TempStore(t, 4, testutil.FixtureOptions{})
	_, err := runCommand(t, "sources", store, "--format", "xml")
	require.Error(t, err)
}
