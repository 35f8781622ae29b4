package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	rec := LegacyRecord{
		Names: []string{"px.x", "pz.z"},
		Values: []LegacyValue{
			{Shape: []int{1}, Data: []float64{1}},
			{Shape: []int{2}, Data: []float64{5, 2}},
		},
	}
	blob, err := EncodeRecord(rec)
	require.NoError(t, err)

	got, err := DecodeRecord(blob)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDecodeRecordCorrupt(t *testing.T) {
	_, err := DecodeRecord([]byte("definitely not gob"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode legacy record")
}

func TestNameMapRoundTrip(t *testing.T) {
	m := LegacyNameMap{
		Input:  map[string]string{"d1.z": "z"},
		Output: map[string]string{"pz.z": "z"},
	}
	blob, err := EncodeNameMap(m)
	require.NoError(t, err)
	got, err := DecodeNameMap(blob)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestReverseMapRoundTrip(t *testing.T) {
	m := LegacyReverseMap{
		Input:  map[string][]string{"z": {"d1.z", "d2.z"}},
		Output: map[string][]string{"z": {"pz.z"}},
	}
	blob, err := EncodeReverseMap(m)
	require.NoError(t, err)
	got, err := DecodeReverseMap(blob)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMetaMapRoundTrip(t *testing.T) {
	m := map[string]LegacyMeta{
		"pz.z": {
			Shape:    []int{2},
			Explicit: true,
			Lower:    &LegacyValue{Shape: []int{2}, Data: []float64{-10, 0}},
			Ref:      1,
			Type:     []string{"desvar"},
		},
	}
	blob, err := EncodeMetaMap(m)
	require.NoError(t, err)
	got, err := DecodeMetaMap(blob)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestOptionsRoundTrip(t *testing.T) {
	opts := map[string]any{
		"maxiter": 50.0,
		"tol":     1e-8,
		"name":    "SLSQP",
		"nested":  map[string]any{"flag": true},
		"list":    []any{"a", "b"},
	}
	blob, err := EncodeOptions(opts)
	require.NoError(t, err)
	got, err := DecodeOptions(blob)
	require.NoError(t, err)
	assert.Equal(t, opts, got)
}
